// Package wsstream adapts a websocket connection to a byte stream so that a
// zipper Stream can run over it.
package wsstream

import (
	"bytes"
	"errors"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"

	"github.com/absfs/zipper/internal/streamio"
)

// ErrClosed is returned by operations on a closed Conn.
var ErrClosed = streamio.ErrClosed

// closeTimeout bounds the wait for the close frame to be written.
const closeTimeout = time.Second

// Conn is an io.ReadWriteCloser over a websocket connection. Writes are
// buffered and sent as one binary message per Flush; reads run across
// message boundaries, and a normal close from the peer reads as io.EOF.
//
// Like websocket.Conn, a Conn supports one concurrent reader and one
// concurrent writer.
type Conn struct {
	ws     *websocket.Conn
	wbuf   bytes.Buffer
	r      io.Reader
	eof    bool
	closed bool
}

// New wraps ws.
func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Read reads message payloads in arrival order.
func (c *Conn) Read(p []byte) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	for {
		if c.eof {
			return 0, io.EOF
		}
		if c.r == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.eof = true
					return 0, io.EOF
				}
				return 0, err
			}
			c.r = r
		}

		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

// Write buffers p until the next Flush.
func (c *Conn) Write(p []byte) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}
	return c.wbuf.Write(p)
}

// Buffered returns the number of bytes waiting for Flush.
func (c *Conn) Buffered() int {
	return c.wbuf.Len()
}

// Flush sends the buffered bytes as a single binary message. Nothing is
// sent when the buffer is empty.
func (c *Conn) Flush() error {
	if c.closed {
		return ErrClosed
	}
	if c.wbuf.Len() == 0 {
		return nil
	}
	err := c.ws.WriteMessage(websocket.BinaryMessage, c.wbuf.Bytes())
	c.wbuf.Reset()
	return err
}

// Close flushes, sends a normal close frame and closes the connection.
// Closing twice is a no-op.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}

	var result *multierror.Error
	if err := c.Flush(); err != nil {
		result = multierror.Append(result, err)
	}
	c.closed = true

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		result = multierror.Append(result, err)
	}
	if err := c.ws.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
