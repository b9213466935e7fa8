package lzw

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/absfs/zipper/bitpack"
	"github.com/absfs/zipper/internal/streamio"
)

// Reader is the LZW decoder. It rebuilds the encoder's code table from the
// codes it reads, one entry per code, and serves the decoded bytes.
type Reader struct {
	in     io.Reader
	logger *slog.Logger

	// table[c] is the word for code c. When pending is set the newest entry
	// is still missing its last byte, which is the first byte of the next
	// decoded word.
	table   [][]byte
	pending bool
	ceiling int

	payload   []byte
	codes     *bitpack.Reader
	width     int
	flushMode bool

	word    []byte
	wordPos int

	blocks int
	eos    bool
	closed bool
}

// NewReader creates a decoder reading blocks from r. The Reader never closes
// r. Only config.Logger is used.
func NewReader(r io.Reader, config *Config) (*Reader, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if !streamio.CanRead(r) {
		return nil, ErrNotReadable
	}

	table := make([][]byte, 1<<initialCodeWidth, 1<<(initialCodeWidth+4))
	for i := range table {
		table[i] = []byte{byte(i)}
	}

	return &Reader{
		in:     r,
		logger: streamio.Logger(config.Logger),
		table:  table,
		width:  initialCodeWidth,
	}, nil
}

// Read fills p with decoded bytes. It returns io.EOF after an EndOfStream
// block, or when the input ends cleanly between two blocks.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}

	n := 0
	for n < len(p) {
		if r.wordPos < len(r.word) {
			c := copy(p[n:], r.word[r.wordPos:])
			n += c
			r.wordPos += c
			continue
		}

		if r.codes == nil {
			if r.eos {
				break
			}
			if err := r.nextBlock(); err != nil {
				if err == io.EOF {
					r.eos = true
					break
				}
				return n, err
			}
			continue
		}

		code, err := r.codes.ReadNext()
		if err == io.EOF {
			r.releaseBlock()
			continue
		}
		if err != nil {
			return n, err
		}
		if err := r.decode(code); err != nil {
			return n, err
		}
	}

	if n == 0 && len(p) > 0 && r.eos {
		return 0, io.EOF
	}
	return n, nil
}

// Close releases the block buffer. Closing twice is a no-op.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.releaseBlock()
	r.table = nil
	r.word = nil
	r.closed = true
	return nil
}

func (r *Reader) decode(code uint32) error {
	c := int(code)
	if c >= len(r.table) {
		return streamio.Corrupted("lzw code %d outside table of %d entries", c, len(r.table))
	}

	word := r.table[c]
	if r.pending {
		last := r.table[len(r.table)-1]
		last[len(last)-1] = word[0]
		r.pending = false
	}

	if !r.flushMode && (r.ceiling == 0 || len(r.table) < r.ceiling) {
		entry := make([]byte, len(word)+1)
		copy(entry, word)
		r.table = append(r.table, entry)
		r.pending = true
	}

	r.word = word
	r.wordPos = 0
	return nil
}

// nextBlock reads block headers up to the next block carrying codes.
// FixCodeTableSize blocks are consumed on the way.
func (r *Reader) nextBlock() error {
	for {
		var raw [headerSize]byte
		if _, err := io.ReadFull(r.in, raw[:]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: lzw block header", ErrTruncated)
			}
			return err
		}

		h := parseHeader(raw[:])
		if h.length < 0 || h.length > MaxBlockSize-headerSize {
			return streamio.Corrupted("lzw block length %d", h.length)
		}
		if h.width < r.width || h.width > bitpack.MaxWidth {
			return streamio.Corrupted("lzw code width %d after width %d", h.width, r.width)
		}

		payload := streamio.GetBlock(h.length)
		if _, err := io.ReadFull(r.in, payload); err != nil {
			streamio.PutBlock(payload)
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: lzw %v block of %d bytes", ErrTruncated, h.typ, h.length)
			}
			return err
		}

		r.logger.Debug("lzw block read", "block", r.blocks, "type", h.typ, "width", h.width, "length", h.length)
		r.blocks++
		r.width = h.width

		switch h.typ {
		case Default, Flush, EndOfStream:
			r.flushMode = h.typ == Flush
			r.eos = h.typ == EndOfStream
		case FixCodeTableSize:
			err := r.fixTableSize(payload)
			streamio.PutBlock(payload)
			if err != nil {
				return err
			}
			continue
		default:
			streamio.PutBlock(payload)
			return streamio.Corrupted("lzw block type %v", h.typ)
		}

		codes, err := bitpack.NewReader(bytes.NewReader(payload), h.width)
		if err != nil {
			streamio.PutBlock(payload)
			return err
		}
		r.payload = payload
		r.codes = codes
		return nil
	}
}

func (r *Reader) fixTableSize(payload []byte) error {
	if len(payload) != 4 {
		return streamio.Corrupted("lzw table ceiling of %d bytes", len(payload))
	}
	ceiling := int(int32(binary.LittleEndian.Uint32(payload)))
	if ceiling < len(r.table) || ceiling > MaxCodesCount {
		return streamio.Corrupted("lzw table ceiling %d with %d entries", ceiling, len(r.table))
	}
	r.ceiling = ceiling
	r.logger.Info("lzw code table frozen", "block", r.blocks, "codes", ceiling)
	return nil
}

func (r *Reader) releaseBlock() {
	streamio.PutBlock(r.payload)
	r.payload = nil
	r.codes = nil
}
