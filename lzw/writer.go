package lzw

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"

	"github.com/absfs/zipper/bitpack"
	"github.com/absfs/zipper/internal/streamio"
	"github.com/absfs/zipper/trie"
)

// Writer is the LZW encoder. It owns its code table and a single block
// buffer; codes are packed into the buffer and the buffer is framed and
// written to the underlying writer whenever a block ends.
type Writer struct {
	out       io.Writer
	blockSize int
	logger    *slog.Logger

	// block holds the header followed by the payload; payload appends into
	// block[headerSize:] and packer writes codes into payload.
	block   []byte
	payload *bytes.Buffer
	packer  *bitpack.Writer
	bits    int

	dict       *trie.Trie[uint32]
	codeWidth  int
	codesCount int
	frozen     bool

	blocks   int
	consumed int64
	closed   bool
}

// NewWriter creates an encoder writing blocks of at most config.BlockSize
// bytes to w. The Writer never closes w.
func NewWriter(w io.Writer, config *Config) (*Writer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	blockSize, err := config.blockSize()
	if err != nil {
		return nil, err
	}
	if !streamio.CanWrite(w) {
		return nil, ErrNotWritable
	}

	lw := &Writer{
		out:        w,
		blockSize:  blockSize,
		logger:     streamio.Logger(config.Logger),
		block:      streamio.GetBlock(blockSize),
		dict:       trie.New[uint32](),
		codeWidth:  initialCodeWidth,
		codesCount: 1 << initialCodeWidth,
	}
	lw.payload = bytes.NewBuffer(lw.block[headerSize:headerSize])

	for i := 0; i < lw.codesCount; i++ {
		lw.dict.AddChild(byte(i), uint32(i))
	}

	if lw.packer, err = bitpack.NewWriter(lw.payload, lw.codeWidth, true); err != nil {
		streamio.PutBlock(lw.block)
		return nil, err
	}
	return lw, nil
}

// CodeWidth returns the width of the codes currently being written.
func (w *Writer) CodeWidth() int {
	return w.codeWidth
}

// CodesCount returns the number of entries in the code table.
func (w *Writer) CodesCount() int {
	return w.codesCount
}

// Write encodes p. Codes for the longest matches found so far are emitted as
// soon as the match cannot be extended; the current match stays pending
// until more input, Flush or Close.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}

	for i, b := range p {
		// Every single byte is a root child, so only a longer match can miss.
		if !w.dict.MoveForward(b) {
			if err := w.emitMatch(b); err != nil {
				return i, err
			}
			w.dict.MoveForward(b)
		}
		w.consumed++
	}
	return len(p), nil
}

// emitMatch writes the code of the current match, which cannot be extended
// by next, registers match+next in the table and returns the cursor to the
// root.
func (w *Writer) emitMatch(next byte) error {
	code := w.dict.CurrentValue()

	grow, freeze := false, false
	if !w.frozen {
		w.dict.AddChild(next, uint32(w.codesCount))
		w.codesCount++
		freeze = w.codesCount >= MaxCodesCount
		grow = !freeze && w.codesCount >= 1<<w.codeWidth
	}

	switch {
	case freeze:
		w.frozen = true
		if err := w.flushBlock(Default); err != nil {
			return err
		}
		if err := w.flushBlock(FixCodeTableSize); err != nil {
			return err
		}
		w.logger.Info("lzw code table frozen", "block", w.blocks, "codes", w.codesCount, "consumed", w.consumed)
	case grow || w.overflows():
		if err := w.flushBlock(Default); err != nil {
			return err
		}
	}

	if grow {
		if err := w.setWidth(w.codeWidth + 1); err != nil {
			return err
		}
	}

	w.dict.Reset()
	return w.writeCode(code)
}

// Flush emits all pending codes, including the code of the unfinished
// match, and flushes the underlying writer. The unfinished match goes out in
// a Flush block, which is written even when there is no match.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrClosed
	}

	if err := w.flushBlock(Default); err != nil {
		return err
	}
	if !w.dict.AtRoot() {
		if err := w.writeCode(w.dict.CurrentValue()); err != nil {
			return err
		}
		w.dict.Reset()
	}
	if err := w.flushBlock(Flush); err != nil {
		return err
	}
	return streamio.Flush(w.out)
}

// Close flushes and terminates the stream with an EndOfStream block. Closing
// twice is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}

	err := w.Flush()
	if err == nil {
		err = w.flushBlock(EndOfStream)
	}
	if err == nil {
		err = streamio.Flush(w.out)
	}

	if cerr := w.packer.Close(); cerr != nil && err == nil {
		err = cerr
	}
	streamio.PutBlock(w.block)
	w.block = nil
	w.closed = true
	return err
}

func (w *Writer) overflows() bool {
	return headerSize*8+w.bits+w.codeWidth > w.blockSize*8
}

func (w *Writer) setWidth(width int) error {
	if err := w.packer.Close(); err != nil {
		return err
	}
	packer, err := bitpack.NewWriter(w.payload, width, true)
	if err != nil {
		return err
	}
	w.packer = packer
	w.codeWidth = width
	return nil
}

func (w *Writer) writeCode(code uint32) error {
	if err := w.packer.Write(code); err != nil {
		return err
	}
	w.bits += w.codeWidth
	return nil
}

// flushBlock frames the current payload as a block of type typ and writes
// it. Empty Default blocks are dropped.
func (w *Writer) flushBlock(typ BlockType) error {
	if err := w.packer.Flush(); err != nil {
		return err
	}
	if typ == FixCodeTableSize {
		var ceiling [4]byte
		binary.LittleEndian.PutUint32(ceiling[:], MaxCodesCount)
		w.payload.Write(ceiling[:])
	}

	length := w.payload.Len()
	defer func() {
		w.payload.Reset()
		w.bits = 0
	}()

	if length == 0 && typ == Default {
		return nil
	}

	frame := w.block[:headerSize+length]
	copy(frame[headerSize:], w.payload.Bytes())
	blockHeader{typ: typ, width: w.codeWidth, length: length}.put(frame)

	if _, err := w.out.Write(frame); err != nil {
		return err
	}

	w.logger.Debug("lzw block written",
		"block", w.blocks,
		"type", typ,
		"width", w.codeWidth,
		"length", length,
		"codes", w.codesCount,
		"consumed", w.consumed)
	w.blocks++
	return nil
}
