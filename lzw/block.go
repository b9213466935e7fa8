// Package lzw implements an adaptive LZW coder that writes its output as a
// sequence of self-describing blocks.
//
// Every block starts with a six byte header: block type, code width and a
// little-endian int32 payload length. Default and Flush payloads are codes
// packed MSB first at the header's width. The code table starts with the 256
// single bytes, grows by one entry per emitted code and is frozen once it
// holds MaxCodesCount entries; the freeze is announced with a
// FixCodeTableSize block so the decoder stops growing at the same point.
package lzw

import (
	"encoding/binary"
	"fmt"

	"github.com/absfs/zipper/internal/streamio"
)

// Errors returned by the encoder, decoder and Stream.
var (
	ErrOutOfRange       = streamio.ErrOutOfRange
	ErrUnknownMode      = streamio.ErrUnknownMode
	ErrNotReadable      = streamio.ErrNotReadable
	ErrNotWritable      = streamio.ErrNotWritable
	ErrCorrupted        = streamio.ErrCorrupted
	ErrTruncated        = streamio.ErrTruncated
	ErrClosed           = streamio.ErrClosed
	ErrInvalidMode      = streamio.ErrInvalidMode
	ErrSeekNotSupported = streamio.ErrSeekNotSupported
)

// BlockType marks how the decoder treats a block.
type BlockType byte

const (
	// Default blocks carry ordinary codes.
	Default BlockType = iota

	// FixCodeTableSize carries the int32 table ceiling; no block after it
	// grows the code table.
	FixCodeTableSize

	// EndOfStream is written on Close and is the last block of a stream.
	EndOfStream

	// Flush carries the code of the match pending at Flush time. That code
	// does not open a new table entry.
	Flush
)

func (t BlockType) String() string {
	switch t {
	case Default:
		return "default"
	case FixCodeTableSize:
		return "fix-code-table-size"
	case EndOfStream:
		return "end-of-stream"
	case Flush:
		return "flush"
	default:
		return fmt.Sprintf("BlockType(%d)", byte(t))
	}
}

const (
	// MinBlockSize is the smallest allowed block length, header included.
	MinBlockSize = 256

	// MaxBlockSize is the largest allowed block length, header included.
	MaxBlockSize = 64 * 1024

	// DefaultBlockSize is used when Config.BlockSize is zero.
	DefaultBlockSize = 1024

	// MaxCodesCount is the number of table entries at which the table stops
	// growing.
	MaxCodesCount = 320*1024 - 1

	headerSize       = 6
	initialCodeWidth = 8
)

type blockHeader struct {
	typ    BlockType
	width  int
	length int
}

func (h blockHeader) put(b []byte) {
	b[0] = byte(h.typ)
	b[1] = byte(h.width)
	binary.LittleEndian.PutUint32(b[2:6], uint32(h.length))
}

func parseHeader(b []byte) blockHeader {
	return blockHeader{
		typ:    BlockType(b[0]),
		width:  int(b[1]),
		length: int(int32(binary.LittleEndian.Uint32(b[2:6]))),
	}
}
