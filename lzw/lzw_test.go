package lzw

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/absfs/zipper/internal/streamio"
	"github.com/xyproto/randomstring"
)

func compress(t *testing.T, data []byte, blockSize int) []byte {
	t.Helper()

	var buf bytes.Buffer
	s, err := NewStream(&buf, Compress, &Config{BlockSize: blockSize})
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	if _, err := s.Write(data); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close compressor: %v", err)
	}
	return buf.Bytes()
}

func decompress(t *testing.T, data []byte, readSize int) []byte {
	t.Helper()

	s, err := NewStream(bytes.NewBuffer(data), Decompress, nil)
	if err != nil {
		t.Fatalf("Failed to create decompressor: %v", err)
	}
	defer s.Close()

	var out bytes.Buffer
	buf := make([]byte, readSize)
	for {
		n, err := s.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read: %v", err)
		}
	}
	return out.Bytes()
}

// blocks walks the framing of a compressed stream.
func blocks(t *testing.T, data []byte) []blockHeader {
	t.Helper()

	var headers []blockHeader
	for len(data) > 0 {
		if len(data) < headerSize {
			t.Fatalf("Dangling %d bytes after %d blocks", len(data), len(headers))
		}
		h := parseHeader(data)
		headers = append(headers, h)
		data = data[headerSize+h.length:]
	}
	return headers
}

func testInputs() map[string][]byte {
	increasing := make([]byte, 16)
	for i := range increasing {
		increasing[i] = byte(i)
	}

	random := make([]byte, 16*1024)
	rand.New(rand.NewSource(74687324)).Read(random)

	return map[string][]byte{
		"empty":      {},
		"single":     []byte("A"),
		"abacaba":    []byte("ABACABA"),
		"kwkwk":      []byte("abababababababab"),
		"zeros":      make([]byte, 16),
		"increasing": increasing,
		"random":     random,
		"text":       []byte(randomstring.String(64 * 1024)),
		"repeated":   bytes.Repeat([]byte("hello world "), 4096),
	}
}

func TestRoundTrip(t *testing.T) {
	for name, input := range testInputs() {
		for _, blockSize := range []int{MinBlockSize, DefaultBlockSize, MaxBlockSize} {
			compressed := compress(t, input, blockSize)
			for _, readSize := range []int{1, 7, 255, 4096} {
				got := decompress(t, compressed, readSize)
				if !bytes.Equal(got, input) {
					t.Fatalf("%s: round trip mismatch at block size %d, read size %d", name, blockSize, readSize)
				}
			}
		}
	}
}

func TestBlockFraming(t *testing.T) {
	input := []byte(randomstring.String(256 * 1024))
	for _, blockSize := range []int{MinBlockSize, DefaultBlockSize, MaxBlockSize} {
		headers := blocks(t, compress(t, input, blockSize))

		width := initialCodeWidth
		for i, h := range headers {
			if h.width < width {
				t.Fatalf("block %d: width %d after %d", i, h.width, width)
			}
			width = h.width
			if headerSize+h.length > blockSize {
				t.Fatalf("block %d: %d bytes exceed block size %d", i, headerSize+h.length, blockSize)
			}
			if h.typ == Default && h.length == 0 {
				t.Fatalf("block %d: empty default block", i)
			}
		}

		last := headers[len(headers)-1]
		if last.typ != EndOfStream || last.length != 0 {
			t.Fatalf("Last block is %v with %d bytes, want empty end-of-stream", last.typ, last.length)
		}
		if headers[len(headers)-2].typ != Flush {
			t.Fatalf("Block before end-of-stream is %v, want flush", headers[len(headers)-2].typ)
		}
	}
}

func TestEmptyStream(t *testing.T) {
	compressed := compress(t, nil, 0)

	headers := blocks(t, compressed)
	if len(headers) != 2 || headers[0].typ != Flush || headers[1].typ != EndOfStream {
		t.Fatalf("Expected an empty flush and end-of-stream block, got %+v", headers)
	}
	if got := decompress(t, compressed, 16); len(got) != 0 {
		t.Fatalf("Expected no output, got %d bytes", len(got))
	}
}

func TestFlush(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewStream(&buf, Compress, nil)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}

	var want []byte
	chunks := [][]byte{
		[]byte("abababab"),
		[]byte("abab"),
		{},
		[]byte("aaaaaaaaaaaaaaaa"),
		[]byte(randomstring.String(5000)),
		[]byte("ab"),
	}
	for _, chunk := range chunks {
		if _, err := s.Write(chunk); err != nil {
			t.Fatalf("Failed to write: %v", err)
		}
		if err := s.Flush(); err != nil {
			t.Fatalf("Failed to flush: %v", err)
		}
		want = append(want, chunk...)

		// Everything written so far must be decodable without Close.
		if got := decompress(t, buf.Bytes(), 64); !bytes.Equal(got, want) {
			t.Fatalf("Flushed prefix mismatch.\nExpected: %q\nGot: %q", want, got)
		}
	}

	before := buf.Len()
	if err := s.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}
	if buf.Len() != before+headerSize {
		t.Fatalf("Idle flush wrote %d bytes, want an empty %d byte flush block", buf.Len()-before, headerSize)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	if got := decompress(t, buf.Bytes(), 3); !bytes.Equal(got, want) {
		t.Fatal("Round trip mismatch after close")
	}
}

func TestCodeTableFreeze(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large input in short mode")
	}

	input := make([]byte, 2<<20)
	rand.New(rand.NewSource(1)).Read(input)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, &Config{BlockSize: MaxBlockSize})
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	if _, err := w.Write(input); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	if w.CodesCount() != MaxCodesCount {
		t.Fatalf("Expected %d codes, got %d", MaxCodesCount, w.CodesCount())
	}

	fixes := 0
	for _, h := range blocks(t, buf.Bytes()) {
		if h.typ == FixCodeTableSize {
			fixes++
		}
	}
	if fixes != 1 {
		t.Fatalf("Expected exactly one table size block, got %d", fixes)
	}

	if got := decompress(t, buf.Bytes(), 32*1024); !bytes.Equal(got, input) {
		t.Fatal("Round trip mismatch after freeze")
	}
}

func TestMissingEndOfStream(t *testing.T) {
	input := []byte("ABACABA ABACABA ABACABA")
	compressed := compress(t, input, 0)

	// A stream cut cleanly at a block boundary ends normally.
	trimmed := compressed[:len(compressed)-headerSize]
	if got := decompress(t, trimmed, 5); !bytes.Equal(got, input) {
		t.Fatalf("Expected %q, got %q", input, got)
	}
}

func block(typ BlockType, width int, payload ...byte) []byte {
	b := make([]byte, headerSize+len(payload))
	blockHeader{typ: typ, width: width, length: len(payload)}.put(b)
	copy(b[headerSize:], payload)
	return b
}

func TestCorrupted(t *testing.T) {
	negative := block(Default, 8)
	binary.LittleEndian.PutUint32(negative[2:], 0xFFFFFFFF)

	oversized := block(Default, 8)
	binary.LittleEndian.PutUint32(oversized[2:], MaxBlockSize)

	tests := []struct {
		name string
		data []byte
	}{
		{"unknown type", block(9, 8, 'A')},
		{"code outside table", block(Default, 9, 0xFF, 0x80)},
		{"width too small", block(Default, 7, 'A')},
		{"width too large", block(Default, 33, 'A')},
		{"width decreases", append(block(Default, 9, 0x20, 0x80), block(Default, 8, 'B')...)},
		{"negative length", negative},
		{"oversized length", oversized},
		{"short ceiling", block(FixCodeTableSize, 8, 1, 2, 3)},
		{"ceiling below table", block(FixCodeTableSize, 8, 1, 0, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(bytes.NewReader(tt.data), nil)
			if err != nil {
				t.Fatalf("Failed to create reader: %v", err)
			}
			_, err = io.ReadAll(r)
			if !errors.Is(err, ErrCorrupted) {
				t.Fatalf("Expected ErrCorrupted, got %v", err)
			}
		})
	}
}

func TestTruncated(t *testing.T) {
	compressed := compress(t, []byte(randomstring.String(4096)), 0)
	first := parseHeader(compressed)

	for _, cut := range []int{3, headerSize + first.length/2, len(compressed) - 2} {
		r, err := NewReader(bytes.NewReader(compressed[:cut]), nil)
		if err != nil {
			t.Fatalf("Failed to create reader: %v", err)
		}
		_, err = io.ReadAll(r)
		if !errors.Is(err, ErrTruncated) || !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Fatalf("cut at %d: expected ErrTruncated, got %v", cut, err)
		}
	}
}

func TestEncodeKnownBlocks(t *testing.T) {
	// The first emitted code fills the 256 literal codes, so every code of
	// "ABAB" goes out at width 9: 'A', 'B', then "AB" (256) on close.
	var buf bytes.Buffer
	w, err := NewWriter(&buf, nil)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	w.Write([]byte("ABAB"))
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	want := []byte{
		byte(Default), 9, 3, 0, 0, 0, 0x20, 0x90, 0x80,
		byte(Flush), 9, 2, 0, 0, 0, 0x80, 0x00,
		byte(EndOfStream), 9, 0, 0, 0, 0,
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("Expected % x, got % x", want, buf.Bytes())
	}

	if got := decompress(t, buf.Bytes(), 3); string(got) != "ABAB" {
		t.Fatalf("Decoded %q", got)
	}
}

func TestNewStreamGuards(t *testing.T) {
	var buf bytes.Buffer

	for _, size := range []int{MinBlockSize - 1, MaxBlockSize + 1, -1} {
		if _, err := NewStream(&buf, Compress, &Config{BlockSize: size}); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("block size %d: expected ErrOutOfRange, got %v", size, err)
		}
	}
	if _, err := NewStream(&buf, Mode(7), nil); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("Expected ErrUnknownMode, got %v", err)
	}
	if _, err := NewStream(streamio.ReadOnly(&buf), Compress, nil); !errors.Is(err, ErrNotWritable) {
		t.Errorf("Expected ErrNotWritable, got %v", err)
	}
	if _, err := NewStream(streamio.WriteOnly(&buf), Decompress, nil); !errors.Is(err, ErrNotReadable) {
		t.Errorf("Expected ErrNotReadable, got %v", err)
	}
}

func TestStreamMisuse(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewStream(&buf, Compress, nil)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}

	if !s.CanWrite() || s.CanRead() {
		t.Fatal("Compressor should be write-only")
	}
	if _, err := s.Read(make([]byte, 1)); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("Expected ErrInvalidMode, got %v", err)
	}
	if _, err := s.Seek(0, io.SeekStart); !errors.Is(err, ErrSeekNotSupported) {
		t.Fatalf("Expected ErrSeekNotSupported, got %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Second close should be a no-op, got %v", err)
	}
	if s.CanWrite() {
		t.Fatal("Closed stream should not be writable")
	}
	if _, err := s.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}
	if err := s.Flush(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}

	d, err := NewStream(bytes.NewBuffer(buf.Bytes()), Decompress, nil)
	if err != nil {
		t.Fatalf("Failed to create decompressor: %v", err)
	}
	if _, err := d.Write([]byte("x")); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("Expected ErrInvalidMode, got %v", err)
	}
	if err := d.Flush(); err != nil {
		t.Fatalf("Flush on a decompressor should be a no-op, got %v", err)
	}
	d.Close()
	if _, err := d.Read(make([]byte, 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}
}

type closeRecorder struct {
	bytes.Buffer
	closed int
}

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func TestLeaveOpen(t *testing.T) {
	for _, leaveOpen := range []bool{false, true} {
		var sink closeRecorder
		s, err := NewStream(&sink, Compress, &Config{LeaveOpen: leaveOpen})
		if err != nil {
			t.Fatalf("Failed to create compressor: %v", err)
		}
		s.Write([]byte("data"))
		s.Close()

		want := 1
		if leaveOpen {
			want = 0
		}
		if sink.closed != want {
			t.Fatalf("LeaveOpen=%v: sink closed %d times, want %d", leaveOpen, sink.closed, want)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("sink failed")
}

func TestWriteErrorCount(t *testing.T) {
	w, err := NewWriter(failingWriter{}, &Config{BlockSize: MinBlockSize})
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	data := []byte(randomstring.String(4096))
	n, err := w.Write(data)
	if err == nil {
		t.Fatal("Expected the sink error")
	}
	if n >= len(data) {
		t.Fatalf("Write reported %d of %d bytes after a failure", n, len(data))
	}
	if w.consumed != int64(n) {
		t.Fatalf("Counted %d consumed bytes, Write returned %d", w.consumed, n)
	}
}

func BenchmarkCompress(b *testing.B) {
	input := []byte(randomstring.String(64 * 1024))

	b.SetBytes(int64(len(input)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w, _ := NewWriter(io.Discard, nil)
		w.Write(input)
		w.Close()
	}
}
