package bwt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/absfs/zipper/internal/streamio"
)

func transform(t *testing.T, data []byte, blockSize int) []byte {
	t.Helper()

	var buf bytes.Buffer
	s, err := NewStream(&buf, Transform, &Config{BlockSize: blockSize})
	if err != nil {
		t.Fatalf("Failed to create stream: %v", err)
	}
	if _, err := s.Write(data); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	return buf.Bytes()
}

func reconstruct(data []byte, readSize int) ([]byte, error) {
	s, err := NewStream(bytes.NewBuffer(data), Reconstruct, nil)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var out bytes.Buffer
	buf := make([]byte, readSize)
	for {
		n, err := s.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			return out.Bytes(), nil
		}
		if err != nil {
			return out.Bytes(), err
		}
	}
}

func TestStreamRoundTrip(t *testing.T) {
	random := make([]byte, 40000)
	rand.New(rand.NewSource(2)).Read(random)

	inputs := append(testInputs(), random, bytes.Repeat([]byte("ABACABA"), 5000))
	for _, input := range inputs {
		for _, blockSize := range []int{MinBlockSize, 3000, MaxBlockSize} {
			transformed := transform(t, input, blockSize)

			blocks := (len(input) + blockSize - 1) / blockSize
			if want := len(input) + blocks*headerSize; len(transformed) != want {
				t.Fatalf("Expected %d transformed bytes, got %d", want, len(transformed))
			}

			for _, readSize := range []int{1, 7, 1023, 4096} {
				got, err := reconstruct(transformed, readSize)
				if err != nil {
					t.Fatalf("Failed to reconstruct: %v", err)
				}
				if !bytes.Equal(got, input) {
					t.Fatalf("Round trip mismatch at block size %d, read size %d", blockSize, readSize)
				}
			}
		}
	}
}

func TestStreamFlush(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewStream(&buf, Transform, nil)
	if err != nil {
		t.Fatalf("Failed to create stream: %v", err)
	}

	s.Write([]byte("banana"))
	if err := s.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	want := []byte{6, 0, 0, 0, 3, 0, 0, 0, 'n', 'n', 'b', 'a', 'a', 'a'}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("Expected %v, got %v", want, buf.Bytes())
	}

	// A flush with nothing buffered writes no empty block.
	if err := s.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	if buf.Len() != len(want) {
		t.Fatalf("Expected no further output, got %d bytes", buf.Len()-len(want))
	}
}

func TestStreamCorrupted(t *testing.T) {
	header := func(length, identity int32) []byte {
		b := make([]byte, headerSize)
		binary.LittleEndian.PutUint32(b[0:4], uint32(length))
		binary.LittleEndian.PutUint32(b[4:8], uint32(identity))
		return b
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"zero length", header(0, 0), ErrCorrupted},
		{"negative length", header(-1, 0), ErrCorrupted},
		{"oversized length", header(MaxBlockSize+1, 0), ErrCorrupted},
		{"identity out of block", append(header(3, 3), "abc"...), ErrCorrupted},
		{"negative identity", append(header(3, -1), "abc"...), ErrCorrupted},
		{"short header", header(3, 0)[:5], ErrTruncated},
		{"short payload", append(header(10, 0), "abc"...), ErrTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reconstruct(tt.data, 64)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNewStreamGuards(t *testing.T) {
	var buf bytes.Buffer

	for _, size := range []int{MinBlockSize - 1, MaxBlockSize + 1} {
		if _, err := NewStream(&buf, Transform, &Config{BlockSize: size}); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("block size %d: expected ErrOutOfRange, got %v", size, err)
		}
	}
	if _, err := NewStream(&buf, Mode(42), nil); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("Expected ErrUnknownMode, got %v", err)
	}
	if _, err := NewStream(streamio.ReadOnly(&buf), Transform, nil); !errors.Is(err, ErrNotWritable) {
		t.Errorf("Expected ErrNotWritable, got %v", err)
	}
	if _, err := NewStream(streamio.WriteOnly(&buf), Reconstruct, nil); !errors.Is(err, ErrNotReadable) {
		t.Errorf("Expected ErrNotReadable, got %v", err)
	}
}

func TestStreamMisuse(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewStream(&buf, Transform, nil)
	if err != nil {
		t.Fatalf("Failed to create stream: %v", err)
	}

	if s.Mode() != Transform || s.BlockSize() != DefaultBlockSize {
		t.Fatalf("Unexpected mode %v or block size %d", s.Mode(), s.BlockSize())
	}
	if _, err := s.Read(make([]byte, 1)); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("Expected ErrInvalidMode, got %v", err)
	}
	if _, err := s.Seek(0, io.SeekEnd); !errors.Is(err, ErrSeekNotSupported) {
		t.Fatalf("Expected ErrSeekNotSupported, got %v", err)
	}

	s.Close()
	if err := s.Close(); err != nil {
		t.Fatalf("Second close should be a no-op, got %v", err)
	}
	if s.CanWrite() || s.CanRead() {
		t.Fatal("Closed stream reports capabilities")
	}
	if _, err := s.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}
	if err := s.Flush(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}

	r, err := NewStream(&buf, Reconstruct, nil)
	if err != nil {
		t.Fatalf("Failed to create stream: %v", err)
	}
	if _, err := r.Write([]byte("x")); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("Expected ErrInvalidMode, got %v", err)
	}
	r.Close()
	if _, err := r.Read(make([]byte, 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}
}
