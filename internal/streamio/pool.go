package streamio

import (
	"math/bits"
	"sync"
)

// Block buffers are pooled by power-of-two size class. A stage checks out at
// most one block at a time and returns it when the block is done.
const (
	minClass = 8  // 256 B
	maxClass = 20 // 1 MiB
)

var pools [maxClass + 1]sync.Pool

func class(size int) int {
	if size <= 1<<minClass {
		return minClass
	}
	return bits.Len(uint(size - 1))
}

// GetBlock returns a zeroed buffer of exactly size bytes.
func GetBlock(size int) []byte {
	c := class(size)
	if c > maxClass {
		return make([]byte, size)
	}
	if v := pools[c].Get(); v != nil {
		buf := (*v.(*[]byte))[:size]
		clear(buf)
		return buf
	}
	return make([]byte, size, 1<<c)
}

// PutBlock hands buf back to its pool. Buffers that were not obtained from
// GetBlock are dropped.
func PutBlock(buf []byte) {
	if buf == nil {
		return
	}
	c := class(cap(buf))
	if c > maxClass || cap(buf) != 1<<c {
		return
	}
	buf = buf[:cap(buf)]
	pools[c].Put(&buf)
}
