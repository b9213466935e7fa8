// Package bwt implements the Burrows-Wheeler transform over byte blocks and
// a block-segmented stream built on it.
package bwt

import (
	"sort"

	"github.com/absfs/zipper/internal/streamio"
)

// Stream errors, the same values in every package of the module.
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

// Forward writes the Burrows-Wheeler transform of src into dst[:len(src)]
// and returns the identity index, the sorted position of src itself among
// its cyclic rotations.
//
// dst[i] is the byte that cyclically precedes the i-th smallest rotation.
// Rotations compare cyclically over their full length, so no sentinel byte
// is needed. Empty input yields index 0.
func Forward(src, dst []byte) (int, error) {
	n := len(src)
	if len(dst) < n {
		return 0, streamio.OutOfRange("output length", len(dst), n, n)
	}

	switch n {
	case 0:
		return 0, nil
	case 1:
		dst[0] = src[0]
		return 0, nil
	}

	identity := 0
	for i, off := range rotationOrder(src) {
		if off == 0 {
			identity = i
		}
		dst[i] = src[(off+n-1)%n]
	}
	return identity, nil
}

// rotationOrder returns the start offsets of the cyclic rotations of src in
// sorted order. Ranks are refined by prefix doubling: after the round for k,
// rank[i] orders rotations by their first 2k bytes. Equal rotations (periodic
// input) keep equal ranks and are left in any order.
func rotationOrder(src []byte) []int {
	n := len(src)
	order := make([]int, n)
	rank := make([]int, n)
	next := make([]int, n)
	for i := range order {
		order[i] = i
		rank[i] = int(src[i])
	}

	for k := 1; ; k <<= 1 {
		less := func(a, b int) bool {
			if rank[a] != rank[b] {
				return rank[a] < rank[b]
			}
			return rank[(a+k)%n] < rank[(b+k)%n]
		}
		sort.Slice(order, func(i, j int) bool {
			return less(order[i], order[j])
		})

		next[order[0]] = 0
		for i := 1; i < n; i++ {
			next[order[i]] = next[order[i-1]]
			if less(order[i-1], order[i]) {
				next[order[i]]++
			}
		}
		rank, next = next, rank

		if rank[order[n-1]] == n-1 || 2*k >= n {
			return order
		}
	}
}

// Inverse reconstructs the block transformed by Forward into dst[:len(src)].
//
// lesser[b] is the number of bytes in src smaller than b and rank[i] the
// number of earlier occurrences of src[i], so rank[i]+lesser[src[i]] is the
// row holding the rotation that starts one byte earlier.
func Inverse(src []byte, identityIndex int, dst []byte) error {
	n := len(src)
	if len(dst) < n {
		return streamio.OutOfRange("output length", len(dst), n, n)
	}
	if n == 0 {
		return nil
	}
	if identityIndex < 0 || identityIndex >= n {
		return streamio.OutOfRange("identity index", identityIndex, 0, n-1)
	}

	var counts [256]int
	rank := make([]int, n)
	for i, b := range src {
		rank[i] = counts[b]
		counts[b]++
	}

	var lesser [256]int
	sum := 0
	for b, c := range counts {
		lesser[b] = sum
		sum += c
	}

	cur := identityIndex
	for i := n - 1; i >= 0; i-- {
		b := src[cur]
		dst[i] = b
		cur = rank[cur] + lesser[b]
	}
	return nil
}
