// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The heap-provider abstraction and its in-memory reference implementation.

package heap

import (
	"encoding/binary"

	"github.com/cznic/mathutil"
)

// Heap is the external, lower-level "heap extender" the allocator core
// consumes. It is never implemented by this package's allocator and is
// intentionally minimal: base/high/size mirror a C process's notion of the
// heap break, and Extend is the only mutating call, always growing the
// mapped region (n is never negative in this implementation; shrinkage is a
// Non-goal).
type Heap interface {
	// Base returns the lowest heap address. Constant for the life of the
	// heap.
	Base() int64

	// High returns the highest currently-mapped address, one less than
	// the current break. High() == Base()-1 when the heap is empty.
	High() int64

	// Size returns the number of currently-mapped bytes, High()-Base()+1
	// (0 when empty).
	Size() int64

	// Extend grows the heap by n bytes (n > 0) and zero-fills them.
	// Previously mapped bytes are preserved. Returns an error, wrapping
	// ErrOutOfMemory where appropriate, if the request cannot be
	// satisfied.
	Extend(n int64) error
}

// Memory is Heap widened with the minimal byte-addressable accessors the
// boundary-tag layer needs in a language without unchecked pointer
// arithmetic: addresses are plain int64 offsets rather than raw pointers,
// and every field access goes through these word-sized read/write calls.
type Memory interface {
	Heap

	// ReadUint64 reads the 8-byte little-endian word at addr.
	ReadUint64(addr int64) uint64

	// WriteUint64 writes the 8-byte little-endian word at addr.
	WriteUint64(addr int64, v uint64)

	// ReadAt copies len(p) bytes starting at addr into p.
	ReadAt(addr int64, p []byte)

	// WriteAt copies p into the heap starting at addr.
	WriteAt(addr int64, p []byte)
}

// ByteArena is a memory-backed Memory, the reference/test Heap
// implementation: a single flat, contiguous []byte that grows on Extend
// and holds no persistence.
type ByteArena struct {
	base int64
	buf  []byte
}

var _ Memory = (*ByteArena)(nil)

// NewByteArena returns an empty ByteArena with the given base address. base
// is normally 0; a nonzero base lets tests exercise address arithmetic
// against a heap that does not start at the origin.
func NewByteArena(base int64) *ByteArena {
	return &ByteArena{base: base}
}

// Base implements Heap.
func (a *ByteArena) Base() int64 { return a.base }

// High implements Heap.
func (a *ByteArena) High() int64 { return a.base + int64(len(a.buf)) - 1 }

// Size implements Heap.
func (a *ByteArena) Size() int64 { return int64(len(a.buf)) }

// Extend implements Heap.
func (a *ByteArena) Extend(n int64) error {
	if n <= 0 {
		return &ErrInvalid{"ByteArena.Extend: n must be positive", n}
	}

	newSize := mathutil.MaxInt64(int64(len(a.buf)), int64(len(a.buf))+n)
	grown := make([]byte, newSize)
	copy(grown, a.buf)
	a.buf = grown
	return nil
}

func (a *ByteArena) off(addr int64) int64 { return addr - a.base }

// ReadUint64 implements Memory.
func (a *ByteArena) ReadUint64(addr int64) uint64 {
	o := a.off(addr)
	return binary.LittleEndian.Uint64(a.buf[o : o+8])
}

// WriteUint64 implements Memory.
func (a *ByteArena) WriteUint64(addr int64, v uint64) {
	o := a.off(addr)
	binary.LittleEndian.PutUint64(a.buf[o:o+8], v)
}

// ReadAt implements Memory.
func (a *ByteArena) ReadAt(addr int64, p []byte) {
	o := a.off(addr)
	copy(p, a.buf[o:o+int64(len(p))])
}

// WriteAt implements Memory.
func (a *ByteArena) WriteAt(addr int64, p []byte) {
	o := a.off(addr)
	copy(a.buf[o:o+int64(len(p))], p)
}
