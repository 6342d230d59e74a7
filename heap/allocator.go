// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The allocator core: init/alloc/free/realloc, gluing the free-block tree
// and the boundary-tag layer together.
package heap

import "github.com/cznic/mathutil"

// Allocator manages a single contiguous, monotonically-growing heap
// obtained from mem. It is not safe for concurrent use: the heap and the
// tree are exclusive to a single logical owner.
type Allocator struct {
	mem  Memory
	tree *tree
	base int64
}

// NewAllocator fixes the heap's base at the 8-byte aligned address at or
// above mem's reported low address, extending mem if needed to reach that
// alignment, and returns an Allocator with an empty free tree.
func NewAllocator(mem Memory) (*Allocator, error) {
	lo := mem.Base()
	aligned := (lo + 7) &^ 7
	if skip := aligned - lo; skip > 0 {
		if err := mem.Extend(skip); err != nil {
			return nil, &ErrOutOfMemory{Requested: skip, More: err}
		}
	}

	return &Allocator{
		mem:  mem,
		tree: newTree(mem),
		base: aligned,
	}, nil
}

// HeapBase returns the allocator's fixed base address.
func (a *Allocator) HeapBase() int64 { return a.base }

// HeapHigh returns the highest currently-mapped address, or HeapBase()-1
// when the heap is empty.
func (a *Allocator) HeapHigh() int64 { return a.brk() - 1 }

// HeapSize returns the number of currently-mapped bytes.
func (a *Allocator) HeapSize() int64 { return a.brk() - a.base }

func (a *Allocator) brk() int64 { return a.mem.Base() + a.mem.Size() }

// Alloc allocates a block of at least n payload bytes and returns its
// payload address. ok is false, and the heap is left unchanged, if the
// underlying Heap could not be extended (ErrOutOfMemory).
func (a *Allocator) Alloc(n int) (addr int64, ok bool) {
	if n < 0 {
		n = 0
	}

	need := payloadNodeSize(n)
	reqBody := need - 2*wordSlot

	if block, found := a.tree.Pop(reqBody); found {
		haveBody, _ := readTag(a.mem, block)
		haveNodeSize := nodeSize(haveBody)
		if haveNodeSize >= need+MinBlock {
			remainderBody := haveNodeSize - need - 2*wordSlot
			writeTag(a.mem, block, reqBody, true)
			remainderHeader := block + need
			writeTag(a.mem, remainderHeader, remainderBody, false)
			a.tree.Add(remainderHeader)
		} else {
			writeTag(a.mem, block, haveBody, true)
		}
		return bodyAddr(block), true
	}

	return a.extendAndAlloc(need, reqBody)
}

// extendAndAlloc handles a tree miss: it grows the heap by need bytes,
// first absorbing a free tail block (if one exists) to reduce the amount
// requested from mem. The tail is never inspected on an empty heap, since
// there is no block to inspect.
func (a *Allocator) extendAndAlloc(need, reqBody int64) (addr int64, ok bool) {
	oldBrk := a.brk()
	extendBy := need
	var tailHeader int64

	if a.HeapSize() > 0 {
		tailFooter := oldBrk - wordSlot
		size, allocated := unpackSizeFlag(a.mem.ReadUint64(tailFooter))
		if !allocated {
			tailHeader = headerAddr(tailFooter, size)
			a.tree.Remove(tailHeader)
			extendBy -= nodeSize(size)
		}
	}

	if extendBy > 0 {
		if err := a.mem.Extend(extendBy); err != nil {
			if tailHeader != 0 {
				a.tree.Add(tailHeader)
			}
			return 0, false
		}
	}

	header := oldBrk
	if tailHeader != 0 {
		header = tailHeader
	}
	writeTag(a.mem, header, reqBody, true)
	return bodyAddr(header), true
}

// Free releases the block at addr. Free(0) is a no-op. Freeing an address
// not obtained from Alloc/Realloc, or double-freeing, is undefined
// behaviour and is not detected here.
func (a *Allocator) Free(addr int64) {
	if addr == 0 {
		return
	}

	header := addr - wordSlot
	bodySize, _ := readTag(a.mem, header)
	brk := a.brk()

	if header > a.base {
		leftFooter := header - wordSlot
		lsize, lalloc := unpackSizeFlag(a.mem.ReadUint64(leftFooter))
		if !lalloc {
			leftHeader := headerAddr(leftFooter, lsize)
			a.tree.Remove(leftHeader)
			bodySize += lsize + 2*wordSlot
			header = leftHeader
		}
	}

	if nextHeader := header + nodeSize(bodySize); nextHeader < brk {
		rsize, rallocated := unpackSizeFlag(a.mem.ReadUint64(nextHeader))
		if !rallocated {
			a.tree.Remove(nextHeader)
			bodySize += rsize + 2*wordSlot
		}
	}

	writeTag(a.mem, header, bodySize, false)
	a.tree.Add(header)
}

// Realloc resizes the block at addr to hold at least n payload bytes.
// Realloc(0, n) behaves as Alloc(n). Realloc(addr, 0) behaves as
// Free(addr) and returns (0, true). If growth requires a fresh allocation
// and that allocation fails, the original block remains valid (possibly
// already grown by right-coalescing) and (0, false) is returned.
func (a *Allocator) Realloc(addr int64, n int) (newAddr int64, ok bool) {
	if addr == 0 {
		return a.Alloc(n)
	}
	if n == 0 {
		a.Free(addr)
		return 0, true
	}

	header := addr - wordSlot
	origBody, _ := readTag(a.mem, header)
	bodySize := origBody

	reqBody := align8(int64(n))
	if reqBody < minBodySize {
		reqBody = minBodySize
	}

	if reqBody > bodySize {
		if nextHeader := header + nodeSize(bodySize); nextHeader < a.brk() {
			rsize, rallocated := unpackSizeFlag(a.mem.ReadUint64(nextHeader))
			if !rallocated {
				a.tree.Remove(nextHeader)
				bodySize += rsize + 2*wordSlot
			}
		}
		writeTag(a.mem, header, bodySize, true)
	}

	if reqBody <= bodySize {
		if bodySize-reqBody >= MinBlock {
			remainderBody := bodySize - reqBody - 2*wordSlot
			writeTag(a.mem, header, reqBody, true)
			remainderHeader := header + nodeSize(reqBody)
			writeTag(a.mem, remainderHeader, remainderBody, false)
			a.tree.Add(remainderHeader)
		} else {
			writeTag(a.mem, header, bodySize, true)
		}
		return bodyAddr(header), true
	}

	newAddr, ok = a.Alloc(n)
	if !ok {
		return 0, false
	}

	copyLen := mathutil.MinInt64(origBody, int64(n))
	buf := make([]byte, copyLen)
	a.mem.ReadAt(bodyAddr(header), buf)
	a.mem.WriteAt(newAddr, buf)
	a.Free(addr)
	return newAddr, true
}
