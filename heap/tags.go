// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Block layout and boundary-tag arithmetic: translating between a block's
// header address, its footer address, its body address and the
// (size, allocated) pair packed into the header/footer words.

package heap

const (
	// wordSlot is the width, in bytes, of one size-word: the aligned
	// storage for a machine word on the reference platform.
	wordSlot = 8

	// minBodySize is the smallest free-block body that can hold the
	// tree's three node words (left, right, height).
	minBodySize = 3 * wordSlot

	// MinBlock is the smallest legal node size: header + minBodySize +
	// footer.
	MinBlock = minBodySize + 2*wordSlot

	// sizeMask clears the low 3 reserved bits of a size-word, of which
	// only bit 0 (the allocated flag) is currently used.
	sizeMask = ^uint64(7)

	flagAllocated = uint64(1)
)

// align8 rounds n up to the next multiple of 8.
func align8(n int64) int64 {
	return (n + 7) &^ 7
}

// packSizeFlag packs a body size and an allocated flag into one header or
// footer word. size must already be 8-aligned.
func packSizeFlag(size int64, allocated bool) uint64 {
	w := uint64(size) & sizeMask
	if allocated {
		w |= flagAllocated
	}
	return w
}

// unpackSizeFlag is the inverse of packSizeFlag.
func unpackSizeFlag(word uint64) (size int64, allocated bool) {
	return int64(word & sizeMask), word&flagAllocated != 0
}

// bodyAddr returns the address of the payload/node-word region of the block
// whose header starts at header.
func bodyAddr(header int64) int64 {
	return header + wordSlot
}

// footerAddr returns the address of the footer word of a block given its
// header address and body size.
func footerAddr(header, bodySize int64) int64 {
	return header + wordSlot + bodySize
}

// headerAddr returns the address of the header word of a block given its
// footer address and body size — the inverse of footerAddr.
func headerAddr(footer, bodySize int64) int64 {
	return footer - bodySize - wordSlot
}

// nodeSize returns the total block size (header + body + footer) for a
// given body size.
func nodeSize(bodySize int64) int64 {
	return bodySize + 2*wordSlot
}

// payloadNodeSize returns the node size needed to hold n payload bytes,
// already rounded up to satisfy MinBlock.
func payloadNodeSize(n int) int64 {
	body := align8(int64(n))
	if body < minBodySize {
		body = minBodySize
	}
	return nodeSize(body)
}

// readTag reads the (bodySize, allocated) pair from the header word at
// header.
func readTag(m Memory, header int64) (bodySize int64, allocated bool) {
	return unpackSizeFlag(m.ReadUint64(header))
}

// writeTag writes the same (bodySize, allocated) pair to both the header
// and the footer of the block starting at header.
func writeTag(m Memory, header, bodySize int64, allocated bool) {
	w := packSizeFlag(bodySize, allocated)
	m.WriteUint64(header, w)
	m.WriteUint64(footerAddr(header, bodySize), w)
}
