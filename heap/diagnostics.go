// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Diagnostics: a test-only preorder walk/dump pair, plus Check and Stats,
// operations a host can call defensively. Check walks the heap's blocks and
// then the free tree in order (checkSubtree); Stats walks only the heap's
// blocks. Each of these walks is implemented separately.
package heap

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cznic/mathutil"
	"github.com/cznic/sortutil"
)

// Stats reports coarse usage statistics for the heap.
type Stats struct {
	TotalBytes  int64
	AllocBytes  int64
	FreeBytes   int64
	AllocBlocks int
	FreeBlocks  int
}

// Stats walks the heap once and reports current usage. It does not mutate
// anything and never fails: it trusts the boundary tags.
func (a *Allocator) Stats() Stats {
	st := Stats{TotalBytes: a.HeapSize()}
	for h, brk := a.base, a.brk(); h < brk; {
		body, allocated := readTag(a.mem, h)
		if allocated {
			st.AllocBytes += body
			st.AllocBlocks++
		} else {
			st.FreeBytes += body
			st.FreeBlocks++
		}
		h += nodeSize(body)
	}
	return st
}

// Check walks the heap and the free tree and returns the first structural
// violation found — a bad or mismatched boundary tag, two physically
// adjacent free blocks, a tree node whose stored height or balance factor
// doesn't match reality, an out-of-order key, or a free block missing from
// (or extra in) the tree — or nil if none is found.
func (a *Allocator) Check() error {
	freeInHeap := map[int64]bool{}
	prevAllocated := true
	brk := a.brk()

	for h := a.base; h < brk; {
		bodySize, allocated := readTag(a.mem, h)
		ns := nodeSize(bodySize)
		if ns%8 != 0 || ns < MinBlock {
			return &ErrCorrupt{Kind: ErrTooSmall, Addr: h, Arg: ns}
		}

		footer := footerAddr(h, bodySize)
		fBody, fAlloc := unpackSizeFlag(a.mem.ReadUint64(footer))
		if fBody != bodySize || fAlloc != allocated {
			return &ErrCorrupt{Kind: ErrBadTag, Addr: h}
		}

		if !allocated {
			if !prevAllocated {
				return &ErrCorrupt{Kind: ErrAdjacentFree, Addr: h}
			}
			freeInHeap[h] = true
		}
		prevAllocated = allocated

		h += ns
		if h > brk {
			return &ErrCorrupt{Kind: ErrCoverageGap, Addr: h}
		}
	}

	treeNodes := map[int64]bool{}
	var keys [][2]int64 // (size, addr), in-order
	if _, err := a.checkSubtree(a.tree.root, treeNodes, &keys); err != nil {
		return err
	}

	sizes := make(sortutil.Int64Slice, len(keys))
	for i, k := range keys {
		sizes[i] = k[0]
	}
	if !sort.IsSorted(sizes) {
		return &ErrCorrupt{Kind: ErrOutOfOrder, Addr: a.tree.root}
	}
	for i := 1; i < len(keys); i++ {
		if !less(keys[i-1][0], keys[i-1][1], keys[i][0], keys[i][1]) {
			return &ErrCorrupt{Kind: ErrOutOfOrder, Addr: keys[i][1]}
		}
	}

	if len(treeNodes) != len(freeInHeap) {
		return &ErrCorrupt{Kind: ErrNotInTree, Addr: a.base}
	}
	for h := range freeInHeap {
		if !treeNodes[h] {
			return &ErrCorrupt{Kind: ErrNotInTree, Addr: h}
		}
	}

	return nil
}

// checkSubtree recurses over the tree, detecting self-cycles, collecting
// an in-order (size, addr) key list, and verifying every node's stored
// height and balance factor. It returns the recomputed height of n.
func (a *Allocator) checkSubtree(n int64, seen map[int64]bool, keys *[][2]int64) (height int64, err error) {
	if n == 0 {
		return 0, nil
	}
	if seen[n] {
		return 0, &ErrCorrupt{Kind: ErrSelfCycle, Addr: n}
	}
	seen[n] = true

	lh, err := a.checkSubtree(a.tree.left(n), seen, keys)
	if err != nil {
		return 0, err
	}

	*keys = append(*keys, [2]int64{a.tree.size(n), n})

	rh, err := a.checkSubtree(a.tree.right(n), seen, keys)
	if err != nil {
		return 0, err
	}

	wantHeight := 1 + mathutil.MaxInt64(lh, rh)
	if got := a.tree.height(n); got != wantHeight {
		return 0, &ErrCorrupt{Kind: ErrBadHeight, Addr: n, Arg: got, Arg2: wantHeight}
	}
	if bf := lh - rh; bf > 1 || bf < -1 {
		return 0, &ErrCorrupt{Kind: ErrUnbalanced, Addr: n, Arg: lh, Arg2: rh}
	}

	return wantHeight, nil
}

// DebugSilent preorder-walks the free tree, returning -1 if a self-cycle
// is detected (a node that is its own child), otherwise the node count.
// It never mutates state.
func (a *Allocator) DebugSilent() int {
	visited := map[int64]bool{}
	count := 0
	cyclic := false

	var walk func(n int64)
	walk = func(n int64) {
		if n == 0 || cyclic {
			return
		}
		if visited[n] {
			cyclic = true
			return
		}
		visited[n] = true
		count++
		walk(a.tree.left(n))
		walk(a.tree.right(n))
	}
	walk(a.tree.root)

	if cyclic {
		return -1
	}
	return count
}

// DebugDump writes an indented preorder dump of (size, depth) for each
// free-tree node to w.
func (a *Allocator) DebugDump(w io.Writer) {
	var walk func(n int64, depth int)
	walk = func(n int64, depth int) {
		if n == 0 {
			return
		}
		fmt.Fprintf(w, "%s(%d, %d)\n", strings.Repeat("  ", depth), a.tree.size(n), depth)
		walk(a.tree.left(n), depth+1)
		walk(a.tree.right(n), depth+1)
	}
	walk(a.tree.root, 0)
}
