// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import "fmt"

// CorruptionKind enumerates the distinct ways the heap or the free tree can
// be found inconsistent by Check or by the invariant walker diagnostics use.
type CorruptionKind int

// Corruption kinds reported via ErrCorrupt.Kind.
const (
	ErrBadTag          CorruptionKind = iota // header/footer size or flag mismatch
	ErrNotMultipleOf8                        // node size not a multiple of 8
	ErrTooSmall                              // node size below MinBlock
	ErrAdjacentFree                          // two physically adjacent free blocks
	ErrNotInTree                             // a free block missing from the tree
	ErrUnbalanced                            // |h(left) - h(right)| > 1 somewhere
	ErrBadHeight                             // stored height != recomputed height
	ErrOutOfOrder                            // in-order walk not strictly increasing
	ErrSelfCycle                             // a tree node that is its own child
	ErrCoverageGap                           // walk from base to brk did not land on brk
)

func (k CorruptionKind) String() string {
	switch k {
	case ErrBadTag:
		return "header/footer tag mismatch"
	case ErrNotMultipleOf8:
		return "block size not a multiple of 8"
	case ErrTooSmall:
		return "block smaller than MinBlock"
	case ErrAdjacentFree:
		return "adjacent free blocks not coalesced"
	case ErrNotInTree:
		return "free block missing from tree"
	case ErrUnbalanced:
		return "AVL balance factor out of range"
	case ErrBadHeight:
		return "stored height does not match recomputed height"
	case ErrOutOfOrder:
		return "tree in-order walk is not strictly increasing"
	case ErrSelfCycle:
		return "tree node is its own child"
	case ErrCoverageGap:
		return "block walk did not end exactly at brk"
	default:
		return "unknown corruption"
	}
}

// ErrInvalid reports a precondition violation by the caller: a bad argument
// or a call made against the allocator's documented contract.
type ErrInvalid struct {
	Msg string
	Arg interface{}
}

func (e *ErrInvalid) Error() string {
	return fmt.Sprintf("%s: %v", e.Msg, e.Arg)
}

// ErrCorrupt reports a structural inconsistency found in the heap or the
// free tree by Check or by the invariant walker.
type ErrCorrupt struct {
	Kind CorruptionKind
	Addr int64
	Arg  int64
	Arg2 int64
	More error
}

func (e *ErrCorrupt) Error() string {
	if e.More != nil {
		return fmt.Sprintf("corrupt heap at %#x: %s: %s", e.Addr, e.Kind, e.More)
	}
	return fmt.Sprintf("corrupt heap at %#x: %s (arg=%d arg2=%d)", e.Addr, e.Kind, e.Arg, e.Arg2)
}

func (e *ErrCorrupt) Unwrap() error { return e.More }

// ErrOutOfMemory reports that the backing Heap could not be extended.
// Alloc and Realloc never return this value directly — they collapse any
// extension failure to a null (address-0, false) result — but Heap.Extend
// implementations use it to report the underlying cause.
type ErrOutOfMemory struct {
	Requested int64
	More      error
}

func (e *ErrOutOfMemory) Error() string {
	if e.More != nil {
		return fmt.Sprintf("out of memory: could not extend heap by %d bytes: %s", e.Requested, e.More)
	}
	return fmt.Sprintf("out of memory: could not extend heap by %d bytes", e.Requested)
}

func (e *ErrOutOfMemory) Unwrap() error { return e.More }
