// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package heap implements the free-block index and boundary-tag coalescing
layer of a single-threaded, monotonically-growing dynamic memory allocator.

The allocator manages a heap obtained from a Memory, an address-oriented
heap-provider abstraction that grows but never shrinks. The heap is tiled
exactly by blocks; a block is a contiguous run of 8-aligned bytes bracketed
by a header word and a duplicate footer word, each packing a body size and
an allocated flag (see tags.go).

Free blocks are indexed by a self-balancing (AVL) binary search tree keyed
by (body size, address), stored entirely inside the free blocks themselves
— there is no separate per-node allocation (see tree.go). Allocator (see
allocator.go) glues the tree and the tag layer together: Alloc splits an
oversized free block or extends the heap (absorbing a free tail block
first); Free coalesces with both physical neighbours before reinserting
into the tree; Realloc attempts in-place growth by absorbing the right
neighbour before falling back to allocate-copy-free.

This package is not safe for concurrent use.
*/
package heap
