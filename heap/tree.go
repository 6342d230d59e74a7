// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The free-block tree: a self-balancing (AVL) BST keyed by (body size,
// address), stored entirely inside the free blocks it indexes — there is no
// separate node allocation.
package heap

import "github.com/cznic/mathutil"

// tree is the free-block index. The zero value is an empty tree. A tree is
// only ever used internally by Allocator; its nodes live inside the body of
// whatever free block they index.
type tree struct {
	mem  Memory
	root int64 // 0 == empty
}

func newTree(mem Memory) *tree {
	return &tree{mem: mem}
}

// Field accessors. A free block's body holds, in order starting at
// bodyAddr(header): left child address, right child address, height.

func (t *tree) left(n int64) int64 {
	return int64(t.mem.ReadUint64(bodyAddr(n)))
}

func (t *tree) setLeft(n, v int64) {
	t.mem.WriteUint64(bodyAddr(n), uint64(v))
}

func (t *tree) right(n int64) int64 {
	return int64(t.mem.ReadUint64(bodyAddr(n) + wordSlot))
}

func (t *tree) setRight(n, v int64) {
	t.mem.WriteUint64(bodyAddr(n)+wordSlot, uint64(v))
}

func (t *tree) height(n int64) int64 {
	if n == 0 {
		return 0
	}
	return int64(t.mem.ReadUint64(bodyAddr(n) + 2*wordSlot))
}

func (t *tree) setHeight(n, h int64) {
	t.mem.WriteUint64(bodyAddr(n)+2*wordSlot, uint64(h))
}

// size reads n's current body size from its header tag. Precondition: n is
// currently tagged free with the size it should be keyed by.
func (t *tree) size(n int64) int64 {
	sz, _ := readTag(t.mem, n)
	return sz
}

func (t *tree) balance(n int64) int64 {
	return t.height(t.left(n)) - t.height(t.right(n))
}

func (t *tree) updateHeight(n int64) {
	t.setHeight(n, 1+mathutil.MaxInt64(t.height(t.left(n)), t.height(t.right(n))))
}

// rotateRight and rotateLeft rewrite only link fields of existing blocks;
// no node content is ever copied between blocks.

func (t *tree) rotateRight(x int64) int64 {
	l := t.left(x)
	t.setLeft(x, t.right(l))
	t.setRight(l, x)
	t.updateHeight(x)
	t.updateHeight(l)
	return l
}

func (t *tree) rotateLeft(x int64) int64 {
	r := t.right(x)
	t.setRight(x, t.left(r))
	t.setLeft(r, x)
	t.updateHeight(r)
	t.updateHeight(x)
	return r
}

// rebalance recomputes x's height and, if its balance factor is out of
// range, applies the appropriate single or double rotation.
func (t *tree) rebalance(x int64) int64 {
	t.updateHeight(x)
	bf := t.balance(x)
	switch {
	case bf > 1:
		if t.balance(t.left(x)) < 0 {
			t.setLeft(x, t.rotateLeft(t.left(x)))
		}
		return t.rotateRight(x)
	case bf < -1:
		if t.balance(t.right(x)) > 0 {
			t.setRight(x, t.rotateRight(t.right(x)))
		}
		return t.rotateLeft(x)
	default:
		return x
	}
}

// less orders two (size, address) keys: size first, address breaks ties.
func less(sizeA, addrA, sizeB, addrB int64) bool {
	if sizeA != sizeB {
		return sizeA < sizeB
	}
	return addrA < addrB
}

// Add inserts block, identified by its header address, into the tree.
// Precondition: block is not currently in the tree and its header encodes
// its current body size.
func (t *tree) Add(block int64) {
	t.setLeft(block, 0)
	t.setRight(block, 0)
	t.setHeight(block, 1)
	t.root = t.insert(t.root, block)
}

func (t *tree) insert(root, node int64) int64 {
	if root == 0 {
		return node
	}

	ns, rs := t.size(node), t.size(root)
	if less(ns, node, rs, root) {
		t.setLeft(root, t.insert(t.left(root), node))
	} else {
		t.setRight(root, t.insert(t.right(root), node))
	}
	return t.rebalance(root)
}

// Remove deletes block, identified by the pair (its current body size,
// its address), from the tree. Precondition: block is currently in the
// tree.
func (t *tree) Remove(block int64) {
	sz := t.size(block)
	t.root = t.remove(t.root, sz, block)
}

func (t *tree) remove(root, sz, addr int64) int64 {
	if root == 0 {
		return 0
	}

	rs := t.size(root)
	switch {
	case less(sz, addr, rs, root):
		t.setLeft(root, t.remove(t.left(root), sz, addr))
	case less(rs, root, sz, addr):
		t.setRight(root, t.remove(t.right(root), sz, addr))
	default:
		l, r := t.left(root), t.right(root)
		switch {
		case l == 0:
			return r
		case r == 0:
			return l
		default:
			succ := r
			for t.left(succ) != 0 {
				succ = t.left(succ)
			}
			newRight := t.remove(r, t.size(succ), succ)
			t.setLeft(succ, l)
			t.setRight(succ, newRight)
			root = succ
		}
	}
	return t.rebalance(root)
}

// Pop removes and returns the BST-smallest free block whose body size is >=
// minSize. It returns (0, false) if no free block is large enough.
func (t *tree) Pop(minSize int64) (block int64, ok bool) {
	var found int64
	t.root, found = t.pop(t.root, minSize)
	return found, found != 0
}

func (t *tree) pop(root, minSize int64) (newRoot, found int64) {
	if root == 0 {
		return 0, 0
	}

	rs := t.size(root)
	if rs < minSize {
		// Every key in the left subtree is <= rs < minSize, so only the
		// right subtree can hold a candidate.
		newRight, found := t.pop(t.right(root), minSize)
		if found == 0 {
			return root, 0
		}
		t.setRight(root, newRight)
		return t.rebalance(root), found
	}

	// root qualifies; look for a closer (still >= minSize) candidate on
	// the left before settling for root itself.
	if newLeft, found := t.pop(t.left(root), minSize); found != 0 {
		t.setLeft(root, newLeft)
		return t.rebalance(root), found
	}

	// root is the answer: detach it and reshape the subtree without it.
	l, r := t.left(root), t.right(root)
	switch {
	case l == 0:
		return r, root
	case r == 0:
		return l, root
	default:
		succ := r
		for t.left(succ) != 0 {
			succ = t.left(succ)
		}
		newRight := t.remove(r, t.size(succ), succ)
		t.setLeft(succ, l)
		t.setRight(succ, newRight)
		return t.rebalance(succ), root
	}
}

// Empty reports whether the tree holds no free blocks.
func (t *tree) Empty() bool { return t.root == 0 }
