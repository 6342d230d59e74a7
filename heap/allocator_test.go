// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"bytes"
	"flag"
	"math/rand"
	"testing"
)

var stressN = flag.Int("N", 256, "Allocator random stress test operation count")

// checkedAllocator is a paranoid Allocator that re-verifies every
// invariant after every mutating call.
type checkedAllocator struct {
	*Allocator
	t *testing.T
}

func newChecked(t *testing.T, mem Memory) *checkedAllocator {
	t.Helper()
	a, err := NewAllocator(mem)
	if err != nil {
		t.Fatal(err)
	}
	c := &checkedAllocator{a, t}
	c.check()
	return c
}

func (c *checkedAllocator) check() {
	c.t.Helper()
	if err := c.Check(); err != nil {
		c.t.Fatal(err)
	}
}

func (c *checkedAllocator) alloc(n int) int64 {
	c.t.Helper()
	addr, ok := c.Alloc(n)
	if !ok {
		c.t.Fatalf("alloc(%d): unexpected failure", n)
	}
	c.check()
	return addr
}

func (c *checkedAllocator) free(addr int64) {
	c.t.Helper()
	c.Free(addr)
	c.check()
}

func (c *checkedAllocator) realloc(addr int64, n int) int64 {
	c.t.Helper()
	newAddr, ok := c.Realloc(addr, n)
	if !ok {
		c.t.Fatalf("realloc(%#x, %d): unexpected failure", addr, n)
	}
	c.check()
	return newAddr
}

// seedFreeBlock grows mem by exactly nodeSize(body) bytes and seeds a
// single free block spanning the whole allocator heap, bypassing Alloc —
// used to set up scenario 2/3-style "pre-seeded" tests without depending
// on Alloc's own extension behaviour.
func seedFreeBlock(t *testing.T, mem Memory, base, body int64) {
	t.Helper()
	if err := mem.Extend(nodeSize(body)); err != nil {
		t.Fatal(err)
	}
	writeTag(mem, base, body, false)
}

func readBlockTag(t *testing.T, mem Memory, addr int64) (body int64, allocated bool) {
	t.Helper()
	return readTag(mem, addr-wordSlot)
}

func TestBasicAllocFree(t *testing.T) {
	mem := NewByteArena(0)
	a := newChecked(t, mem)

	p := a.alloc(16)
	body, allocated := readBlockTag(t, mem, p)
	if !allocated {
		t.Fatal("expected allocated flag")
	}
	if want := int64(minBodySize); body != want {
		// align8(16) == 16 < minBodySize, so the body is rounded up to
		// the floor that keeps every block able to host a tree node.
		t.Fatalf("body = %d, want %d", body, want)
	}

	a.free(p)
	if n := a.DebugSilent(); n != 1 {
		t.Fatalf("DebugSilent() = %d, want 1", n)
	}
}

func TestSplitOnAlloc(t *testing.T) {
	mem := NewByteArena(0)
	base := int64(0)
	seedFreeBlock(t, mem, base, 128)

	a, err := NewAllocator(mem)
	if err != nil {
		t.Fatal(err)
	}
	a.tree.Add(base)
	c := &checkedAllocator{a, t}
	c.check()

	p := c.alloc(16)
	if p != base+wordSlot {
		t.Fatalf("payload addr = %#x, want %#x", p, base+wordSlot)
	}

	body, allocated := readBlockTag(t, mem, p)
	if !allocated || body != minBodySize {
		t.Fatalf("allocated block: body=%d allocated=%v", body, allocated)
	}

	remainderHeader := base + nodeSize(minBodySize)
	rbody, rallocated := readTag(mem, remainderHeader)
	if rallocated {
		t.Fatal("remainder should be free")
	}
	wantRemainder := nodeSize(128) - nodeSize(minBodySize) - 2*wordSlot
	if rbody != wantRemainder {
		t.Fatalf("remainder body = %d, want %d", rbody, wantRemainder)
	}
	if n := c.DebugSilent(); n != 1 {
		t.Fatalf("tree should hold exactly the remainder, got %d nodes", n)
	}
}

func TestNoSplitBelowThreshold(t *testing.T) {
	mem := NewByteArena(0)
	base := int64(0)
	seedFreeBlock(t, mem, base, 128)

	a, err := NewAllocator(mem)
	if err != nil {
		t.Fatal(err)
	}
	a.tree.Add(base)
	c := &checkedAllocator{a, t}
	c.check()

	// 96 payload bytes need a 112-byte node; 144 (the pre-seeded node
	// size) minus 112 is 32, under MinBlock (40), so Alloc must keep the
	// whole block rather than split off an unusable remainder.
	p := c.alloc(96)
	body, allocated := readBlockTag(t, mem, p)
	if !allocated || body != 128 {
		t.Fatalf("body=%d allocated=%v, want whole 128-body block kept", body, allocated)
	}
	if n := c.DebugSilent(); n != 0 {
		t.Fatalf("tree should be empty, got %d nodes", n)
	}
}

func TestCoalesceBothNeighboursOnFree(t *testing.T) {
	mem := NewByteArena(0)
	a := newChecked(t, mem)

	p1 := a.alloc(16)
	p2 := a.alloc(16)
	p3 := a.alloc(16)

	a.free(p1)
	a.free(p3)
	a.free(p2)

	if n := a.DebugSilent(); n != 1 {
		t.Fatalf("expected a single fused free block, got %d nodes", n)
	}

	body, allocated := readBlockTag(t, mem, p1)
	if allocated {
		t.Fatal("fused block must be free")
	}
	want := 3*int64(minBodySize) + 2*2*wordSlot
	if body != want {
		t.Fatalf("fused body = %d, want %d", body, want)
	}
}

func TestReallocInPlaceGrowWithSplit(t *testing.T) {
	mem := NewByteArena(0)
	a := newChecked(t, mem)

	p := a.alloc(16)
	p2 := a.alloc(80)
	a.free(p2)

	payload := []byte("0123456789012345") // 16 bytes, matches the original alloc
	mem.WriteAt(p, payload)

	q := a.realloc(p, 32)
	if q != p {
		t.Fatalf("in-place growth must keep the address: got %#x want %#x", q, p)
	}

	body, allocated := readBlockTag(t, mem, q)
	if !allocated || body != 32 {
		t.Fatalf("grown block: body=%d allocated=%v, want body=32", body, allocated)
	}

	got := make([]byte, len(payload))
	mem.ReadAt(q, got)
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload not preserved across in-place growth: got %q want %q", got, payload)
	}

	if n := a.DebugSilent(); n != 1 {
		t.Fatalf("expected the split-off remainder in the tree, got %d nodes", n)
	}
}

func TestReallocFallsBackToAllocCopyFree(t *testing.T) {
	mem := NewByteArena(0)
	a := newChecked(t, mem)

	p1 := a.alloc(16)
	p2 := a.alloc(16) // occupies the right neighbour, blocking in-place growth
	_ = p2

	payload := []byte("0123456789012345")
	mem.WriteAt(p1, payload)

	q := a.realloc(p1, 200)
	if q == p1 {
		t.Fatal("expected a relocation, since the right neighbour is allocated")
	}

	got := make([]byte, len(payload))
	mem.ReadAt(q, got)
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload not preserved across relocation: got %q want %q", got, payload)
	}
}

func TestReallocZeroIsFree(t *testing.T) {
	mem := NewByteArena(0)
	a := newChecked(t, mem)

	p := a.alloc(16)
	q := a.realloc(p, 0)
	if q != 0 {
		t.Fatalf("realloc(p, 0) must return 0, got %#x", q)
	}
	if n := a.DebugSilent(); n != 1 {
		t.Fatalf("freed block must land in the tree, got %d nodes", n)
	}
}

func TestReallocNilIsAlloc(t *testing.T) {
	mem := NewByteArena(0)
	a := newChecked(t, mem)

	p := a.realloc(0, 16)
	if p == 0 {
		t.Fatal("realloc(0, n) must behave as alloc(n)")
	}
}

func TestFreeNilIsNoop(t *testing.T) {
	mem := NewByteArena(0)
	a := newChecked(t, mem)
	a.free(0) // must not panic or corrupt anything
}

// cappedArena wraps a ByteArena with a hard ceiling on how large it may
// grow, used to simulate heap-provider exhaustion.
type cappedArena struct {
	*ByteArena
	max int64
}

func (c *cappedArena) Extend(n int64) error {
	if c.Size()+n > c.max {
		return &ErrOutOfMemory{Requested: n}
	}
	return c.ByteArena.Extend(n)
}

func TestOutOfMemoryThenRecovery(t *testing.T) {
	mem := &cappedArena{ByteArena: NewByteArena(0), max: 50}
	a := newChecked(t, mem)

	if _, ok := a.Alloc(48); ok {
		t.Fatal("expected Alloc(48) to fail: its 64-byte node exceeds the 50-byte cap")
	}
	if mem.Size() != 0 {
		t.Fatalf("heap must be unchanged after a failed Alloc, size=%d", mem.Size())
	}

	p := a.alloc(16) // 40-byte node fits under the 50-byte cap
	if p == 0 {
		t.Fatal("expected the smaller allocation to succeed")
	}
}

func TestRoundTripRestoresSingleFreeBlock(t *testing.T) {
	mem := NewByteArena(0)
	a := newChecked(t, mem)

	p := a.alloc(100)
	a.free(p)

	st := a.Stats()
	if st.AllocBlocks != 0 || st.FreeBlocks != 1 {
		t.Fatalf("Stats after alloc-then-free round-trip: %+v, want 0 alloc / 1 free block", st)
	}
	if st.FreeBytes+2*wordSlot != st.TotalBytes {
		t.Fatalf("Stats: free bytes %d + overhead should cover the whole heap %d", st.FreeBytes, st.TotalBytes)
	}
}

func TestDebugDumpFormat(t *testing.T) {
	mem := NewByteArena(0)
	a := newChecked(t, mem)

	p1 := a.alloc(16)
	p2 := a.alloc(16)
	_ = p2
	a.free(p1)

	var buf bytes.Buffer
	a.DebugDump(&buf)
	if buf.Len() == 0 {
		t.Fatal("expected non-empty dump for a non-empty tree")
	}
}

func TestDebugSilentDoesNotMutate(t *testing.T) {
	mem := NewByteArena(0)
	a := newChecked(t, mem)

	p := a.alloc(16)
	a.free(p)

	before := a.Stats()
	a.DebugSilent()
	a.DebugSilent()
	after := a.Stats()
	if before != after {
		t.Fatalf("DebugSilent must not mutate state: before=%+v after=%+v", before, after)
	}
}

// TestRandomStress exercises alloc/free/realloc in random order, checking
// every invariant after every call.
func TestRandomStress(t *testing.T) {
	mem := NewByteArena(0)
	a := newChecked(t, mem)
	rng := rand.New(rand.NewSource(7))

	live := map[int64]int{} // addr -> payload size
	for i := 0; i < *stressN; i++ {
		switch {
		case len(live) == 0 || rng.Intn(3) != 0:
			n := rng.Intn(200)
			p := a.alloc(n)
			live[p] = n
		case rng.Intn(2) == 0:
			for addr := range live {
				a.free(addr)
				delete(live, addr)
				break
			}
		default:
			for addr, oldN := range live {
				newN := rng.Intn(300)
				q := a.realloc(addr, newN)
				delete(live, addr)
				if q != 0 {
					live[q] = newN
				}
				_ = oldN
				break
			}
		}
	}

	for addr := range live {
		a.free(addr)
	}
	if n := a.Stats().AllocBlocks; n != 0 {
		t.Fatalf("%d blocks still allocated after draining", n)
	}
}
