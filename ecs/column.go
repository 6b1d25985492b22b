/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package ecs

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/pjanec/modulehost/internal/debug"
)

// chunk is a contiguous array of T slots: the unit of dirty tracking and
// memcpy. version is incremented on every write to any slot
// in the chunk. The chunk itself is never moved once allocated: Column
// holds a slice of *chunk, not a slice of chunk, so span() pointers stay
// stable across the lifetime of the chunk.
type chunk[T any] struct {
	slots     []T
	version   atomic.Uint64
	committed bool
}

// columnStore is the type-erased face of a Column[T], letting the
// repository hold heterogeneous component columns in one registry keyed
// by ComponentID.
type columnStore interface {
	ensureChunkAllocated(chunkIdx int)
	numChunks() int
	chunkCapacity() int
	version(chunkIdx int) uint64
	committed(chunkIdx int) bool
	// syncFrom copies chunkIdx from src (same concrete type) into this
	// column if src's version is newer, and reports whether it copied.
	syncFrom(src columnStore, chunkIdx int) bool
}

// Column is the chunked columnar store for one unmanaged component type
// T. Slot i lives in chunk i/capacity at offset i%capacity.
type Column[T any] struct {
	mu       sync.Mutex // guards chunks slice growth only, never per-slot writes
	capacity int
	chunks   []*chunk[T]
}

// NewColumn creates an empty column with the given per-chunk capacity.
func NewColumn[T any](capacity int) *Column[T] {
	debug.Assert(capacity > 0, "chunk capacity must be positive")
	return &Column[T]{capacity: capacity}
}

func (c *Column[T]) chunkCapacity() int { return c.capacity }

func (c *Column[T]) numChunks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chunks)
}

// ensureChunkAllocated lazily allocates chunk chunkIdx, one time.
func (c *Column[T]) ensureChunkAllocated(chunkIdx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.chunks) <= chunkIdx {
		c.chunks = append(c.chunks, nil)
	}
	ch := c.chunks[chunkIdx]
	if ch == nil {
		ch = &chunk[T]{slots: make([]T, c.capacity)}
		c.chunks[chunkIdx] = ch
	}
	ch.committed = true
}

func (c *Column[T]) chunkAt(chunkIdx int) *chunk[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if chunkIdx >= len(c.chunks) {
		return nil
	}
	return c.chunks[chunkIdx]
}

// Write writes v to slot, bumping the owning chunk's version.
func (c *Column[T]) Write(slot int, v T) {
	idx, off := slot/c.capacity, slot%c.capacity
	c.ensureChunkAllocated(idx)
	ch := c.chunkAt(idx)
	ch.slots[off] = v
	ch.version.Inc()
}

// Read returns a pointer to slot's value, unchecked: the caller must have
// already verified the component mask.
func (c *Column[T]) Read(slot int) *T {
	idx, off := slot/c.capacity, slot%c.capacity
	ch := c.chunkAt(idx)
	debug.Assert(ch != nil, "read of unallocated chunk")
	return &ch.slots[off]
}

// Span returns chunkIdx as a contiguous slice of length capacity. The
// pointer backing the slice is stable for the chunk's lifetime.
func (c *Column[T]) Span(chunkIdx int) []T {
	ch := c.chunkAt(chunkIdx)
	if ch == nil {
		return nil
	}
	return ch.slots
}

func (c *Column[T]) version(chunkIdx int) uint64 {
	ch := c.chunkAt(chunkIdx)
	if ch == nil {
		return 0
	}
	return ch.version.Load()
}

func (c *Column[T]) committed(chunkIdx int) bool {
	ch := c.chunkAt(chunkIdx)
	return ch != nil && ch.committed
}

// syncFrom copies chunkIdx from src into c only when the source chunk's
// version is strictly newer, so clean chunks cost no copy.
func (c *Column[T]) syncFrom(src columnStore, chunkIdx int) bool {
	s, ok := src.(*Column[T])
	debug.Assert(ok, "syncFrom: mismatched column type")
	sch := s.chunkAt(chunkIdx)
	if sch == nil || !sch.committed {
		return false
	}
	srcVer := sch.version.Load()
	c.ensureChunkAllocated(chunkIdx)
	dch := c.chunkAt(chunkIdx)
	if dch.version.Load() >= srcVer && dch.committed {
		return false
	}
	copy(dch.slots, sch.slots)
	dch.version.Store(srcVer)
	return true
}
