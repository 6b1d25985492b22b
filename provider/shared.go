/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package provider

import (
	"sync"

	"github.com/pjanec/modulehost/ecs"
	"github.com/pjanec/modulehost/event"
)

// Shared is the shared reference-counted snapshot ("convoy") provider:
// several modules at the same frequency borrow one
// filtered snapshot. Refresh only marks the provider dirty; the actual
// sync happens lazily on the first AcquireView of the frame. Later
// acquires in the same frame just bump the refcount and hand back the
// same view.
type Shared struct {
	mask ecs.BitMask256
	pool *replicaPool
	acc  *event.Accumulator

	mu           sync.Mutex
	live         *ecs.EntityRepository
	dirty        bool
	lastSeenTick uint64

	current  *ecs.EntityRepository
	refcount int

	// outstanding holds refcounts for views superseded by a newer current
	// while still borrowed; their last ReleaseView returns them to the pool
	// instead of leaving them as the frame's recyclable.
	outstanding map[*ecs.EntityRepository]int
}

var _ Provider = (*Shared)(nil)

// NewSharedUnion creates a shared provider whose mask is the caller-
// supplied union of every participating module's required columns.
func NewSharedUnion(unionMask ecs.BitMask256, warmup, chunkCapacity int, acc *event.Accumulator, setup SchemaSetup) *Shared {
	return &Shared{
		mask:        unionMask,
		pool:        newReplicaPool(warmup, chunkCapacity, setup),
		acc:         acc,
		outstanding: make(map[*ecs.EntityRepository]int),
	}
}

// Refresh marks the provider dirty for the next AcquireView; it performs
// no synchronisation itself.
func (s *Shared) Refresh(live *ecs.EntityRepository) {
	s.mu.Lock()
	s.live = live
	s.dirty = true
	s.mu.Unlock()
}

// AcquireView syncs a fresh replica on the first call after Refresh, then
// returns the same view (with an incremented refcount) to every
// subsequent caller until the next Refresh.
func (s *Shared) AcquireView() *ecs.EntityRepository {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty {
		old, oldRefc := s.current, s.refcount

		r := s.pool.pop()
		r.SyncFrom(s.live, &s.mask)
		if s.acc != nil {
			_ = s.acc.FlushToReplica(r.Events(), s.lastSeenTick)
		}
		s.lastSeenTick = s.live.CurrentTick()

		s.current = r
		s.refcount = 0
		s.dirty = false

		if old != nil {
			if oldRefc == 0 {
				s.pool.push(old)
			} else {
				s.outstanding[old] = oldRefc
			}
		}
	}

	s.refcount++
	return s.current
}

// ReleaseView decrements the refcount for view. If view is the current
// recyclable, zero just leaves it retained for later acquires this frame.
// If view was superseded while still borrowed, zero returns it to the
// pool.
func (s *Shared) ReleaseView(view *ecs.EntityRepository) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if view == s.current {
		s.refcount--
		return
	}
	if cnt, ok := s.outstanding[view]; ok {
		cnt--
		if cnt <= 0 {
			delete(s.outstanding, view)
			s.pool.push(view)
		} else {
			s.outstanding[view] = cnt
		}
	}
}
