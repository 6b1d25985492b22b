/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package provider

import (
	"sync"

	"github.com/pjanec/modulehost/ecs"
	"github.com/pjanec/modulehost/event"
)

// Pooled is the pooled filtered snapshot ("slow") provider: a
// thread-safe pool of pre-registered replicas, synchronised only against
// a subset of columns, for modules running below simulation
// rate. Addresses are not stable across acquisitions: chunks are reused
// but may be reassigned to a different entity index.
type Pooled struct {
	mask ecs.BitMask256
	pool *replicaPool
	acc  *event.Accumulator

	mu           sync.Mutex
	lastLive     *ecs.EntityRepository
	lastSeenTick uint64
}

var _ Provider = (*Pooled)(nil)

// NewPooled creates a pooled provider. warmup pre-allocates that many
// replicas; acc may be nil if this provider's mask has no event types to
// deliver via accumulator (components-only consumers).
func NewPooled(mask ecs.BitMask256, warmup, chunkCapacity int, acc *event.Accumulator, setup SchemaSetup) *Pooled {
	return &Pooled{mask: mask, pool: newReplicaPool(warmup, chunkCapacity, setup), acc: acc}
}

// Refresh records the current live world. The pooled provider syncs
// lazily at acquire time rather than eagerly every frame, since a
// sub-frame-rate module may not acquire on every frame.
func (p *Pooled) Refresh(live *ecs.EntityRepository) {
	p.mu.Lock()
	p.lastLive = live
	p.mu.Unlock()
}

// AcquireView pops a replica, syncs it against live restricted to mask,
// flushes any accumulated events since this provider's last-seen tick,
// and returns the replica.
func (p *Pooled) AcquireView() *ecs.EntityRepository {
	p.mu.Lock()
	live, since := p.lastLive, p.lastSeenTick
	p.mu.Unlock()

	r := p.pool.pop()
	r.SyncFrom(live, &p.mask)
	if p.acc != nil {
		_ = p.acc.FlushToReplica(r.Events(), since)
	}

	p.mu.Lock()
	p.lastSeenTick = live.CurrentTick()
	p.mu.Unlock()
	return r
}

// ReleaseView soft-clears the replica and returns it to the pool.
func (p *Pooled) ReleaseView(r *ecs.EntityRepository) {
	p.pool.push(r)
}
