/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package provider

import "github.com/pjanec/modulehost/ecs"

// replicaPool is a bounded MPMC pool of pre-registered replicas. A
// buffered channel gives us that without a custom lock-free stack: Pop
// never blocks (a non-blocking receive), Push never blocks past the
// pool's warmup capacity headroom since the channel is generously sized
// relative to
// concurrent acquirers.
type replicaPool struct {
	ch            chan *ecs.EntityRepository
	chunkCapacity int
	setup         SchemaSetup
}

func newReplicaPool(warmup, chunkCapacity int, setup SchemaSetup) *replicaPool {
	size := warmup * 4
	if size < 8 {
		size = 8
	}
	p := &replicaPool{ch: make(chan *ecs.EntityRepository, size), chunkCapacity: chunkCapacity, setup: setup}
	for i := 0; i < warmup; i++ {
		p.ch <- p.newReplica()
	}
	return p
}

func (p *replicaPool) newReplica() *ecs.EntityRepository {
	r := ecs.NewEntityRepository(p.chunkCapacity)
	if p.setup != nil {
		p.setup(r)
	}
	return r
}

// pop returns a pooled replica, creating one on the fly if the pool is
// momentarily empty.
func (p *replicaPool) pop() *ecs.EntityRepository {
	select {
	case r := <-p.ch:
		return r
	default:
		return p.newReplica()
	}
}

// push returns a replica to the pool, soft-clearing it first so the next
// acquirer sees no stale entities.
func (p *replicaPool) push(r *ecs.EntityRepository) {
	r.SoftClear()
	select {
	case p.ch <- r:
	default:
		// pool at capacity: drop the replica rather than block a releaser.
	}
}
