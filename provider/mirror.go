/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package provider

import (
	"sync"

	"github.com/pjanec/modulehost/ecs"
	"github.com/pjanec/modulehost/event"
)

// Mirror is the persistent-mirror ("fast") provider: one replica,
// allocated once, refreshed with the full component mask every frame. AcquireView is zero-copy and zero-allocation; ReleaseView is a
// no-op since the replica's addresses are stable across frames.
type Mirror struct {
	replica *ecs.EntityRepository
	acc     *event.Accumulator

	mu           sync.Mutex
	lastSeenTick uint64
}

var _ Provider = (*Mirror)(nil)

// NewMirror creates a persistent mirror, applying setup to register the
// replica's schema before first use. acc may be nil if no event type ever
// needs to reach this replica.
func NewMirror(chunkCapacity int, acc *event.Accumulator, setup SchemaSetup) *Mirror {
	replica := ecs.NewEntityRepository(chunkCapacity)
	if setup != nil {
		setup(replica)
	}
	return &Mirror{replica: replica, acc: acc}
}

// AcquireView returns the replica directly.
func (m *Mirror) AcquireView() *ecs.EntityRepository { return m.replica }

// ReleaseView is a no-op for the persistent mirror.
func (m *Mirror) ReleaseView(*ecs.EntityRepository) {}

// Refresh mirrors every registered column from live and, since the mirror
// runs every frame, delivers every event captured since its previous
// refresh.
func (m *Mirror) Refresh(live *ecs.EntityRepository) {
	m.replica.SyncFrom(live, nil)
	if m.acc == nil {
		return
	}
	m.mu.Lock()
	since := m.lastSeenTick
	m.mu.Unlock()
	_ = m.acc.FlushToReplica(m.replica.Events(), since)
	m.mu.Lock()
	m.lastSeenTick = live.CurrentTick()
	m.mu.Unlock()
}
