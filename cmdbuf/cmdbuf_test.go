/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package cmdbuf_test

import (
	"testing"

	"github.com/pjanec/modulehost/cmdbuf"
	"github.com/pjanec/modulehost/ecs"
	"github.com/pjanec/modulehost/event"
)

type tag struct{ N int }

const (
	compTag ecs.ComponentID = 1
	evMark  event.ID        = 1
)

func newRepo(t *testing.T) *ecs.EntityRepository {
	t.Helper()
	repo := ecs.NewEntityRepository(4)
	if _, err := ecs.RegisterComponent[tag](repo, compTag, ecs.Persistent, 4); err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}
	if _, err := ecs.RegisterEventType[tag](repo, nil, evMark, event.Persistent); err != nil {
		t.Fatalf("RegisterEventType: %v", err)
	}
	return repo
}

func TestPlaybackCreateThenSetIsVisibleSameFrame(t *testing.T) {
	repo := newRepo(t)
	buf := cmdbuf.NewBuffer(0, 1024)

	pending := buf.CreateEntity()
	cmdbuf.SetComponent[tag](buf, pending.Ref(), compTag, tag{N: 9})

	stats := cmdbuf.Playback(repo, []*cmdbuf.Buffer{buf})
	if stats.Dropped.Load() != 0 {
		t.Fatalf("expected no drops, got %d", stats.Dropped.Load())
	}

	entities := repo.Query().Build().Collect()
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(entities))
	}
	v, err := ecs.GetComponentRO[tag](repo, entities[0], compTag)
	if err != nil {
		t.Fatalf("GetComponentRO: %v", err)
	}
	if v.N != 9 {
		t.Fatalf("expected N=9, got %d", v.N)
	}
}

func TestPlaybackDropsOpsAgainstDestroyedEntity(t *testing.T) {
	repo := newRepo(t)
	e := repo.CreateEntity()
	repo.DestroyEntity(e)

	buf := cmdbuf.NewBuffer(0, 1024)
	cmdbuf.SetComponent[tag](buf, cmdbuf.RefEntity(e), compTag, tag{N: 1})

	stats := cmdbuf.Playback(repo, []*cmdbuf.Buffer{buf})
	if stats.Dropped.Load() != 1 {
		t.Fatalf("expected 1 drop for a stale handle, got %d", stats.Dropped.Load())
	}
}

func TestPlaybackDropsOpsAgainstUnresolvedPending(t *testing.T) {
	repo := newRepo(t)
	buf := cmdbuf.NewBuffer(0, 1024)

	// reference a Pending token that was never produced by a CreateEntity
	// call in this buffer.
	ghost := cmdbuf.Pending(7).Ref()
	cmdbuf.SetComponent[tag](buf, ghost, compTag, tag{N: 1})

	stats := cmdbuf.Playback(repo, []*cmdbuf.Buffer{buf})
	if stats.Dropped.Load() != 1 {
		t.Fatalf("expected 1 drop for an unresolved pending ref, got %d", stats.Dropped.Load())
	}
}

func TestPlaybackRunsRemoveComponentAfterEverySet(t *testing.T) {
	repo := newRepo(t)
	e := repo.CreateEntity()
	if err := ecs.SetComponent(repo, e, compTag, tag{N: 1}); err != nil {
		t.Fatalf("SetComponent: %v", err)
	}

	// one buffer sets (phase 2), another removes (phase 3); phase 3 must
	// always run after every buffer's phase 2, regardless of buffer order.
	setBuf := cmdbuf.NewBuffer(0, 1024)
	cmdbuf.SetComponent[tag](setBuf, cmdbuf.RefEntity(e), compTag, tag{N: 2})
	removeBuf := cmdbuf.NewBuffer(1, 1024)
	removeBuf.RemoveComponent(cmdbuf.RefEntity(e), compTag)

	cmdbuf.Playback(repo, []*cmdbuf.Buffer{removeBuf, setBuf})

	if repo.HasComponent(e, compTag) {
		t.Fatalf("expected component removed after playback regardless of buffer order")
	}
}

func TestPlaybackClearsBuffersAfterReplay(t *testing.T) {
	repo := newRepo(t)
	buf := cmdbuf.NewBuffer(0, 1024)
	buf.CreateEntity()
	if buf.Len() == 0 {
		t.Fatalf("expected a pending record before playback")
	}
	cmdbuf.Playback(repo, []*cmdbuf.Buffer{buf})
	if buf.Len() != 0 {
		t.Fatalf("expected buffer cleared after playback, len=%d", buf.Len())
	}
}

func TestPlaybackPublishEventReachesLiveBus(t *testing.T) {
	repo := newRepo(t)
	buf := cmdbuf.NewBuffer(0, 1024)
	cmdbuf.PublishEvent[tag](buf, evMark, tag{N: 5})

	cmdbuf.Playback(repo, []*cmdbuf.Buffer{buf})
	repo.SwapEventBuses()

	bus, err := ecs.EventBus[tag](repo, evMark)
	if err != nil {
		t.Fatalf("EventBus: %v", err)
	}
	got := bus.Consume()
	if len(got) != 1 || got[0].N != 5 {
		t.Fatalf("expected one published event with N=5, got %v", got)
	}
}
