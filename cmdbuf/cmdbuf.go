// Package cmdbuf is the thread-local deferred mutation log: every
// module-originated world mutation is recorded here during a tick and
// replayed, single-threaded and in a deterministic phase order, at the
// kernel's command-merge step.
/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package cmdbuf

import (
	"errors"
	"sort"

	"go.uber.org/atomic"

	"github.com/pjanec/modulehost/ecs"
	"github.com/pjanec/modulehost/event"
	"github.com/pjanec/modulehost/kerrors"
)

// Pending identifies an entity created earlier in the same buffer, not yet
// materialised in the live world. Resolve only makes sense once the
// buffer's create phase has been played back.
type Pending int

// Ref is either a concrete, already-alive Entity, or a Pending token
// referring to a CreateEntity/CreateStagedEntity call recorded earlier in
// the same buffer.
type Ref struct {
	entity    ecs.Entity
	pending   Pending
	isPending bool
}

// RefEntity wraps an already-alive entity for use in a recorded command.
func RefEntity(e ecs.Entity) Ref { return Ref{entity: e} }

// Ref turns a Pending token into a Ref usable by later commands in the
// same buffer.
func (p Pending) Ref() Ref { return Ref{pending: p, isPending: true} }

// playCtx carries per-buffer resolution state through one buffer's
// playback within a phase.
type playCtx struct {
	repo     *ecs.EntityRepository
	created  []ecs.Entity // index by Pending token, filled by the create phase
	stats    *PlaybackStats
}

func (c *playCtx) resolve(r Ref) (ecs.Entity, bool) {
	if !r.isPending {
		return r.entity, true
	}
	if int(r.pending) >= len(c.created) {
		return ecs.Entity{}, false
	}
	return c.created[r.pending], true
}

// drop counts a record that was not applied. An unresolved ref (err == nil)
// and a live StaleHandle error both mean "the handle this op targeted was
// not there to apply against" and count toward StaleHandleDrops; any other
// apply-time error (e.g. kerrors.Schema) counts only toward Dropped.
func (c *playCtx) drop(err error) {
	c.stats.Dropped.Inc()
	if err == nil || errors.Is(err, kerrors.ErrStaleHandle) {
		c.stats.StaleHandleDrops.Inc()
	}
}

// op is a type-erased recorded mutation.
type op interface {
	apply(ctx *playCtx)
}

type createRec struct {
	staged bool
}

type setComponentRec[T any] struct {
	ref Ref
	id  ecs.ComponentID
	v   T
}

func (r setComponentRec[T]) apply(ctx *playCtx) {
	e, ok := ctx.resolve(r.ref)
	if !ok {
		ctx.drop(nil)
		return
	}
	if err := ecs.SetComponent[T](ctx.repo, e, r.id, r.v); err != nil {
		ctx.drop(err)
	}
}

type addManagedRec[T any] struct {
	ref Ref
	id  ecs.ComponentID
	v   T
}

func (r addManagedRec[T]) apply(ctx *playCtx) {
	e, ok := ctx.resolve(r.ref)
	if !ok {
		ctx.drop(nil)
		return
	}
	if err := ecs.AddManaged[T](ctx.repo, e, r.id, r.v); err != nil {
		ctx.drop(err)
	}
}

type removeManagedRec struct {
	ref Ref
	id  ecs.ComponentID
}

func (r removeManagedRec) apply(ctx *playCtx) {
	e, ok := ctx.resolve(r.ref)
	if !ok {
		ctx.drop(nil)
		return
	}
	if err := ecs.RemoveManaged(ctx.repo, e, r.id); err != nil {
		ctx.drop(err)
	}
}

type setLifecycleRec struct {
	ref Ref
	lc  ecs.Lifecycle
}

func (r setLifecycleRec) apply(ctx *playCtx) {
	e, ok := ctx.resolve(r.ref)
	if !ok {
		ctx.drop(nil)
		return
	}
	if err := ctx.repo.SetLifecycle(e, r.lc); err != nil {
		ctx.drop(err)
	}
}

type removeComponentRec struct {
	ref Ref
	id  ecs.ComponentID
}

func (r removeComponentRec) apply(ctx *playCtx) {
	e, ok := ctx.resolve(r.ref)
	if !ok {
		ctx.drop(nil)
		return
	}
	if err := ecs.RemoveComponent(ctx.repo, e, r.id); err != nil {
		ctx.drop(err)
	}
}

type publishRec[E any] struct {
	id event.ID
	v  E
}

func (r publishRec[E]) apply(ctx *playCtx) {
	bus, err := ecs.EventBus[E](ctx.repo, r.id)
	if err != nil {
		ctx.drop(err)
		return
	}
	bus.Publish(r.v)
}

type destroyRec struct {
	ref Ref
}

func (r destroyRec) apply(ctx *playCtx) {
	e, ok := ctx.resolve(r.ref)
	if !ok {
		ctx.drop(nil)
		return
	}
	if !ctx.repo.IsAlive(e) {
		ctx.drop(kerrors.StaleHandle("DestroyEntity on dead or stale entity"))
		return
	}
	ctx.repo.DestroyEntity(e)
}

// Buffer is one thread's append-only log, pre-sized to roughly
// command_buffer_initial_bytes worth of records.
type Buffer struct {
	ThreadID int

	creates []createRec
	phase2  []op
	phase3  []removeComponentRec
	phase4  []op
	phase5  []destroyRec
}

// NewBuffer creates an empty buffer for threadID, pre-reserving capacity
// proportional to initialBytes (a rough record-count estimate rather than
// an exact byte budget -- records are variable-size Go values, not a wire
// format).
func NewBuffer(threadID, initialBytes int) *Buffer {
	estRecords := initialBytes / 64
	if estRecords < 16 {
		estRecords = 16
	}
	return &Buffer{
		ThreadID: threadID,
		phase2:   make([]op, 0, estRecords),
		phase4:   make([]op, 0, estRecords/4),
	}
}

// CreateEntity records a create with Active lifecycle and returns a
// Pending token other records in this buffer can reference immediately.
func (b *Buffer) CreateEntity() Pending {
	b.creates = append(b.creates, createRec{staged: false})
	return Pending(len(b.creates) - 1)
}

// CreateStagedEntity records a create with Constructing lifecycle.
func (b *Buffer) CreateStagedEntity() Pending {
	b.creates = append(b.creates, createRec{staged: true})
	return Pending(len(b.creates) - 1)
}

// DestroyEntity records a destroy, played back last (phase 5).
func (b *Buffer) DestroyEntity(ref Ref) {
	b.phase5 = append(b.phase5, destroyRec{ref: ref})
}

// SetComponent records an add-or-overwrite of component id (phase 2).
func SetComponent[T any](b *Buffer, ref Ref, id ecs.ComponentID, v T) {
	b.phase2 = append(b.phase2, setComponentRec[T]{ref: ref, id: id, v: v})
}

// AddManaged records a managed-component set (phase 2).
func AddManaged[T any](b *Buffer, ref Ref, id ecs.ComponentID, v T) {
	b.phase2 = append(b.phase2, addManagedRec[T]{ref: ref, id: id, v: v})
}

// RemoveManaged records a managed-component clear (phase 2).
func (b *Buffer) RemoveManaged(ref Ref, id ecs.ComponentID) {
	b.phase2 = append(b.phase2, removeManagedRec{ref: ref, id: id})
}

// SetLifecycleCmd records a lifecycle transition (phase 2).
func (b *Buffer) SetLifecycleCmd(ref Ref, lc ecs.Lifecycle) {
	b.phase2 = append(b.phase2, setLifecycleRec{ref: ref, lc: lc})
}

// RemoveComponent records a component clear, played back in phase 3
// (after every Add/Set/managed/lifecycle record has run).
func (b *Buffer) RemoveComponent(ref Ref, id ecs.ComponentID) {
	b.phase3 = append(b.phase3, removeComponentRec{ref: ref, id: id})
}

// PublishEvent records an event publish (phase 4).
func PublishEvent[E any](b *Buffer, id event.ID, v E) {
	b.phase4 = append(b.phase4, publishRec[E]{id: id, v: v})
}

// Len reports the total number of recorded operations across every
// phase.
func (b *Buffer) Len() int {
	return len(b.creates) + len(b.phase2) + len(b.phase3) + len(b.phase4) + len(b.phase5)
}

func (b *Buffer) clear() {
	b.creates = b.creates[:0]
	b.phase2 = b.phase2[:0]
	b.phase3 = b.phase3[:0]
	b.phase4 = b.phase4[:0]
	b.phase5 = b.phase5[:0]
}

// PlaybackStats counts records silently dropped during one Playback
// call. Never fatal; surfaced through observability only. Dropped is the
// total across every reason (stale handle, unresolved Pending ref,
// unknown component/event id);
// StaleHandleDrops narrows that to the stale-or-never-alive-handle subset.
type PlaybackStats struct {
	Dropped          atomic.Int64
	StaleHandleDrops atomic.Int64
}

// Playback replays every buffer against repo in a fixed deterministic
// order: phase 1 (creates) across all buffers in ascending ThreadID
// order (buffers with equal ThreadID keep their slice order), each
// buffer's records in recording order, then phase 2, 3, 4, 5, each fully
// across all buffers before the next phase begins. Buffers are cleared
// afterward.
func Playback(repo *ecs.EntityRepository, buffers []*Buffer) *PlaybackStats {
	buffers = append([]*Buffer(nil), buffers...)
	sort.SliceStable(buffers, func(i, j int) bool { return buffers[i].ThreadID < buffers[j].ThreadID })
	stats := &PlaybackStats{}
	ctxs := make([]*playCtx, len(buffers))
	for i, b := range buffers {
		ctxs[i] = &playCtx{repo: repo, stats: stats, created: make([]ecs.Entity, 0, len(b.creates))}
	}

	// phase 1: creates
	for i, b := range buffers {
		ctx := ctxs[i]
		for _, c := range b.creates {
			var e ecs.Entity
			if c.staged {
				e = repo.CreateStagedEntity()
			} else {
				e = repo.CreateEntity()
			}
			ctx.created = append(ctx.created, e)
		}
	}
	// phase 2: add/set component, managed, lifecycle
	for i, b := range buffers {
		ctx := ctxs[i]
		for _, o := range b.phase2 {
			o.apply(ctx)
		}
	}
	// phase 3: remove component
	for i, b := range buffers {
		ctx := ctxs[i]
		for _, r := range b.phase3 {
			r.apply(ctx)
		}
	}
	// phase 4: publish event
	for i, b := range buffers {
		ctx := ctxs[i]
		for _, o := range b.phase4 {
			o.apply(ctx)
		}
	}
	// phase 5: destroy
	for i, b := range buffers {
		ctx := ctxs[i]
		for _, r := range b.phase5 {
			r.apply(ctx)
		}
	}

	for _, b := range buffers {
		b.clear()
	}
	return stats
}
