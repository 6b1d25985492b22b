/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package ecs

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/pjanec/modulehost/event"
	"github.com/pjanec/modulehost/internal/debug"
	"github.com/pjanec/modulehost/kerrors"
)

// EntityRepository aggregates component stores, the entity index, the
// query builder and the event bus into one authoritative (or replica)
// world. A repository is either the live world or a replica: both share
// the exact same type and API, differing only in which code path writes
// to them (simulation vs. replica sync).
type EntityRepository struct {
	reg *registry

	mu        sync.RWMutex // guards headers/freeList structural changes
	headers   []header
	freeList  []uint32

	columns map[ComponentID]columnStore
	managed map[ComponentID]managedStore

	events *event.Registry
	tick_  atomic.Uint64

	defaultChunkCapacity int
	entitiesEverCreated  bool // registration is forbidden once this flips
}

// NewEntityRepository creates an empty repository. defaultChunkCapacity is
// used by register_component calls that don't override it.
func NewEntityRepository(defaultChunkCapacity int) *EntityRepository {
	return &EntityRepository{
		reg:                  newRegistry(),
		columns:              make(map[ComponentID]columnStore),
		managed:              make(map[ComponentID]managedStore),
		events:               event.NewRegistry(),
		defaultChunkCapacity: defaultChunkCapacity,
	}
}

// RegisterComponent registers unmanaged component type T under id, which
// must be called before any entity exists that could carry it.
// chunkCapacity <= 0 uses the repository's default. Calling twice with
// identical args is a no-op; calling with differing args is a
// SchemaError. Once entities have been created, re-requesting an id that
// is already registered returns its table, and registering a new id is a
// SchemaError.
func RegisterComponent[T any](r *EntityRepository, id ComponentID, policy RetentionPolicy, chunkCapacity int) (*ComponentTable[T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entitiesEverCreated {
		if _, ok := r.reg.meta[id]; ok {
			// already-registered type re-requested after entities exist: fine, return handle
			return componentTableOf[T](r, id)
		}
		return nil, kerrors.Schema("register_component called after entities exist")
	}
	if chunkCapacity <= 0 {
		chunkCapacity = r.defaultChunkCapacity
	}
	if err := registerMeta[T](r.reg, id, Unmanaged, policy, chunkCapacity); err != nil {
		return nil, err
	}
	if _, ok := r.columns[id]; !ok {
		r.columns[id] = NewColumn[T](chunkCapacity)
	}
	return componentTableOf[T](r, id)
}

// RegisterManagedComponent registers managed (reference-typed) component
// type T under id.
func RegisterManagedComponent[T any](r *EntityRepository, id ComponentID, policy RetentionPolicy) (*ManagedColumn[T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entitiesEverCreated {
		if _, ok := r.reg.meta[id]; ok {
			mc, ok := r.managed[id].(*ManagedColumn[T])
			if !ok {
				return nil, kerrors.Schema("component id registered under a different type")
			}
			return mc, nil
		}
		return nil, kerrors.Schema("register_component called after entities exist")
	}
	if err := registerMeta[T](r.reg, id, Managed, policy, 0); err != nil {
		return nil, err
	}
	mc, ok := r.managed[id].(*ManagedColumn[T])
	if !ok {
		mc = NewManagedColumn[T]()
		r.managed[id] = mc
	}
	return mc, nil
}

// RegisterEventType registers event type E under id with the given
// retention policy and wires it into the accumulator when acc is non-nil
// and the policy is Persistent.
func RegisterEventType[E any](r *EntityRepository, acc *event.Accumulator, id event.ID, policy event.RetentionPolicy) (*event.Bus[E], error) {
	b, err := event.Register[E](r.events, id, policy)
	if err != nil {
		return nil, err
	}
	if acc != nil {
		event.RegisterHistory[E](acc, r.events, id)
	}
	return b, nil
}

func componentTableOf[T any](r *EntityRepository, id ComponentID) (*ComponentTable[T], error) {
	cs, ok := r.columns[id]
	if !ok {
		return nil, kerrors.Schema("unknown component id")
	}
	col, ok := cs.(*Column[T])
	if !ok {
		return nil, kerrors.Schema("component id registered under a different type")
	}
	return &ComponentTable[T]{col: col}, nil
}

// GetComponentTable returns the hoistable handle for tight loops over T.
func GetComponentTable[T any](r *EntityRepository, id ComponentID) (*ComponentTable[T], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return componentTableOf[T](r, id)
}

// EventBus returns the typed bus registered for id.
func EventBus[E any](r *EntityRepository, id event.ID) (*event.Bus[E], error) {
	return event.BusOf[E](r.events, id)
}

// Events exposes the repository's event registry for accumulator wiring.
func (r *EntityRepository) Events() *event.Registry { return r.events }

//
// entity lifecycle
//

func (r *EntityRepository) newSlot() uint32 {
	if n := len(r.freeList); n > 0 {
		idx := r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
		return idx
	}
	r.headers = append(r.headers, header{})
	return uint32(len(r.headers) - 1)
}

// CreateEntity allocates a slot with lifecycle = Active.
func (r *EntityRepository) CreateEntity() Entity {
	return r.createWithLifecycle(Active)
}

// CreateStagedEntity allocates a slot with lifecycle = Constructing.
func (r *EntityRepository) CreateStagedEntity() Entity {
	return r.createWithLifecycle(Constructing)
}

func (r *EntityRepository) createWithLifecycle(lc Lifecycle) Entity {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entitiesEverCreated = true
	idx := r.newSlot()
	h := &r.headers[idx]
	h.alive = true
	if h.generation == 0 {
		h.generation = 1
	}
	h.componentMask = BitMask256{}
	h.authorityMask = BitMask256{}
	h.lifecycle = lc
	h.typeTag = 0
	return Entity{Index: idx, Generation: h.generation}
}

// DestroyEntity clears masks, marks the slot dead, and returns it to the
// free list. Idempotent on a stale handle.
func (r *EntityRepository) DestroyEntity(e Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isCurrentLocked(e) {
		return
	}
	h := &r.headers[e.Index]
	h.alive = false
	h.componentMask = BitMask256{}
	h.authorityMask = BitMask256{}
	h.generation++
	r.freeList = append(r.freeList, e.Index)
}

func (r *EntityRepository) isCurrentLocked(e Entity) bool {
	if int(e.Index) >= len(r.headers) {
		return false
	}
	h := &r.headers[e.Index]
	return h.alive && h.generation == e.Generation
}

// IsAlive reports whether e is alive and current.
func (r *EntityRepository) IsAlive(e Entity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isCurrentLocked(e)
}

// SetLifecycle transitions e's lifecycle state directly (used by the
// lifecycle coordinator and by command-buffer playback).
func (r *EntityRepository) SetLifecycle(e Entity, lc Lifecycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isCurrentLocked(e) {
		return kerrors.StaleHandle("SetLifecycle on dead or stale entity")
	}
	r.headers[e.Index].lifecycle = lc
	return nil
}

// GetLifecycle returns e's current lifecycle state.
func (r *EntityRepository) GetLifecycle(e Entity) (Lifecycle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.isCurrentLocked(e) {
		return Ghost, kerrors.StaleHandle("GetLifecycle on dead or stale entity")
	}
	return r.headers[e.Index].lifecycle, nil
}

// SetTypeTag sets e's opaque domain tag.
func (r *EntityRepository) SetTypeTag(e Entity, tag uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isCurrentLocked(e) {
		return kerrors.StaleHandle("SetTypeTag on dead or stale entity")
	}
	r.headers[e.Index].typeTag = tag
	return nil
}

// SetAuthority sets or clears e's ownership of component id (authority_mask).
func (r *EntityRepository) SetAuthority(e Entity, id ComponentID, owned bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isCurrentLocked(e) {
		return kerrors.StaleHandle("SetAuthority on dead or stale entity")
	}
	h := &r.headers[e.Index]
	if owned {
		h.authorityMask = h.authorityMask.Set(int(id))
	} else {
		h.authorityMask = h.authorityMask.Clear(int(id))
	}
	return nil
}

//
// unmanaged components
//

// AddComponent sets T on e and marks its mask bit. Adding to an entity
// that already carries the component overwrites the value and still
// bumps the chunk version.
func AddComponent[T any](r *EntityRepository, e Entity, id ComponentID, v T) error {
	return SetComponent[T](r, e, id, v)
}

// SetComponent writes v into T's column at e's slot and sets the mask bit.
func SetComponent[T any](r *EntityRepository, e Entity, id ComponentID, v T) error {
	r.mu.Lock()
	if !r.isCurrentLocked(e) {
		r.mu.Unlock()
		return kerrors.StaleHandle("SetComponent on dead or stale entity")
	}
	cs, ok := r.columns[id]
	r.mu.Unlock()
	if !ok {
		return kerrors.Schema("unknown component id")
	}
	col, ok := cs.(*Column[T])
	if !ok {
		return kerrors.Schema("component id registered under a different type")
	}
	col.Write(int(e.Index), v)

	r.mu.Lock()
	if r.isCurrentLocked(e) {
		r.headers[e.Index].componentMask = r.headers[e.Index].componentMask.Set(int(id))
	}
	r.mu.Unlock()
	return nil
}

// RemoveComponent clears T's mask bit for e. The underlying slot value is
// left in place, reserved but undefined, until overwritten.
func RemoveComponent(r *EntityRepository, e Entity, id ComponentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isCurrentLocked(e) {
		return kerrors.StaleHandle("RemoveComponent on dead or stale entity")
	}
	r.headers[e.Index].componentMask = r.headers[e.Index].componentMask.Clear(int(id))
	return nil
}

// HasComponent reports whether e currently carries component id.
func (r *EntityRepository) HasComponent(e Entity, id ComponentID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.isCurrentLocked(e) {
		return false
	}
	return r.headers[e.Index].componentMask.Has(int(id))
}

// GetComponentRO returns a read-only pointer to e's value of T, after
// verifying the mask.
func GetComponentRO[T any](r *EntityRepository, e Entity, id ComponentID) (*T, error) {
	r.mu.RLock()
	ok := r.isCurrentLocked(e) && r.headers[e.Index].componentMask.Has(int(id))
	cs, hasCol := r.columns[id]
	r.mu.RUnlock()
	if !hasCol {
		return nil, kerrors.Schema("unknown component id")
	}
	if !ok {
		return nil, kerrors.StaleHandle("GetComponentRO: component absent or handle stale")
	}
	col, ok := cs.(*Column[T])
	if !ok {
		return nil, kerrors.Schema("component id registered under a different type")
	}
	return col.Read(int(e.Index)), nil
}

// GetComponentRW returns a writable pointer to e's value of T, bumping the
// owning chunk's version on the caller's behalf.
func GetComponentRW[T any](r *EntityRepository, e Entity, id ComponentID) (*T, error) {
	v, err := GetComponentRO[T](r, e, id)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	cs := r.columns[id]
	r.mu.RUnlock()
	col := cs.(*Column[T])
	idx, off := int(e.Index)/col.chunkCapacity(), int(e.Index)%col.chunkCapacity()
	debug.Assert(off >= 0)
	ch := col.chunkAt(idx)
	ch.version.Inc()
	return v, nil
}

//
// managed components
//

// AddManaged sets managed component T for e.
func AddManaged[T any](r *EntityRepository, e Entity, id ComponentID, v T) error {
	r.mu.Lock()
	if !r.isCurrentLocked(e) {
		r.mu.Unlock()
		return kerrors.StaleHandle("AddManaged on dead or stale entity")
	}
	ms, ok := r.managed[id]
	r.mu.Unlock()
	if !ok {
		return kerrors.Schema("unknown managed component id")
	}
	mc, ok := ms.(*ManagedColumn[T])
	if !ok {
		return kerrors.Schema("component id registered under a different type")
	}
	mc.Set(int(e.Index), v)
	r.mu.Lock()
	if r.isCurrentLocked(e) {
		r.headers[e.Index].componentMask = r.headers[e.Index].componentMask.Set(int(id))
	}
	r.mu.Unlock()
	return nil
}

// RemoveManaged clears managed component id for e.
func RemoveManaged(r *EntityRepository, e Entity, id ComponentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isCurrentLocked(e) {
		return kerrors.StaleHandle("RemoveManaged on dead or stale entity")
	}
	ms, ok := r.managed[id]
	if !ok {
		return kerrors.Schema("unknown managed component id")
	}
	ms.remove(int(e.Index))
	r.headers[e.Index].componentMask = r.headers[e.Index].componentMask.Clear(int(id))
	return nil
}

// GetManagedRO returns e's managed value for id.
func GetManagedRO[T any](r *EntityRepository, e Entity, id ComponentID) (T, error) {
	var zero T
	r.mu.RLock()
	ok := r.isCurrentLocked(e) && r.headers[e.Index].componentMask.Has(int(id))
	ms, hasCol := r.managed[id]
	r.mu.RUnlock()
	if !hasCol {
		return zero, kerrors.Schema("unknown managed component id")
	}
	if !ok {
		return zero, kerrors.StaleHandle("GetManagedRO: component absent or handle stale")
	}
	mc, ok := ms.(*ManagedColumn[T])
	if !ok {
		return zero, kerrors.Schema("component id registered under a different type")
	}
	v, _ := mc.Get(int(e.Index))
	return v, nil
}

//
// tick / event plumbing
//

// Tick increments the global version and swaps every event buffer.
// Convenience for callers outside the module host kernel's own frame
// loop, which instead calls SwapEventBuses at its sync point and
// AdvanceTick at the very end of the frame.
func (r *EntityRepository) Tick() uint64 {
	r.events.Tick()
	return r.tick_.Inc()
}

// SwapEventBuses flips every registered event bus's double buffer.
func (r *EntityRepository) SwapEventBuses() { r.events.Tick() }

// AdvanceTick increments and returns the global version.
func (r *EntityRepository) AdvanceTick() uint64 { return r.tick_.Inc() }

// CurrentTick returns the current global version without advancing it.
func (r *EntityRepository) CurrentTick() uint64 { return r.tick_.Load() }

//
// sync_from / soft_clear
//

// SyncFrom overwrites r to mirror source, restricted to the component
// columns selected by mask (every registered column if mask is nil). Only
// chunks whose source version is newer are copied.
func (r *EntityRepository) SyncFrom(source *EntityRepository, mask *BitMask256) {
	source.mu.RLock()
	srcHeaders := make([]header, len(source.headers))
	copy(srcHeaders, source.headers)
	srcFreeSnapshot := len(source.headers)
	source.mu.RUnlock()

	r.mu.Lock()
	for len(r.headers) < srcFreeSnapshot {
		r.headers = append(r.headers, header{})
	}
	copy(r.headers[:srcFreeSnapshot], srcHeaders)
	r.headers = r.headers[:srcFreeSnapshot]
	if mask != nil {
		// a filtered replica must not claim components whose columns were
		// never synced: has_component on the view answers for the view's
		// own contents, not the live world's.
		for i := range r.headers {
			r.headers[i].componentMask = r.headers[i].componentMask.Intersect(*mask)
		}
	}
	// rebuild free list from alive flags so a replica's own free list stays
	// consistent if it is ever mutated directly (it normally is not).
	r.freeList = r.freeList[:0]
	for i := range r.headers {
		if !r.headers[i].alive {
			r.freeList = append(r.freeList, uint32(i))
		}
	}
	r.mu.Unlock()

	for id, meta := range source.reg.meta {
		if mask != nil && !mask.Has(int(id)) {
			continue
		}
		if meta.kind == Managed {
			r.syncManagedColumn(source, id)
			continue
		}
		r.syncUnmanagedColumn(source, id)
	}
	r.tick_.Store(source.tick_.Load())
}

// syncUnmanagedColumn copies id's dirty chunks from source into r. r is
// expected to have already registered id with a matching Go type (every
// provider registers its replicas' schema up front, mirroring the live
// world); a replica missing the column is a caller error and is skipped
// rather than guessed at, since a column's element type cannot be
// recovered from a type-erased columnStore at runtime.
func (r *EntityRepository) syncUnmanagedColumn(source *EntityRepository, id ComponentID) {
	srcCol, ok := source.columns[id]
	if !ok {
		return
	}
	r.mu.RLock()
	dstCol, ok := r.columns[id]
	r.mu.RUnlock()
	if !ok {
		debug.Assert(false, "sync_from: replica missing column for registered component")
		return
	}
	n := srcCol.numChunks()
	for c := 0; c < n; c++ {
		dstCol.syncFrom(srcCol, c)
	}
}

func (r *EntityRepository) syncManagedColumn(source *EntityRepository, id ComponentID) {
	srcMS, ok := source.managed[id]
	if !ok {
		return
	}
	r.mu.Lock()
	dstMS, ok := r.managed[id]
	r.mu.Unlock()
	if !ok {
		// managed columns are created at RegisterManagedComponent time on
		// every repository that will ever sync this id; if absent here the
		// caller forgot to register it on the replica schema.
		return
	}
	r.mu.RLock()
	n := len(r.headers)
	r.mu.RUnlock()
	for i := 0; i < n; i++ {
		dstMS.copyFrom(srcMS, i)
	}
}

// SoftClear zeroes live entities and event buffers without deallocating
// chunks or column capacity.
func (r *EntityRepository) SoftClear() {
	r.mu.Lock()
	for i := range r.headers {
		r.headers[i] = header{}
	}
	r.freeList = r.freeList[:0]
	for i := range r.headers {
		r.freeList = append(r.freeList, uint32(i))
	}
	r.mu.Unlock()
	r.events.Tick() // drains read buffers without retention semantics
}
