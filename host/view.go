/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package host

import (
	"github.com/pjanec/modulehost/cmdbuf"
	"github.com/pjanec/modulehost/ecs"
	"github.com/pjanec/modulehost/event"
)

// View is the read-only repository handle a module receives for exactly
// one tick. It pairs a borrowed
// repository (live or replica) with the module's own command buffer and
// the host's current time, and must not be retained past the tick that
// produced it.
type View struct {
	repo *ecs.EntityRepository
	cmds *cmdbuf.Buffer
	now  float64
	tick uint64
}

// HasComponent reports whether e carries component id.
func (v *View) HasComponent(e ecs.Entity, id ecs.ComponentID) bool {
	return v.repo.HasComponent(e, id)
}

// IsAlive reports whether e is alive and current in this view.
func (v *View) IsAlive(e ecs.Entity) bool { return v.repo.IsAlive(e) }

// GetComponentRO returns a read-only pointer to e's value of T.
func GetComponentRO[T any](v *View, e ecs.Entity, id ecs.ComponentID) (*T, error) {
	return ecs.GetComponentRO[T](v.repo, e, id)
}

// GetManagedRO returns e's managed value for id.
func GetManagedRO[T any](v *View, e ecs.Entity, id ecs.ComponentID) (T, error) {
	return ecs.GetManagedRO[T](v.repo, e, id)
}

// GetComponentTable returns the hoistable handle for tight loops over T.
func GetComponentTable[T any](v *View, id ecs.ComponentID) (*ecs.ComponentTable[T], error) {
	return ecs.GetComponentTable[T](v.repo, id)
}

// Query starts a query against the borrowed repository.
func (v *View) Query() *ecs.QueryBuilder { return v.repo.Query() }

// ConsumeEvents returns event type E's read buffer for this tick. The
// buffer is not cleared by this call; the next bus swap replaces it.
func ConsumeEvents[E any](v *View, id event.ID) ([]E, error) {
	bus, err := ecs.EventBus[E](v.repo, id)
	if err != nil {
		return nil, err
	}
	return bus.Consume(), nil
}

// GetCommandBuffer returns this module's command buffer for the tick.
func (v *View) GetCommandBuffer() *cmdbuf.Buffer { return v.cmds }

// Time returns the host's current simulation time for this frame.
func (v *View) Time() float64 { return v.now }

// Tick returns the live world's tick at the time this view was produced.
func (v *View) Tick() uint64 { return v.tick }

// Repo exposes the underlying repository for callers that need the full
// ecs API (systems registered via sched.System run directly against a
// *ecs.EntityRepository, not a View).
func (v *View) Repo() *ecs.EntityRepository { return v.repo }
