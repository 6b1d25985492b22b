// Package lifecycle coordinates multi-module entity construction and
// destruction so that no module observes an entity as Active until every
// participant has acknowledged.
/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package lifecycle

import (
	"sort"
	"sync"

	"github.com/teris-io/shortid"

	"github.com/pjanec/modulehost/ecs"
)

// ConstructionOrder is published when a staged entity needs setup from
// every participating module.
type ConstructionOrder struct {
	Entity ecs.Entity
	OrderID string
}

// ConstructionAck is emitted by a participant once it has finished setup
// (or determined it cannot).
type ConstructionAck struct {
	Entity   ecs.Entity
	ModuleID string
	OK       bool
}

// ConstructionFailed is published when construction aborts, by failure or
// timeout.
type ConstructionFailed struct {
	Entity ecs.Entity
}

// DestructionOrder is the symmetric counterpart for teardown.
type DestructionOrder struct {
	Entity  ecs.Entity
	OrderID string
}

// DestructionAck is emitted by a participant once it has torn down its
// per-entity state for Entity.
type DestructionAck struct {
	Entity   ecs.Entity
	ModuleID string
	OK       bool
}

// Phase names which handshake a LifecycleFailed event refers to.
type Phase int

const (
	PhaseConstructing Phase = iota
	PhaseTearDown
)

// LifecycleFailed is the generic observability event published alongside
// the more specific ConstructionFailed for construction aborts, and on
// its own for destruction-side timeouts.
type LifecycleFailed struct {
	Entity ecs.Entity
	Phase  Phase
}

type progress struct {
	orderID   string
	acked     map[string]bool
	anyFailed bool
	startTick uint64
}

func newProgress(orderID string, tick uint64) *progress {
	return &progress{orderID: orderID, acked: make(map[string]bool), startTick: tick}
}

// Coordinator tracks every in-flight construction/destruction handshake.
// One Coordinator serves the whole live world; it is driven once per
// frame from the kernel's lifecycle turn.
type Coordinator struct {
	mu             sync.Mutex
	participants   []string
	timeoutFrames  uint64
	constructing   map[ecs.Entity]*progress
	tearingDown    map[ecs.Entity]*progress
}

// New creates a coordinator. participants is the fixed set of module ids
// every staged entity must hear from; timeoutFrames is the construction/
// destruction deadline.
func New(participants []string, timeoutFrames int) *Coordinator {
	return &Coordinator{
		participants:  append([]string(nil), participants...),
		timeoutFrames: uint64(timeoutFrames),
		constructing:  make(map[ecs.Entity]*progress),
		tearingDown:   make(map[ecs.Entity]*progress),
	}
}

// IsTrackingConstruction reports whether e already has a construction
// handshake in flight.
func (c *Coordinator) IsTrackingConstruction(e ecs.Entity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.constructing[e]
	return ok
}

// IsTrackingDestruction reports whether e already has a destruction
// handshake in flight.
func (c *Coordinator) IsTrackingDestruction(e ecs.Entity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tearingDown[e]
	return ok
}

// BeginConstruction registers e as awaiting construction acks and returns
// the ConstructionOrder event to publish.
func (c *Coordinator) BeginConstruction(e ecs.Entity, tick uint64) ConstructionOrder {
	id, _ := shortid.Generate()
	c.mu.Lock()
	c.constructing[e] = newProgress(id, tick)
	c.mu.Unlock()
	return ConstructionOrder{Entity: e, OrderID: id}
}

// BeginDestruction registers e as awaiting destruction acks and returns
// the DestructionOrder event to publish.
func (c *Coordinator) BeginDestruction(e ecs.Entity, tick uint64) DestructionOrder {
	id, _ := shortid.Generate()
	c.mu.Lock()
	c.tearingDown[e] = newProgress(id, tick)
	c.mu.Unlock()
	return DestructionOrder{Entity: e, OrderID: id}
}

func (p *progress) complete(participants []string) bool {
	if p.anyFailed {
		return false
	}
	for _, id := range participants {
		if !p.acked[id] {
			return false
		}
	}
	return true
}

// Outcome reports what a Tick call decided for one entity.
type Outcome struct {
	Entity ecs.Entity
	Active bool // construction or destruction handshake completed successfully
	Failed bool // aborted by explicit failure or timeout
}

// Tick consumes this frame's acks, advances every in-flight handshake,
// and returns entities whose construction completed or failed, and
// entities whose destruction completed or failed. Timeouts are decided
// against currentTick - startTick >= timeoutFrames.
func (c *Coordinator) Tick(constructionAcks []ConstructionAck, destructionAcks []DestructionAck, currentTick uint64) (constructionOutcomes []Outcome, destructionOutcomes []Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ack := range constructionAcks {
		p, ok := c.constructing[ack.Entity]
		if !ok {
			continue
		}
		if !ack.OK {
			p.anyFailed = true
			continue
		}
		p.acked[ack.ModuleID] = true
	}
	for e, p := range c.constructing {
		timedOut := currentTick-p.startTick >= c.timeoutFrames
		switch {
		case p.complete(c.participants):
			constructionOutcomes = append(constructionOutcomes, Outcome{Entity: e, Active: true})
			delete(c.constructing, e)
		case p.anyFailed || timedOut:
			constructionOutcomes = append(constructionOutcomes, Outcome{Entity: e, Failed: true})
			delete(c.constructing, e)
		}
	}

	for _, ack := range destructionAcks {
		p, ok := c.tearingDown[ack.Entity]
		if !ok {
			continue
		}
		if !ack.OK {
			p.anyFailed = true
			continue
		}
		p.acked[ack.ModuleID] = true
	}
	for e, p := range c.tearingDown {
		timedOut := currentTick-p.startTick >= c.timeoutFrames
		switch {
		case p.complete(c.participants):
			destructionOutcomes = append(destructionOutcomes, Outcome{Entity: e, Active: true})
			delete(c.tearingDown, e)
		case p.anyFailed || timedOut:
			destructionOutcomes = append(destructionOutcomes, Outcome{Entity: e, Failed: true})
			delete(c.tearingDown, e)
		}
	}
	// map iteration order is random; the kernel publishes events off these
	// outcomes, so pin a deterministic order.
	sortOutcomes(constructionOutcomes)
	sortOutcomes(destructionOutcomes)
	return constructionOutcomes, destructionOutcomes
}

func sortOutcomes(out []Outcome) {
	sort.Slice(out, func(i, j int) bool { return out[i].Entity.Index < out[j].Entity.Index })
}
