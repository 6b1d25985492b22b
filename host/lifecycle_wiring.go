/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package host

import (
	"github.com/pjanec/modulehost/ecs"
	"github.com/pjanec/modulehost/event"
	"github.com/pjanec/modulehost/lifecycle"
)

// Reserved event ids for the kernel's own lifecycle handshake. Domain
// modules should register their own event types starting well above this
// range.
const (
	EvConstructionOrder  event.ID = 1
	EvConstructionAck    event.ID = 2
	EvConstructionFailed event.ID = 3
	EvDestructionOrder   event.ID = 4
	EvDestructionAck     event.ID = 5
	EvLifecycleFailed    event.ID = 6
)

// RegisterLifecycleEvents wires the six lifecycle-handshake event types
// into repo (and, when acc is non-nil, the accumulator). Call this once
// for the live world and once inside every provider's SchemaSetup
// callback, so replicas can see lifecycle events too.
func RegisterLifecycleEvents(repo *ecs.EntityRepository, acc *event.Accumulator) {
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	_, err := ecs.RegisterEventType[lifecycle.ConstructionOrder](repo, acc, EvConstructionOrder, event.Persistent)
	must(err)
	_, err = ecs.RegisterEventType[lifecycle.ConstructionAck](repo, acc, EvConstructionAck, event.Persistent)
	must(err)
	_, err = ecs.RegisterEventType[lifecycle.ConstructionFailed](repo, acc, EvConstructionFailed, event.Persistent)
	must(err)
	_, err = ecs.RegisterEventType[lifecycle.DestructionOrder](repo, acc, EvDestructionOrder, event.Persistent)
	must(err)
	_, err = ecs.RegisterEventType[lifecycle.DestructionAck](repo, acc, EvDestructionAck, event.Persistent)
	must(err)
	_, err = ecs.RegisterEventType[lifecycle.LifecycleFailed](repo, acc, EvLifecycleFailed, event.Persistent)
	must(err)
}
