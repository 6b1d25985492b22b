// Package demo wires a small, concrete simulation on top of the module
// host kernel: two components, one event type, and three modules (two
// synchronous, one parallel) -- enough to exercise every layer of the
// core from a CLI. It is a harness, not a reusable library.
/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package demo

import (
	"github.com/pjanec/modulehost/ecs"
	"github.com/pjanec/modulehost/event"
)

// Component ids. Domain ids start at 100 to stay clear of the kernel's
// reserved lifecycle event range (1-6, see host.EvConstruction*).
const (
	CompPosition ecs.ComponentID = 100
	CompVelocity ecs.ComponentID = 101
)

// Event ids.
const (
	EvSpeedAlert event.ID = 100
)

// Position is a hot, small POD component.
type Position struct {
	X, Y float64
}

// Velocity is a hot, small POD component.
type Velocity struct {
	DX, DY float64
}

// SpeedAlert is published when an entity's speed exceeds a threshold.
type SpeedAlert struct {
	Entity ecs.Entity
	Speed  float64
}

// registerSchema registers every component/event type on repo, used both
// for the live world and for every replica's SchemaSetup callback so
// their structures stay identical.
func registerSchema(repo *ecs.EntityRepository, acc *event.Accumulator) {
	mustT(ecs.RegisterComponent[Position](repo, CompPosition, ecs.Persistent, 0))
	mustT(ecs.RegisterComponent[Velocity](repo, CompVelocity, ecs.Persistent, 0))
	_, err := ecs.RegisterEventType[SpeedAlert](repo, acc, EvSpeedAlert, event.Persistent)
	must(err)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func mustT[T any](v T, err error) T {
	must(err)
	return v
}
