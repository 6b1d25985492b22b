/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package demo

import (
	"math"

	"github.com/pjanec/modulehost/ecs"
	"github.com/pjanec/modulehost/host"
	"github.com/pjanec/modulehost/internal/diag"
	"github.com/pjanec/modulehost/internal/hostconfig"
	"github.com/pjanec/modulehost/provider"
)

// lifecycleParticipants lists every module the construction/destruction
// handshake waits on; analytics is deliberately absent --
// it consumes a filtered snapshot and never blocks an entity's lifecycle.
var lifecycleParticipants = []string{"physics", "logger"}

// Simulation wires one live world, three demo modules and their
// providers into a runnable Kernel.
type Simulation struct {
	Kernel *host.Kernel
	live   *ecs.EntityRepository
}

// NewSimulation builds the live world, registers the demo schema on it and
// on every replica a provider will own, wires the three modules to their
// providers, and resolves the scheduler.
func NewSimulation(cfg *hostconfig.Config, stats *diag.Stats) (*Simulation, error) {
	live := ecs.NewEntityRepository(cfg.ChunkCapacity)

	k := host.New(cfg, live, lifecycleParticipants, stats)
	registerSchema(live, k.Accumulator())

	// Every replica, regardless of provider, gets the identical schema the
	// live world has (components plus every event type, including the
	// kernel's own lifecycle events).
	setup := func(r *ecs.EntityRepository) {
		registerSchema(r, k.Accumulator())
		host.RegisterLifecycleEvents(r, k.Accumulator())
	}

	physicsMirror := provider.NewMirror(cfg.ChunkCapacity, k.Accumulator(), setup)

	posOnly := ecs.BitMask256{}.Set(int(CompPosition))
	// the logger runs below simulation rate, so its provider must deliver
	// accumulated events since its last turn, not just the last frame's --
	// a Shared snapshot syncs (and flushes the accumulator) lazily at
	// acquire time, exactly when the throttled module next runs.
	loggerShared := provider.NewSharedUnion(posOnly, cfg.SnapshotPoolWarmup, cfg.ChunkCapacity, k.Accumulator(), setup)
	analyticsPool := provider.NewPooled(posOnly, cfg.SnapshotPoolWarmup, cfg.ChunkCapacity, k.Accumulator(), setup)

	k.RegisterModule(NewPhysicsModule(), physicsMirror)
	k.RegisterModule(NewLoggerModule(), loggerShared)
	k.RegisterModule(NewAnalyticsModule(), analyticsPool)

	if err := k.Initialise(); err != nil {
		return nil, err
	}
	return &Simulation{Kernel: k, live: live}, nil
}

// Spawn stages n entities around a ring, each with a Position and a
// Velocity whose magnitude cycles through 10, 20, ..., 60 with index, so
// every sixth entity crosses SpeedAlertThreshold. Staged entities enter via the construction
// handshake exactly as a real caller's would.
func (s *Simulation) Spawn(n int) {
	for i := 0; i < n; i++ {
		e := s.live.CreateStagedEntity()
		angle := 2 * math.Pi * float64(i) / float64(n)
		radius := 10.0
		speed := float64(10 + (i%6)*10)
		must(ecs.SetComponent[Position](s.live, e, CompPosition, Position{
			X: radius * math.Cos(angle),
			Y: radius * math.Sin(angle),
		}))
		must(ecs.SetComponent[Velocity](s.live, e, CompVelocity, Velocity{
			DX: speed * math.Cos(angle),
			DY: speed * math.Sin(angle),
		}))
	}
}
