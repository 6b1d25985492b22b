// Package host is the module host kernel: per-frame
// orchestration of event capture, provider refresh, tiered/parallel
// module dispatch, deferred command playback, and the entity lifecycle
// handshake.
/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package host

import (
	"github.com/pjanec/modulehost/cmdbuf"
	"github.com/pjanec/modulehost/sched"
)

// Tier is a coarse classification modules are registered under: Fast
// modules typically bind to a Mirror provider, Slow ones to a Pooled or
// Shared provider. The kernel does not
// otherwise interpret Tier -- it exists for operators wiring modules to
// providers, and for observability breakdowns.
type Tier int

const (
	Fast Tier = iota
	Slow
)

// ExecutionPolicy controls whether a module ticks on the main thread or
// on a worker.
type ExecutionPolicy int

const (
	Synchronous ExecutionPolicy = iota
	Parallel
)

// Module is the external contract every module implements.
type Module interface {
	Name() string
	Tier() Tier
	UpdateFrequency() uint32 // >= 1
	Policy() ExecutionPolicy

	// Tick runs one turn of the module against view, with deltaTime
	// accumulated since its previous turn.
	Tick(view *View, dt float64)
}

// SystemRegistrar is implemented by modules that also contribute systems
// to the scheduler.
type SystemRegistrar interface {
	RegisterSystems(reg *sched.Scheduler)
}

// Initialiser is implemented by modules with one-time startup work.
type Initialiser interface {
	Initialise(ctx *Context) error
}

// Cleaner is implemented by modules with one-time teardown work.
type Cleaner interface {
	Cleanup(ctx *Context)
}

// Context is handed to a module's Initialise/Cleanup hooks.
type Context struct {
	Kernel *Kernel
}

// newCommandBuffer returns a fresh per-module command buffer. The kernel
// allocates one per module at registration and reuses it every tick
// (playback clears it); modules never share a buffer.
func newCommandBuffer(threadID, initialBytes int) *cmdbuf.Buffer {
	return cmdbuf.NewBuffer(threadID, initialBytes)
}
