/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package demo

import (
	"math"

	"github.com/pjanec/modulehost/cmdbuf"
	"github.com/pjanec/modulehost/host"
	"github.com/pjanec/modulehost/internal/nlog"
	"github.com/pjanec/modulehost/lifecycle"
)

// SpeedAlertThreshold is the speed above which PhysicsModule raises
// SpeedAlert for an entity.
const SpeedAlertThreshold = 50.0

// ackLifecycle drains any construction/destruction orders visible on v and
// acknowledges them as moduleID, unconditionally approving (this harness
// has no per-module setup that could actually fail).
func ackLifecycle(v *host.View, moduleID string) {
	if orders, err := host.ConsumeEvents[lifecycle.ConstructionOrder](v, host.EvConstructionOrder); err == nil {
		for _, o := range orders {
			cmdbuf.PublishEvent[lifecycle.ConstructionAck](v.GetCommandBuffer(), host.EvConstructionAck,
				lifecycle.ConstructionAck{Entity: o.Entity, ModuleID: moduleID, OK: true})
		}
	}
	if orders, err := host.ConsumeEvents[lifecycle.DestructionOrder](v, host.EvDestructionOrder); err == nil {
		for _, o := range orders {
			cmdbuf.PublishEvent[lifecycle.DestructionAck](v.GetCommandBuffer(), host.EvDestructionAck,
				lifecycle.DestructionAck{Entity: o.Entity, ModuleID: moduleID, OK: true})
		}
	}
}

// PhysicsModule integrates Velocity into Position every frame and raises
// SpeedAlert for entities moving faster than SpeedAlertThreshold. It is a
// lifecycle participant: every staged entity waits on its ack.
type PhysicsModule struct{}

func NewPhysicsModule() *PhysicsModule { return &PhysicsModule{} }

func (m *PhysicsModule) Name() string                    { return "physics" }
func (m *PhysicsModule) Tier() host.Tier                  { return host.Fast }
func (m *PhysicsModule) UpdateFrequency() uint32          { return 1 }
func (m *PhysicsModule) Policy() host.ExecutionPolicy     { return host.Synchronous }

func (m *PhysicsModule) Tick(v *host.View, dt float64) {
	ackLifecycle(v, "physics")

	cmds := v.GetCommandBuffer()
	it := v.Query().With(CompPosition).With(CompVelocity).Build().Iter()
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		pos, err := host.GetComponentRO[Position](v, e, CompPosition)
		if err != nil {
			continue
		}
		vel, err := host.GetComponentRO[Velocity](v, e, CompVelocity)
		if err != nil {
			continue
		}
		next := Position{X: pos.X + vel.DX*dt, Y: pos.Y + vel.DY*dt}
		cmdbuf.SetComponent[Position](cmds, cmdbuf.RefEntity(e), CompPosition, next)

		if speed := math.Hypot(vel.DX, vel.DY); speed > SpeedAlertThreshold {
			cmdbuf.PublishEvent[SpeedAlert](cmds, EvSpeedAlert, SpeedAlert{Entity: e, Speed: speed})
		}
	}
}

// LoggerModule is the second lifecycle participant; it acks every
// handshake order it sees and, at verbosity 1, logs a per-turn summary.
// Running at UpdateFrequency 5 off a Shared snapshot exercises the
// frequency gate and accumulator-fed event delivery: every order
// published while the logger was throttled is flushed into its view at
// its next acquire, so the handshake completes despite the cadence gap.
type LoggerModule struct{}

func NewLoggerModule() *LoggerModule { return &LoggerModule{} }

func (m *LoggerModule) Name() string                { return "logger" }
func (m *LoggerModule) Tier() host.Tier              { return host.Fast }
func (m *LoggerModule) UpdateFrequency() uint32      { return 5 }
func (m *LoggerModule) Policy() host.ExecutionPolicy { return host.Synchronous }

func (m *LoggerModule) Tick(v *host.View, dt float64) {
	ackLifecycle(v, "logger")
	logTurn(v, dt)
}

// AnalyticsModule runs off a pooled, Position-only snapshot at a third of
// simulation rate, on a worker goroutine. It does not participate in
// the lifecycle handshake.
type AnalyticsModule struct {
	alerts int64
}

func NewAnalyticsModule() *AnalyticsModule { return &AnalyticsModule{} }

func (m *AnalyticsModule) Name() string                { return "analytics" }
func (m *AnalyticsModule) Tier() host.Tier              { return host.Slow }
func (m *AnalyticsModule) UpdateFrequency() uint32      { return 3 }
func (m *AnalyticsModule) Policy() host.ExecutionPolicy { return host.Parallel }

func (m *AnalyticsModule) Tick(v *host.View, dt float64) {
	alerts, _ := host.ConsumeEvents[SpeedAlert](v, EvSpeedAlert)
	m.alerts += int64(len(alerts))
	for _, a := range alerts {
		nlog.Warningf("analytics: entity %v speed %.1f exceeds threshold (total %d)\n", a.Entity, a.Speed, m.alerts)
	}

	var sumDist float64
	n := 0
	it := v.Query().With(CompPosition).Build().Iter()
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		pos, err := host.GetComponentRO[Position](v, e, CompPosition)
		if err != nil {
			continue
		}
		sumDist += math.Hypot(pos.X, pos.Y)
		n++
	}
	if n > 0 && nlog.V(2) {
		nlog.Infof("analytics: avg distance from origin %.2f over %d entities\n", sumDist/float64(n), n)
	}
}

func logTurn(v *host.View, dt float64) {
	if !nlog.V(1) {
		return
	}
	n := len(v.Query().With(CompPosition).Build().Collect())
	nlog.Infof("tick=%d entities=%d dt=%.3f\n", v.Tick(), n, dt)
}
