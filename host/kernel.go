/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package host

import (
	"context"
	"runtime"
	"time"

	"github.com/tinylib/msgp/msgp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pjanec/modulehost/cmdbuf"
	"github.com/pjanec/modulehost/ecs"
	"github.com/pjanec/modulehost/event"
	"github.com/pjanec/modulehost/internal/debug"
	"github.com/pjanec/modulehost/internal/diag"
	"github.com/pjanec/modulehost/internal/hostconfig"
	"github.com/pjanec/modulehost/internal/nlog"
	"github.com/pjanec/modulehost/lifecycle"
	"github.com/pjanec/modulehost/provider"
	"github.com/pjanec/modulehost/sched"
)

// moduleSlot is the kernel's bookkeeping for one registered module: its
// provider binding, frequency-gate counters, and this tick's command
// buffer.
type moduleSlot struct {
	mod      Module
	prov     provider.Provider
	threadID int

	framesSinceLastRun uint32
	accumDt            float64
	hasRun             bool

	cmds *cmdbuf.Buffer
}

// due reports whether slot should tick this frame, under the
// run-on-first-frame policy adopted for the frequency gate.
func (s *moduleSlot) due() bool {
	k := s.mod.UpdateFrequency()
	if k <= 1 {
		return true
	}
	if !s.hasRun {
		return true
	}
	return s.framesSinceLastRun >= k-1
}

// Kernel orchestrates one frame of the module host.
type Kernel struct {
	cfg *hostconfig.Config

	live  *ecs.EntityRepository
	acc   *event.Accumulator
	sched *sched.Scheduler
	time  *timeController

	modules []*moduleSlot

	coord *lifecycle.Coordinator

	constructionOrderBus  *event.Bus[lifecycle.ConstructionOrder]
	constructionAckBus    *event.Bus[lifecycle.ConstructionAck]
	constructionFailedBus *event.Bus[lifecycle.ConstructionFailed]
	destructionOrderBus   *event.Bus[lifecycle.DestructionOrder]
	destructionAckBus     *event.Bus[lifecycle.DestructionAck]
	lifecycleFailedBus    *event.Bus[lifecycle.LifecycleFailed]

	pendingTombstones []ecs.Entity

	sem   *semaphore.Weighted
	Stats *diag.Stats

	audit *msgp.Writer

	initialised bool
}

// New creates a kernel over the given live world, wiring lifecycle events
// and stats. Call RegisterModule for each module, then Initialise.
func New(cfg *hostconfig.Config, live *ecs.EntityRepository, lifecycleParticipants []string, stats *diag.Stats) *Kernel {
	acc := event.NewAccumulator(cfg.EventHistoryFrames)
	RegisterLifecycleEvents(live, acc)

	k := &Kernel{
		cfg:   cfg,
		live:  live,
		acc:   acc,
		sched: sched.New(),
		time:  newTimeController(cfg.TimeRole),
		coord: lifecycle.New(lifecycleParticipants, cfg.LifecycleTimeoutFrames),
		Stats: stats,
	}
	k.constructionOrderBus, _ = ecs.EventBus[lifecycle.ConstructionOrder](live, EvConstructionOrder)
	k.constructionAckBus, _ = ecs.EventBus[lifecycle.ConstructionAck](live, EvConstructionAck)
	k.constructionFailedBus, _ = ecs.EventBus[lifecycle.ConstructionFailed](live, EvConstructionFailed)
	k.destructionOrderBus, _ = ecs.EventBus[lifecycle.DestructionOrder](live, EvDestructionOrder)
	k.destructionAckBus, _ = ecs.EventBus[lifecycle.DestructionAck](live, EvDestructionAck)
	k.lifecycleFailedBus, _ = ecs.EventBus[lifecycle.LifecycleFailed](live, EvLifecycleFailed)

	maxConc := cfg.MaxConcurrentModules
	if maxConc <= 0 {
		maxConc = runtime.GOMAXPROCS(0)
	}
	k.sem = semaphore.NewWeighted(int64(maxConc))
	return k
}

// Accumulator exposes the frame accumulator so providers can be
// constructed with it before Initialise.
func (k *Kernel) Accumulator() *event.Accumulator { return k.acc }

// Live exposes the live world, e.g. for a caller registering components.
func (k *Kernel) Live() *ecs.EntityRepository { return k.live }

// Scheduler exposes the system scheduler for module RegisterSystems hooks.
func (k *Kernel) Scheduler() *sched.Scheduler { return k.sched }

// SetAuditTrail wires a MessagePack writer that records one AuditEntry per
// frame's command playback for postmortem export. Pass nil
// to disable. The caller owns flushing/closing the underlying io.Writer;
// Cleanup flushes the msgp.Writer's own internal buffer.
func (k *Kernel) SetAuditTrail(w *msgp.Writer) { k.audit = w }

// RegisterModule registers mod bound to prov. Order of registration is
// the order synchronous modules run in, and the thread id used for
// deterministic command-buffer merge.
func (k *Kernel) RegisterModule(mod Module, prov provider.Provider) {
	if k.initialised {
		panic("host: RegisterModule called after Initialise (ConcurrencyViolation)")
	}
	slot := &moduleSlot{mod: mod, prov: prov, threadID: len(k.modules)}
	slot.cmds = newCommandBuffer(slot.threadID, k.cfg.CommandBufferInitialBytes)
	k.modules = append(k.modules, slot)
	if reg, ok := mod.(SystemRegistrar); ok {
		reg.RegisterSystems(k.sched)
	}
}

// Initialise resolves the system scheduler's order and runs every
// module's optional Initialise hook. Must be called once, after every
// RegisterModule.
func (k *Kernel) Initialise() error {
	if err := k.sched.Initialise(); err != nil {
		return err
	}
	ctx := &Context{Kernel: k}
	for _, slot := range k.modules {
		if initr, ok := slot.mod.(Initialiser); ok {
			if err := initr.Initialise(ctx); err != nil {
				return err
			}
		}
	}
	k.initialised = true
	return nil
}

// Cleanup runs every module's optional Cleanup hook, then flushes the
// audit writer if one is configured. Parallel workers are already joined
// at the end of each frame's dispatch, so none are in flight here.
func (k *Kernel) Cleanup() {
	ctx := &Context{Kernel: k}
	for _, slot := range k.modules {
		if c, ok := slot.mod.(Cleaner); ok {
			c.Cleanup(ctx)
		}
	}
	if k.audit != nil {
		if err := k.audit.Flush(); err != nil {
			nlog.Error(err)
		}
	}
}

// StepStandalone runs one frame, measuring dt from the monotonic clock.
// Valid only when the kernel was configured with TimeRole = Standalone.
func (k *Kernel) StepStandalone() {
	debug.Assert(k.cfg.TimeRole == hostconfig.Standalone, "StepStandalone called on a Driven-time kernel")
	dt := k.time.standaloneDt()
	k.step(dt)
}

// StepDriven runs one frame with an externally supplied dt. Valid only
// when the kernel was configured with TimeRole = Driven.
func (k *Kernel) StepDriven(dt float64) {
	debug.Assert(k.cfg.TimeRole == hostconfig.Driven, "StepDriven called on a Standalone-time kernel")
	k.step(dt)
}

func (k *Kernel) step(dt float64) {
	start := time.Now()
	k.time.advance(dt)

	// 2. Simulation phase.
	k.sched.RunPhases([]sched.Phase{sched.Input, sched.BeforeSync, sched.Simulation}, k.live, dt)

	// 3. Sync point.
	k.live.SwapEventBuses()
	tick := k.live.CurrentTick()
	k.acc.Capture(k.live.Events(), tick)
	for _, slot := range k.modules {
		slot.prov.Refresh(k.live)
	}

	// 4. Module dispatch (+5. frequency gate).
	k.dispatch(dt, tick)

	// 6. Command merge.
	buffers := make([]*cmdbuf.Buffer, len(k.modules))
	for i, slot := range k.modules {
		buffers[i] = slot.cmds
	}
	stats := cmdbuf.Playback(k.live, buffers)
	if k.Stats != nil {
		k.Stats.CommandPlaybackFails.Add(stats.Dropped.Load())
		k.Stats.StaleHandleDrops.Add(stats.StaleHandleDrops.Load())
	}
	if k.audit != nil {
		entry := cmdbuf.AuditEntry{Tick: tick, Dropped: stats.Dropped.Load()}
		if err := cmdbuf.WriteAuditEntry(k.audit, entry); err != nil {
			nlog.Error(err)
		}
	}

	// 7. Lifecycle turn.
	k.lifecycleTurn(tick)

	// 8. Post-simulation phase.
	k.sched.RunPhases([]sched.Phase{sched.PostSimulation, sched.Export}, k.live, dt)

	// 9. Tick advance.
	k.live.AdvanceTick()

	if k.Stats != nil {
		k.Stats.FrameDurationSeconds.Observe(time.Since(start).Seconds())
	}
}

func (k *Kernel) dispatch(dt float64, tick uint64) {
	var parallelSlots []*moduleSlot
	for _, slot := range k.modules {
		if !slot.due() {
			slot.accumDt += dt
			slot.framesSinceLastRun++
			continue
		}
		if slot.mod.Policy() == Parallel {
			parallelSlots = append(parallelSlots, slot)
			continue
		}
		k.runModule(slot, dt, tick)
	}
	if len(parallelSlots) == 0 {
		return
	}

	g, ctx := errgroup.WithContext(context.Background())
	for _, slot := range parallelSlots {
		slot := slot
		if err := k.sem.Acquire(ctx, 1); err != nil {
			continue
		}
		g.Go(func() error {
			defer k.sem.Release(1)
			k.runModule(slot, dt, tick)
			return nil
		})
	}
	_ = g.Wait()
}

func (k *Kernel) runModule(slot *moduleSlot, dt float64, tick uint64) {
	deltaTime := slot.accumDt + dt
	view := &View{
		repo: slot.prov.AcquireView(),
		cmds: slot.cmds,
		now:  k.time.currentTime,
		tick: tick,
	}
	defer slot.prov.ReleaseView(view.repo)

	k.tickWithSoftTimeout(slot, view, deltaTime, tick)

	slot.accumDt = 0
	slot.framesSinceLastRun = 0
	slot.hasRun = true
	if k.Stats != nil {
		k.Stats.DispatchedModules.Inc()
	}
}

// tickWithSoftTimeout runs slot.mod.Tick and, if ModuleSoftTimeout is
// configured, watches for it overrunning that deadline. A trip is logged
// and counted but never cancels the module: the goroutine running Tick is
// always joined before this call returns, never cancelled, so a wedged
// module still stalls the frame --
// the deadline only turns that stall into an observable signal.
func (k *Kernel) tickWithSoftTimeout(slot *moduleSlot, view *View, dt float64, tick uint64) {
	if k.cfg.ModuleSoftTimeout <= 0 {
		slot.mod.Tick(view, dt)
		return
	}

	done := make(chan struct{})
	go func() {
		slot.mod.Tick(view, dt)
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(k.cfg.ModuleSoftTimeout):
		nlog.Warningf("module %q exceeded its %s soft timeout on tick %d", slot.mod.Name(), k.cfg.ModuleSoftTimeout, tick)
		if k.Stats != nil {
			k.Stats.ModuleSoftTimeouts.Inc()
		}
		<-done
	}
}

func (k *Kernel) lifecycleTurn(tick uint64) {
	// finalise tombstones from the previous frame: one frame of grace
	// after the handshake completes.
	for _, e := range k.pendingTombstones {
		k.live.DestroyEntity(e)
	}
	k.pendingTombstones = k.pendingTombstones[:0]

	// discover newly staged / newly tearing-down entities.
	constructingIt := k.live.Query().WithLifecycle(ecs.Constructing).Build().Iter()
	for {
		e, ok := constructingIt.Next()
		if !ok {
			break
		}
		if !k.coord.IsTrackingConstruction(e) {
			order := k.coord.BeginConstruction(e, tick)
			k.constructionOrderBus.Publish(order)
		}
	}
	tearingIt := k.live.Query().WithLifecycle(ecs.TearDown).Build().Iter()
	for {
		e, ok := tearingIt.Next()
		if !ok {
			break
		}
		if !k.coord.IsTrackingDestruction(e) {
			order := k.coord.BeginDestruction(e, tick)
			k.destructionOrderBus.Publish(order)
		}
	}

	constructionAcks := k.constructionAckBus.Consume()
	destructionAcks := k.destructionAckBus.Consume()
	cOut, dOut := k.coord.Tick(constructionAcks, destructionAcks, tick)

	for _, o := range cOut {
		if o.Active {
			if err := k.live.SetLifecycle(o.Entity, ecs.Active); err != nil {
				nlog.Error(err)
			}
			continue
		}
		k.live.DestroyEntity(o.Entity)
		k.constructionFailedBus.Publish(lifecycle.ConstructionFailed{Entity: o.Entity})
		k.lifecycleFailedBus.Publish(lifecycle.LifecycleFailed{Entity: o.Entity, Phase: lifecycle.PhaseConstructing})
		if k.Stats != nil {
			k.Stats.LifecycleTimeouts.Inc()
		}
	}
	for _, o := range dOut {
		if o.Active {
			_ = k.live.SetLifecycle(o.Entity, ecs.Ghost)
			k.pendingTombstones = append(k.pendingTombstones, o.Entity)
			continue
		}
		k.live.DestroyEntity(o.Entity)
		k.lifecycleFailedBus.Publish(lifecycle.LifecycleFailed{Entity: o.Entity, Phase: lifecycle.PhaseTearDown})
		if k.Stats != nil {
			k.Stats.LifecycleTimeouts.Inc()
		}
	}
}
