/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package host_test

import (
	"testing"

	"github.com/pjanec/modulehost/cmdbuf"
	"github.com/pjanec/modulehost/ecs"
	"github.com/pjanec/modulehost/event"
	"github.com/pjanec/modulehost/host"
	"github.com/pjanec/modulehost/internal/hostconfig"
	"github.com/pjanec/modulehost/lifecycle"
	"github.com/pjanec/modulehost/provider"
)

type probe struct{ V int }

const compProbe ecs.ComponentID = 100

type pulse struct{ Tick uint64 }

const evPulse event.ID = 100

// testConfig is driven-time with the soft timeout off, so module ticks run
// inline and frames are fully deterministic.
func testConfig(opts ...hostconfig.Option) *hostconfig.Config {
	base := []hostconfig.Option{
		hostconfig.WithTimeRole(hostconfig.Driven),
		hostconfig.WithChunkCapacity(16),
		hostconfig.WithModuleSoftTimeout(0),
	}
	return hostconfig.New(append(base, opts...)...)
}

func testSchema(acc *event.Accumulator) provider.SchemaSetup {
	return func(r *ecs.EntityRepository) {
		_, _ = ecs.RegisterComponent[probe](r, compProbe, ecs.Persistent, 0)
		_, _ = ecs.RegisterEventType[pulse](r, acc, evPulse, event.Persistent)
		host.RegisterLifecycleEvents(r, acc)
	}
}

// ackerModule acknowledges every construction and destruction order it
// observes.
type ackerModule struct {
	name string
}

func (m *ackerModule) Name() string                 { return m.name }
func (m *ackerModule) Tier() host.Tier              { return host.Fast }
func (m *ackerModule) UpdateFrequency() uint32      { return 1 }
func (m *ackerModule) Policy() host.ExecutionPolicy { return host.Synchronous }

func (m *ackerModule) Tick(v *host.View, _ float64) {
	if orders, err := host.ConsumeEvents[lifecycle.ConstructionOrder](v, host.EvConstructionOrder); err == nil {
		for _, o := range orders {
			cmdbuf.PublishEvent(v.GetCommandBuffer(), host.EvConstructionAck,
				lifecycle.ConstructionAck{Entity: o.Entity, ModuleID: m.name, OK: true})
		}
	}
	if orders, err := host.ConsumeEvents[lifecycle.DestructionOrder](v, host.EvDestructionOrder); err == nil {
		for _, o := range orders {
			cmdbuf.PublishEvent(v.GetCommandBuffer(), host.EvDestructionAck,
				lifecycle.DestructionAck{Entity: o.Entity, ModuleID: m.name, OK: true})
		}
	}
}

func TestStagedSpawnActivatesOnceEveryParticipantAcks(t *testing.T) {
	cfg := testConfig()
	live := ecs.NewEntityRepository(cfg.ChunkCapacity)
	k := host.New(cfg, live, []string{"m1", "m2"}, nil)
	setup := testSchema(k.Accumulator())
	setup(live)

	for _, name := range []string{"m1", "m2"} {
		k.RegisterModule(&ackerModule{name: name},
			provider.NewMirror(cfg.ChunkCapacity, k.Accumulator(), setup))
	}
	if err := k.Initialise(); err != nil {
		t.Fatalf("Initialise: %v", err)
	}

	e := live.CreateStagedEntity()

	// frame 1 publishes the order, frame 2 delivers it and collects acks
	// into command buffers, frame 3 sees the acks and commits.
	for i := 0; i < 4; i++ {
		k.StepDriven(1.0 / 60)
	}

	lc, err := live.GetLifecycle(e)
	if err != nil {
		t.Fatalf("GetLifecycle: %v", err)
	}
	if lc != ecs.Active {
		t.Fatalf("expected Active after both participants acked, got %v", lc)
	}
	got := live.Query().Build().Collect()
	if len(got) != 1 || got[0] != e {
		t.Fatalf("expected the default query to return the activated entity, got %v", got)
	}
}

func TestDestructionHandshakeReleasesSlotAfterTombstoneFrame(t *testing.T) {
	cfg := testConfig()
	live := ecs.NewEntityRepository(cfg.ChunkCapacity)
	k := host.New(cfg, live, []string{"m1", "m2"}, nil)
	setup := testSchema(k.Accumulator())
	setup(live)

	for _, name := range []string{"m1", "m2"} {
		k.RegisterModule(&ackerModule{name: name},
			provider.NewMirror(cfg.ChunkCapacity, k.Accumulator(), setup))
	}
	if err := k.Initialise(); err != nil {
		t.Fatalf("Initialise: %v", err)
	}

	e := live.CreateEntity()
	if err := live.SetLifecycle(e, ecs.TearDown); err != nil {
		t.Fatalf("SetLifecycle: %v", err)
	}

	// frame 1 publishes the order, frame 2 collects acks, frame 3 commits
	// to Ghost, frame 4 finalises the tombstone.
	for i := 0; i < 3; i++ {
		k.StepDriven(1)
	}
	lc, err := live.GetLifecycle(e)
	if err != nil {
		t.Fatalf("GetLifecycle: %v", err)
	}
	if lc != ecs.Ghost {
		t.Fatalf("expected a one-frame Ghost tombstone once every participant acked, got %v", lc)
	}

	k.StepDriven(1)
	if live.IsAlive(e) {
		t.Fatalf("expected the slot released on the frame after the tombstone")
	}
}

type countModule struct {
	freq  uint32
	ticks int
}

func (m *countModule) Name() string                 { return "count" }
func (m *countModule) Tier() host.Tier              { return host.Fast }
func (m *countModule) UpdateFrequency() uint32      { return m.freq }
func (m *countModule) Policy() host.ExecutionPolicy { return host.Synchronous }
func (m *countModule) Tick(*host.View, float64)     { m.ticks++ }

func TestFrequencyGateTickCount(t *testing.T) {
	cfg := testConfig()
	live := ecs.NewEntityRepository(cfg.ChunkCapacity)
	k := host.New(cfg, live, nil, nil)
	setup := testSchema(k.Accumulator())
	setup(live)

	cm := &countModule{freq: 300}
	k.RegisterModule(cm, provider.NewMirror(cfg.ChunkCapacity, k.Accumulator(), setup))
	if err := k.Initialise(); err != nil {
		t.Fatalf("Initialise: %v", err)
	}

	for i := 0; i < 1000; i++ {
		k.StepDriven(1)
	}
	// runs on its first frame, then every 300th: frames 1, 301, 601, 901.
	if cm.ticks != 4 {
		t.Fatalf("expected 4 ticks over 1000 frames at update frequency 300, got %d", cm.ticks)
	}
}

type producerModule struct{}

func (producerModule) Name() string                 { return "producer" }
func (producerModule) Tier() host.Tier              { return host.Fast }
func (producerModule) UpdateFrequency() uint32      { return 1 }
func (producerModule) Policy() host.ExecutionPolicy { return host.Synchronous }

func (producerModule) Tick(v *host.View, _ float64) {
	cmdbuf.PublishEvent(v.GetCommandBuffer(), evPulse, pulse{Tick: v.Tick()})
}

type collectorModule struct {
	freq uint32
	got  []pulse
}

func (m *collectorModule) Name() string                 { return "collector" }
func (m *collectorModule) Tier() host.Tier              { return host.Slow }
func (m *collectorModule) UpdateFrequency() uint32      { return m.freq }
func (m *collectorModule) Policy() host.ExecutionPolicy { return host.Synchronous }

func (m *collectorModule) Tick(v *host.View, _ float64) {
	ps, err := host.ConsumeEvents[pulse](v, evPulse)
	if err != nil {
		return
	}
	m.got = append(m.got, ps...)
}

func TestThrottledConsumerSeesEveryEventSinceItsPreviousTurn(t *testing.T) {
	cfg := testConfig()
	live := ecs.NewEntityRepository(cfg.ChunkCapacity)
	k := host.New(cfg, live, nil, nil)
	setup := testSchema(k.Accumulator())
	setup(live)

	coll := &collectorModule{freq: 10}
	k.RegisterModule(producerModule{}, provider.NewMirror(cfg.ChunkCapacity, k.Accumulator(), setup))
	mask := ecs.BitMask256{}.Set(int(compProbe))
	k.RegisterModule(coll, provider.NewPooled(mask, cfg.SnapshotPoolWarmup, cfg.ChunkCapacity, k.Accumulator(), setup))
	if err := k.Initialise(); err != nil {
		t.Fatalf("Initialise: %v", err)
	}

	for i := 0; i < 11; i++ {
		k.StepDriven(1)
	}

	// the collector ran at frames 1 and 11; its second turn must deliver
	// the ten frames published in between, in order, exactly once.
	if len(coll.got) != 10 {
		t.Fatalf("expected 10 accumulated events, got %d (%v)", len(coll.got), coll.got)
	}
	for i, p := range coll.got {
		if p.Tick != uint64(i) {
			t.Fatalf("expected ticks 0..9 in order, got %v", coll.got)
		}
	}
}

type setterModule struct {
	name string
	e    ecs.Entity
	val  int
}

func (m *setterModule) Name() string                 { return m.name }
func (m *setterModule) Tier() host.Tier              { return host.Fast }
func (m *setterModule) UpdateFrequency() uint32      { return 1 }
func (m *setterModule) Policy() host.ExecutionPolicy { return host.Synchronous }

func (m *setterModule) Tick(v *host.View, _ float64) {
	cmdbuf.SetComponent(v.GetCommandBuffer(), cmdbuf.RefEntity(m.e), compProbe, probe{V: m.val})
}

func TestCommandMergeIsDeterministic(t *testing.T) {
	run := func() int {
		cfg := testConfig()
		live := ecs.NewEntityRepository(cfg.ChunkCapacity)
		k := host.New(cfg, live, nil, nil)
		setup := testSchema(k.Accumulator())
		setup(live)
		e := live.CreateEntity()

		k.RegisterModule(&setterModule{name: "first", e: e, val: 1},
			provider.NewMirror(cfg.ChunkCapacity, k.Accumulator(), setup))
		k.RegisterModule(&setterModule{name: "second", e: e, val: 2},
			provider.NewMirror(cfg.ChunkCapacity, k.Accumulator(), setup))
		if err := k.Initialise(); err != nil {
			t.Fatalf("Initialise: %v", err)
		}
		k.StepDriven(1)

		v, err := ecs.GetComponentRO[probe](live, e, compProbe)
		if err != nil {
			t.Fatalf("GetComponentRO: %v", err)
		}
		return v.V
	}

	first, second := run(), run()
	if first != second {
		t.Fatalf("same configuration must yield the same merge result, got %d then %d", first, second)
	}
	// buffers replay in registration (thread-id) order, so the later
	// module's write lands last.
	if first != 2 {
		t.Fatalf("expected the later-registered module's write to win the merge, got %d", first)
	}
}

func TestConstructionTimeoutDestroysEntityAndPublishesFailure(t *testing.T) {
	cfg := testConfig(hostconfig.WithLifecycleTimeoutFrames(3))
	live := ecs.NewEntityRepository(cfg.ChunkCapacity)
	k := host.New(cfg, live, []string{"absent"}, nil)
	setup := testSchema(k.Accumulator())
	setup(live)
	if err := k.Initialise(); err != nil {
		t.Fatalf("Initialise: %v", err)
	}

	e := live.CreateStagedEntity()
	bus, err := ecs.EventBus[lifecycle.ConstructionFailed](live, host.EvConstructionFailed)
	if err != nil {
		t.Fatalf("EventBus: %v", err)
	}

	var failed []lifecycle.ConstructionFailed
	for i := 0; i < 6; i++ {
		k.StepDriven(1)
		failed = append(failed, bus.Consume()...)
	}

	if live.IsAlive(e) {
		t.Fatalf("expected the staged entity destroyed once no participant acked within the deadline")
	}
	if len(failed) != 1 || failed[0].Entity != e {
		t.Fatalf("expected one ConstructionFailed carrying the original handle, got %v", failed)
	}
}
