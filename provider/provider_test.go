/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package provider_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/pjanec/modulehost/ecs"
	"github.com/pjanec/modulehost/event"
	"github.com/pjanec/modulehost/provider"
)

type mark struct{ N int }

const compMark ecs.ComponentID = 1

type extra struct{ N int }

const compExtra ecs.ComponentID = 2

type ping struct{ N int }

const evPing event.ID = 1

func setupSchema(acc *event.Accumulator) provider.SchemaSetup {
	return func(r *ecs.EntityRepository) {
		_, _ = ecs.RegisterComponent[mark](r, compMark, ecs.Persistent, 4)
		_, _ = ecs.RegisterComponent[extra](r, compExtra, ecs.Persistent, 4)
		_, _ = ecs.RegisterEventType[ping](r, acc, evPing, event.Persistent)
	}
}

// frame advances live past its sync point the way the kernel does: swap
// event buses, capture into the accumulator, then advance the tick.
func frame(live *ecs.EntityRepository, acc *event.Accumulator) {
	live.SwapEventBuses()
	acc.Capture(live.Events(), live.CurrentTick())
	live.AdvanceTick()
}

var _ = Describe("Mirror", func() {
	var (
		live *ecs.EntityRepository
		acc  *event.Accumulator
		m    *provider.Mirror
	)

	BeforeEach(func() {
		acc = event.NewAccumulator(8)
		live = ecs.NewEntityRepository(4)
		setupSchema(acc)(live)
		m = provider.NewMirror(4, acc, setupSchema(acc))
	})

	It("mirrors a component written to the live world after Refresh", func() {
		e := live.CreateEntity()
		Expect(ecs.SetComponent(live, e, compMark, mark{N: 7})).To(Succeed())

		m.Refresh(live)

		view := m.AcquireView()
		v, err := ecs.GetComponentRO[mark](view, e, compMark)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.N).To(Equal(7))
		m.ReleaseView(view)
	})

	It("delivers events captured since its previous refresh, every frame", func() {
		bus, err := ecs.EventBus[ping](live, evPing)
		Expect(err).NotTo(HaveOccurred())
		bus.Publish(ping{N: 1})
		frame(live, acc)
		m.Refresh(live)

		view := m.AcquireView()
		got, err := event.BusOf[ping](view.Events(), evPing)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Consume()).To(ConsistOf(ping{N: 1}))
		m.ReleaseView(view)

		bus.Publish(ping{N: 2})
		frame(live, acc)
		m.Refresh(live)

		view2 := m.AcquireView()
		Expect(view2).To(BeIdenticalTo(view), "the mirror's address is stable across frames")
		got2, err := event.BusOf[ping](view2.Events(), evPing)
		Expect(err).NotTo(HaveOccurred())
		Expect(got2.Consume()).To(ConsistOf(ping{N: 2}), "only events since the last refresh, not N=1 again")
	})
})

var _ = Describe("Pooled", func() {
	var (
		live *ecs.EntityRepository
		acc  *event.Accumulator
		p    *provider.Pooled
	)

	BeforeEach(func() {
		acc = event.NewAccumulator(8)
		live = ecs.NewEntityRepository(4)
		setupSchema(acc)(live)
		mask := ecs.BitMask256{}.Set(int(compMark))
		p = provider.NewPooled(mask, 1, 4, acc, setupSchema(acc))
	})

	It("syncs lazily: acquiring after a later write sees that write", func() {
		e := live.CreateEntity()
		Expect(ecs.SetComponent(live, e, compMark, mark{N: 1})).To(Succeed())
		p.Refresh(live)

		Expect(ecs.SetComponent(live, e, compMark, mark{N: 2})).To(Succeed())

		view := p.AcquireView()
		v, err := ecs.GetComponentRO[mark](view, e, compMark)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.N).To(Equal(2), "sync happens at acquire time, not at refresh time")
		p.ReleaseView(view)
	})

	It("hides columns outside the provider's mask from the view", func() {
		e := live.CreateEntity()
		Expect(ecs.SetComponent(live, e, compMark, mark{N: 1})).To(Succeed())
		Expect(ecs.SetComponent(live, e, compExtra, extra{N: 2})).To(Succeed())
		p.Refresh(live)

		view := p.AcquireView()
		Expect(view.HasComponent(e, compMark)).To(BeTrue())
		Expect(view.HasComponent(e, compExtra)).To(BeFalse(),
			"a column the mask never selected must read as absent on the view")
		p.ReleaseView(view)
	})

	It("reuses a released replica for a later acquisition", func() {
		e := live.CreateEntity()
		Expect(ecs.SetComponent(live, e, compMark, mark{N: 5})).To(Succeed())
		p.Refresh(live)
		view1 := p.AcquireView()
		p.ReleaseView(view1)

		p.Refresh(live)
		view2 := p.AcquireView()
		Expect(view2).To(BeIdenticalTo(view1))
		p.ReleaseView(view2)
	})
})

var _ = Describe("Shared", func() {
	var (
		live *ecs.EntityRepository
		acc  *event.Accumulator
		s    *provider.Shared
	)

	BeforeEach(func() {
		acc = event.NewAccumulator(8)
		live = ecs.NewEntityRepository(4)
		setupSchema(acc)(live)
		mask := ecs.BitMask256{}.Set(int(compMark))
		s = provider.NewSharedUnion(mask, 1, 4, acc, setupSchema(acc))
	})

	It("hands the same view to every acquirer within a frame", func() {
		e := live.CreateEntity()
		Expect(ecs.SetComponent(live, e, compMark, mark{N: 3})).To(Succeed())
		s.Refresh(live)

		v1 := s.AcquireView()
		v2 := s.AcquireView()
		Expect(v2).To(BeIdenticalTo(v1))

		got, err := ecs.GetComponentRO[mark](v1, e, compMark)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.N).To(Equal(3))

		s.ReleaseView(v1)
		s.ReleaseView(v2)
	})

	It("resyncs to a new view only after the next Refresh", func() {
		e := live.CreateEntity()
		Expect(ecs.SetComponent(live, e, compMark, mark{N: 1})).To(Succeed())
		s.Refresh(live)
		v1 := s.AcquireView()

		Expect(ecs.SetComponent(live, e, compMark, mark{N: 2})).To(Succeed())
		s.Refresh(live)
		v2 := s.AcquireView()

		Expect(v2).NotTo(BeIdenticalTo(v1))
		got, err := ecs.GetComponentRO[mark](v2, e, compMark)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.N).To(Equal(2))

		// v1 was superseded while still outstanding; releasing it returns it
		// to the pool instead of leaving it as the frame's recyclable.
		s.ReleaseView(v1)
		s.ReleaseView(v2)
	})
})
