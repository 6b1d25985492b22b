// Package sched is the system scheduler: systems declare a
// fixed phase plus before/after constraints on other systems, and
// initialise() resolves a deterministic order per phase via Kahn's
// topological sort.
/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package sched

import (
	"fmt"

	"github.com/pjanec/modulehost/ecs"
)

// Phase is one of the fixed, ordered simulation phases.
type Phase int

const (
	Input Phase = iota
	BeforeSync
	Simulation
	PostSimulation
	Export
)

// Phases lists every phase in execution order.
var Phases = []Phase{Input, BeforeSync, Simulation, PostSimulation, Export}

func (p Phase) String() string {
	switch p {
	case Input:
		return "Input"
	case BeforeSync:
		return "BeforeSync"
	case Simulation:
		return "Simulation"
	case PostSimulation:
		return "PostSimulation"
	case Export:
		return "Export"
	default:
		return "Unknown"
	}
}

// System is one unit of per-phase work. Name must be
// unique within the scheduler; Before/After name other systems in the
// same phase.
type System interface {
	Name() string
	Phase() Phase
	Before() []string
	After() []string
	Run(view *ecs.EntityRepository, dt float64)
}

// Scheduler accumulates systems via Register, then resolves a
// deterministic per-phase order in Initialise. Registration after
// Initialise is a ConcurrencyViolation.
type Scheduler struct {
	byPhase     map[Phase][]System
	initialised bool
	order       map[Phase][]System
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{byPhase: make(map[Phase][]System)}
}

// Register accumulates a system. Panics if called after Initialise --
// this is a programmer error, not a
// recoverable runtime condition.
func (s *Scheduler) Register(sys System) {
	if s.initialised {
		panic("sched: Register called after Initialise (ConcurrencyViolation)")
	}
	s.byPhase[sys.Phase()] = append(s.byPhase[sys.Phase()], sys)
}

// Initialise resolves, for every phase, a topological order satisfying
// every Before/After constraint. A cycle aborts initialisation with an
// error naming the phase.
func (s *Scheduler) Initialise() error {
	order := make(map[Phase][]System, len(Phases))
	for _, ph := range Phases {
		systems := s.byPhase[ph]
		sorted, err := topoSort(systems)
		if err != nil {
			return fmt.Errorf("sched: phase %s: %w", ph, err)
		}
		order[ph] = sorted
	}
	s.order = order
	s.initialised = true
	return nil
}

// Run executes every system in Initialise's computed order for the given
// phase.
func (s *Scheduler) Run(phase Phase, view *ecs.EntityRepository, dt float64) {
	for _, sys := range s.order[phase] {
		sys.Run(view, dt)
	}
}

// RunPhases runs every phase in the list, in order, e.g. for the
// simulation or post-simulation step of the frame.
func (s *Scheduler) RunPhases(phases []Phase, view *ecs.EntityRepository, dt float64) {
	for _, ph := range phases {
		s.Run(ph, view, dt)
	}
}

// topoSort performs Kahn's algorithm over one phase's systems, breaking
// ties by registration order so the result is deterministic.
func topoSort(systems []System) ([]System, error) {
	byName := make(map[string]int, len(systems))
	for i, s := range systems {
		byName[s.Name()] = i
	}
	n := len(systems)
	adj := make([][]int, n)  // edge u -> v means u must run before v
	indeg := make([]int, n)

	addEdge := func(u, v int) {
		adj[u] = append(adj[u], v)
		indeg[v]++
	}
	for i, s := range systems {
		for _, before := range s.Before() {
			if j, ok := byName[before]; ok {
				addEdge(i, j)
			}
		}
		for _, after := range s.After() {
			if j, ok := byName[after]; ok {
				addEdge(j, i)
			}
		}
	}

	var queue []int
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}
	// registration-order tie-break: queue stays in ascending index order
	// as long as we always pop the smallest-index zero-indegree node.
	var out []System
	remaining := indeg
	for len(queue) > 0 {
		minPos := 0
		for i, idx := range queue {
			if idx < queue[minPos] {
				minPos = i
			}
		}
		u := queue[minPos]
		queue = append(queue[:minPos], queue[minPos+1:]...)
		out = append(out, systems[u])
		for _, v := range adj[u] {
			remaining[v]--
			if remaining[v] == 0 {
				queue = append(queue, v)
			}
		}
	}
	if len(out) != n {
		return nil, fmt.Errorf("cycle detected among systems")
	}
	return out, nil
}
