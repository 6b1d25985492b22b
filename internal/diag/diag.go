// Package diag is the kernel's observability surface: Prometheus
// counters/gauges for steady operation, plus a JSON snapshot for the
// demo CLI's stats command. Soft-failure counts surface here and are
// never fatal.
/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package diag

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// Stats holds the kernel's soft-failure and throughput counters. One
// Stats instance per kernel; registered with a caller-supplied
// Prometheus registerer so
// multiple kernels in one process don't collide.
type Stats struct {
	StaleHandleDrops      atomic.Int64
	CommandPlaybackFails  atomic.Int64
	ModuleSoftTimeouts    atomic.Int64
	LifecycleTimeouts     atomic.Int64
	FrameDurationSeconds  prometheus.Histogram
	DispatchedModules     prometheus.Counter
}

// NewStats creates a Stats and registers its Prometheus collectors with
// reg. Pass prometheus.NewRegistry() for an isolated registry (tests,
// multiple kernels) or prometheus.DefaultRegisterer for the process-wide
// one.
func NewStats(reg prometheus.Registerer) *Stats {
	s := &Stats{
		FrameDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "modulehost_frame_duration_seconds",
			Help:    "Wall-clock duration of one kernel frame.",
			Buckets: prometheus.DefBuckets,
		}),
		DispatchedModules: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modulehost_dispatched_modules_total",
			Help: "Number of module Tick invocations.",
		}),
	}
	if reg != nil {
		reg.MustRegister(s.FrameDurationSeconds, s.DispatchedModules)
	}
	return s
}

// Snapshot is the JSON-friendly view of Stats, for the demo CLI.
type Snapshot struct {
	StaleHandleDrops     int64 `json:"stale_handle_drops"`
	CommandPlaybackFails int64 `json:"command_playback_fails"`
	ModuleSoftTimeouts   int64 `json:"module_soft_timeouts"`
	LifecycleTimeouts    int64 `json:"lifecycle_timeouts"`
}

// Snapshot returns the current counters as a struct.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		StaleHandleDrops:     s.StaleHandleDrops.Load(),
		CommandPlaybackFails: s.CommandPlaybackFails.Load(),
		ModuleSoftTimeouts:   s.ModuleSoftTimeouts.Load(),
		LifecycleTimeouts:    s.LifecycleTimeouts.Load(),
	}
}

// JSON marshals the snapshot with jsoniter.
func (s Snapshot) JSON() ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(s)
}
