// Package mono provides a monotonic clock source: frame timing and
// lifecycle timeouts must never be perturbed by a wall-clock adjustment
// (NTP step, DST, operator `date -s`).
/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package mono

import "time"

var start = time.Now()

// NanoTime returns nanoseconds elapsed since package initialisation, on
// the monotonic clock. Values are only meaningful relative to each other.
func NanoTime() int64 { return time.Since(start).Nanoseconds() }

// Since returns the elapsed duration since a NanoTime() reading.
func Since(ts int64) time.Duration { return time.Duration(NanoTime() - ts) }
