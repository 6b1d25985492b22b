/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package host

import (
	"github.com/pjanec/modulehost/internal/hostconfig"
	"github.com/pjanec/modulehost/internal/mono"
)

// timeController computes dt per frame. Standalone
// measures the wall clock via the monotonic clock; Driven expects the
// caller to supply dt explicitly through Kernel.StepDriven.
type timeController struct {
	role        hostconfig.TimeRole
	lastNano    int64
	currentTime float64
	started     bool
}

func newTimeController(role hostconfig.TimeRole) *timeController {
	return &timeController{role: role}
}

// standaloneDt measures elapsed time since the previous call.
func (t *timeController) standaloneDt() float64 {
	now := mono.NanoTime()
	if !t.started {
		t.started = true
		t.lastNano = now
		return 0
	}
	dt := float64(now-t.lastNano) / 1e9
	t.lastNano = now
	return dt
}

func (t *timeController) advance(dt float64) {
	t.currentTime += dt
}
