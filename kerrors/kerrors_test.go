/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package kerrors_test

import (
	"errors"
	"testing"

	"github.com/pjanec/modulehost/kerrors"
)

func TestWrappedErrorsMatchTheirSentinelViaIs(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"schema", kerrors.Schema("bad id"), kerrors.ErrSchema},
		{"stale handle", kerrors.StaleHandle("dead entity"), kerrors.ErrStaleHandle},
		{"capacity", kerrors.Capacity("full"), kerrors.ErrCapacity},
		{"lifecycle timeout", kerrors.LifecycleTimeout("too slow"), kerrors.ErrLifecycleTimeout},
		{"concurrency violation", kerrors.ConcurrencyViolation("wrong thread"), kerrors.ErrConcurrencyViolation},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if !errors.Is(c.err, c.sentinel) {
				t.Fatalf("expected errors.Is(%v, %v) to hold", c.err, c.sentinel)
			}
		})
	}
}

func TestWrappedErrorsDoNotCrossMatch(t *testing.T) {
	if errors.Is(kerrors.Schema("x"), kerrors.ErrStaleHandle) {
		t.Fatalf("a schema error must not match ErrStaleHandle")
	}
}
