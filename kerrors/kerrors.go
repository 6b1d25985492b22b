// Package kerrors defines the kernel's five error kinds as
// sentinels, wrapped with github.com/pkg/errors so a caller gets a
// stack-annotated cause while errors.Is still matches the sentinel.
/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package kerrors

import "github.com/pkg/errors"

// Sentinels. Compare with errors.Is, never with ==.
var (
	// ErrSchema: unknown component type, double registration with a
	// differing policy, or unknown event id. Fatal to initialisation.
	ErrSchema = errors.New("schema error")
	// ErrStaleHandle: operation on a handle whose generation is out of date.
	ErrStaleHandle = errors.New("stale entity handle")
	// ErrCapacity: exceeded maximum entity count or a fixed-capacity roster.
	ErrCapacity = errors.New("capacity exceeded")
	// ErrLifecycleTimeout: construction/destruction exceeded its deadline.
	ErrLifecycleTimeout = errors.New("lifecycle timeout")
	// ErrConcurrencyViolation: programmer error -- mutating the live world
	// off the main thread, double-acquiring a view, registering a system
	// after initialisation.
	ErrConcurrencyViolation = errors.New("concurrency violation")
)

// Schema wraps ErrSchema with context, e.g. the offending component name.
func Schema(msg string) error { return errors.Wrap(ErrSchema, msg) }

// StaleHandle wraps ErrStaleHandle with context.
func StaleHandle(msg string) error { return errors.Wrap(ErrStaleHandle, msg) }

// Capacity wraps ErrCapacity with context.
func Capacity(msg string) error { return errors.Wrap(ErrCapacity, msg) }

// LifecycleTimeout wraps ErrLifecycleTimeout with context.
func LifecycleTimeout(msg string) error { return errors.Wrap(ErrLifecycleTimeout, msg) }

// ConcurrencyViolation wraps ErrConcurrencyViolation with context.
func ConcurrencyViolation(msg string) error {
	return errors.Wrap(ErrConcurrencyViolation, msg)
}
