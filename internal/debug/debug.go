// Package debug provides assertions that cost nothing in a production
// build and panic immediately in a debug one.
/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package debug

import "fmt"

// Enabled gates every Assert/AssertNoErr call in this package. Flip it at
// process startup (e.g. from an init in a `debug` build tag file, or from
// a test's TestMain) -- never inside a hot loop.
var Enabled = false

// Assert panics with msg (if any) when cond is false and Enabled is set.
func Assert(cond bool, msg ...any) {
	if !Enabled || cond {
		return
	}
	if len(msg) == 0 {
		panic("assertion failed")
	}
	panic(fmt.Sprint(msg...))
}

// AssertNoErr panics with err when it is non-nil and Enabled is set.
func AssertNoErr(err error) {
	if !Enabled || err == nil {
		return
	}
	panic(err)
}

// Assertf is the formatted variant of Assert.
func Assertf(cond bool, format string, a ...any) {
	if !Enabled || cond {
		return
	}
	panic(fmt.Sprintf(format, a...))
}
