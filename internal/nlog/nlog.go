// Package nlog is the kernel's leveled logger: line-oriented, allocation-free
// on the fast path when the configured verbosity gate is closed.
/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package nlog

import (
	"log"
	"os"
	"sync/atomic"
)

// verbosity gates expensive call sites: callers check V(n) before
// formatting anything, so a closed gate costs one atomic load.
var verbosity atomic.Int32

var std = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)

// SetVerbosity sets the global verbosity threshold. Call sites guarded by
// V(n) only log when n <= the configured threshold.
func SetVerbosity(level int) { verbosity.Store(int32(level)) }

// V reports whether a call site at the given verbosity level should log.
func V(level int) bool { return int32(level) <= verbosity.Load() }

func Infoln(args ...any)             { std.Print(append([]any{"I "}, args...)...) }
func Infof(format string, a ...any)  { std.Printf("I "+format, a...) }
func Warningln(args ...any)          { std.Print(append([]any{"W "}, args...)...) }
func Warningf(format string, a ...any) { std.Printf("W "+format, a...) }
func Errorln(args ...any)            { std.Print(append([]any{"E "}, args...)...) }
func Errorf(format string, a ...any) { std.Printf("E "+format, a...) }

// Error is the Errorln variant that accepts a single error.
func Error(err error) {
	if err != nil {
		std.Print("E ", err.Error())
	}
}
