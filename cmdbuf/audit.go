/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package cmdbuf

import (
	"io"

	"github.com/tinylib/msgp/msgp"
)

// AuditEntry is one frame's command-playback outcome: the tick it played
// back against and how many records playback dropped, across every reason
// PlaybackStats.Dropped counts (stale or never-alive handle, unresolved
// Pending ref, unknown component/event id) -- never fatal, but worth a
// postmortem trail when it happens repeatedly.
type AuditEntry struct {
	Tick    uint64
	Dropped int64
}

// NewAuditWriter wraps w as a buffered MessagePack writer. Callers own
// Flush/Close on the underlying io.Writer.
func NewAuditWriter(w io.Writer) *msgp.Writer {
	return msgp.NewWriter(w)
}

// WriteAuditEntry appends one frame's entry as a two-element MessagePack
// array [tick, dropped]. Written by hand against msgp.Writer rather than a
// generated Marshaler, since AuditEntry is a write-only diagnostic record
// with no corresponding decoder in this repo.
func WriteAuditEntry(w *msgp.Writer, e AuditEntry) error {
	if err := w.WriteArrayHeader(2); err != nil {
		return err
	}
	if err := w.WriteUint64(e.Tick); err != nil {
		return err
	}
	return w.WriteInt64(e.Dropped)
}
