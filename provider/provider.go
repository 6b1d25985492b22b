// Package provider implements the three snapshot-provider strategies:
// persistent mirror, pooled filtered snapshot, and shared
// reference-counted snapshot. All three expose the same acquire/release/
// refresh contract so the module host can treat them interchangeably.
/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package provider

import "github.com/pjanec/modulehost/ecs"

// Provider is the contract every snapshot strategy implements.
type Provider interface {
	// AcquireView returns a read-only handle to a repository. The caller
	// must call ReleaseView with the exact value returned, exactly once,
	// before the end of the current tick.
	AcquireView() *ecs.EntityRepository
	// ReleaseView ends the borrow started by the matching AcquireView.
	ReleaseView(view *ecs.EntityRepository)
	// Refresh synchronises the provider against the live world. Called
	// once per frame at the kernel's sync point, on the main thread.
	Refresh(live *ecs.EntityRepository)
}

// SchemaSetup registers a replica's component/event schema so its columns
// exist before the first SyncFrom. Every provider applies the same
// callback to every replica it owns, mirroring the live world's schema.
type SchemaSetup func(replica *ecs.EntityRepository)
