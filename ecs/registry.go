/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package ecs

import (
	"reflect"

	"github.com/pjanec/modulehost/kerrors"
)

// ComponentID identifies a component type. Ids are explicit and stable,
// assigned at type declaration; a non-unique id is rejected.
type ComponentID int

// StorageKind distinguishes unmanaged (columnar POD) from managed
// (reference-typed) component storage.
type StorageKind int

const (
	Unmanaged StorageKind = iota
	Managed
)

// RetentionPolicy mirrors event.RetentionPolicy for components: fixed at
// registration. The core does not currently branch on this
// value for unmanaged components beyond bookkeeping -- it exists so a
// caller (or a future replica policy) can distinguish hot simulation state
// from write-once, replication-worthy records.
type RetentionPolicy int

const (
	Persistent RetentionPolicy = iota
	Transient
)

type componentMeta struct {
	id            ComponentID
	kind          StorageKind
	policy        RetentionPolicy
	chunkCapacity int
	goType        reflect.Type
}

// registry is the schema shared by a repository and every replica derived
// from it: which component ids exist, their storage kind, and (for
// unmanaged types) their per-chunk capacity, resolved once at
// registration time and frozen for that column's lifetime.
type registry struct {
	meta map[ComponentID]componentMeta
}

func newRegistry() *registry {
	return &registry{meta: make(map[ComponentID]componentMeta)}
}

func registerMeta[T any](reg *registry, id ComponentID, kind StorageKind, policy RetentionPolicy, chunkCapacity int) error {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if existing, ok := reg.meta[id]; ok {
		if existing.kind != kind || existing.policy != policy || existing.goType != t {
			return kerrors.Schema("component id registered twice with differing type/storage/policy")
		}
		return nil // DoubleRegister with identical args is a no-op
	}
	reg.meta[id] = componentMeta{id: id, kind: kind, policy: policy, chunkCapacity: chunkCapacity, goType: t}
	return nil
}
