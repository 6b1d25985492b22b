/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package event

import "github.com/pjanec/modulehost/kerrors"

// Registry is a repository's full set of typed event buses: the live
// world has one, and so does every replica.
type Registry struct {
	buses map[ID]busStore
	kinds map[ID]RetentionPolicy
}

// NewRegistry creates an empty bus registry.
func NewRegistry() *Registry {
	return &Registry{buses: make(map[ID]busStore), kinds: make(map[ID]RetentionPolicy)}
}

// Register registers event type E under id with the given retention
// policy, and returns its bus. Registering the same id twice with the same
// policy is a no-op returning the existing bus; a differing policy is a
// SchemaError.
func Register[E any](reg *Registry, id ID, policy RetentionPolicy) (*Bus[E], error) {
	if existing, ok := reg.buses[id]; ok {
		b, ok := existing.(*Bus[E])
		if !ok || b.ret != policy {
			return nil, kerrors.Schema("event id registered twice with differing type/policy")
		}
		return b, nil
	}
	b := NewBus[E](policy)
	reg.buses[id] = b
	reg.kinds[id] = policy
	return b, nil
}

// BusOf returns the bus registered for id, or an error if none was.
func BusOf[E any](reg *Registry, id ID) (*Bus[E], error) {
	existing, ok := reg.buses[id]
	if !ok {
		return nil, kerrors.Schema("unknown event id")
	}
	b, ok := existing.(*Bus[E])
	if !ok {
		return nil, kerrors.Schema("event id registered under a different type")
	}
	return b, nil
}

// Tick swaps every registered bus: the read buffer each consumer drains
// this frame becomes whatever was published during the frame just ended.
func (r *Registry) Tick() {
	for _, b := range r.buses {
		b.swap()
	}
}

// IDs returns every registered event id, in no particular order.
func (r *Registry) IDs() []ID {
	ids := make([]ID, 0, len(r.buses))
	for id := range r.buses {
		ids = append(ids, id)
	}
	return ids
}

// PolicyOf returns the retention policy registered for id.
func (r *Registry) PolicyOf(id ID) (RetentionPolicy, bool) {
	p, ok := r.kinds[id]
	return p, ok
}
