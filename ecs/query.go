/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package ecs

// QueryBuilder fluently constructs an EntityQuery.
type QueryBuilder struct {
	r       *EntityRepository
	include BitMask256
	exclude BitMask256
	authInc BitMask256
	authExc BitMask256
	typeMask, typeValue uint64
	hasTypeFilter        bool
	lifecycles           []Lifecycle
}

// Query starts building a query against r. The default (no further calls)
// matches every alive entity in the Active lifecycle.
func (r *EntityRepository) Query() *QueryBuilder {
	return &QueryBuilder{r: r, lifecycles: []Lifecycle{Active}}
}

func (q *QueryBuilder) With(id ComponentID) *QueryBuilder {
	q.include = q.include.Set(int(id))
	return q
}

func (q *QueryBuilder) Without(id ComponentID) *QueryBuilder {
	q.exclude = q.exclude.Set(int(id))
	return q
}

func (q *QueryBuilder) WithAuthority(id ComponentID) *QueryBuilder {
	q.authInc = q.authInc.Set(int(id))
	return q
}

func (q *QueryBuilder) WithoutAuthority(id ComponentID) *QueryBuilder {
	q.authExc = q.authExc.Set(int(id))
	return q
}

// WithTypeTag restricts matches to entities whose type_tag, masked by
// mask, equals value.
func (q *QueryBuilder) WithTypeTag(mask, value uint64) *QueryBuilder {
	q.typeMask, q.typeValue = mask, value
	q.hasTypeFilter = true
	return q
}

// WithLifecycle restricts matches to the given lifecycle states, replacing
// the default ({Active}). Pass no arguments to match every lifecycle.
func (q *QueryBuilder) WithLifecycle(states ...Lifecycle) *QueryBuilder {
	q.lifecycles = states
	return q
}

// Build finalises the query.
func (q *QueryBuilder) Build() *EntityQuery {
	return &EntityQuery{
		r:             q.r,
		include:       q.include,
		exclude:       q.exclude,
		authInc:       q.authInc,
		authExc:       q.authExc,
		typeMask:      q.typeMask,
		typeValue:     q.typeValue,
		hasTypeFilter: q.hasTypeFilter,
		lifecycles:    q.lifecycles,
	}
}

// EntityQuery is a restartable, finite, lazy predicate over the
// repository's entity index. It allocates nothing: Next()
// walks the header slice directly.
type EntityQuery struct {
	r             *EntityRepository
	include       BitMask256
	exclude       BitMask256
	authInc       BitMask256
	authExc       BitMask256
	typeMask, typeValue uint64
	hasTypeFilter bool
	lifecycles    []Lifecycle
}

func (q *EntityQuery) matchesLifecycle(lc Lifecycle) bool {
	if len(q.lifecycles) == 0 {
		return true
	}
	for _, l := range q.lifecycles {
		if l == lc {
			return true
		}
	}
	return false
}

func (q *EntityQuery) matchLocked(h *header) bool {
	if !h.alive {
		return false
	}
	if !h.componentMask.SupersetOf(q.include) {
		return false
	}
	if !h.componentMask.Disjoint(q.exclude) {
		return false
	}
	if !h.authorityMask.SupersetOf(q.authInc) {
		return false
	}
	if !h.authorityMask.Disjoint(q.authExc) {
		return false
	}
	if q.hasTypeFilter && (h.typeTag&q.typeMask) != q.typeValue {
		return false
	}
	return q.matchesLifecycle(h.lifecycle)
}

// Iterator is a restartable cursor over an EntityQuery's matches, in
// ascending entity-index order.
type Iterator struct {
	q   *EntityQuery
	pos int
}

// Iter returns a fresh iterator positioned before the first match.
func (q *EntityQuery) Iter() *Iterator {
	return &Iterator{q: q, pos: 0}
}

// Next advances to, and returns, the next matching entity. The second
// return value is false once the query is exhausted.
func (it *Iterator) Next() (Entity, bool) {
	it.q.r.mu.RLock()
	defer it.q.r.mu.RUnlock()
	headers := it.q.r.headers
	for it.pos < len(headers) {
		idx := it.pos
		it.pos++
		h := &headers[idx]
		if it.q.matchLocked(h) {
			return Entity{Index: uint32(idx), Generation: h.generation}, true
		}
	}
	return Entity{}, false
}

// Reset rewinds the iterator to the beginning, making the query
// restartable.
func (it *Iterator) Reset() { it.pos = 0 }

// Collect drains the iterator into a slice, for callers that don't need
// the zero-allocation loop form.
func (q *EntityQuery) Collect() []Entity {
	it := q.Iter()
	var out []Entity
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}

// ChunkRange describes a contiguous span of slot indices, all belonging to
// entities that passed the same query's predicate when the chunk is
// homogeneous.
type ChunkRange struct {
	ChunkIndex int
	Start, End int // absolute slot indices, [Start, End)
}

// Chunks yields the chunk ranges, for a column laid out as numChunks
// chunks of capacity slots each, that contain at least one matching
// entity, letting a caller take a Column.Span slice and loop
// tightly, re-checking only entities within the returned sub-ranges that
// didn't fully pass (heterogeneous chunks are common once exclude/
// authority/lifecycle filters are in play, so callers should still check
// q.Matches(e) per-entity within a partially-passing chunk).
func (q *EntityQuery) Chunks(capacity, numChunks int) []ChunkRange {
	q.r.mu.RLock()
	defer q.r.mu.RUnlock()
	var out []ChunkRange
	for c := 0; c < numChunks; c++ {
		start := c * capacity
		end := start + capacity
		if end > len(q.r.headers) {
			end = len(q.r.headers)
		}
		if start >= end {
			continue
		}
		any := false
		for i := start; i < end; i++ {
			if q.matchLocked(&q.r.headers[i]) {
				any = true
				break
			}
		}
		if any {
			out = append(out, ChunkRange{ChunkIndex: c, Start: start, End: end})
		}
	}
	return out
}

// Matches reports whether e currently passes this query's predicate.
func (q *EntityQuery) Matches(e Entity) bool {
	q.r.mu.RLock()
	defer q.r.mu.RUnlock()
	if int(e.Index) >= len(q.r.headers) {
		return false
	}
	h := &q.r.headers[e.Index]
	return h.generation == e.Generation && q.matchLocked(h)
}
