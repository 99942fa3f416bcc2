package noria

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// StateKind classifies what a node's materialized state looks like
// (spec.md §3).
type StateKind int

const (
	// StateNone: the node is stateless (filter, projection, ingress).
	StateNone StateKind = iota
	// StateIndexedLocal: complete, domain-local; every produced row is present.
	StateIndexedLocal
	// StatePartialLocal: domain-local, tombstoned-on-miss.
	StatePartialLocal
	// StateGlobal: complete, reader-visible via a copy-on-write published map.
	StateGlobal
	// StatePartialGlobal: reader-visible, tombstoned-on-miss.
	StatePartialGlobal
)

func (k StateKind) Partial() bool {
	return k == StatePartialLocal || k == StatePartialGlobal
}

func (k StateKind) Local() bool {
	return k == StateIndexedLocal || k == StatePartialLocal
}

// encodeKey turns a Key into a comparable map key. Rows never carry
// types beyond what fmt can render stably (strings, numbers, bools),
// so this is sufficient without pulling in a dedicated encoding
// library for what is, in this module, an internal lookup detail.
func encodeKey(k Key) string {
	return fmt.Sprint([]interface{}(k))
}

// cell is one materialized entry: the rows currently held for a key,
// and whether that key has ever been filled. For a partial state,
// !filled is exactly the "hole" spec.md §3 describes -- the *absence*
// of a filled marking, not the absence of rows, since a key can be
// legitimately filled with zero rows.
type cell struct {
	rows   Records
	filled bool
}

func mergeCell(existing cell, delta Records) cell {
	counts := map[string]int{}
	rowByKey := map[string]Row{}
	order := []string{}

	add := func(rs Records) {
		for _, r := range rs {
			k := fmt.Sprint(r.Row)
			if _, seen := rowByKey[k]; !seen {
				rowByKey[k] = r.Row
				order = append(order, k)
			}
			if r.Polarity == Positive {
				counts[k]++
			} else {
				counts[k]--
			}
		}
	}
	add(existing.rows)
	add(delta)

	var merged Records
	for _, k := range order {
		n := counts[k]
		row := rowByKey[k]
		polarity := Positive
		if n < 0 {
			polarity = Negative
			n = -n
		}
		for i := 0; i < n; i++ {
			merged = append(merged, Record{Row: row, Polarity: polarity})
		}
	}

	return cell{rows: merged, filled: true}
}

// State is the materialized state a node owns, if any.
type State interface {
	Kind() StateKind
}

// NoneState marks a stateless node (filter, projection, ingress).
type NoneState struct{}

func (NoneState) Kind() StateKind { return StateNone }

// Index names one set of columns a materialization is keyed on.
type Index struct {
	Columns []int
}

// LocalState backs IndexedLocal and PartialLocal: domain-owned,
// never touched by a reader thread, so it needs no locking or
// double-buffering -- just a map per declared index.
type LocalState struct {
	kind    StateKind
	indices []Index
	byIndex []map[string]cell
}

func NewLocalState(kind StateKind, indices []Index) *LocalState {
	if !kind.Local() {
		assertFailed("bad kind for LocalState", "kind=%v", kind)
	}
	byIndex := make([]map[string]cell, len(indices))
	for i := range byIndex {
		byIndex[i] = map[string]cell{}
	}
	return &LocalState{kind: kind, indices: indices, byIndex: byIndex}
}

func (s *LocalState) Kind() StateKind { return s.kind }

func (s *LocalState) Indices() []Index { return s.indices }

// Lookup reads index `indexNo`'s entry for key. For IndexedLocal, a
// miss always means "this key legitimately has no rows." For
// PartialLocal, a miss means "not yet replayed" (spec.md Invariant 2).
func (s *LocalState) Lookup(indexNo int, key Key) (Records, bool) {
	enc := encodeKey(key)
	c, ok := s.byIndex[indexNo][enc]
	if s.kind == StatePartialLocal {
		if !c.filled {
			return nil, false
		}
		return c.rows, true
	}
	return c.rows, ok
}

// Fill sets index `indexNo`'s entry for key outright (used when a
// replay piece lands), marking it filled for partial tracking.
func (s *LocalState) Fill(indexNo int, key Key, rows Records) {
	enc := encodeKey(key)
	s.byIndex[indexNo][enc] = cell{rows: rows, filled: true}
}

// Apply merges delta additively into every declared index (spec.md
// §3: records compose additively, a (r,+) then (r,-) collapsing to
// empty). Applying a delta to a key also marks it filled: either the
// key was already materialized, or this update *is* the replay that
// materializes it.
//
// Each index owns a disjoint byIndex[i] map, so populating more than
// one from the same delta -- the common case for a FullReplay dump
// landing on a multiply-indexed node -- is fanned out across indices
// with errgroup rather than walked sequentially.
func (s *LocalState) Apply(delta Records) {
	if len(s.indices) <= 1 {
		for i, idx := range s.indices {
			s.applyIndex(i, idx, delta)
		}
		return
	}
	var g errgroup.Group
	for i, idx := range s.indices {
		i, idx := i, idx
		g.Go(func() error {
			s.applyIndex(i, idx, delta)
			return nil
		})
	}
	g.Wait()
}

func (s *LocalState) applyIndex(i int, idx Index, delta Records) {
	byKey := map[string]Records{}
	for _, r := range delta {
		k := encodeKey(r.Row.Key(idx.Columns))
		byKey[k] = append(byKey[k], r)
	}
	for k, rs := range byKey {
		s.byIndex[i][k] = mergeCell(s.byIndex[i][k], rs)
	}
}

// RowCount sums materialized rows across index 0, used for
// status.NodeStats.RowsMaterialized.
func (s *LocalState) RowCount() int {
	total := 0
	if len(s.byIndex) == 0 {
		return 0
	}
	for _, c := range s.byIndex[0] {
		total += len(c.rows)
	}
	return total
}

// GlobalHandle backs Global and PartialGlobal: a lock-free read path
// over a copy-on-write materialization (spec.md §4.B). Every write
// batch clones the currently-public map, mutates the clone, and
// publishes it with a single atomic pointer swap; the map a reader's
// Lookup already dereferenced is never touched again, so a reader that
// captured the pointer a moment before a swap can keep reading it
// without racing the writer -- unlike reusing two fixed buffers and
// replaying the same mutation onto the one a reader may still hold.
type GlobalHandle struct {
	kind    StateKind
	columns []int

	public atomic.Pointer[map[string]cell]
}

func NewGlobalHandle(kind StateKind, columns []int) *GlobalHandle {
	if kind != StateGlobal && kind != StatePartialGlobal {
		assertFailed("bad kind for GlobalHandle", "kind=%v", kind)
	}
	h := &GlobalHandle{kind: kind, columns: columns}
	empty := map[string]cell{}
	h.public.Store(&empty)
	return h
}

func (h *GlobalHandle) Kind() StateKind { return h.kind }

func (h *GlobalHandle) Columns() []int { return h.columns }

// Lookup is the reader path: a lock-free read of whichever map is
// currently public. It never blocks on the writer.
func (h *GlobalHandle) Lookup(key Key) (Records, bool) {
	m := *h.public.Load()
	c, ok := m[encodeKey(key)]
	if h.kind == StatePartialGlobal {
		if !c.filled {
			return nil, false
		}
		return c.rows, true
	}
	return c.rows, ok
}

// writeBatch clones the public map, applies mutate to the clone, and
// publishes it. Only the domain's single owning goroutine ever calls
// writeBatch (spec.md §4.E: a domain is a single-threaded actor), so
// concurrent writers are not a concern here -- only concurrent readers
// racing a writer, which the clone-then-swap avoids by never mutating
// a map once it has been published.
func (h *GlobalHandle) writeBatch(mutate func(m map[string]cell)) {
	current := *h.public.Load()
	next := make(map[string]cell, len(current))
	for k, v := range current {
		next[k] = v
	}
	mutate(next)
	h.public.Store(&next)
}

// Fill sets key's rows outright in a newly published map (a replay piece landing).
func (h *GlobalHandle) Fill(key Key, rows Records) {
	enc := encodeKey(key)
	h.writeBatch(func(m map[string]cell) {
		m[enc] = cell{rows: rows, filled: true}
	})
}

// Apply merges delta additively into key in a newly published map.
func (h *GlobalHandle) Apply(key Key, delta Records) {
	enc := encodeKey(key)
	h.writeBatch(func(m map[string]cell) {
		m[enc] = mergeCell(m[enc], delta)
	})
}

// Len reports how many keys are currently materialized, for NodeStats.
func (h *GlobalHandle) Len() int {
	m := *h.public.Load()
	return len(m)
}
