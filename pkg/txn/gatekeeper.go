/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package txn implements the per-domain transaction-ordering and
// migration-window logic of spec.md §4.D: admitting Committed
// transactions strictly in timestamp order, buffering the ones that
// arrive early, and holding transaction admission (without holding
// back Message/control traffic) across a migration boundary.
//
// Like pkg/replay, the gatekeeper is generic over the transaction
// payload type P so it can be unit tested with a plain int payload and
// reused unchanged by whatever concrete Packet type the owning module
// defines.
package txn

import (
	"container/heap"

	"github.com/pkg/errors"
)

// DomainID identifies an upstream source domain a transaction may have
// come from, for the purposes of the prevs-map staleness check.
type DomainID uint64

// Timestamp is the dense, strictly increasing per-(source,destination)
// order spec.md §3 Invariant 3 requires.
type Timestamp int64

// Envelope is everything the gatekeeper needs to know about one
// transactional packet to decide whether it may be admitted now.
type Envelope[P any] struct {
	Ts      Timestamp
	Source  DomainID
	Prevs   map[DomainID]Timestamp
	Payload P
}

type heapItem[P any] struct {
	ts      Timestamp
	payload Envelope[P]
}

type txHeap[P any] []heapItem[P]

func (h txHeap[P]) Len() int            { return len(h) }
func (h txHeap[P]) Less(i, j int) bool  { return h[i].ts < h[j].ts }
func (h txHeap[P]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *txHeap[P]) Push(x interface{}) { *h = append(*h, x.(heapItem[P])) }
func (h *txHeap[P]) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Gatekeeper orders committed transactions for one domain and arbitrates
// the migration window described in spec.md §4.D.
type Gatekeeper[P any] struct {
	nextTs   Timestamp
	seenFrom map[DomainID]Timestamp
	pending  txHeap[P]

	migrating     bool
	migrateAt     Timestamp
	migratePrevTs Timestamp

	logWarn func(format string, args ...interface{})
}

// NewGatekeeper builds a Gatekeeper starting admission at ts 0. logWarn
// may be nil, in which case unknown-source prevs entries (open
// question (b)) are resolved silently.
func NewGatekeeper[P any](logWarn func(format string, args ...interface{})) *Gatekeeper[P] {
	return &Gatekeeper[P]{
		seenFrom: map[DomainID]Timestamp{},
		logWarn:  logWarn,
	}
}

func (g *Gatekeeper[P]) NextTs() Timestamp { return g.nextTs }

// Decision is what the caller should do with a transactional packet.
type Decision int

const (
	// Admit: process this transaction now.
	Admit Decision = iota
	// Buffered: out of order or inside a migration window; the
	// gatekeeper has stored it and will return it from Drain
	// once it becomes admissible.
	Buffered
)

// staleAgainstPrevs reports whether env.Prevs names a source domain
// whose last-seen timestamp, by this domain's own record, is behind
// what env.Prevs claims -- i.e. this domain hasn't yet observed
// enough of that source's stream to safely admit env.
//
// A source named in Prevs that this domain has never heard from is
// not treated as stale (spec.md §9 open question (b)): blocking
// forever on a source that may never report would deadlock the
// domain, which is worse than the rare risk of early admission at
// startup. It is logged instead.
func (g *Gatekeeper[P]) staleAgainstPrevs(prevs map[DomainID]Timestamp) bool {
	for src, want := range prevs {
		have, known := g.seenFrom[src]
		if !known {
			if g.logWarn != nil {
				g.logWarn("transaction prevs references unknown source domain %d", src)
			}
			continue
		}
		if have < want {
			return true
		}
	}
	return false
}

// Submit classifies a Committed or WillCommit transaction. WillCommit
// is assigned the next available timestamp immediately (spec.md §4.D:
// "optimistic; treated like Committed using the next available
// timestamp"); pass Timestamp(-1) for ts in that case.
func (g *Gatekeeper[P]) Submit(ts Timestamp, willCommit bool, source DomainID, prevs map[DomainID]Timestamp, payload P) (Decision, Envelope[P]) {
	if willCommit {
		ts = g.nextTs
	}

	env := Envelope[P]{Ts: ts, Source: source, Prevs: prevs, Payload: payload}

	if g.migrating && ts > g.migratePrevTs {
		heap.Push(&g.pending, heapItem[P]{ts: ts, payload: env})
		return Buffered, env
	}

	if ts != g.nextTs || g.staleAgainstPrevs(prevs) {
		heap.Push(&g.pending, heapItem[P]{ts: ts, payload: env})
		return Buffered, env
	}

	g.admit(env)
	return Admit, env
}

func (g *Gatekeeper[P]) admit(env Envelope[P]) {
	g.nextTs = env.Ts + 1
	g.seenFrom[env.Source] = env.Ts
}

// Drain pops every buffered transaction that is now admissible, in
// timestamp order, applying each as it goes so a chain of previously
// out-of-order arrivals is released in one call.
func (g *Gatekeeper[P]) Drain() []Envelope[P] {
	var out []Envelope[P]
	for len(g.pending) > 0 {
		top := g.pending[0]
		if g.migrating && top.ts > g.migratePrevTs {
			break
		}
		if top.ts != g.nextTs || g.staleAgainstPrevs(top.payload.Prevs) {
			break
		}
		heap.Pop(&g.pending)
		g.admit(top.payload)
		out = append(out, top.payload)
	}
	return out
}

// StartMigration begins a migration window: transactions with
// ts <= prevTs still drain via Submit/Drain as usual, but anything
// with ts > prevTs is held until CompleteMigration, even if it would
// otherwise be admissible. Non-transactional Message and control
// traffic is untouched by this package entirely -- the domain loop
// simply never routes it through the gatekeeper.
func (g *Gatekeeper[P]) StartMigration(at, prevTs Timestamp) {
	g.migrating = true
	g.migrateAt = at
	g.migratePrevTs = prevTs
}

// CompleteMigration ends the migration window and resumes admission
// from Timestamp at, per spec.md §4.D.
func (g *Gatekeeper[P]) CompleteMigration(at Timestamp) error {
	if !g.migrating {
		return errors.New("txn: CompleteMigration with no migration in progress")
	}
	if at != g.migrateAt {
		return errors.Errorf("txn: CompleteMigration at %d does not match StartMigration at %d", at, g.migrateAt)
	}
	g.migrating = false
	if g.nextTs < at {
		g.nextTs = at
	}
	return nil
}

func (g *Gatekeeper[P]) Migrating() bool { return g.migrating }
