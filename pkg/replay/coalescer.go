/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package replay implements the bookkeeping a domain needs to backfill
// PartialLocal/PartialGlobal state on demand: at most one in-flight
// replay per (tag, key), coalescing of concurrent misses for the same
// key, and recognition that a key already covered by an in-progress
// full replay should have its partial request dropped rather than
// duplicated.
//
// The coalescer is intentionally Packet-agnostic (generic over the key
// type) so it can be exercised with a plain comparable key in tests and
// reused unchanged regardless of how the owning module encodes a Key.
// It carries no lock of its own: per spec.md §5, a domain is a
// single-threaded actor and the set of pending keys lives inside that
// actor, so no synchronization is needed here -- the zero value is
// only ever touched by the one goroutine that owns the domain.
package replay

// Tag densely identifies a replay path.
type Tag uint64

// pendingKey tracks one outstanding key-level replay and the waiters
// that asked for it while it was already in flight.
type pendingKey[K comparable] struct {
	key     K
	waiters int
}

// Coalescer is the per-domain single-flight tracker for replay
// requests, keyed first by Tag and then by the caller-supplied key
// type K (normally a materialization Key, or a hashable projection of
// one).
type Coalescer[K comparable] struct {
	pending map[Tag]map[K]*pendingKey[K]
	// fullInFlight marks tags undergoing a full replay: per spec.md
	// §4.C, a partial request for a key already covered by an
	// in-progress full replay is answered by that full replay and
	// its own request is dropped with ignore=true.
	fullInFlight map[Tag]bool
}

func NewCoalescer[K comparable]() *Coalescer[K] {
	return &Coalescer[K]{
		pending:      map[Tag]map[K]*pendingKey[K]{},
		fullInFlight: map[Tag]bool{},
	}
}

// Outcome tells the caller what to do about a replay request for key.
type Outcome int

const (
	// Issue: no replay is in flight for this (tag, key); Request has
	// recorded it as pending and the caller should emit
	// RequestPartialReplay.
	Issue Outcome = iota
	// Coalesce: a replay for this (tag, key) is already in flight;
	// Request has counted the caller as a waiter and it emits nothing.
	Coalesce
	// SubsumedByFull: a full replay is in flight for this tag; the
	// caller's request is answered by that replay and must be
	// dropped with ignore=true rather than issued.
	SubsumedByFull
)

// Request decides what should happen for a miss on (tag, key) and, for
// Issue/Coalesce, records the asker as a waiter.
func (c *Coalescer[K]) Request(tag Tag, key K) Outcome {
	if c.fullInFlight[tag] {
		return SubsumedByFull
	}

	byKey, ok := c.pending[tag]
	if !ok {
		byKey = map[K]*pendingKey[K]{}
		c.pending[tag] = byKey
	}

	pk, ok := byKey[key]
	if ok {
		pk.waiters++
		return Coalesce
	}

	byKey[key] = &pendingKey[K]{key: key, waiters: 1}
	return Issue
}

// Waiters reports how many callers are waiting on (tag, key), 0 if none.
func (c *Coalescer[K]) Waiters(tag Tag, key K) int {
	byKey, ok := c.pending[tag]
	if !ok {
		return 0
	}
	pk, ok := byKey[key]
	if !ok {
		return 0
	}
	return pk.waiters
}

// Complete removes the (tag, key) pending entry once its replay piece
// has landed and been applied, returning how many callers were waiting
// so they can all be woken.
func (c *Coalescer[K]) Complete(tag Tag, key K) int {
	byKey, ok := c.pending[tag]
	if !ok {
		return 0
	}
	pk, ok := byKey[key]
	if !ok {
		return 0
	}
	delete(byKey, key)
	if len(byKey) == 0 {
		delete(c.pending, tag)
	}
	return pk.waiters
}

// BeginFullReplay marks tag as undergoing a full replay. Any partial
// request that arrives for this tag while set returns SubsumedByFull.
func (c *Coalescer[K]) BeginFullReplay(tag Tag) {
	c.fullInFlight[tag] = true
}

// EndFullReplay clears the full-replay marker for tag once it drains.
// Keys that were pending under this tag before the full replay began
// are left pending until their own Complete; requests that arrived
// while the full replay ran got SubsumedByFull and were never
// recorded, so there is nothing further to clear for them.
func (c *Coalescer[K]) EndFullReplay(tag Tag) {
	delete(c.fullInFlight, tag)
}

func (c *Coalescer[K]) FullReplayInFlight(tag Tag) bool {
	return c.fullInFlight[tag]
}

// FullReplayTags lists every tag currently undergoing a full replay.
func (c *Coalescer[K]) FullReplayTags() []Tag {
	tags := make([]Tag, 0, len(c.fullInFlight))
	for t := range c.fullInFlight {
		tags = append(tags, t)
	}
	return tags
}
