/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package replay

import "github.com/pkg/errors"

// ErrUnknownTag is returned when a domain is asked to act on a replay
// tag it has never had SetupReplayPath'd for -- per spec.md §7 this is
// an invariant violation upstream of replay's concern; replay just
// reports it and lets the caller decide whether to panic.
var ErrUnknownTag = errors.New("replay: unknown tag")

// Registry is a per-domain table of configured replay paths plus the
// single-flight coalescer guarding partial replay requests against
// duplication (spec.md §4.C).
type Registry[S any, K comparable] struct {
	paths     map[Tag]*Path[S]
	coalescer *Coalescer[K]
}

func NewRegistry[S any, K comparable]() *Registry[S, K] {
	return &Registry[S, K]{
		paths:     map[Tag]*Path[S]{},
		coalescer: NewCoalescer[K](),
	}
}

// SetupPath installs or replaces the path for tag, mirroring the
// SetupReplayPath control packet of spec.md §4.C.
func (r *Registry[S, K]) SetupPath(path *Path[S]) {
	r.paths[path.Tag] = path
}

func (r *Registry[S, K]) Path(tag Tag) (*Path[S], error) {
	p, ok := r.paths[tag]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownTag, "tag %d", tag)
	}
	return p, nil
}

// RequestPartial decides whether a partial-replay request for (tag,
// key) should actually be issued, coalesced into an existing one, or
// dropped because a full replay already subsumes it.
func (r *Registry[S, K]) RequestPartial(tag Tag, key K) (Outcome, error) {
	if _, err := r.Path(tag); err != nil {
		return Issue, err
	}
	return r.coalescer.Request(tag, key), nil
}

// CompletePartial marks a partial replay for (tag, key) as having
// landed, returning the number of coalesced waiters to wake.
func (r *Registry[S, K]) CompletePartial(tag Tag, key K) int {
	return r.coalescer.Complete(tag, key)
}

// BeginFull marks tag as undergoing a full replay dump.
func (r *Registry[S, K]) BeginFull(tag Tag) {
	r.coalescer.BeginFullReplay(tag)
}

// EndFull fires the path's DoneTx (if any) and clears the in-flight
// marker, used when a Packet carrying context{last: true} is applied.
func (r *Registry[S, K]) EndFull(tag Tag) error {
	p, err := r.Path(tag)
	if err != nil {
		return err
	}
	r.coalescer.EndFullReplay(tag)
	if p.DoneTx != nil {
		close(p.DoneTx)
	}
	return nil
}

// AbandonFull clears the in-flight marker and closes DoneTx -- used
// when the domain is quitting with a replay still in flight, so a
// waiter blocked on DoneTx is released instead of hanging. It closes
// DoneTx exactly as EndFull does; a waiter that only watches DoneTx
// cannot tell an abandoned replay from a completed one.
func (r *Registry[S, K]) AbandonFull(tag Tag) error {
	p, err := r.Path(tag)
	if err != nil {
		return err
	}
	r.coalescer.EndFullReplay(tag)
	if p.DoneTx != nil {
		close(p.DoneTx)
	}
	return nil
}

// InFlightFullReplays lists every tag currently undergoing a full
// replay, so a quitting domain can AbandonFull each of them cleanly
// rather than leaving a waiter blocked on a DoneTx that will never
// fire (spec.md §5/§7).
func (r *Registry[S, K]) InFlightFullReplays() []Tag {
	return r.coalescer.FullReplayTags()
}
