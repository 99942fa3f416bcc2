/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package replay

import "fmt"

// NodeID is replay's own, Packet-agnostic view of a graph-wide node
// address -- a plain uint64, convertible to and from whatever concrete
// NodeAddress type the owning module uses.
type NodeID uint64

// Hop is one step of a replay path: the node it passes through and,
// for an intermediate partial node, the index column state is keyed
// on there (used to route a partial replay's key).
type Hop struct {
	Node        NodeID
	IndexColumn *int
}

// TriggerKind classifies how this domain participates in a tag's path.
type TriggerKind int

const (
	// TriggerNone: this domain is pass-through for the path.
	TriggerNone TriggerKind = iota
	// TriggerStart: this domain originates replays on the named columns.
	TriggerStart
	// TriggerEnd: this domain is the sink; replayed rows are delivered
	// to End.
	TriggerEnd
	// TriggerLocal: fully local partial replay (no network hop needed).
	TriggerLocal
)

// Trigger describes this domain's role in a tag's replay path. S is
// the type used to deliver replayed rows at TriggerEnd (normally a
// send-only Packet channel in the owning module).
type Trigger[S any] struct {
	Kind TriggerKind
	Cols []int // meaningful for TriggerStart and TriggerLocal
	End  S     // meaningful for TriggerEnd
}

// Path is one configured replay path: a Tag, its ordered hops, and
// this domain's Trigger role in it. DoneTx, if set, fires once a full
// replay across this path has completely drained (spec.md §4.C).
type Path[S any] struct {
	Tag     Tag
	Source  *NodeID
	Hops    []Hop
	Trigger Trigger[S]
	DoneTx  chan<- struct{}
}

func (p *Path[S]) String() string {
	return fmt.Sprintf("tag=%d hops=%d", p.Tag, len(p.Hops))
}

// IndexColumnFor returns the index column a given node in the path is
// keyed on, if the path names one for it.
func (p *Path[S]) IndexColumnFor(node NodeID) (int, bool) {
	for _, h := range p.Hops {
		if h.Node == node && h.IndexColumn != nil {
			return *h.IndexColumn, true
		}
	}
	return 0, false
}
