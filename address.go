package noria

import "fmt"

// NodeAddress is an opaque, graph-wide node identifier. It is locally
// resolvable to a LocalNodeIndex within whichever domain owns the node
// (spec.md §3: "a node always lives in exactly one domain").
type NodeAddress uint64

func (a NodeAddress) String() string {
	return fmt.Sprintf("n%d", uint64(a))
}

// LocalNodeIndex is a NodeAddress resolved to a slot within the owning
// domain's node table. Two different domains may reuse the same
// LocalNodeIndex value for unrelated nodes; it is never meaningful
// outside the domain that minted it.
type LocalNodeIndex uint64

func (i LocalNodeIndex) String() string {
	return fmt.Sprintf("l%d", uint64(i))
}

// DomainIndex identifies a domain among the set the (out-of-scope)
// controller has placed across the process/cluster.
type DomainIndex uint64

// Link is the ordered (src, dst) edge a data packet is currently
// traversing. It is rewritten on every hop (spec.md §3).
type Link struct {
	Src NodeAddress
	Dst NodeAddress
}

func NewLink(src, dst NodeAddress) Link {
	return Link{Src: src, Dst: dst}
}

func (l Link) String() string {
	return fmt.Sprintf("%s -> %s", l.Src, l.Dst)
}

// Tag densely identifies one configured replay path: a fixed
// (source node -> destination materialization) chain of hops.
type Tag uint64

func (t Tag) ID() uint64 { return uint64(t) }
