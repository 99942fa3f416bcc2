package noria

// Operator is the contract a dataflow node's concrete processing
// logic fulfills. Join/aggregation/etc. implementations are out of
// scope (spec.md §1 Non-goals) -- this module only needs the shape of
// the boundary the domain loop calls across, plus enough built-in
// operators (filter, base-table ingress) to exercise it end to end.
type Operator interface {
	// Process consumes one batch of input records arriving on the
	// given parent and returns the records this node emits downstream.
	// It never sees a Packet -- only the records and the node's own
	// State -- keeping the concrete dataflow algorithm Packet-agnostic,
	// same as everything under pkg/.
	Process(input Records, from NodeAddress, state State) (Records, error)

	// Ancestors lists the node addresses Process expects input from.
	Ancestors() []NodeAddress
}

// NodeKind classifies what role a node plays, independent of its
// concrete Operator -- the domain loop branches on this for base
// tables, egress fan-out, and reader materializations, all of which
// need special handling beyond calling Process.
type NodeKind int

const (
	NodeKindInternal NodeKind = iota
	NodeKindBase
	NodeKindEgress
	NodeKindReader
)

// NodeDescriptor is everything the domain loop and replay machinery
// need to know about one node: its identity, its operator (if any),
// its materialized state (if any), and its egress routing.
type NodeDescriptor struct {
	Address LocalNodeIndex
	Global  NodeAddress
	Kind    NodeKind
	Name    string

	Op    Operator // nil for Base/Reader nodes
	State State    // NoneState if the node materializes nothing

	// Local dataflow children: nodes owned by this same domain that
	// consume this node's output directly, in-process, with no Packet
	// re-encoding (spec.md §4.E -- a domain is a local subgraph, not
	// one packet hop per node).
	LocalChildren []LocalNodeIndex

	// Egress-only: every (link, sender) a regular packet crossing out
	// of this domain must be duplicated onto.
	EgressChildren []EgressChild

	// Reader-only: streamers registered via AddStreamer, notified on
	// every write that reaches this node's materialization.
	Streamers []chan<- []StreamUpdate
}

// EgressChild is one destination an egress node forwards packets to.
type EgressChild struct {
	Link Link
	Tx   chan<- *Packet
}

func NewNodeDescriptor(addr LocalNodeIndex, global NodeAddress, kind NodeKind, name string, op Operator) *NodeDescriptor {
	return &NodeDescriptor{
		Address: addr,
		Global:  global,
		Kind:    kind,
		Name:    name,
		Op:      op,
		State:   NoneState{},
	}
}

func (n *NodeDescriptor) IsBase() bool   { return n.Kind == NodeKindBase }
func (n *NodeDescriptor) IsEgress() bool { return n.Kind == NodeKindEgress }
func (n *NodeDescriptor) IsReader() bool { return n.Kind == NodeKindReader }

func (n *NodeDescriptor) AddLocalChild(addr LocalNodeIndex) {
	n.LocalChildren = append(n.LocalChildren, addr)
}

func (n *NodeDescriptor) AddEgressChild(link Link, tx chan<- *Packet) {
	n.EgressChildren = append(n.EgressChildren, EgressChild{Link: link, Tx: tx})
}

func (n *NodeDescriptor) AddStreamer(tx chan<- []StreamUpdate) {
	n.Streamers = append(n.Streamers, tx)
}

// NotifyStreamers fans a reader write out to every registered
// streamer, dropping the update for any streamer whose channel is
// full rather than blocking the domain loop on a slow consumer.
func (n *NodeDescriptor) NotifyStreamers(records Records) {
	if len(n.Streamers) == 0 || records.IsEmpty() {
		return
	}
	update := []StreamUpdate{{Records: records}}
	for _, s := range n.Streamers {
		select {
		case s <- update:
		default:
		}
	}
}
