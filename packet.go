package noria

import (
	"fmt"

	"github.com/Khalefa/noria/pkg/checktable"
	"github.com/Khalefa/noria/pkg/replay"
	"github.com/Khalefa/noria/pkg/status"
)

// PacketKind discriminates the tagged union Packet represents. Go has
// no sum types, so Packet plays the role the original's `enum Packet`
// did: one struct, a Kind field, and accessors that assert the kind
// before reading a variant-specific field -- a wrong-kind read is a
// programmer error, not a recoverable condition (spec.md §7).
type PacketKind int

const (
	PacketMessage PacketKind = iota
	PacketTransaction
	PacketFullReplay
	PacketReplayPiece
	PacketFinish
	PacketAddNode
	PacketAddBaseColumn
	PacketDropBaseColumn
	PacketUpdateEgress
	PacketAddStreamer
	PacketRequestUnboundedTx
	PacketPrepareState
	PacketStateSizeProbe
	PacketSetupReplayPath
	PacketRequestPartialReplay
	PacketStartReplay
	PacketReady
	PacketQuit
	PacketStartMigration
	PacketCompleteMigration
	PacketGetStatistics
	PacketCaptured
	PacketNone
)

var packetKindNames = [...]string{
	"Message", "Transaction", "FullReplay", "ReplayPiece", "Finish",
	"AddNode", "AddBaseColumn", "DropBaseColumn", "UpdateEgress",
	"AddStreamer", "RequestUnboundedTx", "PrepareState", "StateSizeProbe",
	"SetupReplayPath", "RequestPartialReplay", "StartReplay", "Ready",
	"Quit", "StartMigration", "CompleteMigration", "GetStatistics",
	"Captured", "None",
}

func (k PacketKind) String() string {
	if int(k) < 0 || int(k) >= len(packetKindNames) {
		return "Unknown"
	}
	return packetKindNames[k]
}

// TxStateKind is TransactionState's own discriminator.
type TxStateKind int

const (
	TxCommitted TxStateKind = iota
	TxPending
	TxWillCommit
)

// TxVote is what a pending transaction's submitter is sent once the
// checktable has assigned it a commit timestamp, or aborted it.
type TxVote struct {
	Ts int64
	Ok bool
}

// TransactionState rides inside a Transaction packet. It starts out
// Pending or WillCommit and becomes Committed once it has a timestamp:
// a Pending one from the checktable verdict, a WillCommit one when
// pkg/txn.Gatekeeper admits it. Source names the domain that originated
// the transaction, threaded through to pkg/txn.Gatekeeper.Submit as
// the source domain for prevs-staleness checking.
type TransactionState struct {
	Kind   TxStateKind
	Source DomainIndex
	Ts     int64
	Prevs  map[DomainIndex]int64

	Token checktable.Token
	Reply chan<- TxVote
}

func CommittedTxState(source DomainIndex, ts int64, prevs map[DomainIndex]int64) TransactionState {
	return TransactionState{Kind: TxCommitted, Source: source, Ts: ts, Prevs: prevs}
}

func PendingTxState(source DomainIndex, token checktable.Token, reply chan<- TxVote) TransactionState {
	return TransactionState{Kind: TxPending, Source: source, Token: token, Reply: reply}
}

func WillCommitTxState(source DomainIndex) TransactionState {
	return TransactionState{Kind: TxWillCommit, Source: source}
}

// ReplayContextKind distinguishes a full path sweep from a keyed partial fill.
type ReplayContextKind int

const (
	ReplayContextRegular ReplayContextKind = iota
	ReplayContextPartial
)

// ReplayContext rides inside a ReplayPiece packet.
type ReplayContext struct {
	Kind ReplayContextKind

	// Regular
	Last bool

	// Partial
	ForKey Key
	Ignore bool
}

func RegularReplayContext(last bool) ReplayContext {
	return ReplayContext{Kind: ReplayContextRegular, Last: last}
}

func PartialReplayContext(forKey Key, ignore bool) ReplayContext {
	return ReplayContext{Kind: ReplayContextPartial, ForKey: forKey, Ignore: ignore}
}

// ReplayTxState tags a replay piece with the transaction order it
// must be applied under when the path crosses a transactional boundary.
type ReplayTxState struct {
	Ts    int64
	Prevs map[DomainIndex]int64
}

// Control-packet payloads. Each is boxed behind Packet.control rather
// than flattened onto Packet itself: unlike Message/Transaction/
// FullReplay/ReplayPiece, these are not on the per-record hot path, so
// there is no cost to paying one interface indirection for them in
// exchange for not bloating Packet with two dozen rarely-used fields.

type AddNodePayload struct {
	Node    *NodeDescriptor
	Parents []LocalNodeIndex
}

type AddBaseColumnPayload struct {
	Node    LocalNodeIndex
	Field   string
	Default interface{}
	Ack     chan<- struct{}
}

type DropBaseColumnPayload struct {
	Node   LocalNodeIndex
	Column int
	Ack    chan<- struct{}
}

// EgressTxUpdate rewires one egress node's destination transmitter.
type EgressTxUpdate struct {
	Old NodeAddress
	New NodeAddress
	Tx  chan<- *Packet
}

// EgressTagUpdate adds a replay-tag route to an egress node.
type EgressTagUpdate struct {
	Tag  Tag
	Node NodeAddress
}

type UpdateEgressPayload struct {
	Node   LocalNodeIndex
	NewTx  *EgressTxUpdate
	NewTag *EgressTagUpdate
}

// StreamUpdate is what a reader's streamers receive on every write.
type StreamUpdate struct {
	Records Records
}

type AddStreamerPayload struct {
	Node        LocalNodeIndex
	NewStreamer chan<- []StreamUpdate
}

// RequestUnboundedTxPayload asks the domain to hand back a sender on
// its unbounded channel, used for replay requests so they cannot
// deadlock against a full bounded input channel (spec.md §4.E).
type RequestUnboundedTxPayload struct {
	Reply chan<- chan<- *Packet
}

// StateSpec describes the empty state a node should set up ahead of a replay.
type StateSpec struct {
	Kind    StateKind
	Indices []Index // IndexedLocal / PartialLocal
	Columns []int   // Global / PartialGlobal
}

type PrepareStatePayload struct {
	Node LocalNodeIndex
	Spec StateSpec
}

type StateSizeProbePayload struct {
	Node LocalNodeIndex
	Ack  chan<- int
}

type SetupReplayPathPayload struct {
	Tag     Tag
	Source  *NodeAddress
	Hops    []replay.Hop
	DoneTx  chan<- struct{}
	Trigger replay.Trigger[chan<- *Packet]
	Ack     chan<- struct{}
}

type RequestPartialReplayPayload struct {
	Tag Tag
	Key Key
}

type StartReplayPayload struct {
	Tag  Tag
	From NodeAddress
	Ack  chan<- struct{}
}

type ReadyPayload struct {
	Node    LocalNodeIndex
	Indices []Index
	Ack     chan<- struct{}
}

type StartMigrationPayload struct {
	At     int64
	PrevTs int64
	Ack    chan<- struct{}
}

type CompleteMigrationPayload struct {
	At              int64
	IngressFromBase map[NodeAddress]int
}

type GetStatisticsPayload struct {
	Reply chan<- status.Snapshot
}

// Packet is the single message type every Link carries: a regular
// dataflow update, a transactional update, a replay fragment, or one
// of the domain's control messages (spec.md §2, grounded directly on
// the original's `enum Packet`).
type Packet struct {
	kind PacketKind

	// Message / Transaction / FullReplay / ReplayPiece
	link   Link
	data   Records
	tracer Tracer

	// Transaction
	txState TransactionState

	// Message / Transaction: optional base-table writer identity,
	// consulted against WriterLedger before the packet reaches its
	// target base node (spec.md §4.G). Packets with no writer identity
	// (internal egress hops, replay-derived traffic) skip the check.
	hasWriter bool
	writer    WriterID
	seq       SeqNo

	// FullReplay / ReplayPiece
	tag Tag

	// FullReplay: the complete row set being shipped down the path.
	state Records

	// ReplayPiece
	replayCtx     ReplayContext
	replayTxState *ReplayTxState

	// Finish
	finishNode LocalNodeIndex

	// Any control kind (PacketAddNode..PacketGetStatistics)
	control interface{}
}

func NewMessage(link Link, data Records, tracer Tracer) *Packet {
	return &Packet{kind: PacketMessage, link: link, data: data, tracer: tracer}
}

func NewTransaction(link Link, data Records, state TransactionState, tracer Tracer) *Packet {
	return &Packet{kind: PacketTransaction, link: link, data: data, txState: state, tracer: tracer}
}

// NewWriterMessage is NewMessage for a packet originating from an
// identified base-table writer: the domain loop consults WriterLedger
// with (writer, seq) before handing it to its target base node.
func NewWriterMessage(link Link, data Records, tracer Tracer, writer WriterID, seq SeqNo) *Packet {
	p := NewMessage(link, data, tracer)
	p.hasWriter, p.writer, p.seq = true, writer, seq
	return p
}

// NewWriterTransaction is NewTransaction's writer-identified counterpart.
func NewWriterTransaction(link Link, data Records, state TransactionState, tracer Tracer, writer WriterID, seq SeqNo) *Packet {
	p := NewTransaction(link, data, state, tracer)
	p.hasWriter, p.writer, p.seq = true, writer, seq
	return p
}

// WriterIdentity reports the (writer, seq) a Message/Transaction
// packet was tagged with, if any.
func (p *Packet) WriterIdentity() (WriterID, SeqNo, bool) {
	return p.writer, p.seq, p.hasWriter
}

func NewFullReplay(link Link, tag Tag, state Records) *Packet {
	return &Packet{kind: PacketFullReplay, link: link, tag: tag, state: state}
}

func NewReplayPiece(link Link, tag Tag, data Records, ctx ReplayContext, tx *ReplayTxState) *Packet {
	return &Packet{kind: PacketReplayPiece, link: link, tag: tag, data: data, replayCtx: ctx, replayTxState: tx}
}

func NewFinish(tag Tag, node LocalNodeIndex) *Packet {
	return &Packet{kind: PacketFinish, tag: tag, finishNode: node}
}

func newControl(kind PacketKind, payload interface{}) *Packet {
	return &Packet{kind: kind, control: payload}
}

func NewAddNode(node *NodeDescriptor, parents []LocalNodeIndex) *Packet {
	return newControl(PacketAddNode, AddNodePayload{Node: node, Parents: parents})
}

func NewAddBaseColumn(node LocalNodeIndex, field string, def interface{}, ack chan<- struct{}) *Packet {
	return newControl(PacketAddBaseColumn, AddBaseColumnPayload{Node: node, Field: field, Default: def, Ack: ack})
}

func NewDropBaseColumn(node LocalNodeIndex, column int, ack chan<- struct{}) *Packet {
	return newControl(PacketDropBaseColumn, DropBaseColumnPayload{Node: node, Column: column, Ack: ack})
}

func NewUpdateEgress(node LocalNodeIndex, newTx *EgressTxUpdate, newTag *EgressTagUpdate) *Packet {
	return newControl(PacketUpdateEgress, UpdateEgressPayload{Node: node, NewTx: newTx, NewTag: newTag})
}

func NewAddStreamer(node LocalNodeIndex, streamer chan<- []StreamUpdate) *Packet {
	return newControl(PacketAddStreamer, AddStreamerPayload{Node: node, NewStreamer: streamer})
}

func NewRequestUnboundedTx(reply chan<- chan<- *Packet) *Packet {
	return newControl(PacketRequestUnboundedTx, RequestUnboundedTxPayload{Reply: reply})
}

func NewPrepareState(node LocalNodeIndex, spec StateSpec) *Packet {
	return newControl(PacketPrepareState, PrepareStatePayload{Node: node, Spec: spec})
}

func NewStateSizeProbe(node LocalNodeIndex, ack chan<- int) *Packet {
	return newControl(PacketStateSizeProbe, StateSizeProbePayload{Node: node, Ack: ack})
}

func NewSetupReplayPath(p SetupReplayPathPayload) *Packet {
	return newControl(PacketSetupReplayPath, p)
}

func NewRequestPartialReplay(tag Tag, key Key) *Packet {
	return newControl(PacketRequestPartialReplay, RequestPartialReplayPayload{Tag: tag, Key: key})
}

func NewStartReplay(tag Tag, from NodeAddress, ack chan<- struct{}) *Packet {
	return newControl(PacketStartReplay, StartReplayPayload{Tag: tag, From: from, Ack: ack})
}

func NewReady(node LocalNodeIndex, indices []Index, ack chan<- struct{}) *Packet {
	return newControl(PacketReady, ReadyPayload{Node: node, Indices: indices, Ack: ack})
}

func NewQuit() *Packet { return &Packet{kind: PacketQuit} }

func NewStartMigration(at, prevTs int64, ack chan<- struct{}) *Packet {
	return newControl(PacketStartMigration, StartMigrationPayload{At: at, PrevTs: prevTs, Ack: ack})
}

func NewCompleteMigration(at int64, ingressFromBase map[NodeAddress]int) *Packet {
	return newControl(PacketCompleteMigration, CompleteMigrationPayload{At: at, IngressFromBase: ingressFromBase})
}

func NewGetStatistics(reply chan<- status.Snapshot) *Packet {
	return newControl(PacketGetStatistics, GetStatisticsPayload{Reply: reply})
}

func NewCaptured() *Packet { return &Packet{kind: PacketCaptured} }

func NonePacket() *Packet { return &Packet{kind: PacketNone} }

func (p *Packet) Kind() PacketKind { return p.kind }

func (p *Packet) Link() Link {
	switch p.kind {
	case PacketMessage, PacketTransaction, PacketFullReplay, PacketReplayPiece:
		return p.link
	default:
		assertFailed("packet has no link", "kind=%v", p.kind)
		return Link{}
	}
}

func (p *Packet) SetLink(l Link) {
	switch p.kind {
	case PacketMessage, PacketTransaction, PacketFullReplay, PacketReplayPiece:
		p.link = l
	default:
		assertFailed("packet has no link", "kind=%v", p.kind)
	}
}

func (p *Packet) IsEmpty() bool {
	switch p.kind {
	case PacketMessage, PacketTransaction, PacketReplayPiece:
		return p.data.IsEmpty()
	case PacketFullReplay:
		return false
	case PacketNone:
		return true
	default:
		assertFailed("is_empty undefined for this packet kind", "kind=%v", p.kind)
		return false
	}
}

// MapData mutates a regular or replay-piece packet's data in place.
func (p *Packet) MapData(mapFn func(*Records)) {
	switch p.kind {
	case PacketMessage, PacketTransaction, PacketReplayPiece:
		mapFn(&p.data)
	default:
		assertFailed("map_data undefined for this packet kind", "kind=%v", p.kind)
	}
}

func (p *Packet) IsRegular() bool {
	return p.kind == PacketMessage || p.kind == PacketTransaction
}

// Tag returns the replay tag carried by FullReplay/ReplayPiece packets.
func (p *Packet) Tag() (Tag, bool) {
	switch p.kind {
	case PacketFullReplay, PacketReplayPiece:
		return p.tag, true
	default:
		return 0, false
	}
}

func (p *Packet) Data() Records {
	switch p.kind {
	case PacketMessage, PacketTransaction, PacketReplayPiece:
		return p.data
	default:
		assertFailed("data undefined for this packet kind", "kind=%v", p.kind)
		return nil
	}
}

// TakeData moves data out of the packet, leaving it as a None packet
// behind -- the Go analog of the original's mem::replace(self, None).
func (p *Packet) TakeData() Records {
	data := p.Data()
	*p = Packet{kind: PacketNone}
	return data
}

func (p *Packet) CloneData() *Packet {
	switch p.kind {
	case PacketMessage:
		return NewMessage(p.link, p.data.Clone(), p.tracer)
	case PacketTransaction:
		return NewTransaction(p.link, p.data.Clone(), p.txState, p.tracer)
	default:
		assertFailed("clone_data undefined for this packet kind", "kind=%v", p.kind)
		return nil
	}
}

// Trace emits a tracer event for the four checkpoints the domain loop
// marks, if this packet was injected with a tracer (spec.md §4.F).
func (p *Packet) Trace(clock Clock, event PacketEvent) {
	switch p.kind {
	case PacketMessage, PacketTransaction:
		p.tracer.emit(clock, event)
	}
}

func (p *Packet) Tracer() Tracer {
	switch p.kind {
	case PacketMessage, PacketTransaction:
		return p.tracer
	default:
		return nil
	}
}

func (p *Packet) TransactionState() TransactionState {
	assertEqual(p.kind, PacketTransaction, "transaction state accessed on non-transaction packet")
	return p.txState
}

func (p *Packet) SetTransactionState(s TransactionState) {
	assertEqual(p.kind, PacketTransaction, "transaction state set on non-transaction packet")
	p.txState = s
}

func (p *Packet) FullReplayState() Records {
	assertEqual(p.kind, PacketFullReplay, "full-replay state accessed on wrong packet kind")
	return p.state
}

func (p *Packet) ReplayContext() ReplayContext {
	assertEqual(p.kind, PacketReplayPiece, "replay context accessed on wrong packet kind")
	return p.replayCtx
}

func (p *Packet) ReplayTransactionState() *ReplayTxState {
	assertEqual(p.kind, PacketReplayPiece, "replay transaction state accessed on wrong packet kind")
	return p.replayTxState
}

func (p *Packet) Finish() (Tag, LocalNodeIndex) {
	assertEqual(p.kind, PacketFinish, "finish fields accessed on wrong packet kind")
	return p.tag, p.finishNode
}

func (p *Packet) controlPayload(kind PacketKind) interface{} {
	assertEqual(p.kind, kind, "control payload accessed on wrong packet kind")
	return p.control
}

func (p *Packet) AddNode() AddNodePayload {
	return p.controlPayload(PacketAddNode).(AddNodePayload)
}

func (p *Packet) AddBaseColumn() AddBaseColumnPayload {
	return p.controlPayload(PacketAddBaseColumn).(AddBaseColumnPayload)
}

func (p *Packet) DropBaseColumn() DropBaseColumnPayload {
	return p.controlPayload(PacketDropBaseColumn).(DropBaseColumnPayload)
}

func (p *Packet) UpdateEgress() UpdateEgressPayload {
	return p.controlPayload(PacketUpdateEgress).(UpdateEgressPayload)
}

func (p *Packet) AddStreamer() AddStreamerPayload {
	return p.controlPayload(PacketAddStreamer).(AddStreamerPayload)
}

func (p *Packet) RequestUnboundedTx() RequestUnboundedTxPayload {
	return p.controlPayload(PacketRequestUnboundedTx).(RequestUnboundedTxPayload)
}

func (p *Packet) PrepareState() PrepareStatePayload {
	return p.controlPayload(PacketPrepareState).(PrepareStatePayload)
}

func (p *Packet) StateSizeProbe() StateSizeProbePayload {
	return p.controlPayload(PacketStateSizeProbe).(StateSizeProbePayload)
}

func (p *Packet) SetupReplayPath() SetupReplayPathPayload {
	return p.controlPayload(PacketSetupReplayPath).(SetupReplayPathPayload)
}

func (p *Packet) RequestPartialReplay() RequestPartialReplayPayload {
	return p.controlPayload(PacketRequestPartialReplay).(RequestPartialReplayPayload)
}

func (p *Packet) StartReplay() StartReplayPayload {
	return p.controlPayload(PacketStartReplay).(StartReplayPayload)
}

func (p *Packet) Ready() ReadyPayload {
	return p.controlPayload(PacketReady).(ReadyPayload)
}

func (p *Packet) StartMigration() StartMigrationPayload {
	return p.controlPayload(PacketStartMigration).(StartMigrationPayload)
}

func (p *Packet) CompleteMigration() CompleteMigrationPayload {
	return p.controlPayload(PacketCompleteMigration).(CompleteMigrationPayload)
}

func (p *Packet) GetStatistics() GetStatisticsPayload {
	return p.controlPayload(PacketGetStatistics).(GetStatisticsPayload)
}

func (p *Packet) String() string {
	switch p.kind {
	case PacketMessage:
		return fmt.Sprintf("Packet::Message(%s)", p.link)
	case PacketTransaction:
		switch p.txState.Kind {
		case TxCommitted:
			return fmt.Sprintf("Packet::Transaction(%s, %d)", p.link, p.txState.Ts)
		case TxPending:
			return fmt.Sprintf("Packet::Transaction(%s, pending)", p.link)
		default:
			return fmt.Sprintf("Packet::Transaction(%s, ?)", p.link)
		}
	case PacketReplayPiece:
		return fmt.Sprintf("Packet::ReplayPiece(%s, %d, %d records)", p.link, p.tag.ID(), len(p.data))
	case PacketFullReplay:
		return fmt.Sprintf("Packet::FullReplay(%s, %d, %d row state)", p.link, p.tag.ID(), len(p.state))
	case PacketNone:
		return "Packet::None"
	default:
		return fmt.Sprintf("Packet::%s", p.kind)
	}
}
