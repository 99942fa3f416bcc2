package noria

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/Khalefa/noria/pkg/checktable"
	"github.com/Khalefa/noria/pkg/replay"
	"github.com/Khalefa/noria/pkg/replaylog"
	"github.com/Khalefa/noria/pkg/status"
	"github.com/Khalefa/noria/pkg/txn"
)

// traceLogRetention bounds the domain-local durable trace log
// (spec.md §4.F): once it holds this many events, the oldest are
// truncated, since a reader only ever wants to look back at recent
// packet history, not replay the checkpoint-trace from process start.
const traceLogRetention = 4096

// Domain is the single-threaded actor of spec.md §4.E and §5: it owns
// a local subgraph of nodes, the mailbox packets arrive on, and the
// per-domain replay/transaction bookkeeping. Nothing here is ever
// touched by a second goroutine -- the run loop is the only reader and
// writer of every field below except the mailbox's channels
// themselves and GlobalHandle's reader-visible public pointer.
type Domain struct {
	cfg     DomainConfig
	mailbox *Mailbox

	nodes       map[LocalNodeIndex]*NodeDescriptor
	addrToLocal map[NodeAddress]LocalNodeIndex

	gatekeeper *txn.Gatekeeper[*Packet]
	replay     *replay.Registry[chan<- *Packet, string]
	writers    *WriterLedger
	traceLog   *replaylog.Log[TracedEvent]

	stats       status.DomainStats
	recordIndex uint64
	quitting    bool
}

func NewDomain(cfg DomainConfig) *Domain {
	cfg = cfg.withDefaults()
	d := &Domain{
		cfg:         cfg,
		mailbox:     NewMailbox(cfg.BoundedCapacity),
		nodes:       map[LocalNodeIndex]*NodeDescriptor{},
		addrToLocal: map[NodeAddress]LocalNodeIndex{},
		replay:      replay.NewRegistry[chan<- *Packet, string](),
		writers:     NewWriterLedger(),
		traceLog:    replaylog.New[TracedEvent](),
	}
	d.stats.DomainID = uint64(cfg.ID)
	d.gatekeeper = txn.NewGatekeeper[*Packet](func(format string, args ...interface{}) {
		d.cfg.Logger.Log(LevelWarn, fmt.Sprintf(format, args...))
	})
	return d
}

func (d *Domain) Mailbox() *Mailbox { return d.mailbox }

func (d *Domain) Writers() *WriterLedger { return d.writers }

func (d *Domain) TraceLog() *replaylog.Log[TracedEvent] { return d.traceLog }

// recordTrace appends event to the domain's own durable trace log,
// independent of whether the packet being handled was injected with an
// external Tracer channel -- pkt.Trace only reaches a caller that asked
// for one, while recordTrace always keeps a local, truncatable record
// an operator can inspect after the fact (spec.md §4.F).
func (d *Domain) recordTrace(event PacketEvent) {
	index := d.traceLog.Append(TracedEvent{Timestamp: d.cfg.Clock.Now(), Event: event})
	if index+1 > traceLogRetention {
		d.traceLog.Truncate(index + 1 - traceLogRetention)
	}
}

// AddNode registers a node the domain owns and wires it to its
// already-registered local parents.
func (d *Domain) AddNode(n *NodeDescriptor, parents []LocalNodeIndex) {
	d.nodes[n.Address] = n
	d.addrToLocal[n.Global] = n.Address
	for _, parent := range parents {
		if p, ok := d.nodes[parent]; ok {
			p.AddLocalChild(n.Address)
		}
	}
}

func (d *Domain) node(addr NodeAddress) (*NodeDescriptor, bool) {
	local, ok := d.addrToLocal[addr]
	if !ok {
		return nil, false
	}
	return d.nodes[local], true
}

// Run processes packets until a Quit control packet is handled or the
// mailbox is closed. It prefers the unbounded (replay/control) side
// whenever one is ready, matching spec.md §4.E's requirement that
// self-clocking traffic never wait behind a backed-up bounded channel,
// while still falling through to a fair select so regular dataflow
// traffic is never starved outright.
func (d *Domain) Run() error {
	for !d.quitting {
		select {
		case pkt, ok := <-d.mailbox.Unbounded.Out():
			if !ok {
				return nil
			}
			if err := d.handle(pkt); err != nil {
				return err
			}
			continue
		default:
		}

		waitStart := time.Now()
		select {
		case pkt, ok := <-d.mailbox.Unbounded.Out():
			d.stats.WaitTimeNs += uint64(time.Since(waitStart))
			if !ok {
				return nil
			}
			if err := d.handle(pkt); err != nil {
				return err
			}
		case pkt, ok := <-d.mailbox.Bounded:
			d.stats.WaitTimeNs += uint64(time.Since(waitStart))
			if !ok {
				return nil
			}
			if err := d.handle(pkt); err != nil {
				return err
			}
		}
	}
	return nil
}

// newUnboundedSender hands back a plain *Packet channel that proxies
// onto the domain's unbounded queue, satisfying RequestUnboundedTx --
// callers outside the domain never see Unbounded itself, only
// something they can send on.
func (d *Domain) newUnboundedSender() chan<- *Packet {
	ch := make(chan *Packet)
	go func() {
		for p := range ch {
			d.mailbox.Unbounded.Send(p)
		}
	}()
	return ch
}

func ackStruct(ack chan<- struct{}) {
	if ack != nil {
		ack <- struct{}{}
	}
}

// recordPacket appends pkt to the configured recording stream, if any
// (spec.md §6: "every packet dequeued by a domain may be appended...
// to a recording stream"). A failed write is logged, not fatal --
// losing a recording entry should never bring down the domain loop.
func (d *Domain) recordPacket(pkt *Packet) {
	if d.cfg.Recorder == nil {
		return
	}
	d.recordIndex++
	if err := d.cfg.Recorder.Write(pkt.Record(d.recordIndex, uint64(d.cfg.ID))); err != nil {
		d.cfg.Logger.Log(LevelWarn, "domain: failed recording packet", "err", err)
	}
}

// consultWriterLedger applies spec.md §4.G's de-dup check before a
// Message/Transaction packet reaches its target base node. drop=true
// means the caller should silently no-op (an idempotent resend); a
// non-nil error means the caller should reject the write with it.
// Packets with no writer identity, or not targeting a base node, pass
// through untouched -- internal traffic (egress hops, replay-derived
// packets) never carries writer identity in the first place.
func (d *Domain) consultWriterLedger(pkt *Packet) (drop bool, err error) {
	writer, seq, ok := pkt.WriterIdentity()
	if !ok {
		return false, nil
	}
	n, ok := d.node(pkt.Link().Dst)
	if !ok || n.Kind != NodeKindBase {
		return false, nil
	}
	accept, err := d.writers.AcceptRecords(writer, seq, pkt.Data())
	if err != nil {
		return false, err
	}
	return !accept, nil
}

func (d *Domain) handle(pkt *Packet) error {
	start := time.Now()
	defer func() { d.stats.TotalProcessTimeNs += uint64(time.Since(start)) }()

	d.recordPacket(pkt)
	pkt.Trace(d.cfg.Clock, ExitInputChannel)
	d.recordTrace(ExitInputChannel)
	pkt.Trace(d.cfg.Clock, Handle)
	d.recordTrace(Handle)

	switch pkt.Kind() {
	case PacketMessage:
		pkt.Trace(d.cfg.Clock, Process)
		d.recordTrace(Process)
		if drop, err := d.consultWriterLedger(pkt); err != nil {
			return err
		} else if drop {
			return nil
		}
		return d.routeRegular(pkt.Link(), pkt.TakeData(), pkt.Tracer())

	case PacketTransaction:
		pkt.Trace(d.cfg.Clock, Process)
		d.recordTrace(Process)
		if drop, err := d.consultWriterLedger(pkt); err != nil {
			return err
		} else if drop {
			return nil
		}
		return d.handleTransaction(pkt)

	case PacketFullReplay:
		return d.handleFullReplay(pkt)

	case PacketReplayPiece:
		return d.handleReplayPiece(pkt)

	case PacketFinish:
		tag, _ := pkt.Finish()
		return d.replay.EndFull(replay.Tag(tag))

	case PacketAddNode:
		p := pkt.AddNode()
		d.AddNode(p.Node, p.Parents)
		return nil

	case PacketAddBaseColumn:
		p := pkt.AddBaseColumn()
		ackStruct(p.Ack)
		return nil

	case PacketDropBaseColumn:
		p := pkt.DropBaseColumn()
		ackStruct(p.Ack)
		return nil

	case PacketUpdateEgress:
		return d.handleUpdateEgress(pkt.UpdateEgress())

	case PacketAddStreamer:
		p := pkt.AddStreamer()
		n, ok := d.nodes[p.Node]
		if !ok {
			return errors.Errorf("domain: add streamer to unknown node %v", p.Node)
		}
		n.AddStreamer(p.NewStreamer)
		return nil

	case PacketRequestUnboundedTx:
		p := pkt.RequestUnboundedTx()
		p.Reply <- d.newUnboundedSender()
		return nil

	case PacketPrepareState:
		return d.handlePrepareState(pkt.PrepareState())

	case PacketStateSizeProbe:
		p := pkt.StateSizeProbe()
		n, ok := d.nodes[p.Node]
		if !ok {
			return errors.Errorf("domain: state size probe for unknown node %v", p.Node)
		}
		p.Ack <- stateSize(n.State)
		return nil

	case PacketSetupReplayPath:
		return d.handleSetupReplayPath(pkt.SetupReplayPath())

	case PacketRequestPartialReplay:
		p := pkt.RequestPartialReplay()
		return d.handleRequestPartialReplay(p.Tag, p.Key)

	case PacketStartReplay:
		p := pkt.StartReplay()
		if _, err := d.replay.Path(replay.Tag(p.Tag)); err != nil {
			return err
		}
		d.replay.BeginFull(replay.Tag(p.Tag))
		ackStruct(p.Ack)
		return nil

	case PacketReady:
		p := pkt.Ready()
		if _, ok := d.nodes[p.Node]; !ok {
			return errors.Errorf("domain: ready for unknown node %v", p.Node)
		}
		ackStruct(p.Ack)
		return nil

	case PacketQuit:
		for _, tag := range d.replay.InFlightFullReplays() {
			if err := d.replay.AbandonFull(tag); err != nil {
				return err
			}
		}
		d.quitting = true
		return nil

	case PacketStartMigration:
		p := pkt.StartMigration()
		d.gatekeeper.StartMigration(txn.Timestamp(p.At), txn.Timestamp(p.PrevTs))
		ackStruct(p.Ack)
		return nil

	case PacketCompleteMigration:
		p := pkt.CompleteMigration()
		if err := d.gatekeeper.CompleteMigration(txn.Timestamp(p.At)); err != nil {
			return err
		}
		for _, env := range d.gatekeeper.Drain() {
			if err := d.applyCommittedTransaction(env); err != nil {
				return err
			}
		}
		return nil

	case PacketGetStatistics:
		p := pkt.GetStatistics()
		snap := d.snapshot()
		if d.cfg.Metrics != nil {
			d.cfg.Metrics.Observe(d.cfg.MetricsLabel, &snap)
		}
		p.Reply <- snap
		return nil

	case PacketCaptured, PacketNone:
		return nil

	default:
		return errors.Errorf("domain: unhandled packet kind %v", pkt.Kind())
	}
}

func (d *Domain) handleUpdateEgress(p UpdateEgressPayload) error {
	n, ok := d.nodes[p.Node]
	if !ok {
		return errors.Errorf("domain: update egress for unknown node %v", p.Node)
	}
	if p.NewTx != nil {
		n.AddEgressChild(NewLink(p.NewTx.Old, p.NewTx.New), p.NewTx.Tx)
	}
	// NewTag rewires a replay tag's egress route as part of a live
	// migration; routing a ReplayPiece across a domain boundary by tag
	// is controller-driven path rewriting (spec.md §1 Non-goals: the
	// controller/migrator is out of scope), so there is nothing further
	// for a bare domain to do with it here.
	return nil
}

func (d *Domain) handlePrepareState(p PrepareStatePayload) error {
	n, ok := d.nodes[p.Node]
	if !ok {
		return errors.Errorf("domain: prepare state for unknown node %v", p.Node)
	}
	switch p.Spec.Kind {
	case StateIndexedLocal, StatePartialLocal:
		n.State = NewLocalState(p.Spec.Kind, p.Spec.Indices)
	case StateGlobal, StatePartialGlobal:
		n.State = NewGlobalHandle(p.Spec.Kind, p.Spec.Columns)
	default:
		n.State = NoneState{}
	}
	return nil
}

func stateSize(s State) int {
	switch st := s.(type) {
	case *LocalState:
		return st.RowCount()
	case *GlobalHandle:
		total := 0
		for _, c := range *st.public.Load() {
			total += len(c.rows)
		}
		return total
	default:
		return 0
	}
}

func (d *Domain) handleSetupReplayPath(p SetupReplayPathPayload) error {
	var source *replay.NodeID
	if p.Source != nil {
		s := replay.NodeID(*p.Source)
		source = &s
	}
	d.replay.SetupPath(&replay.Path[chan<- *Packet]{
		Tag:     replay.Tag(p.Tag),
		Source:  source,
		Hops:    p.Hops,
		Trigger: p.Trigger,
		DoneTx:  p.DoneTx,
	})
	ackStruct(p.Ack)
	return nil
}

func (d *Domain) handleRequestPartialReplay(tag Tag, key Key) error {
	outcome, err := d.replay.RequestPartial(replay.Tag(tag), encodeKey(key))
	if err != nil {
		return err
	}
	if outcome != replay.Issue {
		// Coalesce: another request for (tag, key) is already in
		// flight; the eventual ReplayPiece satisfies both. SubsumedByFull:
		// an in-progress full replay already covers this tag and will
		// fill key too. Neither case notifies a requester directly --
		// RequestPartialReplay carries no reply channel of its own, so
		// the asking side is expected to re-Lookup and, on a continued
		// miss, reissue the request rather than block on a callback
		// (see DESIGN.md).
		return nil
	}

	path, err := d.replay.Path(replay.Tag(tag))
	if err != nil {
		return err
	}
	if path.Trigger.Kind == replay.TriggerEnd {
		path.Trigger.End <- NewRequestPartialReplay(tag, key)
	}
	// TriggerStart/TriggerLocal originate from a concrete source node's
	// own state scan, which is operator-implementation territory this
	// module treats as opaque (spec.md §1 Non-goals).
	return nil
}

// routeRegular walks the in-domain subgraph starting at link.Dst,
// calling each internal node's Operator in-process (no Packet
// re-encoding between nodes in the same domain -- spec.md §4.E) until
// it reaches an egress node, where the records are wrapped in a fresh
// Packet and handed to the next domain, or a reader node, where they
// are materialized and fanned out to streamers.
func (d *Domain) routeRegular(link Link, data Records, tracer Tracer) error {
	type job struct {
		addr NodeAddress
		from NodeAddress
		data Records
	}

	queue := []job{{addr: link.Dst, from: link.Src, data: data}}
	for len(queue) > 0 {
		j := queue[0]
		queue = queue[1:]

		n, ok := d.node(j.addr)
		if !ok {
			return errors.Errorf("domain: packet routed to unknown node %v", j.addr)
		}

		d.stats.TotalPacketsProcessed++

		if n.Kind == NodeKindEgress {
			// P6 (spec.md §8): no packet with IsEmpty()==true is ever
			// forwarded -- a filter upstream may have dropped every row.
			if j.data.IsEmpty() {
				continue
			}
			for _, child := range n.EgressChildren {
				child.Tx <- NewMessage(child.Link, j.data.Clone(), tracer)
			}
			continue
		}

		if n.Kind == NodeKindReader {
			if n.State.Kind() != StateNone {
				d.applyState(n, j.data)
			}
			n.NotifyStreamers(j.data)
			tracer.emit(d.cfg.Clock, ReachedReader)
			d.recordTrace(ReachedReader)
			continue
		}

		out := j.data
		if n.Kind == NodeKindInternal {
			var err error
			out, err = n.Op.Process(j.data, j.from, n.State)
			if err != nil {
				return errors.WithMessagef(err, "node %v process", n.Address)
			}
		}

		if n.State.Kind() != StateNone {
			d.applyState(n, out)
		}

		for _, childAddr := range n.LocalChildren {
			child, ok := d.nodes[childAddr]
			if !ok {
				continue
			}
			queue = append(queue, job{addr: child.Global, from: n.Global, data: out})
		}
	}
	return nil
}

// applyState merges records into n's materialization, grouping by key
// for the index-keyed variants (GlobalHandle is single-indexed;
// LocalState handles its own per-declared-index grouping internally).
func (d *Domain) applyState(n *NodeDescriptor, records Records) {
	switch st := n.State.(type) {
	case *LocalState:
		st.Apply(records)
	case *GlobalHandle:
		cols := st.Columns()
		order := []string{}
		keyOf := map[string]Key{}
		byKey := map[string]Records{}
		for _, r := range records {
			k := r.Row.Key(cols)
			enc := encodeKey(k)
			if _, seen := keyOf[enc]; !seen {
				keyOf[enc] = k
				order = append(order, enc)
			}
			byKey[enc] = append(byKey[enc], r)
		}
		for _, enc := range order {
			st.Apply(keyOf[enc], byKey[enc])
		}
	}
}

func (d *Domain) handleTransaction(pkt *Packet) error {
	tx := pkt.TransactionState()
	switch tx.Kind {
	case TxPending:
		return d.submitPendingTransaction(pkt)
	case TxWillCommit:
		return d.submitTransaction(pkt, -1, true)
	case TxCommitted:
		return d.submitTransaction(pkt, tx.Ts, false)
	default:
		return errors.Errorf("domain: unknown transaction state kind %v", tx.Kind)
	}
}

// submitPendingTransaction resolves an optimistic write's checktable
// token to a commit timestamp (or an abort) before admission. The
// checktable round trip blocks the domain loop; that is acceptable
// only because checktable is explicitly an external, in-scope-as-a-
// dependency service rather than a component this module hardens
// against latency (spec.md §1 Non-goals, §6).
func (d *Domain) submitPendingTransaction(pkt *Packet) error {
	tx := pkt.TransactionState()
	reply := make(chan checktable.Verdict[DomainIndex], 1)
	d.cfg.Checktable.Requests() <- checktable.Request[DomainIndex]{Token: tx.Token, Reply: reply}
	verdict := <-reply

	if verdict.Err != nil {
		if tx.Reply != nil {
			tx.Reply <- TxVote{Ok: false}
		}
		return nil
	}

	pkt.SetTransactionState(CommittedTxState(tx.Source, verdict.Ts, verdict.Prevs))
	if err := d.submitTransaction(pkt, verdict.Ts, false); err != nil {
		return err
	}
	if tx.Reply != nil {
		tx.Reply <- TxVote{Ts: verdict.Ts, Ok: true}
	}
	return nil
}

func (d *Domain) submitTransaction(pkt *Packet, ts int64, willCommit bool) error {
	tx := pkt.TransactionState()
	prevs := make(map[txn.DomainID]txn.Timestamp, len(tx.Prevs))
	for k, v := range tx.Prevs {
		prevs[txn.DomainID(k)] = txn.Timestamp(v)
	}

	decision, env := d.gatekeeper.Submit(txn.Timestamp(ts), willCommit, txn.DomainID(tx.Source), prevs, pkt)
	if decision == txn.Buffered {
		return nil
	}
	if err := d.applyCommittedTransaction(env); err != nil {
		return err
	}

	// Admitting env may have made one or more previously out-of-order
	// arrivals admissible in turn; release the whole run (spec.md §4.D
	// scenario: out-of-order arrival applies in timestamp order).
	for _, drained := range d.gatekeeper.Drain() {
		if err := d.applyCommittedTransaction(drained); err != nil {
			return err
		}
	}
	return nil
}

func (d *Domain) applyCommittedTransaction(env txn.Envelope[*Packet]) error {
	p := env.Payload
	prevs := make(map[DomainIndex]int64, len(env.Prevs))
	for k, v := range env.Prevs {
		prevs[DomainIndex(k)] = int64(v)
	}
	p.SetTransactionState(CommittedTxState(DomainIndex(env.Source), int64(env.Ts), prevs))
	return d.routeRegular(p.Link(), p.TakeData(), p.Tracer())
}

func (d *Domain) handleFullReplay(pkt *Packet) error {
	tag, _ := pkt.Tag()
	if _, err := d.replay.Path(replay.Tag(tag)); err != nil {
		return err
	}
	return d.routeRegular(pkt.Link(), pkt.FullReplayState(), nil)
}

func (d *Domain) handleReplayPiece(pkt *Packet) error {
	tag, _ := pkt.Tag()
	ctx := pkt.ReplayContext()

	if ctx.Kind == ReplayContextPartial && ctx.Ignore {
		return nil
	}

	if err := d.routeRegular(pkt.Link(), pkt.Data(), pkt.Tracer()); err != nil {
		return err
	}

	if ctx.Kind == ReplayContextPartial {
		d.replay.CompletePartial(replay.Tag(tag), encodeKey(ctx.ForKey))
		return nil
	}
	if ctx.Last {
		return d.replay.EndFull(replay.Tag(tag))
	}
	return nil
}

func (d *Domain) snapshot() status.Snapshot {
	snap := status.Snapshot{
		Domain: status.DomainStats{
			DomainID:              uint64(d.cfg.ID),
			TotalPacketsProcessed: d.stats.TotalPacketsProcessed,
			TotalProcessTimeNs:    d.stats.TotalProcessTimeNs,
			WaitTimeNs:            d.stats.WaitTimeNs,
		},
		Nodes: map[uint64]status.NodeStats{},
	}
	for _, n := range d.nodes {
		snap.Nodes[uint64(n.Global)] = status.NodeStats{
			NodeID:           uint64(n.Global),
			RowsMaterialized: uint64(stateSize(n.State)),
		}
	}
	return snap
}
