package noria

// RecordedPacket is the durable, JSON-friendly projection of a Packet
// that a domain's instrumentation writes out for offline review via
// pkg/recorder -- the same role recorderpb.RecordedEvent plays
// wrapping a NodeId and a StateEvent for mircat. A live Packet carries
// channels (Tracer, control-reply channels) and boxed operator state
// that cannot round-trip through JSON, so only what noriacat actually
// needs to filter and print is captured here.
type RecordedPacket struct {
	Index    uint64
	DomainID uint64
	Kind     string
	Link     string
	Tag      uint64
	Records  int
	Text     string
}

// Record summarizes p as it was handled by domainID at index, the
// value a domain's instrumentation hands to recorder.Writer[RecordedPacket].
func (p *Packet) Record(index, domainID uint64) RecordedPacket {
	rec := RecordedPacket{
		Index:    index,
		DomainID: domainID,
		Kind:     p.kind.String(),
		Text:     p.String(),
	}
	switch p.kind {
	case PacketMessage, PacketTransaction, PacketFullReplay, PacketReplayPiece:
		rec.Link = p.Link().String()
	}
	if tag, ok := p.Tag(); ok {
		rec.Tag = tag.ID()
	}
	if p.IsRegular() {
		rec.Records = len(p.Data())
	}
	return rec
}
