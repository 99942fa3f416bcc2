package noria

// PacketEvent marks a point a traced packet passed through, matching
// the four checkpoints spec.md §4.E's domain loop emits at.
type PacketEvent int

const (
	// ExitInputChannel: the packet has been pulled off the input channel.
	ExitInputChannel PacketEvent = iota
	// Handle: the packet has been received by some domain and is being handled.
	Handle
	// Process: the packet is being processed at some node.
	Process
	// ReachedReader: the packet has reached some reader node.
	ReachedReader
)

func (e PacketEvent) String() string {
	switch e {
	case ExitInputChannel:
		return "ExitInputChannel"
	case Handle:
		return "Handle"
	case Process:
		return "Process"
	case ReachedReader:
		return "ReachedReader"
	default:
		return "Unknown"
	}
}

// TracedEvent is one entry a Tracer channel carries: an opaque,
// monotonic timestamp paired with the checkpoint reached.
type TracedEvent struct {
	Timestamp uint64
	Event     PacketEvent
}

// Tracer is a send-only, best-effort event sink attached to a packet
// at injection time. trace() must never block on a full tracer
// channel -- the event is dropped instead (spec.md §4.A, §4.F).
type Tracer chan<- TracedEvent

// emit sends ev on t without blocking; a full or nil channel silently
// drops the event, matching the "never block on a tracer" contract. A
// send to a closed channel panics, so a caller that closes a tracer
// channel must stop routing packets through it first; nothing in this
// module closes a tracer channel.
func (t Tracer) emit(clock Clock, ev PacketEvent) {
	if t == nil {
		return
	}
	select {
	case t <- TracedEvent{Timestamp: clock.Now(), Event: ev}:
	default:
	}
}
