package noria

import "testing"

func TestUnboundedSendNeverBlocksAheadOfReceiver(t *testing.T) {
	u := NewUnbounded[int]()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			u.Send(i)
		}
		close(done)
	}()

	<-done

	for i := 0; i < 100; i++ {
		if got := <-u.Out(); got != i {
			t.Fatalf("expected FIFO order, wanted %d got %d", i, got)
		}
	}
}

func TestUnboundedCloseDrainsQueueThenClosesOut(t *testing.T) {
	u := NewUnbounded[int]()
	u.Send(1)
	u.Send(2)
	u.Close()

	first, ok := <-u.Out()
	if !ok || first != 1 {
		t.Fatalf("expected first queued value 1, got %d ok=%v", first, ok)
	}
	second, ok := <-u.Out()
	if !ok || second != 2 {
		t.Fatalf("expected second queued value 2, got %d ok=%v", second, ok)
	}
	if _, ok := <-u.Out(); ok {
		t.Fatalf("expected Out() to close once the queue drains")
	}
}

func TestMailboxHasIndependentBoundedAndUnboundedSides(t *testing.T) {
	mb := NewMailbox(1)
	mb.Bounded <- NewMessage(NewLink(1, 2), nil, nil)
	mb.Unbounded.Send(NewQuit())

	select {
	case <-mb.Bounded:
	default:
		t.Fatalf("expected bounded packet to be queued")
	}
	if pkt := <-mb.Unbounded.Out(); pkt.Kind() != PacketQuit {
		t.Fatalf("expected unbounded packet to be the Quit packet, got %v", pkt.Kind())
	}
}
