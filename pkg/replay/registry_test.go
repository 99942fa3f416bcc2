package replay

import "testing"

func TestDuplicatePartialReplayCoalesces(t *testing.T) {
	r := NewRegistry[chan<- struct{}, string]()
	r.SetupPath(&Path[chan<- struct{}]{Tag: 1})

	outcome1, err := r.RequestPartial(1, "k7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome1 != Issue {
		t.Fatalf("expected first request to Issue, got %v", outcome1)
	}

	outcome2, err := r.RequestPartial(1, "k7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome2 != Coalesce {
		t.Fatalf("expected second concurrent request to Coalesce, got %v", outcome2)
	}

	woken := r.CompletePartial(1, "k7")
	if woken != 2 {
		t.Fatalf("expected both waiters woken, got %d", woken)
	}

	// Once complete, a fresh request should Issue again.
	outcome3, err := r.RequestPartial(1, "k7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome3 != Issue {
		t.Fatalf("expected request after completion to Issue, got %v", outcome3)
	}
}

func TestPartialSubsumedByInFlightFullReplay(t *testing.T) {
	r := NewRegistry[chan<- struct{}, string]()
	r.SetupPath(&Path[chan<- struct{}]{Tag: 5})

	r.BeginFull(5)

	outcome, err := r.RequestPartial(5, "anykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != SubsumedByFull {
		t.Fatalf("expected SubsumedByFull while full replay in flight, got %v", outcome)
	}

	done := make(chan struct{})
	r.paths[5].DoneTx = done
	if err := r.EndFull(5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case <-done:
	default:
		t.Fatalf("expected DoneTx to fire on EndFull")
	}

	outcome, err = r.RequestPartial(5, "anykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != Issue {
		t.Fatalf("expected request after full replay ends to Issue, got %v", outcome)
	}
}

func TestRequestPartialUnknownTag(t *testing.T) {
	r := NewRegistry[chan<- struct{}, string]()
	if _, err := r.RequestPartial(99, "k"); err == nil {
		t.Fatalf("expected error for unknown tag")
	}
}
