package txn

import "testing"

func TestOutOfOrderArrivalAppliesInTimestampOrder(t *testing.T) {
	g := NewGatekeeper[string](nil)

	// ts=2 arrives before the transactions that must precede it; it buffers.
	decision, _ := g.Submit(2, false, 1, nil, "third")
	if decision != Buffered {
		t.Fatalf("expected ts=2 to buffer while nextTs=0, got %v", decision)
	}

	decision, env := g.Submit(0, false, 1, nil, "zeroth")
	if decision != Admit {
		t.Fatalf("expected ts=0 to admit immediately, got %v", decision)
	}
	if env.Payload != "zeroth" {
		t.Fatalf("unexpected payload: %v", env.Payload)
	}

	// ts=1 arrives next, in order; admitting it brings nextTs to 2,
	// which must also release the already-buffered ts=2.
	decision, _ = g.Submit(1, false, 1, nil, "first")
	if decision != Admit {
		t.Fatalf("expected ts=1 to admit once nextTs catches up, got %v", decision)
	}

	drained := g.Drain()
	if len(drained) != 1 || drained[0].Payload != "third" {
		t.Fatalf("expected buffered ts=2 to drain after ts=1, got %+v", drained)
	}
	if g.NextTs() != 3 {
		t.Fatalf("expected nextTs=3 after draining through ts=2, got %d", g.NextTs())
	}
}

func TestMigrationWindowHoldsLaterTransactions(t *testing.T) {
	g := NewGatekeeper[int](nil)

	if d, _ := g.Submit(0, false, 1, nil, 100); d != Admit {
		t.Fatalf("expected ts=0 to admit")
	}

	g.StartMigration(150, 100)

	// A transaction timestamped at or before the boundary still admits
	// as ordinary pre-migration traffic (nextTs=1 here).
	if d, _ := g.Submit(1, false, 1, nil, 101); d != Admit {
		t.Fatalf("expected ts<=prevTs to admit during migration window, got different")
	}

	// A transaction at the post-migration boundary is held, even
	// though nothing else is buffered ahead of it.
	d, _ := g.Submit(150, false, 1, nil, 200)
	if d != Buffered {
		t.Fatalf("expected ts>prevTs to buffer during migration window, got %v", d)
	}

	if len(g.Drain()) != 0 {
		t.Fatalf("expected nothing to drain while migration window is open")
	}

	if err := g.CompleteMigration(150); err != nil {
		t.Fatalf("unexpected error completing migration: %v", err)
	}

	drained := g.Drain()
	if len(drained) != 1 || drained[0].Payload != 200 {
		t.Fatalf("expected held ts=150 (payload 200) to drain after CompleteMigration, got %+v", drained)
	}
	if g.NextTs() != 151 {
		t.Fatalf("expected nextTs=151 after draining, got %d", g.NextTs())
	}
}

func TestPrevsAgainstUnknownSourceDoesNotBlockForever(t *testing.T) {
	var warned string
	g := NewGatekeeper[string](func(format string, args ...interface{}) {
		warned = format
	})

	d, _ := g.Submit(0, false, 1, map[DomainID]Timestamp{99: 5}, "x")
	if d != Admit {
		t.Fatalf("expected admission despite unknown source in prevs, got %v", d)
	}
	if warned == "" {
		t.Fatalf("expected a warning to be logged for the unknown source")
	}
}

func TestWillCommitUsesNextAvailableTimestamp(t *testing.T) {
	g := NewGatekeeper[string](nil)
	g.Submit(0, false, 1, nil, "a")

	d, env := g.Submit(-1, true, 1, nil, "b")
	if d != Admit {
		t.Fatalf("expected WillCommit to admit immediately, got %v", d)
	}
	if env.Ts != 1 {
		t.Fatalf("expected WillCommit to take ts=1, got %d", env.Ts)
	}
}
