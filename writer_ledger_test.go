package noria

import (
	"errors"
	"testing"
)

func TestWriterLedgerAcceptsInOrderWrites(t *testing.T) {
	l := NewWriterLedger()

	ok, err := l.Accept(1, 0, Row{"a", 1})
	if err != nil || !ok {
		t.Fatalf("expected first write to be accepted, got ok=%v err=%v", ok, err)
	}
	ok, err = l.Accept(1, 1, Row{"a", 2})
	if err != nil || !ok {
		t.Fatalf("expected second write to be accepted, got ok=%v err=%v", ok, err)
	}
	if l.NextSeq(1) != 2 {
		t.Fatalf("expected next seq 2, got %d", l.NextSeq(1))
	}
}

func TestWriterLedgerIdempotentResendIsANoOp(t *testing.T) {
	l := NewWriterLedger()
	l.Accept(1, 0, Row{"a", 1})

	ok, err := l.Accept(1, 0, Row{"a", 1})
	if err != nil {
		t.Fatalf("expected an exact resend to not error, got %v", err)
	}
	if ok {
		t.Fatalf("expected an exact resend to report accept=false (already applied)")
	}
}

func TestWriterLedgerDigestMismatchRejected(t *testing.T) {
	l := NewWriterLedger()
	l.Accept(1, 0, Row{"a", 1})

	_, err := l.Accept(1, 0, Row{"a", 999})
	if !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("expected ErrDigestMismatch for reused seq with different row, got %v", err)
	}
}

func TestWriterLedgerSequenceGapRejected(t *testing.T) {
	l := NewWriterLedger()
	_, err := l.Accept(1, 5, Row{"a", 1})
	if !errors.Is(err, ErrSeqGap) {
		t.Fatalf("expected ErrSeqGap for a seq ahead of nextSeq, got %v", err)
	}
}

func TestWriterLedgerTracksWritersIndependently(t *testing.T) {
	l := NewWriterLedger()
	l.Accept(1, 0, Row{"a", 1})
	ok, err := l.Accept(2, 0, Row{"b", 1})
	if err != nil || !ok {
		t.Fatalf("expected a different writer's seq 0 to be independent, got ok=%v err=%v", ok, err)
	}
}
