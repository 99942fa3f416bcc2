package replaylog

import "testing"

func TestAppendAndIterateInOrder(t *testing.T) {
	l := New[string]()
	l.Append("a")
	l.Append("b")
	l.Append("c")

	var got []string
	l.Iterate(func(index uint64, value string) bool {
		got = append(got, value)
		return true
	})

	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected iteration order: %v", got)
	}
}

func TestTruncateDropsEntriesBelowWatermark(t *testing.T) {
	l := New[int]()
	for i := 0; i < 5; i++ {
		l.Append(i * 10)
	}

	dropped := l.Truncate(3)
	if dropped != 3 {
		t.Fatalf("expected 3 entries dropped, got %d", dropped)
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 entries remaining, got %d", l.Len())
	}

	var got []int
	l.Iterate(func(index uint64, value int) bool {
		got = append(got, value)
		return true
	})
	if len(got) != 2 || got[0] != 30 || got[1] != 40 {
		t.Fatalf("unexpected surviving entries: %v", got)
	}
}

func TestTruncateToEmptyResetsTail(t *testing.T) {
	l := New[int]()
	l.Append(1)
	l.Append(2)
	l.Truncate(100)
	if l.Len() != 0 {
		t.Fatalf("expected empty log after truncating past the end")
	}
	l.Append(3)
	if l.Len() != 1 {
		t.Fatalf("expected append after full truncation to work, got len=%d", l.Len())
	}
}
