package recorder

import (
	"bytes"
	"io"
	"testing"
)

type sample struct {
	NodeID uint64
	Text   string
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter[sample](&buf)

	records := []sample{
		{NodeID: 1, Text: "first"},
		{NodeID: 2, Text: "second"},
	}
	for _, r := range records {
		if err := w.Write(r); err != nil {
			t.Fatalf("unexpected write error: %v", err)
		}
	}

	r := NewReader[sample](&buf)
	for _, want := range records {
		got, err := r.ReadEvent()
		if err != nil {
			t.Fatalf("unexpected read error: %v", err)
		}
		if got != want {
			t.Fatalf("expected %+v, got %+v", want, got)
		}
	}

	if _, err := r.ReadEvent(); err != io.EOF {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}
