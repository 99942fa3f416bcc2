package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	noria "github.com/Khalefa/noria"
	"github.com/Khalefa/noria/pkg/recorder"
)

func recordedTrace(t *testing.T, packets []noria.RecordedPacket) string {
	t.Helper()
	var buf bytes.Buffer
	w := recorder.NewWriter[noria.RecordedPacket](&buf)
	for _, p := range packets {
		if err := w.Write(p); err != nil {
			t.Fatalf("unexpected write error: %v", err)
		}
	}
	return buf.String()
}

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

func TestExecutePrintsEveryRecordByDefault(t *testing.T) {
	pkt := noria.NewMessage(noria.NewLink(1, 2), noria.Records{noria.Insert(noria.Row{"a"})}, nil)
	trace := recordedTrace(t, []noria.RecordedPacket{pkt.Record(1, 0)})

	a := &arguments{input: nopCloser{strings.NewReader(trace)}}
	var out bytes.Buffer
	if err := a.execute(&out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Packet::Message") {
		t.Fatalf("expected output to contain the packet's text, got %q", out.String())
	}
}

func TestExecuteFiltersByKind(t *testing.T) {
	msg := noria.NewMessage(noria.NewLink(1, 2), nil, nil)
	quit := noria.NewQuit()
	trace := recordedTrace(t, []noria.RecordedPacket{msg.Record(1, 0), quit.Record(2, 0)})

	a := &arguments{input: nopCloser{strings.NewReader(trace)}, kinds: []string{"Quit"}}
	var out bytes.Buffer
	if err := a.execute(&out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out.String(), "Message") {
		t.Fatalf("expected the Message record to be filtered out, got %q", out.String())
	}
	if !strings.Contains(out.String(), "Quit") {
		t.Fatalf("expected the Quit record to survive the filter, got %q", out.String())
	}
}

func TestExecuteFiltersByDomainID(t *testing.T) {
	msg := noria.NewMessage(noria.NewLink(1, 2), nil, nil)
	trace := recordedTrace(t, []noria.RecordedPacket{msg.Record(1, 0), msg.Record(2, 7)})

	a := &arguments{input: nopCloser{strings.NewReader(trace)}, domainIDs: []uint64{7}}
	var out bytes.Buffer
	if err := a.execute(&out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "domain 7") {
		t.Fatalf("expected exactly one line for domain 7, got %q", out.String())
	}
}

func TestExecutePrintsAccumulatedStatsAtStatusIndex(t *testing.T) {
	msg := noria.NewMessage(noria.NewLink(1, 2), nil, nil)
	trace := recordedTrace(t, []noria.RecordedPacket{msg.Record(1, 0), msg.Record(2, 0), msg.Record(3, 0)})

	a := &arguments{input: nopCloser{strings.NewReader(trace)}, statusIndices: []uint64{2}}
	var out bytes.Buffer
	if err := a.execute(&out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "2 packets") {
		t.Fatalf("expected the status line at index 2 to report 2 packets processed, got %q", out.String())
	}
}
