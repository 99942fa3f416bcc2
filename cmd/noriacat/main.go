/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// noriacat is a utility for reviewing noria domain packet recordings,
// adapted from the teacher's mircat: it understands the newline-JSON
// format pkg/recorder writes and is able to parse and filter it.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/alecthomas/kingpin.v2"

	noria "github.com/Khalefa/noria"
	"github.com/Khalefa/noria/pkg/recorder"
	"github.com/Khalefa/noria/pkg/status"
)

var allPacketKinds = []string{
	"Message", "Transaction", "FullReplay", "ReplayPiece", "Finish",
	"AddNode", "AddBaseColumn", "DropBaseColumn", "UpdateEgress",
	"AddStreamer", "RequestUnboundedTx", "PrepareState", "StateSizeProbe",
	"SetupReplayPath", "RequestPartialReplay", "StartReplay", "Ready",
	"Quit", "StartMigration", "CompleteMigration", "GetStatistics",
	"Captured", "None",
}

// excludeByKind mirrors mircat's excludeByType: at most one of include
// or exclude is ever non-nil (parseArgs rejects setting both).
func excludeByKind(value string, include, exclude []string) bool {
	if include != nil {
		for _, k := range include {
			if k == value {
				return false
			}
		}
		return true
	}
	for _, k := range exclude {
		if k == value {
			return true
		}
	}
	return false
}

func excludedByDomainID(rec *noria.RecordedPacket, domainIDs []uint64) bool {
	if domainIDs == nil {
		return false
	}
	for _, id := range domainIDs {
		if id == rec.DomainID {
			return false
		}
	}
	return true
}

type arguments struct {
	input         io.ReadCloser
	domainIDs     []uint64
	kinds         []string
	notKinds      []string
	statusIndices []uint64
}

// domainCounters accumulates the same per-domain totals GetStatistics
// reports, but derived purely from a recorded trace rather than a live
// Domain -- enough for --statusIndex to show "what had this domain
// processed by this point in the log" during offline review.
type domainCounters struct {
	totals map[uint64]*status.DomainStats
}

func newDomainCounters() *domainCounters {
	return &domainCounters{totals: map[uint64]*status.DomainStats{}}
}

func (c *domainCounters) apply(rec *noria.RecordedPacket) {
	d, ok := c.totals[rec.DomainID]
	if !ok {
		d = &status.DomainStats{DomainID: rec.DomainID}
		c.totals[rec.DomainID] = d
	}
	d.TotalPacketsProcessed++
}

func (c *domainCounters) snapshot(domainID uint64) status.Snapshot {
	d, ok := c.totals[domainID]
	if !ok {
		d = &status.DomainStats{DomainID: domainID}
	}
	return status.Snapshot{Domain: *d, Nodes: map[uint64]status.NodeStats{}}
}

func (a *arguments) shouldPrint(rec *noria.RecordedPacket) bool {
	if excludedByDomainID(rec, a.domainIDs) {
		return false
	}
	return !excludeByKind(rec.Kind, a.kinds, a.notKinds)
}

func (a *arguments) execute(output io.Writer) error {
	defer a.input.Close()

	counters := newDomainCounters()
	reader := recorder.NewReader[noria.RecordedPacket](a.input)

	statusIndices := map[uint64]struct{}{}
	for _, idx := range a.statusIndices {
		statusIndices[idx] = struct{}{}
	}

	index := uint64(0)
	for {
		rec, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.WithMessage(err, "failed reading input")
		}
		index++

		_, wantStatus := statusIndices[index]

		if wantStatus || a.shouldPrint(&rec) {
			fmt.Fprintf(output, "% 6d [domain %d] %s\n", index, rec.DomainID, rec.Text)
		}

		counters.apply(&rec)
		if wantStatus {
			fmt.Fprint(output, counters.snapshot(rec.DomainID).Pretty())
		}
	}
}

func parseArgs(args []string) (*arguments, error) {
	app := kingpin.New("noriacat", "Utility for processing noria domain packet recordings.")
	input := app.Flag("input", "The input file to read (defaults to stdin).").Default(os.Stdin.Name()).File()
	domainIDs := app.Flag("domainID", "Report packets from this domain only, may be repeated").Uint64List()
	kinds := app.Flag("kind", "Which packet kinds to report.").Enums(allPacketKinds...)
	notKinds := app.Flag("notKind", "Which packet kinds to exclude. (Cannot combine with --kind)").Enums(allPacketKinds...)
	statusIndices := app.Flag("statusIndex", "Print accumulated per-domain stats at the given index in the log (repeatable).").Uint64List()

	_, err := app.Parse(args)
	if err != nil {
		return nil, err
	}

	if *kinds != nil && *notKinds != nil {
		return nil, errors.Errorf("cannot set both --kind and --notKind")
	}

	return &arguments{
		input:         *input,
		domainIDs:     *domainIDs,
		kinds:         *kinds,
		notKinds:      *notKinds,
		statusIndices: *statusIndices,
	}, nil
}

func main() {
	kingpin.Version("0.0.1")
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		kingpin.Fatalf("Error, %s, try --help", err)
	}
	if err := args.execute(os.Stdout); err != nil {
		kingpin.Fatalf("Error, %s", err)
	}
}
