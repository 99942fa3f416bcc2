/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package status defines the statistics snapshot types spec.md §6
// names (DomainStats, NodeStats) and a human-readable Pretty renderer,
// the same shape the teacher's own status package takes for mircat's
// --statusIndex output.
package status

import (
	"fmt"
	"sort"
	"strings"
)

// DomainStats is the per-domain counters GetStatistics reports.
type DomainStats struct {
	DomainID              uint64
	TotalPacketsProcessed uint64
	TotalProcessTimeNs    uint64
	WaitTimeNs            uint64
}

// NodeStats is the per-node counters contributed to a GetStatistics
// reply.
type NodeStats struct {
	NodeID           uint64
	RowsMaterialized uint64
	Bytes            uint64
}

// Snapshot bundles one domain's stats with its per-node breakdown, the
// shape GetStatistics actually ships on the wire (spec.md §6).
type Snapshot struct {
	Domain DomainStats
	Nodes  map[uint64]NodeStats
}

func (s *Snapshot) Pretty() string {
	var b strings.Builder
	fmt.Fprintf(&b, "domain %d: %d packets, %dns processing, %dns waiting\n",
		s.Domain.DomainID, s.Domain.TotalPacketsProcessed, s.Domain.TotalProcessTimeNs, s.Domain.WaitTimeNs)

	ids := make([]uint64, 0, len(s.Nodes))
	for id := range s.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		n := s.Nodes[id]
		fmt.Fprintf(&b, "  node %d: %d rows, %d bytes\n", n.NodeID, n.RowsMaterialized, n.Bytes)
	}
	return b.String()
}
