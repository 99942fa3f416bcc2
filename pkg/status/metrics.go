package status

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors a Snapshot onto Prometheus collectors so an operator
// can scrape per-domain throughput without issuing a GetStatistics
// control packet (SPEC_FULL.md's ambient observability addition; the
// core protocol itself never depends on this).
type Metrics struct {
	packetsProcessed *prometheus.CounterVec
	processTimeNs     *prometheus.CounterVec
	waitTimeNs        *prometheus.CounterVec
	rowsMaterialized  *prometheus.GaugeVec
}

// NewMetrics registers the collectors against reg. Passing
// prometheus.NewRegistry() keeps tests isolated from the global
// default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		packetsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "noria",
			Subsystem: "domain",
			Name:      "packets_processed_total",
			Help:      "Total packets processed by this domain.",
		}, []string{"domain"}),
		processTimeNs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "noria",
			Subsystem: "domain",
			Name:      "process_time_ns_total",
			Help:      "Total nanoseconds spent processing packets.",
		}, []string{"domain"}),
		waitTimeNs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "noria",
			Subsystem: "domain",
			Name:      "wait_time_ns_total",
			Help:      "Total nanoseconds spent blocked waiting for input.",
		}, []string{"domain"}),
		rowsMaterialized: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "noria",
			Subsystem: "node",
			Name:      "rows_materialized",
			Help:      "Rows currently held in a node's materialization.",
		}, []string{"domain", "node"}),
	}

	reg.MustRegister(m.packetsProcessed, m.processTimeNs, m.waitTimeNs, m.rowsMaterialized)
	return m
}

// Observe updates every collector from one Snapshot. domainLabel is an
// operator-facing name, not the raw numeric DomainID, so dashboards
// read sensibly.
func (m *Metrics) Observe(domainLabel string, snap *Snapshot) {
	m.packetsProcessed.WithLabelValues(domainLabel).Add(float64(snap.Domain.TotalPacketsProcessed))
	m.processTimeNs.WithLabelValues(domainLabel).Add(float64(snap.Domain.TotalProcessTimeNs))
	m.waitTimeNs.WithLabelValues(domainLabel).Add(float64(snap.Domain.WaitTimeNs))

	for id, n := range snap.Nodes {
		label := strconv.FormatUint(id, 10)
		m.rowsMaterialized.WithLabelValues(domainLabel, label).Set(float64(n.RowsMaterialized))
	}
}
