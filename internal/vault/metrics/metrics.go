// Package metrics exposes vault operation counters as Prometheus collectors.
// Registration is optional; unregistered counters cost almost nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Submitted     prometheus.Counter
	Conflicts     prometheus.Counter
	Failures      prometheus.Counter
	TerminalFails prometheus.Counter
	SweptDocs     prometheus.Counter
	SweptItems    prometheus.Counter
}

// New creates the vault counters and registers them on reg when non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docvault_sync_submitted_total",
			Help: "Queue items accepted by the server.",
		}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docvault_sync_conflicts_total",
			Help: "Queue items that hit a server conflict and were resolved.",
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docvault_sync_failures_total",
			Help: "Transient submission failures (will be retried).",
		}),
		TerminalFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docvault_sync_terminal_failures_total",
			Help: "Queue items that exceeded the retry ceiling.",
		}),
		SweptDocs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docvault_swept_documents_total",
			Help: "Expired documents removed by the retention sweeper.",
		}),
		SweptItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docvault_swept_queue_items_total",
			Help: "Old failed queue items removed by the retention sweeper.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Submitted, m.Conflicts, m.Failures, m.TerminalFails, m.SweptDocs, m.SweptItems)
	}
	return m
}
