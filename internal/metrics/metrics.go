package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of a swap session. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ReadsTotal       *prometheus.CounterVec
	ReadErrorsTotal  *prometheus.CounterVec
	RefreshDuration  prometheus.Histogram
	TxSubmittedTotal *prometheus.CounterVec
	TxResolvedTotal  *prometheus.CounterVec
	TxConfirmTime    *prometheus.HistogramVec
	StaleSnapshots   prometheus.Counter
}

// New creates and registers the collectors.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		ReadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapper_chain_reads_total",
				Help: "Total number of contract reads by field",
			},
			[]string{"field"},
		),
		ReadErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapper_chain_read_errors_total",
				Help: "Contract reads that ended unknown after retries",
			},
			[]string{"field"},
		),
		RefreshDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "swapper_snapshot_refresh_duration_seconds",
				Help:    "Time taken to refresh a token snapshot",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),
		TxSubmittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapper_transactions_submitted_total",
				Help: "Transactions handed to the wallet for signing and broadcast",
			},
			[]string{"kind"},
		),
		TxResolvedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapper_transactions_resolved_total",
				Help: "Transactions that reached a terminal status",
			},
			[]string{"kind", "status"},
		),
		TxConfirmTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swapper_transaction_confirm_seconds",
				Help:    "Time from submission to terminal status",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"kind"},
		),
		StaleSnapshots: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "swapper_stale_snapshots_total",
				Help: "Snapshot events discarded as superseded",
			},
		),
	}
}

// ObserveRead records one contract read.
func (m *Metrics) ObserveRead(field string, err error) {
	if m == nil {
		return
	}
	m.ReadsTotal.WithLabelValues(field).Inc()
	if err != nil {
		m.ReadErrorsTotal.WithLabelValues(field).Inc()
	}
}

// ObserveRefresh records the duration of a snapshot refresh.
func (m *Metrics) ObserveRefresh(duration time.Duration) {
	if m == nil {
		return
	}
	m.RefreshDuration.Observe(duration.Seconds())
}

// ObserveSubmit records a submitted transaction.
func (m *Metrics) ObserveSubmit(kind string) {
	if m == nil {
		return
	}
	m.TxSubmittedTotal.WithLabelValues(kind).Inc()
}

// ObserveResolved records a transaction reaching status after elapsed.
func (m *Metrics) ObserveResolved(kind, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TxResolvedTotal.WithLabelValues(kind, status).Inc()
	m.TxConfirmTime.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveStale records a discarded snapshot event.
func (m *Metrics) ObserveStale() {
	if m == nil {
		return
	}
	m.StaleSnapshots.Inc()
}
