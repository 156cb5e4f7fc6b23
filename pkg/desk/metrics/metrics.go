// Package metrics provides Prometheus metrics for the valuation desk.
package metrics

import (
	"sync"

	"github.com/phenomenon0/cuprun/pkg/engine/analysis"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// EngineMetrics collects and exposes valuation metrics.
type EngineMetrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	AnalysisRuns     *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec

	// Valuation metrics
	ExpectedValue  *prometheus.GaugeVec
	ExpectedIRRPct *prometheus.GaugeVec
	BreakevenPrice *prometheus.GaugeVec
	FinalProb      *prometheus.GaugeVec
	BookMargin     *prometheus.GaugeVec
	ScenarioNetPL  *prometheus.GaugeVec
	ScenarioIRRPct *prometheus.GaugeVec

	// Desk metrics
	ConfigReloads  *prometheus.CounterVec
	SnapshotWrites *prometheus.CounterVec
	StreamClients  *prometheus.GaugeVec
	StreamEvents   *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

// NewEngineMetrics creates a new metrics collector with its own registry.
func NewEngineMetrics() *EngineMetrics {
	registry := prometheus.NewRegistry()

	em := &EngineMetrics{
		registry: registry,

		AnalysisRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cuprun_analysis_runs_total",
				Help: "Total number of pipeline runs",
			},
			[]string{"trigger", "status"},
		),
		AnalysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cuprun_analysis_duration_seconds",
				Help:    "Pipeline run duration",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100us to ~1.6s
			},
			[]string{},
		),

		ExpectedValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cuprun_expected_value",
				Help: "Probability-weighted net P&L of the run",
			},
			[]string{},
		),
		ExpectedIRRPct: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cuprun_expected_irr_pct",
				Help: "Annualized IRR of the blended timeline in percent",
			},
			[]string{},
		),
		BreakevenPrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cuprun_breakeven_price",
				Help: "Per-unit resale price at which the finals scenario breaks even",
			},
			[]string{},
		),
		FinalProb: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cuprun_reaches_final_prob_pct",
				Help: "Fair probability of reaching the final in percent",
			},
			[]string{},
		),
		BookMargin: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cuprun_book_margin_pct",
				Help: "Bookmaker overround in percentage points",
			},
			[]string{},
		),
		ScenarioNetPL: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cuprun_scenario_net_pl",
				Help: "Net P&L per outcome scenario",
			},
			[]string{"outcome"},
		),
		ScenarioIRRPct: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cuprun_scenario_irr_pct",
				Help: "Annualized IRR per outcome scenario in percent",
			},
			[]string{"outcome"},
		),

		ConfigReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cuprun_config_reloads_total",
				Help: "Total configuration reload attempts",
			},
			[]string{"status"},
		),
		SnapshotWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cuprun_snapshot_writes_total",
				Help: "Total snapshot persistence attempts",
			},
			[]string{"status"},
		),
		StreamClients: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cuprun_stream_clients",
				Help: "Connected streaming clients",
			},
			[]string{},
		),
		StreamEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cuprun_stream_events_total",
				Help: "Events broadcast to streaming clients",
			},
			[]string{"type"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cuprun_http_requests_total",
				Help: "HTTP requests served",
			},
			[]string{"endpoint", "code"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cuprun_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 500us to ~1s
			},
			[]string{"endpoint"},
		),
	}

	em.registerAll()

	return em
}

func (em *EngineMetrics) registerAll() {
	em.registry.MustRegister(
		em.AnalysisRuns,
		em.AnalysisDuration,
		em.ExpectedValue,
		em.ExpectedIRRPct,
		em.BreakevenPrice,
		em.FinalProb,
		em.BookMargin,
		em.ScenarioNetPL,
		em.ScenarioIRRPct,
		em.ConfigReloads,
		em.SnapshotWrites,
		em.StreamClients,
		em.StreamEvents,
		em.HTTPRequests,
		em.HTTPDuration,
	)
}

// Registry returns the prometheus registry.
func (em *EngineMetrics) Registry() *prometheus.Registry {
	return em.registry
}

// RecordAnalysis records one pipeline run.
func (em *EngineMetrics) RecordAnalysis(trigger, status string, durationSec float64) {
	em.AnalysisRuns.WithLabelValues(trigger, status).Inc()
	if durationSec > 0 {
		em.AnalysisDuration.WithLabelValues().Observe(durationSec)
	}
}

// UpdateReport publishes the valuation gauges from a report.
func (em *EngineMetrics) UpdateReport(report *analysis.Report) {
	if report == nil {
		return
	}
	em.ExpectedValue.WithLabelValues().Set(DecimalToFloat64(report.ExpectedValue))
	em.ExpectedIRRPct.WithLabelValues().Set(report.ExpectedIRRPct)
	em.FinalProb.WithLabelValues().Set(report.Ladder.FinalProb)
	em.BookMargin.WithLabelValues().Set(report.Model.Margin)
	if report.BreakevenValid {
		em.BreakevenPrice.WithLabelValues().Set(DecimalToFloat64(report.Breakeven))
	}
	for _, s := range report.Scenarios {
		em.ScenarioNetPL.WithLabelValues(string(s.Outcome)).Set(DecimalToFloat64(s.NetPL))
		em.ScenarioIRRPct.WithLabelValues(string(s.Outcome)).Set(s.IRRPct)
	}
}

// RecordReload records a configuration reload attempt.
func (em *EngineMetrics) RecordReload(status string) {
	em.ConfigReloads.WithLabelValues(status).Inc()
}

// RecordSnapshot records a snapshot persistence attempt.
func (em *EngineMetrics) RecordSnapshot(status string) {
	em.SnapshotWrites.WithLabelValues(status).Inc()
}

// UpdateStreamClients updates the connected client count.
func (em *EngineMetrics) UpdateStreamClients(count int) {
	em.StreamClients.WithLabelValues().Set(float64(count))
}

// RecordStreamEvent records one broadcast event.
func (em *EngineMetrics) RecordStreamEvent(eventType string) {
	em.StreamEvents.WithLabelValues(eventType).Inc()
}

// RecordHTTPRequest records a served request.
func (em *EngineMetrics) RecordHTTPRequest(endpoint, code string, durationSec float64) {
	em.HTTPRequests.WithLabelValues(endpoint, code).Inc()
	if durationSec > 0 {
		em.HTTPDuration.WithLabelValues(endpoint).Observe(durationSec)
	}
}

// DecimalToFloat64 safely converts decimal.Decimal to float64 for metrics.
func DecimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Global instance for convenience
var defaultMetrics *EngineMetrics
var once sync.Once

// Default returns the default global metrics instance.
func Default() *EngineMetrics {
	once.Do(func() {
		defaultMetrics = NewEngineMetrics()
	})
	return defaultMetrics
}
