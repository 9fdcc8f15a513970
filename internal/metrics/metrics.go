// Package metrics expone métricas Prometheus del loop de decisión.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics agrupa los colectores del proceso. Un *Metrics nil es válido:
// todos los métodos son no-op, lo que simplifica tests y modos one-shot.
type Metrics struct {
	registry *prometheus.Registry

	PollsTotal     *prometheus.CounterVec
	PollDuration   *prometheus.HistogramVec
	DecisionsTotal *prometheus.CounterVec
	StakeUnits     *prometheus.CounterVec
	SnapshotRows   *prometheus.GaugeVec
	ThemeExposure  *prometheus.GaugeVec
	ReconcileFixes *prometheus.CounterVec
}

// New crea los colectores sobre un registry propio.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		PollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharpline_polls_total",
				Help: "Total number of poll cycles by outcome",
			},
			[]string{"status"},
		),
		PollDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sharpline_poll_duration_seconds",
				Help:    "Duration of a full poll cycle",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms a ~25s
			},
			[]string{"mode"},
		),
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharpline_decisions_total",
				Help: "Decisions by verdict (entry type or skip reason)",
			},
			[]string{"verdict"},
		),
		StakeUnits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharpline_stake_units_total",
				Help: "Units logged by entry type",
			},
			[]string{"entry"},
		),
		SnapshotRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sharpline_snapshot_rows",
				Help: "Rows in the last written snapshot",
			},
			[]string{"visibility"},
		),
		ThemeExposure: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sharpline_theme_exposure_units",
				Help: "Accumulated stake per risk theme",
			},
			[]string{"theme"},
		),
		ReconcileFixes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharpline_reconcile_fixes_total",
				Help: "Corrections applied by reconciliation",
			},
			[]string{"kind"},
		),
	}
	m.registry.MustRegister(
		m.PollsTotal,
		m.PollDuration,
		m.DecisionsTotal,
		m.StakeUnits,
		m.SnapshotRows,
		m.ThemeExposure,
		m.ReconcileFixes,
	)
	return m
}

// Registry devuelve el registry propio.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler sirve /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordPoll registra un ciclo terminado.
func (m *Metrics) RecordPoll(mode, status string, durationSec float64) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(status).Inc()
	m.PollDuration.WithLabelValues(mode).Observe(durationSec)
}

// RecordDecision registra un veredicto. stake solo cuenta si entry no es vacío.
func (m *Metrics) RecordDecision(verdict, entry string, stake float64) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(verdict).Inc()
	if entry != "" && stake > 0 {
		m.StakeUnits.WithLabelValues(entry).Add(stake)
	}
}

// UpdateSnapshot publica el tamaño del snapshot escrito.
func (m *Metrics) UpdateSnapshot(visible, hidden int) {
	if m == nil {
		return
	}
	m.SnapshotRows.WithLabelValues("visible").Set(float64(visible))
	m.SnapshotRows.WithLabelValues("hidden").Set(float64(hidden))
}

// UpdateExposure reemplaza los gauges de exposición por tema.
func (m *Metrics) UpdateExposure(themes map[string]float64) {
	if m == nil {
		return
	}
	m.ThemeExposure.Reset()
	for theme, units := range themes {
		m.ThemeExposure.WithLabelValues(theme).Set(units)
	}
}

// RecordReconcile suma n correcciones del tipo dado.
func (m *Metrics) RecordReconcile(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReconcileFixes.WithLabelValues(kind).Add(float64(n))
}
