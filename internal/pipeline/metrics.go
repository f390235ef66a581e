package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"reelgen/internal/domain"
)

// Metrics records stage latencies and run outcomes.
type Metrics struct {
	stageSeconds *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	runs         *prometheus.CounterVec
	inflight     prometheus.Gauge
}

// NewMetrics registers collectors on reg. A nil reg creates unregistered
// collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		stageSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reelgen",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages, including retries.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"stage", "outcome"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelgen",
			Name:      "stage_retries_total",
			Help:      "Retried attempts per stage after transient failures.",
		}, []string{"stage"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelgen",
			Name:      "runs_total",
			Help:      "Finished pipeline runs by outcome and failing stage.",
		}, []string{"outcome", "failed_stage"}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "reelgen",
			Name:      "runs_in_flight",
			Help:      "Pipeline runs currently executing.",
		}),
	}
}

func (m *Metrics) observeStage(stage domain.Stage, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.stageSeconds.WithLabelValues(string(stage), outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) retried(stage domain.Stage) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(string(stage)).Inc()
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) runFinished(failed domain.Stage) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	outcome := "succeeded"
	if failed != "" {
		outcome = "failed"
	}
	m.runs.WithLabelValues(outcome, string(failed)).Inc()
}
