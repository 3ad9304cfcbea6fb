package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zuzya/try.idea-validator/core"
)

// Run outcomes recorded by validator_runs_total.
const (
	OutcomeComplete  = "complete"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
//
// Create with NewMetrics(registry) and pass it via Options.Metrics:
//
//	registry := prometheus.NewRegistry()
//	eng := engine.New(stages, func(o *engine.Options) { o.Metrics = engine.NewMetrics(registry) })
type Metrics struct {
	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	fanOutTasks   *prometheus.CounterVec
	runs          *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// means prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		stageRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validator_stage_runs_total",
				Help: "Total number of stage executions by outcome",
			},
			[]string{"stage", "status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "validator_stage_duration_seconds",
				Help:    "Duration of stage executions",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"stage"},
		),
		fanOutTasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validator_fanout_tasks_total",
				Help: "Total number of fan-out tasks by outcome",
			},
			[]string{"status"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validator_runs_total",
				Help: "Total number of finished runs by outcome",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(m.stageRuns, m.stageDuration, m.fanOutTasks, m.runs)

	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) observeStage(stage core.StageID, dur time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageRuns.WithLabelValues(stage.String(), status(err)).Inc()
	m.stageDuration.WithLabelValues(stage.String()).Observe(dur.Seconds())
}

func (m *Metrics) observeTask(err error) {
	if m == nil {
		return
	}
	m.fanOutTasks.WithLabelValues(status(err)).Inc()
}

func (m *Metrics) observeRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}
