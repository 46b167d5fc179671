package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/Recipes/internal/domain"
)

// Metrics — Prometheus метрики выполнения рецептов.
//
// Metrics реализует наблюдателя событий движка: достаточно добавить
// его в orchestrator.Config.Observers.
type Metrics struct {
	RunsTotal    *prometheus.CounterVec
	StepsTotal   *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	ActiveRuns   prometheus.Gauge
}

// NewMetrics регистрирует метрики в reg.
// nil reg — prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recipes_runs_total",
			Help: "Total finished recipe runs by final status",
		}, []string{"recipe", "status"}),
		StepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recipes_steps_total",
			Help: "Total executed steps by module and status",
		}, []string{"module", "status"}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recipes_step_duration_seconds",
			Help:    "Step execution duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"module"}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "recipes_active_runs",
			Help: "Recipe runs currently executing",
		}),
	}
}

// Observe обновляет метрики по событию.
func (m *Metrics) Observe(_ context.Context, ev domain.Event) {
	switch ev.Type {
	case domain.EventRunStarted:
		m.ActiveRuns.Inc()
	case domain.EventRunCompleted, domain.EventRunAborted, domain.EventRunCancelled:
		m.ActiveRuns.Dec()
		m.RunsTotal.WithLabelValues(ev.Recipe, ev.Status).Inc()
	case domain.EventStepSucceeded, domain.EventStepFailed, domain.EventStepSkipped:
		m.StepsTotal.WithLabelValues(ev.Module, ev.Status).Inc()
		if ev.Type != domain.EventStepSkipped {
			m.StepDuration.WithLabelValues(ev.Module).Observe(ev.Duration.Seconds())
		}
	}
}
