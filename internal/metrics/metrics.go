// Package metrics exposes Prometheus collectors for generation traffic and
// retention sweeps.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	generations *prometheus.CounterVec

	sweeps         *prometheus.CounterVec
	objectsScanned prometheus.Counter
	objectsDeleted prometheus.Counter
	deleteFailures prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production; tests use a fresh registry to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atelier_generations_total",
				Help: "Generation requests by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		sweeps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atelier_sweeps_total",
				Help: "Retention sweeps by outcome",
			},
			[]string{"outcome"},
		),
		objectsScanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "atelier_sweep_objects_scanned_total",
			Help: "Objects examined by retention sweeps",
		}),
		objectsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "atelier_sweep_objects_deleted_total",
			Help: "Objects deleted by retention sweeps",
		}),
		deleteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "atelier_sweep_delete_failures_total",
			Help: "Per-object delete failures during retention sweeps",
		}),
	}
}

func (m *Metrics) ObserveGeneration(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.generations.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveSweep(scanned, deleted, failed int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.sweeps.WithLabelValues(outcome).Inc()
	m.objectsScanned.Add(float64(scanned))
	m.objectsDeleted.Add(float64(deleted))
	m.deleteFailures.Add(float64(failed))
}
