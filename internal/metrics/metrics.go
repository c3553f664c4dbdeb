// Package metrics holds the Prometheus collectors for the event repeater.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "repeatbot"

// Result labels for Replications.
const (
	ResultCreated = "created"
	ResultFailed  = "failed"
	ResultPanic   = "panic"
)

// Metrics groups the repeater's counters.
type Metrics struct {
	// Activations counts Scheduled -> Active transitions, tagged or not.
	Activations prometheus.Counter
	// Replications counts follow-up creation attempts by tag and result.
	Replications *prometheus.CounterVec
	// Dispatches counts scheduled event dispatches by kind (create, update, delete).
	Dispatches *prometheus.CounterVec
	// Interactions counts verified interaction requests by type.
	Interactions *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Activations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "Total number of scheduled events observed going from scheduled to active.",
		}),
		Replications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replications_total",
			Help:      "Total number of follow-up event creations, by recurrence tag and result.",
		}, []string{"tag", "result"}),
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Total number of scheduled event dispatches received, by kind.",
		}, []string{"kind"}),
		Interactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_total",
			Help:      "Total number of interaction requests handled, by interaction type.",
		}, []string{"type"}),
	}
}
