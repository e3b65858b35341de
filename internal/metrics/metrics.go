// Package metrics counts todo outcomes and connection attempts.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eniac111/mla/internal/types"
)

const namespace = "mla"

// Recorder holds the run's collectors on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	outcomes        *prometheus.CounterVec
	connectAttempts *prometheus.CounterVec
	todoDuration    *prometheus.HistogramVec
}

// New returns a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "todo_outcomes_total",
				Help:      "Total number of reconciled todos by module and outcome",
			},
			[]string{"module", "outcome"},
		),
		connectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "host_connect_attempts_total",
				Help:      "Total number of SSH connection attempts by result",
			},
			[]string{"result"},
		),
		todoDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "todo_duration_seconds",
				Help:      "Duration of todo reconciliation in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"module"},
		),
	}
	r.registry.MustRegister(r.outcomes, r.connectAttempts, r.todoDuration)
	return r
}

// Outcome records one reconciled todo.
func (r *Recorder) Outcome(module string, outcome types.Outcome, elapsed time.Duration) {
	r.outcomes.WithLabelValues(module, outcome.String()).Inc()
	r.todoDuration.WithLabelValues(module).Observe(elapsed.Seconds())
}

// ConnectAttempt records one connection attempt.
func (r *Recorder) ConnectAttempt(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	r.connectAttempts.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteFile writes the collected metrics in the text exposition format,
// suitable for the node_exporter textfile collector.
func (r *Recorder) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
