// Package metrics turns run events into Prometheus metrics that can be
// written for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aristath/bullseye/internal/events"
)

// Recorder accumulates metrics from run events in its own registry.
type Recorder struct {
	registry *prometheus.Registry

	targetDuration *prometheus.HistogramVec
	targetRuns     *prometheus.CounterVec
	runDuration    prometheus.Gauge
	runSuccess     prometheus.Gauge
	runTimestamp   prometheus.Gauge
}

// NewRecorder creates a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		targetDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bullseye_target_duration_seconds",
				Help:    "Time taken by a target's work.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"target"},
		),
		targetRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bullseye_target_runs_total",
				Help: "Number of completed targets by outcome.",
			},
			[]string{"target", "outcome"},
		),
		runDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bullseye_run_duration_seconds",
				Help: "Elapsed time of the last run.",
			},
		),
		runSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bullseye_run_success",
				Help: "1 if the last run succeeded, 0 otherwise.",
			},
		),
		runTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bullseye_run_last_timestamp_seconds",
				Help: "Unix time the last run finished.",
			},
		),
	}

	r.registry.MustRegister(
		r.targetDuration,
		r.targetRuns,
		r.runDuration,
		r.runSuccess,
		r.runTimestamp,
	)
	return r
}

// Registry exposes the recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe records a single event. Events it does not track are ignored.
func (r *Recorder) Observe(ev events.Event) {
	switch e := ev.(type) {
	case events.TargetSucceededEvent:
		r.targetRuns.WithLabelValues(e.Name, "succeeded").Inc()
		if e.Duration != nil {
			r.targetDuration.WithLabelValues(e.Name).Observe(e.Duration.Seconds())
		}
	case events.TargetFailedEvent:
		r.targetRuns.WithLabelValues(e.Name, "failed").Inc()
		r.targetDuration.WithLabelValues(e.Name).Observe(e.Duration.Seconds())
	case events.RunFinishedEvent:
		r.runDuration.Set(e.Elapsed.Seconds())
		if e.Err != nil {
			r.runSuccess.Set(0)
		} else {
			r.runSuccess.Set(1)
		}
		if !e.Timestamp.IsZero() {
			r.runTimestamp.Set(float64(e.Timestamp.Unix()))
		}
	}
}

// Subscribe returns a channel of the lifecycle and run events the recorder
// tracks. Command output travels on its own topic so it cannot crowd them out.
func (r *Recorder) Subscribe(bus *events.Bus, bufSize int) <-chan events.Event {
	return bus.SubscribeTopics(bufSize, events.TopicTarget, events.TopicRun)
}

// Consume observes events from ch until it is closed.
func (r *Recorder) Consume(ch <-chan events.Event) {
	for ev := range ch {
		r.Observe(ev)
	}
}

// WriteTextfile writes the gathered metrics to path atomically, creating the
// parent directory if needed.
func (r *Recorder) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
