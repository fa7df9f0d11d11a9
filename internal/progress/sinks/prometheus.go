// Package sinks provides progress.Sink implementations: a Prometheus
// exporter and a Postgres-backed event log.
package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blogwatch/ingestor/internal/progress"
)

// PrometheusSink exports progress-event counters via Prometheus. It owns all
// collectors for ticks and per-source/per-kind post outcomes.
type PrometheusSink struct {
	ticksStarted  *prometheus.CounterVec
	ticksDuration *prometheus.HistogramVec
	postsOutcome  *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		ticksStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestor_progress_ticks_total",
			Help: "Source ticks started, partitioned by source.",
		}, []string{"source"}),
		ticksDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingestor_progress_tick_duration_seconds",
			Help:    "Wall time per completed tick, partitioned by source.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"source"}),
		postsOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestor_progress_posts_total",
			Help: "Post outcomes partitioned by source, result, and failure kind.",
		}, []string{"source", "result", "kind"}),
	}
	for _, collector := range []prometheus.Collector{
		s.ticksStarted,
		s.ticksDuration,
		s.postsOutcome,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageTickStart:
		s.ticksStarted.WithLabelValues(evt.Source).Inc()
	case progress.StageTickDone:
		if evt.Dur > 0 {
			s.ticksDuration.WithLabelValues(evt.Source).Observe(evt.Dur.Seconds())
		}
	case progress.StagePostSuccess:
		s.postsOutcome.WithLabelValues(evt.Source, "success", "").Inc()
	case progress.StagePostFailure:
		s.postsOutcome.WithLabelValues(evt.Source, "failure", evt.Kind).Inc()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
