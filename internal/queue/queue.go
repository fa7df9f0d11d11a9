// Package queue defines the SourceTask/ArticleTask handoff abstraction
// between the orchestrator's ticker and its pool of enrichment workers. This
// abstraction lets the orchestrator stay independent of the concrete
// transport (an in-process channel, or a durable broker).
package queue

import (
	"context"

	"github.com/blogwatch/ingestor/internal/domain"
)

// Task is one unit of orchestrator work. A SourceTask carries only Source;
// an ArticleTask carries both Source and Candidate.
type Task struct {
	Source    domain.SourceConfig
	Candidate domain.CandidatePost
}

// Queue is the common interface every backend (memory, Pub/Sub) satisfies.
type Queue interface {
	// Enqueue submits task, blocking if the backend applies backpressure.
	Enqueue(ctx context.Context, task Task) error
	// Dequeue returns the next task, blocking until one is available or ctx ends.
	Dequeue(ctx context.Context) (Task, error)
	// Close releases the backend's resources. Concurrent Dequeue calls
	// unblock with an error once Close returns.
	Close() error
}
