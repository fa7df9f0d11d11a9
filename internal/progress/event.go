// Package progress defines the structured event stream emitted by the
// orchestrator and enrichment pipeline: one Event per tick or per-post
// outcome, batched by a Hub and fanned out to Sinks.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageTickStart   Stage = "TICK_START"
	StageTickDone    Stage = "TICK_DONE"
	StagePostSuccess Stage = "POST_SUCCESS"
	StagePostFailure Stage = "POST_FAILURE"
)

// Event captures one milestone in a source's tick or one post's outcome.
type Event struct {
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Source names the feed this event concerns.
	Source string
	// URL is the post URL; empty for tick-level events.
	URL string
	// Kind carries the ingesterr.Kind string for POST_FAILURE events.
	Kind string
	// Attempt records the attempt number at which the outcome was reached.
	Attempt int
	// Dur captures execution latency for tick and post completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads before they enter
// the Hub's buffer.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Source == "" {
		return errors.New("source is required")
	}
	switch e.Stage {
	case StageTickStart, StageTickDone:
	case StagePostSuccess:
		if e.URL == "" {
			return errors.New("post success requires url")
		}
	case StagePostFailure:
		if e.URL == "" {
			return errors.New("post failure requires url")
		}
		if e.Kind == "" {
			return errors.New("post failure requires kind")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
