// Package adapter implements per-source fetch/parse/discover strategies
// selected by source URL shape, and the resilient HTTP fetch layer shared by
// all of them.
package adapter

import (
	"context"

	"github.com/blogwatch/ingestor/internal/domain"
)

// Adapter fetches a source's origin, parses the response into candidate
// posts, and composes the two as Discover. Fetch and Parse are exposed
// separately so callers can cache raw bytes between the two steps.
type Adapter interface {
	Fetch(ctx context.Context, source domain.SourceConfig) ([]byte, error)
	Parse(ctx context.Context, source domain.SourceConfig, raw []byte) ([]domain.CandidatePost, error)
	Discover(ctx context.Context, source domain.SourceConfig) ([]domain.CandidatePost, error)
}

// discover is the default parse(fetch(...)) composition, embeddable by any
// Adapter implementation that doesn't need a bespoke Discover.
func discover(ctx context.Context, a Adapter, source domain.SourceConfig) ([]domain.CandidatePost, error) {
	raw, err := a.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	return a.Parse(ctx, source, raw)
}
