package adapter

import (
	"context"

	"github.com/blogwatch/ingestor/internal/adapter/htmlfeed"
	"github.com/blogwatch/ingestor/internal/domain"
)

// GenericAdapter auto-detects between a machine-readable feed document and a
// plain HTML article-list page at parse time.
type GenericAdapter struct {
	fetcher *ResilientFetcher
}

// NewGenericAdapter builds a GenericAdapter over the shared fetch layer.
func NewGenericAdapter(fetcher *ResilientFetcher) *GenericAdapter {
	return &GenericAdapter{fetcher: fetcher}
}

func (a *GenericAdapter) Fetch(ctx context.Context, source domain.SourceConfig) ([]byte, error) {
	result, err := a.fetcher.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	return result.Body, nil
}

func (a *GenericAdapter) Parse(_ context.Context, source domain.SourceConfig, raw []byte) ([]domain.CandidatePost, error) {
	if posts, err := parseFeed(source.Name, raw); err == nil && len(posts) > 0 {
		return posts, nil
	}
	return htmlfeed.Extract(source.Name, source.URL, raw)
}

func (a *GenericAdapter) Discover(ctx context.Context, source domain.SourceConfig) ([]domain.CandidatePost, error) {
	return discover(ctx, a, source)
}
