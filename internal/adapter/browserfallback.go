package adapter

import (
	"context"

	"github.com/blogwatch/ingestor/internal/adapter/htmlfeed"
	"github.com/blogwatch/ingestor/internal/domain"
)

// BrowserFallbackAdapter shares GenericAdapter's parse behavior but prefers
// the browser-rendering capability whenever it is available, falling back to
// plain HTTP when no renderer is configured or when rendering fails.
type BrowserFallbackAdapter struct {
	fetcher *ResilientFetcher
}

// NewBrowserFallbackAdapter builds a BrowserFallbackAdapter over the shared
// fetch layer.
func NewBrowserFallbackAdapter(fetcher *ResilientFetcher) *BrowserFallbackAdapter {
	return &BrowserFallbackAdapter{fetcher: fetcher}
}

func (a *BrowserFallbackAdapter) Fetch(ctx context.Context, source domain.SourceConfig) ([]byte, error) {
	if a.fetcher.renderer != nil {
		result, err := a.fetcher.RenderFetch(ctx, source)
		if err == nil {
			return result.Body, nil
		}
	}
	result, err := a.fetcher.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	return result.Body, nil
}

func (a *BrowserFallbackAdapter) Parse(_ context.Context, source domain.SourceConfig, raw []byte) ([]domain.CandidatePost, error) {
	if posts, err := parseFeed(source.Name, raw); err == nil && len(posts) > 0 {
		return posts, nil
	}
	return htmlfeed.Extract(source.Name, source.URL, raw)
}

func (a *BrowserFallbackAdapter) Discover(ctx context.Context, source domain.SourceConfig) ([]domain.CandidatePost, error) {
	return discover(ctx, a, source)
}
