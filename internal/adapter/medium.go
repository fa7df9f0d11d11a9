package adapter

import (
	"context"

	"github.com/blogwatch/ingestor/internal/adapter/htmlfeed"
	"github.com/blogwatch/ingestor/internal/domain"
	"github.com/blogwatch/ingestor/internal/ingesterr"
)

// MediumAdapter targets Medium-hosted publications, which serve empty
// content to unauthenticated plain HTTP requests. Fetch always requires
// browser rendering.
type MediumAdapter struct {
	fetcher *ResilientFetcher
}

// NewMediumAdapter builds a MediumAdapter over the shared fetch layer.
func NewMediumAdapter(fetcher *ResilientFetcher) *MediumAdapter {
	return &MediumAdapter{fetcher: fetcher}
}

func (a *MediumAdapter) Fetch(ctx context.Context, source domain.SourceConfig) ([]byte, error) {
	if a.fetcher.renderer == nil {
		return nil, ingesterr.ErrBrowserRequired
	}
	result, err := a.fetcher.RenderFetch(ctx, source)
	if err != nil {
		return nil, err
	}
	return result.Body, nil
}

func (a *MediumAdapter) Parse(_ context.Context, source domain.SourceConfig, raw []byte) ([]domain.CandidatePost, error) {
	return htmlfeed.Extract(source.Name, source.URL, raw)
}

func (a *MediumAdapter) Discover(ctx context.Context, source domain.SourceConfig) ([]domain.CandidatePost, error) {
	return discover(ctx, a, source)
}
