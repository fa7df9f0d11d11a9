package extractor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/blogwatch/ingestor/internal/domain"
)

// Pool bounds concurrent CPU-bound extraction work with a fixed-size
// semaphore, the same chan-struct{}-based bounding used for the browser
// render capability, so extraction never competes unbounded with the
// orchestrator's I/O concurrency budget.
type Pool struct {
	sem    chan struct{}
	logger *zap.Logger
}

// NewPool builds a Pool that runs at most size extractions concurrently.
func NewPool(size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{sem: make(chan struct{}, size), logger: logger}
}

type extractResult struct {
	content domain.ArticleContent
	err     error
}

// Extract runs Extract(html) on the pool, blocking until a slot is
// available or ctx is canceled.
func (p *Pool) Extract(ctx context.Context, html []byte) (domain.ArticleContent, error) {
	if err := ctx.Err(); err != nil {
		return domain.ArticleContent{}, fmt.Errorf("acquire extraction slot: %w", err)
	}
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return domain.ArticleContent{}, fmt.Errorf("acquire extraction slot: %w", ctx.Err())
	}
	defer func() { <-p.sem }()

	resultCh := make(chan extractResult, 1)
	go func() {
		content, err := Extract(html)
		resultCh <- extractResult{content: content, err: err}
	}()

	select {
	case <-ctx.Done():
		p.logger.Warn("extraction canceled", zap.Error(ctx.Err()))
		return domain.ArticleContent{}, ctx.Err()
	case res := <-resultCh:
		return res.content, res.err
	}
}
