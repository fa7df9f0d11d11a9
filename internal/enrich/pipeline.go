// Package enrich implements the per-candidate enrichment sequence: dedupe,
// full-article fetch, extraction, optional summarization, embedding, and
// persistence, grounded in the dequeue-fetch-transform-persist shape of the
// teacher's worker loop.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blogwatch/ingestor/internal/adapter"
	"github.com/blogwatch/ingestor/internal/cache"
	"github.com/blogwatch/ingestor/internal/capability"
	"github.com/blogwatch/ingestor/internal/clock/system"
	"github.com/blogwatch/ingestor/internal/domain"
	"github.com/blogwatch/ingestor/internal/fingerprint"
	"github.com/blogwatch/ingestor/internal/ingesterr"
	"github.com/blogwatch/ingestor/internal/metrics"
	"github.com/blogwatch/ingestor/internal/vectorstore"
)

// Config controls per-source enrichment behavior.
type Config struct {
	// ContentTTL bounds how long a fetched article page is cached under
	// "article:"+canonicalURL before a repeat enrichment refetches it.
	ContentTTL time.Duration
	// EmbedInputBudgetRunes caps the canonical text handed to the embedding
	// capability, approximating the model's input token budget in runes.
	EmbedInputBudgetRunes int
	// SummaryBudgetRunes caps the stored summary length when GenerateSummary
	// is enabled, approximating a token budget in runes.
	SummaryBudgetRunes int
	// GenerateSummary gates the optional summarization step.
	GenerateSummary bool
	// FullContentCapture gates the full-article fetch step; when false the
	// pipeline embeds directly on the feed-provided candidate summary.
	FullContentCapture bool
	// VectorDimension is the collection's D': the fixed length every stored
	// vector is truncated (or rejected as too short) to match.
	VectorDimension int
}

// DefaultConfig returns the spec-documented defaults.
func DefaultConfig() Config {
	return Config{
		ContentTTL:            7 * 24 * time.Hour,
		EmbedInputBudgetRunes: 8000,
		SummaryBudgetRunes:    2000,
		GenerateSummary:       false,
		FullContentCapture:    true,
		VectorDimension:       1536,
	}
}

// articleFetcher is the narrow slice of *adapter.ResilientFetcher this
// package depends on, kept as an interface so tests can substitute a fake
// instead of driving a real HTTP stack.
type articleFetcher interface {
	FetchArticle(ctx context.Context, source domain.SourceConfig, articleURL string) (adapter.FetchResult, error)
}

// contentExtractor is the narrow slice of *extractor.Pool this package
// depends on.
type contentExtractor interface {
	Extract(ctx context.Context, html []byte) (domain.ArticleContent, error)
}

// Pipeline runs the enrichment sequence for candidate posts belonging to one
// or more sources, sharing a cache, vector store, fetcher, extractor pool,
// and capability seams across all of them.
type Pipeline struct {
	cache      cache.Store
	vectors    vectorstore.Store
	fetcher    articleFetcher
	extractors contentExtractor
	embedder   capability.Embedder
	summarizer capability.Summarizer
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

// New builds a Pipeline. summarizer may be nil; the pipeline then behaves as
// if cfg.GenerateSummary were false regardless of its configured value.
func New(
	store cache.Store,
	vectors vectorstore.Store,
	fetcher articleFetcher,
	extractors contentExtractor,
	embedder capability.Embedder,
	summarizer capability.Summarizer,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := system.New()
	return &Pipeline{
		cache:      store,
		vectors:    vectors,
		fetcher:    fetcher,
		extractors: extractors,
		embedder:   embedder,
		summarizer: summarizer,
		cfg:        cfg,
		logger:     logger,
		now:        clk.Now,
	}
}

// Result reports what happened to one candidate, for the orchestrator's
// counters and structured logging.
type Result struct {
	Skipped bool // true if the candidate was already fingerprinted
	Record  domain.EmbeddingRecord
}

// Enrich runs the full sequence for one candidate discovered under source.
// A nil error with Skipped=true means the candidate was a duplicate.
func (p *Pipeline) Enrich(ctx context.Context, source domain.SourceConfig, candidate domain.CandidatePost) (Result, error) {
	start := p.now()
	outcome := "error"
	defer func() {
		metrics.ObserveEnrichmentDuration(source.Name, outcome, p.now().Sub(start))
	}()

	fp, err := fingerprint.Derive(source.Name, candidate.URL)
	if err != nil {
		return Result{}, ingesterr.New(ingesterr.KindParseFormat, "enrich.fingerprint", err).
			WithSource(source.Name).WithURL(candidate.URL)
	}
	fpKey := "fp:" + fp

	seen, err := p.cache.Has(ctx, fpKey)
	if err != nil {
		return Result{}, ingesterr.New(ingesterr.KindStoreUnavailable, "enrich.dedupe", err).WithSource(source.Name)
	}
	if seen {
		metrics.ObserveDedupeHit(source.Name)
		outcome = "skipped"
		return Result{Skipped: true}, nil
	}

	content, degraded := p.acquireContent(ctx, source, candidate)

	summary := candidate.Summary
	if p.cfg.GenerateSummary && p.summarizer != nil {
		if s, err := p.summarizer.Summarize(ctx, content.Text); err != nil {
			p.logger.Warn("summarization failed, falling back to feed summary",
				zap.String("source", source.Name), zap.String("url", candidate.URL), zap.Error(err))
		} else {
			summary = truncateRunes(s, p.cfg.SummaryBudgetRunes)
		}
	}

	canonicalText := candidate.Title + "\n\n" + summary + "\n\n" + content.Text
	canonicalText = truncateRunes(canonicalText, p.cfg.EmbedInputBudgetRunes)

	vector, err := p.embedder.EmbedText(ctx, canonicalText)
	if err != nil {
		p.logger.Warn("embedding failed, retrying once",
			zap.String("source", source.Name), zap.String("url", candidate.URL), zap.Error(err))
		vector, err = p.embedder.EmbedText(ctx, canonicalText)
	}
	if err != nil {
		metrics.ObserveEmbed(source.Name, "error")
		return Result{}, ingesterr.New(ingesterr.KindEmbeddingFailed, "enrich.embed", err).
			WithSource(source.Name).WithURL(candidate.URL).WithAttempt(2)
	}
	vector, err = truncateVector(vector, p.cfg.VectorDimension)
	if err != nil {
		metrics.ObserveEmbed(source.Name, "error")
		return Result{}, ingesterr.New(ingesterr.KindEmbeddingFailed, "enrich.embed", err).
			WithSource(source.Name).WithURL(candidate.URL)
	}
	metrics.ObserveEmbed(source.Name, "ok")

	canonicalURL, err := fingerprint.Canonicalize(candidate.URL)
	if err != nil {
		canonicalURL = candidate.URL
	}

	now := p.now()
	author := content.Author
	if author == "" {
		author = candidate.Author
	}
	publishedAt := content.PublishedAt
	if publishedAt == nil {
		publishedAt = candidate.PublishedAt
	}

	record := domain.EmbeddingRecord{
		ID:          fp,
		URL:         canonicalURL,
		Title:       candidate.Title,
		SourceName:  source.Name,
		Author:      author,
		PublishedAt: publishedAt,
		Summary:     summary,
		Vector:      vector,
		Metadata: map[string]any{
			"word_count":   content.WordCount,
			"hero_image":   content.HeroImageURL,
			"degraded":     degraded,
			"tags":         candidate.Tags,
			"content_html": content.HTML,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := p.vectors.Upsert(ctx, record); err != nil {
		return Result{}, ingesterr.New(ingesterr.KindStoreUnavailable, "enrich.upsert", err).WithSource(source.Name).WithURL(candidate.URL)
	}
	// The fingerprint mark is written only after a successful upsert: a
	// crash in between causes at most one redundant, idempotent retry.
	if err := p.cache.Set(ctx, fpKey, []byte("1"), 0); err != nil {
		return Result{}, ingesterr.New(ingesterr.KindStoreUnavailable, "enrich.mark", err).WithSource(source.Name).WithURL(candidate.URL)
	}

	outcome = "ok"
	return Result{Record: record}, nil
}

// acquireContent fetches and extracts the full article when configured to,
// falling back to the feed-provided summary text when full-content capture
// is disabled or when fetch/extraction fails, per the degraded-mode rule.
func (p *Pipeline) acquireContent(ctx context.Context, source domain.SourceConfig, candidate domain.CandidatePost) (domain.ArticleContent, bool) {
	degradedContent := domain.ArticleContent{
		Text:        candidate.Summary,
		Author:      candidate.Author,
		PublishedAt: candidate.PublishedAt,
		WordCount:   len(strings.Fields(candidate.Summary)),
	}

	if !p.cfg.FullContentCapture {
		return degradedContent, true
	}

	raw, err := p.fetchArticleHTML(ctx, source, candidate.URL)
	if err != nil {
		p.logger.Warn("full-article fetch failed, degrading to feed summary",
			zap.String("source", source.Name), zap.String("url", candidate.URL), zap.Error(err))
		return degradedContent, true
	}

	content, err := p.extractors.Extract(ctx, raw)
	if err != nil {
		p.logger.Warn("content extraction failed, degrading to feed summary",
			zap.String("source", source.Name), zap.String("url", candidate.URL), zap.Error(err))
		return degradedContent, true
	}
	return content, false
}

func (p *Pipeline) fetchArticleHTML(ctx context.Context, source domain.SourceConfig, articleURL string) ([]byte, error) {
	canonical, err := fingerprint.Canonicalize(articleURL)
	if err != nil {
		canonical = articleURL
	}
	cacheKey := "article:" + canonical

	if cached, ok, err := p.cache.Get(ctx, cacheKey); err == nil && ok {
		return cached, nil
	}

	result, err := p.fetcher.FetchArticle(ctx, source, articleURL)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Set(ctx, cacheKey, result.Body, p.cfg.ContentTTL); err != nil {
		p.logger.Warn("article cache write failed", zap.String("url", articleURL), zap.Error(err))
	}
	return result.Body, nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// truncateVector applies the collection's Matryoshka-style prefix truncation:
// vectors wider than dim are truncated to their first dim components;
// vectors narrower than dim are rejected outright.
func truncateVector(vector []float32, dim int) ([]float32, error) {
	if dim <= 0 || len(vector) == dim {
		return vector, nil
	}
	if len(vector) < dim {
		return nil, fmt.Errorf("embedding dimension %d shorter than collection dimension %d", len(vector), dim)
	}
	return vector[:dim], nil
}
