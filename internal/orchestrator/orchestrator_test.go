package orchestrator

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blogwatch/ingestor/internal/adapter"
	"github.com/blogwatch/ingestor/internal/domain"
	"github.com/blogwatch/ingestor/internal/enrich"
	"github.com/blogwatch/ingestor/internal/ingesterr"
	"github.com/blogwatch/ingestor/internal/metrics"
	"github.com/blogwatch/ingestor/internal/queue"
	"github.com/blogwatch/ingestor/internal/queue/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type memCache struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *memCache) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Get(ctx, key)
	return ok, err
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func (c *memCache) Clear(context.Context, string) error { return nil }
func (c *memCache) Close() error                        { return nil }

// stubAdapter is a fixed-response adapter.Adapter used to avoid depending on
// real HTTP/HTML parsing in orchestrator tests.
type stubAdapter struct {
	candidates []domain.CandidatePost
	err        error
	discovered chan struct{}
}

func (a *stubAdapter) Fetch(context.Context, domain.SourceConfig) ([]byte, error) { return nil, nil }
func (a *stubAdapter) Parse(context.Context, domain.SourceConfig, []byte) ([]domain.CandidatePost, error) {
	return a.candidates, a.err
}
func (a *stubAdapter) Discover(context.Context, domain.SourceConfig) ([]domain.CandidatePost, error) {
	if a.discovered != nil {
		select {
		case a.discovered <- struct{}{}:
		default:
		}
	}
	return a.candidates, a.err
}

type stubFactory struct {
	adapter adapter.Adapter
}

func (f *stubFactory) Select(domain.SourceConfig) adapter.Adapter { return f.adapter }

type stubEnricher struct {
	mu       sync.Mutex
	enriched []string
	err      error
	done     chan struct{}
}

func (e *stubEnricher) Enrich(_ context.Context, _ domain.SourceConfig, candidate domain.CandidatePost) (enrich.Result, error) {
	e.mu.Lock()
	e.enriched = append(e.enriched, candidate.URL)
	e.mu.Unlock()
	if e.done != nil {
		select {
		case e.done <- struct{}{}:
		default:
		}
	}
	if e.err != nil {
		return enrich.Result{}, e.err
	}
	return enrich.Result{}, nil
}

func testSource(name string) domain.SourceConfig {
	return domain.SourceConfig{
		Name:            name,
		URL:             "https://" + name + ".example.com/feed",
		PollInterval:    time.Millisecond,
		MaxPostsPerTick: 10,
		Enabled:         true,
	}
}

func TestOrchestrator_DiscoversAndEnrichesCandidates(t *testing.T) {
	t.Parallel()

	source := testSource("blog-a")
	candidates := []domain.CandidatePost{
		{SourceName: source.Name, URL: "https://blog-a.example.com/post-1"},
		{SourceName: source.Name, URL: "https://blog-a.example.com/post-2"},
	}
	ad := &stubAdapter{candidates: candidates}
	enricher := &stubEnricher{done: make(chan struct{}, len(candidates))}

	o := New(
		[]domain.SourceConfig{source},
		&stubFactory{adapter: ad},
		enricher,
		newMemCache(),
		memory.New(4),
		memory.New(4),
		Config{CheckInterval: time.Millisecond},
		nil,
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		_ = o.Run(ctx)
		close(runDone)
	}()

	for i := 0; i < len(candidates); i++ {
		select {
		case <-enricher.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for candidate %d to be enriched", i)
		}
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop after context cancel")
	}

	enricher.mu.Lock()
	defer enricher.mu.Unlock()
	require.ElementsMatch(t, []string{candidates[0].URL, candidates[1].URL}, enricher.enriched)
}

func TestOrchestrator_SkipsSourceBeforePollIntervalElapses(t *testing.T) {
	t.Parallel()

	source := testSource("blog-b")
	source.PollInterval = time.Hour

	discovered := make(chan struct{}, 1)
	ad := &stubAdapter{discovered: discovered}
	cache := newMemCache()
	cache.Set(context.Background(), "tick:blog-b", []byte(time.Now().Format(time.RFC3339Nano)), 0)

	o := New(
		[]domain.SourceConfig{source},
		&stubFactory{adapter: ad},
		&stubEnricher{},
		cache,
		memory.New(4),
		memory.New(4),
		Config{CheckInterval: time.Millisecond},
		nil,
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		_ = o.Run(ctx)
		close(runDone)
	}()

	select {
	case <-discovered:
		t.Fatal("source was scheduled before its poll interval elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop after context cancel")
	}
}

func TestOrchestrator_ContinuesAfterEnrichmentFailure(t *testing.T) {
	t.Parallel()

	source := testSource("blog-c")
	candidate := domain.CandidatePost{SourceName: source.Name, URL: "https://blog-c.example.com/post-1"}
	ad := &stubAdapter{candidates: []domain.CandidatePost{candidate}}
	enricher := &stubEnricher{err: errors.New("boom"), done: make(chan struct{}, 1)}

	o := New(
		[]domain.SourceConfig{source},
		&stubFactory{adapter: ad},
		enricher,
		newMemCache(),
		memory.New(4),
		memory.New(4),
		Config{CheckInterval: time.Millisecond},
		nil,
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		_ = o.Run(ctx)
		close(runDone)
	}()

	select {
	case <-enricher.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for failed enrichment attempt")
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop after a failed enrichment")
	}
}

func TestOrchestrator_HaltsOnStoreUnavailableUntilNextTick(t *testing.T) {
	t.Parallel()

	source := testSource("blog-d")
	source.PollInterval = time.Millisecond
	candidate := domain.CandidatePost{SourceName: source.Name, URL: "https://blog-d.example.com/post-1"}
	discovered := make(chan struct{}, 100)
	ad := &stubAdapter{candidates: []domain.CandidatePost{candidate}, discovered: discovered}
	storeErr := ingesterr.New(ingesterr.KindStoreUnavailable, "enrich.dedupe", errors.New("db down"))
	enricher := &stubEnricher{err: storeErr, done: make(chan struct{}, 100)}

	checkInterval := 150 * time.Millisecond
	o := New(
		[]domain.SourceConfig{source},
		&stubFactory{adapter: ad},
		enricher,
		newMemCache(),
		memory.New(4),
		memory.New(4),
		Config{CheckInterval: checkInterval},
		nil,
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		_ = o.Run(ctx)
		close(runDone)
	}()
	defer func() {
		cancel()
		<-runDone
	}()

	select {
	case <-discovered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial discovery")
	}
	select {
	case <-enricher.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for store-unavailable enrichment attempt")
	}

	select {
	case <-discovered:
		t.Fatal("orchestrator rescheduled work during the store-unavailable cooldown")
	case <-time.After(checkInterval / 2):
	}

	select {
	case <-discovered:
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator never resumed scheduling after the cooldown elapsed")
	}
}

func TestOrchestrator_ShutsDownQueuesOnStop(t *testing.T) {
	t.Parallel()

	sourceQueue := memory.New(1)
	articleQueue := memory.New(1)
	o := New(
		nil,
		&stubFactory{adapter: &stubAdapter{}},
		&stubEnricher{},
		newMemCache(),
		sourceQueue,
		articleQueue,
		Config{CheckInterval: time.Millisecond, ShutdownGraceDeadline: 50 * time.Millisecond},
		nil,
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		_ = o.Run(ctx)
		close(runDone)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop after context cancel")
	}

	var q queue.Queue = sourceQueue
	_, err := q.Dequeue(context.Background())
	require.ErrorContains(t, err, "queue closed")
}

func TestBoundCandidates_KeepsMostRecentByPublishedAt(t *testing.T) {
	t.Parallel()

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	candidates := []domain.CandidatePost{
		{URL: "old", PublishedAt: &older},
		{URL: "new", PublishedAt: &newer},
		{URL: "unpublished"},
	}

	bounded := boundCandidates(candidates, 2)
	require.Len(t, bounded, 2)
	require.Equal(t, "new", bounded[0].URL)
	require.Equal(t, "old", bounded[1].URL)
}

func TestBoundCandidates_NoopWhenUnderLimit(t *testing.T) {
	t.Parallel()

	candidates := []domain.CandidatePost{{URL: "a"}, {URL: "b"}}
	require.Equal(t, candidates, boundCandidates(candidates, 5))
}
