// Package orchestrator drives per-source tick scheduling, fans discovered
// candidates out to the enrichment pipeline under global concurrency
// semaphores, and coordinates graceful shutdown across a two-stage
// SourceTask/ArticleTask pipeline built on the shared queue.Queue
// abstraction.
package orchestrator

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/blogwatch/ingestor/internal/adapter"
	"github.com/blogwatch/ingestor/internal/cache"
	"github.com/blogwatch/ingestor/internal/clock/system"
	"github.com/blogwatch/ingestor/internal/domain"
	"github.com/blogwatch/ingestor/internal/enrich"
	"github.com/blogwatch/ingestor/internal/ingesterr"
	"github.com/blogwatch/ingestor/internal/metrics"
	"github.com/blogwatch/ingestor/internal/progress"
	"github.com/blogwatch/ingestor/internal/queue"
)

// Config controls orchestrator concurrency and timing. Zero values fall
// back to the documented defaults in New.
type Config struct {
	// MaxConcurrentSourceTasks bounds SourceTask workers (default 10).
	MaxConcurrentSourceTasks int
	// MaxConcurrentArticleTasks bounds ArticleTask (enrichment) workers (default 5).
	MaxConcurrentArticleTasks int
	// CheckInterval is how often the ticker re-evaluates every source's due-ness.
	CheckInterval time.Duration
	// ShutdownGraceDeadline bounds how long Run waits for in-flight tasks after ctx ends.
	ShutdownGraceDeadline time.Duration
	// DefaultMaxPostsPerTick applies when a SourceConfig leaves MaxPostsPerTick unset.
	DefaultMaxPostsPerTick int
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentSourceTasks <= 0 {
		c.MaxConcurrentSourceTasks = 10
	}
	if c.MaxConcurrentArticleTasks <= 0 {
		c.MaxConcurrentArticleTasks = 5
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Minute
	}
	if c.ShutdownGraceDeadline <= 0 {
		c.ShutdownGraceDeadline = 30 * time.Second
	}
	if c.DefaultMaxPostsPerTick <= 0 {
		c.DefaultMaxPostsPerTick = 20
	}
	return c
}

// adapterSelector is the narrow slice of *adapter.Factory this package
// depends on.
type adapterSelector interface {
	Select(source domain.SourceConfig) adapter.Adapter
}

// enricher is the narrow slice of *enrich.Pipeline this package depends on.
type enricher interface {
	Enrich(ctx context.Context, source domain.SourceConfig, candidate domain.CandidatePost) (enrich.Result, error)
}

// Orchestrator schedules SourceTasks per source and fans discovered
// candidates to ArticleTask workers running the enrichment pipeline.
type Orchestrator struct {
	sources   []domain.SourceConfig
	factory   adapterSelector
	pipeline  enricher
	tickCache cache.Store

	sourceQueue  queue.Queue
	articleQueue queue.Queue

	cfg         Config
	logger      *zap.Logger
	now         func() time.Time
	closers     []io.Closer
	progressHub *progress.Hub

	activeSourceTasks  atomic.Int64
	activeArticleTasks atomic.Int64

	// haltUntil holds the UnixNano deadline set by a KindStoreUnavailable
	// failure; both worker pools stop dequeuing and scheduleDueSources stops
	// enqueuing until it elapses. Zero means "not halted".
	haltUntil atomic.Int64
}

// New builds an Orchestrator. closers are drained (Close called on each, in
// order) once Run's shutdown sequence has waited out in-flight work — the
// browser rendering capability and the shared database pool are the
// intended callers. progressHub may be nil; Hub.Emit and Hub.Close are both
// nil-receiver safe, so callers that don't care about the event stream can
// pass nil without extra guards.
func New(
	sources []domain.SourceConfig,
	factory adapterSelector,
	pipeline enricher,
	tickCache cache.Store,
	sourceQueue, articleQueue queue.Queue,
	cfg Config,
	logger *zap.Logger,
	progressHub *progress.Hub,
	closers ...io.Closer,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := system.New()
	return &Orchestrator{
		sources:      sources,
		factory:      factory,
		pipeline:     pipeline,
		tickCache:    tickCache,
		sourceQueue:  sourceQueue,
		articleQueue: articleQueue,
		cfg:          cfg.withDefaults(),
		logger:       logger,
		now:          clk.Now,
		closers:      closers,
		progressHub:  progressHub,
	}
}

// Run drives the tick loop until ctx is canceled, then waits up to the
// configured grace deadline for in-flight SourceTasks and ArticleTasks
// before closing the queues and every registered closer. It returns
// context.DeadlineExceeded when in-flight work had to be canceled at the
// grace deadline.
func (o *Orchestrator) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	for i := 0; i < o.cfg.MaxConcurrentSourceTasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.runSourceWorker(ctx, workerCtx)
		}()
	}
	for i := 0; i < o.cfg.MaxConcurrentArticleTasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.runArticleWorker(ctx, workerCtx)
		}()
	}

	ticker := time.NewTicker(o.cfg.CheckInterval)
	defer ticker.Stop()

	o.scheduleDueSources(ctx)
	for {
		select {
		case <-ctx.Done():
			return o.shutdown(&wg, cancelWorkers)
		case <-ticker.C:
			o.scheduleDueSources(ctx)
		}
	}
}

func (o *Orchestrator) shutdown(wg *sync.WaitGroup, cancelWorkers context.CancelFunc) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var abortErr error
	select {
	case <-done:
	case <-time.After(o.cfg.ShutdownGraceDeadline):
		o.logger.Warn("shutdown grace deadline exceeded, canceling in-flight tasks")
		cancelWorkers()
		<-done
		abortErr = context.DeadlineExceeded
	}

	_ = o.sourceQueue.Close()
	_ = o.articleQueue.Close()
	for _, c := range o.closers {
		if err := c.Close(); err != nil {
			o.logger.Warn("closer failed during shutdown", zap.Error(err))
		}
	}
	if err := o.progressHub.Close(context.Background()); err != nil {
		o.logger.Warn("progress hub failed to flush during shutdown", zap.Error(err))
	}
	return abortErr
}

// halted reports whether a KindStoreUnavailable failure is still within its
// cooldown window.
func (o *Orchestrator) halted(now time.Time) bool {
	until := o.haltUntil.Load()
	return until != 0 && now.UnixNano() < until
}

// haltForStoreUnavailable pauses both worker pools and source scheduling for
// one CheckInterval: a store outage is fatal for the current tick, and the
// orchestrator waits before trying again rather than burning through the
// rest of the queued work against a backend that just failed.
func (o *Orchestrator) haltForStoreUnavailable(now time.Time) {
	o.haltUntil.Store(now.Add(o.cfg.CheckInterval).UnixNano())
}

// waitOutHalt blocks a worker goroutine while the orchestrator is halted, so
// no further tasks are dequeued until the cooldown set by
// haltForStoreUnavailable elapses or ctx is canceled.
func (o *Orchestrator) waitOutHalt(ctx context.Context) {
	for o.halted(o.now()) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// scheduleDueSources enqueues one SourceTask per enabled source whose
// poll_interval has elapsed since its last recorded tick.
func (o *Orchestrator) scheduleDueSources(ctx context.Context) {
	now := o.now()
	if o.halted(now) {
		return
	}
	for _, source := range o.sources {
		if !source.Enabled {
			continue
		}
		last := o.lastTick(ctx, source.Name)
		if now.Sub(last) < source.PollInterval {
			continue
		}
		metrics.ObserveTick(source.Name)
		if err := o.sourceQueue.Enqueue(ctx, queue.Task{Source: source}); err != nil {
			o.logger.Warn("failed to schedule source task", zap.String("source", source.Name), zap.Error(err))
		}
	}
}

func (o *Orchestrator) lastTick(ctx context.Context, sourceName string) time.Time {
	raw, ok, err := o.tickCache.Get(ctx, "tick:"+sourceName)
	if err != nil || !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (o *Orchestrator) markTick(ctx context.Context, sourceName string, at time.Time) {
	if err := o.tickCache.Set(ctx, "tick:"+sourceName, []byte(at.Format(time.RFC3339Nano)), 0); err != nil {
		o.logger.Warn("failed to persist tick state", zap.String("source", sourceName), zap.Error(err))
	}
}

// runSourceWorker stops dequeuing once ctx (Run's context) ends; a task
// already dequeued runs under workCtx so it can finish during shutdown.
func (o *Orchestrator) runSourceWorker(ctx, workCtx context.Context) {
	for {
		o.waitOutHalt(ctx)
		task, err := o.sourceQueue.Dequeue(ctx)
		if err != nil {
			return
		}
		o.runSourceTask(workCtx, task.Source)
	}
}

// runSourceTask discovers candidates for source, bounds them to the
// configured per-tick maximum, and fans each surviving candidate out as an
// ArticleTask. tick:<source_name> is updated on completion or failure so a
// misbehaving source cannot monopolize the pipeline.
func (o *Orchestrator) runSourceTask(ctx context.Context, source domain.SourceConfig) {
	metrics.SetActiveSourceTasks(int(o.activeSourceTasks.Add(1)))
	defer func() {
		metrics.SetActiveSourceTasks(int(o.activeSourceTasks.Add(-1)))
	}()
	defer o.markTick(ctx, source.Name, o.now())

	start := o.now()
	o.progressHub.Emit(progress.Event{TS: start, Stage: progress.StageTickStart, Source: source.Name})

	ad := o.factory.Select(source)
	candidates, err := ad.Discover(ctx, source)
	if err != nil {
		kind, _ := ingesterr.KindOf(err)
		attempt := ingesterr.AttemptOf(err)
		metrics.ObserveFailedPost(source.Name, "discover_"+string(kind))
		o.logger.Warn("source discovery failed",
			zap.String("source", source.Name), zap.Int("attempt", attempt), zap.Error(err))
		o.progressHub.Emit(progress.Event{
			TS: o.now(), Stage: progress.StagePostFailure, Source: source.Name,
			URL: source.URL, Kind: "discover_" + string(kind), Attempt: attempt,
		})
		return
	}
	metrics.ObserveCandidates(source.Name, len(candidates))
	o.progressHub.Emit(progress.Event{
		TS: o.now(), Stage: progress.StageTickDone, Source: source.Name, Dur: o.now().Sub(start),
	})

	limit := source.MaxPostsPerTick
	if limit <= 0 {
		limit = o.cfg.DefaultMaxPostsPerTick
	}
	candidates = boundCandidates(candidates, limit)

	for _, candidate := range candidates {
		if err := o.articleQueue.Enqueue(ctx, queue.Task{Source: source, Candidate: candidate}); err != nil {
			o.logger.Warn("failed to schedule article task",
				zap.String("source", source.Name), zap.String("url", candidate.URL), zap.Error(err))
		}
	}
}

func (o *Orchestrator) runArticleWorker(ctx, workCtx context.Context) {
	for {
		o.waitOutHalt(ctx)
		task, err := o.articleQueue.Dequeue(ctx)
		if err != nil {
			return
		}
		o.runArticleTask(workCtx, task)
	}
}

// runArticleTask enriches one candidate. Most failure kinds are isolated to
// this post; a KindStoreUnavailable failure is treated as fatal for the
// current tick instead, pausing both worker pools via haltForStoreUnavailable
// rather than continuing to burn through queued work against a store that
// just failed.
func (o *Orchestrator) runArticleTask(ctx context.Context, task queue.Task) {
	metrics.SetActiveArticleTasks(int(o.activeArticleTasks.Add(1)))
	defer func() {
		metrics.SetActiveArticleTasks(int(o.activeArticleTasks.Add(-1)))
	}()

	result, err := o.pipeline.Enrich(ctx, task.Source, task.Candidate)
	if err != nil {
		kind, _ := ingesterr.KindOf(err)
		reason := string(kind)
		if reason == "" {
			reason = "unknown"
		}
		attempt := ingesterr.AttemptOf(err)
		metrics.ObserveFailedPost(task.Source.Name, reason)

		if kind == ingesterr.KindStoreUnavailable {
			now := o.now()
			o.haltForStoreUnavailable(now)
			o.logger.Error("store unavailable, halting in-flight work until next tick",
				zap.String("source", task.Source.Name),
				zap.String("url", task.Candidate.URL),
				zap.Int("attempt", attempt),
				zap.Duration("cooldown", o.cfg.CheckInterval),
				zap.Error(err))
			o.progressHub.Emit(progress.Event{
				TS: now, Stage: progress.StagePostFailure, Source: task.Source.Name,
				URL: task.Candidate.URL, Kind: reason, Attempt: attempt,
				Note: "store unavailable, halting until next tick",
			})
			return
		}

		o.logger.Warn("post enrichment failed",
			zap.String("source", task.Source.Name),
			zap.String("url", task.Candidate.URL),
			zap.String("kind", reason),
			zap.Int("attempt", attempt),
			zap.Error(err))
		o.progressHub.Emit(progress.Event{
			TS: o.now(), Stage: progress.StagePostFailure, Source: task.Source.Name,
			URL: task.Candidate.URL, Kind: reason, Attempt: attempt,
		})
		return
	}
	if result.Skipped {
		o.logger.Debug("candidate already fingerprinted, skipped",
			zap.String("source", task.Source.Name), zap.String("url", task.Candidate.URL))
		return
	}
	o.progressHub.Emit(progress.Event{
		TS: o.now(), Stage: progress.StagePostSuccess, Source: task.Source.Name, URL: task.Candidate.URL,
	})
}

// boundCandidates keeps the limit most recent candidates by PublishedAt,
// falling back to the adapter's own ordering (input order) for candidates
// missing a timestamp, which sort stably to the back in discovery order.
func boundCandidates(candidates []domain.CandidatePost, limit int) []domain.CandidatePost {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	ordered := make([]domain.CandidatePost, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := ordered[i].PublishedAt, ordered[j].PublishedAt
		switch {
		case pi == nil && pj == nil:
			return false
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return pi.After(*pj)
		}
	})
	return ordered[:limit]
}
