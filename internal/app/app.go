// Package app initializes and holds the long-lived services the ingestion
// engine needs for one run, acting as a dependency injection container: one
// NewApp that reads configuration and fails fast on any provider it cannot
// construct, and a Close that flushes the logger. The queues, registered
// closers and progress hub are closed by Orchestrator.Run's shutdown.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blogwatch/ingestor/internal/adapter"
	"github.com/blogwatch/ingestor/internal/blob/gcs"
	"github.com/blogwatch/ingestor/internal/browser"
	"github.com/blogwatch/ingestor/internal/cache"
	"github.com/blogwatch/ingestor/internal/cache/blobmirror"
	"github.com/blogwatch/ingestor/internal/cache/fscache"
	"github.com/blogwatch/ingestor/internal/cache/memcache"
	"github.com/blogwatch/ingestor/internal/cache/pgcache"
	"github.com/blogwatch/ingestor/internal/capability"
	"github.com/blogwatch/ingestor/internal/config"
	"github.com/blogwatch/ingestor/internal/embedding"
	"github.com/blogwatch/ingestor/internal/enrich"
	"github.com/blogwatch/ingestor/internal/extractor"
	"github.com/blogwatch/ingestor/internal/orchestrator"
	"github.com/blogwatch/ingestor/internal/progress"
	"github.com/blogwatch/ingestor/internal/progress/sinks"
	"github.com/blogwatch/ingestor/internal/queue"
	"github.com/blogwatch/ingestor/internal/queue/memory"
	"github.com/blogwatch/ingestor/internal/queue/pubsub"
	"github.com/blogwatch/ingestor/internal/summarize"
	vectorpostgres "github.com/blogwatch/ingestor/internal/vectorstore/postgres"
)

// App holds every shared, long-lived service the orchestrator needs. It is
// built once at startup by NewApp and torn down once by Close.
type App struct {
	logger       *zap.Logger
	orchestrator *orchestrator.Orchestrator
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Orchestrator returns the fully-wired orchestrator ready to Run.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orchestrator }

// NewApp reads cfg and constructs every backend it names, failing fast on
// the first provider that cannot be built: the cache backend, the
// pgvector-backed vector store, the optional browser-rendering capability,
// the embedding and summarization capabilities, the adapter factory, the
// enrichment pipeline, the task queues, and finally the orchestrator that
// ties them together.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	logger.Info("initializing ingestion engine services")

	var closers []io.Closer

	cacheStore, err := buildCacheStore(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("build cache store: %w", err)
	}
	closers = append(closers, cacheStore)

	vectorStore, err := vectorpostgres.New(ctx, vectorpostgres.Config{
		DSN:        cfg.VectorDB.ConnectionString,
		Collection: cfg.VectorDB.CollectionName,
		Dimension:  cfg.VectorDB.TextVectorDimension,
	})
	if err != nil {
		return nil, fmt.Errorf("build vector store: %w", err)
	}
	closers = append(closers, vectorStore)

	renderer, err := buildRenderer(cfg.Browser, logger)
	if err != nil {
		return nil, fmt.Errorf("build browser renderer: %w", err)
	}
	if renderer != nil {
		closers = append(closers, renderer.(*browser.Renderer))
	}

	var embedCapability capability.Embedder = embedding.New(embedding.Config{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.ModelName,
	})

	var summaryCapability capability.Summarizer
	if cfg.Article.GenerateSummary {
		summaryCapability = summarize.New(summarize.Config{
			BaseURL: cfg.Article.SummaryBaseURL,
			APIKey:  cfg.Article.SummaryAPIKey,
			Model:   cfg.Article.SummaryModelName,
		})
	}

	fetcher := adapter.NewResilientFetcher(adapter.HostLists{
		BotGated: toSet(cfg.Hosts.BotGated),
	}, renderer, logger)

	factory := adapter.NewFactory(adapter.HostRules{
		SPAFamily:    toSet(cfg.Hosts.SPAFamily),
		BotGated:     toSet(cfg.Hosts.BotGated),
		MediumFamily: toSet(cfg.Hosts.MediumFamily),
	}, fetcher)

	extractorPool := extractor.NewPool(cfg.Article.ConcurrentArticleTasks, logger)

	pipeline := enrich.New(
		cacheStore,
		vectorStore,
		fetcher,
		extractorPool,
		embedCapability,
		summaryCapability,
		enrich.Config{
			ContentTTL:            cfg.CacheTTL(),
			EmbedInputBudgetRunes: enrich.DefaultConfig().EmbedInputBudgetRunes,
			SummaryBudgetRunes:    enrich.DefaultConfig().SummaryBudgetRunes,
			GenerateSummary:       cfg.Article.GenerateSummary,
			FullContentCapture:    cfg.Article.FullContentCapture,
			VectorDimension:       cfg.VectorDB.TextVectorDimension,
		},
		logger,
	)

	sourceQueue, articleQueue, err := buildQueues(ctx, cfg.Queue, logger)
	if err != nil {
		return nil, fmt.Errorf("build queues: %w", err)
	}

	progressHub, err := buildProgressHub(ctx, cfg.Progress, logger)
	if err != nil {
		return nil, fmt.Errorf("build progress hub: %w", err)
	}

	orch := orchestrator.New(
		cfg.Feeds,
		factory,
		pipeline,
		cacheStore,
		sourceQueue,
		articleQueue,
		orchestrator.Config{
			MaxConcurrentSourceTasks:  cfg.Queue.MaxConcurrentSourceTasks,
			MaxConcurrentArticleTasks: cfg.Article.ConcurrentArticleTasks,
			DefaultMaxPostsPerTick:    cfg.Article.MaxArticlesPerFeed,
		},
		logger,
		progressHub,
		closers...,
	)

	logger.Info("ingestion engine services initialized")

	return &App{
		logger:       logger,
		orchestrator: orch,
	}, nil
}

func buildCacheStore(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (cache.Store, error) {
	var store cache.Store
	switch cfg.Backend {
	case "postgres":
		pgStore, err := pgcache.New(ctx, pgcache.Config{DSN: cfg.PostgresDSN})
		if err != nil {
			return nil, err
		}
		store = pgStore
	case "filesystem":
		fsStore, err := fscache.New(cfg.FilesystemDir)
		if err != nil {
			return nil, err
		}
		store = fsStore
	case "memory", "":
		store = memcache.New()
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}

	if cfg.BlobBackend == "" {
		return store, nil
	}
	if cfg.BlobBackend != "gcs" {
		return nil, fmt.Errorf("unknown cache blob backend %q", cfg.BlobBackend)
	}
	blobStore, err := buildGCSBlobMirror(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build gcs blob mirror: %w", err)
	}
	return blobmirror.New(store, blobStore, logger), nil
}

func buildGCSBlobMirror(ctx context.Context, cfg config.CacheConfig) (*gcs.Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	blobStore, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return blobStore, nil
}

// buildRenderer returns a nil capability.Renderer (not an error) when
// browser rendering is disabled by configuration, so callers that fall back
// to the bot-gated failure path behave identically with and without it.
func buildRenderer(cfg config.BrowserConfig, logger *zap.Logger) (capability.Renderer, error) {
	if cfg.MaxConcurrentBrowsers <= 0 {
		return nil, nil
	}
	r, err := browser.New(browser.Config{
		MaxConcurrentBrowsers: cfg.MaxConcurrentBrowsers,
		NavTimeout:            time.Duration(cfg.NavTimeoutSeconds) * time.Second,
		DomainQPS:             cfg.DomainQPS,
		UserAgent:             cfg.UserAgent,
	}, logger)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func buildQueues(ctx context.Context, cfg config.QueueConfig, logger *zap.Logger) (queue.Queue, queue.Queue, error) {
	switch cfg.Backend {
	case "pubsub":
		sourceQ, err := pubsub.New(ctx, pubsub.Config{
			ProjectID:      cfg.PubSubProjectID,
			TopicID:        cfg.PubSubSourceTopic,
			SubscriptionID: cfg.PubSubSourceSub,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("source queue: %w", err)
		}
		articleQ, err := pubsub.New(ctx, pubsub.Config{
			ProjectID:      cfg.PubSubProjectID,
			TopicID:        cfg.PubSubArticleTopic,
			SubscriptionID: cfg.PubSubArticleSub,
		}, logger)
		if err != nil {
			sourceQ.Close()
			return nil, nil, fmt.Errorf("article queue: %w", err)
		}
		return sourceQ, articleQ, nil
	case "memory", "":
		return memory.New(64), memory.New(64), nil
	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

// buildProgressHub wires the structured event stream: a Prometheus sink is
// always registered, and a Postgres-backed sink joins it when configured.
// The hub itself owns no closer of its own kind; Orchestrator.Run drains it
// during shutdown.
func buildProgressHub(ctx context.Context, cfg config.ProgressConfig, logger *zap.Logger) (*progress.Hub, error) {
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("build prometheus sink: %w", err)
	}
	hubSinks := []progress.Sink{promSink}

	if cfg.PostgresEnabled {
		pgSink, err := sinks.NewPostgresSink(ctx, sinks.PostgresConfig{DSN: cfg.PostgresDSN})
		if err != nil {
			return nil, fmt.Errorf("build postgres progress sink: %w", err)
		}
		hubSinks = append(hubSinks, pgSink)
	}

	return progress.NewHub(progress.Config{Logger: logger}, hubSinks...), nil
}

func toSet(hosts []string) map[string]struct{} {
	if len(hosts) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		set[h] = struct{}{}
	}
	return set
}

// Close releases services that Orchestrator.Run's own shutdown sequence
// does not own. Run already closes the task queues and every registered
// closer (cache store, vector store, browser renderer) once it returns, so
// Close only needs to flush the logger. It stays safe to call even when
// Run was never started, since flushing an unused logger is a no-op.
func (a *App) Close() {
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("error syncing logger on shutdown", zap.Error(err))
	}
}
