// Package config loads and validates ingestion engine configuration via
// Viper, from an optional YAML file plus __-namespaced environment
// variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/blogwatch/ingestor/internal/domain"
)

// Config captures every configuration knob loaded via Viper.
type Config struct {
	Feeds       []domain.SourceConfig `mapstructure:"feeds"`
	Cache       CacheConfig           `mapstructure:"cache"`
	VectorDB    VectorDBConfig        `mapstructure:"vector_db"`
	Embedding   EmbeddingConfig       `mapstructure:"embedding"`
	Article     ArticleConfig         `mapstructure:"article"`
	Browser     BrowserConfig         `mapstructure:"browser"`
	Queue       QueueConfig           `mapstructure:"queue"`
	Server      ServerConfig          `mapstructure:"server"`
	Logging     LoggingConfig         `mapstructure:"logging"`
	Hosts       HostsConfig           `mapstructure:"hosts"`
	Progress    ProgressConfig        `mapstructure:"progress"`
}

// ProgressConfig controls the structured event stream: which sinks the
// progress hub fans batched events out to. The Prometheus sink is always
// wired; the Postgres sink is opt-in since it costs a connection pool.
type ProgressConfig struct {
	PostgresEnabled bool   `mapstructure:"postgres_enabled"`
	PostgresDSN     string `mapstructure:"postgres_dsn"`
}

// HostsConfig names the per-deployment host classifications the adapter
// factory consults when a source's Hints don't already pin an adapter
// family: SPA-rendered hosts, hosts that respond 403/503 to plain fetches,
// and Medium-family hosts.
type HostsConfig struct {
	SPAFamily    []string `mapstructure:"spa_family"`
	BotGated     []string `mapstructure:"bot_gated"`
	MediumFamily []string `mapstructure:"medium_family"`
}

// ServerConfig controls the metrics/health status server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CacheConfig selects and configures the Entry Store backend.
type CacheConfig struct {
	Backend      string `mapstructure:"backend"` // memory | postgres | filesystem
	PostgresDSN  string `mapstructure:"postgres_dsn"`
	TTLHours     int    `mapstructure:"ttl_hours"`
	FilesystemDir string `mapstructure:"filesystem_dir"`
	BlobBackend  string `mapstructure:"blob_backend"` // "" | gcs; mirrors the selected backend's writes to GCS
	GCSBucket    string `mapstructure:"gcs_bucket"`
}

// VectorDBConfig selects and configures the Vector Store backend.
type VectorDBConfig struct {
	ConnectionString    string `mapstructure:"connection_string"`
	CollectionName      string `mapstructure:"collection_name"`
	TextVectorDimension int    `mapstructure:"text_vector_dimension"`
}

// EmbeddingConfig selects the embedding capability.
type EmbeddingConfig struct {
	ModelType           string `mapstructure:"model_type"` // http is the only implementation
	ModelName            string `mapstructure:"model_name"`
	EmbeddingDimensions int    `mapstructure:"embedding_dimensions"`
	BaseURL              string `mapstructure:"base_url"`
	APIKey               string `mapstructure:"api_key"`
}

// ArticleConfig governs the Enrichment Pipeline and summarization capability.
type ArticleConfig struct {
	FullContentCapture      bool   `mapstructure:"full_content_capture"`
	GenerateSummary         bool   `mapstructure:"generate_summary"`
	MaxArticlesPerFeed      int    `mapstructure:"max_articles_per_feed"`
	ConcurrentArticleTasks  int    `mapstructure:"concurrent_article_tasks"`
	SummaryModelName        string `mapstructure:"summary_model_name"`
	SummaryBaseURL          string `mapstructure:"summary_base_url"`
	SummaryAPIKey           string `mapstructure:"summary_api_key"`
}

// BrowserConfig governs the headless rendering capability.
type BrowserConfig struct {
	MaxConcurrentBrowsers int     `mapstructure:"max_concurrent_browsers"`
	NavTimeoutSeconds     int     `mapstructure:"nav_timeout_seconds"`
	DomainQPS             float64 `mapstructure:"domain_qps"`
	UserAgent             string  `mapstructure:"user_agent"`
}

// QueueConfig selects the SourceTask/ArticleTask queue backend.
type QueueConfig struct {
	Backend                  string `mapstructure:"backend"` // memory | pubsub
	MaxConcurrentSourceTasks int    `mapstructure:"max_concurrent_source_tasks"`
	PubSubProjectID          string `mapstructure:"pubsub_project_id"`
	PubSubSourceTopic        string `mapstructure:"pubsub_source_topic"`
	PubSubSourceSub          string `mapstructure:"pubsub_source_sub"`
	PubSubArticleTopic       string `mapstructure:"pubsub_article_topic"`
	PubSubArticleSub         string `mapstructure:"pubsub_article_sub"`
}

// Load builds a Config from an optional YAML file plus environment
// overrides. Environment variables use a __ separator mapped onto Viper's
// dotted keys (FEEDS__0__NAME -> feeds.0.name), matching spec's
// double-underscore namespacing convention.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Feeds = mergeEnvFeeds(v, cfg.Feeds)
	applyUnregisteredEnvOverrides(v, &cfg)

	if cfg.Cache.PostgresDSN == "" {
		cfg.Cache.PostgresDSN = cfg.VectorDB.ConnectionString
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// mergeEnvFeeds extends feeds discovered in the config file with any
// FEEDS__<n>__... entries that name an index beyond what the file declared,
// so a deployment can add sources purely through the environment. Entries
// at indices the file already declares are not overridden.
func mergeEnvFeeds(v *viper.Viper, fromFile []domain.SourceConfig) []domain.SourceConfig {
	feeds := fromFile
	for i := len(feeds); ; i++ {
		prefix := fmt.Sprintf("feeds.%d.", i)
		name := v.GetString(prefix + "name")
		url := v.GetString(prefix + "url")
		if name == "" && url == "" {
			break
		}
		feeds = append(feeds, domain.SourceConfig{
			Name:            name,
			URL:             url,
			PollInterval:    v.GetDuration(prefix + "poll_interval"),
			MaxPostsPerTick: v.GetInt(prefix + "max_posts"),
			Enabled:         v.GetBool(prefix + "enabled"),
			Hints: domain.Hints{
				DomainFamily: v.GetString(prefix + "hints"),
			},
		})
	}
	return feeds
}

// applyUnregisteredEnvOverrides re-reads config keys that have no
// SetDefault registration (connection strings, API keys, DSNs). Viper's
// Unmarshal only sees keys already known to it from defaults, the config
// file, or an explicit BindEnv; a bare AutomaticEnv value for a key with no
// default would otherwise be silently dropped during Unmarshal even though
// v.GetString would find it directly.
func applyUnregisteredEnvOverrides(v *viper.Viper, cfg *Config) {
	if s := v.GetString("vector_db.connection_string"); s != "" {
		cfg.VectorDB.ConnectionString = s
	}
	if s := v.GetString("cache.postgres_dsn"); s != "" {
		cfg.Cache.PostgresDSN = s
	}
	if s := v.GetString("cache.gcs_bucket"); s != "" {
		cfg.Cache.GCSBucket = s
	}
	if s := v.GetString("cache.blob_backend"); s != "" {
		cfg.Cache.BlobBackend = s
	}
	if s := v.GetString("embedding.model_name"); s != "" {
		cfg.Embedding.ModelName = s
	}
	if s := v.GetString("embedding.base_url"); s != "" {
		cfg.Embedding.BaseURL = s
	}
	if s := v.GetString("embedding.api_key"); s != "" {
		cfg.Embedding.APIKey = s
	}
	if s := v.GetString("article.summary_model_name"); s != "" {
		cfg.Article.SummaryModelName = s
	}
	if s := v.GetString("article.summary_base_url"); s != "" {
		cfg.Article.SummaryBaseURL = s
	}
	if s := v.GetString("article.summary_api_key"); s != "" {
		cfg.Article.SummaryAPIKey = s
	}
	if s := v.GetString("browser.user_agent"); s != "" {
		cfg.Browser.UserAgent = s
	}
	if s := v.GetString("queue.pubsub_project_id"); s != "" {
		cfg.Queue.PubSubProjectID = s
	}
	if s := v.GetString("queue.pubsub_source_topic"); s != "" {
		cfg.Queue.PubSubSourceTopic = s
	}
	if s := v.GetString("queue.pubsub_source_sub"); s != "" {
		cfg.Queue.PubSubSourceSub = s
	}
	if s := v.GetString("queue.pubsub_article_topic"); s != "" {
		cfg.Queue.PubSubArticleTopic = s
	}
	if s := v.GetString("queue.pubsub_article_sub"); s != "" {
		cfg.Queue.PubSubArticleSub = s
	}
	if s := v.GetString("progress.postgres_dsn"); s != "" {
		cfg.Progress.PostgresDSN = s
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_hours", 24*7)
	v.SetDefault("cache.filesystem_dir", "./data/cache")
	v.SetDefault("vector_db.collection_name", "default")
	v.SetDefault("vector_db.text_vector_dimension", 1536)
	v.SetDefault("embedding.model_type", "http")
	v.SetDefault("embedding.embedding_dimensions", 1536)
	v.SetDefault("article.full_content_capture", true)
	v.SetDefault("article.generate_summary", false)
	v.SetDefault("article.max_articles_per_feed", 20)
	v.SetDefault("article.concurrent_article_tasks", 5)
	v.SetDefault("browser.max_concurrent_browsers", 3)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.max_concurrent_source_tasks", 10)
	v.SetDefault("server.port", 9090)
	v.SetDefault("logging.development", false)
	v.SetDefault("progress.postgres_enabled", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "postgres", "filesystem":
	default:
		return fmt.Errorf("cache.backend must be one of memory|postgres|filesystem, got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "postgres" && c.Cache.PostgresDSN == "" {
		return fmt.Errorf("cache.postgres_dsn is required when cache.backend is postgres")
	}
	if c.VectorDB.ConnectionString == "" {
		return fmt.Errorf("vector_db.connection_string is required")
	}
	if c.VectorDB.TextVectorDimension <= 0 {
		return fmt.Errorf("vector_db.text_vector_dimension must be > 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Queue.Backend {
	case "memory", "pubsub":
	default:
		return fmt.Errorf("queue.backend must be one of memory|pubsub, got %q", c.Queue.Backend)
	}
	for _, feed := range c.Feeds {
		if feed.Name == "" {
			return fmt.Errorf("every feed requires a name")
		}
		if feed.URL == "" {
			return fmt.Errorf("feed %q requires a url", feed.Name)
		}
	}
	if c.Progress.PostgresEnabled && c.Progress.PostgresDSN == "" {
		return fmt.Errorf("progress.postgres_dsn is required when progress.postgres_enabled is true")
	}
	return nil
}

// CacheTTL converts CACHE__TTL_HOURS into a time.Duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}
