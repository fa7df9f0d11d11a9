package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blogwatch/ingestor/internal/domain"
)

func TestLoad_FileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
feeds:
  - name: example-blog
    url: https://example.com/feed
    poll_interval: 5m
    max_posts: 15
    enabled: true
cache:
  backend: memory
  ttl_hours: 48
vector_db:
  connection_string: "postgres://localhost/ingestor"
  collection_name: engineering
  text_vector_dimension: 768
embedding:
  model_type: http
  model_name: text-embed-3
  embedding_dimensions: 1536
  base_url: http://embedder.local
article:
  full_content_capture: true
  generate_summary: true
  max_articles_per_feed: 10
  concurrent_article_tasks: 8
browser:
  max_concurrent_browsers: 2
queue:
  backend: memory
server:
  port: 9091
logging:
  development: true
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Feeds, 1)
	require.Equal(t, "example-blog", cfg.Feeds[0].Name)
	require.Equal(t, 5*time.Minute, cfg.Feeds[0].PollInterval)
	require.True(t, cfg.Feeds[0].Enabled)
	require.Equal(t, 48, cfg.Cache.TTLHours)
	require.Equal(t, 768, cfg.VectorDB.TextVectorDimension)
	require.True(t, cfg.Article.GenerateSummary)
	require.Equal(t, 9091, cfg.Server.Port)
	require.Equal(t, 48*time.Hour, cfg.CacheTTL())
}

func TestLoad_EnvOverridesAddFeedBeyondFile(t *testing.T) {
	t.Setenv("FEEDS__0__NAME", "env-blog")
	t.Setenv("FEEDS__0__URL", "https://env-blog.example.com/feed")
	t.Setenv("FEEDS__0__ENABLED", "true")
	t.Setenv("VECTOR_DB__CONNECTION_STRING", "postgres://localhost/ingestor")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Len(t, cfg.Feeds, 1)
	require.Equal(t, "env-blog", cfg.Feeds[0].Name)
	require.True(t, cfg.Feeds[0].Enabled)
}

func TestConfig_Validate_Errors(t *testing.T) {
	t.Parallel()

	base := Config{
		Cache:    CacheConfig{Backend: "memory"},
		VectorDB: VectorDBConfig{ConnectionString: "postgres://x", TextVectorDimension: 768},
		Server:   ServerConfig{Port: 8080},
		Queue:    QueueConfig{Backend: "memory"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid cache backend",
			cfg: func() Config {
				c := base
				c.Cache.Backend = "redis"
				return c
			}(),
			want: "cache.backend",
		},
		{
			name: "postgres backend needs dsn",
			cfg: func() Config {
				c := base
				c.Cache.Backend = "postgres"
				return c
			}(),
			want: "cache.postgres_dsn",
		},
		{
			name: "vector db connection required",
			cfg: func() Config {
				c := base
				c.VectorDB.ConnectionString = ""
				return c
			}(),
			want: "vector_db.connection_string",
		},
		{
			name: "invalid queue backend",
			cfg: func() Config {
				c := base
				c.Queue.Backend = "kafka"
				return c
			}(),
			want: "queue.backend",
		},
		{
			name: "feed missing url",
			cfg: func() Config {
				c := base
				c.Feeds = []domain.SourceConfig{{Name: "no-url"}}
				return c
			}(),
			want: "requires a url",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			require.ErrorContains(t, err, tt.want)
		})
	}
}
