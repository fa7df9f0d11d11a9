package adapter

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blogwatch/ingestor/internal/domain"
	"github.com/blogwatch/ingestor/internal/fingerprint"
	"github.com/blogwatch/ingestor/internal/ingesterr"
)

// TestScenario_ValidRSSTwoNewItems covers a feed with two items, one of
// which carries a utm_source tracking parameter that must canonicalize to
// the same fingerprint as its stripped form, and a second, unchanged tick
// yielding the same two candidates (discovery is idempotent; dedupe is the
// caller's responsibility, exercised separately in internal/enrich).
func TestScenario_ValidRSSTwoNewItems(t *testing.T) {
	const rss = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Example</title>
<item><title>Post A</title><link>https://x.test/a</link></item>
<item><title>Post B</title><link>https://x.test/b?utm_source=foo</link></item>
</channel></rss>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rss))
	}))
	defer srv.Close()

	fetcher := NewResilientFetcher(HostLists{}, nil, zap.NewNop())
	factory := NewFactory(HostRules{}, fetcher)
	source := domain.SourceConfig{Name: "example", URL: srv.URL}

	first, err := factory.Select(source).Discover(t.Context(), source)
	require.NoError(t, err)
	require.Len(t, first, 2)

	fpDirect, err := fingerprint.Derive("example", "https://x.test/b")
	require.NoError(t, err)
	fpTracked, err := fingerprint.Derive("example", "https://x.test/b?utm_source=foo")
	require.NoError(t, err)
	require.Equal(t, fpDirect, fpTracked)

	second, err := factory.Select(source).Discover(t.Context(), source)
	require.NoError(t, err)
	require.Len(t, second, 2)
}

// TestScenario_MalformedXMLHTMLFallback covers three <article> subtrees each
// containing a short breadcrumb link and a long headline link: the
// article-elements tier picks the longest-text anchor per article, so the
// headline (not the breadcrumb) is selected and all three are produced.
func TestScenario_MalformedXMLHTMLFallback(t *testing.T) {
	html := `<html><body><div class="posts">`
	for i := 1; i <= 3; i++ {
		html += fmt.Sprintf(`<article>
			<a href="/blog/">Blog</a>
			<a href="/blog/how-we-scaled-%d">How we scaled to 1M QPS, part %d</a>
		</article>`, i, i)
	}
	html += `</div></body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(html))
	}))
	defer srv.Close()

	fetcher := NewResilientFetcher(HostLists{}, nil, zap.NewNop())
	factory := NewFactory(HostRules{}, fetcher)
	source := domain.SourceConfig{Name: "example", URL: srv.URL}

	candidates, err := factory.Select(source).Discover(t.Context(), source)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	for i, c := range candidates {
		require.Contains(t, c.Title, "How we scaled")
		require.NotEqual(t, "Blog", c.Title, "candidate %d picked the breadcrumb link", i)
	}
}

// TestScenario_RetryAfterBackoff covers two 429 responses carrying
// Retry-After: 2 followed by a 200, asserting the adapter succeeds on the
// third attempt and total elapsed time reflects the mandated wait.
func TestScenario_RetryAfterBackoff(t *testing.T) {
	const rss = `<?xml version="1.0"?>
<rss version="2.0"><channel><item><title>Post A</title><link>https://x.test/a</link></item></channel></rss>`

	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.Header().Set("Retry-After", strconv.Itoa(2))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rss))
	}))
	defer srv.Close()

	fetcher := NewResilientFetcher(HostLists{}, nil, zap.NewNop())
	factory := NewFactory(HostRules{}, fetcher)
	source := domain.SourceConfig{Name: "example", URL: srv.URL}

	start := time.Now()
	candidates, err := factory.Select(source).Discover(t.Context(), source)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	require.Equal(t, 3, attempts)
	require.GreaterOrEqual(t, elapsed, 2*time.Second)
}

// TestScenario_BotGatedWithoutBrowser covers a bot-gated host returning 403
// with no browser-rendering capability configured: discovery fails with the
// browser-required classification rather than retrying forever.
func TestScenario_BotGatedWithoutBrowser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	host := srv.Listener.Addr().String()
	fetcher := NewResilientFetcher(HostLists{BotGated: map[string]struct{}{host: {}}}, nil, zap.NewNop())
	factory := NewFactory(HostRules{BotGated: map[string]struct{}{host: {}}}, fetcher)
	source := domain.SourceConfig{Name: "example", URL: srv.URL}

	_, err := factory.Select(source).Discover(t.Context(), source)
	require.Error(t, err)
	require.ErrorIs(t, err, ingesterr.ErrBrowserRequired)
}
