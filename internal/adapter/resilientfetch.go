package adapter

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"io"
	"math"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/blogwatch/ingestor/internal/capability"
	"github.com/blogwatch/ingestor/internal/domain"
	"github.com/blogwatch/ingestor/internal/ingesterr"
	"github.com/blogwatch/ingestor/internal/metrics"
	"github.com/blogwatch/ingestor/internal/ratelimit"
)

const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

func browserHeaders() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", desktopUserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	h.Set("DNT", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Connection", "keep-alive")
	return h
}

// FetchResult is the outcome of one resilient fetch attempt.
type FetchResult struct {
	Body       []byte
	StatusCode int
	Headers    http.Header
	UsedBrowser bool
}

// HostLists names hosts requiring special fetch handling, sourced from
// per-deployment configuration rather than hardcoded here.
type HostLists struct {
	BotGated map[string]struct{}
}

// ResilientFetcher implements the shared fetch layer used by every Adapter:
// browser-mimicking headers, transparent decompression, and the
// status-code-driven retry policy.
type ResilientFetcher struct {
	baseCollector *colly.Collector
	renderer      capability.Renderer
	hosts         HostLists
	logger        *zap.Logger
	timeout       time.Duration
	limiter       *ratelimit.Limiter
	robots        *robotsChecker
}

// NewResilientFetcher builds a fetcher. renderer may be nil, in which case
// bot-gated/browser-required paths fail with ErrBrowserRequired. Every
// fetch paces itself against a per-host token bucket before attempting a
// request, independent of the server-driven 429 backoff below.
func NewResilientFetcher(hosts HostLists, renderer capability.Renderer, logger *zap.Logger) *ResilientFetcher {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	})
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResilientFetcher{
		baseCollector: c,
		renderer:      renderer,
		hosts:         hosts,
		logger:        logger,
		timeout:       15 * time.Second,
		limiter:       ratelimit.New(ratelimit.Config{DefaultRPS: 2, DefaultBurst: 2}),
		robots:        newRobotsChecker(desktopUserAgent),
	}
}

func (f *ResilientFetcher) isBotGated(host string) bool {
	_, ok := f.hosts.BotGated[strings.ToLower(host)]
	return ok
}

// Fetch executes the full resilient-fetch state machine against source.URL
// and returns the decompressed response body on a 2xx outcome.
func (f *ResilientFetcher) Fetch(ctx context.Context, source domain.SourceConfig) (FetchResult, error) {
	return f.fetchURL(ctx, source.Name, source.Hints, source.URL)
}

// FetchArticle runs the same resilient-fetch policy against an arbitrary
// article URL discovered under source, rather than source.URL itself. Used
// by the enrichment pipeline's full-content fetch step.
func (f *ResilientFetcher) FetchArticle(ctx context.Context, source domain.SourceConfig, articleURL string) (FetchResult, error) {
	return f.fetchURL(ctx, source.Name, source.Hints, articleURL)
}

func (f *ResilientFetcher) fetchURL(ctx context.Context, sourceName string, hints domain.Hints, targetURL string) (FetchResult, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return FetchResult{}, ingesterr.New(ingesterr.KindParseFormat, "adapter.fetch", err).WithSource(sourceName).WithURL(targetURL)
	}
	insecure := hints.InsecureSkipTLS
	if insecure {
		f.logger.Warn("TLS verification disabled for source", zap.String("source", sourceName))
	}

	if hints.RespectRobots {
		allowed, err := f.robots.Allowed(ctx, targetURL)
		if err != nil {
			return FetchResult{}, ingesterr.New(ingesterr.KindNetwork, "adapter.fetch", err).WithSource(sourceName).WithURL(targetURL)
		}
		if !allowed {
			return FetchResult{}, ingesterr.New(ingesterr.KindPolicyBlocked, "adapter.fetch", fmt.Errorf("disallowed by robots.txt")).WithSource(sourceName).WithURL(targetURL)
		}
	}

	headers := browserHeaders()
	acceptOverride := ""
	rateLimitDeadline := 30 * time.Second
	rateLimitStart := time.Now()

	for attempt := 0; ; attempt++ {
		if err := f.limiter.Wait(ctx, targetURL); err != nil {
			return FetchResult{}, ingesterr.New(ingesterr.KindNetwork, "adapter.fetch", err).WithSource(sourceName).WithURL(targetURL)
		}
		if acceptOverride != "" {
			headers.Set("Accept", acceptOverride)
		}
		result, err := f.attempt(ctx, targetURL, headers, insecure)
		if err != nil {
			return FetchResult{}, ingesterr.New(ingesterr.KindNetwork, "adapter.fetch", err).
				WithSource(sourceName).WithURL(targetURL).WithAttempt(attempt)
		}

		switch {
		case result.StatusCode >= 200 && result.StatusCode < 300:
			return result, nil

		case result.StatusCode == http.StatusNotAcceptable && acceptOverride == "":
			acceptOverride = "*/*"
			continue

		case result.StatusCode == http.StatusTooManyRequests:
			wait := retryAfterOrDefault(result.Headers, backoffDelay(attempt, time.Second, 2, 30*time.Second))
			if time.Since(rateLimitStart)+wait > rateLimitDeadline || attempt >= 4 {
				return FetchResult{}, ingesterr.New(ingesterr.KindRateLimited, "adapter.fetch", fmt.Errorf("rate limited after %d attempts", attempt+1)).
					WithSource(sourceName).WithURL(targetURL).WithAttempt(attempt).WithRetryAfter(wait)
			}
			metrics.ObserveFetchRetry(sourceName, "status_429")
			metrics.ObserveBackoffWait("status_429", wait)
			if err := sleep(ctx, wait); err != nil {
				return FetchResult{}, ingesterr.New(ingesterr.KindNetwork, "adapter.fetch", err).WithSource(sourceName).WithURL(targetURL)
			}
			continue

		case (result.StatusCode == http.StatusForbidden || result.StatusCode == http.StatusServiceUnavailable) && f.isBotGated(parsed.Host):
			if f.renderer == nil {
				return FetchResult{}, ingesterr.ErrBrowserRequired
			}
			page, rerr := f.renderer.RenderPage(ctx, targetURL)
			if rerr != nil {
				return FetchResult{}, ingesterr.New(ingesterr.KindBotChallenged, "adapter.fetch", rerr).WithSource(sourceName).WithURL(targetURL)
			}
			return FetchResult{Body: []byte(page.HTML), StatusCode: page.Status, Headers: page.Headers, UsedBrowser: true}, nil

		case result.StatusCode >= 400 && result.StatusCode < 500:
			return FetchResult{}, ingesterr.New(ingesterr.KindNetwork, "adapter.fetch", fmt.Errorf("permanent status %d", result.StatusCode)).
				WithSource(sourceName).WithURL(targetURL)

		case result.StatusCode >= 500:
			if attempt >= 2 {
				return FetchResult{}, ingesterr.New(ingesterr.KindNetwork, "adapter.fetch", fmt.Errorf("server error %d", result.StatusCode)).
					WithSource(sourceName).WithURL(targetURL).WithAttempt(attempt)
			}
			metrics.ObserveFetchRetry(sourceName, "status_5xx")
			delay := backoffDelay(attempt, 250*time.Millisecond, 2, 5*time.Second)
			metrics.ObserveBackoffWait("status_5xx", delay)
			if err := sleep(ctx, delay); err != nil {
				return FetchResult{}, ingesterr.New(ingesterr.KindNetwork, "adapter.fetch", err).WithSource(sourceName).WithURL(targetURL)
			}
			continue

		default:
			return FetchResult{}, ingesterr.New(ingesterr.KindNetwork, "adapter.fetch", fmt.Errorf("unexpected status %d", result.StatusCode)).
				WithSource(sourceName).WithURL(targetURL)
		}
	}
}

// RenderFetch forces browser rendering, used by adapters whose fetch step
// always requires JavaScript execution (Medium, SPA).
func (f *ResilientFetcher) RenderFetch(ctx context.Context, source domain.SourceConfig) (FetchResult, error) {
	if f.renderer == nil {
		return FetchResult{}, ingesterr.ErrBrowserRequired
	}
	page, err := f.renderer.RenderPage(ctx, source.URL)
	if err != nil {
		return FetchResult{}, ingesterr.New(ingesterr.KindBrowserRequired, "adapter.renderfetch", err).WithSource(source.Name).WithURL(source.URL)
	}
	return FetchResult{Body: []byte(page.HTML), StatusCode: page.Status, Headers: page.Headers, UsedBrowser: true}, nil
}

func (f *ResilientFetcher) attempt(ctx context.Context, rawURL string, headers http.Header, insecureSkipTLS bool) (FetchResult, error) {
	collector := f.baseCollector.Clone()
	// Clones share the base collector's visited-URL store; retries and
	// repeated ticks fetch the same URL again.
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(f.timeout)
	if insecureSkipTLS {
		collector.WithTransport(&http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in per source allow-list
		})
	}

	var result FetchResult
	var fetchErr error
	collector.OnRequest(func(r *colly.Request) {
		for k, values := range headers {
			for _, v := range values {
				r.Headers.Set(k, v)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		body, derr := decompress(r.Headers.Get("Content-Encoding"), r.Body)
		if derr != nil {
			fetchErr = derr
			return
		}
		result = FetchResult{
			Body:       body,
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			// Colly treats non-2xx as an error; surface it as a normal
			// result so the status-code policy above can decide.
			body, derr := decompress(r.Headers.Get("Content-Encoding"), r.Body)
			if derr == nil {
				result = FetchResult{Body: body, StatusCode: r.StatusCode, Headers: r.Headers.Clone()}
				fetchErr = nil
				return
			}
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() { done <- collector.Visit(rawURL) }()

	select {
	case <-ctx.Done():
		return FetchResult{}, ctx.Err()
	case err := <-done:
		if err != nil && result.StatusCode == 0 {
			return FetchResult{}, err
		}
		if fetchErr != nil {
			return FetchResult{}, fetchErr
		}
		return result, nil
	}
}

func decompress(contentEncoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return body, nil
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip decompress: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case "deflate":
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		return io.ReadAll(r)
	case "zstd":
		r, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		// Includes "br" (brotli): no decoder is wired for it, so the raw
		// body is returned as-is and downstream parsing will fail fast on
		// content that clearly isn't the expected feed/HTML format.
		return body, nil
	}
}

func retryAfterOrDefault(h http.Header, fallback time.Duration) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(raw); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return fallback
}

func backoffDelay(attempt int, base time.Duration, factor float64, max time.Duration) time.Duration {
	delay := float64(base) * math.Pow(factor, float64(attempt))
	if delay > float64(max) {
		delay = float64(max)
	}
	jitterBound := int64(delay / 4)
	if jitterBound <= 0 {
		return time.Duration(delay)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(jitterBound))
	if err != nil {
		return time.Duration(delay)
	}
	return time.Duration(delay) + time.Duration(n.Int64())
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
