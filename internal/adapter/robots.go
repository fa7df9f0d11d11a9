package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsChecker fetches and caches robots.txt per host, consulted only for
// sources whose Hints.RespectRobots opts in. A host with no reachable
// robots.txt, or one that fails to parse, is treated as allow-all: robots
// compliance is a courtesy toward polite sources, not a hard security
// boundary the fetcher can afford to fail closed on.
type robotsChecker struct {
	client *http.Client
	userAgent string

	mu      sync.Mutex
	entries map[string]*robotstxt.RobotsData
}

func newRobotsChecker(userAgent string) *robotsChecker {
	return &robotsChecker{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: userAgent,
		entries:   make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether userAgent may fetch rawURL under its host's
// robots.txt, fetching and caching that host's robots.txt on first use.
func (c *robotsChecker) Allowed(ctx context.Context, rawURL string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("robots: parse url: %w", err)
	}
	host := parsed.Scheme + "://" + parsed.Host

	data, err := c.fetch(ctx, host)
	if err != nil {
		return true, nil
	}
	return data.TestAgent(parsed.Path, c.userAgent), nil
}

func (c *robotsChecker) fetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	c.mu.Lock()
	if data, ok := c.entries[host]; ok {
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[host] = data
	c.mu.Unlock()
	return data, nil
}
