package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRobotsChecker_AllowsWhenNoRobotsTxt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newRobotsChecker("testbot")
	allowed, err := c.Allowed(context.Background(), srv.URL+"/anything")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRobotsChecker_DisallowsMatchingPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newRobotsChecker("testbot")
	allowed, err := c.Allowed(context.Background(), srv.URL+"/private/page")
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = c.Allowed(context.Background(), srv.URL+"/public/page")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRobotsChecker_CachesPerHost(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("User-agent: *\nDisallow:\n"))
	}))
	defer srv.Close()

	c := newRobotsChecker("testbot")
	_, err := c.Allowed(context.Background(), srv.URL+"/a")
	require.NoError(t, err)
	_, err = c.Allowed(context.Background(), srv.URL+"/b")
	require.NoError(t, err)
	require.Equal(t, 1, hits)
}
