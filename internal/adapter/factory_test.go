package adapter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blogwatch/ingestor/internal/domain"
)

func TestFactory_SelectsSPAOverEverythingElse(t *testing.T) {
	t.Parallel()

	rules := HostRules{
		SPAFamily: map[string]struct{}{"spa.example": {}},
		BotGated:  map[string]struct{}{"spa.example": {}},
	}
	f := NewFactory(rules, NewResilientFetcher(HostLists{}, nil, nil))

	got := f.Select(domain.SourceConfig{URL: "https://spa.example/blog"})
	require.IsType(t, &SPAAdapter{}, got)
}

func TestFactory_SelectsBrowserFallbackForBotGated(t *testing.T) {
	t.Parallel()

	rules := HostRules{BotGated: map[string]struct{}{"gated.example": {}}}
	f := NewFactory(rules, NewResilientFetcher(HostLists{}, nil, nil))

	got := f.Select(domain.SourceConfig{URL: "https://gated.example/blog"})
	require.IsType(t, &BrowserFallbackAdapter{}, got)
}

func TestFactory_SelectsMediumForMediumFamily(t *testing.T) {
	t.Parallel()

	rules := HostRules{MediumFamily: map[string]struct{}{"medium.com": {}}}
	f := NewFactory(rules, NewResilientFetcher(HostLists{}, nil, nil))

	got := f.Select(domain.SourceConfig{URL: "https://medium.com/@acme/feed"})
	require.IsType(t, &MediumAdapter{}, got)
}

func TestFactory_DefaultsToGeneric(t *testing.T) {
	t.Parallel()

	f := NewFactory(HostRules{}, NewResilientFetcher(HostLists{}, nil, nil))

	got := f.Select(domain.SourceConfig{URL: "https://plainblog.example/feed"})
	require.IsType(t, &GenericAdapter{}, got)
}

func TestFactory_HintOverridesHostList(t *testing.T) {
	t.Parallel()

	f := NewFactory(HostRules{}, NewResilientFetcher(HostLists{}, nil, nil))

	got := f.Select(domain.SourceConfig{
		URL:   "https://unlisted.example/blog",
		Hints: domain.Hints{DomainFamily: "spa"},
	})
	require.IsType(t, &SPAAdapter{}, got)
}
