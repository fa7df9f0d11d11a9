package adapter

import (
	"net/url"
	"strings"

	"github.com/blogwatch/ingestor/internal/domain"
)

// HostRules names the per-deployment host classifications the Factory
// consults, in priority order: SPA family, bot-gated, Medium family.
type HostRules struct {
	SPAFamily   map[string]struct{}
	BotGated    map[string]struct{}
	MediumFamily map[string]struct{}
}

// Factory selects an Adapter for a SourceConfig using the fixed,
// ordered rules: SPA family wins over bot-gated, which wins over Medium
// family, which wins over the generic default.
type Factory struct {
	rules   HostRules
	fetcher *ResilientFetcher

	spaAdapter     *SPAAdapter
	mediumAdapter  *MediumAdapter
	browserAdapter *BrowserFallbackAdapter
	genericAdapter *GenericAdapter
}

// NewFactory builds a Factory with one instance of each adapter, all sharing
// fetcher.
func NewFactory(rules HostRules, fetcher *ResilientFetcher) *Factory {
	return &Factory{
		rules:          rules,
		fetcher:        fetcher,
		spaAdapter:     NewSPAAdapter(fetcher),
		mediumAdapter:  NewMediumAdapter(fetcher),
		browserAdapter: NewBrowserFallbackAdapter(fetcher),
		genericAdapter: NewGenericAdapter(fetcher),
	}
}

// Select returns the adapter chosen for source per the ordered host rules.
func (f *Factory) Select(source domain.SourceConfig) Adapter {
	host := hostOf(source.URL)
	switch {
	case matches(f.rules.SPAFamily, host, source.Hints.DomainFamily == "spa"):
		return f.spaAdapter
	case matches(f.rules.BotGated, host, false):
		return f.browserAdapter
	case matches(f.rules.MediumFamily, host, source.Hints.DomainFamily == "medium"):
		return f.mediumAdapter
	default:
		return f.genericAdapter
	}
}

func matches(set map[string]struct{}, host string, hinted bool) bool {
	if hinted {
		return true
	}
	if set == nil {
		return false
	}
	_, ok := set[host]
	return ok
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
