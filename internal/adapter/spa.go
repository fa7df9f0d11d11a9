package adapter

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/blogwatch/ingestor/internal/domain"
	"github.com/blogwatch/ingestor/internal/fingerprint"
	"github.com/blogwatch/ingestor/internal/ingesterr"
)

var spaArticlePath = regexp.MustCompile(`^/\d{4}/\d{2}/[a-z0-9-]+/?$`)

// SPAAdapter targets Next.js-style single-page-application blogs whose
// initial HTML carries no server-rendered content. Fetch always requires
// browser rendering; Parse scans anchors against a canonical article URL
// template instead of relying on any feed or article markup.
type SPAAdapter struct {
	fetcher *ResilientFetcher
}

// NewSPAAdapter builds a SPAAdapter over the shared fetch layer.
func NewSPAAdapter(fetcher *ResilientFetcher) *SPAAdapter {
	return &SPAAdapter{fetcher: fetcher}
}

func (a *SPAAdapter) Fetch(ctx context.Context, source domain.SourceConfig) ([]byte, error) {
	if a.fetcher.renderer == nil {
		return nil, ingesterr.ErrBrowserRequired
	}
	result, err := a.fetcher.RenderFetch(ctx, source)
	if err != nil {
		return nil, err
	}
	return result.Body, nil
}

func (a *SPAAdapter) Parse(_ context.Context, source domain.SourceConfig, raw []byte) ([]domain.CandidatePost, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(source.URL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var posts []domain.CandidatePost
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if !spaArticlePath.MatchString(resolved.Path) {
			return
		}
		canonical := resolved.String()
		if _, ok := seen[canonical]; ok {
			return
		}
		seen[canonical] = struct{}{}

		title := strings.Join(strings.Fields(s.Text()), " ")
		fp, ferr := fingerprint.Derive(source.Name, canonical)
		if ferr != nil {
			return
		}
		posts = append(posts, domain.CandidatePost{
			SourceName:  source.Name,
			URL:         canonical,
			Title:       title,
			Fingerprint: fp,
		})
	})
	return posts, nil
}

func (a *SPAAdapter) Discover(ctx context.Context, source domain.SourceConfig) ([]domain.CandidatePost, error) {
	return discover(ctx, a, source)
}
