// Package htmlfeed extracts candidate posts from an HTML document that has
// no machine-readable feed, using a fixed three-tier strategy: article
// elements, headings inside post-list containers, then a broad URL-pattern
// scan. The first tier to yield validated entries wins.
package htmlfeed

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/blogwatch/ingestor/internal/domain"
	"github.com/blogwatch/ingestor/internal/fingerprint"
)

var yearMonthPath = regexp.MustCompile(`/\d{4}/\d{2}/`)

var publicationSegments = []string{"/blog/", "/news/", "/post/", "/articles/", "/engineering/"}

var excludedSegments = []string{
	"/categories/", "/tags/", "/authors/", "/platform", "/solutions/", "/pricing", "/about",
}

// Entry is one extracted candidate before fingerprint derivation is folded
// into a domain.CandidatePost by Extract.
type Entry struct {
	URL         string
	Title       string
	Author      string
	PublishedAt *time.Time
}

// Extract runs the three-tier strategy over html, resolving relative links
// against origin, and returns fingerprint-populated candidates.
func Extract(sourceName, origin string, html []byte) ([]domain.CandidatePost, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(origin)
	if err != nil {
		return nil, err
	}

	for _, tier := range []func(*goquery.Document, *url.URL) []Entry{tierArticleElements, tierHeadingsInContainers, tierURLPatternScan} {
		entries := tier(doc, base)
		if len(entries) > 0 {
			return toCandidatePosts(sourceName, entries)
		}
	}
	return nil, nil
}

func toCandidatePosts(sourceName string, entries []Entry) ([]domain.CandidatePost, error) {
	posts := make([]domain.CandidatePost, 0, len(entries))
	for _, e := range entries {
		fp, err := fingerprint.Derive(sourceName, e.URL)
		if err != nil {
			continue
		}
		posts = append(posts, domain.CandidatePost{
			SourceName:  sourceName,
			URL:         e.URL,
			Title:       e.Title,
			Author:      e.Author,
			PublishedAt: e.PublishedAt,
			Fingerprint: fp,
		})
	}
	return posts, nil
}

// tierArticleElements locates each <article> subtree and picks the anchor
// with the longest visible text as the article link, to avoid picking up
// breadcrumb or "read more" links.
func tierArticleElements(doc *goquery.Document, base *url.URL) []Entry {
	var entries []Entry
	doc.Find("article").Each(func(_ int, article *goquery.Selection) {
		best, bestText := "", ""
		article.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			text := collapseWhitespace(a.Text())
			if len(text) > len(bestText) {
				best, bestText = href, text
			}
		})
		if best == "" {
			return
		}
		resolved := resolve(base, best)
		if resolved == "" || isExcluded(resolved) || !hasPublicationSegment(resolved) {
			return
		}
		entries = append(entries, buildEntry(article, resolved, bestText))
	})
	return dedupeByURL(entries)
}

var postContainerMarkers = []string{"post", "entry", "card", "article"}

// tierHeadingsInContainers finds links nested under h2/h3 inside elements
// whose class or id names a post-list container.
func tierHeadingsInContainers(doc *goquery.Document, base *url.URL) []Entry {
	var entries []Entry
	doc.Find("*").Each(func(_ int, container *goquery.Selection) {
		if !isPostContainer(container) {
			return
		}
		container.Find("h2 a[href], h3 a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			resolved := resolve(base, href)
			if resolved == "" || isExcluded(resolved) {
				return
			}
			text := collapseWhitespace(a.Text())
			if text == "" {
				return
			}
			entries = append(entries, buildEntry(container, resolved, text))
		})
	})
	return dedupeByURL(entries)
}

func isPostContainer(s *goquery.Selection) bool {
	class, _ := s.Attr("class")
	id, _ := s.Attr("id")
	haystack := strings.ToLower(class + " " + id)
	for _, marker := range postContainerMarkers {
		if strings.Contains(haystack, marker) {
			return true
		}
	}
	return false
}

// tierURLPatternScan scans every anchor whose resolved href looks
// article-shaped, deduplicating by canonical URL.
func tierURLPatternScan(doc *goquery.Document, base *url.URL) []Entry {
	var entries []Entry
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		resolved := resolve(base, href)
		if resolved == "" || isExcluded(resolved) || !hasPublicationSegment(resolved) {
			return
		}
		text := collapseWhitespace(a.Text())
		if text == "" {
			return
		}
		entries = append(entries, buildEntry(a, resolved, text))
	})
	return dedupeByURL(entries)
}

func buildEntry(scope *goquery.Selection, resolvedURL, title string) Entry {
	return Entry{
		URL:         resolvedURL,
		Title:       title,
		Author:      findAuthor(scope),
		PublishedAt: findPublished(scope),
	}
}

func findAuthor(scope *goquery.Selection) string {
	var author string
	scope.Find(`[class*="author"], [rel="author"], [itemprop="author"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := collapseWhitespace(s.Text())
		if text != "" {
			author = text
			return false
		}
		return true
	})
	return author
}

func findPublished(scope *goquery.Selection) *time.Time {
	var when *time.Time
	scope.Find("time[datetime]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw, ok := s.Attr("datetime")
		if !ok {
			return true
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, raw); err == nil {
				when = &t
				return false
			}
		}
		return true
	})
	return when
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func hasPublicationSegment(resolvedURL string) bool {
	lower := strings.ToLower(resolvedURL)
	for _, seg := range publicationSegments {
		if strings.Contains(lower, seg) {
			return true
		}
	}
	return yearMonthPath.MatchString(lower)
}

func isExcluded(resolvedURL string) bool {
	lower := strings.ToLower(resolvedURL)
	for _, seg := range excludedSegments {
		if strings.Contains(lower, seg) {
			return true
		}
	}
	return false
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func dedupeByURL(entries []Entry) []Entry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.URL]; ok {
			continue
		}
		seen[e.URL] = struct{}{}
		out = append(out, e)
	}
	return out
}
