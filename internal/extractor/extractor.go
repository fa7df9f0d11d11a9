// Package extractor identifies the primary content subtree of an article
// page and reduces it to cleaned text, HTML, and metadata.
package extractor

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/blogwatch/ingestor/internal/domain"
	"github.com/blogwatch/ingestor/internal/ingesterr"
)

var decorativeSelectors = []string{
	"script", "style", "nav", "footer", "form", "header", "aside", "noscript",
}

var blankLineRun = regexp.MustCompile(`\n{3,}`)

// Extract parses html, isolates the primary content subtree with a
// readability heuristic, and returns the cleaned article body. If no
// candidate subtree carries usable text, it returns ingesterr.ErrExtractionEmpty
// so callers can degrade to feed-provided summary text.
func Extract(html []byte) (domain.ArticleContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return domain.ArticleContent{}, ingesterr.New(ingesterr.KindParseFormat, "extractor.extract", err)
	}

	meta := extractMetadata(doc)

	doc.Find(strings.Join(decorativeSelectors, ",")).Remove()
	doc.Find("*").Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#comment" {
			s.Remove()
		}
	})

	best := selectPrimarySubtree(doc)
	if best == nil {
		return domain.ArticleContent{}, ingesterr.ErrExtractionEmpty
	}

	cleanedHTML, err := best.Html()
	if err != nil {
		return domain.ArticleContent{}, ingesterr.New(ingesterr.KindParseFormat, "extractor.extract", err)
	}
	text := normalizeWhitespace(best.Text())
	if strings.TrimSpace(text) == "" {
		return domain.ArticleContent{}, ingesterr.ErrExtractionEmpty
	}

	content := domain.ArticleContent{
		Text:         text,
		HTML:         cleanedHTML,
		Author:       meta.author,
		PublishedAt:  meta.publishedAt,
		WordCount:    len(strings.Fields(text)),
		HeroImageURL: selectHeroImage(doc, best),
	}
	return content, nil
}

// selectPrimarySubtree scores every block-level candidate by a readability
// heuristic (higher text-to-tag ratio, lower link density, more paragraphs
// wins) and returns the highest scorer.
func selectPrimarySubtree(doc *goquery.Document) *goquery.Selection {
	candidates := doc.Find("article, main, div, section")
	var best *goquery.Selection
	bestScore := -1.0

	candidates.Each(func(_ int, s *goquery.Selection) {
		score := readabilityScore(s)
		if score > bestScore {
			bestScore = score
			best = s
		}
	})
	if best == nil || bestScore <= 0 {
		body := doc.Find("body")
		if body.Length() == 0 || strings.TrimSpace(body.Text()) == "" {
			return nil
		}
		return body
	}
	return best
}

func readabilityScore(s *goquery.Selection) float64 {
	text := strings.TrimSpace(s.Text())
	textLen := len(text)
	if textLen < 100 {
		return 0
	}
	linkTextLen := 0
	s.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkTextLen += len(strings.TrimSpace(a.Text()))
	})
	linkDensity := float64(linkTextLen) / float64(textLen+1)
	paragraphs := s.Find("p").Length()
	tagCount := s.Find("*").Length() + 1

	score := float64(textLen) / float64(tagCount)
	score += float64(paragraphs) * 25
	score *= 1 - linkDensity
	return score
}

func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(strings.Join(strings.Fields(line), " "))
	}
	joined := strings.Join(lines, "\n")
	joined = blankLineRun.ReplaceAllString(joined, "\n\n")
	return strings.TrimSpace(joined)
}

type extractedMetadata struct {
	author      string
	publishedAt *time.Time
}

// extractMetadata follows the fixed fallback order: JSON-LD Article blocks,
// then OpenGraph/Twitter meta tags, then plain <meta name="author"> and
// <time datetime>.
func extractMetadata(doc *goquery.Document) extractedMetadata {
	if m, ok := jsonLDMetadata(doc); ok && (m.author != "" || m.publishedAt != nil) {
		return m
	}

	m := extractedMetadata{}
	for _, selector := range []string{
		`meta[property="article:author"]`,
		`meta[name="twitter:creator"]`,
		`meta[name="author"]`,
	} {
		if content, ok := doc.Find(selector).Attr("content"); ok && strings.TrimSpace(content) != "" {
			m.author = strings.TrimSpace(content)
			break
		}
	}
	for _, selector := range []string{
		`meta[property="article:published_time"]`,
		`meta[name="twitter:data1"]`,
	} {
		if content, ok := doc.Find(selector).Attr("content"); ok {
			if parsed, err := parseTimestamp(content); err == nil {
				m.publishedAt = &parsed
				break
			}
		}
	}
	if m.publishedAt == nil {
		if raw, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
			if parsed, err := parseTimestamp(raw); err == nil {
				m.publishedAt = &parsed
			}
		}
	}
	return m
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ingesterr.New(ingesterr.KindParseFormat, "extractor.timestamp", nil)
}

// selectHeroImage prefers OpenGraph, then Schema.org itemprop=image, then
// the largest in-article <img> carrying explicit width/height attributes.
func selectHeroImage(doc *goquery.Document, content *goquery.Selection) string {
	if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	if schema, ok := doc.Find(`[itemprop="image"]`).Attr("content"); ok && strings.TrimSpace(schema) != "" {
		return strings.TrimSpace(schema)
	}
	if content == nil {
		return ""
	}
	var best string
	bestArea := 0
	content.Find("img[width][height]").Each(func(_ int, img *goquery.Selection) {
		w := attrInt(img, "width")
		h := attrInt(img, "height")
		area := w * h
		if area > bestArea {
			if src, ok := img.Attr("src"); ok {
				best = src
				bestArea = area
			}
		}
	})
	return best
}

func attrInt(s *goquery.Selection, name string) int {
	val, ok := s.Attr(name)
	if !ok {
		return 0
	}
	n := 0
	for _, r := range val {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
