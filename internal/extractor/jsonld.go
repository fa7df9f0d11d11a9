package extractor

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// jsonLDArticle is the subset of Schema.org Article fields this extractor
// cares about; JSON-LD often nests author as either a string or an object.
type jsonLDArticle struct {
	Type          string          `json:"@type"`
	Author        json.RawMessage `json:"author"`
	DatePublished string          `json:"datePublished"`
	Image         json.RawMessage `json:"image"`
}

type jsonLDAuthor struct {
	Name string `json:"name"`
}

// jsonLDMetadata scans <script type="application/ld+json"> blocks for the
// first Article (or NewsArticle/BlogPosting) node and extracts author and
// publish date from it.
func jsonLDMetadata(doc *goquery.Document) (extractedMetadata, bool) {
	var found extractedMetadata
	var ok bool
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var article jsonLDArticle
		if err := json.Unmarshal([]byte(s.Text()), &article); err != nil {
			return true
		}
		if !isArticleType(article.Type) {
			return true
		}
		found.author = jsonLDAuthorName(article.Author)
		if article.DatePublished != "" {
			if parsed, err := parseTimestamp(article.DatePublished); err == nil {
				found.publishedAt = &parsed
			}
		}
		ok = true
		return false
	})
	return found, ok
}

func isArticleType(t string) bool {
	switch t {
	case "Article", "NewsArticle", "BlogPosting":
		return true
	default:
		return false
	}
}

func jsonLDAuthorName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	var asObject jsonLDAuthor
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return strings.TrimSpace(asObject.Name)
	}
	var asArray []jsonLDAuthor
	if err := json.Unmarshal(raw, &asArray); err == nil && len(asArray) > 0 {
		return strings.TrimSpace(asArray[0].Name)
	}
	return ""
}
