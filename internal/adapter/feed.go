package adapter

import (
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/blogwatch/ingestor/internal/domain"
	"github.com/blogwatch/ingestor/internal/fingerprint"
)

// parseFeed parses raw bytes as RSS 2.0, Atom, or JSON Feed and maps entries
// to CandidatePost. It returns an error (never a partial slice) on strict
// parse failure, so callers can fall back to HTML-as-feed extraction.
func parseFeed(sourceName string, raw []byte) ([]domain.CandidatePost, error) {
	parser := gofeed.NewParser()
	parsed, err := parser.ParseString(string(raw))
	if err != nil {
		return nil, err
	}

	posts := make([]domain.CandidatePost, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		link := feedItemLink(item)
		if link == "" {
			continue
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		fp, ferr := fingerprint.Derive(sourceName, link)
		if ferr != nil {
			continue
		}
		post := domain.CandidatePost{
			SourceName:  sourceName,
			URL:         link,
			Title:       title,
			Author:      feedItemAuthor(item),
			Summary:     strings.TrimSpace(item.Description),
			PublishedAt: feedItemPublished(item),
			Tags:        feedItemTags(item),
			Fingerprint: fp,
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func feedItemLink(item *gofeed.Item) string {
	if item.Link != "" {
		return item.Link
	}
	if strings.HasPrefix(item.GUID, "http") {
		return item.GUID
	}
	return ""
}

// feedItemAuthor tolerates the alternate author field shapes different feed
// dialects use: a top-level Author, an Authors slice, or Dublin Core creator
// surfaced by gofeed under DublinCoreExt.
func feedItemAuthor(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	if len(item.Authors) > 0 && item.Authors[0].Name != "" {
		return item.Authors[0].Name
	}
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		return item.DublinCoreExt.Creator[0]
	}
	return ""
}

func feedItemPublished(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	return item.UpdatedParsed
}

func feedItemTags(item *gofeed.Item) []string {
	if len(item.Categories) == 0 {
		return nil
	}
	tags := make([]string, 0, len(item.Categories))
	for _, c := range item.Categories {
		c = strings.TrimSpace(c)
		if c != "" {
			tags = append(tags, c)
		}
	}
	return tags
}
