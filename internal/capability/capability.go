// Package capability declares the injected collaborator interfaces the
// engine depends on but does not implement: embedding, summarization, and
// browser rendering. Concrete implementations live outside the core and are
// wired in at startup as capability seams.
package capability

import (
	"context"
	"net/http"
)

// Embedder produces a dense vector embedding for a block of text.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Summarizer produces a short natural-language summary of a block of text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// RenderedPage is the result of a browser-rendering capability call.
type RenderedPage struct {
	HTML    string
	Status  int
	Headers http.Header
}

// Renderer renders a URL with a real browser engine and returns the DOM
// snapshot. Implementations are expected to enforce their own concurrency
// cap (MAX_CONCURRENT_BROWSERS); callers treat borrow/return as opaque.
type Renderer interface {
	RenderPage(ctx context.Context, url string) (RenderedPage, error)
}
