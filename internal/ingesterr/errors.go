// Package ingesterr defines the typed error kinds raised across the
// ingestion engine: typed result values carrying a Retryable bit, instead of
// exceptions used for retry control flow.
package ingesterr

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies one of the fixed error classes the engine reasons about.
type Kind string

// Error kinds.
const (
	KindNetwork          Kind = "network"
	KindRateLimited      Kind = "rate_limited"
	KindBotChallenged    Kind = "bot_challenged"
	KindParseFormat      Kind = "parse_format"
	KindBrowserRequired  Kind = "browser_required"
	KindExtractionEmpty  Kind = "extraction_empty"
	KindEmbeddingFailed  Kind = "embedding_failed"
	KindStoreUnavailable Kind = "store_unavailable"
	KindConfig           Kind = "config"
	KindPolicyBlocked    Kind = "policy_blocked"
)

// Error is the typed failure value raised by adapters, the extractor, the
// enrichment pipeline, and the stores.
type Error struct {
	Kind       Kind
	Op         string
	Source     string
	URL        string
	Attempt    int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Source != "" {
		msg += fmt.Sprintf(" source=%s", e.Source)
	}
	if e.URL != "" {
		msg += fmt.Sprintf(" url=%s", e.URL)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the driver loop should attempt this operation
// again, per the per-kind retry policy.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindRateLimited:
		return true
	default:
		return false
	}
}

// New builds a typed Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithSource attaches the source name and returns the same error for chaining.
func (e *Error) WithSource(name string) *Error {
	e.Source = name
	return e
}

// WithURL attaches the request URL and returns the same error for chaining.
func (e *Error) WithURL(url string) *Error {
	e.URL = url
	return e
}

// WithAttempt records the attempt number and returns the same error for chaining.
func (e *Error) WithAttempt(n int) *Error {
	e.Attempt = n
	return e
}

// WithRetryAfter records a server-supplied retry delay and returns the same error.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// Is supports errors.Is against a bare Kind sentinel comparison via As, and
// against another *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf extracts the Kind from err, if err is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// AttemptOf extracts the recorded attempt number from err, if err is (or
// wraps) an *Error that called WithAttempt. Errors that never recorded an
// attempt (single-shot operations) report 0.
func AttemptOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Attempt
	}
	return 0
}

// Sentinel values for errors.Is-style comparisons where only the kind matters.
var (
	ErrBrowserRequired = &Error{Kind: KindBrowserRequired}
	ErrExtractionEmpty = &Error{Kind: KindExtractionEmpty}
)
