package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrRateLimited marks an upstream 429. Retryable for image downloads.
var ErrRateLimited = errors.New("rate limited by upstream")

// ErrNotFound marks an absent key in a blob store.
var ErrNotFound = errors.New("not found")

// UpstreamError is a non-success response from the storefront API or an
// image host. Fatal to the operation that raised it unless a fallback
// path exists.
type UpstreamError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %s for %s", e.Status, e.URL)
}

// ParseError is a malformed sort string or an unrecognized department or
// category name. Raised during query setup, before any network activity.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q: %s", e.Input, e.Reason)
}

// IsCanceled reports whether err is the cancellation signal of a
// superseded query scope. Cancellation always propagates to the top and
// is never surfaced as a user-facing error. Query scopes are never
// deadline-bound, so a deadline error is an ordinary per-request
// timeout, not cancellation; it stays in the transient-failure class
// and fallback paths apply.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
