// Package oracle talks to the external text-comparison service that scores
// how similar candidate texts are to a query. Calls are made in fixed-size
// windows with retries, and any window that cannot be scored degrades to
// fallback scores instead of failing the caller.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Oracle sends one comparison request and returns the raw response body.
// Implementations must honor ctx cancellation where they can; callers also
// abandon calls that outlive ctx.
type Oracle interface {
	Compare(ctx context.Context, req *Request) ([]byte, error)
}

// Request asks the oracle to score every item against the query.
type Request struct {
	Query   string `json:"query"`
	Context string `json:"context,omitempty"`
	Items   []Item `json:"items"`
}

// Item is a candidate text with its 1-based position in the request.
type Item struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// StatusError is returned for non-2xx oracle responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("oracle returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("oracle returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// isRetryable decides whether a failed attempt should be retried.
// Transport failures, attempt timeouts and unparseable bodies are retried.
func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}

// FuncOracle adapts a function to the Oracle interface.
type FuncOracle func(ctx context.Context, req *Request) ([]byte, error)

// Compare calls f.
func (f FuncOracle) Compare(ctx context.Context, req *Request) ([]byte, error) {
	return f(ctx, req)
}
