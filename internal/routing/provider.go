package routing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// ErrNoRoutes is wrapped in an UpstreamError when a provider answers
// successfully but returns no candidate routes.
var ErrNoRoutes = errors.New("no routes returned")

// Provider computes candidate routes between two points.
// Implementations return an *UpstreamError for any failure that should move
// the fallback chain to its next stage.
type Provider interface {
	// Name is the provider identifier recorded in the call log.
	Name() string
	ComputeRoutes(ctx context.Context, q RouteQuery) (*RouteResult, error)
}

// Logger is a printf-style logging function injected into routing components.
// Using a function type (rather than an interface) keeps the dependency
// minimal and makes test doubles trivial to write.
type Logger func(format string, args ...any)

// defaultLogger is used when no logger option is supplied.
var defaultLogger Logger = log.Printf

// UpstreamError reports a failed call to an upstream provider: network error,
// non-2xx status, or a malformed payload.
type UpstreamError struct {
	Provider string
	// StatusCode is the upstream HTTP status when one was received, else 0.
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("routing: upstream %s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("routing: upstream %s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsUpstream reports whether err is (or wraps) an *UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// ExhaustedFallbackError is returned when every stage of a FallbackChain
// failed, the terminal stub included.
type ExhaustedFallbackError struct {
	Errors []error
}

func (e *ExhaustedFallbackError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("routing: all %d provider(s) failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *ExhaustedFallbackError) Unwrap() []error { return e.Errors }

// CacheReadError wraps a failed cache lookup. It is treated as a miss.
type CacheReadError struct {
	Fingerprint string
	Err         error
}

func (e *CacheReadError) Error() string {
	return fmt.Sprintf("routing: cache: read %s: %v", shortKey(e.Fingerprint), e.Err)
}

func (e *CacheReadError) Unwrap() error { return e.Err }

// CacheWriteError wraps a failed cache upsert. It is logged and swallowed.
type CacheWriteError struct {
	Fingerprint string
	Err         error
}

func (e *CacheWriteError) Error() string {
	return fmt.Sprintf("routing: cache: write %s: %v", shortKey(e.Fingerprint), e.Err)
}

func (e *CacheWriteError) Unwrap() error { return e.Err }

// Call-log status codes. They mirror HTTP semantics so analytics can treat
// every provider alike.
const (
	StatusOK      = http.StatusOK
	StatusFailure = http.StatusInternalServerError
)

// failureStatus picks the status recorded for a failed call: the upstream
// HTTP status when it is an error status, else StatusFailure.
func failureStatus(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.StatusCode >= 400 {
		return ue.StatusCode
	}
	return StatusFailure
}

// shortKey truncates a fingerprint for log lines.
func shortKey(k string) string {
	if len(k) > 8 {
		return k[:8]
	}
	return k
}

// --- Context helpers for carrying a request ID through the routing chain ---

type contextKey int

const requestIDKey contextKey = iota

// WithRequestID returns a new context carrying id. Every call-log entry
// written while serving the request is tagged with it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the ID stored by WithRequestID, if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	return v, ok && v != ""
}
