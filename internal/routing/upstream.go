package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultProviderTimeout bounds every upstream HTTP call.
	DefaultProviderTimeout = 15 * time.Second

	// httpMaxIdleConns is the maximum number of idle (keep-alive) connections
	// kept in the transport pool across all hosts.
	httpMaxIdleConns = 10

	// httpIdleConnTimeout is how long an idle connection is kept in the pool
	// before being closed.
	httpIdleConnTimeout = 30 * time.Second

	// maxResponseBytes caps how much of an upstream body is read.
	maxResponseBytes = 4 << 20
)

// NewHTTPClient returns the pooled client used by the HTTP providers.
// timeout <= 0 selects DefaultProviderTimeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        httpMaxIdleConns,
		MaxIdleConnsPerHost: httpMaxIdleConns,
		IdleConnTimeout:     httpIdleConnTimeout,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// UpstreamContext detaches ctx from the caller's cancellation and applies the
// per-call timeout. Only the provider timeout may abort an upstream call.
func UpstreamContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// DoJSON sends req, checks for a 2xx status and decodes the JSON body into
// out. Every failure is returned as an *UpstreamError for provider.
func DoJSON(client *http.Client, provider string, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return &UpstreamError{Provider: provider, Err: fmt.Errorf("http: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &UpstreamError{Provider: provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamError{Provider: provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", truncate(body, 256))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &UpstreamError{Provider: provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	return nil
}

// NewJSONRequest builds a request with an optional JSON body.
func NewJSONRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
