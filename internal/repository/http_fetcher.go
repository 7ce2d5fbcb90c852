package repository

import (
	"context"
	"strings"
	"time"

	xhttp "SignalBoard/pkg/http"
)

// HTTPFetcher reads JSON resources from the upstream static host.
type HTTPFetcher struct {
	client   *xhttp.Client
	baseURL  string
	attempts int
	backoff  time.Duration
}

// NewHTTPFetcher creates a fetcher for baseURL. attempts counts the first try.
func NewHTTPFetcher(client *xhttp.Client, baseURL string, attempts int, backoff time.Duration) *HTTPFetcher {
	if attempts < 1 {
		attempts = 1
	}
	return &HTTPFetcher{
		client:   client,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		attempts: attempts,
		backoff:  backoff,
	}
}

// Fetch returns the raw body at path. Any non-2xx status is a failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return f.client.GetBytesWithRetry(ctx, f.baseURL+path, f.attempts, f.backoff)
}
