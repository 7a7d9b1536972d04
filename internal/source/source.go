// Package source contains the feed adapters that normalize heterogeneous
// public feeds into domain signals.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/couchcryptid/disaster-intel/internal/domain"
)

// Fetcher is one source adapter. Fetch returns the source's current items
// normalized into signals; it is called once per poll cycle and must respect
// the context deadline.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.Signal, error)
}

// Committer is implemented by fetchers that acknowledge their upstream only
// after the fetched batch has been processed. The poll loop calls
// CommitProcessed once the batch has been stored, giving at-least-once
// delivery for sources that support it.
type Committer interface {
	CommitProcessed(ctx context.Context) error
}

// get performs a GET against a feed URL and returns the response body.
// Non-200 responses are errors; the body is included for operator context.
func get(ctx context.Context, client *http.Client, url, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", source, err)
	}
	req.Header.Set("User-Agent", "disaster-intel/1.0")
	req.Header.Set("Accept", "application/geo+json, application/json, text/csv, */*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch: %w", source, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", source, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d: %s", source, resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
