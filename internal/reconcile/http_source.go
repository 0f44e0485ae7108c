package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPRecordSource fetches per-tick operation counts from an external
// explorer-style HTTP API. The endpoint is expected to serve
// GET {base}/v1/ticks/{tick}/count with a JSON body {"tick":..., "count":N}.
type HTTPRecordSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRecordSource creates a new HTTPRecordSource.
func NewHTTPRecordSource(baseURL string, client *http.Client) *HTTPRecordSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPRecordSource{baseURL: baseURL, client: client}
}

// Compile-time interface check.
var _ RecordSource = (*HTTPRecordSource)(nil)

type countResponse struct {
	Tick  string `json:"tick"`
	Count int64  `json:"count"`
}

// CountFor returns the externally recorded operation count for a tick.
func (s *HTTPRecordSource) CountFor(ctx context.Context, tick string) (int64, error) {
	endpoint := fmt.Sprintf("%s/v1/ticks/%s/count", s.baseURL, url.PathEscape(tick))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch count for %s: %w", tick, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read count response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out countResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("unmarshal count response: %w", err)
	}
	return out.Count, nil
}
