package featurestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPStore is a Client that talks to a feature store over HTTP, such as the
// bundled dev store server (cmd/devstore).
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

// putRequest is the JSON body of an upsert.
type putRequest struct {
	Features []Feature `json:"features"`
}

// getResponse is the JSON body of a point read.
type getResponse struct {
	Key      string    `json:"key"`
	Features []Feature `json:"features"`
}

// NewHTTPStore creates a client for the store at baseURL.
func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Put upserts the feature list under key.
func (s *HTTPStore) Put(ctx context.Context, key string, features []Feature) error {
	body, err := json.Marshal(putRequest{Features: features})
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.recordURL(key), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("put %s: store returned %s", key, resp.Status)
	}
	return nil
}

// Get returns the feature list stored under key, or ErrNotFound.
func (s *HTTPStore) Get(ctx context.Context, key string) ([]Feature, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.recordURL(key), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: store returned %s", key, resp.Status)
	}

	var out getResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response for %s: %w", key, err)
	}
	return out.Features, nil
}

// Close is a no-op; the underlying http.Client needs no teardown.
func (s *HTTPStore) Close() error { return nil }

func (s *HTTPStore) recordURL(key string) string {
	return s.baseURL + "/v1/records/" + url.PathEscape(key)
}

// drainAndClose fully reads the body so the connection can be reused.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
