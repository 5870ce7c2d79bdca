package memory

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

	"github.com/ent0n29/recall/internal/reliability"
)

// HTTPStore talks to a remote mem0-style memory service over JSON/HTTP.
// The service owns fact extraction and deduplication; this adapter only
// moves messages and queries across the wire.
type HTTPStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

const httpStoreSearchRetries = 2

func NewHTTPStore(baseURL, apiKey string) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	Limit  int    `json:"limit"`
}

type searchResponse struct {
	Results []struct {
		ID        string    `json:"id"`
		Memory    string    `json:"memory"`
		Score     float64   `json:"score"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"results"`
}

type addRequest struct {
	Messages []Message `json:"messages"`
	UserID   string    `json:"user_id"`
}

func (s *HTTPStore) Search(ctx context.Context, query, owner string, limit int) ([]Fact, error) {
	if limit <= 0 {
		return nil, nil
	}

	payload, err := json.Marshal(searchRequest{Query: query, UserID: owner, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	// Search is idempotent, so a short retry on retryable statuses is safe.
	var lastErr error
	for attempt := 0; attempt <= httpStoreSearchRetries; attempt++ {
		if attempt > 0 {
			backoff := reliability.ExponentialBackoff(attempt-1, 100*time.Millisecond, time.Second)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, status, err := s.post(ctx, "/search", payload)
		if err != nil {
			lastErr = err
			continue
		}
		if status < 200 || status >= 300 {
			lastErr = fmt.Errorf("memory service status %d: %s", status, truncateBody(body))
			if !reliability.IsRetryableHTTPStatus(status) {
				return nil, lastErr
			}
			continue
		}

		var res searchResponse
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, fmt.Errorf("decode search response: %w", err)
		}
		facts := make([]Fact, 0, len(res.Results))
		for _, r := range res.Results {
			facts = append(facts, Fact{
				ID:        r.ID,
				OwnerID:   owner,
				Text:      r.Memory,
				Score:     r.Score,
				CreatedAt: r.CreatedAt,
			})
		}
		return facts, nil
	}
	return nil, lastErr
}

func (s *HTTPStore) Add(ctx context.Context, messages []Message, owner string) error {
	payload, err := json.Marshal(addRequest{Messages: messages, UserID: owner})
	if err != nil {
		return fmt.Errorf("marshal add request: %w", err)
	}

	body, status, err := s.post(ctx, "/memories", payload)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("memory service status %d: %s", status, truncateBody(body))
	}
	return nil
}

func (s *HTTPStore) Clear(ctx context.Context, owner string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/memories/"+url.PathEscape(owner), nil)
	if err != nil {
		return fmt.Errorf("create clear request: %w", err)
	}
	s.setHeaders(req)

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send clear request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("memory service status %d: %s", res.StatusCode, truncateBody(body))
	}
	return nil
}

func (s *HTTPStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPStore) post(ctx context.Context, path string, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(req)

	res, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return body, res.StatusCode, nil
}

func (s *HTTPStore) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}

func truncateBody(body []byte) string {
	const max = 256
	text := strings.TrimSpace(string(body))
	if len(text) > max {
		return text[:max]
	}
	return text
}
