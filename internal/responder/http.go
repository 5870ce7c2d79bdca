package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/recall/internal/reliability"
)

// HTTPResponder forwards requests to a completion sidecar over JSON/HTTP.
// The endpoint receives the full Request and answers {"text": "..."}.
type HTTPResponder struct {
	url    string
	client *http.Client
}

const httpResponderRetries = 1

func NewHTTPResponder(url string) *HTTPResponder {
	return &HTTPResponder{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (r *HTTPResponder) Complete(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= httpResponderRetries; attempt++ {
		if attempt > 0 {
			backoff := reliability.ExponentialBackoff(attempt-1, 250*time.Millisecond, 2*time.Second)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, status, err := r.post(ctx, payload)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}
		if status < 200 || status >= 300 {
			lastErr = fmt.Errorf("responder status %d", status)
			if !reliability.IsRetryableHTTPStatus(status) {
				return "", lastErr
			}
			continue
		}
		return text, nil
	}
	return "", lastErr
}

func (r *HTTPResponder) post(ctx context.Context, payload []byte) (string, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := r.client.Do(httpReq)
	if err != nil {
		return "", 0, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", res.StatusCode, nil
	}

	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		// Plain-text endpoints are accepted as-is.
		text := strings.TrimSpace(string(body))
		if text == "" {
			return "", 0, fmt.Errorf("empty response body")
		}
		return text, res.StatusCode, nil
	}
	if strings.TrimSpace(obj.Text) == "" {
		return "", 0, fmt.Errorf("response missing text field")
	}
	return obj.Text, res.StatusCode, nil
}
