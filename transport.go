package docvault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ServerState is the canonical server-side representation returned with a
// conflict response.
type ServerState struct {
	Body      json.RawMessage `json:"document"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SubmitResult is the three-way outcome of a submission. A nil-error result
// with Conflict=false means the server accepted the action; Conflict=true
// carries the server's state for resolution. Everything else is an error and
// goes down the retry path.
type SubmitResult struct {
	Conflict bool
	Server   *ServerState
}

// Transport delivers decrypted, serialized actions to the server. The
// idempotency key must be attached to the request so the server can collapse
// duplicate retries of the same logical operation.
//
// Implementations must not retry internally: the queue owns the retry state
// machine, and double retry layers would skew the backoff bookkeeping.
type Transport interface {
	Submit(ctx context.Context, action Action, idempotencyKey string) (*SubmitResult, error)
}

// HTTPTransport submits actions to a REST endpoint as JSON. The idempotency
// key travels in the Idempotency-Key header; 2xx means accepted, 409 carries
// the canonical server state, anything else is a retryable failure.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
	token    func() string
}

// HTTPOption customizes an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.client = c }
}

// WithBearerToken attaches Authorization: Bearer headers using the supplied
// function, called per request so rotated tokens are picked up.
func WithBearerToken(fn func() string) HTTPOption {
	return func(t *HTTPTransport) { t.token = fn }
}

// NewHTTPTransport creates a transport posting to the given endpoint URL.
func NewHTTPTransport(endpoint string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *HTTPTransport) Submit(ctx context.Context, action Action, idempotencyKey string) (*SubmitResult, error) {
	payload, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if t.token != nil {
		if tok := t.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit action: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &SubmitResult{}, nil
	case resp.StatusCode == http.StatusConflict:
		var state ServerState
		if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
			return nil, fmt.Errorf("decode conflict response: %w", err)
		}
		return &SubmitResult{Conflict: true, Server: &state}, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, body)
	}
}
