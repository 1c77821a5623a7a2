// Package embed provides the HTTP client that turns chunk text into
// embedding vectors.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ahart-dev/vaultmind/internal/errs"
)

// MaxInputChars is the prefix window sent to the embedding host; longer
// chunk text is truncated before hashing and before the request body is
// built.
const MaxInputChars = 8000

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Client is an HTTP embedding client with a connection-pooled transport.
// It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport

	mu      sync.RWMutex
	host    string
	model   string
	timeout time.Duration
}

// NewClient builds a Client targeting host with the given model and
// per-request timeout.
func NewClient(host, model string, timeout time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     30 * time.Second,
	}
	return &Client{
		httpClient: &http.Client{Transport: transport},
		transport:  transport,
		host:       host,
		model:      model,
		timeout:    timeout,
	}
}

// Retarget substitutes host for the duration of subsequent calls, e.g. to
// point an indexing job at a GPU-backed embedding host. It is per-client
// state, intended for a client instance scoped to a single job.
func (c *Client) Retarget(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.host = host
}

// Embed returns the embedding vector for text, truncated to MaxInputChars
// before being sent. The HTTP call runs in a goroutine so ctx cancellation
// can abandon it immediately rather than waiting for the transport's own
// timeout.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(text) > MaxInputChars {
		text = text[:MaxInputChars]
	}
	if strings.TrimSpace(text) == "" {
		return nil, errs.New(errs.KindEmbeddingUnavail, "empty input text", nil)
	}

	c.mu.RLock()
	host, model, timeout := c.host, c.model, c.timeout
	c.mu.RUnlock()

	reqBody, err := json.Marshal(embedRequest{Model: model, Input: text})
	if err != nil {
		return nil, errs.New(errs.KindEmbeddingUnavail, "marshal request", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, host+"/api/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, errs.New(errs.KindEmbeddingUnavail, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	type result struct {
		vec []float32
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			resultCh <- result{nil, err}
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			resultCh <- result{nil, fmt.Errorf("embedding host returned %d: %s", resp.StatusCode, string(body))}
			return
		}

		var parsed embedResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			resultCh <- result{nil, fmt.Errorf("decode embedding response: %w", err)}
			return
		}
		if len(parsed.Embeddings) == 0 {
			resultCh <- result{nil, fmt.Errorf("embedding host returned no vectors")}
			return
		}
		resultCh <- result{parsed.Embeddings[0], nil}
	}()

	select {
	case <-timeoutCtx.Done():
		return nil, errs.New(errs.KindEmbeddingUnavail, "embedding request cancelled or timed out", timeoutCtx.Err())
	case r := <-resultCh:
		if r.err != nil {
			return nil, errs.New(errs.KindEmbeddingUnavail, "embedding request failed", r.err)
		}
		return r.vec, nil
	}
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}
