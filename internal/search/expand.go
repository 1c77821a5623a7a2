package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ahart-dev/vaultmind/internal/errs"
)

// DefaultMaxVariants bounds how many alternate phrasings Expand asks the
// gateway for, not counting the original query.
const DefaultMaxVariants = 3

// Expander generates alternate phrasings of a query via an LLM gateway's
// chat-completions endpoint (spec §4.11 `query` mode: "expand-query
// (LLM)"). The teacher's QueryExpander is a code-synonym substitution table
// with no LLM call — a different shape entirely — so this type is modeled
// instead on Reranker's HTTP-to-gateway plumbing (same request/response
// wire shapes, reused from reranker.go since both live in this package).
type Expander struct {
	httpClient  *http.Client
	gatewayURL  string
	model       string
	timeout     time.Duration
	maxVariants int
}

// NewExpander builds an Expander targeting an LLM gateway's chat-completions
// endpoint at gatewayURL.
func NewExpander(gatewayURL, model string, timeout time.Duration, maxVariants int) *Expander {
	if maxVariants <= 0 {
		maxVariants = DefaultMaxVariants
	}
	return &Expander{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        8,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		gatewayURL:  gatewayURL,
		model:       model,
		timeout:     timeout,
		maxVariants: maxVariants,
	}
}

// Expand asks the gateway for up to maxVariants alternate phrasings of
// query and returns them alongside the original, which is always first so
// callers can weight it separately (spec: "RRF across variants (original
// weighted ×2)"). On any failure it returns the original query alone plus
// the error, so a caller can log and fall back to plain hybrid search.
func (e *Expander) Expand(ctx context.Context, query string) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return []string{query}, nil
	}

	prompt := fmt.Sprintf(
		"Rewrite the following search query as %d alternate phrasings that preserve its meaning "+
			"but vary vocabulary and structure. Reply with exactly one phrasing per line, no "+
			"numbering, no commentary.\n\nQuery: %s",
		e.maxVariants, query,
	)

	reqBody := chatCompletionsRequest{
		Model:    e.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return []string{query}, errs.New(errs.KindLLMAnswer, "marshal expand request", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, e.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return []string{query}, errs.New(errs.KindLLMAnswer, "build expand request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return []string{query}, errs.New(errs.KindLLMAnswer, "expand request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return []string{query}, errs.New(errs.KindLLMAnswer, fmt.Sprintf("expand gateway status %d: %s", resp.StatusCode, string(body)), nil)
	}

	var decoded chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return []string{query}, errs.New(errs.KindLLMAnswer, "decode expand response", err)
	}
	if len(decoded.Choices) == 0 {
		return []string{query}, errs.New(errs.KindLLMAnswer, "expand response had no choices", nil)
	}

	variants := []string{query}
	seen := map[string]bool{strings.ToLower(query): true}
	for _, line := range strings.Split(decoded.Choices[0].Message.Content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key := strings.ToLower(line)
		if seen[key] {
			continue
		}
		seen[key] = true
		variants = append(variants, line)
		if len(variants) > e.maxVariants {
			break
		}
	}
	return variants, nil
}
