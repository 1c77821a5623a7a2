package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahart-dev/vaultmind/internal/errs"
)

// RerankCandidate is one document posed to the reranker for a relevance
// judgment.
type RerankCandidate struct {
	Path    string
	Excerpt string
}

// chatMessage is one entry in an LLM gateway chat-completions request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Reranker poses each candidate as an individual yes/no relevance prompt to
// an LLM gateway's chat-completions endpoint, unlike the teacher's
// cross-encoder reranker, which posts every document in one call to a
// dedicated /rerank endpoint — this spec's reranker has no such endpoint to
// call, only a general chat-completions gateway, so relevance judgment has
// to be elicited one candidate at a time.
type Reranker struct {
	httpClient  *http.Client
	gatewayURL  string
	model       string
	timeout     time.Duration
	concurrency int
}

// NewReranker builds a Reranker targeting an LLM gateway's chat-completions
// endpoint at gatewayURL.
func NewReranker(gatewayURL, model string, timeout time.Duration, concurrency int) *Reranker {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Reranker{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		gatewayURL:  gatewayURL,
		model:       model,
		timeout:     timeout,
		concurrency: concurrency,
	}
}

// Rerank scores each candidate's relevance to query in [0,1], bounded by a
// buffered-channel semaphore (concurrency workers at a time, grounded on
// the teacher's parallelSubSearch semaphore+errgroup pattern in
// multi_query.go). A candidate whose LLM call fails scores 0 rather than
// failing the whole request — one flaky gateway call should degrade that
// candidate's ranking, not the search.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []RerankCandidate) []float64 {
	scores := make([]float64, len(candidates))
	if len(candidates) == 0 {
		return scores
	}

	sem := make(chan struct{}, r.concurrency)
	g, gctx := errgroup.WithContext(ctx)

	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return nil
			}

			score, err := r.judge(gctx, query, c)
			if err != nil {
				slog.Debug("rerank_candidate_failed",
					slog.String("path", c.Path),
					slog.String("error", err.Error()))
				score = 0
			}
			scores[i] = score
			return nil
		})
	}
	_ = g.Wait() // per-candidate errors are swallowed above; nothing to propagate

	return scores
}

// judge asks the gateway a single yes/no relevance question about one
// candidate and converts its answer into a 0/1 score.
func (r *Reranker) judge(ctx context.Context, query string, c RerankCandidate) (float64, error) {
	prompt := fmt.Sprintf(
		"Query: %s\n\nDocument excerpt:\n%s\n\nIs this document relevant to the query? Answer with exactly one word: yes or no.",
		query, c.Excerpt,
	)

	reqBody := chatCompletionsRequest{
		Model: r.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return 0, errs.New(errs.KindLLMRerank, "marshal rerank request", err).WithPath(c.Path)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, r.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return 0, errs.New(errs.KindLLMRerank, "build rerank request", err).WithPath(c.Path)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, errs.New(errs.KindLLMRerank, "rerank request failed", err).WithPath(c.Path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, errs.New(errs.KindLLMRerank, fmt.Sprintf("rerank gateway status %d: %s", resp.StatusCode, string(body)), nil).WithPath(c.Path)
	}

	var decoded chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, errs.New(errs.KindLLMRerank, "decode rerank response", err).WithPath(c.Path)
	}
	if len(decoded.Choices) == 0 {
		return 0, errs.New(errs.KindLLMRerank, "rerank response had no choices", nil).WithPath(c.Path)
	}

	answer := strings.ToLower(strings.TrimSpace(decoded.Choices[0].Message.Content))
	if strings.HasPrefix(answer, "yes") {
		return 1, nil
	}
	return 0, nil
}
