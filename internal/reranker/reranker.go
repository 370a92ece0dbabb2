// Package reranker implements the cross-encoder reranking step (spec §4.G):
// given the vector index's top-K candidates, re-score and re-sort them with
// a cross-encoder model, degrading to pass-through order when the model is
// unavailable.
package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"legal-ai-cuda/internal/apperr"
	"legal-ai-cuda/internal/vectorindex"
)

// degradedTotal counts reranker calls that fell back to vector order.
var degradedTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "legal_rag_reranker_degraded_total",
	Help: "Reranker calls that degraded to pass-through vector order.",
})

func init() {
	prometheus.MustRegister(degradedTotal)
}

// Reranker re-sorts vector index candidates by cross-encoder relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []vectorindex.ScoredChunk) ([]vectorindex.ScoredChunk, error)
}

// HTTPReranker calls an external cross-encoder scoring endpoint, following
// the teacher's Ollama-HTTP-client idiom (embedding_service.go): JSON
// request/response over a plain http.Client.
type HTTPReranker struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPReranker builds a reranker client for the given scoring endpoint.
func NewHTTPReranker(baseURL string, logger *zap.Logger) *HTTPReranker {
	return &HTTPReranker{baseURL: baseURL, httpClient: &http.Client{Timeout: 10 * time.Second}, logger: logger}
}

type rerankPair struct {
	Query   string `json:"query"`
	Content string `json:"content"`
}

type rerankRequest struct {
	Pairs []rerankPair `json:"pairs"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// Rerank scores (query, chunk_content) pairs with the cross-encoder and
// re-sorts descending, breaking ties by the original vector score. On any
// failure it logs and returns candidates unchanged (degraded mode, spec §4.G).
func (r *HTTPReranker) Rerank(ctx context.Context, query string, candidates []vectorindex.ScoredChunk) ([]vectorindex.ScoredChunk, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	scores, err := r.score(ctx, query, candidates)
	if err != nil {
		degradedTotal.Inc()
		r.logger.Warn("reranker unavailable, passing through vector order",
			zap.Error(fmt.Errorf("%w: %v", apperr.ErrRerankerUnavailable, err)))
		return candidates, nil
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		x, y := order[a], order[b]
		if scores[x] != scores[y] {
			return scores[x] > scores[y]
		}
		return candidates[x].Score > candidates[y].Score
	})
	reranked := make([]vectorindex.ScoredChunk, len(candidates))
	for i, idx := range order {
		reranked[i] = candidates[idx]
		reranked[i].Score = scores[idx]
	}
	return reranked, nil
}

func (r *HTTPReranker) score(ctx context.Context, query string, candidates []vectorindex.ScoredChunk) ([]float64, error) {
	pairs := make([]rerankPair, len(candidates))
	for i, c := range candidates {
		pairs[i] = rerankPair{Query: query, Content: c.Chunk.Content}
	}

	body, err := json.Marshal(rerankRequest{Pairs: pairs})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank request failed with status %d", resp.StatusCode)
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Scores) != len(candidates) {
		return nil, fmt.Errorf("rerank response had %d scores for %d candidates", len(out.Scores), len(candidates))
	}
	return out.Scores, nil
}

var _ Reranker = (*HTTPReranker)(nil)
