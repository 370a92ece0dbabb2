package reranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"legal-ai-cuda/internal/domain"
	"legal-ai-cuda/internal/vectorindex"
)

func candidates() []vectorindex.ScoredChunk {
	return []vectorindex.ScoredChunk{
		{Chunk: domain.Chunk{DocID: "a", Content: "a"}, Score: 0.9},
		{Chunk: domain.Chunk{DocID: "b", Content: "b"}, Score: 0.5},
	}
}

func TestRerank_ReordersByServerScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rerankResponse{Scores: []float64{0.1, 0.8}})
	}))
	defer srv.Close()

	r := NewHTTPReranker(srv.URL, zap.NewNop())
	out, err := r.Rerank(context.Background(), "q", candidates())
	require.NoError(t, err)
	require.Equal(t, "b", out[0].Chunk.DocID)
	require.Equal(t, "a", out[1].Chunk.DocID)
}

func TestRerank_DegradesToPassThroughOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewHTTPReranker(srv.URL, zap.NewNop())
	in := candidates()
	out, err := r.Rerank(context.Background(), "q", in)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestRerank_EmptyCandidatesNoOp(t *testing.T) {
	r := NewHTTPReranker("http://unused", zap.NewNop())
	out, err := r.Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Empty(t, out)
}
