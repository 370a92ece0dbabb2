// Package vectorindex implements the embedding-backed passage store (spec
// §4.B): filtered cosine-similarity search over a collection's chunks.
package vectorindex

import (
	"context"
	"math"
	"sort"

	"legal-ai-cuda/internal/domain"
	"legal-ai-cuda/internal/embedder"
)

// RecognizedFilterKeys are the only filter keys the index understands;
// anything else is ignored (spec §4.B).
var RecognizedFilterKeys = map[string]bool{
	"exact_title": true,
	"doc_id":      true,
	"agency":      true,
}

// ScoredChunk is one search result: a chunk plus its cosine similarity.
type ScoredChunk struct {
	Chunk domain.Chunk
	Score float64
}

// Index is the contract the router, orchestrator and reranker use to reach
// the vector store. Implementations: memory (default, in-process) and
// pgvector (Postgres-backed, for production scale).
type Index interface {
	// Search returns chunks from collectionID ordered by descending score,
	// ties broken by chunk_index ascending. filters degrades to unfiltered
	// when empty or containing only unrecognized keys.
	Search(ctx context.Context, collectionID, queryText string, k int, filters domain.SmartFilters) ([]ScoredChunk, error)
}

// MemoryIndex is an in-process, embedding-backed passage store. It holds an
// immutable snapshot of chunks per collection, swapped atomically by the
// offline rebuild tool via SwapSnapshot.
type MemoryIndex struct {
	embedder embedder.Client
	snapshot atomicSnapshot
}

type snapshotData struct {
	byCollection map[string][]domain.Chunk
}

// NewMemoryIndex builds an index over the given per-collection chunk sets.
func NewMemoryIndex(embedder embedder.Client, byCollection map[string][]domain.Chunk) *MemoryIndex {
	idx := &MemoryIndex{embedder: embedder}
	idx.snapshot.Store(&snapshotData{byCollection: byCollection})
	return idx
}

// SwapSnapshot atomically replaces the served chunk set, used by the
// offline build tool to publish a freshly rebuilt index without downtime.
func (m *MemoryIndex) SwapSnapshot(byCollection map[string][]domain.Chunk) {
	m.snapshot.Store(&snapshotData{byCollection: byCollection})
}

// Search embeds queryText and scores it against every chunk of
// collectionID, applying recognized filters and returning the top k.
func (m *MemoryIndex) Search(ctx context.Context, collectionID, queryText string, k int, filters domain.SmartFilters) ([]ScoredChunk, error) {
	queryEmbedding, err := m.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	snap := m.snapshot.Load()
	chunks := snap.byCollection[collectionID]

	effective := effectiveFilters(filters)
	candidates := applyFilters(chunks, effective)

	results := scoreAndSort(queryEmbedding, candidates)
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// effectiveFilters drops unrecognized keys and all-empty value lists,
// so an all-unknown filter map degrades to unfiltered (spec §4.B).
func effectiveFilters(filters domain.SmartFilters) domain.SmartFilters {
	if len(filters) == 0 {
		return nil
	}
	out := domain.SmartFilters{}
	for k, v := range filters {
		if RecognizedFilterKeys[k] && len(v) > 0 {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func applyFilters(chunks []domain.Chunk, filters domain.SmartFilters) []domain.Chunk {
	if len(filters) == 0 {
		return chunks
	}

	out := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if matchesFilters(c, filters) {
			out = append(out, c)
		}
	}
	return out
}

func matchesFilters(c domain.Chunk, filters domain.SmartFilters) bool {
	if titles, ok := filters["exact_title"]; ok {
		if !containsAny(titles, c.DocTitle) {
			return false
		}
	}
	if docIDs, ok := filters["doc_id"]; ok {
		if !containsAny(docIDs, c.DocID) {
			return false
		}
	}
	if agencies, ok := filters["agency"]; ok {
		if !containsAny(agencies, c.Metadata.IssuingAgency) && !containsAny(agencies, c.Metadata.ExecutingAgency) {
			return false
		}
	}
	return true
}

func containsAny(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func scoreAndSort(queryEmbedding []float32, chunks []domain.Chunk) []ScoredChunk {
	results := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, ScoredChunk{Chunk: c, Score: CosineSimilarity(queryEmbedding, c.Embedding)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ChunkIndex < results[j].Chunk.ChunkIndex
	})
	return results
}

// CosineSimilarity computes the cosine similarity between two embedding
// vectors. Mismatched lengths or zero vectors score zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ensure interface compliance
var _ Index = (*MemoryIndex)(nil)
