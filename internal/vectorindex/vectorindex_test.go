package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"legal-ai-cuda/internal/domain"
)

type stubEmbedder struct {
	vectors map[string][]float32
}

func (s stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func chunk(docID, title string, idx int, vec []float32) domain.Chunk {
	return domain.Chunk{
		CollectionID: "ho_tich",
		DocID:        docID,
		DocTitle:     title,
		ChunkIndex:   idx,
		Content:      "content " + docID,
		Embedding:    vec,
		Metadata:     domain.DocumentMetadata{IssuingAgency: "UBND xã"},
	}
}

func TestSearch_OrdersByScoreDescendingThenChunkIndex(t *testing.T) {
	chunks := map[string][]domain.Chunk{
		"ho_tich": {
			chunk("khai_sinh", "Đăng ký khai sinh", 0, []float32{1, 0, 0}),
			chunk("khai_sinh", "Đăng ký khai sinh", 1, []float32{1, 0, 0}),
			chunk("ket_hon", "Đăng ký kết hôn", 0, []float32{0, 1, 0}),
		},
	}
	idx := NewMemoryIndex(stubEmbedder{}, chunks)

	results, err := idx.Search(context.Background(), "ho_tich", "khai sinh", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "khai_sinh", results[0].Chunk.DocID)
	require.Equal(t, 0, results[0].Chunk.ChunkIndex)
	require.Equal(t, "khai_sinh", results[1].Chunk.DocID)
	require.Equal(t, 1, results[1].Chunk.ChunkIndex)
	require.Equal(t, "ket_hon", results[2].Chunk.DocID)
}

func TestSearch_FilterByExactTitle(t *testing.T) {
	chunks := map[string][]domain.Chunk{
		"ho_tich": {
			chunk("khai_sinh", "Đăng ký khai sinh", 0, []float32{1, 0, 0}),
			chunk("ket_hon", "Đăng ký kết hôn", 0, []float32{1, 0, 0}),
		},
	}
	idx := NewMemoryIndex(stubEmbedder{}, chunks)

	results, err := idx.Search(context.Background(), "ho_tich", "q", 10, domain.SmartFilters{
		"exact_title": {"Đăng ký khai sinh"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "khai_sinh", results[0].Chunk.DocID)
}

func TestSearch_UnknownFilterKeysDegradeToUnfiltered(t *testing.T) {
	chunks := map[string][]domain.Chunk{
		"ho_tich": {
			chunk("khai_sinh", "Đăng ký khai sinh", 0, []float32{1, 0, 0}),
			chunk("ket_hon", "Đăng ký kết hôn", 0, []float32{1, 0, 0}),
		},
	}
	idx := NewMemoryIndex(stubEmbedder{}, chunks)

	filtered, err := idx.Search(context.Background(), "ho_tich", "q", 10, domain.SmartFilters{"bogus_key": {"x"}})
	require.NoError(t, err)
	unfiltered, err := idx.Search(context.Background(), "ho_tich", "q", 10, nil)
	require.NoError(t, err)
	require.Equal(t, len(unfiltered), len(filtered))
}

func TestSearch_LimitK(t *testing.T) {
	chunks := map[string][]domain.Chunk{
		"ho_tich": {
			chunk("a", "A", 0, []float32{1, 0, 0}),
			chunk("b", "B", 0, []float32{1, 0, 0}),
			chunk("c", "C", 0, []float32{1, 0, 0}),
		},
	}
	idx := NewMemoryIndex(stubEmbedder{}, chunks)

	results, err := idx.Search(context.Background(), "ho_tich", "q", 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestCosineSimilarity(t *testing.T) {
	require.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	require.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	require.Equal(t, 0.0, CosineSimilarity(nil, nil))
}
