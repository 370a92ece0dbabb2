package corpusstore

import (
	"testing/fstest"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"testing"
)

func fixture() fstest.MapFS {
	return fstest.MapFS{
		"registry/collections.json": &fstest.MapFile{Data: []byte(`{
			"collections": [
				{"id": "ho_tich", "display_name": "Hộ tịch", "document_count": 1, "last_updated": "2026-01-01T00:00:00Z"},
				{"id": "empty_col", "display_name": "Trống", "document_count": 0, "last_updated": "2026-01-01T00:00:00Z"}
			]
		}`)},
		"collections/ho_tich/documents/khai_sinh/content.json": &fstest.MapFile{Data: []byte(`{
			"title": "Đăng ký khai sinh",
			"metadata": {"issuing_agency": "UBND xã", "fee_text": "Miễn phí", "fee_vnd": 0, "has_form": true, "form_filenames": ["form1.pdf"]},
			"chunks": [
				{"content": "Hồ sơ cần chuẩn bị...", "chunk_index": 0, "source_path": "khai_sinh.docx"},
				{"content": "Thủ tục thực hiện...", "chunk_index": 1, "source_path": "khai_sinh.docx"}
			]
		}`)},
		"collections/ho_tich/documents/khai_sinh/forms/form1.pdf": &fstest.MapFile{Data: []byte("pdfdata")},
		"collections/ho_tich/router_data/questions.json": &fstest.MapFile{Data: []byte(`{
			"questions": [
				{"id": "q1", "text": "Thủ tục đăng ký khai sinh cần giấy tờ gì?", "doc_id": "khai_sinh", "type": "main", "priority_score": 1.0, "status": "active"}
			]
		}`)},
	}
}

func TestListCollections(t *testing.T) {
	store := New(fixture(), zap.NewNop())
	cols, err := store.ListCollections()
	require.NoError(t, err)
	require.Len(t, cols, 2)
	require.Equal(t, "active", string(cols[0].Status))
	require.Equal(t, "empty", string(cols[1].Status))
}

func TestLoadDocument(t *testing.T) {
	store := New(fixture(), zap.NewNop())
	doc, err := store.LoadDocument("ho_tich", "khai_sinh")
	require.NoError(t, err)
	require.Equal(t, "Đăng ký khai sinh", doc.Title)
	require.Len(t, doc.Chunks, 2)
	require.Equal(t, 0, doc.Chunks[0].ChunkIndex)
	require.Equal(t, 1, doc.Chunks[1].ChunkIndex)
	require.True(t, doc.Metadata.HasForm)
}

func TestLoadDocument_NotFound(t *testing.T) {
	store := New(fixture(), zap.NewNop())
	_, err := store.LoadDocument("ho_tich", "no_such_doc")
	require.Error(t, err)
}

func TestLoadRouterQuestions_CurrentFormat(t *testing.T) {
	store := New(fixture(), zap.NewNop())
	qs, err := store.LoadRouterQuestions("ho_tich")
	require.NoError(t, err)
	require.Len(t, qs, 1)
	require.Equal(t, "khai_sinh", qs[0].DocID)
}

func TestResolveFormPath(t *testing.T) {
	store := New(fixture(), zap.NewNop())
	p, err := store.ResolveFormPath("ho_tich", "khai_sinh", "form1.pdf")
	require.NoError(t, err)
	require.Contains(t, p, "form1.pdf")

	_, err = store.ResolveFormPath("ho_tich", "khai_sinh", "missing.pdf")
	require.Error(t, err)
}
