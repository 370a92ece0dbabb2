package contextasm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"legal-ai-cuda/internal/apperr"
	"legal-ai-cuda/internal/domain"
)

type stubStore struct {
	doc domain.Document
}

func (s stubStore) ListCollections() ([]domain.Collection, error) { return nil, nil }
func (s stubStore) ListDocuments(string) ([]string, error)        { return nil, nil }
func (s stubStore) LoadDocument(string, string) (domain.Document, error) { return s.doc, nil }
func (s stubStore) LoadRouterQuestions(string) ([]domain.RouterQuestion, error) { return nil, nil }
func (s stubStore) ResolveFormPath(string, string, string) (string, error) { return "", nil }

func sampleDoc() domain.Document {
	return domain.Document{
		CollectionID: "ho_tich", DocID: "khai_sinh", Title: "Đăng ký khai sinh",
		Metadata: domain.DocumentMetadata{
			IssuingAgency: "UBND xã", ExecutingAgency: "UBND xã",
			FeeText: "Miễn phí", FeeVND: 0, ProcessingTime: "1 ngày", HasForm: true,
		},
		Chunks: []domain.Chunk{
			{ChunkIndex: 0, Content: "Hồ sơ gồm giấy chứng sinh."},
			{ChunkIndex: 1, Content: "Nộp tại UBND xã nơi cư trú."},
		},
	}
}

func TestAssemble_MarksNucleusAndIncludesMetadata(t *testing.T) {
	doc := sampleDoc()
	a := New(stubStore{doc: doc}, 8192)

	nucleus := domain.Chunk{CollectionID: "ho_tich", DocID: "khai_sinh", Content: "Nộp tại UBND xã nơi cư trú."}
	out, err := a.Assemble(nucleus, "thủ tục khai sinh", 100)
	require.NoError(t, err)
	require.Contains(t, out, NucleusBeginTag)
	require.Contains(t, out, NucleusEndTag)
	require.Contains(t, out, "agency: UBND xã")
	require.Contains(t, out, "has_form: true")
}

func TestAssemble_FeeIntentAddsExemptPrelude(t *testing.T) {
	doc := sampleDoc()
	a := New(stubStore{doc: doc}, 8192)

	nucleus := domain.Chunk{CollectionID: "ho_tich", DocID: "khai_sinh", Content: "Nộp tại UBND xã nơi cư trú."}
	out, err := a.Assemble(nucleus, "lệ phí đăng ký khai sinh là bao nhiêu", 100)
	require.NoError(t, err)
	require.Contains(t, out, "miễn phí cho thủ tục chính")
}

func TestAssemble_NucleusNotFoundVerbatimPrependsMarkedCopy(t *testing.T) {
	doc := sampleDoc()
	a := New(stubStore{doc: doc}, 8192)

	nucleus := domain.Chunk{CollectionID: "ho_tich", DocID: "khai_sinh", Content: "văn bản không khớp chính xác"}
	out, err := a.Assemble(nucleus, "q", 100)
	require.NoError(t, err)
	require.Contains(t, out, NucleusBeginTag+"\nvăn bản không khớp chính xác\n"+NucleusEndTag)
}

func TestAssemble_PromptTooLargeWhenBudgetNonPositive(t *testing.T) {
	doc := sampleDoc()
	a := New(stubStore{doc: doc}, 300)

	nucleus := domain.Chunk{CollectionID: "ho_tich", DocID: "khai_sinh", Content: "x"}
	_, err := a.Assemble(nucleus, "q", 100)
	require.ErrorIs(t, err, apperr.ErrPromptTooLarge)
}
