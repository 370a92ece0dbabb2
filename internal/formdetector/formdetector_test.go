package formdetector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"legal-ai-cuda/internal/domain"
)

type stubResolver struct {
	fail map[string]bool
}

func (s stubResolver) Resolve(_ context.Context, collectionID, docID, filename string) (string, error) {
	if s.fail[filename] {
		return "", errors.New("not found")
	}
	return "file://" + collectionID + "/" + docID + "/" + filename, nil
}

func TestDetect_EmitsAttachmentsForDocumentsWithForms(t *testing.T) {
	d := New(stubResolver{})
	docs := []domain.Document{
		{CollectionID: "ho_tich", DocID: "khai_sinh", Title: "Đăng ký khai sinh",
			Metadata: domain.DocumentMetadata{HasForm: true, FormFilenames: []string{"form1.pdf"}}},
		{CollectionID: "ho_tich", DocID: "ket_hon", Title: "Đăng ký kết hôn",
			Metadata: domain.DocumentMetadata{HasForm: false}},
	}
	out, err := d.Detect(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "khai_sinh", out[0].DocumentID)
}

func TestDetect_SkipsUnresolvableFilenames(t *testing.T) {
	d := New(stubResolver{fail: map[string]bool{"missing.pdf": true}})
	docs := []domain.Document{
		{CollectionID: "ho_tich", DocID: "khai_sinh",
			Metadata: domain.DocumentMetadata{HasForm: true, FormFilenames: []string{"missing.pdf"}}},
	}
	out, err := d.Detect(context.Background(), docs)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestAugmentAnswer(t *testing.T) {
	require.Equal(t, "answer", AugmentAnswer("answer", nil))
	out := AugmentAnswer("answer", []FormAttachment{{FormFilename: "form1.pdf"}})
	require.Contains(t, out, "form1.pdf")
	out2 := AugmentAnswer("answer", []FormAttachment{{}, {}})
	require.Contains(t, out2, "2 biểu mẫu")
}
