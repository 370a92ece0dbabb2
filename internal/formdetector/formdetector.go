// Package formdetector implements the form-attachment detector (spec §4.H):
// given the documents that contributed to an answer, emit download
// identifiers for any declared form files.
package formdetector

import (
	"context"
	"fmt"

	"legal-ai-cuda/internal/domain"
)

// FormAttachment is one downloadable form reference surfaced in the answer
// envelope's form_attachments list.
type FormAttachment struct {
	DocumentID     string `json:"document_id"`
	DocumentTitle  string `json:"document_title"`
	FormFilename   string `json:"form_filename"`
	FormURL        string `json:"form_url"`
	CollectionID   string `json:"collection_id"`
}

// FormResolver resolves a declared form filename to a URL or path the
// external file-serving collaborator can expand. Two implementations:
// local corpus-store paths (default) and MinIO object URLs.
type FormResolver interface {
	Resolve(ctx context.Context, collectionID, docID, filename string) (string, error)
}

// Detector emits FormAttachments for documents with HasForm=true.
type Detector struct {
	resolver FormResolver
}

// New builds a Detector using resolver to turn filenames into URLs.
func New(resolver FormResolver) *Detector {
	return &Detector{resolver: resolver}
}

// Detect builds the form_attachments list for the documents that
// contributed chunks to the answer, silently skipping any declared filename
// that fails to resolve (not fatal to the turn; the error is never returned).
func (d *Detector) Detect(ctx context.Context, docs []domain.Document) ([]FormAttachment, error) {
	var out []FormAttachment
	for _, doc := range docs {
		if !doc.Metadata.HasForm {
			continue
		}
		for _, filename := range doc.Metadata.FormFilenames {
			url, err := d.resolver.Resolve(ctx, doc.CollectionID, doc.DocID, filename)
			if err != nil {
				continue
			}
			out = append(out, FormAttachment{
				DocumentID:    doc.DocID,
				DocumentTitle: doc.Title,
				FormFilename:  filename,
				FormURL:       url,
				CollectionID:  doc.CollectionID,
			})
		}
	}
	return out, nil
}

// AugmentAnswer appends a trailing reference line to answer when at least
// one form attachment exists (spec §4.H).
func AugmentAnswer(answer string, attachments []FormAttachment) string {
	if len(attachments) == 0 {
		return answer
	}
	if len(attachments) == 1 {
		return answer + fmt.Sprintf("\n\nBiểu mẫu đính kèm: %s", attachments[0].FormFilename)
	}
	return answer + fmt.Sprintf("\n\n%d biểu mẫu đính kèm.", len(attachments))
}
