// Package corpusstore reads the on-disk, collection-first corpus layout
// (spec §4.A): collections/<collection_id>/{metadata.json,
// documents/<doc_id>/{content.json, forms/*}, router_data/questions.json}
// plus registry/{collections.json, documents.json}.
//
// The store is read through an fs.FS so production wires os.DirFS and tests
// wire fstest.MapFS without touching disk, mirroring the teacher's
// preference for swappable, interface-shaped infrastructure.
package corpusstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"time"

	"go.uber.org/zap"

	"legal-ai-cuda/internal/apperr"
	"legal-ai-cuda/internal/domain"
)

// Store is the read-only contract the router, vector index builder, context
// assembler and form detector use to reach the corpus.
type Store interface {
	ListCollections() ([]domain.Collection, error)
	ListDocuments(collectionID string) ([]string, error)
	LoadDocument(collectionID, docID string) (domain.Document, error)
	LoadRouterQuestions(collectionID string) ([]domain.RouterQuestion, error)
	ResolveFormPath(collectionID, docID, filename string) (string, error)
}

// FSStore implements Store over an fs.FS rooted at the corpus directory.
type FSStore struct {
	fsys   fs.FS
	logger *zap.Logger
}

// New returns a Store rooted at fsys (e.g. os.DirFS(cfg.CorpusRoot)).
func New(fsys fs.FS, logger *zap.Logger) *FSStore {
	return &FSStore{fsys: fsys, logger: logger}
}

// on-disk DTOs, decoupled from the domain types so a schema change here
// doesn't ripple into routing/assembly logic.

type collectionMetaFile struct {
	DisplayName string `json:"display_name"`
}

type contentFile struct {
	Title    string                  `json:"title"`
	Metadata domain.DocumentMetadata `json:"metadata"`
	Chunks   []chunkDTO              `json:"chunks"`
}

type chunkDTO struct {
	Content    string    `json:"content"`
	ChunkIndex int       `json:"chunk_index"`
	SourcePath string    `json:"source_path"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// legacyQuestionsFile is the pre-migration router_questions.json shape.
type legacyQuestionsFile struct {
	Questions []legacyQuestionDTO `json:"questions"`
}

type legacyQuestionDTO struct {
	ID           string              `json:"id"`
	Question     string              `json:"question"`
	DocID        string              `json:"doc_id"`
	Type         string              `json:"type"`
	Keywords     []string            `json:"keywords"`
	SmartFilters domain.SmartFilters `json:"smart_filters"`
	Priority     float64             `json:"priority"`
	Deleted      bool                `json:"deleted"`
}

// questionsFile is the current questions.json shape.
type questionsFile struct {
	Questions []questionDTO `json:"questions"`
}

type questionDTO struct {
	ID            string              `json:"id"`
	Text          string              `json:"text"`
	DocID         string              `json:"doc_id"`
	Type          string              `json:"type"`
	Keywords      []string            `json:"keywords"`
	SmartFilters  domain.SmartFilters `json:"smart_filters"`
	PriorityScore float64             `json:"priority_score"`
	Status        string              `json:"status"`
	Embedding     []float32           `json:"embedding_vector,omitempty"`
}

type registryCollectionsFile struct {
	Collections []registryCollectionEntry `json:"collections"`
}

type registryCollectionEntry struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"display_name"`
	DocumentCount int       `json:"document_count"`
	LastUpdated   time.Time `json:"last_updated"`
}

// ListCollections reads registry/collections.json; status is derived from
// document_count rather than stored, since it's a pure function of it.
func (s *FSStore) ListCollections() ([]domain.Collection, error) {
	var reg registryCollectionsFile
	if err := s.readJSON("registry/collections.json", &reg); err != nil {
		return nil, err
	}

	out := make([]domain.Collection, 0, len(reg.Collections))
	for _, c := range reg.Collections {
		status := domain.CollectionActive
		if c.DocumentCount == 0 {
			status = domain.CollectionEmpty
		}
		out = append(out, domain.Collection{
			ID:            c.ID,
			DisplayName:   c.DisplayName,
			DocumentCount: c.DocumentCount,
			LastUpdated:   c.LastUpdated,
			Status:        status,
		})
	}
	return out, nil
}

// ListDocuments enumerates the documents/ subdirectories of a collection.
func (s *FSStore) ListDocuments(collectionID string) ([]string, error) {
	dir := path.Join("collections", collectionID, "documents")
	entries, err := fs.ReadDir(s.fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrNotFound, collectionID, err)
	}

	docIDs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			docIDs = append(docIDs, e.Name())
		}
	}
	sort.Strings(docIDs)
	return docIDs, nil
}

// LoadDocument loads a document's metadata and chunks, enforcing that
// chunk_index is dense and monotonically increasing (CorpusCorrupt otherwise).
func (s *FSStore) LoadDocument(collectionID, docID string) (domain.Document, error) {
	p := path.Join("collections", collectionID, "documents", docID, "content.json")

	var cf contentFile
	if err := s.readJSON(p, &cf); err != nil {
		return domain.Document{}, err
	}

	sort.Slice(cf.Chunks, func(i, j int) bool { return cf.Chunks[i].ChunkIndex < cf.Chunks[j].ChunkIndex })

	chunks := make([]domain.Chunk, len(cf.Chunks))
	for i, c := range cf.Chunks {
		if c.ChunkIndex != i {
			return domain.Document{}, fmt.Errorf("%w: %s/%s: chunk_index not dense at position %d (got %d)",
				apperr.ErrCorpusCorrupt, collectionID, docID, i, c.ChunkIndex)
		}
		chunks[i] = domain.Chunk{
			CollectionID: collectionID,
			DocID:        docID,
			DocTitle:     cf.Title,
			ChunkIndex:   c.ChunkIndex,
			SourcePath:   c.SourcePath,
			Content:      c.Content,
			Embedding:    c.Embedding,
			Metadata:     cf.Metadata,
		}
	}

	return domain.Document{
		CollectionID: collectionID,
		DocID:        docID,
		Title:        cf.Title,
		Metadata:     cf.Metadata,
		Chunks:       chunks,
	}, nil
}

// LoadRouterQuestions loads a collection's router questions, transparently
// accepting both the legacy router_questions.json and current questions.json
// shapes and tagging the source format for telemetry (spec §9).
func (s *FSStore) LoadRouterQuestions(collectionID string) ([]domain.RouterQuestion, error) {
	base := path.Join("collections", collectionID, "router_data")

	if ok, err := s.exists(path.Join(base, "questions.json")); err != nil {
		return nil, err
	} else if ok {
		var qf questionsFile
		if err := s.readJSON(path.Join(base, "questions.json"), &qf); err != nil {
			return nil, err
		}
		return normalizeCurrent(collectionID, qf), nil
	}

	if ok, err := s.exists(path.Join(base, "router_questions.json")); err != nil {
		return nil, err
	} else if ok {
		var lf legacyQuestionsFile
		if err := s.readJSON(path.Join(base, "router_questions.json"), &lf); err != nil {
			return nil, err
		}
		return normalizeLegacy(collectionID, lf), nil
	}

	s.logger.Warn("no router questions found for collection", zap.String("collection_id", collectionID))
	return nil, nil
}

func normalizeCurrent(collectionID string, qf questionsFile) []domain.RouterQuestion {
	out := make([]domain.RouterQuestion, 0, len(qf.Questions))
	for _, q := range qf.Questions {
		status := domain.QuestionActive
		if q.Status == string(domain.QuestionDeleted) {
			status = domain.QuestionDeleted
		}
		qtype := domain.QuestionMain
		if q.Type == string(domain.QuestionVariant) {
			qtype = domain.QuestionVariant
		}
		out = append(out, domain.RouterQuestion{
			ID:            q.ID,
			Text:          q.Text,
			CollectionID:  collectionID,
			DocID:         q.DocID,
			Type:          qtype,
			Keywords:      q.Keywords,
			SmartFilters:  q.SmartFilters,
			PriorityScore: q.PriorityScore,
			Status:        status,
			Embedding:     q.Embedding,
			Source:        domain.SourceQuestions,
		})
	}
	return out
}

func normalizeLegacy(collectionID string, lf legacyQuestionsFile) []domain.RouterQuestion {
	out := make([]domain.RouterQuestion, 0, len(lf.Questions))
	for _, q := range lf.Questions {
		status := domain.QuestionActive
		if q.Deleted {
			status = domain.QuestionDeleted
		}
		qtype := domain.QuestionMain
		if q.Type == string(domain.QuestionVariant) {
			qtype = domain.QuestionVariant
		}
		out = append(out, domain.RouterQuestion{
			ID:            q.ID,
			Text:          q.Question,
			CollectionID:  collectionID,
			DocID:         q.DocID,
			Type:          qtype,
			Keywords:      q.Keywords,
			SmartFilters:  q.SmartFilters,
			PriorityScore: q.Priority,
			Status:        status,
			Source:        domain.SourceLegacyRouterQuestions,
		})
	}
	return out
}

// ResolveFormPath returns the path of a downloadable form file for a
// document, checking that the file exists under the document's forms/
// directory. It does not check the name against the metadata's
// form_filenames.
func (s *FSStore) ResolveFormPath(collectionID, docID, filename string) (string, error) {
	p := path.Join("collections", collectionID, "documents", docID, "forms", filename)
	if ok, err := s.exists(p); err != nil {
		return "", err
	} else if !ok {
		return "", fmt.Errorf("%w: form %s for %s/%s", apperr.ErrNotFound, filename, collectionID, docID)
	}
	return p, nil
}

func (s *FSStore) exists(p string) (bool, error) {
	_, err := fs.Stat(s.fsys, p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *FSStore) readJSON(p string, v interface{}) error {
	b, err := fs.ReadFile(s.fsys, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", apperr.ErrNotFound, p)
		}
		return fmt.Errorf("%w: reading %s: %v", apperr.ErrCorpusCorrupt, p, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", apperr.ErrCorpusCorrupt, p, err)
	}
	return nil
}
