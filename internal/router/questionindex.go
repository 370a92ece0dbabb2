package router

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"legal-ai-cuda/internal/corpusstore"
	"legal-ai-cuda/internal/domain"
	"legal-ai-cuda/internal/embedder"
	"legal-ai-cuda/internal/vectorindex"
)

// docInfo is the slice of a document's attributes title-boosting and L3
// similarity-ranking need, cached so Route and the clarification engine
// never have to re-load a document mid-request.
type docInfo struct {
	title     string
	isCore    bool
	embedding []float32
}

type collectionQuestions struct {
	questions []domain.RouterQuestion
	docs      map[string]docInfo
}

// QuestionIndex is the read-only projection of every collection's active
// router questions, with precomputed embeddings and document titles. It is
// rebuilt offline and swapped atomically (spec §5), the same pattern
// vectorindex.MemoryIndex uses for chunks.
type QuestionIndex struct {
	byCollection  map[string]collectionQuestions
	knownEmbeddings map[string][]float32
}

// BuildQuestionIndex loads every collection's active router questions,
// embedding any that don't already carry a precomputed embedding_vector, and
// caches the titles/core-procedure flag of every referenced document for
// title-boosting.
func BuildQuestionIndex(ctx context.Context, store corpusstore.Store, embed embedder.Client, logger *zap.Logger) (*QuestionIndex, error) {
	collections, err := store.ListCollections()
	if err != nil {
		return nil, fmt.Errorf("building question index: %w", err)
	}

	idx := &QuestionIndex{
		byCollection:    make(map[string]collectionQuestions, len(collections)),
		knownEmbeddings: make(map[string][]float32),
	}

	for _, col := range collections {
		questions, err := store.LoadRouterQuestions(col.ID)
		if err != nil {
			return nil, fmt.Errorf("building question index: collection %s: %w", col.ID, err)
		}

		active := make([]domain.RouterQuestion, 0, len(questions))
		docs := make(map[string]docInfo)
		for _, q := range questions {
			if q.Status != domain.QuestionActive {
				continue
			}
			if q.Embedding == nil {
				vec, err := embed.Embed(ctx, q.Text)
				if err != nil {
					return nil, fmt.Errorf("building question index: embedding %q: %w", q.Text, err)
				}
				q.Embedding = vec
			}
			idx.knownEmbeddings[q.Text] = q.Embedding

			if _, ok := docs[q.DocID]; !ok {
				doc, err := store.LoadDocument(col.ID, q.DocID)
				if err != nil {
					logger.Warn("router question references missing document, dropping from title boosting",
						zap.String("collection_id", col.ID), zap.String("doc_id", q.DocID), zap.Error(err))
				} else {
					titleVec, err := embed.Embed(ctx, doc.Title)
					if err != nil {
						logger.Warn("failed embedding document title, L3 similarity ranking will skip it",
							zap.String("collection_id", col.ID), zap.String("doc_id", q.DocID), zap.Error(err))
					}
					docs[q.DocID] = docInfo{title: doc.Title, isCore: doc.IsCoreProcedure(), embedding: titleVec}
				}
			}
			active = append(active, q)
		}

		idx.byCollection[col.ID] = collectionQuestions{questions: active, docs: docs}
	}

	return idx, nil
}

// KnownEmbeddings returns the question-text -> embedding map built during
// BuildQuestionIndex, for wrapping the router's embedder in a cache that
// reuses known reference-query embeddings (spec §4.C step 1).
func (q *QuestionIndex) KnownEmbeddings() map[string][]float32 {
	return q.knownEmbeddings
}

// Collections lists every collection the index was built from, including
// any with no active router question, consumed by the clarification engine
// when building L1/L4 options.
func (q *QuestionIndex) Collections() []string {
	out := make([]string, 0, len(q.byCollection))
	for id := range q.byCollection {
		out = append(out, id)
	}
	return out
}

// DocumentsOf returns the doc IDs referenced by a collection's active router
// questions, for L3/L4 option generation.
func (q *QuestionIndex) DocumentsOf(collectionID string) []string {
	cq := q.byCollection[collectionID]
	out := make([]string, 0, len(cq.docs))
	for docID := range cq.docs {
		out = append(out, docID)
	}
	return out
}

// DocTitle returns the cached title of a document referenced by the index,
// and whether it was found.
func (q *QuestionIndex) DocTitle(collectionID, docID string) (string, bool) {
	cq, ok := q.byCollection[collectionID]
	if !ok {
		return "", false
	}
	info, ok := cq.docs[docID]
	return info.title, ok
}

// QuestionsOf returns a document's own active router questions ordered by
// priority_score descending, with near-duplicate phrasings (same text once
// trimmed and lowercased) collapsed to their first occurrence. Used by the
// clarification engine to build L2 options from the candidate document's own
// questions rather than a cross-collection list (spec §4.D).
func (q *QuestionIndex) QuestionsOf(collectionID, docID string) []domain.RouterQuestion {
	cq, ok := q.byCollection[collectionID]
	if !ok {
		return nil
	}

	matching := make([]domain.RouterQuestion, 0)
	for _, question := range cq.questions {
		if question.DocID == docID {
			matching = append(matching, question)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool { return matching[i].PriorityScore > matching[j].PriorityScore })

	seen := make(map[string]bool, len(matching))
	out := make([]domain.RouterQuestion, 0, len(matching))
	for _, question := range matching {
		key := strings.ToLower(strings.TrimSpace(question.Text))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, question)
	}
	return out
}

// MainQuestion returns the highest priority_score active question in a
// collection, used as the sample question attached to each L1/L4 option.
func (q *QuestionIndex) MainQuestion(collectionID string) (domain.RouterQuestion, bool) {
	cq, ok := q.byCollection[collectionID]
	if !ok || len(cq.questions) == 0 {
		return domain.RouterQuestion{}, false
	}
	best := cq.questions[0]
	for _, question := range cq.questions[1:] {
		if question.PriorityScore > best.PriorityScore {
			best = question
		}
	}
	return best, true
}

// DocSimilarity is one ranked result from SimilarDocuments.
type DocSimilarity struct {
	DocID  string
	Title  string
	Score  float64
	IsCore bool
}

// SimilarDocuments ranks the other documents in a collection by embedding
// similarity between their title and the candidate document's title, with
// Route's coreBoost added to core procedures (other documents get no boost),
// capped at 5
// (spec §4.D L3: "embed the candidate document's title and similarity-match
// within the collection; exclude duplicate sources; cap at 5; boost core
// procedures"). Documents already keyed by doc ID in the index, so no
// document can appear twice.
func (q *QuestionIndex) SimilarDocuments(collectionID, candidateDocID string) []DocSimilarity {
	cq, ok := q.byCollection[collectionID]
	if !ok {
		return nil
	}
	candidate, ok := cq.docs[candidateDocID]
	if !ok || candidate.embedding == nil {
		return nil
	}

	out := make([]DocSimilarity, 0, len(cq.docs))
	for docID, info := range cq.docs {
		if docID == candidateDocID || info.embedding == nil {
			continue
		}
		score := vectorindex.CosineSimilarity(candidate.embedding, info.embedding)
		if info.isCore {
			score += coreBoost
		}
		out = append(out, DocSimilarity{DocID: docID, Title: info.title, Score: score, IsCore: info.isCore})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}
