// Package domain holds the core entities shared across the retrieval
// pipeline: collections, documents, chunks, router questions, sessions and
// clarification state. Nothing in this package talks to disk, Postgres or
// Redis — storage concerns live in corpusstore, vectorindex and session.
package domain

import (
	"strconv"
	"strings"
	"time"
)

// CollectionStatus describes whether a collection currently has documents.
type CollectionStatus string

const (
	CollectionActive CollectionStatus = "active"
	CollectionEmpty  CollectionStatus = "empty"
)

// Collection is a named domain of procedure documents, e.g. civil-registration.
type Collection struct {
	ID            string           `json:"id"`
	DisplayName   string           `json:"display_name"`
	DocumentCount int              `json:"document_count"`
	LastUpdated   time.Time        `json:"last_updated"`
	Status        CollectionStatus `json:"status"`
}

// DocumentMetadata carries the recognized procedure attributes the context
// assembler renders as a metadata block and the router uses for title
// boosting and smart filters.
type DocumentMetadata struct {
	IssuingAgency   string   `json:"issuing_agency"`
	ExecutingAgency string   `json:"executing_agency"`
	FeeText         string   `json:"fee_text"`
	FeeVND          float64  `json:"fee_vnd"`
	ProcessingTime  string   `json:"processing_time"`
	HasForm         bool     `json:"has_form"`
	FormFilenames   []string `json:"form_filenames,omitempty"`
}

// Document is one administrative procedure within a collection.
type Document struct {
	CollectionID string           `json:"collection_id"`
	DocID        string           `json:"doc_id"`
	Title        string           `json:"title"`
	Metadata     DocumentMetadata `json:"metadata"`
	Chunks       []Chunk          `json:"chunks"`
}

// FullText concatenates the document's chunks in chunk_index order, which
// the corpus store guarantees is dense and monotonically increasing.
func (d Document) FullText() string {
	out := ""
	for _, c := range d.Chunks {
		if out != "" {
			out += "\n"
		}
		out += c.Content
	}
	return out
}

// IsCoreProcedure reports whether the title carries no scope modifier
// ("abroad", "mobile", "re-registration", ...). Used by title-boosting
// (router) and the core/ancillary split in L3 clarification.
func (d Document) IsCoreProcedure() bool {
	return !hasAnyModifier(d.Title)
}

var titleModifiers = []string{
	"ở nước ngoài", "lưu động", "đăng ký lại", "cấp lại",
	"abroad", "mobile", "re-registration", "reissue",
}

func hasAnyModifier(title string) bool {
	lower := strings.ToLower(title)
	for _, m := range titleModifiers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Chunk is the indexed unit served by the vector index.
type Chunk struct {
	CollectionID string           `json:"collection_id"`
	DocID        string           `json:"doc_id"`
	DocTitle     string           `json:"doc_title"`
	ChunkIndex   int              `json:"chunk_index"`
	SourcePath   string           `json:"source_path"`
	Content      string           `json:"content"`
	Embedding    []float32        `json:"embedding,omitempty"`
	Metadata     DocumentMetadata `json:"metadata"`
}

// ChunkID returns a stable identifier for the chunk within its corpus.
func (c Chunk) ChunkID() string {
	return c.CollectionID + "/" + c.DocID + "/" + strconv.Itoa(c.ChunkIndex)
}

// RouterQuestionType distinguishes the canonical phrasing of a procedure
// question from paraphrased variants used to enrich routing recall.
type RouterQuestionType string

const (
	QuestionMain    RouterQuestionType = "main"
	QuestionVariant RouterQuestionType = "variant"
)

// RouterQuestionStatus marks whether a question still participates in
// routing. Deleted questions remain for audit but are never scored.
type RouterQuestionStatus string

const (
	QuestionActive  RouterQuestionStatus = "active"
	QuestionDeleted RouterQuestionStatus = "deleted"
)

// SourceFormat tags which on-disk schema a RouterQuestion was loaded from,
// for telemetry only (spec.md §9, file-format coupling).
type SourceFormat string

const (
	SourceLegacyRouterQuestions SourceFormat = "router_questions.json"
	SourceQuestions             SourceFormat = "questions.json"
)

// SmartFilters is a structured constraint attached to a router example and
// forwarded to the vector index. Keys outside {exact_title, doc_id, agency}
// are preserved but ignored by the index.
type SmartFilters map[string][]string

// RouterQuestion is a training example used to classify incoming queries.
type RouterQuestion struct {
	ID             string               `json:"id"`
	Text           string               `json:"text"`
	CollectionID   string               `json:"collection_id"`
	DocID          string               `json:"doc_id"`
	Type           RouterQuestionType   `json:"type"`
	Keywords       []string             `json:"keywords,omitempty"`
	SmartFilters   SmartFilters         `json:"smart_filters,omitempty"`
	PriorityScore  float64              `json:"priority_score"`
	Status         RouterQuestionStatus `json:"status"`
	Embedding      []float32            `json:"embedding_vector,omitempty"`
	Source         SourceFormat         `json:"-"`
}

// ClarificationLevel is the escalation tier of the clarification engine.
type ClarificationLevel string

const (
	LevelL1 ClarificationLevel = "L1"
	LevelL2 ClarificationLevel = "L2"
	LevelL3 ClarificationLevel = "L3"
	LevelL4 ClarificationLevel = "L4"
)

// ClarificationOption is one choice offered to the user at a given level.
type ClarificationOption struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Action      string  `json:"action"`
	Collection  string  `json:"collection,omitempty"`
	Document    string  `json:"document,omitempty"`
	Score       float64 `json:"-"`
}

// ClarificationState is the transient per-turn record attached to a session
// when the router cannot auto-route.
type ClarificationState struct {
	Level              ClarificationLevel     `json:"level"`
	CandidateCollection string                `json:"candidate_collection,omitempty"`
	CandidateDocID      string                `json:"candidate_doc_id,omitempty"`
	OfferedOptions      []ClarificationOption `json:"offered_options"`
	OriginalQuery       string                `json:"original_query"`
	CreatedAt           time.Time             `json:"created_at"`

	// Scores carries the per-collection scores computed at Route time forward
	// across clarification turns, so a later escalation to L4 can still order
	// collections by score without re-routing the original query.
	Scores map[string]float64 `json:"-"`
}

// Session is per-conversation memory.
type Session struct {
	SessionID                    string               `json:"session_id"`
	LastSuccessfulCollection     string               `json:"last_successful_collection,omitempty"`
	LastSuccessfulDocID          string               `json:"last_successful_doc_id,omitempty"`
	LastSuccessfulConfidence     float64              `json:"last_successful_confidence,omitempty"`
	LastSuccessfulFilters        SmartFilters         `json:"last_successful_filters,omitempty"`
	ConsecutiveLowConfidenceCount int                 `json:"consecutive_low_confidence_count"`
	PendingClarification         *ClarificationState  `json:"pending_clarification,omitempty"`
	History                      []Turn               `json:"history"`
	HistoryLimit                 int                  `json:"-"`
	CreatedAt                    time.Time            `json:"created_at"`
	UpdatedAt                    time.Time            `json:"updated_at"`
}

// Turn is one bounded entry of conversational history retained for prompting.
type Turn struct {
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// AppendHistory appends a turn and trims to HistoryLimit (default 1).
func (s *Session) AppendHistory(t Turn) {
	limit := s.HistoryLimit
	if limit <= 0 {
		limit = 1
	}
	s.History = append(s.History, t)
	if len(s.History) > limit {
		s.History = s.History[len(s.History)-limit:]
	}
}
