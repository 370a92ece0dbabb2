// Package session implements per-conversation state (spec §4.E): the router's
// stateful-override and follow-up detection both read from it, and the
// orchestrator writes to it at the end of every turn.
package session

import (
	"context"
	"time"

	"legal-ai-cuda/internal/domain"
)

// lowConfidenceResetThreshold is the consecutive-low-confidence count at
// which a session's routing state is cleared, so a confused conversation
// doesn't keep overriding toward a stale collection forever.
const lowConfidenceResetThreshold = 3

// Store is the contract both the in-memory and Redis session backends
// implement.
type Store interface {
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Save(ctx context.Context, sess *domain.Session) error
}

// RecordSuccess applies a completed turn's routing outcome to sess,
// following spec.md §4.E exactly: last_successful_* only updates at
// AnswerReady turns with confidence at or above minContextConfidence, and
// ClearRoutingState fires once consecutive_low_confidence_count reaches 3.
func RecordSuccess(sess *domain.Session, collectionID, docID string, confidence float64, filters domain.SmartFilters, minContextConfidence float64) {
	if confidence >= minContextConfidence {
		sess.LastSuccessfulCollection = collectionID
		sess.LastSuccessfulDocID = docID
		sess.LastSuccessfulConfidence = confidence
		sess.LastSuccessfulFilters = filters
		sess.ConsecutiveLowConfidenceCount = 0
		return
	}

	sess.ConsecutiveLowConfidenceCount++
	if sess.ConsecutiveLowConfidenceCount >= lowConfidenceResetThreshold {
		ClearRoutingState(sess)
	}
}

// ClearRoutingState wipes the state the router's stateful override and
// follow-up detection read from, without touching conversational history.
func ClearRoutingState(sess *domain.Session) {
	sess.LastSuccessfulCollection = ""
	sess.LastSuccessfulDocID = ""
	sess.LastSuccessfulConfidence = 0
	sess.LastSuccessfulFilters = nil
	sess.ConsecutiveLowConfidenceCount = 0
	sess.PendingClarification = nil
}

// New returns a fresh session with the given ID, stamped with now.
func New(sessionID string, now time.Time) *domain.Session {
	return &domain.Session{
		SessionID:    sessionID,
		HistoryLimit: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
