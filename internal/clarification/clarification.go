// Package clarification implements the multi-level clarification state
// machine (spec §4.D): when the router can't confidently route a query, this
// package decides what to ask the user next and how to interpret their
// answer.
package clarification

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"legal-ai-cuda/internal/domain"
	"legal-ai-cuda/internal/router"
)

// timeFn lets callers inject time.Now, keeping the state machine testable
// without wall-clock dependence.
type timeFn func() time.Time

const (
	// collectionScoreThreshold is the bar a collection's best-per-collection
	// score must clear to be offered at L1/L4.
	collectionScoreThreshold = 0.20
	// l2OptionCap bounds how many of a document's own questions L2 offers,
	// after priority ordering and near-duplicate dedup.
	l2OptionCap = 4
	// l3OptionCap bounds how many similarity-ranked documents L3 offers.
	l3OptionCap = 5
)

// QuestionSource is the read-only capability the clarification engine needs
// from the router's question index, broken out as its own interface to
// avoid a clarification<->router import cycle (spec §9).
type QuestionSource interface {
	Collections() []string
	DocumentsOf(collectionID string) []string
	DocTitle(collectionID, docID string) (string, bool)
	QuestionsOf(collectionID, docID string) []domain.RouterQuestion
	MainQuestion(collectionID string) (domain.RouterQuestion, bool)
	SimilarDocuments(collectionID, candidateDocID string) []router.DocSimilarity
}

// Engine drives the clarification state machine.
type Engine struct {
	questions QuestionSource
}

// New builds an Engine over the router's question index.
func New(questions QuestionSource) *Engine {
	return &Engine{questions: questions}
}

// Enter builds the clarification state and option set for a router decision
// that didn't route directly, starting from Idle. The turn's per-collection
// scores are carried along so a later escalation to L4 can still rank
// collections by score without re-routing the original query. When the
// level's option set comes up empty, it escalates straight to L4.
func (e *Engine) Enter(decision router.RouteDecision, query string, now timeFn) domain.ClarificationState {
	level := decision.ClarificationLevel
	if level == "" {
		level = domain.LevelL2
	}

	state := domain.ClarificationState{
		Level:               level,
		CandidateCollection: decision.TargetCollection,
		CandidateDocID:      decision.TargetDocID,
		OriginalQuery:       query,
		CreatedAt:           now(),
		Scores:              decision.AllScores,
	}
	state.OfferedOptions = e.options(state)
	if len(state.OfferedOptions) == 0 && state.Level != domain.LevelL4 {
		return e.escalateToL4(state, now)
	}
	return state
}

// options builds the choice set for the current level. L1 is asked only by
// explicit callers of the clarification engine (never entered by Route
// directly — spec.md §9 open question), so it still needs a builder here
// even though Route never produces it.
func (e *Engine) options(state domain.ClarificationState) []domain.ClarificationOption {
	switch state.Level {
	case domain.LevelL1, domain.LevelL4:
		return e.collectionOptions(state.Scores)
	case domain.LevelL2:
		return e.documentQuestionOptions(state.CandidateCollection, state.CandidateDocID)
	case domain.LevelL3:
		return e.documentChoiceOptions(state.CandidateCollection, state.CandidateDocID)
	default:
		return nil
	}
}

// collectionOptions implements L1/L4: collections whose best-per-collection
// score exceeds collectionScoreThreshold, ordered by score descending, each
// carrying a sample main question (spec §4.D, §8 scenario 3). When nothing
// cleared the bar — or no scores were carried forward at all, e.g. a direct
// L1 call — it falls back to every known collection so the user still has a
// way out.
func (e *Engine) collectionOptions(scores map[string]float64) []domain.ClarificationOption {
	type scoredCollection struct {
		id    string
		score float64
	}

	candidates := make([]scoredCollection, 0, len(scores))
	for id, score := range scores {
		if score > collectionScoreThreshold {
			candidates = append(candidates, scoredCollection{id: id, score: score})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	if len(candidates) == 0 {
		ids := e.questions.Collections()
		sort.Strings(ids)
		for _, id := range ids {
			candidates = append(candidates, scoredCollection{id: id})
		}
	}

	out := make([]domain.ClarificationOption, 0, len(candidates))
	for _, c := range candidates {
		opt := domain.ClarificationOption{ID: c.id, Title: c.id, Action: "select_collection", Collection: c.id, Score: c.score}
		if sample, ok := e.questions.MainQuestion(c.id); ok {
			opt.Title = sample.Text
			opt.Description = sample.Text
		}
		out = append(out, opt)
	}
	return out
}

// documentQuestionOptions implements L2: the candidate document's own active
// router questions, top-N by priority_score with near-duplicate phrasings
// collapsed (spec §4.D, §8 scenario 4 — "variants of the candidate
// document's own questions, not a cross-collection list"). An "other" escape
// hatch always accompanies the set so the user can reach L3.
func (e *Engine) documentQuestionOptions(collectionID, docID string) []domain.ClarificationOption {
	if collectionID == "" || docID == "" {
		return e.documentChoiceOptions(collectionID, "")
	}

	all := append([]domain.RouterQuestion(nil), e.questions.QuestionsOf(collectionID, docID)...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].PriorityScore > all[j].PriorityScore })
	seen := make(map[string]bool, len(all))
	questions := make([]domain.RouterQuestion, 0, len(all))
	for _, q := range all {
		key := strings.ToLower(strings.TrimSpace(q.Text))
		if seen[key] {
			continue
		}
		seen[key] = true
		questions = append(questions, q)
	}
	if len(questions) > l2OptionCap {
		questions = questions[:l2OptionCap]
	}
	if len(questions) == 0 {
		title, _ := e.questions.DocTitle(collectionID, docID)
		return []domain.ClarificationOption{
			{
				ID: docID, Title: title, Action: "confirm_document",
				Collection: collectionID, Document: docID,
				Description: fmt.Sprintf("Bạn đang hỏi về: %s?", title),
			},
			{
				ID: "other", Title: "Khác", Action: "escalate_l3",
				Collection: collectionID,
			},
		}
	}

	out := make([]domain.ClarificationOption, 0, len(questions)+1)
	for _, q := range questions {
		out = append(out, domain.ClarificationOption{
			ID: q.ID, Title: q.Text, Action: "confirm_document",
			Collection: collectionID, Document: docID, Score: q.PriorityScore,
		})
	}
	out = append(out, domain.ClarificationOption{ID: "other", Title: "Khác", Action: "escalate_l3", Collection: collectionID})
	return out
}

// documentChoiceOptions implements L3: the candidate document's title
// similarity-matched against the rest of the collection, core procedures
// boosted, capped at l3OptionCap (spec §4.D). Without a candidate document to
// embed against — a bare collection selection coming from L1/L4 — it falls
// back to listing the collection's documents.
func (e *Engine) documentChoiceOptions(collectionID, candidateDocID string) []domain.ClarificationOption {
	if collectionID == "" {
		return nil
	}

	if candidateDocID != "" {
		if similar := e.questions.SimilarDocuments(collectionID, candidateDocID); len(similar) > 0 {
			if len(similar) > l3OptionCap {
				similar = similar[:l3OptionCap]
			}
			out := make([]domain.ClarificationOption, 0, len(similar))
			for _, d := range similar {
				out = append(out, domain.ClarificationOption{
					ID: d.DocID, Title: d.Title, Action: "select_document",
					Collection: collectionID, Document: d.DocID, Score: d.Score,
				})
			}
			return out
		}
	}

	docIDs := e.questions.DocumentsOf(collectionID)
	sort.Strings(docIDs)
	if len(docIDs) > l3OptionCap {
		docIDs = docIDs[:l3OptionCap]
	}
	out := make([]domain.ClarificationOption, 0, len(docIDs))
	for _, docID := range docIDs {
		title, _ := e.questions.DocTitle(collectionID, docID)
		out = append(out, domain.ClarificationOption{
			ID: docID, Title: title, Action: "select_document",
			Collection: collectionID, Document: docID,
		})
	}
	return out
}

// Advance applies the user's selection to the current clarification state,
// producing the next state (or a terminal AnswerReady signalled by an empty
// Level) per the transition table in spec §4.D.
func (e *Engine) Advance(state domain.ClarificationState, selection domain.ClarificationOption, now timeFn) domain.ClarificationState {
	switch selection.Action {
	case "select_collection":
		next := domain.ClarificationState{
			Level: domain.LevelL3, CandidateCollection: selection.Collection,
			OriginalQuery: state.OriginalQuery, CreatedAt: now(), Scores: state.Scores,
		}
		next.OfferedOptions = e.options(next)
		return next
	case "select_document", "confirm_document":
		return domain.ClarificationState{
			Level: "", // AnswerReady: empty level is the sentinel the caller checks
			CandidateCollection: selection.Collection,
			CandidateDocID:      selection.Document,
			OriginalQuery:       state.OriginalQuery,
			CreatedAt:           state.CreatedAt,
			Scores:              state.Scores,
		}
	case "escalate_l3":
		// The candidate document the user said "something else" to is still
		// the best reference point for similarity-ranking alternatives.
		next := domain.ClarificationState{
			Level: domain.LevelL3, CandidateCollection: selection.Collection, CandidateDocID: state.CandidateDocID,
			OriginalQuery: state.OriginalQuery, CreatedAt: now(), Scores: state.Scores,
		}
		next.OfferedOptions = e.options(next)
		if len(next.OfferedOptions) == 0 {
			return e.escalateToL4(state, now)
		}
		return next
	default:
		return e.escalateToL4(state, now)
	}
}

// escalateToL4 is the canned-reply fallback when option generation comes up
// empty at a narrower level (spec §7, Failure: NoMatch).
func (e *Engine) escalateToL4(state domain.ClarificationState, now timeFn) domain.ClarificationState {
	next := domain.ClarificationState{
		Level: domain.LevelL4, OriginalQuery: state.OriginalQuery, CreatedAt: now(), Scores: state.Scores,
	}
	next.OfferedOptions = e.options(next)
	return next
}

// IsAnswerReady reports whether state represents a resolved selection ready
// for context assembly, rather than a level still awaiting user input.
func IsAnswerReady(state domain.ClarificationState) bool {
	return state.Level == "" && state.CandidateDocID != ""
}
