// Package router implements the query router (spec §4.C): it classifies an
// incoming question against the corpus's router-question examples and
// decides whether to route straight to a document or escalate to
// clarification.
package router

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"legal-ai-cuda/internal/domain"
	"legal-ai-cuda/internal/embedder"
	"legal-ai-cuda/internal/vectorindex"
)

const (
	coreBoost     = 0.3
	modifierBoost = 0.1
	noMatchFloor  = 0.05
	maxFollowUpTokens = 6
)

// followUpCues are short phrases that, combined with the session's last
// successful collection, mark a query as continuing the prior topic rather
// than starting a new one (spec §4.C step 4).
var followUpCues = []string{
	"vậy", "thế", "còn", "ủa",
	"bao nhiêu", "phí", "tiền", "chi phí", "lệ phí", "khi nào", "ở đâu",
}

// Config is the subset of config.Config the router needs, passed explicitly
// so this package doesn't depend on the config package.
type Config struct {
	HighConfidenceThreshold float64
	MediumHighThreshold     float64
	MinConfidenceThreshold  float64
	VeryHighConfidenceGate  float64
	MinContextConfidence    float64
}

// Router classifies queries against the corpus's router-question corpus.
type Router struct {
	embedder embedder.Client
	index    atomic.Pointer[QuestionIndex]
	cfg      Config
}

// New builds a Router. Wrap embed in embedder.NewCache(embed,
// index.KnownEmbeddings()) before calling New so query embedding reuses the
// precomputed reference-query vectors (spec §4.C step 1).
func New(embed embedder.Client, index *QuestionIndex, cfg Config) *Router {
	r := &Router{embedder: embed, cfg: cfg}
	r.index.Store(index)
	return r
}

// SwapIndex atomically replaces the served question index, used by the
// offline rebuild tool (spec §5).
func (r *Router) SwapIndex(index *QuestionIndex) {
	r.index.Store(index)
}

type candidate struct {
	collectionID string
	question     domain.RouterQuestion
	rawScore     float64
	boostedScore float64
}

// Route classifies query against the active session, implementing the
// six-step algorithm: embed, score, title-boost, follow-up short-circuit,
// stateful override, confidence banding.
func (r *Router) Route(ctx context.Context, query string, sess *domain.Session) (RouteDecision, error) {
	// Step 4 (session follow-up short-circuit) takes priority over scoring
	// entirely, so check it before paying for an embedding call.
	if sess != nil && sess.LastSuccessfulCollection != "" && isFollowUp(query) {
		conf := 0.85
		return r.bandedDecision(conf, conf, false, sess.LastSuccessfulCollection, sess.LastSuccessfulDocID,
			sess.LastSuccessfulFilters, "", "", nil), nil
	}

	queryEmbedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return RouteDecision{}, err
	}

	lowerQuery := strings.ToLower(query)
	allScores := map[string]float64{}
	candidates := make([]candidate, 0)
	for collectionID, cq := range r.index.Load().byCollection {
		best, ok := bestMatch(queryEmbedding, cq.questions)
		if !ok {
			continue
		}

		boosted := best.rawScore
		if info, ok := cq.docs[best.question.DocID]; ok && titleMatches(lowerQuery, info.title) {
			if info.isCore {
				boosted += coreBoost
			} else {
				boosted += modifierBoost
			}
		}

		c := candidate{collectionID: collectionID, question: best.question, rawScore: best.rawScore, boostedScore: boosted}
		candidates = append(candidates, c)
		allScores[collectionID] = boosted
	}

	if len(candidates) == 0 {
		return RouteDecision{Status: StatusNoMatch, NoMatch: true, AllScores: allScores}, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].boostedScore > candidates[j].boostedScore })
	top := candidates[0]

	noSignal := top.rawScore < noMatchFloor

	// Step 5: stateful override. Only applies when the turn didn't already
	// short-circuit on follow-up above.
	if sess != nil && top.boostedScore < r.cfg.VeryHighConfidenceGate &&
		sess.LastSuccessfulConfidence >= r.cfg.MinContextConfidence && sess.LastSuccessfulCollection != "" {
		reported := top.boostedScore
		if reported < 0.85 {
			reported = 0.85
		}
		return r.bandedDecision(reported, top.boostedScore, true, sess.LastSuccessfulCollection,
			sess.LastSuccessfulDocID, sess.LastSuccessfulFilters, top.question.Text, top.question.DocID, allScores), nil
	}

	decision := r.bandedDecision(top.boostedScore, top.boostedScore, false, top.collectionID, top.question.DocID,
		top.question.SmartFilters, top.question.Text, top.question.DocID, allScores)
	decision.NoMatch = noSignal
	return decision, nil
}

// bandedDecision applies confidence banding (step 6) to produce the final
// status, clarification level and confidence_level string.
func (r *Router) bandedDecision(confidence, originalConfidence float64, overridden bool, collectionID, docID string,
	filters domain.SmartFilters, matchedExample, sourceProcedure string, allScores map[string]float64) RouteDecision {

	d := RouteDecision{
		Confidence:         confidence,
		OriginalConfidence: originalConfidence,
		WasOverridden:      overridden,
		TargetCollection:   collectionID,
		TargetDocID:        docID,
		InferredFilters:    filters,
		MatchedExample:     matchedExample,
		SourceProcedure:    sourceProcedure,
		AllScores:          allScores,
	}

	switch {
	case confidence >= r.cfg.HighConfidenceThreshold:
		d.Status = StatusRouted
		d.ConfidenceLevel = ConfidenceLevel{Band: BandHigh, Overridden: overridden}
	case confidence >= r.cfg.MediumHighThreshold:
		d.Status = StatusClarificationNeeded
		d.ClarificationLevel = domain.LevelL2
		d.ConfidenceLevel = ConfidenceLevel{Band: BandMediumHigh, Overridden: overridden}
	case confidence >= r.cfg.MinConfidenceThreshold:
		d.Status = StatusClarificationNeeded
		d.ClarificationLevel = domain.LevelL3
		d.ConfidenceLevel = ConfidenceLevel{Band: BandMedium, Overridden: overridden}
	default:
		d.Status = StatusClarificationNeeded
		d.ClarificationLevel = domain.LevelL4
		d.ConfidenceLevel = ConfidenceLevel{Band: BandLow, Overridden: overridden}
	}
	return d
}

type matchResult struct {
	question domain.RouterQuestion
	rawScore float64
}

func bestMatch(queryEmbedding []float32, questions []domain.RouterQuestion) (matchResult, bool) {
	var best matchResult
	found := false
	for _, q := range questions {
		score := vectorindex.CosineSimilarity(queryEmbedding, q.Embedding)
		if !found || score > best.rawScore {
			best = matchResult{question: q, rawScore: score}
			found = true
		}
	}
	return best, found
}

// titleMatches reports whether a candidate's title has anything to do with
// the query text: the title-boost (spec §4.C step 3) only applies when the
// title appears inside the query or vice versa. lowerQuery must already be
// lowercased; title is lowercased here.
func titleMatches(lowerQuery, title string) bool {
	if title == "" {
		return false
	}
	lowerTitle := strings.ToLower(title)
	return strings.Contains(lowerQuery, lowerTitle) || strings.Contains(lowerTitle, lowerQuery)
}

// isFollowUp reports whether query reads as a continuation of the prior
// topic: short (<=6 whitespace tokens) or containing a known follow-up cue.
func isFollowUp(query string) bool {
	tokens := strings.Fields(query)
	if len(tokens) > 0 && len(tokens) <= maxFollowUpTokens {
		return true
	}
	lower := strings.ToLower(query)
	for _, cue := range followUpCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}
