// Package orchestrator implements the per-turn lifecycle (spec §4.I / §5):
// it owns every other component and sequences a single query end to end,
// following the teacher's sequential handleRAGQuery shape
// (go-enhanced-rag-service/main.go) generalized from a single similarity
// search into the full route -> clarify-or-retrieve -> rerank -> assemble ->
// generate -> detect-forms -> record pipeline.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"legal-ai-cuda/internal/apperr"
	"legal-ai-cuda/internal/clarification"
	"legal-ai-cuda/internal/contextasm"
	"legal-ai-cuda/internal/corpusstore"
	"legal-ai-cuda/internal/domain"
	"legal-ai-cuda/internal/events"
	"legal-ai-cuda/internal/formdetector"
	"legal-ai-cuda/internal/generator"
	"legal-ai-cuda/internal/memorylog"
	"legal-ai-cuda/internal/observability/metrics"
	"legal-ai-cuda/internal/reranker"
	"legal-ai-cuda/internal/router"
	"legal-ai-cuda/internal/session"
	"legal-ai-cuda/internal/vectorindex"
)

var tracer = otel.Tracer("legal-ai-cuda/orchestrator")

// QueryRequest is the chat-surface query envelope (spec §6).
type QueryRequest struct {
	Query       string
	SessionID   string
	MaxTokens   int
	Temperature float64
	TopK        int
}

// ContextInfo names the provenance of an answer.
type ContextInfo struct {
	SourceDocuments   []string `json:"source_documents"`
	SourceCollections []string `json:"source_collections"`
}

// RoutingInfo surfaces the router's decision for client-side display/audit.
type RoutingInfo struct {
	Confidence         float64             `json:"confidence"`
	OriginalConfidence float64             `json:"original_confidence"`
	WasOverridden      bool                `json:"was_overridden"`
	TargetCollection   string              `json:"target_collection"`
	InferredFilters    domain.SmartFilters `json:"inferred_filters,omitempty"`
}

// ClarificationOptionView is the public shape of a clarification option
// (spec §6 action enum), translated from the clarification engine's
// internal action vocabulary by mapAction.
type ClarificationOptionView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Action      string `json:"action"`
	Collection  string `json:"collection,omitempty"`
	Document    string `json:"document,omitempty"`
}

// ClarificationInfo is the clarification-needed response payload.
type ClarificationInfo struct {
	Message string                    `json:"message"`
	Options []ClarificationOptionView `json:"options"`
	Level   domain.ClarificationLevel `json:"level"`
}

// QueryResponse is the union response envelope (spec §6).
type QueryResponse struct {
	Type            string                      `json:"type"` // "answer" | "clarification_needed"
	Answer          string                      `json:"answer,omitempty"`
	ContextInfo     *ContextInfo                `json:"context_info,omitempty"`
	FormAttachments []formdetector.FormAttachment `json:"form_attachments,omitempty"`
	RoutingInfo     *RoutingInfo                `json:"routing_info,omitempty"`
	Clarification   *ClarificationInfo          `json:"clarification,omitempty"`
	SessionID       string                      `json:"session_id"`
	ProcessingTime  time.Duration               `json:"processing_time"`
	Incomplete      bool                        `json:"incomplete,omitempty"`
}

// Container owns every component's lifetime, resolving spec.md §9's
// "global mutable service instances" redesign flag — there are no
// package-level singletons anywhere in this module; every dependency is
// constructed once here and threaded through explicitly.
type Container struct {
	Sessions    session.Store
	Router      *router.Router
	Clarifier   *clarification.Engine
	Index       vectorindex.Index
	Reranker    reranker.Reranker
	Assembler   *contextasm.Assembler
	Generator   generator.Client
	FormDetector *formdetector.Detector
	Store       corpusstore.Store
	Publisher   events.Publisher
	History     *memorylog.Log // optional, may be nil
	Logger      *zap.Logger

	BroadSearchK           int
	MinContextConfidence   float64
	TurnDeadline           time.Duration
}

// HandleQuery runs one full turn (spec §4.I).
func (c *Container) HandleQuery(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, deadlineOrDefault(c.TurnDeadline))
	defer cancel()

	ctx, span := tracer.Start(ctx, "orchestrator.turn")
	defer span.End()

	sess, err := c.resolveSession(ctx, req.SessionID)
	if err != nil {
		return QueryResponse{}, err
	}

	decision, err := c.Router.Route(ctx, req.Query, sess)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		return QueryResponse{}, fmt.Errorf("routing: %w", err)
	}
	metrics.RouteConfidence.Observe(decision.Confidence)

	if decision.Status != router.StatusRouted {
		return c.enterClarification(ctx, sess, decision, req, start)
	}

	resp, err := c.answer(ctx, sess, decision, req, start)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		return QueryResponse{}, err
	}
	return resp, nil
}

func deadlineOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

func (c *Container) resolveSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		sessionID = newSessionID()
	}
	sess, err := c.Sessions.Get(ctx, sessionID)
	if err != nil {
		if !isSessionMiss(err) {
			return nil, fmt.Errorf("loading session: %w", err)
		}
		c.Logger.Warn("session miss, creating fresh session", zap.String("session_id", sessionID))
		sess = session.New(sessionID, time.Now())
	}
	return sess, nil
}

func isSessionMiss(err error) bool {
	return errors.Is(err, apperr.ErrSessionMiss)
}

func (c *Container) enterClarification(ctx context.Context, sess *domain.Session, decision router.RouteDecision, req QueryRequest, start time.Time) (QueryResponse, error) {
	state := c.Clarifier.Enter(decision, req.Query, time.Now)
	sess.PendingClarification = &state
	// A clarification turn never reaches AnswerReady, so it may only count
	// toward the low-confidence reset; it never updates last_successful_*.
	if decision.Confidence < c.MinContextConfidence {
		session.RecordSuccess(sess, decision.TargetCollection, decision.TargetDocID, decision.Confidence, decision.InferredFilters, c.MinContextConfidence)
	}
	if err := c.Sessions.Save(ctx, sess); err != nil {
		c.Logger.Warn("session save failed", zap.Error(err))
	}

	metrics.TurnsTotal.WithLabelValues("clarification_needed").Inc()
	metrics.ClarificationTotal.WithLabelValues(string(state.Level)).Inc()

	return QueryResponse{
		Type: "clarification_needed",
		Clarification: &ClarificationInfo{
			Message: clarificationMessage(state.Level),
			Options: viewOptions(state.OfferedOptions),
			Level:   state.Level,
		},
		SessionID:      sess.SessionID,
		ProcessingTime: time.Since(start),
	}, nil
}

func clarificationMessage(level domain.ClarificationLevel) string {
	switch level {
	case domain.LevelL1:
		return "Bạn muốn hỏi về lĩnh vực nào?"
	case domain.LevelL2:
		return "Bạn đang hỏi về thủ tục này phải không?"
	case domain.LevelL3:
		return "Bạn muốn hỏi về thủ tục nào sau đây?"
	default:
		return "Vui lòng chọn lĩnh vực phù hợp nhất."
	}
}

func viewOptions(opts []domain.ClarificationOption) []ClarificationOptionView {
	out := make([]ClarificationOptionView, len(opts))
	for i, o := range opts {
		out[i] = ClarificationOptionView{
			ID: o.ID, Title: o.Title, Description: o.Description,
			Action: mapAction(o.Action), Collection: o.Collection, Document: o.Document,
		}
	}
	return out
}

// mapAction translates the clarification engine's internal action
// vocabulary to the external contract's enum (spec §6).
func mapAction(internal string) string {
	switch internal {
	case "select_collection":
		return "proceed_with_collection"
	case "confirm_document", "select_document":
		return "proceed_with_document"
	case "escalate_l3":
		return "show_document_questions"
	default:
		return "manual_input"
	}
}

func (c *Container) answer(ctx context.Context, sess *domain.Session, decision router.RouteDecision, req QueryRequest, start time.Time) (QueryResponse, error) {
	k := req.TopK
	if k <= 0 {
		k = c.BroadSearchK
	}

	results, err := c.Index.Search(ctx, decision.TargetCollection, req.Query, k, decision.InferredFilters)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("vector search: %w", err)
	}
	if len(results) == 0 && len(decision.InferredFilters) > 0 {
		c.Logger.Info("filtered search empty, retrying unfiltered", zap.String("collection", decision.TargetCollection))
		results, err = c.Index.Search(ctx, decision.TargetCollection, req.Query, k, nil)
		if err != nil {
			return QueryResponse{}, fmt.Errorf("vector search retry: %w", err)
		}
	}
	if len(results) == 0 {
		return QueryResponse{}, apperr.ErrNoMatch
	}

	reranked, err := c.Reranker.Rerank(ctx, req.Query, results)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("reranking: %w", err)
	}
	nucleus := reranked[0].Chunk

	estimatedPromptTokens := len(req.Query) / 4
	assembled, err := c.Assembler.Assemble(nucleus, req.Query, estimatedPromptTokens)
	if err != nil {
		return QueryResponse{}, err
	}

	history := make([]generator.HistoryTurn, len(sess.History))
	for i, t := range sess.History {
		history[i] = generator.HistoryTurn{Query: t.Query, Answer: t.Answer}
	}

	genResp, err := c.Generator.Generate(ctx, generator.Request{
		History: history, UserContent: assembled,
		MaxTokens: req.MaxTokens, Temperature: req.Temperature,
	})
	if err != nil {
		if isGeneratorTimeout(err) {
			metrics.TurnsTotal.WithLabelValues("incomplete").Inc()
			return QueryResponse{
				Type: "answer", Incomplete: true, SessionID: sess.SessionID,
				ProcessingTime: time.Since(start),
			}, nil
		}
		return QueryResponse{}, fmt.Errorf("generation: %w", err)
	}

	doc, err := c.Store.LoadDocument(nucleus.CollectionID, nucleus.DocID)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("loading contributing document: %w", err)
	}
	attachments, _ := c.FormDetector.Detect(ctx, []domain.Document{doc})
	answer := formdetector.AugmentAnswer(genResp, attachments)

	session.RecordSuccess(sess, decision.TargetCollection, nucleus.DocID, decision.Confidence, decision.InferredFilters, c.MinContextConfidence)
	sess.AppendHistory(domain.Turn{Query: req.Query, Answer: answer, Timestamp: time.Now()})
	if err := c.Sessions.Save(ctx, sess); err != nil {
		c.Logger.Warn("session save failed", zap.Error(err))
	}

	c.Publisher.Publish(events.EventTurnCompleted, map[string]interface{}{
		"session_id": sess.SessionID, "collection": nucleus.CollectionID, "doc_id": nucleus.DocID,
	})
	if c.History != nil {
		c.History.Append(ctx, memorylog.TurnRecord{
			ID: newSessionID(), SessionID: sess.SessionID, Query: req.Query,
			Status: string(decision.Status), TargetCollection: decision.TargetCollection,
			TargetDocID: nucleus.DocID, Confidence: decision.Confidence,
			OriginalConfidence: decision.OriginalConfidence, WasOverridden: decision.WasOverridden,
		})
	}

	metrics.TurnsTotal.WithLabelValues("routed").Inc()

	return QueryResponse{
		Type:   "answer",
		Answer: answer,
		ContextInfo: &ContextInfo{
			SourceDocuments:   []string{nucleus.DocID},
			SourceCollections: []string{nucleus.CollectionID},
		},
		FormAttachments: attachments,
		RoutingInfo: &RoutingInfo{
			Confidence: decision.Confidence, OriginalConfidence: decision.OriginalConfidence,
			WasOverridden: decision.WasOverridden, TargetCollection: decision.TargetCollection,
			InferredFilters: decision.InferredFilters,
		},
		SessionID:      sess.SessionID,
		ProcessingTime: time.Since(start),
	}, nil
}

func isGeneratorTimeout(err error) bool {
	return errors.Is(err, apperr.ErrGeneratorTimeout)
}
