// Package httpapi implements a reference gin HTTP surface over the
// orchestrator, following the teacher's setupRoutes/handleRAGQuery shape
// (go-enhanced-rag-service/main.go): CORS middleware, a health endpoint, and
// a versioned route group. The chat HTTP surface itself is an external
// collaborator concern (spec.md §1 Non-goals); this package exists so the
// retrieval core is independently runnable and testable end-to-end.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"legal-ai-cuda/internal/apperr"
	"legal-ai-cuda/internal/clarification"
	"legal-ai-cuda/internal/domain"
	"legal-ai-cuda/internal/orchestrator"
)

// Server wraps a gin.Engine wired to an orchestrator Container.
type Server struct {
	engine  *gin.Engine
	core    *orchestrator.Container
	clarify *clarification.Engine
	logger  *zap.Logger
}

// New builds a Server, registering every route.
func New(core *orchestrator.Container, clarify *clarification.Engine, logger *zap.Logger) *Server {
	engine := gin.New()
	engine.Use(gin.Logger(), recoverMiddleware(logger), corsMiddleware())

	s := &Server{engine: engine, core: core, clarify: clarify, logger: logger}
	engine.GET("/health", s.health)

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/query", s.handleQuery)
		v1.POST("/clarify", s.handleClarify)
	}

	return s
}

// Engine exposes the underlying gin.Engine for http.ListenAndServe.
func (s *Server) Engine() *gin.Engine { return s.engine }

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// recoverMiddleware never lets a panic reach the client, logging it instead
// (spec §7: the orchestrator recovers every error kind into a well-formed
// envelope and never panics to the HTTP layer).
func recoverMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered in request handler", zap.Any("panic", r), zap.String("path", c.Request.URL.Path))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				c.Abort()
			}
		}()
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now()})
}

type queryRequest struct {
	Query       string  `json:"query" binding:"required"`
	SessionID   string  `json:"session_id"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopK        int     `json:"top_k"`
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format", "details": err.Error()})
		return
	}

	resp, err := s.core.HandleQuery(c.Request.Context(), orchestrator.QueryRequest{
		Query: req.Query, SessionID: req.SessionID,
		MaxTokens: req.MaxTokens, Temperature: req.Temperature, TopK: req.TopK,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type clarifyRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	OptionID  string `json:"option_id" binding:"required"`
}

// handleClarify applies the user's selection to their pending clarification
// state; when the state resolves to AnswerReady, it pins the clarified
// target in the session and re-enters HandleQuery with the original query,
// so the normal answer path runs against the selected document.
func (s *Server) handleClarify(c *gin.Context) {
	var req clarifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format", "details": err.Error()})
		return
	}

	ctx := c.Request.Context()
	sess, err := s.core.Sessions.Get(ctx, req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if sess.PendingClarification == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no pending clarification for this session"})
		return
	}

	var selected domain.ClarificationOption
	found := false
	for _, o := range sess.PendingClarification.OfferedOptions {
		if o.ID == req.OptionID {
			selected = o
			found = true
			break
		}
	}
	if !found {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown option_id"})
		return
	}

	next := s.clarify.Advance(*sess.PendingClarification, selected, time.Now)
	if !clarification.IsAnswerReady(next) {
		sess.PendingClarification = &next
		if err := s.core.Sessions.Save(ctx, sess); err != nil {
			s.logger.Warn("session save failed", zap.Error(err))
		}
		c.JSON(http.StatusOK, gin.H{
			"type":           "clarification_needed",
			"session_id":     sess.SessionID,
			"clarification":  next,
		})
		return
	}

	sess.PendingClarification = nil
	// The router's follow-up and stateful-override paths route to the
	// session's last successful target, so pinning the selection there
	// makes the re-entered turn search only the selected document.
	sess.LastSuccessfulCollection = next.CandidateCollection
	sess.LastSuccessfulDocID = next.CandidateDocID
	sess.LastSuccessfulConfidence = s.core.MinContextConfidence
	sess.LastSuccessfulFilters = domain.SmartFilters{"doc_id": {next.CandidateDocID}}
	if err := s.core.Sessions.Save(ctx, sess); err != nil {
		s.logger.Warn("session save failed", zap.Error(err))
	}

	resp, err := s.core.HandleQuery(ctx, orchestrator.QueryRequest{
		Query: next.OriginalQuery, SessionID: sess.SessionID,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrNoMatch):
		c.JSON(http.StatusNotFound, gin.H{"error": "no matching procedure found"})
	case errors.Is(err, apperr.ErrPromptTooLarge):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "question too large for the model context"})
	case errors.Is(err, apperr.ErrGeneratorTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "generator timed out"})
	case errors.Is(err, apperr.ErrCorpusCorrupt), errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "corpus error", "details": err.Error()})
	default:
		s.logger.Error("unhandled orchestrator error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
