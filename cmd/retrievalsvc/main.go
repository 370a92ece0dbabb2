// Command retrievalsvc wires every retrieval-pipeline component into one
// process and serves the reference HTTP surface, following the teacher's
// main.go startup shape (go-enhanced-rag-service/main.go: load config,
// dial dependencies, build the service struct, start gin).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"legal-ai-cuda/internal/clarification"
	"legal-ai-cuda/internal/config"
	"legal-ai-cuda/internal/contextasm"
	"legal-ai-cuda/internal/corpusstore"
	"legal-ai-cuda/internal/domain"
	"legal-ai-cuda/internal/embedder"
	"legal-ai-cuda/internal/events"
	"legal-ai-cuda/internal/formdetector"
	"legal-ai-cuda/internal/generator"
	"legal-ai-cuda/internal/httpapi"
	"legal-ai-cuda/internal/memorylog"
	"legal-ai-cuda/internal/observability/metrics"
	"legal-ai-cuda/internal/observability/tracing"
	"legal-ai-cuda/internal/orchestrator"
	"legal-ai-cuda/internal/reranker"
	"legal-ai-cuda/internal/router"
	"legal-ai-cuda/internal/session"
	"legal-ai-cuda/internal/session/memory"
	"legal-ai-cuda/internal/session/redisstore"
	"legal-ai-cuda/internal/vectorindex"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, "legal-rag-retrievalsvc", cfg.TraceSampleRatio)
	if err != nil {
		logger.Warn("tracing init failed, continuing without export", zap.Error(err))
	} else {
		defer shutdownTracing(context.Background())
	}

	store := corpusstore.New(os.DirFS(cfg.CorpusRoot), logger)
	embed := embedder.NewHTTPClient(cfg.EmbedderURL, cfg.EmbeddingModel)

	questionIndex, err := router.BuildQuestionIndex(ctx, store, embed, logger)
	if err != nil {
		logger.Fatal("building router question index", zap.Error(err))
	}

	cachedEmbedder := embedder.NewCache(embed, questionIndex.KnownEmbeddings())
	rtr := router.New(cachedEmbedder, questionIndex, router.Config{
		HighConfidenceThreshold: cfg.HighConfidenceThreshold,
		MediumHighThreshold:     cfg.MediumHighThreshold,
		MinConfidenceThreshold:  cfg.MinConfidenceThreshold,
		VeryHighConfidenceGate:  cfg.VeryHighConfidenceGate,
		MinContextConfidence:    cfg.MinContextConfidence,
	})

	index, err := buildIndex(ctx, cfg, store, embed, logger)
	if err != nil {
		logger.Fatal("building vector index", zap.Error(err))
	}

	var rrk reranker.Reranker = reranker.NewHTTPReranker(cfg.RerankerURL, logger)
	if !cfg.UseReranker {
		rrk = passThroughReranker{}
	}

	assembler := contextasm.New(store, cfg.NCtx)
	gen := generator.NewHTTPClient(cfg.GeneratorURL, cfg.ChatModel, 60*time.Second)
	formDetector := formdetector.New(formdetector.NewLocalResolver(store))

	var sessions session.Store
	if cfg.RedisURL != "" {
		rs, err := redisstore.New(cfg.RedisURL, 30*time.Minute)
		if err != nil {
			logger.Warn("redis session store unavailable, falling back to in-memory", zap.Error(err))
			sessions = memory.New(30 * time.Minute)
		} else {
			defer rs.Close()
			sessions = rs
		}
	} else {
		sessions = memory.New(30 * time.Minute)
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.RabbitMQURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable, turn events will not be published", zap.Error(err))
		} else {
			defer amqpPub.Close()
			publisher = amqpPub
		}
	}

	var history *memorylog.Log
	if cfg.DatabaseURL != "" {
		h, err := memorylog.Open(cfg.DatabaseURL, logger)
		if err != nil {
			logger.Warn("turn-history log unavailable", zap.Error(err))
		} else {
			history = h
		}
	}

	clarifier := clarification.New(questionIndex)

	core := &orchestrator.Container{
		Sessions:             sessions,
		Router:               rtr,
		Clarifier:            clarifier,
		Index:                index,
		Reranker:             rrk,
		Assembler:            assembler,
		Generator:            gen,
		FormDetector:         formDetector,
		Store:                store,
		Publisher:            publisher,
		History:              history,
		Logger:               logger,
		BroadSearchK:         cfg.BroadSearchK,
		MinContextConfidence: cfg.MinContextConfidence,
		TurnDeadline:         time.Duration(cfg.TurnDeadlineSeconds) * time.Second,
	}

	server := httpapi.New(core, clarifier, logger)
	server.Engine().GET("/metrics", gin.WrapH(metrics.Handler()))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: server.Engine()}

	go func() {
		logger.Info("retrievalsvc listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildIndex loads every collection's documents into a MemoryIndex when no
// Postgres connection string is configured, or wires PgvectorIndex against
// a migrated chunks table otherwise.
func buildIndex(ctx context.Context, cfg config.Config, store corpusstore.Store, embed embedder.Client, logger *zap.Logger) (vectorindex.Index, error) {
	if cfg.DatabaseURL == "" {
		return buildMemoryIndex(ctx, store, embed, logger)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("postgres unavailable, falling back to in-memory vector index", zap.Error(err))
		return buildMemoryIndex(ctx, store, embed, logger)
	}
	return vectorindex.NewPgvectorIndex(pool, embed), nil
}

func buildMemoryIndex(ctx context.Context, store corpusstore.Store, embed embedder.Client, logger *zap.Logger) (*vectorindex.MemoryIndex, error) {
	collections, err := store.ListCollections()
	if err != nil {
		return nil, err
	}

	byCollection := make(map[string][]domain.Chunk, len(collections))
	for _, col := range collections {
		docIDs, err := store.ListDocuments(col.ID)
		if err != nil {
			return nil, err
		}
		var chunks []domain.Chunk
		for _, docID := range docIDs {
			doc, err := store.LoadDocument(col.ID, docID)
			if err != nil {
				logger.Warn("skipping unreadable document", zap.String("collection_id", col.ID), zap.String("doc_id", docID), zap.Error(err))
				continue
			}
			for _, c := range doc.Chunks {
				if c.Embedding == nil {
					vec, err := embed.Embed(ctx, c.Content)
					if err != nil {
						logger.Warn("skipping chunk with unembeddable content", zap.String("doc_id", docID), zap.Error(err))
						continue
					}
					c.Embedding = vec
				}
				chunks = append(chunks, c)
			}
		}
		byCollection[col.ID] = chunks
	}

	return vectorindex.NewMemoryIndex(embed, byCollection), nil
}

type passThroughReranker struct{}

func (passThroughReranker) Rerank(_ context.Context, _ string, c []vectorindex.ScoredChunk) ([]vectorindex.ScoredChunk, error) {
	return c, nil
}
