// Package memorylog implements a best-effort durable turn-history log,
// adapting the teacher's MemoryEngine/gorm wiring
// (go-enhanced-rag-service/memory_engine.go) from semantic recall memory
// into a write-behind audit trail of routing decisions. It is observability
// only: never read by the routing path, so it carries no consistency
// requirement for correctness (spec.md's "strong-consistency storage"
// Non-goal is about the routing path, not this log).
package memorylog

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// TurnRecord is one logged turn, mirroring the teacher's MemoryInteraction
// row shape (id/session/timestamps/jsonb metadata) generalized to routing
// outcomes instead of semantic memory.
type TurnRecord struct {
	ID                 string `gorm:"primaryKey"`
	SessionID          string `gorm:"index"`
	Query              string
	Status             string
	TargetCollection   string
	TargetDocID        string
	Confidence         float64
	OriginalConfidence float64
	WasOverridden      bool
	CreatedAt          time.Time
}

// Log is the durable turn-history sink.
type Log struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to databaseURL and migrates the turn_records table,
// following the teacher's gorm.Open(postgres.Open(...)) idiom.
func Open(databaseURL string, logger *zap.Logger) (*Log, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&TurnRecord{}); err != nil {
		return nil, err
	}
	return &Log{db: db, logger: logger}, nil
}

// Append writes rec best-effort: failures are logged, never surfaced to the
// turn, since this log is observability rather than a correctness dependency.
func (l *Log) Append(ctx context.Context, rec TurnRecord) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := l.db.WithContext(ctx).Create(&rec).Error; err != nil {
		l.logger.Warn("turn history write failed", zap.Error(err), zap.String("session_id", rec.SessionID))
	}
}

// Close releases the underlying connection pool.
func (l *Log) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
