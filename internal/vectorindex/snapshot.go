package vectorindex

import (
	"sync/atomic"

	"legal-ai-cuda/internal/domain"
)

// atomicSnapshot holds the read-mostly chunk projection behind an
// atomic.Pointer so rebuild-and-swap (spec §5) never blocks readers.
type atomicSnapshot struct {
	p atomic.Pointer[snapshotData]
}

func (a *atomicSnapshot) Store(s *snapshotData) { a.p.Store(s) }

func (a *atomicSnapshot) Load() *snapshotData {
	s := a.p.Load()
	if s == nil {
		return &snapshotData{byCollection: map[string][]domain.Chunk{}}
	}
	return s
}
