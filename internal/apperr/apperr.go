// Package apperr defines the error kinds propagated across the retrieval
// pipeline (spec §7). Callers compare with errors.Is; the orchestrator never
// lets one of these bubble to the chat surface as a raw exception.
package apperr

import "errors"

var (
	// ErrNotFound is returned by the corpus store when a document or
	// collection does not exist on disk.
	ErrNotFound = errors.New("apperr: not found")

	// ErrCorpusCorrupt wraps a JSON decode failure in the corpus store.
	// Fatal at startup; serving paths degrade to "no info".
	ErrCorpusCorrupt = errors.New("apperr: corpus corrupt")

	// ErrEmbeddingUnavailable is returned by the router or vector index
	// when the embedding model cannot be reached. Fatal for the turn.
	ErrEmbeddingUnavailable = errors.New("apperr: embedding unavailable")

	// ErrRouterNotReady means the router's question-index projection
	// failed to build at startup.
	ErrRouterNotReady = errors.New("apperr: router not ready")

	// ErrFilterEmpty means a filtered vector search returned zero
	// candidates; callers retry unfiltered.
	ErrFilterEmpty = errors.New("apperr: filter produced no candidates")

	// ErrRerankerUnavailable means the cross-encoder could not be
	// reached; callers degrade to the unreranked vector order.
	ErrRerankerUnavailable = errors.New("apperr: reranker unavailable")

	// ErrPromptTooLarge means the assembled context would exceed the
	// configured token budget even before truncation could help.
	ErrPromptTooLarge = errors.New("apperr: prompt too large")

	// ErrGeneratorTimeout means the LLM call was cancelled by the turn
	// deadline. The orchestrator returns a partial, incomplete answer.
	ErrGeneratorTimeout = errors.New("apperr: generator timeout")

	// ErrSessionMiss is returned by a session store when a session_id is
	// unknown; the orchestrator logs it (not fatal) and creates a fresh
	// session.
	ErrSessionMiss = errors.New("apperr: session miss")

	// ErrNoMatch is returned by the orchestrator when vector search finds
	// no candidate in the routed collection, even after the unfiltered retry.
	ErrNoMatch = errors.New("apperr: no match")
)
