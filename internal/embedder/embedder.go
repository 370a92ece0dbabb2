// Package embedder wraps the Vietnamese embedding model behind a small HTTP
// client, following the teacher's Ollama-client idiom
// (go-enhanced-rag-service/embedding_service.go): JSON request/response,
// context-aware, retried with exponential backoff.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"legal-ai-cuda/internal/apperr"
)

// Client embeds text into the 1024-dim space of the configured Vietnamese
// model (spec §3, Chunk.embedding).
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HTTPClient calls an Ollama-compatible /api/embeddings endpoint.
type HTTPClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	maxRetries int
}

// NewHTTPClient builds a client for the given embedding model endpoint.
func NewHTTPClient(baseURL, model string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding for text, retrying transient failures with
// exponential backoff before surfacing ErrEmbeddingUnavailable.
func (c *HTTPClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		embedding, err := c.call(ctx, text)
		if err == nil {
			return embedding, nil
		}
		lastErr = err

		if attempt < c.maxRetries-1 {
			delay := time.Duration(1<<attempt) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", apperr.ErrEmbeddingUnavailable, lastErr)
}

func (c *HTTPClient) call(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed request failed with status %d: %s", resp.StatusCode, string(b))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("embed response had empty embedding")
	}
	return out.Embedding, nil
}

// Cache wraps a Client with a cache of known reference queries (router
// examples whose embeddings are precomputed offline), per spec §4.C step 1.
type Cache struct {
	inner Client
	known map[string][]float32
}

// NewCache wraps inner with a lookup table of precomputed embeddings.
func NewCache(inner Client, known map[string][]float32) *Cache {
	if known == nil {
		known = map[string][]float32{}
	}
	return &Cache{inner: inner, known: known}
}

// Embed returns the cached embedding when text matches a known reference
// query, otherwise delegates to the wrapped client.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.known[text]; ok {
		return v, nil
	}
	return c.inner.Embed(ctx, text)
}
