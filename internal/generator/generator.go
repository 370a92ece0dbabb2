// Package generator implements the LLM generation contract (spec §6): a
// single chat-formatted prompt in, plain text out, with ChatML-like tags
// stripped post-hoc.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"legal-ai-cuda/internal/apperr"
)

// SystemPrompt is the fixed system prompt sent with every generation
// request (spec §6): prioritize nucleus content, 5-7 sentences, no
// decorative characters, form/fee call-outs.
const SystemPrompt = `Bạn là trợ lý pháp lý. Ưu tiên nội dung trong cặp thẻ nucleus. ` +
	`Trả lời từ 5 đến 7 câu, không dùng ký tự trang trí. ` +
	`Nếu has_form=true, nêu một dòng về biểu mẫu đính kèm. ` +
	`Với câu hỏi về phí, phân biệt rõ phí thủ tục chính (miễn phí khi fee_vnd=0) và phí sao y/bản sao.`

// Request is one generation call: system prompt, bounded history, and the
// assembled user content wrapped in document sentinels.
type Request struct {
	History     []HistoryTurn
	UserContent string
	MaxTokens   int
	Temperature float64
}

// HistoryTurn is one retained prior exchange, rendered into the prompt.
type HistoryTurn struct {
	Query  string
	Answer string
}

// Client generates an answer from a Request.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// HTTPClient calls an Ollama-style chat completion endpoint, following the
// teacher's embedding_service.go client idiom.
type HTTPClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewHTTPClient builds a client for the configured chat model endpoint.
func NewHTTPClient(baseURL, model string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Response string `json:"response"`
}

var chatMLTagPattern = regexp.MustCompile(`<\|[^|]*\|>`)

// Generate builds the full chat-formatted prompt and calls the model,
// stripping ChatML-like tags from the response. A context deadline exceeded
// is surfaced as ErrGeneratorTimeout.
func (c *HTTPClient) Generate(ctx context.Context, req Request) (string, error) {
	prompt := buildPrompt(req)

	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", apperr.ErrGeneratorTimeout, err)
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate request failed with status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return strings.TrimSpace(chatMLTagPattern.ReplaceAllString(out.Response, "")), nil
}

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("<|system|>\n")
	b.WriteString(SystemPrompt)
	b.WriteString("\n")
	for _, h := range req.History {
		b.WriteString("<|user|>\n")
		b.WriteString(h.Query)
		b.WriteString("\n<|assistant|>\n")
		b.WriteString(h.Answer)
		b.WriteString("\n")
	}
	b.WriteString("<|user|>\n")
	b.WriteString(req.UserContent)
	b.WriteString("\n<|assistant|>\n")
	return b.String()
}

var _ Client = (*HTTPClient)(nil)
