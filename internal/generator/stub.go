package generator

import "context"

// Stub is a deterministic Client for tests and local runs without a model
// endpoint: it returns a fixed answer and ignores the request, so
// orchestrator tests can assert on structure without a live LLM.
type Stub struct {
	Answer string
}

// Generate returns Answer if set, otherwise a fixed placeholder.
func (s Stub) Generate(_ context.Context, req Request) (string, error) {
	if s.Answer != "" {
		return s.Answer, nil
	}
	return "Theo quy định, thủ tục này cần được thực hiện tại cơ quan có thẩm quyền.", nil
}

var _ Client = Stub{}
