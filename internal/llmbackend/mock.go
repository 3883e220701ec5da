package llmbackend

import (
	"context"
	"fmt"
)

// MockBackend returns a canned response; useful for tests and
// LLM_BACKEND=mock deployments where no real model is wired.
type MockBackend struct {
	Respond func(req Request) (Response, error)
}

func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

func (b *MockBackend) Run(_ context.Context, req Request) (Response, error) {
	if b.Respond != nil {
		return b.Respond(req)
	}
	var last string
	if len(req.Messages) > 0 {
		last = req.Messages[len(req.Messages)-1].Content
	}
	return Response{Text: fmt.Sprintf("mock response to: %s", last)}, nil
}
