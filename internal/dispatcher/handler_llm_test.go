package dispatcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowctl/internal/llmbackend"
	"github.com/lyzr/flowctl/internal/model"
	"github.com/lyzr/flowctl/internal/resource"
	"github.com/lyzr/flowctl/internal/resource/fixture"
	"github.com/lyzr/flowctl/internal/template"
)

type nopLLMLogger struct{ warnings []string }

func (l *nopLLMLogger) Warn(msg string, args ...any) { l.warnings = append(l.warnings, msg) }

func newLLMFixture() *fixture.Store {
	store := fixture.New()
	store.PutModelProfile(&resource.ModelProfile{ID: "gpt", Provider: "openai", Model: "gpt-4o"})
	return store
}

func TestLLMHandlerSucceedsWithPromptTemplate(t *testing.T) {
	store := newLLMFixture()
	backend := llmbackend.NewMockBackend()
	backend.Respond = func(req llmbackend.Request) (llmbackend.Response, error) {
		return llmbackend.Response{Text: "hello there", Tokens: 12}, nil
	}
	h := NewLLMHandler(store, template.NewRaymond(), backend, &nopLLMLogger{})

	action := model.ActionDefinition{
		Kind: model.ActionLLM,
		Implementation: map[string]interface{}{
			"modelProfileId": "gpt",
			"promptTemplate": "Say hi to {{name}}",
		},
	}
	result := h.Handle(context.Background(), action, map[string]interface{}{"name": "World"})
	require.True(t, result.Success)
	assert.Equal(t, "hello there", result.Output["value"])
	assert.Equal(t, int64(12), result.Metrics.LLMTokens)
}

func TestLLMHandlerSucceedsWithPromptSpecOverride(t *testing.T) {
	store := newLLMFixture()
	store.PutPromptSpec(&resource.PromptSpec{
		ID:           "greet",
		Template:     "Greet {{name}}",
		SystemPrompt: "You are terse.",
	})
	var capturedMessages []llmbackend.Message
	backend := llmbackend.NewMockBackend()
	backend.Respond = func(req llmbackend.Request) (llmbackend.Response, error) {
		capturedMessages = req.Messages
		return llmbackend.Response{Text: "hi"}, nil
	}
	h := NewLLMHandler(store, template.NewRaymond(), backend, &nopLLMLogger{})

	action := model.ActionDefinition{
		Implementation: map[string]interface{}{
			"modelProfileId": "gpt",
			"promptSpecId":   "greet",
		},
	}
	result := h.Handle(context.Background(), action, map[string]interface{}{"name": "World"})
	require.True(t, result.Success)
	require.Len(t, capturedMessages, 2)
	assert.Equal(t, "system", capturedMessages[0].Role)
	assert.Equal(t, "You are terse.", capturedMessages[0].Content)
	assert.Equal(t, "Greet World", capturedMessages[1].Content)
}

func TestLLMHandlerMissingModelProfileIdFails(t *testing.T) {
	store := newLLMFixture()
	h := NewLLMHandler(store, template.NewRaymond(), llmbackend.NewMockBackend(), &nopLLMLogger{})

	result := h.Handle(context.Background(), model.ActionDefinition{Implementation: map[string]interface{}{}}, nil)
	require.False(t, result.Success)
	assert.Equal(t, "invalid_implementation", result.Error.Code)
}

func TestLLMHandlerMissingPromptFails(t *testing.T) {
	store := newLLMFixture()
	h := NewLLMHandler(store, template.NewRaymond(), llmbackend.NewMockBackend(), &nopLLMLogger{})

	action := model.ActionDefinition{Implementation: map[string]interface{}{"modelProfileId": "gpt"}}
	result := h.Handle(context.Background(), action, nil)
	require.False(t, result.Success)
	assert.Equal(t, "invalid_implementation", result.Error.Code)
}

func TestLLMHandlerParsesSchemaResponseFromParsedField(t *testing.T) {
	store := newLLMFixture()
	backend := llmbackend.NewMockBackend()
	backend.Respond = func(req llmbackend.Request) (llmbackend.Response, error) {
		require.NotNil(t, req.ResponseFormat)
		return llmbackend.Response{Parsed: map[string]interface{}{"answer": 42}}, nil
	}
	h := NewLLMHandler(store, template.NewRaymond(), backend, &nopLLMLogger{})

	action := model.ActionDefinition{
		Implementation: map[string]interface{}{
			"modelProfileId": "gpt",
			"promptTemplate": "Q",
			"jsonSchema":     map[string]interface{}{"type": "object"},
		},
	}
	result := h.Handle(context.Background(), action, nil)
	require.True(t, result.Success)
	assert.Equal(t, 42, result.Output["answer"])
}

func TestLLMHandlerParsesSchemaResponseFromTextField(t *testing.T) {
	store := newLLMFixture()
	backend := llmbackend.NewMockBackend()
	backend.Respond = func(req llmbackend.Request) (llmbackend.Response, error) {
		return llmbackend.Response{Text: `{"answer": 7}`}, nil
	}
	h := NewLLMHandler(store, template.NewRaymond(), backend, &nopLLMLogger{})

	action := model.ActionDefinition{
		Implementation: map[string]interface{}{
			"modelProfileId": "gpt",
			"promptTemplate": "Q",
			"jsonSchema":     map[string]interface{}{"type": "object"},
		},
	}
	result := h.Handle(context.Background(), action, nil)
	require.True(t, result.Success)
	assert.Equal(t, float64(7), result.Output["answer"])
}

func TestLLMHandlerFallsBackToValueOnUnparsableSchemaResponse(t *testing.T) {
	store := newLLMFixture()
	backend := llmbackend.NewMockBackend()
	backend.Respond = func(req llmbackend.Request) (llmbackend.Response, error) {
		return llmbackend.Response{Text: "not json"}, nil
	}
	log := &nopLLMLogger{}
	h := NewLLMHandler(store, template.NewRaymond(), backend, log)

	action := model.ActionDefinition{
		Implementation: map[string]interface{}{
			"modelProfileId": "gpt",
			"promptTemplate": "Q",
			"jsonSchema":     map[string]interface{}{"type": "object"},
		},
	}
	result := h.Handle(context.Background(), action, nil)
	require.True(t, result.Success)
	assert.Equal(t, "not json", result.Output["value"])
	assert.Len(t, log.warnings, 1)
}

func TestLLMHandlerClassifiesRetryableBackendError(t *testing.T) {
	store := newLLMFixture()
	backend := llmbackend.NewMockBackend()
	backend.Respond = func(req llmbackend.Request) (llmbackend.Response, error) {
		return llmbackend.Response{}, &llmbackend.RetryableError{Err: fmt.Errorf("rate limited")}
	}
	h := NewLLMHandler(store, template.NewRaymond(), backend, &nopLLMLogger{})

	action := model.ActionDefinition{
		Implementation: map[string]interface{}{"modelProfileId": "gpt", "promptTemplate": "Q"},
	}
	result := h.Handle(context.Background(), action, nil)
	require.False(t, result.Success)
	assert.True(t, result.Error.Retryable)
}

func TestLLMHandlerClassifiesNonRetryableBackendError(t *testing.T) {
	store := newLLMFixture()
	backend := llmbackend.NewMockBackend()
	backend.Respond = func(req llmbackend.Request) (llmbackend.Response, error) {
		return llmbackend.Response{}, fmt.Errorf("bad request")
	}
	h := NewLLMHandler(store, template.NewRaymond(), backend, &nopLLMLogger{})

	action := model.ActionDefinition{
		Implementation: map[string]interface{}{"modelProfileId": "gpt", "promptTemplate": "Q"},
	}
	result := h.Handle(context.Background(), action, nil)
	require.False(t, result.Success)
	assert.False(t, result.Error.Retryable)
}
