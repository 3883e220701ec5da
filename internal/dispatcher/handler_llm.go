package dispatcher

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/lyzr/flowctl/internal/llmbackend"
	"github.com/lyzr/flowctl/internal/model"
	"github.com/lyzr/flowctl/internal/resource"
	"github.com/lyzr/flowctl/internal/template"
)

// Logger is the minimal logging surface the llm handler needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// LLMHandler implements the `llm` action kind: model-profile and
// prompt-spec resolution, Handlebars-style template rendering, and a
// pluggable backend.
type LLMHandler struct {
	resources resource.Service
	renderer  template.Renderer
	backend   llmbackend.Backend
	log       Logger
}

func NewLLMHandler(resources resource.Service, renderer template.Renderer, backend llmbackend.Backend, log Logger) *LLMHandler {
	return &LLMHandler{resources: resources, renderer: renderer, backend: backend, log: log}
}

func (h *LLMHandler) Handle(ctx context.Context, action model.ActionDefinition, input map[string]interface{}) ActionResult {
	impl := action.Implementation

	modelProfileID, _ := impl["modelProfileId"].(string)
	if modelProfileID == "" {
		return Failf("invalid_implementation", false, "llm action missing required modelProfileId")
	}
	profile, err := h.resources.GetModelProfile(ctx, modelProfileID)
	if err != nil {
		return Failf("model_profile_not_found", false, "%v", err)
	}

	promptTemplate, _ := impl["promptTemplate"].(string)
	systemPrompt, _ := impl["systemPrompt"].(string)
	var jsonSchema map[string]interface{}
	if s, ok := impl["jsonSchema"].(map[string]interface{}); ok {
		jsonSchema = s
	}

	if promptSpecID, ok := impl["promptSpecId"].(string); ok && promptSpecID != "" {
		spec, err := h.resources.GetPromptSpec(ctx, promptSpecID)
		if err != nil {
			return Failf("prompt_spec_not_found", false, "%v", err)
		}
		promptTemplate = spec.Template
		if systemPrompt == "" {
			systemPrompt = spec.SystemPrompt
		}
		if jsonSchema == nil {
			if s, ok := spec.Produces.(map[string]interface{}); ok {
				jsonSchema = s
			}
		}
	}

	if promptTemplate == "" {
		return Failf("invalid_implementation", false, "llm action needs exactly one of promptSpecId or promptTemplate")
	}

	userMsg, err := h.renderer.Render(promptTemplate, input)
	if err != nil {
		return Failf("template_render_failed", false, "rendering promptTemplate: %v", err)
	}
	var messages []llmbackend.Message
	if systemPrompt != "" {
		renderedSystem, err := h.renderer.Render(systemPrompt, input)
		if err != nil {
			return Failf("template_render_failed", false, "rendering systemPrompt: %v", err)
		}
		messages = append(messages, llmbackend.Message{Role: "system", Content: renderedSystem})
	}
	messages = append(messages, llmbackend.Message{Role: "user", Content: userMsg})

	req := llmbackend.Request{
		ModelID:    profile.Model,
		Messages:   messages,
		Parameters: profile.Parameters,
	}
	if jsonSchema != nil {
		req.ResponseFormat = &llmbackend.ResponseFormat{
			Type: "json_schema",
			JSONSchema: map[string]interface{}{
				"strict": true,
				"schema": jsonSchema,
			},
		}
	}

	resp, err := h.backend.Run(ctx, req)
	if err != nil {
		var retryable *llmbackend.RetryableError
		return Failf("llm_backend_error", errors.As(err, &retryable), "%v", err)
	}

	output := map[string]interface{}{}
	if jsonSchema != nil {
		if resp.Parsed != nil {
			output = resp.Parsed
		} else {
			var parsed map[string]interface{}
			if err := json.Unmarshal([]byte(resp.Text), &parsed); err == nil {
				output = parsed
			} else {
				if h.log != nil {
					h.log.Warn("llm response was not valid JSON for schema-bearing action", "actionId", action.ID, "error", err)
				}
				output = map[string]interface{}{"value": resp.Text}
			}
		}
	} else {
		output = map[string]interface{}{"value": resp.Text}
	}

	return ActionResult{
		Success: true,
		Output:  output,
		Metrics: ActionMetrics{LLMTokens: resp.Tokens},
	}
}
