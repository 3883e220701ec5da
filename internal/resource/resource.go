// Package resource defines the narrow interfaces the coordinator,
// executor, and dispatcher consume from the external resource service
// (§6). The resource service itself — CRUD, versioning, storage — is
// explicitly out of scope; this package only types the lookups the core
// needs plus a minimal in-memory/YAML-fixture implementation sufficient
// to drive the engine end-to-end in tests.
package resource

import (
	"context"
	"fmt"

	"github.com/lyzr/flowctl/internal/model"
)

// ModelProfile names a model and its invocation parameters for the llm
// handler.
type ModelProfile struct {
	ID         string                 `json:"id" yaml:"id"`
	Provider   string                 `json:"provider" yaml:"provider"`
	Model      string                 `json:"model" yaml:"model"`
	Parameters map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// PromptSpec is a reusable named prompt the llm handler can inherit from.
type PromptSpec struct {
	ID           string      `json:"id" yaml:"id"`
	Template     string      `json:"template" yaml:"template"`
	SystemPrompt string      `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	Produces     interface{} `json:"produces,omitempty" yaml:"produces,omitempty"`
}

// Service is the full set of typed lookups and mutations §6 names.
type Service interface {
	GetTask(ctx context.Context, id, version string) (*model.TaskDefinition, error)
	GetAction(ctx context.Context, id, version string) (*model.ActionDefinition, error)
	GetModelProfile(ctx context.Context, id string) (*ModelProfile, error)
	GetPromptSpec(ctx context.Context, id string) (*PromptSpec, error)
	GetWorkflow(ctx context.Context, id, version string) (*model.WorkflowDefinition, error)
	CreateWorkflowRun(ctx context.Context, workflowID string, input map[string]interface{}, rootRunID, parentRunID, parentTokenID string) (workflowRunID string, err error)
}

// NotFoundError reports a missing definition lookup.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource: %s %q not found", e.Kind, e.ID)
}
