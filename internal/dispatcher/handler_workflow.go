package dispatcher

import (
	"context"

	"github.com/lyzr/flowctl/internal/model"
)

// SubworkflowStarter creates and starts a child run. Implemented by the
// coordinator registry (internal/coordinator) and injected here to avoid
// dispatcher depending on coordinator directly.
type SubworkflowStarter interface {
	StartChildRun(ctx context.Context, workflowID, workflowVersion string, input map[string]interface{}, rootRunID, parentRunID, parentTokenID string) (childRunID string, err error)
}

// WorkflowHandler implements the `workflow` action kind: it creates a
// child run through the resource service, starts its coordinator, and
// returns a `waiting` result so the parent token suspends rather than
// completing.
type WorkflowHandler struct {
	starter SubworkflowStarter
}

func NewWorkflowHandler(starter SubworkflowStarter) *WorkflowHandler {
	return &WorkflowHandler{starter: starter}
}

func (h *WorkflowHandler) Handle(ctx context.Context, action model.ActionDefinition, input map[string]interface{}) ActionResult {
	workflowID, _ := action.Implementation["workflowId"].(string)
	if workflowID == "" {
		return Failf("invalid_implementation", false, "workflow action missing workflowId")
	}
	workflowVersion, _ := action.Implementation["workflowVersion"].(string)

	rootRunID, _ := input["_rootRunId"].(string)
	runID, _ := input["_runId"].(string)
	tokenID, _ := input["_tokenId"].(string)
	if rootRunID == "" {
		rootRunID = runID
	}

	childInput := make(map[string]interface{}, len(input))
	for k, v := range input {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		childInput[k] = v
	}

	childRunID, err := h.starter.StartChildRun(ctx, workflowID, workflowVersion, childInput, rootRunID, runID, tokenID)
	if err != nil {
		return Failf("subworkflow_start_failed", true, "failed to start child run: %v", err)
	}

	var timeoutMs int64
	if t, ok := action.Implementation["timeoutMs"]; ok {
		timeoutMs = toInt64(t)
	}

	return ActionResult{
		Success: true,
		Waiting: &Waiting{Kind: "subworkflow", ChildRunID: childRunID, TimeoutMs: timeoutMs},
	}
}
