package dispatcher

import (
	"context"

	"github.com/lyzr/flowctl/internal/expr"
	"github.com/lyzr/flowctl/internal/model"
)

// ContextHandler implements the `context` action kind: passthrough by
// default, or a merge of several expression-resolved sources into a
// target field under one of two policies. Deterministic, always succeeds.
type ContextHandler struct{}

func NewContextHandler() *ContextHandler { return &ContextHandler{} }

func (h *ContextHandler) Handle(_ context.Context, action model.ActionDefinition, input map[string]interface{}) ActionResult {
	mode, _ := action.Implementation["mode"].(string)
	if mode != "merge" {
		return ActionResult{Success: true, Output: input}
	}

	target, _ := action.Implementation["target"].(string)
	policy, _ := action.Implementation["policy"].(string)
	rawSources, _ := action.Implementation["sources"].([]interface{})

	evalCtx := map[string]interface{}{"input": input}
	var values []interface{}
	for _, rs := range rawSources {
		expression, ok := rs.(string)
		if !ok {
			continue
		}
		v, err := expr.Eval(expression, evalCtx)
		if err != nil || v == expr.Absent {
			continue // undefined sources are skipped
		}
		values = append(values, v)
	}

	var merged []interface{}
	switch policy {
	case "append":
		for i, v := range values {
			if i == 0 {
				if arr, ok := v.([]interface{}); ok {
					merged = append(merged, arr...)
					continue
				}
			}
			merged = append(merged, v)
		}
	default: // "flatten"
		for _, v := range values {
			if arr, ok := v.([]interface{}); ok {
				merged = append(merged, arr...)
			} else {
				merged = append(merged, v)
			}
		}
	}

	out := make(map[string]interface{}, len(input)+1)
	for k, v := range input {
		out[k] = v
	}
	out[target] = merged

	return ActionResult{Success: true, Output: out}
}
