// Package executor implements the stateless task runner: it loads a task
// definition, drives its steps in ordinal order, dispatches each step's
// action, and returns a single aggregated result. It holds no
// cross-invocation state — everything it needs travels in the TaskPayload
// and everything it produces travels back in the TaskResult, matching the
// teacher's worker handlers (e.g. cmd/workflow-runner/worker/http_worker.go)
// generalized from "one worker per action kind" to "one task runner that
// delegates to the dispatcher for every kind."
package executor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lyzr/flowctl/internal/condition"
	"github.com/lyzr/flowctl/internal/dispatcher"
	"github.com/lyzr/flowctl/internal/mapping"
	"github.com/lyzr/flowctl/internal/model"
	"github.com/lyzr/flowctl/internal/schema"
)

// Logger is the minimal logging surface the executor needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Resources resolves the immutable definitions the executor needs to run a
// task: the task itself and the action each step invokes.
type Resources interface {
	GetTask(ctx context.Context, taskID, version string) (*model.TaskDefinition, error)
	GetAction(ctx context.Context, actionID, version string) (*model.ActionDefinition, error)
}

// Executor is the stateless task runner described in §4.5.
type Executor struct {
	resources  Resources
	dispatcher *dispatcher.Dispatcher
	conditions *condition.Evaluator
	schemas    *schema.Validator
	log        Logger
}

func New(resources Resources, d *dispatcher.Dispatcher, conditions *condition.Evaluator, log Logger) *Executor {
	return &Executor{resources: resources, dispatcher: d, conditions: conditions, schemas: schema.NewValidator(), log: log}
}

// Run executes one TaskPayload to completion and returns the aggregated
// TaskResult, or an error describing why the task as a whole failed
// (StepFailure, TaskRetry, validation, or an unexpected panic — all
// converted to a non-nil *model.TaskError, never a bare Go error).
func (e *Executor) Run(ctx context.Context, payload model.TaskPayload) (result model.TaskResult, taskErr *model.TaskError) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			taskErr = &model.TaskError{Type: "task_panic", Message: fmt.Sprintf("executor panic: %v", r), Retryable: false}
			result = model.TaskResult{}
		}
		if result.Metrics.DurationMs == 0 && taskErr == nil {
			result.Metrics.DurationMs = time.Since(start).Milliseconds()
		}
	}()

	if payload.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(payload.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	task, err := e.resources.GetTask(ctx, payload.TaskID, payload.TaskVersion)
	if err != nil {
		return model.TaskResult{}, &model.TaskError{Type: "validation", Message: fmt.Sprintf("loading task %s/%s: %v", payload.TaskID, payload.TaskVersion, err), Retryable: false}
	}

	taskKey := payload.TaskID + "/" + payload.TaskVersion
	if task.InputSchema != nil {
		inputSchema, serr := e.schemas.Get(taskKey+":input", task.InputSchema)
		if serr != nil {
			return model.TaskResult{}, &model.TaskError{Type: "validation", Message: fmt.Sprintf("compiling input schema for %s: %v", taskKey, serr), Retryable: false}
		}
		if verr := inputSchema.Validate(payload.Input); verr != nil {
			return model.TaskResult{}, &model.TaskError{Type: "validation", Message: fmt.Sprintf("input does not satisfy schema: %v", verr), Retryable: false}
		}
	}

	taskInput := mergeMaps(payload.Input, map[string]interface{}{
		"_runId":     payload.RunID,
		"_rootRunId": payload.RootRunID,
		"_tokenId":   payload.TokenID,
	})
	if payload.Resources != nil {
		taskInput["_resources"] = payload.Resources
	}
	taskCtx := map[string]interface{}{
		"input":  taskInput,
		"state":  map[string]interface{}{},
		"output": map[string]interface{}{},
	}

	steps := make([]model.Step, len(task.Steps))
	copy(steps, task.Steps)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Ordinal < steps[j].Ordinal })

	var totalTokens int64
	for _, step := range steps {
		outcome := e.conditions.Evaluate(step.Condition, taskCtx)
		switch outcome {
		case model.OutcomeSkip, model.OutcomeSucceed:
			// Neither executes the step; "succeed" additionally marks it
			// successful rather than merely absent, which only matters for
			// trace bookkeeping the executor's result contract doesn't carry.
			continue
		case model.OutcomeFail:
			return model.TaskResult{}, &model.TaskError{Type: "step_failure", StepRef: step.Ref, Message: "condition outcome fail", Retryable: false}
		}

		actionInput, err := mapping.ApplyInput(step.InputMapping, taskCtx)
		if err != nil {
			return model.TaskResult{}, &model.TaskError{Type: "mapping", StepRef: step.Ref, Message: fmt.Sprintf("input mapping for step %s: %v", step.Ref, err), Retryable: false}
		}

		action, err := e.resources.GetAction(ctx, step.ActionID, step.ActionVersion)
		if err != nil {
			return model.TaskResult{}, &model.TaskError{Type: "validation", StepRef: step.Ref, Message: fmt.Sprintf("loading action %s/%s: %v", step.ActionID, step.ActionVersion, err), Retryable: false}
		}

		actionResult := e.dispatcher.Dispatch(ctx, *action, actionInput)
		totalTokens += actionResult.Metrics.LLMTokens

		evalCtx := mergeMaps(taskCtx, map[string]interface{}{"result": actionResult.Output})

		if actionResult.Waiting != nil {
			newCtx, err := mapping.ApplyOutput(step.OutputMapping, actionResult.Output, evalCtx, taskCtx)
			if err != nil {
				return model.TaskResult{}, &model.TaskError{Type: "mapping", StepRef: step.Ref, Message: fmt.Sprintf("output mapping for step %s: %v", step.Ref, err), Retryable: false}
			}
			taskCtx = newCtx
			output := asMap(taskCtx["output"])
			output["_subworkflow"] = map[string]interface{}{
				"kind":       actionResult.Waiting.Kind,
				"childRunId": actionResult.Waiting.ChildRunID,
				"ref":        actionResult.Waiting.Ref,
				"timeoutMs":  actionResult.Waiting.TimeoutMs,
			}
			return model.TaskResult{Success: true, Output: output, Metrics: model.TaskMetrics{DurationMs: time.Since(start).Milliseconds(), LLMTokens: totalTokens}}, nil
		}

		if !actionResult.Success {
			switch step.OnFailure {
			case model.OnFailureRetry:
				return model.TaskResult{}, &model.TaskError{Type: "task_retry", StepRef: step.Ref, Message: actionResult.Error.Message, Retryable: true}
			case model.OnFailureContinue:
				state := asMap(taskCtx["state"])
				errs, _ := state["_errors"].([]interface{})
				errs = append(errs, map[string]interface{}{"step": step.Ref, "error": actionResult.Error.Message})
				state["_errors"] = errs
				taskCtx["state"] = state
			default: // OnFailureAbort and unset
				return model.TaskResult{}, &model.TaskError{Type: "step_failure", StepRef: step.Ref, Message: actionResult.Error.Message, Retryable: actionResult.Error.Retryable}
			}
		}

		newCtx, err := mapping.ApplyOutput(step.OutputMapping, actionResult.Output, evalCtx, taskCtx)
		if err != nil {
			return model.TaskResult{}, &model.TaskError{Type: "mapping", StepRef: step.Ref, Message: fmt.Sprintf("output mapping for step %s: %v", step.Ref, err), Retryable: false}
		}
		taskCtx = newCtx
	}

	output := asMap(taskCtx["output"])
	if task.OutputSchema != nil {
		outputSchema, serr := e.schemas.Get(taskKey+":output", task.OutputSchema)
		if serr != nil {
			return model.TaskResult{}, &model.TaskError{Type: "validation", Message: fmt.Sprintf("compiling output schema for %s: %v", taskKey, serr), Retryable: false}
		}
		if verr := outputSchema.Validate(output); verr != nil {
			return model.TaskResult{}, &model.TaskError{Type: "step_failure", Message: fmt.Sprintf("output does not satisfy schema: %v", verr), Retryable: false}
		}
	}

	return model.TaskResult{
		Success: true,
		Output:  output,
		Metrics: model.TaskMetrics{DurationMs: time.Since(start).Milliseconds(), LLMTokens: totalTokens},
	}, nil
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	if m == nil {
		m = map[string]interface{}{}
	}
	return m
}

func mergeMaps(base, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
