package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowctl/internal/condition"
	"github.com/lyzr/flowctl/internal/dispatcher"
	"github.com/lyzr/flowctl/internal/model"
)

type fakeResources struct {
	tasks   map[string]*model.TaskDefinition
	actions map[string]*model.ActionDefinition
}

func newFakeResources() *fakeResources {
	return &fakeResources{tasks: map[string]*model.TaskDefinition{}, actions: map[string]*model.ActionDefinition{}}
}

func (r *fakeResources) GetTask(_ context.Context, taskID, version string) (*model.TaskDefinition, error) {
	t, ok := r.tasks[taskID+"/"+version]
	if !ok {
		return nil, assert.AnError
	}
	return t, nil
}

func (r *fakeResources) GetAction(_ context.Context, actionID, version string) (*model.ActionDefinition, error) {
	a, ok := r.actions[actionID+"/"+version]
	if !ok {
		return nil, assert.AnError
	}
	return a, nil
}

func newTestExecutor(resources *fakeResources, d *dispatcher.Dispatcher) *Executor {
	return New(resources, d, condition.New(nil), nil)
}

func TestExecutorRunsStepsInOrdinalOrderAndAppliesMappings(t *testing.T) {
	resources := newFakeResources()
	resources.actions["double/v1"] = &model.ActionDefinition{ID: "double", Version: "v1", Kind: model.ActionMock}
	resources.tasks["t/v1"] = &model.TaskDefinition{
		ID: "t", Version: "v1",
		Steps: []model.Step{
			{
				Ref: "step2", Ordinal: 2, ActionID: "double", ActionVersion: "v1",
				InputMapping:  map[string]interface{}{"n": "input.n"},
				OutputMapping: map[string]interface{}{"output.second": "result"},
			},
			{
				Ref: "step1", Ordinal: 1, ActionID: "double", ActionVersion: "v1",
				InputMapping:  map[string]interface{}{"n": "input.n"},
				OutputMapping: map[string]interface{}{"output.first": "result"},
			},
		},
	}

	d := dispatcher.New()
	d.Register(model.ActionMock, dispatcher.HandlerFunc(func(_ context.Context, _ model.ActionDefinition, input map[string]interface{}) dispatcher.ActionResult {
		return dispatcher.ActionResult{Success: true, Output: map[string]interface{}{"n": input["n"]}}
	}))

	e := newTestExecutor(resources, d)
	result, taskErr := e.Run(context.Background(), model.TaskPayload{
		RunID: "run-1", RootRunID: "run-1", TokenID: "tok-1",
		TaskID: "t", TaskVersion: "v1", Input: map[string]interface{}{"n": float64(3)},
	})

	require.Nil(t, taskErr)
	require.True(t, result.Success)
	first := result.Output["first"].(map[string]interface{})
	second := result.Output["second"].(map[string]interface{})
	assert.Equal(t, float64(3), first["n"])
	assert.Equal(t, float64(3), second["n"])
}

func TestExecutorOnFailureAbortStopsWithStepFailure(t *testing.T) {
	resources := newFakeResources()
	resources.actions["fail/v1"] = &model.ActionDefinition{ID: "fail", Version: "v1", Kind: model.ActionMock}
	resources.tasks["t/v1"] = &model.TaskDefinition{
		ID: "t", Version: "v1",
		Steps: []model.Step{{Ref: "s1", Ordinal: 1, ActionID: "fail", ActionVersion: "v1", OnFailure: model.OnFailureAbort}},
	}

	d := dispatcher.New()
	d.Register(model.ActionMock, dispatcher.HandlerFunc(func(context.Context, model.ActionDefinition, map[string]interface{}) dispatcher.ActionResult {
		return dispatcher.Failf("boom", false, "it broke")
	}))

	e := newTestExecutor(resources, d)
	_, taskErr := e.Run(context.Background(), model.TaskPayload{TaskID: "t", TaskVersion: "v1"})

	require.NotNil(t, taskErr)
	assert.Equal(t, "step_failure", taskErr.Type)
	assert.False(t, taskErr.Retryable)
}

func TestExecutorOnFailureRetryReturnsRetryableError(t *testing.T) {
	resources := newFakeResources()
	resources.actions["fail/v1"] = &model.ActionDefinition{ID: "fail", Version: "v1", Kind: model.ActionMock}
	resources.tasks["t/v1"] = &model.TaskDefinition{
		ID: "t", Version: "v1",
		Steps: []model.Step{{Ref: "s1", Ordinal: 1, ActionID: "fail", ActionVersion: "v1", OnFailure: model.OnFailureRetry}},
	}

	d := dispatcher.New()
	d.Register(model.ActionMock, dispatcher.HandlerFunc(func(context.Context, model.ActionDefinition, map[string]interface{}) dispatcher.ActionResult {
		return dispatcher.Failf("boom", true, "transient")
	}))

	e := newTestExecutor(resources, d)
	_, taskErr := e.Run(context.Background(), model.TaskPayload{TaskID: "t", TaskVersion: "v1"})

	require.NotNil(t, taskErr)
	assert.Equal(t, "task_retry", taskErr.Type)
	assert.True(t, taskErr.Retryable)
}

func TestExecutorOnFailureContinueRecordsErrorAndProceeds(t *testing.T) {
	resources := newFakeResources()
	resources.actions["fail/v1"] = &model.ActionDefinition{ID: "fail", Version: "v1", Kind: model.ActionMock}
	resources.actions["ok/v1"] = &model.ActionDefinition{ID: "ok", Version: "v1", Kind: model.ActionContext}
	resources.tasks["t/v1"] = &model.TaskDefinition{
		ID: "t", Version: "v1",
		Steps: []model.Step{
			{Ref: "s1", Ordinal: 1, ActionID: "fail", ActionVersion: "v1", OnFailure: model.OnFailureContinue},
			{Ref: "s2", Ordinal: 2, ActionID: "ok", ActionVersion: "v1"},
		},
	}

	d := dispatcher.New()
	d.Register(model.ActionMock, dispatcher.HandlerFunc(func(context.Context, model.ActionDefinition, map[string]interface{}) dispatcher.ActionResult {
		return dispatcher.Failf("boom", false, "bad")
	}))
	d.Register(model.ActionContext, dispatcher.NewContextHandler())

	e := newTestExecutor(resources, d)
	result, taskErr := e.Run(context.Background(), model.TaskPayload{TaskID: "t", TaskVersion: "v1", Input: map[string]interface{}{}})

	require.Nil(t, taskErr)
	require.True(t, result.Success)
}

func TestExecutorConditionSkipDoesNotExecuteStep(t *testing.T) {
	resources := newFakeResources()
	resources.actions["should-not-run/v1"] = &model.ActionDefinition{ID: "should-not-run", Version: "v1", Kind: model.ActionMock}
	resources.tasks["t/v1"] = &model.TaskDefinition{
		ID: "t", Version: "v1",
		Steps: []model.Step{{
			Ref: "s1", Ordinal: 1, ActionID: "should-not-run", ActionVersion: "v1",
			Condition: &model.Condition{If: "false", Then: "continue", Else: "skip"},
		}},
	}

	d := dispatcher.New()
	called := false
	d.Register(model.ActionMock, dispatcher.HandlerFunc(func(context.Context, model.ActionDefinition, map[string]interface{}) dispatcher.ActionResult {
		called = true
		return dispatcher.ActionResult{Success: true}
	}))

	e := newTestExecutor(resources, d)
	result, taskErr := e.Run(context.Background(), model.TaskPayload{TaskID: "t", TaskVersion: "v1", Input: map[string]interface{}{}})

	require.Nil(t, taskErr)
	require.True(t, result.Success)
	assert.False(t, called)
}

func TestExecutorRejectsInputViolatingSchema(t *testing.T) {
	resources := newFakeResources()
	resources.tasks["t/v1"] = &model.TaskDefinition{
		ID: "t", Version: "v1",
		InputSchema: map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"name"},
		},
	}

	e := newTestExecutor(resources, dispatcher.New())
	_, taskErr := e.Run(context.Background(), model.TaskPayload{TaskID: "t", TaskVersion: "v1", Input: map[string]interface{}{}})

	require.NotNil(t, taskErr)
	assert.Equal(t, "validation", taskErr.Type)
	assert.False(t, taskErr.Retryable)
}

func TestExecutorRejectsOutputViolatingSchema(t *testing.T) {
	resources := newFakeResources()
	resources.actions["ctx/v1"] = &model.ActionDefinition{ID: "ctx", Version: "v1", Kind: model.ActionContext}
	resources.tasks["t/v1"] = &model.TaskDefinition{
		ID: "t", Version: "v1",
		Steps: []model.Step{{Ref: "s1", Ordinal: 1, ActionID: "ctx", ActionVersion: "v1"}},
		OutputSchema: map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"mustHaveThis"},
		},
	}

	d := dispatcher.New()
	d.Register(model.ActionContext, dispatcher.NewContextHandler())

	e := newTestExecutor(resources, d)
	_, taskErr := e.Run(context.Background(), model.TaskPayload{TaskID: "t", TaskVersion: "v1", Input: map[string]interface{}{}})

	require.NotNil(t, taskErr)
	assert.Equal(t, "step_failure", taskErr.Type)
}

func TestExecutorPropagatesSubworkflowWaiting(t *testing.T) {
	resources := newFakeResources()
	resources.actions["spawn/v1"] = &model.ActionDefinition{ID: "spawn", Version: "v1", Kind: model.ActionWorkflow}
	resources.tasks["t/v1"] = &model.TaskDefinition{
		ID: "t", Version: "v1",
		Steps: []model.Step{{Ref: "s1", Ordinal: 1, ActionID: "spawn", ActionVersion: "v1"}},
	}

	d := dispatcher.New()
	d.Register(model.ActionWorkflow, dispatcher.HandlerFunc(func(context.Context, model.ActionDefinition, map[string]interface{}) dispatcher.ActionResult {
		return dispatcher.ActionResult{Success: true, Waiting: &dispatcher.Waiting{Kind: "subworkflow", ChildRunID: "child-1", TimeoutMs: 5000}}
	}))

	e := newTestExecutor(resources, d)
	result, taskErr := e.Run(context.Background(), model.TaskPayload{TaskID: "t", TaskVersion: "v1", Input: map[string]interface{}{}})

	require.Nil(t, taskErr)
	require.True(t, result.Success)
	sub := result.Output["_subworkflow"].(map[string]interface{})
	assert.Equal(t, "child-1", sub["childRunId"])
}
