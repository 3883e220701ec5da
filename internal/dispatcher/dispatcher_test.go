package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowctl/internal/model"
)

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	d := New()
	var seen model.ActionKind
	d.Register(model.ActionMock, HandlerFunc(func(ctx context.Context, action model.ActionDefinition, input map[string]interface{}) ActionResult {
		seen = action.Kind
		return ActionResult{Success: true, Output: map[string]interface{}{"value": input["x"]}}
	}))

	result := d.Dispatch(context.Background(), model.ActionDefinition{Kind: model.ActionMock}, map[string]interface{}{"x": 42})
	require.True(t, result.Success)
	assert.Equal(t, model.ActionMock, seen)
	assert.Equal(t, 42, result.Output["value"])
	assert.GreaterOrEqual(t, result.Metrics.DurationMs, int64(0))
}

func TestDispatchUnknownKindFailsNonRetryably(t *testing.T) {
	d := New()
	result := d.Dispatch(context.Background(), model.ActionDefinition{Kind: model.ActionKind("bogus")}, nil)
	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, "unknown_action_kind", result.Error.Code)
	assert.False(t, result.Error.Retryable)
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	d := New()
	d.Register(model.ActionMock, HandlerFunc(func(ctx context.Context, action model.ActionDefinition, input map[string]interface{}) ActionResult {
		panic("boom")
	}))

	result := d.Dispatch(context.Background(), model.ActionDefinition{Kind: model.ActionMock}, nil)
	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, "handler_panic", result.Error.Code)
	assert.False(t, result.Error.Retryable)
	assert.Contains(t, result.Error.Message, "boom")
}

func TestDispatchFillsDurationWhenHandlerLeavesItZero(t *testing.T) {
	d := New()
	d.Register(model.ActionMock, HandlerFunc(func(ctx context.Context, action model.ActionDefinition, input map[string]interface{}) ActionResult {
		return ActionResult{Success: true}
	}))

	result := d.Dispatch(context.Background(), model.ActionDefinition{Kind: model.ActionMock}, nil)
	assert.GreaterOrEqual(t, result.Metrics.DurationMs, int64(0))
}

func TestDispatchPreservesHandlerReportedDuration(t *testing.T) {
	d := New()
	d.Register(model.ActionMock, HandlerFunc(func(ctx context.Context, action model.ActionDefinition, input map[string]interface{}) ActionResult {
		return ActionResult{Success: true, Metrics: ActionMetrics{DurationMs: 777}}
	}))

	result := d.Dispatch(context.Background(), model.ActionDefinition{Kind: model.ActionMock}, nil)
	assert.Equal(t, int64(777), result.Metrics.DurationMs)
}
