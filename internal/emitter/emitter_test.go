package emitter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterOrdersEventsPerRun(t *testing.T) {
	e := New(nil, nil)
	ctx := context.Background()

	e.Emit(ctx, "run-1", "run.started", nil)
	e.Emit(ctx, "run-1", "token.dispatched", map[string]interface{}{"tokenId": "t1"})
	e.Emit(ctx, "run-1", "run.completed", nil)

	events := e.Replay("run-1")
	require.Len(t, events, 3)
	assert.Equal(t, []string{"run.started", "token.dispatched", "run.completed"}, []string{events[0].Kind, events[1].Kind, events[2].Kind})
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, int64(3), events[2].Seq)
}

func TestEmitterIsolatesRuns(t *testing.T) {
	e := New(nil, nil)
	ctx := context.Background()

	e.Emit(ctx, "run-a", "run.started", nil)
	e.Emit(ctx, "run-b", "run.started", nil)
	e.Emit(ctx, "run-a", "run.completed", nil)

	assert.Len(t, e.Replay("run-a"), 2)
	assert.Len(t, e.Replay("run-b"), 1)
}

func TestEmitterSubscribeReceivesLiveEvents(t *testing.T) {
	e := New(nil, nil)
	ctx := context.Background()
	ch, unsubscribe := e.Subscribe("run-1")
	defer unsubscribe()

	e.Emit(ctx, "run-1", "run.started", nil)

	select {
	case ev := <-ch:
		assert.Equal(t, "run.started", ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscribed event")
	}
}

func TestEmitterForgetClosesSubscribers(t *testing.T) {
	e := New(nil, nil)
	ch, _ := e.Subscribe("run-1")

	e.Forget("run-1")

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after Forget")
	assert.Empty(t, e.Replay("run-1"))
}
