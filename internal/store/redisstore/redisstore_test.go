package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowctl/internal/model"
	"github.com/lyzr/flowctl/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client)
}

func TestSaveAndGetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := model.Run{
		RunID:           "run-1",
		RootRunID:       "run-1",
		WorkflowID:      "wf",
		WorkflowVersion: "v1",
		Input:           map[string]interface{}{"a": float64(1)},
		Status:          model.RunRunning,
		StartedAt:       time.Now().Truncate(time.Millisecond),
	}
	require.NoError(t, s.Save(ctx, run))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "wf", got.WorkflowID)
	assert.Equal(t, model.RunRunning, got.Status)
	assert.Equal(t, float64(1), got.Input["a"])
	assert.Nil(t, got.CompletedAt)
}

func TestSaveOverwritesExistingRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, model.Run{RunID: "run-1", Status: model.RunRunning, StartedAt: time.Now()}))

	now := time.Now().Truncate(time.Millisecond)
	require.NoError(t, s.Save(ctx, model.Run{
		RunID:       "run-1",
		Status:      model.RunCompleted,
		Output:      map[string]interface{}{"ok": true},
		CompletedAt: &now,
	}))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.Output["ok"].(bool))
}

func TestGetUnknownRunReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	var nfe *store.NotFoundError
	require.ErrorAs(t, err, &nfe)
}
