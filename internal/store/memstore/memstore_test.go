package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowctl/internal/model"
	"github.com/lyzr/flowctl/internal/store"
)

func TestSaveAndGetRoundTrips(t *testing.T) {
	s := New()
	run := model.Run{RunID: "run-1", WorkflowID: "wf", Status: model.RunRunning, StartedAt: time.Now()}
	require.NoError(t, s.Save(context.Background(), run))

	got, err := s.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.WorkflowID, got.WorkflowID)
	assert.Equal(t, model.RunRunning, got.Status)
}

func TestSaveIsUpsert(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, model.Run{RunID: "run-1", Status: model.RunRunning}))

	now := time.Now()
	require.NoError(t, s.Save(ctx, model.Run{RunID: "run-1", Status: model.RunCompleted, CompletedAt: &now}))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestGetUnknownRunReturnsNotFound(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	var nfe *store.NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, "missing", nfe.RunID)
}

func TestChildrenFiltersByParentRunID(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, model.Run{RunID: "root", Status: model.RunRunning}))
	require.NoError(t, s.Save(ctx, model.Run{RunID: "child-1", ParentRunID: "root", Status: model.RunRunning}))
	require.NoError(t, s.Save(ctx, model.Run{RunID: "child-2", ParentRunID: "root", Status: model.RunCompleted}))
	require.NoError(t, s.Save(ctx, model.Run{RunID: "unrelated", Status: model.RunRunning}))

	children := s.Children(ctx, "root")
	assert.Len(t, children, 2)
}
