package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowctl/internal/model"
)

type memApprovalStore struct {
	mu      sync.Mutex
	records map[string]map[string]interface{}
}

func newMemApprovalStore() *memApprovalStore {
	return &memApprovalStore{records: map[string]map[string]interface{}{}}
}

func (s *memApprovalStore) CreateApproval(_ context.Context, key string, request map[string]interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[key]; exists {
		return false, nil
	}
	s.records[key] = request
	return true, nil
}

func TestHumanHandlerSuspendsWithApprovalKey(t *testing.T) {
	store := newMemApprovalStore()
	h := NewHumanHandler(store, 24*time.Hour)

	action := model.ActionDefinition{
		Kind:           model.ActionHuman,
		Implementation: map[string]interface{}{"message": "approve this spend?"},
	}
	input := map[string]interface{}{"_runId": "run-1", "_tokenId": "tok-1"}

	result := h.Handle(context.Background(), action, input)

	require.True(t, result.Success)
	require.NotNil(t, result.Waiting)
	assert.Equal(t, "human", result.Waiting.Kind)
	assert.Equal(t, "human:run-1:tok-1", result.Waiting.Ref)
	assert.Equal(t, int64((24 * time.Hour).Milliseconds()), result.Waiting.TimeoutMs)
}

func TestHumanHandlerIsIdempotentOnRepeatedDispatch(t *testing.T) {
	store := newMemApprovalStore()
	h := NewHumanHandler(store, time.Hour)
	action := model.ActionDefinition{Implementation: map[string]interface{}{"message": "x"}}
	input := map[string]interface{}{"_runId": "run-1", "_tokenId": "tok-1"}

	r1 := h.Handle(context.Background(), action, input)
	r2 := h.Handle(context.Background(), action, input)

	require.True(t, r1.Success)
	require.True(t, r2.Success)
	assert.Len(t, store.records, 1)
}

func TestHumanHandlerMissingIdentifiersFails(t *testing.T) {
	h := NewHumanHandler(newMemApprovalStore(), time.Hour)
	result := h.Handle(context.Background(), model.ActionDefinition{}, map[string]interface{}{})
	require.False(t, result.Success)
}
