package dispatcher

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowctl/internal/model"
)

type memArtifactStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemArtifactStore() *memArtifactStore {
	return &memArtifactStore{blobs: map[string][]byte{}}
}

func (s *memArtifactStore) Put(_ context.Context, data []byte, _ string) (string, error) {
	id := casIDFor(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = data
	return id, nil
}

func (s *memArtifactStore) Get(_ context.Context, casID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[casID]
	if !ok {
		return nil, assert.AnError
	}
	return data, nil
}

func TestArtifactHandlerPutThenGetRoundTrips(t *testing.T) {
	store := newMemArtifactStore()
	h := NewArtifactHandler(store)

	putResult := h.Handle(context.Background(), model.ActionDefinition{
		Kind:           model.ActionArtifact,
		Implementation: map[string]interface{}{"op": "put"},
	}, map[string]interface{}{"greeting": "hello"})

	require.True(t, putResult.Success)
	casID, _ := putResult.Output["casId"].(string)
	require.NotEmpty(t, casID)

	getResult := h.Handle(context.Background(), model.ActionDefinition{
		Implementation: map[string]interface{}{"op": "get", "casId": casID},
	}, nil)

	require.True(t, getResult.Success)
	content := getResult.Output["content"].(map[string]interface{})
	assert.Equal(t, "hello", content["greeting"])
}

func TestArtifactHandlerGetMissingFails(t *testing.T) {
	h := NewArtifactHandler(newMemArtifactStore())
	result := h.Handle(context.Background(), model.ActionDefinition{
		Implementation: map[string]interface{}{"op": "get", "casId": "sha256:deadbeef"},
	}, nil)
	require.False(t, result.Success)
	assert.False(t, result.Error.Retryable)
}

func TestArtifactHandlerUnknownOpFails(t *testing.T) {
	h := NewArtifactHandler(newMemArtifactStore())
	result := h.Handle(context.Background(), model.ActionDefinition{
		Implementation: map[string]interface{}{"op": "bogus"},
	}, nil)
	require.False(t, result.Success)
}
