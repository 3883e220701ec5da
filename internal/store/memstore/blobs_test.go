package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactBlobsPutThenGetRoundTrips(t *testing.T) {
	s := NewArtifactBlobs()
	id, err := s.Put(context.Background(), []byte("hello"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "sha256:", id[:7])

	data, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestArtifactBlobsGetMissingFails(t *testing.T) {
	s := NewArtifactBlobs()
	_, err := s.Get(context.Background(), "sha256:deadbeef")
	assert.Error(t, err)
}

func TestApprovalsCreateApprovalIsIdempotent(t *testing.T) {
	s := NewApprovals()
	ctx := context.Background()
	created1, err := s.CreateApproval(ctx, "human:run-1:tok-1", map[string]interface{}{"message": "ok?"})
	require.NoError(t, err)
	assert.True(t, created1)

	created2, err := s.CreateApproval(ctx, "human:run-1:tok-1", map[string]interface{}{"message": "different"})
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Len(t, s.records, 1)
}
