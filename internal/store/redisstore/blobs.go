package redisstore

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	blobKeyPrefix     = "flowctl:blob:"
	approvalKeyPrefix = "flowctl:approval:"
)

// Artifacts is a Redis-backed content-addressable blob store satisfying
// dispatcher.ArtifactStore, for deployments that need artifact blobs to
// survive a restart or be shared across coordinator processes. Grounded
// on the teacher's CASClient (content-addressable storage over Redis).
type Artifacts struct {
	client *redis.Client
}

// NewArtifacts wraps an existing *redis.Client.
func NewArtifacts(client *redis.Client) *Artifacts {
	return &Artifacts{client: client}
}

func (a *Artifacts) Put(ctx context.Context, data []byte, _ string) (string, error) {
	id := fmt.Sprintf("sha256:%x", sha256.Sum256(data))
	if err := a.client.Set(ctx, blobKeyPrefix+id, data, 0).Err(); err != nil {
		return "", fmt.Errorf("redisstore: storing blob %s: %w", id, err)
	}
	return id, nil
}

func (a *Artifacts) Get(ctx context.Context, casID string) ([]byte, error) {
	data, err := a.client.Get(ctx, blobKeyPrefix+casID).Bytes()
	if err != nil {
		return nil, fmt.Errorf("redisstore: loading blob %s: %w", casID, err)
	}
	return data, nil
}

// Approvals is a Redis-backed store satisfying dispatcher.ApprovalStore.
// CreateApproval uses SETNX so concurrent coordinator processes racing on
// the same approval key only ever create one record, matching the
// teacher's own SETNX-guarded approval creation.
type Approvals struct {
	client *redis.Client
}

// NewApprovals wraps an existing *redis.Client.
func NewApprovals(client *redis.Client) *Approvals {
	return &Approvals{client: client}
}

func (a *Approvals) CreateApproval(ctx context.Context, key string, request map[string]interface{}) (bool, error) {
	b, err := json.Marshal(request)
	if err != nil {
		return false, fmt.Errorf("redisstore: marshaling approval request: %w", err)
	}
	created, err := a.client.SetNX(ctx, approvalKeyPrefix+key, b, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: creating approval %s: %w", key, err)
	}
	return created, nil
}
