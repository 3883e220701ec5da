package memstore

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
)

// ArtifactBlobs is an in-memory content-addressable blob store satisfying
// dispatcher.ArtifactStore: Put hashes and stores data once, Get reads it
// back by the same hash. Suitable for a single-process deployment or
// tests; internal/store/redisstore.Artifacts is the cross-process
// equivalent.
type ArtifactBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewArtifactBlobs builds an empty blob store.
func NewArtifactBlobs() *ArtifactBlobs {
	return &ArtifactBlobs{blobs: map[string][]byte{}}
}

func (s *ArtifactBlobs) Put(_ context.Context, data []byte, _ string) (string, error) {
	id := fmt.Sprintf("sha256:%x", sha256.Sum256(data))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = data
	return id, nil
}

func (s *ArtifactBlobs) Get(_ context.Context, casID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[casID]
	if !ok {
		return nil, fmt.Errorf("memstore: blob %q not found", casID)
	}
	return data, nil
}

// Approvals is an in-memory store satisfying dispatcher.ApprovalStore:
// CreateApproval only records a request the first time a given key is
// seen, matching the teacher's SETNX-based idempotent approval creation.
type Approvals struct {
	mu      sync.Mutex
	records map[string]map[string]interface{}
}

// NewApprovals builds an empty approval store.
func NewApprovals() *Approvals {
	return &Approvals{records: map[string]map[string]interface{}{}}
}

func (s *Approvals) CreateApproval(_ context.Context, key string, request map[string]interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[key]; exists {
		return false, nil
	}
	s.records[key] = request
	return true, nil
}
