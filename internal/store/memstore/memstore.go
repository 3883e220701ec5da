// Package memstore is an in-memory store.RunStore, suitable for tests and
// for a single-process deployment that doesn't need run records to survive
// a restart. Grounded on the same mutex-protected-map shape used
// throughout this module (internal/resource/fixture.Store,
// internal/coordinator.Manager).
package memstore

import (
	"context"
	"sync"

	"github.com/lyzr/flowctl/internal/model"
	"github.com/lyzr/flowctl/internal/store"
)

// Store is an in-memory, thread-safe store.RunStore.
type Store struct {
	mu   sync.RWMutex
	runs map[string]model.Run
}

// New builds an empty Store.
func New() *Store {
	return &Store{runs: make(map[string]model.Run)}
}

func (s *Store) Save(_ context.Context, run model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	return nil
}

func (s *Store) Get(_ context.Context, runID string) (model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return model.Run{}, &store.NotFoundError{RunID: runID}
	}
	return run, nil
}

// Children returns every saved run whose ParentRunID is parentRunID, in no
// particular order. Useful for an API layer listing a run's sub-workflows.
func (s *Store) Children(_ context.Context, parentRunID string) []model.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Run
	for _, run := range s.runs {
		if run.ParentRunID == parentRunID {
			out = append(out, run)
		}
	}
	return out
}
