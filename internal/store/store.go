// Package store persists the "Persisted run state" named in §6: runId,
// parent linkage, status, startedAt/completedAt, and final output.
// Token-level state is explicitly out of scope here — it is ephemeral
// except for the event-trace purposes internal/emitter already serves.
//
// RunStore is deliberately narrow: a run-record upsert plus a lookup,
// grounded on the teacher's cmd/workflow-runner/sdk/sdk.go but scoped down
// from its full per-token counter/CAS system (ApplyDelta, Consume,
// LoadNodeOutput, GetCounter) to just the run-level record §6 actually asks
// a coordinator to persist.
package store

import (
	"context"
	"fmt"

	"github.com/lyzr/flowctl/internal/model"
)

// RunStore persists and retrieves run records. Save is an upsert: a
// Coordinator calls it on every lifecycle transition (started, completed,
// failed, cancelled), not just once at creation.
type RunStore interface {
	Save(ctx context.Context, run model.Run) error
	Get(ctx context.Context, runID string) (model.Run, error)
}

// NotFoundError reports a run ID with no saved record.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("store: run %q not found", e.RunID)
}
