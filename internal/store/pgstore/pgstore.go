// Package pgstore is a Postgres-backed store.RunStore, for deployments
// that want run records to survive a restart without taking on Redis.
// Grounded on the teacher's common/db/db.go pgxpool wrapper; scoped to a
// single `runs` table rather than the teacher's CAS-blob/tag/patch-chain
// schema, since §6's "Persisted run state" names only runId, parent
// linkage, status, timestamps, and final output.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lyzr/flowctl/internal/model"
	"github.com/lyzr/flowctl/internal/store"
)

// Schema is the DDL for the single table this store needs. Callers run
// migrations themselves; this is provided for convenience (e.g. a
// bootstrap stage that runs it against a fresh database in dev/test).
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id           TEXT PRIMARY KEY,
	root_run_id      TEXT NOT NULL,
	workflow_id      TEXT NOT NULL,
	workflow_version TEXT NOT NULL,
	parent_run_id    TEXT NOT NULL DEFAULT '',
	parent_token_id  TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	input            JSONB NOT NULL DEFAULT '{}',
	output           JSONB NOT NULL DEFAULT '{}',
	started_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ
);
`

// Store is a store.RunStore backed by a Postgres `runs` table.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. The caller owns the pool's lifecycle.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Save(ctx context.Context, run model.Run) error {
	inputJSON, err := json.Marshal(run.Input)
	if err != nil {
		return fmt.Errorf("pgstore: marshaling input: %w", err)
	}
	outputJSON, err := json.Marshal(run.Output)
	if err != nil {
		return fmt.Errorf("pgstore: marshaling output: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (run_id, root_run_id, workflow_id, workflow_version, parent_run_id, parent_token_id, status, input, output, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			output = EXCLUDED.output,
			completed_at = EXCLUDED.completed_at
	`, run.RunID, run.RootRunID, run.WorkflowID, run.WorkflowVersion, run.ParentRunID, run.ParentTokenID,
		string(run.Status), inputJSON, outputJSON, run.StartedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("pgstore: saving run %s: %w", run.RunID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, runID string) (model.Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT run_id, root_run_id, workflow_id, workflow_version, parent_run_id, parent_token_id, status, input, output, started_at, completed_at
		FROM runs WHERE run_id = $1
	`, runID)

	var run model.Run
	var status string
	var inputJSON, outputJSON []byte
	var completedAt *time.Time
	err := row.Scan(&run.RunID, &run.RootRunID, &run.WorkflowID, &run.WorkflowVersion, &run.ParentRunID, &run.ParentTokenID,
		&status, &inputJSON, &outputJSON, &run.StartedAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Run{}, &store.NotFoundError{RunID: runID}
	}
	if err != nil {
		return model.Run{}, fmt.Errorf("pgstore: loading run %s: %w", runID, err)
	}
	run.Status = model.RunStatus(status)
	run.CompletedAt = completedAt
	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &run.Input); err != nil {
			return model.Run{}, fmt.Errorf("pgstore: parsing input for run %s: %w", runID, err)
		}
	}
	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &run.Output); err != nil {
			return model.Run{}, fmt.Errorf("pgstore: parsing output for run %s: %w", runID, err)
		}
	}
	return run, nil
}
