package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/lyzr/flowctl/internal/model"
)

// ManagerResources is what the Manager needs beyond a per-run Coordinator:
// the ability to create a run record through the resource service (§6
// workflowRuns.create), in addition to the workflow/task lookups every
// Coordinator needs.
type ManagerResources interface {
	Resources
	CreateWorkflowRun(ctx context.Context, workflowID string, input map[string]interface{}, rootRunID, parentRunID, parentTokenID string) (workflowRunID string, err error)
}

// Manager is the process-wide registry of live Coordinators. It
// implements dispatcher.SubworkflowStarter so the `workflow` action
// handler can create and start child runs without depending on this
// package directly, and it is the channel through which a child run's
// terminal result resumes its parent's suspended token (§4.6 "Sub-workflow
// resumption").
type Manager struct {
	mu    sync.Mutex
	runs  map[string]*Coordinator

	resources ManagerResources
	runner    TaskRunner
	emitter   Emitter
	store     RunStore
	log       Logger
}

// NewManager builds a Manager. store may be nil, in which case run records
// are kept in memory only (on each Coordinator) and nothing is persisted.
func NewManager(resources ManagerResources, runner TaskRunner, emitter Emitter, store RunStore, log Logger) *Manager {
	return &Manager{
		runs:      make(map[string]*Coordinator),
		resources: resources,
		runner:    runner,
		emitter:   emitter,
		store:     store,
		log:       log,
	}
}

// StartRun creates and starts a new root run (no parent) and returns its
// runID immediately; the coordinator runs to completion asynchronously.
func (m *Manager) StartRun(ctx context.Context, workflowID, workflowVersion string, input map[string]interface{}) (string, error) {
	runID, err := m.resources.CreateWorkflowRun(ctx, workflowID, input, "", "", "")
	if err != nil {
		return "", fmt.Errorf("manager: creating run: %w", err)
	}
	co := m.newCoordinator(runID, runID, workflowID, workflowVersion, "", "", input)
	m.register(co)
	go func() {
		if err := co.Start(ctx); err != nil {
			m.log.Error("run failed to start", "runId", runID, "error", err)
		}
	}()
	return runID, nil
}

// StartChildRun implements dispatcher.SubworkflowStarter: it creates a run
// record, builds and registers a child Coordinator, and starts it
// asynchronously — a non-blocking suspension point per §5.
func (m *Manager) StartChildRun(ctx context.Context, workflowID, workflowVersion string, input map[string]interface{}, rootRunID, parentRunID, parentTokenID string) (string, error) {
	childRunID, err := m.resources.CreateWorkflowRun(ctx, workflowID, input, rootRunID, parentRunID, parentTokenID)
	if err != nil {
		return "", fmt.Errorf("manager: creating child run: %w", err)
	}
	co := m.newCoordinator(childRunID, rootRunID, workflowID, workflowVersion, parentRunID, parentTokenID, input)
	m.register(co)
	go func() {
		if err := co.Start(ctx); err != nil {
			m.log.Error("child run failed to start", "runId", childRunID, "error", err)
			m.notifyParent(ctx, parentRunID, parentTokenID, nil, &model.TaskError{Type: "action_transient", Message: err.Error(), Retryable: true})
		}
	}()
	return childRunID, nil
}

func (m *Manager) newCoordinator(runID, rootRunID, workflowID, workflowVersion, parentRunID, parentTokenID string, input map[string]interface{}) *Coordinator {
	return New(Options{
		RunID:           runID,
		RootRunID:       rootRunID,
		WorkflowID:      workflowID,
		WorkflowVersion: workflowVersion,
		ParentRunID:     parentRunID,
		ParentTokenID:   parentTokenID,
		Input:           input,
		Resources:       m.resources,
		Runner:          m.runner,
		Manager:         m,
		Emitter:         m.emitter,
		Store:           m.store,
		Log:             m.log,
	})
}

func (m *Manager) register(co *Coordinator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[co.RunID()] = co
}

// Get returns the Coordinator for runID, or nil if unknown.
func (m *Manager) Get(runID string) *Coordinator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[runID]
}

// ListRunning returns every live Coordinator still in model.RunRunning,
// for the hanging-run detector's inactivity sweep.
func (m *Manager) ListRunning() []*Coordinator {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Coordinator, 0, len(m.runs))
	for _, co := range m.runs {
		if co.Status() == model.RunRunning {
			out = append(out, co)
		}
	}
	return out
}

// CancelRun cancels a run and, transitively (via that run's own Cancel),
// all of its descendants.
func (m *Manager) CancelRun(ctx context.Context, runID string) {
	co := m.Get(runID)
	if co == nil {
		m.log.Warn("cancel requested for unknown run", "runId", runID)
		return
	}
	co.Cancel(ctx)
}

// notifyParent resumes a parent's suspended token once a child run
// reaches a terminal state, per §4.6 "Sub-workflow resumption."
func (m *Manager) notifyParent(ctx context.Context, parentRunID, parentTokenID string, output map[string]interface{}, taskErr *model.TaskError) {
	if parentRunID == "" {
		return
	}
	parent := m.Get(parentRunID)
	if parent == nil {
		m.log.Warn("parent run not found for resumption", "parentRunId", parentRunID)
		return
	}
	if taskErr != nil {
		parent.handleTaskError(ctx, parentTokenID, taskErr, model.TaskMetrics{})
		return
	}
	parent.handleTaskResult(ctx, parentTokenID, output)
}
