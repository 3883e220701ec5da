// Package coordinator implements the per-run state machine described in
// the Coordinator (State Machine) component: it owns a run's token graph,
// dispatches ready tokens to the executor, applies failure policy and
// retry backoff, evaluates outgoing transitions (including fan-out,
// foreach, and join synchronization), and manages sub-workflow lifetimes
// with parent-suspension semantics.
//
// Grounded on the teacher's cmd/workflow-runner/coordinator/coordinator.go
// struct composition (injected Logger, a lifecycle/operator split) and its
// handleCompletion flow (load state → consume/mark → determine next nodes
// → route → terminal check), adapted from a Redis-BLPOP event loop over a
// shared IR to a mutex-protected per-run state object — the concurrency
// model §5 explicitly allows either "a single-threaded cooperative loop
// consuming an inbox channel" or "a mutex-protected state object."
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/lyzr/flowctl/internal/expr"
	"github.com/lyzr/flowctl/internal/mapping"
	"github.com/lyzr/flowctl/internal/model"
)

// Logger is the minimal logging surface the coordinator needs; satisfied
// by internal/platform/logger.Logger and by slog.Logger directly.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Emitter appends a trace event for a run. The transport (WebSocket
// fan-out) is out of scope here; internal/emitter provides an
// implementation.
type Emitter interface {
	Emit(ctx context.Context, runID, kind string, payload map[string]interface{})
}

// Resources resolves the workflow snapshot plus the one field of a task
// definition the coordinator itself needs ahead of dispatch: its retry
// policy. Everything else about a task is the executor's concern
// (internal/executor.Resources loads the same definition independently to
// run its steps).
type Resources interface {
	GetWorkflow(ctx context.Context, id, version string) (*model.WorkflowDefinition, error)
	GetTask(ctx context.Context, id, version string) (*model.TaskDefinition, error)
}

// TaskRunner executes one TaskPayload to completion. Satisfied by
// *internal/executor.Executor.
type TaskRunner interface {
	Run(ctx context.Context, payload model.TaskPayload) (model.TaskResult, *model.TaskError)
}

// RunStore persists the run record named in §6: runId, parent linkage,
// status, timestamps, final output. Optional — a Coordinator with no
// Store configured simply keeps that state in memory only, same as
// before this existed. Satisfied by internal/store implementations.
type RunStore interface {
	Save(ctx context.Context, run model.Run) error
}

// Options configures a new Coordinator. RunID/RootRunID/WorkflowID are
// required; ParentRunID/ParentTokenID are set only for sub-workflow runs.
type Options struct {
	RunID           string
	RootRunID       string
	WorkflowID      string
	WorkflowVersion string
	ParentRunID     string
	ParentTokenID   string
	Input           map[string]interface{}

	Resources Resources
	Runner    TaskRunner
	Manager   *Manager
	Emitter   Emitter
	Store     RunStore
	Log       Logger
}

// Coordinator is one run's state machine. All exported methods are safe
// for concurrent use; every mutation of run/token state happens under mu.
type Coordinator struct {
	mu sync.Mutex

	runID, rootRunID           string
	workflowID, workflowVersion string
	parentRunID, parentTokenID string
	input                      map[string]interface{}

	workflow    *model.WorkflowDefinition
	status      model.RunStatus
	output      map[string]interface{}
	startedAt   time.Time
	completedAt *time.Time
	started     bool
	cancelled   bool

	tokens map[string]*model.Token

	joins        map[string]*joinRecord
	fanoutTotals map[string]int // parent tokenID -> number of children spawned in its fan-out
	loopCounts   map[string]int // transition identity -> traversal count

	waitTimers map[string]*time.Timer // tokenID -> armed sub-workflow/human timeout

	lastActivity time.Time // updated on every emitted event; read by the hanging-run detector

	resources Resources
	runner    TaskRunner
	manager   *Manager
	emitter   Emitter
	runStore  RunStore
	log       Logger
}

// New builds a Coordinator for one run. Call Start to begin execution.
func New(opts Options) *Coordinator {
	return &Coordinator{
		runID:           opts.RunID,
		rootRunID:       opts.RootRunID,
		workflowID:      opts.WorkflowID,
		workflowVersion: opts.WorkflowVersion,
		parentRunID:     opts.ParentRunID,
		parentTokenID:   opts.ParentTokenID,
		input:           opts.Input,
		tokens:          make(map[string]*model.Token),
		joins:           make(map[string]*joinRecord),
		fanoutTotals:    make(map[string]int),
		loopCounts:      make(map[string]int),
		waitTimers:      make(map[string]*time.Timer),
		resources:       opts.Resources,
		runner:          opts.Runner,
		manager:         opts.Manager,
		emitter:         opts.Emitter,
		runStore:        opts.Store,
		log:             opts.Log,
	}
}

func (c *Coordinator) RunID() string { return c.runID }

// Status returns the run's current status, safe for concurrent reads.
func (c *Coordinator) Status() model.RunStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Output returns the run's final output; only meaningful once Status is
// terminal.
func (c *Coordinator) Output() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output
}

// Start loads the workflow snapshot, creates the initial token T0, and
// dispatches it. Idempotent: a second call on an already-started
// coordinator is a no-op.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	workflow, err := c.resources.GetWorkflow(ctx, c.workflowID, c.workflowVersion)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("coordinator: loading workflow %s/%s: %w", c.workflowID, c.workflowVersion, err)
	}
	if verr := workflow.Validate(); verr != nil {
		c.mu.Unlock()
		return verr
	}
	c.workflow = workflow
	c.status = model.RunRunning
	c.startedAt = time.Now()
	c.started = true

	t0 := &model.Token{
		TokenID: uuid.NewString(),
		RunID:   c.runID,
		NodeRef: workflow.InitialNodeRef,
		Status:  model.TokenPending,
		Context: map[string]interface{}{"input": c.input},
	}
	c.tokens[t0.TokenID] = t0
	c.mu.Unlock()

	c.emit(ctx, "run.started", map[string]interface{}{"workflowId": c.workflowID, "workflowVersion": c.workflowVersion})
	c.saveRun(ctx)
	c.dispatch(ctx, t0.TokenID)
	return nil
}

// dispatch sends a pending token to execution. For a task-bearing node it
// runs the executor (with retry) in a goroutine and re-enters through
// handleTaskResult/handleTaskError. For a sub-workflow-bearing node it
// creates and starts the child run synchronously and suspends the token.
func (c *Coordinator) dispatch(ctx context.Context, tokenID string) {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	tok, ok := c.tokens[tokenID]
	if !ok {
		c.mu.Unlock()
		return
	}
	node, ok := c.workflow.Nodes[tok.NodeRef]
	if !ok {
		c.mu.Unlock()
		c.terminateFailed(ctx, &model.CoordinatorError{Kind: "undefined_node_ref", Message: "dispatch: node not found: " + tok.NodeRef})
		return
	}
	tok.Status = model.TokenExecuting
	c.mu.Unlock()

	c.emit(ctx, "token.dispatched", map[string]interface{}{"tokenId": tok.TokenID, "nodeRef": tok.NodeRef})

	if node.IsSubworkflow() {
		c.dispatchSubworkflow(ctx, node, tok)
		return
	}
	c.dispatchTask(ctx, node, tok)
}

// computeTaskInput applies the node's inputMapping against the token's own
// context (§4.6 dispatch: "input mapping applied to parent-token
// context"). A node with no inputMapping passes the token's accumulated
// input straight through rather than evaluating an empty mapping (which
// would otherwise discard it) — an implementer decision recorded in
// DESIGN.md. A non-object input (a single-waitFor join's ordered output
// list) is wrapped as {"input": ...}, since task input is always an object.
func (c *Coordinator) computeTaskInput(node model.Node, tok *model.Token) (map[string]interface{}, error) {
	if len(node.InputMapping) == 0 {
		switch in := tok.Context["input"].(type) {
		case map[string]interface{}:
			return in, nil
		case nil:
			return map[string]interface{}{}, nil
		default:
			return map[string]interface{}{"input": in}, nil
		}
	}
	return mapping.ApplyInput(node.InputMapping, tok.Context)
}

func (c *Coordinator) dispatchSubworkflow(ctx context.Context, node model.Node, tok *model.Token) {
	taskInput, err := c.computeTaskInput(node, tok)
	if err != nil {
		c.handleTaskError(ctx, tok.TokenID, &model.TaskError{Type: "mapping", Message: err.Error(), Retryable: false}, model.TaskMetrics{})
		return
	}

	childRunID, err := c.manager.StartChildRun(ctx, node.SubworkflowID, node.SubworkflowVersion, taskInput, c.rootRunID, c.runID, tok.TokenID)
	if err != nil {
		c.handleTaskError(ctx, tok.TokenID, &model.TaskError{Type: "action_transient", Message: err.Error(), Retryable: true}, model.TaskMetrics{})
		return
	}

	c.mu.Lock()
	tok.ChildRunID = childRunID
	tok.Status = model.TokenWaiting
	if node.TimeoutMs > 0 {
		c.armWaitTimeoutLocked(tok.TokenID, time.Duration(node.TimeoutMs)*time.Millisecond)
	}
	c.mu.Unlock()
}

// dispatchTask runs the executor for a task-bearing node, retrying
// retryable failures per the task's retry policy using go-retry's
// Do/Backoff contract with a Backoff adapter over model.RetryPolicy.Delay
// (the exact exponential/linear/none formula §8 tests), then re-enters the
// coordinator through handleTaskResult/handleTaskError exactly once.
func (c *Coordinator) dispatchTask(ctx context.Context, node model.Node, tok *model.Token) {
	taskInput, err := c.computeTaskInput(node, tok)
	if err != nil {
		c.handleTaskError(ctx, tok.TokenID, &model.TaskError{Type: "mapping", Message: err.Error(), Retryable: false}, model.TaskMetrics{})
		return
	}

	policy, maxAttempts := c.resolveRetryPolicy(ctx, node)

	go func() {
		var final model.TaskResult
		var finalErr *model.TaskError
		attempt := 0

		b := &policyBackoff{policy: policy, maxAttempts: maxAttempts}
		doErr := retry.Do(ctx, b, func(ctx context.Context) error {
			attempt++
			c.mu.Lock()
			if c.cancelled {
				c.mu.Unlock()
				return fmt.Errorf("run cancelled")
			}
			tok.Status = model.TokenExecuting
			tok.RetryAttempt = attempt - 1
			c.mu.Unlock()

			payload := model.TaskPayload{
				TokenID:      tok.TokenID,
				RunID:        c.runID,
				RootRunID:    c.rootRunID,
				TaskID:       node.TaskID,
				TaskVersion:  node.TaskVersion,
				Input:        taskInput,
				TimeoutMs:    node.TimeoutMs,
				RetryAttempt: attempt - 1,
			}
			result, taskErr := c.runner.Run(ctx, payload)
			if taskErr != nil {
				finalErr = taskErr
				if taskErr.Retryable {
					c.mu.Lock()
					if !c.cancelled {
						tok.Status = model.TokenPending
					}
					c.mu.Unlock()
					c.emit(ctx, "executor.task.retrying", map[string]interface{}{"tokenId": tok.TokenID, "attempt": attempt, "error": taskErr.Message})
					return retry.RetryableError(taskErr)
				}
				return taskErr
			}
			final = result
			finalErr = nil
			return nil
		})

		if doErr != nil {
			if finalErr == nil {
				finalErr = &model.TaskError{Type: "task_failure", Message: doErr.Error(), Retryable: false}
			}
			c.handleTaskError(ctx, tok.TokenID, finalErr, final.Metrics)
			return
		}
		c.emit(ctx, "executor.task.completed", map[string]interface{}{"tokenId": tok.TokenID, "nodeRef": tok.NodeRef})
		c.handleTaskResult(ctx, tok.TokenID, final.Output)
	}()
}

// resolveRetryPolicy loads the task definition's retry policy ahead of
// dispatch so the backoff Next() schedule is known before the first
// attempt. A task with no retry policy gets exactly one attempt.
func (c *Coordinator) resolveRetryPolicy(ctx context.Context, node model.Node) (model.RetryPolicy, int) {
	task, err := c.resources.GetTask(ctx, node.TaskID, node.TaskVersion)
	if err != nil || task.Retry == nil {
		return model.RetryPolicy{}, 1
	}
	maxAttempts := task.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return *task.Retry, maxAttempts
}

// policyBackoff adapts model.RetryPolicy.Delay to go-retry's Backoff
// interface: Next returns the delay before the next attempt, or stop=true
// once the policy's maxAttempts is exhausted.
type policyBackoff struct {
	policy      model.RetryPolicy
	maxAttempts int
	attempt     int
}

func (b *policyBackoff) Next() (time.Duration, bool) {
	b.attempt++
	if b.maxAttempts > 0 && b.attempt > b.maxAttempts-1 {
		return 0, true
	}
	return b.policy.Delay(b.attempt), false
}

// handleTaskResult implements §4.6 "Result handling."
func (c *Coordinator) handleTaskResult(ctx context.Context, tokenID string, outputData map[string]interface{}) {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	tok, ok := c.tokens[tokenID]
	if !ok {
		c.mu.Unlock()
		return
	}

	if sub, ok := outputData["_subworkflow"].(map[string]interface{}); ok {
		tok.ChildRunID, _ = sub["childRunId"].(string)
		tok.Status = model.TokenWaiting
		if tms, ok := sub["timeoutMs"].(int64); ok && tms > 0 {
			c.armWaitTimeoutLocked(tok.TokenID, time.Duration(tms)*time.Millisecond)
		}
		c.mu.Unlock()
		return
	}

	tok.Output = outputData
	tok.Status = model.TokenCompleted
	nodeRef := tok.NodeRef
	c.mu.Unlock()

	c.emit(ctx, "token.completed", map[string]interface{}{"tokenId": tokenID, "nodeRef": nodeRef})
	c.advance(ctx, tok)
}

// handleTaskError implements §4.6 "Error handling." Retry scheduling
// already happened inside dispatchTask's go-retry loop; by the time this
// is called the policy's attempts are exhausted (or the error was
// non-retryable to begin with), so this always terminates the token.
func (c *Coordinator) handleTaskError(ctx context.Context, tokenID string, taskErr *model.TaskError, metrics model.TaskMetrics) {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	tok, ok := c.tokens[tokenID]
	if !ok {
		c.mu.Unlock()
		return
	}
	tok.Status = model.TokenFailed
	c.mu.Unlock()

	c.emit(ctx, "token.failed", map[string]interface{}{"tokenId": tokenID, "error": taskErr.Message, "retryable": taskErr.Retryable})
	c.terminateFailed(ctx, &model.CoordinatorError{Kind: taskErr.Type, Message: taskErr.Message})
}

// advance evaluates outgoing transitions from a just-completed token's
// node, in priority order, creating child tokens per transition semantics
// (plain, spawnCount, foreach, join), then dispatches every newly-ready
// token. If the node is terminal and nothing else is runnable or waiting,
// it completes the run.
func (c *Coordinator) advance(ctx context.Context, tok *model.Token) {
	c.mu.Lock()
	transitions := c.workflow.OutgoingTransitions(tok.NodeRef)
	var ready []*model.Token
	matchedAny := false

	for _, t := range transitions {
		take, err := c.evaluateGuard(t, tok)
		if err != nil {
			c.log.Warn("transition condition error, treating as false", "transition", t.FromNodeRef+"->"+t.ToNodeRef, "error", err)
			continue
		}
		if !take {
			continue
		}
		matchedAny = true

		if err := c.checkLoopBound(t); err != nil {
			c.mu.Unlock()
			c.terminateFailed(ctx, err.(*model.CoordinatorError))
			return
		}

		children, err := c.materializeChildren(t, tok)
		if err != nil {
			c.mu.Unlock()
			c.handleTaskError(ctx, tok.TokenID, &model.TaskError{Type: "mapping", Message: err.Error(), Retryable: false}, model.TaskMetrics{})
			return
		}
		for _, child := range children {
			if t.Synchronization != nil && len(t.Synchronization.WaitFor) > 0 {
				fired, joined := c.arriveAtJoin(t, tok, child)
				if !fired {
					continue
				}
				child = joined
			}
			c.tokens[child.TokenID] = child
			ready = append(ready, child)
		}
	}

	// §4.6 step 4: completion is checked whenever this token's node had no
	// matching outgoing transition — whether because it has none at all
	// (IsTerminal) or because every guard evaluated false — and nothing
	// else in the run is still runnable or waiting.
	runDone := !matchedAny && c.noRunnableOrWaitingLocked()
	c.mu.Unlock()

	for _, child := range ready {
		c.dispatch(ctx, child.TokenID)
	}

	if runDone {
		c.completeRun(ctx)
	}
}

// evaluateGuard evaluates a transition's condition expression (if any)
// against the completing token's output; absent conditions always match.
func (c *Coordinator) evaluateGuard(t *model.Transition, tok *model.Token) (bool, error) {
	if t.Condition == "" {
		return true, nil
	}
	evalCtx := map[string]interface{}{"output": tok.Output, "input": tok.Context["input"]}
	v, err := expr.Eval(t.Condition, evalCtx)
	if err != nil {
		return false, err
	}
	return expr.Truthy(v), nil
}

// checkLoopBound enforces loopConfig.maxIterations on a cyclic
// transition; exceeding it is a coordinator-level error per §9.
func (c *Coordinator) checkLoopBound(t *model.Transition) error {
	if t.LoopConfig == nil || t.LoopConfig.MaxIterations <= 0 {
		return nil
	}
	key := fmt.Sprintf("%p", t)
	c.loopCounts[key]++
	if c.loopCounts[key] > t.LoopConfig.MaxIterations {
		return &model.CoordinatorError{Kind: "loop_bound_exceeded", Message: fmt.Sprintf("transition %s->%s exceeded maxIterations=%d", t.FromNodeRef, t.ToNodeRef, t.LoopConfig.MaxIterations)}
	}
	return nil
}

// materializeChildren builds the child tokens a transition produces:
// exactly one for a plain transition, N for spawnCount, or one per
// foreach element. Each child's context.input is the parent token's
// output merged with per-child fan-out metadata (§4.6 dispatch: "the
// node's inputMapping is applied on dispatch, not here").
func (c *Coordinator) materializeChildren(t *model.Transition, parent *model.Token) ([]*model.Token, error) {
	parentOutput := asMap(parent.Output)

	switch {
	case t.Foreach != "":
		items, err := expr.Eval(t.Foreach, map[string]interface{}{"output": parentOutput, "input": parent.Context["input"]})
		if err != nil {
			return nil, err
		}
		arr, _ := items.([]interface{})
		n := len(arr)
		out := make([]*model.Token, 0, n)
		for i, item := range arr {
			idx := i
			meta := map[string]interface{}{
				"@index": idx, "@first": idx == 0, "@last": idx == n-1, "_foreachItem": item,
			}
			out = append(out, c.newChildToken(t, parent, idx, item, meta))
		}
		c.fanoutTotals[parent.TokenID] = n
		return out, nil

	case t.SpawnCount > 1:
		out := make([]*model.Token, 0, t.SpawnCount)
		for i := 0; i < t.SpawnCount; i++ {
			meta := map[string]interface{}{"@index": i, "@first": i == 0, "@last": i == t.SpawnCount-1}
			out = append(out, c.newChildToken(t, parent, i, nil, meta))
		}
		c.fanoutTotals[parent.TokenID] = t.SpawnCount
		return out, nil

	default:
		return []*model.Token{c.newChildToken(t, parent, -1, nil, nil)}, nil
	}
}

func (c *Coordinator) newChildToken(t *model.Transition, parent *model.Token, spawnIndex int, foreachItem interface{}, meta map[string]interface{}) *model.Token {
	parentOutput := asMap(parent.Output)
	childInput := parentOutput
	if len(meta) > 0 {
		childInput = mapping.DeepMerge(parentOutput, meta)
	}
	tok := &model.Token{
		TokenID:          uuid.NewString(),
		RunID:            c.runID,
		NodeRef:          t.ToNodeRef,
		Status:           model.TokenPending,
		Context:          map[string]interface{}{"input": childInput},
		ParentTokenIDs:   []string{parent.TokenID},
		ForeachItem:      foreachItem,
		SourceTransition: t,
	}
	if spawnIndex >= 0 {
		idx := spawnIndex
		tok.SpawnIndex = &idx
	}
	return tok
}

// noRunnableOrWaitingLocked reports whether every token in the run has
// reached a terminal per-token status. Caller must hold mu.
func (c *Coordinator) noRunnableOrWaitingLocked() bool {
	for _, tok := range c.tokens {
		switch tok.Status {
		case model.TokenPending, model.TokenExecuting, model.TokenWaiting:
			return false
		}
	}
	return true
}

// completeRun computes the run's output via the workflow's outputMapping
// over the aggregated completed-token outputs keyed by nodeRef, and marks
// the run completed. With no outputMapping configured, a run that settles
// on exactly one completed token at a terminal node (spec.md Scenario 1)
// surfaces that token's output directly rather than nested under its node
// ref; a run with several terminal tokens falls back to the nodeRef-keyed
// aggregate, since there's no single output to promote.
func (c *Coordinator) completeRun(ctx context.Context) {
	c.mu.Lock()
	if c.status != model.RunRunning {
		c.mu.Unlock()
		return
	}
	aggregated := map[string]interface{}{}
	var terminalOutputs []map[string]interface{}
	for _, tok := range c.tokens {
		if tok.Status != model.TokenCompleted {
			continue
		}
		aggregated[tok.NodeRef] = tok.Output
		if c.workflow.IsTerminal(tok.NodeRef) {
			terminalOutputs = append(terminalOutputs, tok.Output)
		}
	}
	var out map[string]interface{}
	var err error
	if len(c.workflow.OutputMapping) > 0 {
		out, err = mapping.ApplyOutput(c.workflow.OutputMapping, nil, map[string]interface{}{"nodes": aggregated}, map[string]interface{}{})
	} else if len(terminalOutputs) == 1 {
		out = terminalOutputs[0]
	} else {
		out = aggregated
	}
	if err != nil {
		c.mu.Unlock()
		c.terminateFailed(ctx, &model.CoordinatorError{Kind: "mapping", Message: err.Error()})
		return
	}
	c.output = out
	c.status = model.RunCompleted
	now := time.Now()
	c.completedAt = &now
	parentRunID, parentTokenID := c.parentRunID, c.parentTokenID
	c.mu.Unlock()

	c.emit(ctx, "run.completed", map[string]interface{}{"output": out})
	c.saveRun(ctx)
	if parentRunID != "" {
		c.manager.notifyParent(ctx, parentRunID, parentTokenID, out, nil)
	}
}

// terminateFailed marks the run failed and propagates the failure to the
// parent run, if any, as a sub-workflow failure (§4.6, §7).
func (c *Coordinator) terminateFailed(ctx context.Context, cerr *model.CoordinatorError) {
	c.mu.Lock()
	if c.status != model.RunRunning {
		c.mu.Unlock()
		return
	}
	c.status = model.RunFailed
	now := time.Now()
	c.completedAt = &now
	parentRunID, parentTokenID := c.parentRunID, c.parentTokenID
	c.mu.Unlock()

	c.emit(ctx, "run.failed", map[string]interface{}{"error": cerr.Error()})
	c.saveRun(ctx)
	if parentRunID != "" {
		c.manager.notifyParent(ctx, parentRunID, parentTokenID, nil, &model.TaskError{Type: cerr.Kind, Message: cerr.Message, Retryable: false})
	}
}

// Cancel implements §4.6 "Cancellation": marks the run cancelled, drains
// the runnable set, and cancels every waiting sub-workflow child
// recursively. In-flight executor goroutines are allowed to finish; their
// results are discarded because handleTaskResult/handleTaskError both
// check c.cancelled first.
func (c *Coordinator) Cancel(ctx context.Context) {
	c.mu.Lock()
	if c.cancelled || c.status != model.RunRunning {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	c.status = model.RunCancelled
	now := time.Now()
	c.completedAt = &now
	for _, tok := range c.tokens {
		if tok.Status == model.TokenPending || tok.Status == model.TokenExecuting {
			tok.Status = model.TokenSkipped
		}
	}
	var children []string
	for _, tok := range c.tokens {
		if tok.Status == model.TokenWaiting && tok.ChildRunID != "" {
			children = append(children, tok.ChildRunID)
		}
	}
	for _, timer := range c.waitTimers {
		timer.Stop()
	}
	c.mu.Unlock()

	c.emit(ctx, "run.cancelled", nil)
	c.saveRun(ctx)
	for _, childRunID := range children {
		c.manager.CancelRun(ctx, childRunID)
	}
}

// armWaitTimeoutLocked schedules a timeout failure for a waiting token
// (sub-workflow or human-approval wait). Caller must hold mu.
func (c *Coordinator) armWaitTimeoutLocked(tokenID string, d time.Duration) {
	if existing, ok := c.waitTimers[tokenID]; ok {
		existing.Stop()
	}
	c.waitTimers[tokenID] = time.AfterFunc(d, func() {
		c.handleTaskError(context.Background(), tokenID, &model.TaskError{Type: "timeout", Message: "wait timed out", Retryable: false}, model.TaskMetrics{})
	})
}

// saveRun persists the current run record, if a RunStore was configured.
// It takes its own snapshot under mu rather than requiring callers to pass
// one, so the Save (an I/O call) never happens while mu is held.
func (c *Coordinator) saveRun(ctx context.Context) {
	if c.runStore == nil {
		return
	}
	c.mu.Lock()
	run := model.Run{
		RunID:           c.runID,
		RootRunID:       c.rootRunID,
		WorkflowID:      c.workflowID,
		WorkflowVersion: c.workflowVersion,
		Input:           c.input,
		ParentRunID:     c.parentRunID,
		ParentTokenID:   c.parentTokenID,
		Status:          c.status,
		Output:          c.output,
		StartedAt:       c.startedAt,
		CompletedAt:     c.completedAt,
	}
	c.mu.Unlock()

	if err := c.runStore.Save(ctx, run); err != nil {
		c.log.Error("persisting run record failed", "runId", c.runID, "error", err)
	}
}

func (c *Coordinator) emit(ctx context.Context, kind string, payload map[string]interface{}) {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()

	if c.emitter == nil {
		return
	}
	c.emitter.Emit(ctx, c.runID, kind, payload)
}

// LastActivityAt reports when this run last emitted a trace event,
// consulted by the hanging-run detector to decide whether a run has gone
// quiet for longer than its inactivity window.
func (c *Coordinator) LastActivityAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Timeout terminates a run that has gone hanging: no token activity
// within the detector's configured inactivity window while still
// RunRunning. Reuses the same terminal path as any other fatal
// CoordinatorError (status flip, parent notification, persistence).
func (c *Coordinator) Timeout(ctx context.Context, reason string) {
	c.terminateFailed(ctx, &model.CoordinatorError{Kind: "timeout", Message: reason})
}

func asMap(v map[string]interface{}) map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v
}
