// Package dispatcher routes an action to its kind-specific handler and
// enforces the uniform ActionResult contract described in the Action
// Dispatcher & Handlers component: handlers never throw, a dispatch on an
// unknown kind fails non-retryably, and every handler invocation is
// recovered so a handler bug cannot crash the executor.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/lyzr/flowctl/internal/model"
)

// ActionError is the typed error shape of a failed ActionResult.
type ActionError struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable"`
}

// ActionMetrics accompanies every ActionResult.
type ActionMetrics struct {
	DurationMs int64 `json:"durationMs"`
	LLMTokens  int64 `json:"llmTokens,omitempty"`
}

// Waiting marks an ActionResult that suspends the token pending an external
// event. Kind "subworkflow" is resumed by a child run completing (keyed by
// ChildRunID); other kinds (e.g. "human") are resumed by an external party
// resolving Ref through whatever channel the handler advertises.
type Waiting struct {
	Kind       string `json:"kind"`
	ChildRunID string `json:"childRunId,omitempty"`
	Ref        string `json:"ref,omitempty"`
	TimeoutMs  int64  `json:"timeoutMs,omitempty"`
}

// ActionResult is the uniform shape every handler returns.
type ActionResult struct {
	Success bool                   `json:"success"`
	Output  map[string]interface{} `json:"output,omitempty"`
	Error   *ActionError           `json:"error,omitempty"`
	Metrics ActionMetrics          `json:"metrics"`
	Waiting *Waiting               `json:"waiting,omitempty"`
}

// Failf builds a non-retryable-by-default failed ActionResult.
func Failf(code string, retryable bool, format string, args ...interface{}) ActionResult {
	return ActionResult{
		Success: false,
		Error:   &ActionError{Message: fmt.Sprintf(format, args...), Code: code, Retryable: retryable},
	}
}

// Handler executes one action kind.
type Handler interface {
	Handle(ctx context.Context, action model.ActionDefinition, input map[string]interface{}) ActionResult
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, action model.ActionDefinition, input map[string]interface{}) ActionResult

func (f HandlerFunc) Handle(ctx context.Context, action model.ActionDefinition, input map[string]interface{}) ActionResult {
	return f(ctx, action, input)
}

// Dispatcher routes by action.kind to exactly one handler.
type Dispatcher struct {
	handlers map[model.ActionKind]Handler
}

// New builds an empty Dispatcher; register handlers with Register.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[model.ActionKind]Handler)}
}

// Register installs (or replaces) the handler for kind.
func (d *Dispatcher) Register(kind model.ActionKind, h Handler) {
	d.handlers[kind] = h
}

// Dispatch routes action to its handler. Unknown kinds fail non-retryably.
// A handler panic is recovered and converted to a non-retryable failure —
// handlers must never throw to the dispatcher, and neither may a bug in
// one undermine the coordinator's state machine.
func (d *Dispatcher) Dispatch(ctx context.Context, action model.ActionDefinition, input map[string]interface{}) (result ActionResult) {
	start := time.Now()
	h, ok := d.handlers[action.Kind]
	if !ok {
		return Failf("unknown_action_kind", false, "no handler registered for action kind %q", action.Kind)
	}
	defer func() {
		if r := recover(); r != nil {
			result = Failf("handler_panic", false, "action handler panicked: %v", r)
		}
		if result.Metrics.DurationMs == 0 {
			result.Metrics.DurationMs = time.Since(start).Milliseconds()
		}
	}()
	return h.Handle(ctx, action, input)
}
