// Package condition evaluates a step's { if, then, else } guard, grounded
// on the teacher's condition.Evaluator cache shape — a compiled-expression
// cache protected by a RWMutex — with the underlying expression language
// swapped from CEL for this engine's own grammar (see DESIGN.md).
package condition

import (
	"sync"

	"github.com/lyzr/flowctl/internal/expr"
	"github.com/lyzr/flowctl/internal/model"
)

// Logger is the minimal logging surface condition needs; satisfied by
// internal/platform/logger.Logger.
type Logger interface {
	Warn(msg string, args ...any)
}

// Evaluator compiles and caches step conditions.
type Evaluator struct {
	cache map[string]*expr.Expr
	mu    sync.RWMutex
	log   Logger
}

// New builds an Evaluator. log may be nil.
func New(log Logger) *Evaluator {
	return &Evaluator{cache: make(map[string]*expr.Expr), log: log}
}

func (e *Evaluator) compile(source string) (*expr.Expr, error) {
	e.mu.RLock()
	c, ok := e.cache[source]
	e.mu.RUnlock()
	if ok {
		return c, nil
	}
	compiled, err := expr.Parse(source)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache[source] = compiled
	e.mu.Unlock()
	return compiled, nil
}

// Evaluate evaluates cond against ctx. A nil condition always continues.
// Evaluation errors collapse to outcome "skip" and are never propagated,
// per the condition evaluator's design.
func (e *Evaluator) Evaluate(cond *model.Condition, ctx map[string]interface{}) model.ConditionOutcome {
	if cond == nil || cond.If == "" {
		return model.OutcomeContinue
	}
	compiled, err := e.compile(cond.If)
	if err != nil {
		e.warn("condition compile error", err)
		return model.OutcomeSkip
	}
	result, err := compiled.Eval(ctx)
	if err != nil {
		e.warn("condition eval error", err)
		return model.OutcomeSkip
	}
	branch := cond.Else
	if truthyResult(result) {
		branch = cond.Then
	}
	return parseOutcome(branch)
}

func (e *Evaluator) warn(msg string, err error) {
	if e.log != nil {
		e.log.Warn(msg, "error", err)
	}
}

// truthyResult reuses expr's evaluated boolean result directly; Eval
// already returns a Go bool for comparison/logical expressions, but a bare
// path expression used as a condition needs the same truthiness coercion
// the expression language defines (empty object truthy, 0 falsy).
func truthyResult(v interface{}) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	if v == nil {
		return false
	}
	if v == expr.Absent {
		return false
	}
	switch t := v.(type) {
	case float64:
		return t != 0
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return true
	default:
		return true
	}
}

func parseOutcome(s string) model.ConditionOutcome {
	switch model.ConditionOutcome(s) {
	case model.OutcomeSkip:
		return model.OutcomeSkip
	case model.OutcomeSucceed:
		return model.OutcomeSucceed
	case model.OutcomeFail:
		return model.OutcomeFail
	case model.OutcomeContinue:
		return model.OutcomeContinue
	default:
		return model.OutcomeContinue
	}
}

// CacheSize reports the number of compiled expressions cached, mirroring
// the teacher's evaluator introspection method.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// ClearCache empties the compiled-expression cache.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]*expr.Expr)
}
