// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package autonomy

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"

	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

// WorkFunc is the unit of work an Executor guards.
type WorkFunc func(ctx context.Context) (any, error)

// Outcome is the structured result of Execute.
type Outcome struct {
	Success  bool           `json:"success"`
	Result   any            `json:"result,omitempty"`
	Evidence map[string]any `json:"evidence"`
	Decision Decision       `json:"decision"`
}

// Executor runs work through the gate and keeps breaker and marker
// bookkeeping in step with the outcome.
type Executor struct {
	gate *Gate
	opts options
}

// NewExecutor returns an executor using gate.
func NewExecutor(gate *Gate, opts ...Option) *Executor {
	return &Executor{gate: gate, opts: newOptions(opts)}
}

// Gate returns the executor's gate.
func (e *Executor) Gate() *Gate { return e.gate }

// Execute authorizes req and, if allowed, runs work. A refused request
// touches no state. A success clears the breaker and, for side effects and
// recoveries, writes the marker. A marker that cannot be written leaves the
// outcome successful with evidence["marker_error"] set. A failure or panic
// counts one breaker failure and writes no marker. Execute never returns an
// error and never panics; everything is reported in the Outcome.
func (e *Executor) Execute(ctx context.Context, req Request, work WorkFunc) Outcome {
	decision := e.gate.Authorize(ctx, req)
	if !decision.Allowed {
		e.opts.emit(ctx, slog.LevelWarn, EventBlock, "BLOCKED: "+req.ActionID+" - "+decision.Reason,
			"action_id", req.ActionID, "reason", decision.Reason, "code", string(decision.Code))
		return Outcome{Evidence: map[string]any{"blocked_reason": decision.Reason}, Decision: decision}
	}

	e.opts.emit(ctx, slog.LevelInfo, EventExec, "EXECUTING: "+req.ActionID,
		"action_id", req.ActionID, "action_type", string(req.ActionType), "target", req.Target)

	result, err := runWork(ctx, work)
	if err != nil {
		if recErr := e.gate.breakers.RecordFailure(ctx, req.Integration); recErr != nil {
			e.opts.emit(ctx, slog.LevelError, EventError, "recording breaker failure", "integration", req.Integration, "error", recErr)
		}
		e.opts.emit(ctx, slog.LevelError, EventFail, "FAILED: "+req.ActionID+" - "+err.Error(),
			"action_id", req.ActionID, "error", err.Error(), "code", string(autoerr.CodeOf(err)))
		return Outcome{Evidence: map[string]any{"error": err.Error()}, Decision: decision}
	}

	if recErr := e.gate.breakers.RecordSuccess(ctx, req.Integration); recErr != nil {
		e.opts.emit(ctx, slog.LevelError, EventError, "recording breaker success", "integration", req.Integration, "error", recErr)
	}

	evidence := map[string]any{
		"result":      e.summarize(result),
		"integration": req.Integration,
		"target":      req.Target,
	}
	if req.ActionType.Marked() {
		if err := e.gate.ledger.WriteMarker(ctx, req.MarkerKey(), req.Target, evidence, req.ActionType); err != nil {
			e.opts.emit(ctx, slog.LevelError, EventError, "writing marker", "key", req.MarkerKey(), "error", err)
			evidence["marker_error"] = err.Error()
		}
	}

	e.opts.emit(ctx, slog.LevelInfo, EventSuccess, "SUCCESS: "+req.ActionID, "action_id", req.ActionID)
	return Outcome{Success: true, Result: result, Evidence: evidence, Decision: decision}
}

// summarize renders result for marker evidence, bounded in length.
func (e *Executor) summarize(result any) string {
	if isEmpty(result) {
		return "success"
	}
	s := fmt.Sprint(result)
	runes := []rune(s)
	if len(runes) > e.opts.evidenceMaxChars {
		return string(runes[:e.opts.evidenceMaxChars])
	}
	return s
}

func runWork(ctx context.Context, work WorkFunc) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = autoerr.New(autoerr.CodeExecutorWorkPanic, fmt.Sprint(r),
				autoerr.Field("stack", string(debug.Stack())))
			result = nil
		}
	}()
	if work == nil {
		return nil, autoerr.New(autoerr.CodeExecutorWorkFailure, "no work function")
	}
	return work(ctx)
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	case reflect.Bool:
		return !rv.Bool()
	}
	return rv.IsZero()
}
