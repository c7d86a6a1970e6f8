// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

// Package recovery runs Tier-1 recovery actions: pre-approved, narrow
// fixes that the watchdog may apply without asking. Every attempt is
// recorded in the recovery log, which is also the only source for cooldown
// and attempt-cap decisions.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/richardlaurits/butti-journey/internal/autonomy"
	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

const (
	// DefaultHandlerTimeout bounds a single handler invocation.
	DefaultHandlerTimeout = 60 * time.Second

	outputExcerpt = 500
)

// Switch reports whether autonomy is globally disabled.
type Switch interface {
	Engaged() bool
}

// Engine decides whether a recovery action may run and runs it.
type Engine struct {
	log       store.RecoveryLogStore
	registry  *Registry
	ks        Switch
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
	actionLog *autonomy.ActionLog
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithKillSwitch makes the engine refuse to run handlers while ks is engaged.
func WithKillSwitch(ks Switch) EngineOption {
	return func(e *Engine) { e.ks = ks }
}

// WithHandlerTimeout bounds each handler invocation.
func WithHandlerTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithNow overrides the time source (for testing).
func WithNow(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// WithLogger sets the process logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithActionLog mirrors recovery events to the durable action log.
func WithActionLog(l *autonomy.ActionLog) EngineOption {
	return func(e *Engine) { e.actionLog = l }
}

// NewEngine returns an engine recording attempts to log.
func NewEngine(log store.RecoveryLogStore, registry *Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		log:      log,
		registry: registry,
		timeout:  DefaultHandlerTimeout,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Attempt runs action for checkID unless one of these refuses, in order:
//
//   - tier above 1: recovery.tier.forbidden
//   - kill switch engaged: recovery.kill_switch.denied
//   - failed attempts in the attempt window at the cap: recovery.attempts.exhausted
//   - any attempt within the cooldown: recovery.cooldown.active
//   - unknown handler: recovery.handler.not_found
//
// The attempt cap is checked before the cooldown so that an exhausted
// action always surfaces as exhausted. A handler that panics or overruns
// its timeout counts as a failed attempt. Every attempt is appended to the
// recovery log; there is never a retry within one call.
func (e *Engine) Attempt(ctx context.Context, checkID string, action ActionDef, snap *store.StatusSnapshot) (*Result, error) {
	fields := []autoerr.Attr{autoerr.FieldActionID(action.ID), autoerr.Field("check_id", checkID)}

	if action.Tier != 1 {
		return nil, autoerr.New(autoerr.CodeRecoveryTierRejected,
			fmt.Sprintf("Tier-%d actions require manual approval", action.Tier), fields...)
	}

	if e.ks != nil && e.ks.Engaged() {
		return nil, autoerr.New(autoerr.CodeRecoveryDisabled, "KILL_SWITCH is ON - recovery disabled", fields...)
	}

	failures, err := e.FailedCount(ctx, action)
	if err != nil {
		return nil, err
	}
	if failures >= action.Attempts() {
		return nil, autoerr.New(autoerr.CodeRecoveryAttemptsExhausted,
			fmt.Sprintf("Action %s failed %d times, escalating to ASK-FIRST", action.ID, failures),
			append(fields, autoerr.Field("failed_count", failures))...)
	}

	recent, err := e.log.Query(ctx, store.RecoveryFilter{ActionID: action.ID, Since: e.now().Add(-action.Cooldown())})
	if err != nil {
		return nil, err
	}
	if len(recent) > 0 {
		last := recent[len(recent)-1]
		return nil, autoerr.New(autoerr.CodeRecoveryCooldown,
			fmt.Sprintf("Action %s is in cooldown until %s", action.ID, last.NextAllowedTime.Format(time.RFC3339)),
			fields...)
	}

	handler, err := e.registry.Lookup(action.Handler)
	if err != nil {
		return nil, autoerr.With(err, fields...)
	}

	e.emit(ctx, slog.LevelInfo, "executing recovery action", "action_id", action.ID, "check_id", checkID)
	started := e.now()
	res := e.invoke(ctx, handler, Invocation{CheckID: checkID, Action: action, Snapshot: snap})

	entry := &store.RecoveryLogEntry{
		ID:              uuid.NewString(),
		Timestamp:       started,
		CheckID:         checkID,
		ActionID:        action.ID,
		Result:          store.RecoveryFailed,
		Stdout:          tail(res.Stdout, outputExcerpt),
		Stderr:          tail(res.Stderr, outputExcerpt),
		Evidence:        res.Evidence,
		NextAllowedTime: started.Add(action.Cooldown()),
	}
	if res.Success {
		entry.Result = store.RecoverySuccess
	}
	if err := e.log.Append(ctx, entry); err != nil {
		e.emit(ctx, slog.LevelError, "appending recovery log", "action_id", action.ID, "error", err)
	}

	if res.Success {
		e.emit(ctx, slog.LevelInfo, "recovery successful", "action_id", action.ID)
	} else {
		e.emit(ctx, slog.LevelWarn, "recovery failed", "action_id", action.ID, "stderr", entry.Stderr)
	}
	return &res, nil
}

// FailedCount returns the failed attempts for action within its attempt window.
func (e *Engine) FailedCount(ctx context.Context, action ActionDef) (int, error) {
	entries, err := e.log.Query(ctx, store.RecoveryFilter{
		ActionID: action.ID,
		Result:   store.RecoveryFailed,
		Since:    e.now().Add(-action.AttemptWindow()),
	})
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// History returns recovery log entries matching filter, oldest first.
func (e *Engine) History(ctx context.Context, filter store.RecoveryFilter) ([]*store.RecoveryLogEntry, error) {
	return e.log.Query(ctx, filter)
}

func (e *Engine) invoke(ctx context.Context, h Handler, inv Invocation) (res Result) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("recovery handler panicked", "action_id", inv.Action.ID, "panic", r, "stack", string(debug.Stack()))
				done <- failed(fmt.Sprintf("handler panicked: %v", r), nil)
			}
		}()
		done <- h.Handle(ctx, inv)
	}()

	select {
	case res = <-done:
	case <-ctx.Done():
		res = failed(fmt.Sprintf("handler timed out after %s", e.timeout), nil)
	}
	if res.Evidence == nil {
		res.Evidence = map[string]any{}
	}
	return res
}

func (e *Engine) emit(ctx context.Context, level slog.Level, msg string, args ...any) {
	e.logger.Log(ctx, level, msg, append([]any{"event", string(autonomy.EventRecovery)}, args...)...)
	e.actionLog.Record(ctx, level, autonomy.EventRecovery, msg, args...)
}
