// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package autonomy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

// Ledger holds the idempotency markers: one record of the last successful
// run per action key. Markers only ever record successes.
type Ledger struct {
	store store.MarkerStore
	opts  options
}

// NewLedger returns a ledger persisting to s.
func NewLedger(s store.MarkerStore, opts ...Option) *Ledger {
	return &Ledger{store: s, opts: newOptions(opts)}
}

// CheckMarker reports whether key is outside its cooldown. Missing markers
// allow the action, and so do unreadable ones (logged at ERROR).
func (l *Ledger) CheckMarker(ctx context.Context, key string, cooldown time.Duration) (bool, string) {
	marker, err := l.store.Get(ctx, key)
	if err != nil {
		if autoerr.IsNotFound(err) {
			return true, "No marker - action allowed"
		}
		l.opts.emit(ctx, slog.LevelError, EventError, "marker unreadable, allowing action", "key", key, "error", err)
		return true, "Marker corrupt - allowing action"
	}

	ago := l.opts.now().Sub(marker.Timestamp)
	if ago < cooldown {
		return false, fmt.Sprintf("COOLDOWN: %s ran %.1fh ago, wait %.1fh more",
			key, ago.Hours(), (cooldown - ago).Hours())
	}
	return true, fmt.Sprintf("Marker expired (%.1fh ago), action allowed", ago.Hours())
}

// WriteMarker overwrites the marker for key with the current time. Callers
// must only use it after a verified success.
func (l *Ledger) WriteMarker(ctx context.Context, key, target string, evidence map[string]any, actionType store.ActionType) error {
	marker := &store.ActionMarker{
		Timestamp:  l.opts.now(),
		ActionID:   key,
		ActionType: actionType,
		Target:     target,
		Evidence:   evidence,
	}
	if err := l.store.Put(ctx, marker); err != nil {
		return autoerr.With(err, autoerr.FieldActionID(key))
	}
	l.opts.emit(ctx, slog.LevelInfo, EventMarker, "marker written", "key", key, "target", target)
	return nil
}

// CheckDuplicateRemediation blocks when any marker whose action id contains
// checkID succeeded within window, regardless of which caller wrote it.
// Matching is plain substring containment.
func (l *Ledger) CheckDuplicateRemediation(ctx context.Context, checkID string, window time.Duration) (bool, string) {
	now := l.opts.now()
	found, err := l.store.FindContaining(ctx, checkID, now.Add(-window))
	if err != nil {
		l.opts.emit(ctx, slog.LevelError, EventError, "duplicate scan failed, allowing action", "check_id", checkID, "error", err)
		return true, "No recent remediation found"
	}

	for _, m := range found {
		ago := now.Sub(m.Timestamp)
		if ago >= 0 && ago < window {
			return false, fmt.Sprintf("DUPLICATE: %s remediated %.1fh ago", m.ActionID, ago.Hours())
		}
	}
	return true, "No recent remediation found"
}

// Recent returns up to n markers, newest first.
func (l *Ledger) Recent(ctx context.Context, n int) ([]*store.ActionMarker, error) {
	markers, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(markers) > n {
		markers = markers[:n]
	}
	return markers, nil
}
