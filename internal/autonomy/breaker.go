// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package autonomy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
	"github.com/richardlaurits/butti-journey/pkg/health"
)

// Status labels returned by Breakers.Check.
const (
	LabelHealthy   = "HEALTHY"
	LabelRecovered = "HEALTHY (recovered)"
)

// Breakers is the per-integration circuit breaker registry. An integration
// trips to DOWN after a run of consecutive failures and becomes available
// again once its deadline passes; the transition back to HEALTHY happens
// lazily on the next read.
type Breakers struct {
	store store.BreakerStore
	opts  options
}

// NewBreakers returns a registry persisting to s.
func NewBreakers(s store.BreakerStore, opts ...Option) *Breakers {
	return &Breakers{store: s, opts: newOptions(opts)}
}

// Entry returns the current state for integration with lazy expiry applied.
// An unseen integration, or one whose record is unreadable, yields a fresh
// HEALTHY entry. The second return reports whether expiry recovered it.
func (b *Breakers) Entry(ctx context.Context, integration string) (*store.CircuitBreakerEntry, bool) {
	entry, err := b.store.Get(ctx, integration)
	if err != nil {
		if !autoerr.IsNotFound(err) {
			b.opts.emit(ctx, slog.LevelError, EventError, "circuit breaker state unreadable, treating as healthy",
				"integration", integration, "error", err)
		}
		return &store.CircuitBreakerEntry{Status: store.BreakerHealthy}, false
	}

	if entry.Status != store.BreakerDown {
		return entry, false
	}
	if entry.DownUntil != nil && b.opts.now().Before(*entry.DownUntil) {
		return entry, false
	}

	entry.Status = store.BreakerHealthy
	entry.ConsecutiveFailures = 0
	entry.DownUntil = nil
	if err := b.store.Put(ctx, integration, entry); err != nil {
		b.opts.emit(ctx, slog.LevelError, EventError, "persisting breaker recovery failed",
			"integration", integration, "error", err)
	}
	b.opts.emit(ctx, slog.LevelInfo, EventCircuit, "circuit breaker recovered", "integration", integration)
	return entry, true
}

// Check reports whether integration may be acted on, with a status label.
func (b *Breakers) Check(ctx context.Context, integration string) (bool, string) {
	entry, recovered := b.Entry(ctx, integration)
	if recovered {
		return true, LabelRecovered
	}
	if entry.Status == store.BreakerDown {
		return false, DownLabel(entry.DownUntil.Sub(b.opts.now()))
	}
	return true, LabelHealthy
}

// RecordFailure counts a failure and trips the breaker when the threshold
// is reached. Every call persists. A breaker that is already DOWN keeps its
// original deadline.
func (b *Breakers) RecordFailure(ctx context.Context, integration string) error {
	entry, _ := b.Entry(ctx, integration)
	now := b.opts.now()

	entry.ConsecutiveFailures++
	entry.LastFailure = &now

	switch {
	case entry.Status == store.BreakerDown:
		// Already tripped.
	case entry.ConsecutiveFailures >= b.opts.failureThreshold:
		until := now.Add(b.opts.downDuration)
		entry.Status = store.BreakerDown
		entry.DownUntil = &until
		b.opts.emit(ctx, slog.LevelWarn, EventCircuit, "circuit breaker tripped",
			"integration", integration, "down_until", until, "failures", entry.ConsecutiveFailures)
	default:
		entry.Status = store.BreakerHealthy
		b.opts.emit(ctx, slog.LevelWarn, EventWarn,
			fmt.Sprintf("circuit breaker warning: %d/%d failures", entry.ConsecutiveFailures, b.opts.failureThreshold),
			"integration", integration)
	}

	if err := b.store.Put(ctx, integration, entry); err != nil {
		return autoerr.With(err, autoerr.FieldIntegration(integration))
	}
	return nil
}

// RecordSuccess clears any failure history. It does not write when there is
// nothing to clear.
func (b *Breakers) RecordSuccess(ctx context.Context, integration string) error {
	entry, err := b.store.Get(ctx, integration)
	if err != nil {
		if autoerr.IsNotFound(err) || autoerr.IsCorrupt(err) {
			return nil
		}
		return autoerr.With(err, autoerr.FieldIntegration(integration))
	}
	if entry.ConsecutiveFailures <= 0 {
		return nil
	}

	entry.Status = store.BreakerHealthy
	entry.ConsecutiveFailures = 0
	entry.LastFailure = nil
	entry.DownUntil = nil
	if err := b.store.Put(ctx, integration, entry); err != nil {
		return autoerr.With(err, autoerr.FieldIntegration(integration))
	}
	b.opts.emit(ctx, slog.LevelInfo, EventCircuit, "circuit breaker reset", "integration", integration)
	return nil
}

// Metrics returns the raw stored table as health metrics. It applies no
// lazy expiry and writes nothing; expired DOWN entries are flagged instead.
func (b *Breakers) Metrics(ctx context.Context) ([]health.Metrics, error) {
	table, err := b.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return MetricsFromTable(table, b.opts.now()), nil
}

// MetricsFromTable converts a breaker table to metrics, sorted by integration.
func MetricsFromTable(table store.BreakerTable, now time.Time) []health.Metrics {
	out := make([]health.Metrics, 0, len(table))
	for name, e := range table {
		if e == nil {
			continue
		}
		out = append(out, health.Compute(name, string(e.Status), e.ConsecutiveFailures, e.LastFailure, e.DownUntil, now))
	}
	sortMetrics(out)
	return out
}

// DownLabel describes a DOWN breaker with the time left, rounded up to whole
// minutes.
func DownLabel(remaining time.Duration) string {
	mins := int(math.Ceil(remaining.Minutes()))
	if mins < 1 {
		mins = 1
	}
	return fmt.Sprintf("DOWN (retry in ~%dmin)", mins)
}

func sortMetrics(m []health.Metrics) {
	sort.Slice(m, func(i, j int) bool { return m[i].Integration < m[j].Integration })
}
