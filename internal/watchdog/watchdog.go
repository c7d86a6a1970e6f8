// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

// Package watchdog runs one health sweep: it collects subordinate, job, and
// environment health, evaluates the health-check rules against that
// snapshot, and hands triggered rules to the Tier-1 recovery engine. A
// sweep keeps no state of its own between runs beyond the persisted
// snapshot.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/richardlaurits/butti-journey/internal/autonomy"
	"github.com/richardlaurits/butti-journey/internal/config"
	"github.com/richardlaurits/butti-journey/internal/recovery"
	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

const defaultProbeTimeout = 30 * time.Second

// Escalation and alert texts.
const (
	issueExhausted       = "Recovery action failed multiple times"
	suggestExhausted     = "Manual intervention required"
	issueApproval        = "Manual approval required"
	suggestApproval      = "Review and run %s by hand"
	issueUnresolved      = "%s but recovery failed or in cooldown"
	suggestUnresolved    = "Check `autonomy watchdog history` for details"
	issueRulesUnreadable = "Health-check rules could not be loaded"
)

// Watchdog performs health sweeps.
type Watchdog struct {
	cfg          config.WatchdogConfig
	snapshots    store.SnapshotStore
	engine       *recovery.Engine
	runner       recovery.Runner
	probeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
	actionLog    *autonomy.ActionLog
}

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithRunner sets the command runner used by environment probes.
func WithRunner(r recovery.Runner) Option {
	return func(w *Watchdog) {
		if r != nil {
			w.runner = r
		}
	}
}

// WithNow overrides the time source (for testing).
func WithNow(fn func() time.Time) Option {
	return func(w *Watchdog) {
		if fn != nil {
			w.now = fn
		}
	}
}

// WithLogger sets the process logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watchdog) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithActionLog mirrors sweep events to the durable action log.
func WithActionLog(l *autonomy.ActionLog) Option {
	return func(w *Watchdog) { w.actionLog = l }
}

// New returns a Watchdog. engine may be nil, in which case triggered rules
// only raise alerts.
func New(cfg config.WatchdogConfig, snapshots store.SnapshotStore, engine *recovery.Engine, opts ...Option) *Watchdog {
	w := &Watchdog{
		cfg:          cfg,
		snapshots:    snapshots,
		engine:       engine,
		runner:       recovery.ExecRunner{},
		probeTimeout: defaultProbeTimeout,
		now:          time.Now,
		logger:       slog.Default(),
	}
	if cfg.HandlerTimeoutSeconds > 0 {
		w.probeTimeout = time.Duration(cfg.HandlerTimeoutSeconds) * time.Second
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SweepOptions tune a single sweep.
type SweepOptions struct {
	// Force skips the cached snapshot.
	Force bool
}

// Report is the outcome of one sweep.
type Report struct {
	Snapshot  *store.StatusSnapshot
	FromCache bool
	Triggered []string
}

// Sweep runs one health check cycle and persists the resulting snapshot.
// Problems with individual checks, rules, or handlers are folded into the
// report; the returned error is only set when the snapshot could not be
// saved, and the report is still returned in that case.
func (w *Watchdog) Sweep(ctx context.Context, opts SweepOptions) (*Report, error) {
	w.logger.Info("starting watchdog check")
	now := w.now()

	snap := w.previous(ctx)
	snap.LastCheck = &now

	rules, rulesErr := LoadRules(w.cfg.RulesFile)
	if rulesErr != nil {
		w.emit(ctx, slog.LevelError, autonomy.EventError, "failed to load rules", "path", w.cfg.RulesFile, "error", rulesErr)
		rules = &RuleSet{}
	}

	report := &Report{Snapshot: snap}
	if cached := w.cached(ctx, rules, now, opts); cached != nil {
		snap.Subordinates = cached.Subordinates
		snap.Jobs = cached.Jobs
		snap.Environment = cached.Environment
		report.FromCache = true
	} else {
		snap.Subordinates = w.checkSubordinates()
		snap.Jobs = w.checkJobs()
		snap.Environment = w.checkEnvironment(ctx)
	}

	snap.Remediations = []store.Remediation{}
	snap.Escalations = []store.Escalation{}
	snap.Alerts = []store.Alert{}
	if rulesErr != nil {
		snap.Alerts = append(snap.Alerts, store.Alert{
			Severity:   "high",
			Component:  "watchdog:rules",
			Issue:      issueRulesUnreadable,
			Suggestion: fmt.Sprintf("Fix %s: %v", w.cfg.RulesFile, rulesErr),
		})
	}

	for _, rule := range rules.Checks {
		if !rule.Condition.Evaluate(snap) {
			continue
		}
		report.Triggered = append(report.Triggered, rule.ID)
		w.emit(ctx, slog.LevelInfo, autonomy.EventCheck, "check triggered", "check_id", rule.ID)
		if !w.remediate(ctx, rule, snap) {
			snap.Alerts = append(snap.Alerts, unresolvedAlert(rule))
		}
	}

	var saveErr error
	if err := w.snapshots.Save(ctx, snap); err != nil {
		w.logger.Error("saving watchdog status", "error", err)
		saveErr = err
	}
	if !report.FromCache {
		cache := &store.SnapshotCache{Timestamp: now, RulesFingerprint: rules.Fingerprint(), Snapshot: *snap}
		if err := w.snapshots.SaveCache(ctx, cache); err != nil {
			w.logger.Warn("saving watchdog cache", "error", err)
		}
	}

	w.logger.Info(report.SummaryLine())
	return report, saveErr
}

// previous loads the last persisted snapshot or starts an empty one.
func (w *Watchdog) previous(ctx context.Context) *store.StatusSnapshot {
	snap, err := w.snapshots.Load(ctx)
	switch {
	case err == nil && snap != nil:
		return snap
	case autoerr.IsNotFound(err):
	case err != nil:
		w.logger.Error("previous watchdog status unreadable, starting fresh", "error", err)
	}
	return store.NewStatusSnapshot()
}

// cached returns the cached health data when it may stand in for a fresh
// collection: younger than the TTL, computed under the same rules, and
// from a run that changed nothing.
func (w *Watchdog) cached(ctx context.Context, rules *RuleSet, now time.Time, opts SweepOptions) *store.StatusSnapshot {
	ttl := time.Duration(w.cfg.CacheTTLMinutes) * time.Minute
	if opts.Force || ttl <= 0 {
		return nil
	}
	cache, err := w.snapshots.LoadCache(ctx)
	if err != nil {
		if !autoerr.IsNotFound(err) {
			w.logger.Debug("watchdog cache unreadable", "error", err)
		}
		return nil
	}
	age := now.Sub(cache.Timestamp)
	if age < 0 || age >= ttl {
		return nil
	}
	if cache.RulesFingerprint != rules.Fingerprint() || len(cache.Snapshot.Remediations) > 0 {
		return nil
	}
	w.emit(ctx, slog.LevelInfo, autonomy.EventCache, fmt.Sprintf("Using cached status (%d min old)", int(age.Minutes())))
	return &cache.Snapshot
}

// remediate tries each recovery action of a triggered rule and reports
// whether at least one succeeded.
func (w *Watchdog) remediate(ctx context.Context, rule Rule, snap *store.StatusSnapshot) bool {
	if w.engine == nil {
		return false
	}
	resolved := false

	for _, action := range rule.RecoveryActions {
		res, err := w.engine.Attempt(ctx, rule.ID, action, snap)
		if err != nil {
			if esc, ok := escalationFor(rule, action, err); ok {
				snap.Escalations = append(snap.Escalations, esc)
			}
			w.emit(ctx, slog.LevelInfo, autonomy.EventRecovery, "recovery skipped", "action_id", action.ID, "reason", err.Error())
			continue
		}

		rem := store.Remediation{
			CheckID:   rule.ID,
			ActionID:  action.ID,
			Timestamp: w.now(),
			Result:    store.RecoveryFailed,
		}
		if res.Success {
			rem.Result = store.RecoverySuccess
			rem.Evidence = res.Evidence
			resolved = true
		} else {
			rem.Error = res.Stderr
			if rem.Error == "" {
				rem.Error = "Unknown error"
			}
			count, err := w.engine.FailedCount(ctx, action)
			if err != nil {
				w.logger.Warn("counting failed attempts", "action_id", action.ID, "error", err)
			}
			rem.FailedCount = count
		}
		snap.Remediations = append(snap.Remediations, rem)
	}
	return resolved
}

func escalationFor(rule Rule, action recovery.ActionDef, err error) (store.Escalation, bool) {
	esc := store.Escalation{
		Severity:  rule.EffectiveSeverity(),
		Component: rule.ID,
		Error:     err.Error(),
	}
	switch {
	case autoerr.HasCode(err, autoerr.CodeRecoveryAttemptsExhausted):
		esc.Issue = issueExhausted
		esc.Suggestion = suggestExhausted
	case autoerr.HasCode(err, autoerr.CodeRecoveryTierRejected):
		esc.Issue = issueApproval
		esc.Suggestion = fmt.Sprintf(suggestApproval, action.ID)
	default:
		return store.Escalation{}, false
	}
	return esc, true
}

func unresolvedAlert(rule Rule) store.Alert {
	return store.Alert{
		Severity:   rule.EffectiveSeverity(),
		Component:  component(rule.Condition.Field),
		Issue:      fmt.Sprintf(issueUnresolved, conditionLabel(rule.Condition)),
		Suggestion: suggestUnresolved,
	}
}

func (w *Watchdog) emit(ctx context.Context, level slog.Level, event autonomy.Event, msg string, args ...any) {
	w.logger.Log(ctx, level, msg, append([]any{"event", string(event)}, args...)...)
	w.actionLog.Record(ctx, level, event, msg, args...)
}
