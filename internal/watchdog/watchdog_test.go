// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package watchdog_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richardlaurits/butti-journey/internal/config"
	"github.com/richardlaurits/butti-journey/internal/recovery"
	"github.com/richardlaurits/butti-journey/internal/store"
	"github.com/richardlaurits/butti-journey/internal/store/file"
	"github.com/richardlaurits/butti-journey/internal/watchdog"
)

type fixture struct {
	t        *testing.T
	now      time.Time
	root     string
	st       *file.Store
	cfg      config.WatchdogConfig
	reg      *recovery.Registry
	result   recovery.Result
	calls    int
	commands map[string]recovery.CommandResult
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	st, err := file.New(filepath.Join(root, "state"), store.StorageConfig{})
	require.NoError(t, err)

	f := &fixture{
		t:        t,
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		root:     root,
		st:       st,
		reg:      recovery.NewRegistry(),
		result:   recovery.Result{Success: true, Evidence: map[string]any{"exit_code": 0}},
		commands: map[string]recovery.CommandResult{},
		cfg: config.WatchdogConfig{
			RulesFile:               filepath.Join(root, "rules.yaml"),
			SubordinatesDir:         filepath.Join(root, "agents"),
			SubordinateTimeoutHours: 48,
			Skip:                    []string{"watchdog-agent"},
			CacheTTLMinutes:         30,
			HandlerTimeoutSeconds:   5,
		},
	}
	f.reg.Register("fake", recovery.HandlerFunc(func(context.Context, recovery.Invocation) recovery.Result {
		f.calls++
		return f.result
	}))
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) run(_ context.Context, _ string, argv []string) (recovery.CommandResult, error) {
	res, ok := f.commands[strings.Join(argv, " ")]
	if !ok {
		return recovery.CommandResult{}, errors.New("executable file not found in $PATH")
	}
	return res, nil
}

func (f *fixture) watchdog() *watchdog.Watchdog {
	engine := recovery.NewEngine(f.st.RecoveryLog(), f.reg, recovery.WithNow(f.clock))
	return watchdog.New(f.cfg, f.st.Snapshots(), engine,
		watchdog.WithNow(f.clock),
		watchdog.WithRunner(recovery.RunnerFunc(f.run)),
	)
}

func (f *fixture) sweep(opts watchdog.SweepOptions) *watchdog.Report {
	f.t.Helper()
	report, err := f.watchdog().Sweep(context.Background(), opts)
	require.NoError(f.t, err)
	return report
}

// touch creates path (and parents) with the given age relative to the fixture clock.
func (f *fixture) touch(path string, age time.Duration, content string) {
	f.t.Helper()
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(f.t, os.WriteFile(path, []byte(content), 0o644))
	mtime := f.now.Add(-age)
	require.NoError(f.t, os.Chtimes(path, mtime, mtime))
}

func (f *fixture) rules(content string) {
	f.t.Helper()
	require.NoError(f.t, os.WriteFile(f.cfg.RulesFile, []byte(content), 0o600))
}

func (f *fixture) staleGreetingJob() {
	f.t.Helper()
	marker := filepath.Join(f.root, ".last_daily_greeting")
	f.touch(marker, 30*time.Hour, "")
	f.cfg.Jobs = []config.JobSpec{{Name: "daily_greeting", Schedule: "0 10 * * *", LastRunFile: marker, StaleAfterHours: 24}}
}

const greetingRule = `
checks:
  - id: daily_greeting_stale
    severity: medium
    condition: {field: jobs.daily_greeting.status, op: eq, value: stale}
    recovery_actions:
      - {id: retrigger_daily_greeting, tier: 1, cooldown_minutes: 360, max_attempts: 2, handler: fake}
`

func TestSweep_Subordinates(t *testing.T) {
	f := newFixture(t)
	agents := f.cfg.SubordinatesDir
	f.touch(filepath.Join(agents, "gmail", "agent.log"), time.Hour, "x")
	f.touch(filepath.Join(agents, "gmail", "old.log"), 100*time.Hour, "x")
	f.touch(filepath.Join(agents, "fantasy", "run.log"), 50*time.Hour, "x")
	f.touch(filepath.Join(agents, "brief", "sent_log.json"), 2*time.Hour, "[]")
	f.touch(filepath.Join(agents, "quiet", "README.md"), time.Hour, "x")
	f.touch(filepath.Join(agents, "watchdog-agent", "watchdog.log"), time.Hour, "x")
	f.touch(filepath.Join(agents, "stray.log"), time.Hour, "x")

	snap := f.sweep(watchdog.SweepOptions{}).Snapshot

	require.Len(t, snap.Subordinates, 4)
	assert.Equal(t, store.HealthHealthy, snap.Subordinates["gmail"].Status)
	require.NotNil(t, snap.Subordinates["gmail"].LastActivity)
	assert.WithinDuration(t, f.now.Add(-time.Hour), *snap.Subordinates["gmail"].LastActivity, time.Second)
	assert.Equal(t, filepath.Join(agents, "gmail"), snap.Subordinates["gmail"].Path)
	assert.Equal(t, store.HealthStale, snap.Subordinates["fantasy"].Status)
	assert.Equal(t, store.HealthHealthy, snap.Subordinates["brief"].Status)
	assert.Equal(t, store.HealthNoLogs, snap.Subordinates["quiet"].Status)
	assert.Nil(t, snap.Subordinates["quiet"].LastActivity)
	assert.NotContains(t, snap.Subordinates, "watchdog-agent")
}

func TestSweep_MissingSubordinatesDir(t *testing.T) {
	f := newFixture(t)
	snap := f.sweep(watchdog.SweepOptions{}).Snapshot
	assert.Empty(t, snap.Subordinates)
}

func TestSweep_Jobs(t *testing.T) {
	f := newFixture(t)
	fresh := filepath.Join(f.root, ".last_morning_brief")
	f.touch(fresh, 2*time.Hour, "")

	sentLog := filepath.Join(f.root, "greeting_log.json")
	f.touch(sentLog, time.Minute, `[{"sent_at": "2026-02-27T10:00:00Z"}, {"sent_at": "2026-02-28T06:00:00Z"}]`)

	overridden := filepath.Join(f.root, "fpl_log.json")
	f.touch(overridden, time.Minute, `[{"timestamp": "2026-03-01T11:00:00Z"}]`)
	oldMarker := filepath.Join(f.root, ".last_fpl_check")
	f.touch(oldMarker, 200*time.Hour, "")

	f.cfg.Jobs = []config.JobSpec{
		{Name: "morning_brief", Schedule: "0 7 * * *", LastRunFile: fresh},
		{Name: "greeting", Schedule: "0 10 * * *", LogFile: sentLog, StaleAfterHours: 24},
		{Name: "fantasy_fpl", Schedule: "0 11 * * 0", LogFile: overridden, LastRunFile: oldMarker, StaleAfterHours: 170},
		{Name: "never_ran", Schedule: "0 9 * * *", LastRunFile: filepath.Join(f.root, ".absent")},
	}

	jobs := f.sweep(watchdog.SweepOptions{}).Snapshot.Jobs

	require.Len(t, jobs, 4)
	assert.Equal(t, store.HealthHealthy, jobs["morning_brief"].Status)
	require.NotNil(t, jobs["morning_brief"].HoursAgo)
	assert.InDelta(t, 2.0, *jobs["morning_brief"].HoursAgo, 0.01)
	assert.Equal(t, "0 7 * * *", jobs["morning_brief"].Schedule)

	assert.Equal(t, store.HealthStale, jobs["greeting"].Status)
	assert.InDelta(t, 30.0, *jobs["greeting"].HoursAgo, 0.01)

	assert.Equal(t, store.HealthStale, jobs["fantasy_fpl"].Status, "last-run file wins over the log")
	assert.InDelta(t, 200.0, *jobs["fantasy_fpl"].HoursAgo, 0.01)

	assert.Equal(t, store.HealthNoData, jobs["never_ran"].Status)
	assert.Nil(t, jobs["never_ran"].LastRun)
	assert.Nil(t, jobs["never_ran"].HoursAgo)
}

func TestSweep_Environment(t *testing.T) {
	f := newFixture(t)
	f.commands["node --version"] = recovery.CommandResult{Stdout: "v22.3.0\n"}
	f.commands["npm config get prefix"] = recovery.CommandResult{Stdout: "/usr/local\n"}
	f.commands["nvm current"] = recovery.CommandResult{ExitCode: 3}

	npmrc := filepath.Join(f.root, ".npmrc")
	f.touch(npmrc, time.Hour, "registry=https://registry.npmjs.org/\nprefix=/usr/local\n")

	f.cfg.Probes = []config.ProbeSpec{
		{Name: "node_available", Command: []string{"node", "--version"}},
		{Name: "npm_healthy", Command: []string{"npm", "config", "get", "prefix"}, Contains: ".nvm"},
		{Name: "nvm_available", Command: []string{"nvm", "current"}},
		{Name: "bun_available", Command: []string{"bun", "--version"}},
	}
	f.cfg.Conflicts = []config.ConflictSpec{
		{Name: "npmrc_has_prefix", Path: npmrc, Pattern: "^(prefix|globalconfig)="},
		{Name: "yarnrc_has_prefix", Path: filepath.Join(f.root, ".yarnrc"), Pattern: "^prefix"},
	}

	env := f.sweep(watchdog.SweepOptions{}).Snapshot.Environment

	assert.True(t, env.Flags["node_available"])
	assert.Equal(t, "v22.3.0", env.Details["node_available"])
	assert.False(t, env.Flags["npm_healthy"])
	assert.Equal(t, "/usr/local", env.Details["npm_healthy"])
	assert.False(t, env.Flags["nvm_available"])
	assert.False(t, env.Flags["bun_available"])
	assert.True(t, env.Flags["npmrc_has_prefix"])
	assert.False(t, env.Flags["yarnrc_has_prefix"])
}

func TestSweep_SuccessfulRemediation(t *testing.T) {
	f := newFixture(t)
	f.staleGreetingJob()
	f.rules(greetingRule)

	report := f.sweep(watchdog.SweepOptions{})
	snap := report.Snapshot

	assert.Equal(t, 1, f.calls)
	assert.Equal(t, []string{"daily_greeting_stale"}, report.Triggered)
	require.Len(t, snap.Remediations, 1)
	rem := snap.Remediations[0]
	assert.Equal(t, "daily_greeting_stale", rem.CheckID)
	assert.Equal(t, "retrigger_daily_greeting", rem.ActionID)
	assert.Equal(t, store.RecoverySuccess, rem.Result)
	assert.Equal(t, map[string]any{"exit_code": 0}, rem.Evidence)
	assert.Empty(t, snap.Escalations)
	assert.Empty(t, snap.Alerts)

	persisted, err := f.st.Snapshots().Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, persisted.LastCheck)
	assert.True(t, persisted.LastCheck.Equal(f.now))
	assert.Len(t, persisted.Remediations, 1)
}

func TestSweep_FailedRemediationRaisesAlert(t *testing.T) {
	f := newFixture(t)
	f.staleGreetingJob()
	f.rules(greetingRule)
	f.result = recovery.Result{Success: false, Stderr: "smtp: connection refused"}

	snap := f.sweep(watchdog.SweepOptions{}).Snapshot

	require.Len(t, snap.Remediations, 1)
	rem := snap.Remediations[0]
	assert.Equal(t, store.RecoveryFailed, rem.Result)
	assert.Equal(t, "smtp: connection refused", rem.Error)
	assert.Equal(t, 1, rem.FailedCount)

	require.Len(t, snap.Alerts, 1)
	alert := snap.Alerts[0]
	assert.Equal(t, "medium", alert.Severity)
	assert.Equal(t, "job:daily_greeting", alert.Component)
	assert.Equal(t, "Stale but recovery failed or in cooldown", alert.Issue)
}

func TestSweep_CooldownSkipsAndAlerts(t *testing.T) {
	f := newFixture(t)
	f.staleGreetingJob()
	f.rules(greetingRule)

	f.sweep(watchdog.SweepOptions{})
	f.now = f.now.Add(time.Hour)
	snap := f.sweep(watchdog.SweepOptions{Force: true}).Snapshot

	assert.Equal(t, 1, f.calls, "second sweep is inside the cooldown")
	assert.Empty(t, snap.Remediations)
	assert.Empty(t, snap.Escalations, "cooldown is not an escalation")
	require.Len(t, snap.Alerts, 1)
}

func TestSweep_ExhaustedAttemptsEscalate(t *testing.T) {
	f := newFixture(t)
	f.staleGreetingJob()
	f.rules(greetingRule)
	ctx := context.Background()

	for _, age := range []time.Duration{5 * time.Hour, 4 * time.Hour} {
		require.NoError(t, f.st.RecoveryLog().Append(ctx, &store.RecoveryLogEntry{
			ID:        age.String(),
			Timestamp: f.now.Add(-age),
			CheckID:   "daily_greeting_stale",
			ActionID:  "retrigger_daily_greeting",
			Result:    store.RecoveryFailed,
		}))
	}

	snap := f.sweep(watchdog.SweepOptions{}).Snapshot

	assert.Zero(t, f.calls)
	require.Len(t, snap.Escalations, 1)
	esc := snap.Escalations[0]
	assert.Equal(t, "medium", esc.Severity)
	assert.Equal(t, "daily_greeting_stale", esc.Component)
	assert.Equal(t, "Recovery action failed multiple times", esc.Issue)
	assert.Equal(t, "Manual intervention required", esc.Suggestion)
	assert.Contains(t, esc.Error, "escalating to ASK-FIRST")
	assert.Len(t, snap.Alerts, 1)
}

func TestSweep_TierTwoEscalates(t *testing.T) {
	f := newFixture(t)
	f.staleGreetingJob()
	f.rules(`
checks:
  - id: daily_greeting_stale
    severity: high
    condition: {field: jobs.daily_greeting.status, op: in, value: [stale, no_data]}
    recovery_actions:
      - {id: rewrite_crontab, tier: 2, handler: fake}
`)

	snap := f.sweep(watchdog.SweepOptions{}).Snapshot

	assert.Zero(t, f.calls)
	require.Len(t, snap.Escalations, 1)
	assert.Equal(t, "high", snap.Escalations[0].Severity)
	assert.Equal(t, "Manual approval required", snap.Escalations[0].Issue)
	assert.Contains(t, snap.Escalations[0].Suggestion, "rewrite_crontab")
	require.Len(t, snap.Alerts, 1)
	assert.Equal(t, "Condition met but recovery failed or in cooldown", snap.Alerts[0].Issue)
}

func TestSweep_UntriggeredRuleDoesNothing(t *testing.T) {
	f := newFixture(t)
	marker := filepath.Join(f.root, ".last_daily_greeting")
	f.touch(marker, time.Hour, "")
	f.cfg.Jobs = []config.JobSpec{{Name: "daily_greeting", LastRunFile: marker}}
	f.rules(greetingRule)

	report := f.sweep(watchdog.SweepOptions{})

	assert.Zero(t, f.calls)
	assert.Empty(t, report.Triggered)
	assert.Empty(t, report.Snapshot.Alerts)
}

func TestSweep_InvalidRulesStillSavesSnapshot(t *testing.T) {
	f := newFixture(t)
	f.rules("checks: [{id: a, condition: {field: jobs.x.status, op: like, value: stale}}]")

	snap := f.sweep(watchdog.SweepOptions{}).Snapshot

	require.Len(t, snap.Alerts, 1)
	assert.Equal(t, "watchdog:rules", snap.Alerts[0].Component)
	assert.Equal(t, "high", snap.Alerts[0].Severity)

	_, err := f.st.Snapshots().Load(context.Background())
	require.NoError(t, err)
}

func TestSweep_CacheReuse(t *testing.T) {
	f := newFixture(t)
	f.commands["node --version"] = recovery.CommandResult{Stdout: "v22.3.0"}
	f.cfg.Probes = []config.ProbeSpec{{Name: "node_available", Command: []string{"node", "--version"}}}

	first := f.sweep(watchdog.SweepOptions{})
	assert.False(t, first.FromCache)
	assert.True(t, first.Snapshot.Environment.Flags["node_available"])

	// Node disappears, but the cache is still fresh.
	delete(f.commands, "node --version")
	f.now = f.now.Add(10 * time.Minute)

	second := f.sweep(watchdog.SweepOptions{})
	assert.True(t, second.FromCache)
	assert.True(t, second.Snapshot.Environment.Flags["node_available"])
	require.NotNil(t, second.Snapshot.LastCheck)
	assert.True(t, second.Snapshot.LastCheck.Equal(f.now))

	forced := f.sweep(watchdog.SweepOptions{Force: true})
	assert.False(t, forced.FromCache)
	assert.False(t, forced.Snapshot.Environment.Flags["node_available"])
}

func TestSweep_CacheExpiresAndTracksRules(t *testing.T) {
	f := newFixture(t)

	f.sweep(watchdog.SweepOptions{})
	f.now = f.now.Add(5 * time.Minute)
	assert.True(t, f.sweep(watchdog.SweepOptions{}).FromCache)

	f.rules("checks: []\n")
	assert.False(t, f.sweep(watchdog.SweepOptions{}).FromCache, "rules changed")

	f.now = f.now.Add(31 * time.Minute)
	assert.False(t, f.sweep(watchdog.SweepOptions{}).FromCache, "cache expired")
}

func TestSweep_CacheSkippedAfterRemediation(t *testing.T) {
	f := newFixture(t)
	f.staleGreetingJob()
	f.rules(greetingRule)

	f.sweep(watchdog.SweepOptions{})
	f.now = f.now.Add(5 * time.Minute)

	assert.False(t, f.sweep(watchdog.SweepOptions{}).FromCache)
}

func TestReport_Summary(t *testing.T) {
	f := newFixture(t)
	f.touch(filepath.Join(f.cfg.SubordinatesDir, "gmail", "agent.log"), time.Hour, "x")
	f.touch(filepath.Join(f.cfg.SubordinatesDir, "fantasy", "agent.log"), 72*time.Hour, "x")
	f.staleGreetingJob()
	f.rules(greetingRule)
	f.result = recovery.Result{Success: false, Stderr: "boom"}

	report := f.sweep(watchdog.SweepOptions{})
	assert.Equal(t, "Check complete: 1 healthy agents, 1 stale, 1 remediations, 0 escalations", report.SummaryLine())

	var buf bytes.Buffer
	require.NoError(t, report.WriteSummary(&buf))
	out := buf.String()
	assert.Contains(t, out, "Auto-recovery executed (1):")
	assert.Contains(t, out, "[FAIL] retrigger_daily_greeting: failed")
	assert.Contains(t, out, "Manual attention needed (1):")
	assert.Contains(t, out, "[MEDIUM] job:daily_greeting")
	assert.NotContains(t, out, "All systems healthy")
}

func TestReport_SummaryAllHealthy(t *testing.T) {
	f := newFixture(t)
	report := f.sweep(watchdog.SweepOptions{})

	var buf bytes.Buffer
	require.NoError(t, report.WriteSummary(&buf))
	assert.Contains(t, buf.String(), "All systems healthy")
}
