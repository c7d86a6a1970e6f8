// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package watchdog

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/richardlaurits/butti-journey/internal/config"
	"github.com/richardlaurits/butti-journey/internal/store"
)

// DefaultJobStaleAfter applies to jobs without stale_after_hours.
const DefaultJobStaleAfter = 25 * time.Hour

// subordinateLogGlobs match files whose mtime counts as agent activity.
var subordinateLogGlobs = []string{"*.log", "*log*"}

// timestampLayouts are tried in order when reading a job's log file.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func (w *Watchdog) checkSubordinates() map[string]store.SubordinateHealth {
	out := map[string]store.SubordinateHealth{}
	dir := w.cfg.SubordinatesDir

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("reading subordinates dir", "path", dir, "error", err)
		}
		return out
	}

	skip := make(map[string]bool, len(w.cfg.Skip))
	for _, name := range w.cfg.Skip {
		skip[name] = true
	}

	now := w.now()
	timeout := hours(w.cfg.SubordinateTimeoutHours)
	for _, entry := range entries {
		name := entry.Name()
		if skip[name] {
			continue
		}
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			continue
		}

		h := store.SubordinateHealth{Path: path}
		latest, found, err := newestLog(path)
		switch {
		case err != nil:
			w.logger.Warn("inspecting subordinate logs", "subordinate", name, "error", err)
			h.Status = store.HealthUnknown
		case !found:
			h.Status = store.HealthNoLogs
		default:
			h.LastActivity = &latest
			h.Status = store.HealthStale
			if now.Sub(latest) < timeout {
				h.Status = store.HealthHealthy
			}
		}
		out[name] = h
	}
	return out
}

func newestLog(dir string) (time.Time, bool, error) {
	var newest time.Time
	found := false
	seen := map[string]bool{}

	for _, pattern := range subordinateLogGlobs {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return time.Time{}, false, err
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			info, err := os.Stat(m)
			if err != nil {
				return time.Time{}, false, err
			}
			if !found || info.ModTime().After(newest) {
				newest = info.ModTime()
				found = true
			}
		}
	}
	return newest, found, nil
}

func (w *Watchdog) checkJobs() map[string]store.JobHealth {
	out := make(map[string]store.JobHealth, len(w.cfg.Jobs))
	now := w.now()

	for _, spec := range w.cfg.Jobs {
		var last time.Time
		if spec.LogFile != "" {
			if t, ok := w.lastLogTimestamp(spec); ok {
				last = t
			}
		}
		// The marker file is written by the job itself and wins over the log.
		if spec.LastRunFile != "" {
			if info, err := os.Stat(spec.LastRunFile); err == nil {
				last = info.ModTime()
			}
		}

		h := store.JobHealth{Status: store.HealthNoData, Schedule: spec.Schedule}
		if !last.IsZero() {
			ago := now.Sub(last).Hours()
			h.LastRun = &last
			h.HoursAgo = &ago
			h.Status = store.HealthStale
			if now.Sub(last) < jobStaleAfter(spec) {
				h.Status = store.HealthHealthy
			}
		}
		out[spec.Name] = h
	}
	return out
}

func jobStaleAfter(spec config.JobSpec) time.Duration {
	if spec.StaleAfterHours <= 0 {
		return DefaultJobStaleAfter
	}
	return hours(spec.StaleAfterHours)
}

// lastLogTimestamp reads a JSON array log and returns the "timestamp" (or
// "sent_at") of its last element.
func (w *Watchdog) lastLogTimestamp(spec config.JobSpec) (time.Time, bool) {
	data, err := os.ReadFile(spec.LogFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Debug("reading job log", "job", spec.Name, "error", err)
		}
		return time.Time{}, false
	}

	var entries []map[string]any
	if err := json.Unmarshal(data, &entries); err != nil {
		w.logger.Debug("decoding job log", "job", spec.Name, "error", err)
		return time.Time{}, false
	}
	if len(entries) == 0 {
		return time.Time{}, false
	}

	last := entries[len(entries)-1]
	for _, key := range []string{"timestamp", "sent_at"} {
		if raw, ok := last[key].(string); ok && raw != "" {
			return parseTimestamp(raw)
		}
	}
	return time.Time{}, false
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSuffix(strings.TrimSuffix(strings.TrimSpace(raw), " CEST"), " CET")
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (w *Watchdog) checkEnvironment(ctx context.Context) store.EnvironmentHealth {
	env := store.EnvironmentHealth{Flags: map[string]bool{}, Details: map[string]string{}}

	for _, probe := range w.cfg.Probes {
		ok, detail := w.runProbe(ctx, probe)
		env.Flags[probe.Name] = ok
		if detail != "" {
			env.Details[probe.Name] = detail
		}
	}

	for _, conflict := range w.cfg.Conflicts {
		found, err := detectConflict(conflict)
		if err != nil {
			w.logger.Warn("checking config conflict", "conflict", conflict.Name, "error", err)
		}
		env.Flags[conflict.Name] = found
	}
	return env
}

func (w *Watchdog) runProbe(ctx context.Context, probe config.ProbeSpec) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, w.probeTimeout)
	defer cancel()

	res, err := w.runner.Run(ctx, "", probe.Command)
	if err != nil {
		w.logger.Debug("environment probe failed", "probe", probe.Name, "error", err)
		return false, ""
	}
	if res.ExitCode != 0 {
		return false, ""
	}
	out := strings.TrimSpace(res.Stdout)
	if probe.Contains != "" && !strings.Contains(out, probe.Contains) {
		return false, out
	}
	return true, out
}

// detectConflict reports whether any line of the file matches the pattern.
// A missing file has no conflict.
func detectConflict(c config.ConflictSpec) (bool, error) {
	re, err := regexp.Compile("(?m)" + c.Pattern)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(c.Path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return re.Match(data), nil
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
