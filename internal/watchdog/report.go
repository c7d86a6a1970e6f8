// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package watchdog

import (
	"fmt"
	"io"
	"strings"

	"github.com/richardlaurits/butti-journey/internal/store"
)

// SubordinateCounts returns how many subordinates are healthy and stale.
func (r *Report) SubordinateCounts() (healthy, stale int) {
	for _, h := range r.Snapshot.Subordinates {
		switch h.Status {
		case store.HealthHealthy:
			healthy++
		case store.HealthStale:
			stale++
		}
	}
	return healthy, stale
}

// SummaryLine is the one-line log summary of a sweep.
func (r *Report) SummaryLine() string {
	healthy, stale := r.SubordinateCounts()
	return fmt.Sprintf("Check complete: %d healthy agents, %d stale, %d remediations, %d escalations",
		healthy, stale, len(r.Snapshot.Remediations), len(r.Snapshot.Escalations))
}

// WriteSummary prints remediations, escalations, and alerts for a human.
func (r *Report) WriteSummary(w io.Writer) error {
	var b strings.Builder
	snap := r.Snapshot

	if r.FromCache {
		b.WriteString("(health data reused from cache)\n")
	}
	if n := len(snap.Remediations); n > 0 {
		fmt.Fprintf(&b, "Auto-recovery executed (%d):\n", n)
		for _, rem := range snap.Remediations {
			mark := "ok"
			if rem.Result != store.RecoverySuccess {
				mark = "FAIL"
			}
			fmt.Fprintf(&b, "   [%s] %s: %s\n", mark, rem.ActionID, rem.Result)
		}
	}
	if n := len(snap.Escalations); n > 0 {
		fmt.Fprintf(&b, "Escalations (%d):\n", n)
		for _, e := range snap.Escalations {
			fmt.Fprintf(&b, "   [%s] %s: %s\n", strings.ToUpper(e.Severity), e.Component, e.Error)
		}
	}
	if n := len(snap.Alerts); n > 0 {
		fmt.Fprintf(&b, "Manual attention needed (%d):\n", n)
		for _, a := range snap.Alerts {
			fmt.Fprintf(&b, "   [%s] %s: %s\n", strings.ToUpper(a.Severity), a.Component, a.Issue)
		}
	}
	if len(snap.Remediations) == 0 && len(snap.Escalations) == 0 && len(snap.Alerts) == 0 {
		b.WriteString("All systems healthy (or no Tier-1 actions available)\n")
	}
	b.WriteString(r.SummaryLine())
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// component names the watched thing behind a field path, e.g.
// "jobs.daily_greeting.status" becomes "job:daily_greeting".
func component(field string) string {
	switch {
	case strings.HasPrefix(field, fieldSubordinates):
		return "subordinate:" + strings.TrimSuffix(strings.TrimPrefix(field, fieldSubordinates), fieldStatus)
	case strings.HasPrefix(field, fieldJobs):
		return "job:" + strings.TrimSuffix(strings.TrimPrefix(field, fieldJobs), fieldStatus)
	case strings.HasPrefix(field, fieldEnvironment):
		return "environment:" + strings.TrimPrefix(field, fieldEnvironment)
	}
	return field
}

// conditionLabel describes a triggered condition for an alert, e.g. "Stale"
// for a status == stale check.
func conditionLabel(c Condition) string {
	if c.Op == OpEq {
		if s, ok := c.Value.(string); ok && s != "" {
			return strings.ToUpper(s[:1]) + s[1:]
		}
	}
	return "Condition met"
}
