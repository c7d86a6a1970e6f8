// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/richardlaurits/butti-journey/internal/autonomy"
	"github.com/richardlaurits/butti-journey/internal/store"
	"github.com/richardlaurits/butti-journey/pkg/health"
)

const timeLayout = "2006-01-02 15:04"

// --- lipgloss styles ---

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	nameStyle    = lipgloss.NewStyle().Width(24)
	killBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("9")).Padding(0, 1)
)

// Render formats d for a terminal.
func Render(d *Data) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Autonomy Dashboard") + "  " +
		dimStyle.Render(d.GeneratedAt.Local().Format(timeLayout)) + "\n\n")

	renderKillSwitch(&b, d)
	renderBreakers(&b, d)
	renderMarkers(&b, d)
	renderBlocked(&b, d)
	renderWatchdog(&b, d)

	if len(d.Problems) > 0 {
		b.WriteString(headerStyle.Render("Problems") + "\n")
		for _, p := range d.Problems {
			b.WriteString("  " + errorStyle.Render(p) + "\n")
		}
	}
	return b.String()
}

func renderKillSwitch(b *strings.Builder, d *Data) {
	if d.KillSwitch.Engaged {
		b.WriteString(killBoxStyle.Render(errorStyle.Render("KILL SWITCH ON") + "  all autonomous actions disabled"))
		b.WriteString("\n\n")
		return
	}
	b.WriteString("Kill switch: " + okStyle.Render("OFF") + dimStyle.Render("  autonomous actions enabled") + "\n\n")
}

func renderBreakers(b *strings.Builder, d *Data) {
	b.WriteString(headerStyle.Render("Circuit breakers") + "\n")
	if len(d.Breakers) == 0 {
		b.WriteString(dimStyle.Render("  no integrations recorded") + "\n\n")
		return
	}
	for _, m := range d.Breakers {
		style := okStyle
		switch {
		case m.Expired:
			style = warnStyle
		case !m.Available:
			style = errorStyle
		}
		status := style.Render(BreakerLabel(m, d.GeneratedAt))
		fmt.Fprintf(b, "  %s %s  %s\n", nameStyle.Render(m.Integration), status,
			dimStyle.Render(fmt.Sprintf("failures: %d", m.FailureCount)))
	}
	b.WriteString("\n")
}

// BreakerLabel describes a breaker's state as of now. Expired DOWN entries
// are shown as stored, with a hint that the next check recovers them.
func BreakerLabel(m health.Metrics, now time.Time) string {
	switch {
	case m.Expired:
		return "DOWN (expired, recovers on next check)"
	case !m.Available:
		return autonomy.DownLabel(m.Remaining(now))
	default:
		return m.Status
	}
}

func renderMarkers(b *strings.Builder, d *Data) {
	b.WriteString(headerStyle.Render(fmt.Sprintf("Recent actions (%d)", len(d.RecentMarkers))) + "\n")
	if len(d.RecentMarkers) == 0 {
		b.WriteString(dimStyle.Render("  none") + "\n\n")
		return
	}
	for _, m := range d.RecentMarkers {
		fmt.Fprintf(b, "  %s  %s %s\n", dimStyle.Render(m.Timestamp.Local().Format(timeLayout)),
			nameStyle.Render(m.ActionID), dimStyle.Render(string(m.ActionType)+", "+Age(m.Timestamp, d.GeneratedAt)))
	}
	b.WriteString("\n")
}

func renderBlocked(b *strings.Builder, d *Data) {
	b.WriteString(headerStyle.Render(fmt.Sprintf("Blocked actions (%d)", len(d.BlockedActions))) + "\n")
	if len(d.BlockedActions) == 0 {
		b.WriteString(dimStyle.Render("  none") + "\n\n")
		return
	}
	for _, e := range d.BlockedActions {
		fmt.Fprintf(b, "  %s  %s\n", dimStyle.Render(e.Time.Local().Format(timeLayout)), warnStyle.Render(e.Message))
	}
	b.WriteString("\n")
}

func renderWatchdog(b *strings.Builder, d *Data) {
	snap := d.Watchdog
	if snap == nil {
		b.WriteString(headerStyle.Render("Watchdog") + dimStyle.Render("  no check recorded yet") + "\n\n")
		return
	}

	last := "never"
	if snap.LastCheck != nil {
		last = snap.LastCheck.Local().Format(timeLayout)
	}
	b.WriteString(headerStyle.Render("Watchdog") + dimStyle.Render("  last check "+last) + "\n")

	counts := map[store.HealthState]int{}
	for _, h := range snap.Subordinates {
		counts[h.Status]++
	}
	fmt.Fprintf(b, "  agents: %s healthy, %s stale, %d other\n",
		okStyle.Render(fmt.Sprint(counts[store.HealthHealthy])),
		warnStyle.Render(fmt.Sprint(counts[store.HealthStale])),
		len(snap.Subordinates)-counts[store.HealthHealthy]-counts[store.HealthStale])

	for _, name := range sortedKeys(snap.Jobs) {
		job := snap.Jobs[name]
		fmt.Fprintf(b, "  job %s %s\n", nameStyle.Render(name), stateStyle(job.Status).Render(string(job.Status)))
	}
	for _, e := range snap.Escalations {
		fmt.Fprintf(b, "  %s %s: %s\n", errorStyle.Render("["+strings.ToUpper(e.Severity)+"]"), e.Component, e.Issue)
	}
	for _, a := range snap.Alerts {
		fmt.Fprintf(b, "  %s %s: %s\n", warnStyle.Render("["+strings.ToUpper(a.Severity)+"]"), a.Component, a.Issue)
	}
	b.WriteString("\n")
}

func stateStyle(s store.HealthState) lipgloss.Style {
	switch s {
	case store.HealthHealthy:
		return okStyle
	case store.HealthStale:
		return warnStyle
	default:
		return dimStyle
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Age formats how long ago t was, for compact listings.
func Age(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%.1fh ago", d.Hours())
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
