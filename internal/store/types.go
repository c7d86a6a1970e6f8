// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package store

import (
	"time"

	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

// BreakerStatus is the state of a per-integration circuit breaker.
type BreakerStatus string

const (
	BreakerHealthy BreakerStatus = "HEALTHY"
	BreakerDown    BreakerStatus = "DOWN"
)

// CircuitBreakerEntry is the persisted breaker state for one integration.
// Status DOWN implies DownUntil is set.
type CircuitBreakerEntry struct {
	Status              BreakerStatus `json:"status"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastFailure         *time.Time    `json:"last_failure"`
	DownUntil           *time.Time    `json:"down_until"`
}

// BreakerTable maps integration name to its breaker entry.
type BreakerTable map[string]*CircuitBreakerEntry

// ActionType classifies an autonomous action for cooldown policy.
type ActionType string

const (
	ActionSideEffect ActionType = "side_effect"
	ActionRecovery   ActionType = "recovery"
	ActionOther      ActionType = "other"
)

// Marked reports whether successful actions of this type leave a marker.
func (t ActionType) Marked() bool {
	return t == ActionSideEffect || t == ActionRecovery
}

// ActionMarker records the last successful completion of an action key.
// ActionID holds the marker key, which for side effects is "{action}_{target}".
type ActionMarker struct {
	Timestamp  time.Time      `json:"timestamp"`
	ActionID   string         `json:"action_id"`
	ActionType ActionType     `json:"action_type"`
	Target     string         `json:"target"`
	Evidence   map[string]any `json:"evidence"`
}

// ValidateMarker rejects a decoded marker that has no key or no timestamp.
// Every backend reads such a document as corrupt.
func ValidateMarker(m *ActionMarker) error {
	if m.ActionID == "" {
		return autoerr.New(autoerr.CodeStoreCorrupt, "marker has no action id")
	}
	if m.Timestamp.IsZero() {
		return autoerr.New(autoerr.CodeStoreCorrupt, "marker has no timestamp", autoerr.FieldActionID(m.ActionID))
	}
	return nil
}

// RecoveryResult is the outcome of one Tier-1 recovery attempt.
type RecoveryResult string

const (
	RecoverySuccess RecoveryResult = "success"
	RecoveryFailed  RecoveryResult = "failed"
)

// RecoveryLogEntry is one append-only record of a recovery attempt.
type RecoveryLogEntry struct {
	ID              string         `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	CheckID         string         `json:"check_id"`
	ActionID        string         `json:"action_id"`
	Result          RecoveryResult `json:"result"`
	Stdout          string         `json:"stdout"`
	Stderr          string         `json:"stderr"`
	Evidence        map[string]any `json:"evidence"`
	NextAllowedTime time.Time      `json:"next_allowed_time"`
}

// RecoveryFilter selects recovery log entries. Zero values match everything.
type RecoveryFilter struct {
	ActionID string
	Result   RecoveryResult
	// Since is exclusive: only entries strictly after it match.
	Since time.Time
	Limit int
}

// Match reports whether e satisfies the filter (ignoring Limit).
func (f RecoveryFilter) Match(e *RecoveryLogEntry) bool {
	if f.ActionID != "" && e.ActionID != f.ActionID {
		return false
	}
	if f.Result != "" && e.Result != f.Result {
		return false
	}
	if !f.Since.IsZero() && !e.Timestamp.After(f.Since) {
		return false
	}
	return true
}

// HealthState is the health classification of a watched component.
type HealthState string

const (
	HealthHealthy HealthState = "healthy"
	HealthStale   HealthState = "stale"
	HealthUnknown HealthState = "unknown"
	HealthNoLogs  HealthState = "no_logs"
	HealthNoData  HealthState = "no_data"
)

// SubordinateHealth is the activity-based health of one subordinate agent.
type SubordinateHealth struct {
	Status       HealthState `json:"status"`
	LastActivity *time.Time  `json:"last_activity"`
	Path         string      `json:"path"`
}

// JobHealth is the freshness of one scheduled job.
type JobHealth struct {
	Status   HealthState `json:"status"`
	LastRun  *time.Time  `json:"last_run"`
	Schedule string      `json:"schedule"`
	HoursAgo *float64    `json:"hours_ago"`
}

// EnvironmentHealth holds binary sanity flags plus free-form probe output.
type EnvironmentHealth struct {
	Flags   map[string]bool   `json:"flags"`
	Details map[string]string `json:"details,omitempty"`
}

// Remediation is a recovery action taken during a watchdog sweep.
type Remediation struct {
	CheckID     string         `json:"check_id"`
	ActionID    string         `json:"action_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Result      RecoveryResult `json:"result"`
	Evidence    map[string]any `json:"evidence,omitempty"`
	Error       string         `json:"error,omitempty"`
	FailedCount int            `json:"failed_count,omitempty"`
}

// Escalation signals that a human must intervene.
type Escalation struct {
	Severity   string `json:"severity"`
	Component  string `json:"component"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
	Error      string `json:"error"`
}

// Alert is an unresolved problem left after a sweep.
type Alert struct {
	Severity   string `json:"severity"`
	Component  string `json:"component"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
}

// StatusSnapshot is the output of one watchdog sweep.
type StatusSnapshot struct {
	LastCheck    *time.Time                   `json:"last_check"`
	Subordinates map[string]SubordinateHealth `json:"subordinates"`
	Jobs         map[string]JobHealth         `json:"jobs"`
	Environment  EnvironmentHealth            `json:"environment"`
	Remediations []Remediation                `json:"remediation_taken"`
	Escalations  []Escalation                 `json:"escalation_alerts"`
	Alerts       []Alert                      `json:"alerts"`
}

// NewStatusSnapshot returns an empty snapshot with initialised maps.
func NewStatusSnapshot() *StatusSnapshot {
	return &StatusSnapshot{
		Subordinates: map[string]SubordinateHealth{},
		Jobs:         map[string]JobHealth{},
		Environment:  EnvironmentHealth{Flags: map[string]bool{}, Details: map[string]string{}},
		Remediations: []Remediation{},
		Escalations:  []Escalation{},
		Alerts:       []Alert{},
	}
}

// SnapshotCache is a short-lived copy of the last snapshot used to skip
// redundant health collection.
type SnapshotCache struct {
	Timestamp        time.Time      `json:"timestamp"`
	RulesFingerprint string         `json:"rules_fingerprint"`
	Snapshot         StatusSnapshot `json:"status"`
}
