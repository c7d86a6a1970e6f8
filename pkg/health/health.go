// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

// Package health describes the point-in-time health of an integration as
// seen by the circuit breaker, for dashboards and the HTTP API.
package health

import "time"

// Metrics exposes the current health state of an integration for
// monitoring and operator visibility. All fields are point-in-time
// snapshots safe to serialize to JSON.
type Metrics struct {
	Integration   string     `json:"integration"`
	Status        string     `json:"status"`
	FailureCount  int        `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	DownUntil     *time.Time `json:"down_until,omitempty"`
	Available     bool       `json:"available"`
	// Expired is set when a stored DOWN entry has passed its deadline but
	// has not been checked since. The next check recovers it.
	Expired bool `json:"expired,omitempty"`
}

const statusDown = "DOWN"

// Compute derives metrics from a raw breaker record as stored. It never
// mutates anything: a DOWN entry past its deadline is reported as stored,
// with Expired and Available set.
func Compute(integration, status string, failures int, lastFailure, downUntil *time.Time, now time.Time) Metrics {
	m := Metrics{
		Integration:  integration,
		Status:       status,
		FailureCount: failures,
		Available:    true,
	}

	if lastFailure != nil {
		t := *lastFailure
		m.LastFailureAt = &t
	}
	if downUntil != nil {
		t := *downUntil
		m.DownUntil = &t
	}

	if status == statusDown {
		if downUntil != nil && !now.Before(*downUntil) {
			m.Expired = true
		} else {
			m.Available = false
		}
	}
	return m
}

// Remaining returns the time left until the integration may be retried, or
// zero when it is available.
func (m Metrics) Remaining(now time.Time) time.Duration {
	if m.Available || m.DownUntil == nil {
		return 0
	}
	return m.DownUntil.Sub(now)
}
