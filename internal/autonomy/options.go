// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package autonomy

import (
	"log/slog"
	"time"
)

// Defaults for the gate policy.
const (
	DefaultFailureThreshold   = 3
	DefaultDownDuration       = 60 * time.Minute
	DefaultSideEffectCooldown = 24 * time.Hour
	DefaultRecoveryCooldown   = 6 * time.Hour
	DefaultDuplicateWindow    = 6 * time.Hour
	DefaultEvidenceMaxChars   = 200
)

type options struct {
	now                func() time.Time
	logger             *slog.Logger
	actionLog          *ActionLog
	failureThreshold   int
	downDuration       time.Duration
	sideEffectCooldown time.Duration
	recoveryCooldown   time.Duration
	duplicateWindow    time.Duration
	evidenceMaxChars   int
}

// Option configures a component of this package. Components ignore options
// that do not apply to them.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		now:                time.Now,
		logger:             slog.Default(),
		failureThreshold:   DefaultFailureThreshold,
		downDuration:       DefaultDownDuration,
		sideEffectCooldown: DefaultSideEffectCooldown,
		recoveryCooldown:   DefaultRecoveryCooldown,
		duplicateWindow:    DefaultDuplicateWindow,
		evidenceMaxChars:   DefaultEvidenceMaxChars,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithNow overrides the time source (for testing).
func WithNow(fn func() time.Time) Option {
	return func(o *options) {
		if fn != nil {
			o.now = fn
		}
	}
}

// WithLogger sets the process logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithActionLog mirrors gate and executor events to a durable action log.
func WithActionLog(l *ActionLog) Option {
	return func(o *options) { o.actionLog = l }
}

// WithBreakerPolicy sets the trip threshold and how long a tripped breaker
// stays DOWN. Non-positive values keep the defaults.
func WithBreakerPolicy(threshold int, down time.Duration) Option {
	return func(o *options) {
		if threshold > 0 {
			o.failureThreshold = threshold
		}
		if down > 0 {
			o.downDuration = down
		}
	}
}

// WithCooldowns sets the side-effect cooldown, the recovery/other cooldown,
// and the duplicate-remediation window. Non-positive values keep the defaults.
func WithCooldowns(sideEffect, recovery, duplicate time.Duration) Option {
	return func(o *options) {
		if sideEffect > 0 {
			o.sideEffectCooldown = sideEffect
		}
		if recovery > 0 {
			o.recoveryCooldown = recovery
		}
		if duplicate > 0 {
			o.duplicateWindow = duplicate
		}
	}
}

// WithEvidenceMaxChars bounds the result text stored in marker evidence.
func WithEvidenceMaxChars(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.evidenceMaxChars = n
		}
	}
}
