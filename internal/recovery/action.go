// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package recovery

import (
	"time"

	"gopkg.in/yaml.v3"

	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

// Defaults applied to an ActionDef that leaves a field unset.
const (
	DefaultCooldownMinutes = 360
	DefaultMaxAttempts     = 2
)

// ActionDef is one recovery action attached to a health-check rule.
type ActionDef struct {
	ID              string `yaml:"id" json:"id"`
	Tier            int    `yaml:"tier" json:"tier"`
	CooldownMinutes int    `yaml:"cooldown_minutes" json:"cooldown_minutes"`
	MaxAttempts     int    `yaml:"max_attempts" json:"max_attempts"`
	// AttemptWindowMinutes bounds the failed-attempt count. Zero means the
	// cooldown window.
	AttemptWindowMinutes int            `yaml:"attempt_window_minutes" json:"attempt_window_minutes"`
	Handler              string         `yaml:"handler" json:"handler"`
	Params               map[string]any `yaml:"params" json:"params,omitempty"`
}

// Cooldown returns the minimum interval between attempts.
func (a ActionDef) Cooldown() time.Duration {
	if a.CooldownMinutes <= 0 {
		return DefaultCooldownMinutes * time.Minute
	}
	return time.Duration(a.CooldownMinutes) * time.Minute
}

// AttemptWindow returns how far back failed attempts are counted.
func (a ActionDef) AttemptWindow() time.Duration {
	if a.AttemptWindowMinutes <= 0 {
		return a.Cooldown()
	}
	return time.Duration(a.AttemptWindowMinutes) * time.Minute
}

// Attempts returns the failed-attempt cap.
func (a ActionDef) Attempts() int {
	if a.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return a.MaxAttempts
}

// Validate reports definition errors that make the action unusable.
func (a ActionDef) Validate() error {
	var errs []error
	if a.ID == "" {
		errs = append(errs, autoerr.New(autoerr.CodeWatchdogRulesInvalid, "recovery action id is required"))
	}
	if a.Tier < 1 {
		errs = append(errs, autoerr.New(autoerr.CodeWatchdogRulesInvalid, "recovery action tier must be >= 1",
			autoerr.FieldActionID(a.ID)))
	}
	if a.Handler == "" {
		errs = append(errs, autoerr.New(autoerr.CodeWatchdogRulesInvalid, "recovery action handler is required",
			autoerr.FieldActionID(a.ID)))
	}
	if len(errs) == 0 {
		return nil
	}
	return autoerr.Wrap(autoerr.Join(errs...), autoerr.CodeWatchdogRulesInvalid, "invalid recovery action")
}

// DecodeParams decodes the action's free-form params into out, which must
// be a pointer to a struct with yaml tags.
func (a ActionDef) DecodeParams(out any) error {
	raw, err := yaml.Marshal(a.Params)
	if err != nil {
		return autoerr.Wrap(err, autoerr.CodeRecoveryHandlerInvalid, "encoding params", autoerr.FieldActionID(a.ID))
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return autoerr.Wrap(err, autoerr.CodeRecoveryHandlerInvalid, "decoding params", autoerr.FieldActionID(a.ID))
	}
	return nil
}
