// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package watchdog

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/richardlaurits/butti-journey/internal/recovery"
	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

// Op is a condition operator.
type Op string

const (
	OpEq Op = "eq"
	OpNe Op = "ne"
	OpIn Op = "in"
)

// Field path prefixes understood by Resolve.
const (
	fieldSubordinates = "subordinates."
	fieldJobs         = "jobs."
	fieldEnvironment  = "environment."
	fieldStatus       = ".status"
)

// DefaultSeverity applies to rules that leave severity unset.
const DefaultSeverity = "medium"

var validSeverities = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}

// Condition compares one snapshot field with a literal.
type Condition struct {
	Field string `yaml:"field" json:"field"`
	Op    Op     `yaml:"op" json:"op"`
	Value any    `yaml:"value" json:"value"`
}

// Rule is one health check: a condition plus the recovery actions to try,
// in order, when it holds.
type Rule struct {
	ID              string               `yaml:"id" json:"id"`
	Severity        string               `yaml:"severity" json:"severity"`
	Description     string               `yaml:"description" json:"description,omitempty"`
	Condition       Condition            `yaml:"condition" json:"condition"`
	RecoveryActions []recovery.ActionDef `yaml:"recovery_actions" json:"recovery_actions"`
}

// EffectiveSeverity returns the rule severity or DefaultSeverity.
func (r Rule) EffectiveSeverity() string {
	if r.Severity == "" {
		return DefaultSeverity
	}
	return r.Severity
}

// RuleSet is a parsed rules file.
type RuleSet struct {
	Checks []Rule `yaml:"checks" json:"checks"`

	fingerprint string
}

// Fingerprint identifies the rules file content. An absent file has an
// empty fingerprint.
func (rs *RuleSet) Fingerprint() string { return rs.fingerprint }

// LoadRules reads and validates the rules file at path. A missing file
// yields an empty rule set. JSON rules files are accepted as YAML.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &RuleSet{}, nil
	}
	if err != nil {
		return nil, autoerr.Wrap(err, autoerr.CodeWatchdogRulesRead, "reading rules", autoerr.FieldPath(path))
	}
	rs, err := ParseRules(data)
	if err != nil {
		return nil, autoerr.With(err, autoerr.FieldPath(path))
	}
	return rs, nil
}

// ParseRules decodes and validates a rules document.
func ParseRules(data []byte) (*RuleSet, error) {
	rs := &RuleSet{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(rs); err != nil && !errors.Is(err, io.EOF) {
		return nil, autoerr.Wrap(err, autoerr.CodeWatchdogRulesInvalid, "decoding rules")
	}

	if err := rs.Validate(); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	rs.fingerprint = hex.EncodeToString(sum[:])
	return rs, nil
}

// Validate collects every definition error in the rule set.
func (rs *RuleSet) Validate() error {
	var errs []error
	seen := map[string]bool{}

	for i, rule := range rs.Checks {
		if rule.ID == "" {
			errs = append(errs, autoerr.Errorf(autoerr.CodeWatchdogRulesInvalid, "checks[%d]: id is required", i))
			continue
		}
		if seen[rule.ID] {
			errs = append(errs, autoerr.Errorf(autoerr.CodeWatchdogRulesInvalid, "checks[%d]: duplicate id %q", i, rule.ID))
		}
		seen[rule.ID] = true

		if rule.Severity != "" && !validSeverities[rule.Severity] {
			errs = append(errs, autoerr.Errorf(autoerr.CodeWatchdogRulesInvalid,
				"%s: severity must be one of [low, medium, high, critical], got %q", rule.ID, rule.Severity))
		}
		if err := rule.Condition.validate(); err != nil {
			errs = append(errs, autoerr.Errorf(autoerr.CodeWatchdogRulesInvalid, "%s: %w", rule.ID, err))
		}
		for _, action := range rule.RecoveryActions {
			if err := action.Validate(); err != nil {
				errs = append(errs, autoerr.Errorf(autoerr.CodeWatchdogRulesInvalid, "%s: %w", rule.ID, err))
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return autoerr.Wrap(errors.Join(errs...), autoerr.CodeWatchdogRulesInvalid, "invalid rules")
}

func (c Condition) validate() error {
	if !knownField(c.Field) {
		return fmt.Errorf("condition field %q must start with subordinates., jobs., or environment.", c.Field)
	}
	switch c.Op {
	case OpEq, OpNe:
		switch c.Value.(type) {
		case []any, map[string]any:
			return fmt.Errorf("condition op %s needs a scalar value", c.Op)
		}
	case OpIn:
		if _, ok := c.Value.([]any); !ok {
			return fmt.Errorf("condition op in needs a list value")
		}
	default:
		return fmt.Errorf("condition op must be one of [eq, ne, in], got %q", c.Op)
	}
	return nil
}

func knownField(field string) bool {
	for _, prefix := range []string{fieldSubordinates, fieldJobs, fieldEnvironment} {
		if strings.HasPrefix(field, prefix) && len(field) > len(prefix) {
			return true
		}
	}
	return false
}

// Evaluate reports whether the condition holds for snap. A field that does
// not resolve makes every operator false.
func (c Condition) Evaluate(snap *store.StatusSnapshot) bool {
	actual, ok := Resolve(snap, c.Field)
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return sameValue(actual, c.Value)
	case OpNe:
		return !sameValue(actual, c.Value)
	case OpIn:
		list, _ := c.Value.([]any)
		for _, v := range list {
			if sameValue(actual, v) {
				return true
			}
		}
	}
	return false
}

// Resolve looks up a field path in snap:
//
//	subordinates.<name>.status
//	jobs.<name>.status
//	environment.<flag>
func Resolve(snap *store.StatusSnapshot, field string) (any, bool) {
	if snap == nil {
		return nil, false
	}
	switch {
	case strings.HasPrefix(field, fieldSubordinates):
		name, ok := statusName(field, fieldSubordinates)
		if !ok {
			return nil, false
		}
		h, ok := snap.Subordinates[name]
		return h.Status, ok
	case strings.HasPrefix(field, fieldJobs):
		name, ok := statusName(field, fieldJobs)
		if !ok {
			return nil, false
		}
		h, ok := snap.Jobs[name]
		return h.Status, ok
	case strings.HasPrefix(field, fieldEnvironment):
		flag, ok := snap.Environment.Flags[strings.TrimPrefix(field, fieldEnvironment)]
		return flag, ok
	}
	return nil, false
}

func statusName(field, prefix string) (string, bool) {
	rest := strings.TrimPrefix(field, prefix)
	if !strings.HasSuffix(rest, fieldStatus) {
		return "", false
	}
	name := strings.TrimSuffix(rest, fieldStatus)
	return name, name != ""
}

func sameValue(actual, want any) bool {
	return fmt.Sprint(actual) == fmt.Sprint(want)
}
