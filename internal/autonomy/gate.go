// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

// Package autonomy is the safety gate every autonomous action passes
// through: the kill switch, per-integration circuit breakers, idempotency
// markers with cooldowns, and an executor that keeps their bookkeeping.
package autonomy

import (
	"context"

	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

const reasonAuthorized = "All checks passed - action authorized"

// Request describes an action asking for authorization.
type Request struct {
	ActionID    string
	ActionType  store.ActionType
	Integration string
	Target      string
	// CheckID, when set, enables the duplicate-remediation check.
	CheckID string
}

// MarkerKey is the ledger key for the request: side effects are isolated
// per target, everything else shares one key per action.
func (r Request) MarkerKey() string {
	if r.ActionType == store.ActionSideEffect {
		return r.ActionID + "_" + r.Target
	}
	return r.ActionID
}

// Decision is the outcome of an authorization. A refusal is a value, not an
// error; Code says which check refused.
type Decision struct {
	Allowed bool         `json:"allowed"`
	Reason  string       `json:"reason"`
	Code    autoerr.Code `json:"code,omitempty"`
}

func allow() Decision { return Decision{Allowed: true, Reason: reasonAuthorized} }

func deny(code autoerr.Code, reason string) Decision {
	return Decision{Allowed: false, Reason: reason, Code: code}
}

// Gate evaluates, in order and stopping at the first refusal: the kill
// switch, the integration's breaker, duplicate remediation (when a check id
// is given), and the cooldown for the action type.
type Gate struct {
	killSwitch *KillSwitch
	breakers   *Breakers
	ledger     *Ledger
	opts       options
}

// NewGate composes the gate from its checks.
func NewGate(ks *KillSwitch, breakers *Breakers, ledger *Ledger, opts ...Option) *Gate {
	return &Gate{killSwitch: ks, breakers: breakers, ledger: ledger, opts: newOptions(opts)}
}

// KillSwitch returns the gate's kill switch.
func (g *Gate) KillSwitch() *KillSwitch { return g.killSwitch }

// Breakers returns the gate's breaker registry.
func (g *Gate) Breakers() *Breakers { return g.breakers }

// Ledger returns the gate's marker ledger.
func (g *Gate) Ledger() *Ledger { return g.ledger }

// Authorize decides whether req may run now. It only reads state, except
// for lazily recovering an expired breaker.
func (g *Gate) Authorize(ctx context.Context, req Request) Decision {
	if req.ActionID == "" {
		return deny(autoerr.CodeGateRequestInvalid, "action id is required")
	}

	if g.killSwitch.Engaged() {
		return deny(autoerr.CodeGateKillSwitch, "KILL_SWITCH is ON - all autonomous actions disabled")
	}

	if ok, status := g.breakers.Check(ctx, req.Integration); !ok {
		return deny(autoerr.CodeGateCircuitOpen, "Circuit breaker: "+req.Integration+" is "+status)
	}

	if req.CheckID != "" {
		if ok, reason := g.ledger.CheckDuplicateRemediation(ctx, req.CheckID, g.opts.duplicateWindow); !ok {
			return deny(autoerr.CodeGateDuplicate, reason)
		}
	}

	if req.ActionType == store.ActionSideEffect {
		if ok, reason := g.ledger.CheckMarker(ctx, req.MarkerKey(), g.opts.sideEffectCooldown); !ok {
			return deny(autoerr.CodeGateCooldown, "Side-effect cooldown: "+reason)
		}
	} else {
		if ok, reason := g.ledger.CheckMarker(ctx, req.MarkerKey(), g.opts.recoveryCooldown); !ok {
			return deny(autoerr.CodeGateCooldown, "Recovery cooldown: "+reason)
		}
	}

	return allow()
}
