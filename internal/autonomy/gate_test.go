// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package autonomy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richardlaurits/butti-journey/internal/autonomy"
	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

func sideEffect(action, integration, target string) autonomy.Request {
	return autonomy.Request{ActionID: action, ActionType: store.ActionSideEffect, Integration: integration, Target: target}
}

func TestGate_AuthorizesClean(t *testing.T) {
	f := newFixture(t)
	d := f.c.Gate.Authorize(context.Background(), sideEffect("job1", "x", "target1"))
	assert.True(t, d.Allowed)
	assert.Equal(t, "All checks passed - action authorized", d.Reason)
	assert.Empty(t, d.Code)
}

func TestGate_RejectsEmptyActionID(t *testing.T) {
	f := newFixture(t)
	d := f.c.Gate.Authorize(context.Background(), autonomy.Request{})
	assert.False(t, d.Allowed)
	assert.Equal(t, autoerr.CodeGateRequestInvalid, d.Code)
}

func TestGate_SideEffectCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.c.Ledger.WriteMarker(ctx, "job1_target1", "target1", nil, store.ActionSideEffect))
	f.clock.Advance(2 * time.Hour)

	d := f.c.Gate.Authorize(ctx, sideEffect("job1", "x", "target1"))
	assert.False(t, d.Allowed)
	assert.Equal(t, autoerr.CodeGateCooldown, d.Code)
	assert.Equal(t, "Side-effect cooldown: COOLDOWN: job1_target1 ran 2.0h ago, wait 22.0h more", d.Reason)

	f.clock.Advance(22 * time.Hour)
	assert.True(t, f.c.Gate.Authorize(ctx, sideEffect("job1", "x", "target1")).Allowed)
}

func TestGate_SideEffectTargetsAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.c.Ledger.WriteMarker(ctx, "send_alice", "alice", nil, store.ActionSideEffect))

	assert.False(t, f.c.Gate.Authorize(ctx, sideEffect("send", "gmail", "alice")).Allowed)
	assert.True(t, f.c.Gate.Authorize(ctx, sideEffect("send", "gmail", "bob")).Allowed)
}

func TestGate_RecoveryCooldownUsesActionKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := autonomy.Request{ActionID: "restart", ActionType: store.ActionRecovery, Integration: "svc", Target: "a"}

	require.NoError(t, f.c.Ledger.WriteMarker(ctx, "restart", "a", nil, store.ActionRecovery))
	f.clock.Advance(5 * time.Hour)

	other := req
	other.Target = "b"
	d := f.c.Gate.Authorize(ctx, other)
	assert.False(t, d.Allowed, "recovery cooldown ignores target")
	assert.Contains(t, d.Reason, "Recovery cooldown: COOLDOWN: restart ran 5.0h ago")

	f.clock.Advance(time.Hour)
	assert.True(t, f.c.Gate.Authorize(ctx, req).Allowed)
}

func TestGate_KillSwitchDominates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Pile up every other reason to refuse.
	for range 3 {
		require.NoError(t, f.c.Breakers.RecordFailure(ctx, "gmail"))
	}
	require.NoError(t, f.c.Ledger.WriteMarker(ctx, "send_alice", "alice", nil, store.ActionSideEffect))
	require.NoError(t, f.c.Ledger.WriteMarker(ctx, "fix_disk", "", nil, store.ActionRecovery))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "KILL_SWITCH"), []byte("on\n"), 0o644))

	requests := []autonomy.Request{
		sideEffect("send", "gmail", "alice"),
		sideEffect("send", "healthy", "carol"),
		{ActionID: "fix_disk", ActionType: store.ActionRecovery, Integration: "gmail", CheckID: "disk"},
		{ActionID: "noop", ActionType: store.ActionOther},
	}
	for _, req := range requests {
		d := f.c.Gate.Authorize(ctx, req)
		assert.False(t, d.Allowed)
		assert.Equal(t, autoerr.CodeGateKillSwitch, d.Code)
		assert.Equal(t, "KILL_SWITCH is ON - all autonomous actions disabled", d.Reason)
	}
}

func TestGate_CircuitBeforeCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, f.c.Breakers.RecordFailure(ctx, "gmail"))
	}
	require.NoError(t, f.c.Ledger.WriteMarker(ctx, "send_alice", "alice", nil, store.ActionSideEffect))

	d := f.c.Gate.Authorize(ctx, sideEffect("send", "gmail", "alice"))
	assert.False(t, d.Allowed)
	assert.Equal(t, autoerr.CodeGateCircuitOpen, d.Code)
	assert.Equal(t, "Circuit breaker: gmail is DOWN (retry in ~60min)", d.Reason)
}

func TestGate_DuplicateBeforeCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.c.Ledger.WriteMarker(ctx, "cleanup_disk-cleanup", "", nil, store.ActionRecovery))
	f.clock.Advance(time.Hour)

	d := f.c.Gate.Authorize(ctx, autonomy.Request{
		ActionID:    "cleanup_disk-cleanup",
		ActionType:  store.ActionRecovery,
		Integration: "fs",
		CheckID:     "disk-cleanup",
	})
	assert.False(t, d.Allowed)
	assert.Equal(t, autoerr.CodeGateDuplicate, d.Code)
	assert.Equal(t, "DUPLICATE: cleanup_disk-cleanup remediated 1.0h ago", d.Reason)
}

func TestGate_ExpiredBreakerRecoversDuringAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, f.c.Breakers.RecordFailure(ctx, "gmail"))
	}
	f.clock.Advance(time.Hour)

	assert.True(t, f.c.Gate.Authorize(ctx, sideEffect("send", "gmail", "alice")).Allowed)
}
