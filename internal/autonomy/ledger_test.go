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
)

func TestLedger_CheckMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, reason := f.c.Ledger.CheckMarker(ctx, "job", 6*time.Hour)
	assert.True(t, ok)
	assert.Equal(t, "No marker - action allowed", reason)

	require.NoError(t, f.c.Ledger.WriteMarker(ctx, "job", "t", map[string]any{"result": "ok"}, store.ActionRecovery))
	f.clock.Advance(90 * time.Minute)

	ok, reason = f.c.Ledger.CheckMarker(ctx, "job", 6*time.Hour)
	assert.False(t, ok)
	assert.Equal(t, "COOLDOWN: job ran 1.5h ago, wait 4.5h more", reason)

	f.clock.Advance(5 * time.Hour)
	ok, reason = f.c.Ledger.CheckMarker(ctx, "job", 6*time.Hour)
	assert.True(t, ok)
	assert.Equal(t, "Marker expired (6.5h ago), action allowed", reason)
}

func TestLedger_CorruptMarkerFailsOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path := filepath.Join(f.dir, "markers", "job.last_success.json")
	require.NoError(t, os.WriteFile(path, []byte("{\"timestamp\": 12"), 0o644))

	ok, reason := f.c.Ledger.CheckMarker(ctx, "job", 24*time.Hour)
	assert.True(t, ok)
	assert.Equal(t, "Marker corrupt - allowing action", reason)

	errors, err := autonomy.TailEvents(f.log.Path(), autonomy.EventError, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, errors, "corruption is logged at ERROR")
}

func TestLedger_WriteMarkerOverwrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.c.Ledger.WriteMarker(ctx, "send_alice", "alice", map[string]any{"n": 1}, store.ActionSideEffect))
	f.clock.Advance(time.Hour)
	require.NoError(t, f.c.Ledger.WriteMarker(ctx, "send_alice", "alice", map[string]any{"n": 2}, store.ActionSideEffect))

	markers, err := f.c.Ledger.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.True(t, f.clock.Now().Equal(markers[0].Timestamp))
	assert.EqualValues(t, 2, markers[0].Evidence["n"])
}

func TestLedger_DuplicateRemediationAcrossCallers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, _ := f.c.Ledger.CheckDuplicateRemediation(ctx, "disk-cleanup", 6*time.Hour)
	assert.True(t, ok)

	// First caller writes under its own naming scheme.
	require.NoError(t, f.c.Ledger.WriteMarker(ctx, "watchdog:disk-cleanup:tmp", "/tmp", nil, store.ActionRecovery))
	f.clock.Advance(2 * time.Hour)

	ok, reason := f.c.Ledger.CheckDuplicateRemediation(ctx, "disk-cleanup", 6*time.Hour)
	assert.False(t, ok)
	assert.Equal(t, "DUPLICATE: watchdog:disk-cleanup:tmp remediated 2.0h ago", reason)

	f.clock.Advance(5 * time.Hour)
	ok, _ = f.c.Ledger.CheckDuplicateRemediation(ctx, "disk-cleanup", 6*time.Hour)
	assert.True(t, ok, "outside the window")
}

func TestLedger_DuplicateMatchesAnyMarkerType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.c.Ledger.WriteMarker(ctx, "email_disk_report_bob", "bob", nil, store.ActionSideEffect))
	ok, _ := f.c.Ledger.CheckDuplicateRemediation(ctx, "disk", 6*time.Hour)
	assert.False(t, ok, "substring containment matches side-effect markers too")
}

func TestLedger_RecentNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, f.c.Ledger.WriteMarker(ctx, key, "", nil, store.ActionRecovery))
		f.clock.Advance(time.Minute)
	}

	markers, err := f.c.Ledger.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, markers, 2)
	assert.Equal(t, "c", markers[0].ActionID)
	assert.Equal(t, "b", markers[1].ActionID)
}
