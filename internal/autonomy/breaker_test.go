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

func TestBreakers_UnseenIsHealthy(t *testing.T) {
	f := newFixture(t)
	ok, label := f.c.Breakers.Check(context.Background(), "never-seen")
	assert.True(t, ok)
	assert.Equal(t, autonomy.LabelHealthy, label)
}

func TestBreakers_TripsAfterThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.c.Breakers.RecordFailure(ctx, "gmail"))
	require.NoError(t, f.c.Breakers.RecordFailure(ctx, "gmail"))
	ok, _ := f.c.Breakers.Check(ctx, "gmail")
	assert.True(t, ok, "two failures stay below the threshold")

	require.NoError(t, f.c.Breakers.RecordFailure(ctx, "gmail"))
	ok, label := f.c.Breakers.Check(ctx, "gmail")
	assert.False(t, ok)
	assert.Equal(t, "DOWN (retry in ~60min)", label)

	entry, err := f.store.Breakers().Get(ctx, "gmail")
	require.NoError(t, err)
	assert.Equal(t, store.BreakerDown, entry.Status)
	assert.Equal(t, 3, entry.ConsecutiveFailures)
}

func TestBreakers_FourthFailureKeepsDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, f.c.Breakers.RecordFailure(ctx, "x"))
	}
	tripped, err := f.store.Breakers().Get(ctx, "x")
	require.NoError(t, err)
	deadline := *tripped.DownUntil
	assert.True(t, f.clock.Now().Add(60*time.Minute).Equal(deadline))

	f.clock.Advance(20 * time.Minute)
	require.NoError(t, f.c.Breakers.RecordFailure(ctx, "x"))

	after, err := f.store.Breakers().Get(ctx, "x")
	require.NoError(t, err)
	assert.True(t, deadline.Equal(*after.DownUntil), "down_until must not be extended")
	assert.Equal(t, 4, after.ConsecutiveFailures)

	ok, label := f.c.Breakers.Check(ctx, "x")
	assert.False(t, ok)
	assert.Equal(t, "DOWN (retry in ~40min)", label)
}

func TestBreakers_LazyRecovery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, f.c.Breakers.RecordFailure(ctx, "svc"))
	}
	f.clock.Advance(61 * time.Minute)

	// The raw table still says DOWN until someone checks.
	raw, err := f.store.Breakers().Get(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, store.BreakerDown, raw.Status)

	ok, label := f.c.Breakers.Check(ctx, "svc")
	assert.True(t, ok)
	assert.Equal(t, autonomy.LabelRecovered, label)

	persisted, err := f.store.Breakers().Get(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, store.BreakerHealthy, persisted.Status)
	assert.Equal(t, 0, persisted.ConsecutiveFailures)

	require.NoError(t, f.c.Breakers.RecordFailure(ctx, "svc"))
	again, err := f.store.Breakers().Get(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, 1, again.ConsecutiveFailures, "count restarts after recovery")
	assert.Equal(t, store.BreakerHealthy, again.Status)
}

func TestBreakers_FailureAfterExpiryWithoutCheckStartsFresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, f.c.Breakers.RecordFailure(ctx, "svc"))
	}
	f.clock.Advance(2 * time.Hour)
	require.NoError(t, f.c.Breakers.RecordFailure(ctx, "svc"))

	entry, err := f.store.Breakers().Get(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.ConsecutiveFailures)
}

func TestBreakers_RecordSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.c.Breakers.RecordSuccess(ctx, "quiet"))
	_, err := f.store.Breakers().Get(ctx, "quiet")
	assert.True(t, autoerr.IsNotFound(err), "success without history writes nothing")

	require.NoError(t, f.c.Breakers.RecordFailure(ctx, "noisy"))
	require.NoError(t, f.c.Breakers.RecordFailure(ctx, "noisy"))
	require.NoError(t, f.c.Breakers.RecordSuccess(ctx, "noisy"))

	entry, err := f.store.Breakers().Get(ctx, "noisy")
	require.NoError(t, err)
	assert.Equal(t, store.BreakerHealthy, entry.Status)
	assert.Equal(t, 0, entry.ConsecutiveFailures)
	assert.Nil(t, entry.LastFailure)
}

func TestBreakers_CorruptTableIsHealthy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "circuit_breakers.json"), []byte("]]"), 0o644))

	ok, label := f.c.Breakers.Check(ctx, "gmail")
	assert.True(t, ok)
	assert.Equal(t, autonomy.LabelHealthy, label)

	require.NoError(t, f.c.Breakers.RecordFailure(ctx, "gmail"))
	entry, err := f.store.Breakers().Get(ctx, "gmail")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.ConsecutiveFailures)
}

func TestBreakers_MetricsFlagExpiredDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, f.c.Breakers.RecordFailure(ctx, "a"))
	}
	require.NoError(t, f.c.Breakers.RecordFailure(ctx, "b"))
	f.clock.Advance(90 * time.Minute)

	metrics, err := f.c.Breakers.Metrics(ctx)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, "a", metrics[0].Integration)
	assert.Equal(t, "DOWN", metrics[0].Status)
	assert.True(t, metrics[0].Expired)
	assert.False(t, metrics[1].Expired)

	raw, err := f.store.Breakers().Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, store.BreakerDown, raw.Status, "metrics never write")
}
