// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package autonomy_test

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/richardlaurits/butti-journey/internal/autonomy"
	"github.com/richardlaurits/butti-journey/internal/store"
	"github.com/richardlaurits/butti-journey/internal/store/file"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	dir   string
	clock *fakeClock
	store *file.Store
	log   *autonomy.ActionLog
	c     *autonomy.Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := file.New(dir, store.StorageConfig{})
	require.NoError(t, err)

	al, err := autonomy.OpenActionLog(filepath.Join(dir, "autonomy.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = al.Close() })

	clock := newFakeClock()
	c := autonomy.NewCoordinator(st, filepath.Join(dir, "KILL_SWITCH"),
		autonomy.WithNow(clock.Now),
		autonomy.WithActionLog(al),
	)
	return &fixture{dir: dir, clock: clock, store: st, log: al, c: c}
}
