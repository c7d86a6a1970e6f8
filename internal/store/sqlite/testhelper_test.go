// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/richardlaurits/butti-journey/internal/store/sqlite"
)

// openTestStore opens a state store in a fresh temp directory.
func openTestStore(t *testing.T, maxEntries int) *sqlite.StateStore {
	t.Helper()
	s, err := sqlite.NewStateStore(filepath.Join(t.TempDir(), "state.db"), maxEntries)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
