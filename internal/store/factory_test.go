// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richardlaurits/butti-journey/internal/store"
	_ "github.com/richardlaurits/butti-journey/internal/store/file"   // register file backend
	_ "github.com/richardlaurits/butti-journey/internal/store/sqlite" // register sqlite backend
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

func TestBackends_Registered(t *testing.T) {
	assert.Equal(t, []string{"file", "sqlite"}, store.Backends())
}

func TestOpen_Backends(t *testing.T) {
	tests := []struct {
		name    string
		backend string
	}{
		{name: "default is file", backend: ""},
		{name: "file", backend: "file"},
		{name: "sqlite", backend: "sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, err := store.Open(store.StorageConfig{Backend: tt.backend}, t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })

			now := time.Now().UTC().Truncate(time.Second)
			require.NoError(t, s.Markers().Put(ctx, &store.ActionMarker{
				Timestamp:  now,
				ActionID:   "send_email_alice",
				ActionType: store.ActionSideEffect,
				Target:     "alice",
			}))

			got, err := s.Markers().Get(ctx, "send_email_alice")
			require.NoError(t, err)
			assert.Equal(t, "alice", got.Target)
			assert.True(t, now.Equal(got.Timestamp))
		})
	}
}

func TestOpen_UnsupportedBackend(t *testing.T) {
	_, err := store.Open(store.StorageConfig{Backend: "postgres"}, t.TempDir())
	require.Error(t, err)
	assert.True(t, autoerr.HasCode(err, autoerr.CodeStoreBackendUnsupported))
	assert.Contains(t, err.Error(), "postgres")
}

func TestStorageConfig_MaxEntries(t *testing.T) {
	assert.Equal(t, store.DefaultRecoveryLogMaxEntries, store.StorageConfig{}.MaxEntries())
	assert.Equal(t, store.DefaultRecoveryLogMaxEntries, store.StorageConfig{RecoveryLogMaxEntries: -1}.MaxEntries())
	assert.Equal(t, 7, store.StorageConfig{RecoveryLogMaxEntries: 7}.MaxEntries())
}

func TestActionType_Marked(t *testing.T) {
	assert.True(t, store.ActionSideEffect.Marked())
	assert.True(t, store.ActionRecovery.Marked())
	assert.False(t, store.ActionOther.Marked())
}

func TestValidateMarker(t *testing.T) {
	now := time.Now()

	require.NoError(t, store.ValidateMarker(&store.ActionMarker{ActionID: "job", Timestamp: now}))

	err := store.ValidateMarker(&store.ActionMarker{ActionID: "job"})
	assert.True(t, autoerr.IsCorrupt(err))

	err = store.ValidateMarker(&store.ActionMarker{Timestamp: now})
	assert.True(t, autoerr.IsCorrupt(err))
}
