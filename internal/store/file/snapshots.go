// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package file

import (
	"context"

	"github.com/richardlaurits/butti-journey/internal/store"
)

type snapshotStore struct {
	path      string
	cachePath string
}

func (s *snapshotStore) Load(_ context.Context) (*store.StatusSnapshot, error) {
	snap := store.NewStatusSnapshot()
	if err := readJSON(s.path, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *snapshotStore) Save(_ context.Context, snap *store.StatusSnapshot) error {
	return writeJSON(s.path, snap)
}

func (s *snapshotStore) LoadCache(_ context.Context) (*store.SnapshotCache, error) {
	var cache store.SnapshotCache
	if err := readJSON(s.cachePath, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

func (s *snapshotStore) SaveCache(_ context.Context, cache *store.SnapshotCache) error {
	return writeJSON(s.cachePath, cache)
}
