// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

// Package file implements the default state store as a directory of JSON
// documents. Every document is replaced atomically, and read-modify-write
// cycles on shared documents hold an flock on a sidecar lock file.
package file

import (
	"os"
	"path/filepath"

	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

const (
	breakersFile    = "circuit_breakers.json"
	markersDir      = "markers"
	markerSuffix    = ".last_success.json"
	recoveryLogFile = "recovery_log.json"
	watchdogDir     = "watchdog"
	snapshotFile    = "status.json"
	cacheFile       = ".watchdog_cache.json"
)

func init() {
	store.RegisterBackend("file", func(dataDir string, cfg store.StorageConfig) (store.Store, error) {
		return New(dataDir, cfg)
	})
}

// Compile-time interface checks.
var (
	_ store.Store            = (*Store)(nil)
	_ store.BreakerStore     = (*breakerStore)(nil)
	_ store.MarkerStore      = (*markerStore)(nil)
	_ store.RecoveryLogStore = (*recoveryLogStore)(nil)
	_ store.SnapshotStore    = (*snapshotStore)(nil)
)

// Store is a store.Store rooted at a data directory.
type Store struct {
	dir       string
	breakers  *breakerStore
	markers   *markerStore
	recovery  *recoveryLogStore
	snapshots *snapshotStore
}

// New creates the directory layout under dataDir and returns a Store.
func New(dataDir string, cfg store.StorageConfig) (*Store, error) {
	if dataDir == "" {
		return nil, autoerr.New(autoerr.CodeStoreInvalidInput, "data dir is required")
	}

	for _, dir := range []string{dataDir, filepath.Join(dataDir, markersDir), filepath.Join(dataDir, watchdogDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, autoerr.Wrap(err, autoerr.CodeStoreWriteFailure, "creating state dir", autoerr.FieldPath(dir))
		}
	}

	return &Store{
		dir:      dataDir,
		breakers: &breakerStore{path: filepath.Join(dataDir, breakersFile)},
		markers:  &markerStore{dir: filepath.Join(dataDir, markersDir)},
		recovery: &recoveryLogStore{
			path:       filepath.Join(dataDir, recoveryLogFile),
			maxEntries: cfg.MaxEntries(),
		},
		snapshots: &snapshotStore{
			path:      filepath.Join(dataDir, watchdogDir, snapshotFile),
			cachePath: filepath.Join(dataDir, watchdogDir, cacheFile),
		},
	}, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) Breakers() store.BreakerStore        { return s.breakers }
func (s *Store) Markers() store.MarkerStore          { return s.markers }
func (s *Store) RecoveryLog() store.RecoveryLogStore { return s.recovery }
func (s *Store) Snapshots() store.SnapshotStore      { return s.snapshots }

// Close is a no-op; the file backend holds no open handles between calls.
func (s *Store) Close() error { return nil }
