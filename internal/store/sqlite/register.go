// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package sqlite

import (
	"os"
	"path/filepath"

	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

// DBFile is the database file name inside the data directory.
const DBFile = "autonomy.db"

func init() {
	store.RegisterBackend("sqlite", newStateStore)
}

func newStateStore(dataDir string, cfg store.StorageConfig) (store.Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, autoerr.Wrap(err, autoerr.CodeStoreWriteFailure, "creating data dir", autoerr.FieldPath(dataDir))
	}
	return NewStateStore(filepath.Join(dataDir, DBFile), cfg.MaxEntries())
}
