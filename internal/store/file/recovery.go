// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package file

import (
	"context"
	"log/slog"

	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

// recoveryLogStore keeps the recovery history as a single JSON list,
// truncated to the newest maxEntries on every append.
type recoveryLogStore struct {
	path       string
	maxEntries int
}

func (r *recoveryLogStore) Append(ctx context.Context, entry *store.RecoveryLogEntry) error {
	if entry == nil || entry.ActionID == "" {
		return autoerr.New(autoerr.CodeStoreInvalidInput, "recovery entry action id is required")
	}

	return withLock(ctx, r.path, func() error {
		entries, err := r.load()
		if err != nil {
			if !autoerr.IsCorrupt(err) {
				return err
			}
			slog.Error("recovery log corrupt, starting a new one", "path", r.path, "error", err)
			entries = nil
		}

		entries = append(entries, entry)
		if over := len(entries) - r.maxEntries; over > 0 {
			entries = entries[over:]
		}
		return writeJSON(r.path, entries)
	})
}

func (r *recoveryLogStore) Query(_ context.Context, filter store.RecoveryFilter) ([]*store.RecoveryLogEntry, error) {
	entries, err := r.load()
	if err != nil {
		return nil, err
	}

	out := make([]*store.RecoveryLogEntry, 0, len(entries))
	for _, e := range entries {
		if e != nil && filter.Match(e) {
			out = append(out, e)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

func (r *recoveryLogStore) load() ([]*store.RecoveryLogEntry, error) {
	var entries []*store.RecoveryLogEntry
	if err := readJSON(r.path, &entries); err != nil {
		if autoerr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return entries, nil
}
