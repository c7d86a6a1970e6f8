// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package file

import (
	"context"
	"log/slog"

	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

// breakerStore keeps the whole breaker table in one document.
type breakerStore struct {
	path string
}

func (b *breakerStore) Get(_ context.Context, integration string) (*store.CircuitBreakerEntry, error) {
	table, err := b.load()
	if err != nil {
		return nil, err
	}

	entry, ok := table[integration]
	if !ok || entry == nil {
		return nil, autoerr.New(autoerr.CodeStoreNotFound, "no breaker entry", autoerr.FieldIntegration(integration))
	}
	return entry, nil
}

// Put updates one integration under the table lock so that concurrent
// writers to other integrations are preserved.
func (b *breakerStore) Put(ctx context.Context, integration string, entry *store.CircuitBreakerEntry) error {
	if integration == "" {
		return autoerr.New(autoerr.CodeStoreInvalidInput, "integration is required")
	}
	if entry == nil {
		return autoerr.New(autoerr.CodeStoreInvalidInput, "breaker entry is required", autoerr.FieldIntegration(integration))
	}

	return withLock(ctx, b.path, func() error {
		table, err := b.load()
		switch {
		case err == nil:
		case autoerr.IsCorrupt(err):
			slog.Error("circuit breaker table corrupt, rewriting", "path", b.path, "error", err)
			table = store.BreakerTable{}
		default:
			return err
		}

		table[integration] = entry
		return writeJSON(b.path, table)
	})
}

func (b *breakerStore) List(_ context.Context) (store.BreakerTable, error) {
	return b.load()
}

// load returns an empty table when the document does not exist yet.
func (b *breakerStore) load() (store.BreakerTable, error) {
	table := store.BreakerTable{}
	if err := readJSON(b.path, &table); err != nil {
		if autoerr.IsNotFound(err) {
			return store.BreakerTable{}, nil
		}
		return nil, err
	}
	if table == nil {
		table = store.BreakerTable{}
	}
	return table, nil
}
