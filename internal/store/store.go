// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package store

import (
	"context"
	"time"
)

// Store bundles the durable state used by the autonomy coordinator and
// the watchdog.
type Store interface {
	Breakers() BreakerStore
	Markers() MarkerStore
	RecoveryLog() RecoveryLogStore
	Snapshots() SnapshotStore
	Close() error
}

// BreakerStore persists the circuit-breaker table. Writes to different
// integrations must never lose each other.
type BreakerStore interface {
	// Get returns the entry for integration, a not_found error if there is
	// none, or a corrupt error if the table cannot be decoded.
	Get(ctx context.Context, integration string) (*CircuitBreakerEntry, error)
	Put(ctx context.Context, integration string, entry *CircuitBreakerEntry) error
	List(ctx context.Context) (BreakerTable, error)
}

// MarkerStore persists one idempotency marker per action key.
type MarkerStore interface {
	Get(ctx context.Context, key string) (*ActionMarker, error)
	// Put overwrites the marker stored under marker.ActionID.
	Put(ctx context.Context, marker *ActionMarker) error
	// List returns every readable marker, newest first. Unreadable markers
	// are skipped.
	List(ctx context.Context) ([]*ActionMarker, error)
	// FindContaining returns readable markers whose ActionID contains substr
	// and whose Timestamp is after since, newest first.
	FindContaining(ctx context.Context, substr string, since time.Time) ([]*ActionMarker, error)
}

// RecoveryLogStore is the append-only history of recovery attempts.
// Backends keep only the most recent entries up to a configured bound.
type RecoveryLogStore interface {
	Append(ctx context.Context, entry *RecoveryLogEntry) error
	// Query returns matching entries oldest first.
	Query(ctx context.Context, filter RecoveryFilter) ([]*RecoveryLogEntry, error)
}

// SnapshotStore persists the latest watchdog snapshot and its cache copy.
type SnapshotStore interface {
	Load(ctx context.Context) (*StatusSnapshot, error)
	Save(ctx context.Context, snap *StatusSnapshot) error
	LoadCache(ctx context.Context) (*SnapshotCache, error)
	SaveCache(ctx context.Context, cache *SnapshotCache) error
}
