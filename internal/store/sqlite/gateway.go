// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

// Compile-time interface checks.
var (
	_ store.Store            = (*StateStore)(nil)
	_ store.BreakerStore     = (*breakerStore)(nil)
	_ store.MarkerStore      = (*markerStore)(nil)
	_ store.RecoveryLogStore = (*recoveryLogStore)(nil)
	_ store.SnapshotStore    = (*snapshotStore)(nil)
)

// StateStore implements store.Store backed by a single SQLite database.
// Records are kept as JSON documents next to the indexed columns that the
// queries filter on.
type StateStore struct {
	db        *sql.DB
	breakers  *breakerStore
	markers   *markerStore
	recovery  *recoveryLogStore
	snapshots *snapshotStore
}

// NewStateStore opens (or creates) a SQLite database at dbPath and
// initialises the breakers, markers, recovery_log, and snapshots tables.
func NewStateStore(dbPath string, maxRecoveryEntries int) (*StateStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "opening state db", autoerr.FieldPath(dbPath))
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "pinging state db", autoerr.FieldPath(dbPath))
	}

	if err := migrateState(db); err != nil {
		_ = db.Close()
		return nil, autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "migrating state db", autoerr.FieldPath(dbPath))
	}

	if maxRecoveryEntries <= 0 {
		maxRecoveryEntries = store.DefaultRecoveryLogMaxEntries
	}

	return &StateStore{
		db:        db,
		breakers:  &breakerStore{db: db},
		markers:   &markerStore{db: db},
		recovery:  &recoveryLogStore{db: db, maxEntries: maxRecoveryEntries},
		snapshots: &snapshotStore{db: db},
	}, nil
}

func migrateState(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS breakers (
	integration TEXT PRIMARY KEY,
	doc         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS markers (
	action_id TEXT PRIMARY KEY,
	ts_unix   INTEGER NOT NULL,
	doc       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_markers_ts ON markers(ts_unix);

CREATE TABLE IF NOT EXISTS recovery_log (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	id        TEXT NOT NULL,
	action_id TEXT NOT NULL,
	result    TEXT NOT NULL,
	ts_unix   INTEGER NOT NULL,
	doc       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recovery_log_action ON recovery_log(action_id, ts_unix);

CREATE TABLE IF NOT EXISTS snapshots (
	name TEXT PRIMARY KEY,
	doc  TEXT NOT NULL
);
`
	_, err := db.Exec(ddl)
	return err
}

func (s *StateStore) Breakers() store.BreakerStore        { return s.breakers }
func (s *StateStore) Markers() store.MarkerStore          { return s.markers }
func (s *StateStore) RecoveryLog() store.RecoveryLogStore { return s.recovery }
func (s *StateStore) Snapshots() store.SnapshotStore      { return s.snapshots }

// Close closes the underlying database connection.
func (s *StateStore) Close() error { return s.db.Close() }

// ---------- breakerStore ----------

type breakerStore struct {
	db *sql.DB
}

func (b *breakerStore) Get(ctx context.Context, integration string) (*store.CircuitBreakerEntry, error) {
	var doc string
	err := b.db.QueryRowContext(ctx, `SELECT doc FROM breakers WHERE integration = ?`, integration).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, autoerr.New(autoerr.CodeStoreNotFound, "no breaker entry", autoerr.FieldIntegration(integration))
	}
	if err != nil {
		return nil, autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "getting breaker", autoerr.FieldIntegration(integration))
	}

	var entry store.CircuitBreakerEntry
	if err := decode(doc, &entry); err != nil {
		return nil, autoerr.With(err, autoerr.FieldIntegration(integration))
	}
	return &entry, nil
}

func (b *breakerStore) Put(ctx context.Context, integration string, entry *store.CircuitBreakerEntry) error {
	if integration == "" || entry == nil {
		return autoerr.New(autoerr.CodeStoreInvalidInput, "integration and entry are required")
	}
	doc, err := encode(entry)
	if err != nil {
		return err
	}

	const q = `INSERT INTO breakers (integration, doc) VALUES (?, ?)
ON CONFLICT(integration) DO UPDATE SET doc = excluded.doc`
	if _, err := b.db.ExecContext(ctx, q, integration, doc); err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "upserting breaker", autoerr.FieldIntegration(integration))
	}
	return nil
}

func (b *breakerStore) List(ctx context.Context) (store.BreakerTable, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT integration, doc FROM breakers ORDER BY integration`)
	if err != nil {
		return nil, autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "listing breakers")
	}
	defer rows.Close() //nolint:errcheck

	table := store.BreakerTable{}
	for rows.Next() {
		var name, doc string
		if err := rows.Scan(&name, &doc); err != nil {
			return nil, autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "scanning breaker row")
		}
		var entry store.CircuitBreakerEntry
		if err := decode(doc, &entry); err != nil {
			slog.Error("skipping corrupt breaker row", "integration", name, "error", err)
			continue
		}
		table[name] = &entry
	}
	if err := rows.Err(); err != nil {
		return nil, autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "iterating breakers")
	}
	return table, nil
}

// ---------- markerStore ----------

type markerStore struct {
	db *sql.DB
}

func (m *markerStore) Get(ctx context.Context, key string) (*store.ActionMarker, error) {
	var doc string
	err := m.db.QueryRowContext(ctx, `SELECT doc FROM markers WHERE action_id = ?`, key).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, autoerr.New(autoerr.CodeStoreNotFound, "no marker", autoerr.FieldActionID(key))
	}
	if err != nil {
		return nil, autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "getting marker", autoerr.FieldActionID(key))
	}

	var marker store.ActionMarker
	if err := decode(doc, &marker); err != nil {
		return nil, autoerr.With(err, autoerr.FieldActionID(key))
	}
	if err := store.ValidateMarker(&marker); err != nil {
		return nil, autoerr.With(err, autoerr.FieldActionID(key))
	}
	return &marker, nil
}

func (m *markerStore) Put(ctx context.Context, marker *store.ActionMarker) error {
	if marker == nil || marker.ActionID == "" {
		return autoerr.New(autoerr.CodeStoreInvalidInput, "marker action id is required")
	}
	doc, err := encode(marker)
	if err != nil {
		return err
	}

	const q = `INSERT INTO markers (action_id, ts_unix, doc) VALUES (?, ?, ?)
ON CONFLICT(action_id) DO UPDATE SET ts_unix = excluded.ts_unix, doc = excluded.doc`
	if _, err := m.db.ExecContext(ctx, q, marker.ActionID, marker.Timestamp.UnixNano(), doc); err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "upserting marker", autoerr.FieldActionID(marker.ActionID))
	}
	return nil
}

func (m *markerStore) List(ctx context.Context) ([]*store.ActionMarker, error) {
	return m.query(ctx, `SELECT action_id, doc FROM markers ORDER BY ts_unix DESC`)
}

func (m *markerStore) FindContaining(ctx context.Context, substr string, since time.Time) ([]*store.ActionMarker, error) {
	const q = `SELECT action_id, doc FROM markers
WHERE instr(action_id, ?) > 0 AND ts_unix > ?
ORDER BY ts_unix DESC`
	return m.query(ctx, q, substr, since.UnixNano())
}

func (m *markerStore) query(ctx context.Context, q string, args ...any) ([]*store.ActionMarker, error) {
	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "querying markers")
	}
	defer rows.Close() //nolint:errcheck

	markers := []*store.ActionMarker{}
	for rows.Next() {
		var key, doc string
		if err := rows.Scan(&key, &doc); err != nil {
			return nil, autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "scanning marker row")
		}
		var marker store.ActionMarker
		if err := decode(doc, &marker); err != nil {
			slog.Error("skipping corrupt marker row", "action_id", key, "error", err)
			continue
		}
		if err := store.ValidateMarker(&marker); err != nil {
			slog.Error("skipping corrupt marker row", "action_id", key, "error", err)
			continue
		}
		markers = append(markers, &marker)
	}
	if err := rows.Err(); err != nil {
		return nil, autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "iterating markers")
	}
	return markers, nil
}

// ---------- recoveryLogStore ----------

type recoveryLogStore struct {
	db         *sql.DB
	maxEntries int
}

func (r *recoveryLogStore) Append(ctx context.Context, entry *store.RecoveryLogEntry) error {
	if entry == nil || entry.ActionID == "" {
		return autoerr.New(autoerr.CodeStoreInvalidInput, "recovery entry action id is required")
	}
	doc, err := encode(entry)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "beginning recovery log tx")
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO recovery_log (id, action_id, result, ts_unix, doc) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert, entry.ID, entry.ActionID, string(entry.Result), entry.Timestamp.UnixNano(), doc); err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "inserting recovery entry", autoerr.FieldActionID(entry.ActionID))
	}

	const trim = `DELETE FROM recovery_log WHERE seq NOT IN (
	SELECT seq FROM recovery_log ORDER BY seq DESC LIMIT ?
)`
	if _, err := tx.ExecContext(ctx, trim, r.maxEntries); err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "trimming recovery log")
	}

	if err := tx.Commit(); err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "committing recovery entry")
	}
	return nil
}

func (r *recoveryLogStore) Query(ctx context.Context, filter store.RecoveryFilter) ([]*store.RecoveryLogEntry, error) {
	q := `SELECT doc FROM recovery_log WHERE 1 = 1`
	var args []any
	if filter.ActionID != "" {
		q += ` AND action_id = ?`
		args = append(args, filter.ActionID)
	}
	if filter.Result != "" {
		q += ` AND result = ?`
		args = append(args, string(filter.Result))
	}
	if !filter.Since.IsZero() {
		q += ` AND ts_unix > ?`
		args = append(args, filter.Since.UnixNano())
	}
	q += ` ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "querying recovery log")
	}
	defer rows.Close() //nolint:errcheck

	entries := []*store.RecoveryLogEntry{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "scanning recovery row")
		}
		var entry store.RecoveryLogEntry
		if err := decode(doc, &entry); err != nil {
			slog.Error("skipping corrupt recovery row", "error", err)
			continue
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "iterating recovery log")
	}

	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[len(entries)-filter.Limit:]
	}
	return entries, nil
}

// ---------- snapshotStore ----------

const (
	snapshotLatest = "latest"
	snapshotCache  = "cache"
)

type snapshotStore struct {
	db *sql.DB
}

func (s *snapshotStore) Load(ctx context.Context) (*store.StatusSnapshot, error) {
	snap := store.NewStatusSnapshot()
	if err := s.get(ctx, snapshotLatest, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *snapshotStore) Save(ctx context.Context, snap *store.StatusSnapshot) error {
	return s.put(ctx, snapshotLatest, snap)
}

func (s *snapshotStore) LoadCache(ctx context.Context) (*store.SnapshotCache, error) {
	var cache store.SnapshotCache
	if err := s.get(ctx, snapshotCache, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

func (s *snapshotStore) SaveCache(ctx context.Context, cache *store.SnapshotCache) error {
	return s.put(ctx, snapshotCache, cache)
}

func (s *snapshotStore) get(ctx context.Context, name string, v any) error {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM snapshots WHERE name = ?`, name).Scan(&doc)
	if err == sql.ErrNoRows {
		return autoerr.New(autoerr.CodeStoreNotFound, "no snapshot", autoerr.Field("snapshot", name))
	}
	if err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "getting snapshot", autoerr.Field("snapshot", name))
	}
	return decode(doc, v)
}

func (s *snapshotStore) put(ctx context.Context, name string, v any) error {
	doc, err := encode(v)
	if err != nil {
		return err
	}
	const q = `INSERT INTO snapshots (name, doc) VALUES (?, ?)
ON CONFLICT(name) DO UPDATE SET doc = excluded.doc`
	if _, err := s.db.ExecContext(ctx, q, name, doc); err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreDatabaseFailure, "saving snapshot", autoerr.Field("snapshot", name))
	}
	return nil
}

// ---------- helpers ----------

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", autoerr.Wrap(err, autoerr.CodeStoreWriteFailure, "encoding record")
	}
	return string(b), nil
}

func decode(doc string, v any) error {
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreCorrupt, "decoding record")
	}
	return nil
}
