// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

// markerStore writes one document per key. Short keys are stored under
// their escaped form, so the directory listing doubles as the key index and
// substring searches only open the files whose key matches. Keys whose
// escaped form would exceed maxMarkerName are stored under a digest name;
// those documents are always opened and matched on their ActionID.
type markerStore struct {
	dir string
}

// maxMarkerName keeps marker file names well under the common 255-byte
// file name limit.
const maxMarkerName = 200

// hashedMarkerPrefix starts digest names. url.PathEscape never emits a bare
// "%" followed by a non-hex byte, so it cannot collide with an escaped key.
const hashedMarkerPrefix = "%sha256-"

func markerFileName(key string) string {
	name := url.PathEscape(key) + markerSuffix
	if len(name) <= maxMarkerName {
		return name
	}
	sum := sha256.Sum256([]byte(key))
	return hashedMarkerPrefix + hex.EncodeToString(sum[:]) + markerSuffix
}

func (m *markerStore) pathFor(key string) string {
	return filepath.Join(m.dir, markerFileName(key))
}

func (m *markerStore) Get(_ context.Context, key string) (*store.ActionMarker, error) {
	if key == "" {
		return nil, autoerr.New(autoerr.CodeStoreInvalidInput, "marker key is required")
	}

	marker, err := readMarker(m.pathFor(key))
	if err != nil {
		return nil, autoerr.With(err, autoerr.FieldActionID(key))
	}
	if marker.ActionID != key {
		return nil, autoerr.New(autoerr.CodeStoreNotFound, "no marker", autoerr.FieldActionID(key))
	}
	return marker, nil
}

// Put replaces the marker document; last write wins for the same key.
func (m *markerStore) Put(_ context.Context, marker *store.ActionMarker) error {
	if marker == nil || marker.ActionID == "" {
		return autoerr.New(autoerr.CodeStoreInvalidInput, "marker action id is required")
	}
	return writeJSON(m.pathFor(marker.ActionID), marker)
}

func (m *markerStore) List(ctx context.Context) ([]*store.ActionMarker, error) {
	return m.scan(ctx, func(string) bool { return true }, time.Time{})
}

func (m *markerStore) FindContaining(ctx context.Context, substr string, since time.Time) ([]*store.ActionMarker, error) {
	return m.scan(ctx, func(key string) bool { return strings.Contains(key, substr) }, since)
}

func (m *markerStore) scan(_ context.Context, match func(key string) bool, since time.Time) ([]*store.ActionMarker, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*store.ActionMarker{}, nil
		}
		return nil, autoerr.Wrap(err, autoerr.CodeStoreReadFailure, "listing markers", autoerr.FieldPath(m.dir))
	}

	markers := make([]*store.ActionMarker, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, markerSuffix) {
			continue
		}
		if !strings.HasPrefix(name, hashedMarkerPrefix) {
			key, err := url.PathUnescape(strings.TrimSuffix(name, markerSuffix))
			if err != nil || !match(key) {
				continue
			}
		}

		path := filepath.Join(m.dir, name)
		marker, err := readMarker(path)
		if err != nil {
			if !autoerr.IsNotFound(err) {
				slog.Error("skipping unreadable marker", "path", path, "error", err)
			}
			continue
		}
		if !match(marker.ActionID) {
			continue
		}
		if !since.IsZero() && !marker.Timestamp.After(since) {
			continue
		}
		markers = append(markers, marker)
	}

	sort.SliceStable(markers, func(i, j int) bool {
		return markers[i].Timestamp.After(markers[j].Timestamp)
	})
	return markers, nil
}

func readMarker(path string) (*store.ActionMarker, error) {
	var marker store.ActionMarker
	if err := readJSON(path, &marker); err != nil {
		return nil, err
	}
	if err := store.ValidateMarker(&marker); err != nil {
		return nil, autoerr.With(err, autoerr.FieldPath(path))
	}
	return &marker, nil
}
