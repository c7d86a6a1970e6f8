// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package file

import (
	"encoding/json"
	"os"
	"path/filepath"

	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

// writeJSON atomically replaces path with the JSON encoding of v. Readers
// see either the old or the new document, never a partial write.
func writeJSON(path string, v any) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreWriteFailure, "json marshal", autoerr.FieldPath(path))
	}
	content = append(content, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreWriteFailure, "create state dir", autoerr.FieldPath(dir))
	}

	tmp, err := os.CreateTemp(dir, ".autonomy-tmp-*.json")
	if err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreWriteFailure, "create temp file", autoerr.FieldPath(path))
	}
	tmpName := tmp.Name()

	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreWriteFailure, "write temp file", autoerr.FieldPath(tmpName))
	}
	if err := tmp.Sync(); err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreWriteFailure, "sync temp file", autoerr.FieldPath(tmpName))
	}
	if err := tmp.Close(); err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreWriteFailure, "close temp file", autoerr.FieldPath(tmpName))
	}

	written, err := os.ReadFile(tmpName)
	if err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreWriteFailure, "read temp file for validation", autoerr.FieldPath(tmpName))
	}
	if !json.Valid(written) {
		return autoerr.New(autoerr.CodeStoreWriteFailure, "json validation failed", autoerr.FieldPath(tmpName))
	}

	if err := os.Rename(tmpName, path); err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreWriteFailure, "atomic rename", autoerr.FieldPath(path))
	}
	return nil
}

// readJSON decodes path into v. A missing file yields a not_found error and
// undecodable content a corrupt error.
func readJSON(path string, v any) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return autoerr.Wrap(err, autoerr.CodeStoreNotFound, "state file not found", autoerr.FieldPath(path))
		}
		return autoerr.Wrap(err, autoerr.CodeStoreReadFailure, "read state file", autoerr.FieldPath(path))
	}
	if err := json.Unmarshal(content, v); err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreCorrupt, "decode state file", autoerr.FieldPath(path))
	}
	return nil
}
