// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions logs a warning when path is writable by group or
// others. Anyone who can write the config or the kill-switch file can
// re-enable autonomous actions. Startup is not failed.
func WarnInsecurePermissions(path string) {
	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat file for permission check", "path", path, "error", err)
		return
	}

	mode := info.Mode()
	perm := mode.Perm()

	const groupWrite fs.FileMode = 0o020
	const otherWrite fs.FileMode = 0o002

	if perm&(groupWrite|otherWrite) != 0 {
		slog.Warn(
			"file has insecure permissions: other users can change autonomy settings",
			"path", path,
			"mode", mode,
			"recommended", "0600",
		)
	}
}
