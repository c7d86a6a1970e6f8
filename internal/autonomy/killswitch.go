// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package autonomy

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

const killSwitchOn = "ON"

// KillSwitch is the operator's global stop. The flag file is re-read on
// every call; nothing is cached.
type KillSwitch struct {
	path string
	opts options
}

// NewKillSwitch returns a kill switch backed by the file at path.
func NewKillSwitch(path string, opts ...Option) *KillSwitch {
	return &KillSwitch{path: path, opts: newOptions(opts)}
}

// Path returns the flag file location.
func (k *KillSwitch) Path() string { return k.path }

// Engaged reports whether autonomy is globally disabled. Only a file whose
// trimmed content is "ON" (any case) engages the switch; a missing or
// unreadable file never does.
func (k *KillSwitch) Engaged() bool {
	content, err := os.ReadFile(k.path)
	if err != nil {
		if !os.IsNotExist(err) {
			k.opts.logger.Error("kill switch unreadable, treating as off", "path", k.path, "error", err)
		}
		return false
	}
	return strings.EqualFold(strings.TrimSpace(string(content)), killSwitchOn)
}

// Set writes the flag file. Off writes "OFF" rather than removing the file
// so the location stays discoverable.
func (k *KillSwitch) Set(ctx context.Context, on bool) error {
	value := "OFF"
	if on {
		value = killSwitchOn
	}

	if err := os.MkdirAll(filepath.Dir(k.path), 0o755); err != nil {
		return autoerr.Wrap(err, autoerr.CodeKillSwitchWriteFailure, "creating kill switch dir", autoerr.FieldPath(k.path))
	}
	if err := os.WriteFile(k.path, []byte(value+"\n"), 0o644); err != nil {
		return autoerr.Wrap(err, autoerr.CodeKillSwitchWriteFailure, "writing kill switch", autoerr.FieldPath(k.path))
	}

	k.opts.emit(ctx, slog.LevelWarn, EventWarn, "kill switch set", "state", value, "path", k.path)
	return nil
}
