// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/richardlaurits/butti-journey/internal/recovery"
)

// harness runs the CLI against an isolated home, config, and state dir.
type harness struct {
	dir     string
	state   string
	cfgPath string

	mu       sync.Mutex
	commands map[string]recovery.CommandResult
	ran      []string
}

func newHarness(t *testing.T, extraYAML string) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	h := &harness{
		dir:      dir,
		state:    filepath.Join(dir, "state"),
		cfgPath:  filepath.Join(dir, "autonomy.yaml"),
		commands: map[string]recovery.CommandResult{},
	}
	// extraYAML continues the watchdog section or adds top-level keys.
	cfg := fmt.Sprintf(`data_dir: %s
server:
  listen: 127.0.0.1:1
watchdog:
  cache_ttl_minutes: 0
%s`, h.state, extraYAML)
	require.NoError(t, os.WriteFile(h.cfgPath, []byte(cfg), 0o600))
	return h
}

// on scripts the result of a command line.
func (h *harness) on(argv string, res recovery.CommandResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands[argv] = res
}

func (h *harness) Run(_ context.Context, _ string, argv []string) (recovery.CommandResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := strings.Join(argv, " ")
	h.ran = append(h.ran, key)
	res, ok := h.commands[key]
	if !ok {
		return recovery.CommandResult{ExitCode: 127, Stderr: "command not found: " + key}, nil
	}
	return res, nil
}

func (h *harness) ranCommands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ran...)
}

// exec runs one CLI invocation and returns stdout.
func (h *harness) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(&app{v: viper.New(), runner: h})
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(append([]string{"--config", h.cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func (h *harness) path(rel ...string) string {
	return filepath.Join(append([]string{h.dir}, rel...)...)
}

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}
