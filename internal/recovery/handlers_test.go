// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package recovery_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richardlaurits/butti-journey/internal/recovery"
	"github.com/richardlaurits/butti-journey/internal/store"
	"github.com/richardlaurits/butti-journey/internal/store/file"
)

type recordedRun struct {
	dir  string
	argv []string
}

func fakeRunner(res recovery.CommandResult, err error, calls *[]recordedRun) recovery.Runner {
	return recovery.RunnerFunc(func(_ context.Context, dir string, argv []string) (recovery.CommandResult, error) {
		*calls = append(*calls, recordedRun{dir: dir, argv: argv})
		return res, err
	})
}

var fixedNow = func() time.Time { return time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC) }

func TestActionDef_Defaults(t *testing.T) {
	a := recovery.ActionDef{ID: "x", Tier: 1, Handler: "run_command"}
	assert.Equal(t, 6*time.Hour, a.Cooldown())
	assert.Equal(t, 6*time.Hour, a.AttemptWindow())
	assert.Equal(t, 2, a.Attempts())
	assert.NoError(t, a.Validate())

	bad := recovery.ActionDef{}
	assert.Error(t, bad.Validate())
}

func TestRunCommand_Success(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "greet.py")
	evidence := filepath.Join(dir, "greeting_log.json")
	require.NoError(t, os.WriteFile(script, []byte("print('hi')"), 0o644))
	require.NoError(t, os.WriteFile(evidence, []byte("[]"), 0o644))

	var calls []recordedRun
	h := &recovery.RunCommand{Runner: fakeRunner(recovery.CommandResult{Stdout: "sent"}, nil, &calls)}
	res := h.Handle(context.Background(), recovery.Invocation{Action: recovery.ActionDef{
		ID: "retrigger",
		Params: map[string]any{
			"command":       []any{"python3", "greet.py"},
			"dir":           dir,
			"evidence_file": evidence,
		},
	}})

	require.True(t, res.Success)
	assert.Equal(t, "sent", res.Stdout)
	require.Len(t, calls, 1)
	assert.Equal(t, dir, calls[0].dir)
	assert.Equal(t, []string{"python3", "greet.py"}, calls[0].argv)
	assert.Equal(t, true, res.Evidence["evidence_file_exists"])
	assert.NotEmpty(t, res.Evidence["evidence_file_mtime"])
}

func TestRunCommand_Failures(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]any
		res     recovery.CommandResult
		err     error
		wantErr string
	}{
		{name: "missing command", params: map[string]any{}, wantErr: "command parameter is required"},
		{name: "missing script", params: map[string]any{"command": []any{"python3", "/nonexistent/x.py"}}, wantErr: "Script not found"},
		{name: "non-zero exit", params: map[string]any{"command": []any{"true"}}, res: recovery.CommandResult{ExitCode: 2, Stderr: "bad"}, wantErr: "bad"},
		{name: "start failure", params: map[string]any{"command": []any{"nope"}}, res: recovery.CommandResult{ExitCode: -1}, err: errors.New("executable not found"), wantErr: "executable not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []recordedRun
			h := &recovery.RunCommand{Runner: fakeRunner(tt.res, tt.err, &calls)}
			res := h.Handle(context.Background(), recovery.Invocation{Action: recovery.ActionDef{ID: "x", Params: tt.params}})
			assert.False(t, res.Success)
			assert.Contains(t, res.Stderr, tt.wantErr)
		})
	}
}

func TestStripConfigLines_BacksUpAndRewrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".npmrc")
	original := "registry=https://registry.npmjs.org/\nprefix=/usr/local\nglobalconfig=/etc/npmrc\ncolor=true\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o600))

	var calls []recordedRun
	h := &recovery.StripConfigLines{
		Runner: fakeRunner(recovery.CommandResult{Stdout: "/home/me/.nvm/versions/node/v20\n"}, nil, &calls),
		Now:    fixedNow,
	}
	res := h.Handle(context.Background(), recovery.Invocation{Action: recovery.ActionDef{
		ID: "fix_npmrc_prefix",
		Params: map[string]any{
			"path":            path,
			"pattern":         "^(prefix|globalconfig)=",
			"verify_command":  []any{"npm", "config", "get", "prefix"},
			"verify_contains": ".nvm",
		},
	}})

	require.True(t, res.Success, res.Stderr)
	backup := path + ".backup-20260301-140509"
	assert.Equal(t, backup, res.Evidence["backup_path"])
	assert.Equal(t, 2, res.Evidence["lines_removed"])
	assert.Equal(t, "/home/me/.nvm/versions/node/v20", res.Evidence["verify_output"])

	saved, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, original, string(saved), "original is recoverable from the backup")

	fixed, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "registry=https://registry.npmjs.org/\ncolor=true\n", string(fixed))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStripConfigLines_NothingToDo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".npmrc")
	require.NoError(t, os.WriteFile(path, []byte("color=true\n"), 0o644))

	h := &recovery.StripConfigLines{Now: fixedNow}
	res := h.Handle(context.Background(), recovery.Invocation{Action: recovery.ActionDef{
		Params: map[string]any{"path": path, "pattern": "^prefix="},
	}})
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Evidence["lines_removed"])

	matches, err := filepath.Glob(path + ".backup-*")
	require.NoError(t, err)
	assert.Empty(t, matches, "no write, no backup")

	missing := h.Handle(context.Background(), recovery.Invocation{Action: recovery.ActionDef{
		Params: map[string]any{"path": filepath.Join(dir, "absent"), "pattern": "^prefix="},
	}})
	assert.True(t, missing.Success)
	assert.Equal(t, false, missing.Evidence["file_exists"])
}

func TestStripConfigLines_VerifyFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".npmrc")
	require.NoError(t, os.WriteFile(path, []byte("prefix=/usr\n"), 0o644))

	var calls []recordedRun
	h := &recovery.StripConfigLines{
		Runner: fakeRunner(recovery.CommandResult{Stdout: "/usr/local"}, nil, &calls),
		Now:    fixedNow,
	}
	res := h.Handle(context.Background(), recovery.Invocation{Action: recovery.ActionDef{
		Params: map[string]any{
			"path":            path,
			"pattern":         "^prefix=",
			"verify_command":  []any{"npm", "config", "get", "prefix"},
			"verify_contains": ".nvm",
		},
	}})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Evidence["backup_path"])
	assert.Equal(t, dir, calls[0].dir)
}

func TestStripConfigLines_ThroughEngine(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "app.conf")
	require.NoError(t, os.WriteFile(path, []byte("keep=1\nprefix=/bad\n"), 0o644))

	st, err := file.New(t.TempDir(), store.StorageConfig{})
	require.NoError(t, err)
	var calls []recordedRun
	engine := recovery.NewEngine(st.RecoveryLog(), recovery.DefaultRegistry(fakeRunner(recovery.CommandResult{}, nil, &calls), fixedNow),
		recovery.WithNow(fixedNow))

	res, err := engine.Attempt(ctx, "config_conflict", recovery.ActionDef{
		ID:      "fix_conf_prefix",
		Tier:    1,
		Handler: recovery.HandlerStripConfigLines,
		Params:  map[string]any{"path": path, "pattern": "^prefix="},
	}, store.NewStatusSnapshot())
	require.NoError(t, err)
	require.True(t, res.Success)

	entries, err := st.RecoveryLog().Query(ctx, store.RecoveryFilter{ActionID: "fix_conf_prefix"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.RecoverySuccess, entries[0].Result)
	backup, ok := entries[0].Evidence["backup_path"].(string)
	require.True(t, ok)

	saved, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "keep=1\nprefix=/bad\n", string(saved))
}
