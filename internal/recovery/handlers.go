// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package recovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/richardlaurits/butti-journey/internal/config"
)

// Built-in handler names.
const (
	HandlerRunCommand       = "run_command"
	HandlerStripConfigLines = "strip_config_lines"
)

// DefaultRegistry returns a registry with the built-in handlers.
func DefaultRegistry(runner Runner, now func() time.Time) *Registry {
	if runner == nil {
		runner = ExecRunner{}
	}
	if now == nil {
		now = time.Now
	}
	r := NewRegistry()
	r.Register(HandlerRunCommand, &RunCommand{Runner: runner})
	r.Register(HandlerStripConfigLines, &StripConfigLines{Runner: runner, Now: now})
	return r
}

// RunCommand re-runs an idempotent job.
//
// Params:
//
//	command:       [argv...]   required
//	dir:           working directory
//	evidence_file: file the job touches on success; its mtime is reported
type RunCommand struct {
	Runner Runner
}

type runCommandParams struct {
	Command      []string `yaml:"command"`
	Dir          string   `yaml:"dir"`
	EvidenceFile string   `yaml:"evidence_file"`
}

func (h *RunCommand) Handle(ctx context.Context, inv Invocation) Result {
	var p runCommandParams
	if err := inv.Action.DecodeParams(&p); err != nil {
		return failed(err.Error(), nil)
	}
	if len(p.Command) == 0 {
		return failed("run_command: command parameter is required", nil)
	}
	dir := config.ExpandHome(p.Dir)
	argv := expandAll(p.Command)
	if script := argv[len(argv)-1]; len(argv) > 1 && looksLikePath(script) {
		if !filepath.IsAbs(script) {
			script = filepath.Join(dir, script)
		}
		if _, err := os.Stat(script); err != nil {
			return failed("Script not found: "+script, nil)
		}
	}

	res, err := h.Runner.Run(ctx, dir, argv)
	evidence := map[string]any{"exit_code": res.ExitCode}
	if p.EvidenceFile != "" {
		path := config.ExpandHome(p.EvidenceFile)
		info, statErr := os.Stat(path)
		evidence["evidence_file_exists"] = statErr == nil
		if statErr == nil {
			evidence["evidence_file_mtime"] = info.ModTime().UTC().Format(time.RFC3339)
		}
	}

	out := Result{
		Success:  err == nil && res.ExitCode == 0,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Evidence: evidence,
	}
	if err != nil {
		out.Stderr = strings.TrimSpace(res.Stderr + "\n" + err.Error())
	}
	return out
}

// StripConfigLines removes lines matching a pattern from a config file,
// after copying the original to a timestamped backup next to it.
//
// Params:
//
//	path:            file to repair                 required
//	pattern:         regexp matched per line        required
//	verify_command:  [argv...] run after the rewrite
//	verify_contains: substring the verify stdout must contain
type StripConfigLines struct {
	Runner Runner
	Now    func() time.Time
}

type stripParams struct {
	Path           string   `yaml:"path"`
	Pattern        string   `yaml:"pattern"`
	VerifyCommand  []string `yaml:"verify_command"`
	VerifyContains string   `yaml:"verify_contains"`
}

func (h *StripConfigLines) Handle(ctx context.Context, inv Invocation) Result {
	var p stripParams
	if err := inv.Action.DecodeParams(&p); err != nil {
		return failed(err.Error(), nil)
	}
	if p.Path == "" || p.Pattern == "" {
		return failed("strip_config_lines: path and pattern parameters are required", nil)
	}
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		return failed(fmt.Sprintf("strip_config_lines: bad pattern: %v", err), nil)
	}

	path := config.ExpandHome(p.Path)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Result{
			Success:  true,
			Stdout:   path + " does not exist, no fix needed",
			Evidence: map[string]any{"file_exists": false, "lines_removed": 0},
		}
	}
	if err != nil {
		return failed(err.Error(), nil)
	}

	original, err := os.ReadFile(path)
	if err != nil {
		return failed(err.Error(), nil)
	}

	kept, removed := stripLines(string(original), re)
	if removed == 0 {
		return Result{
			Success:  true,
			Stdout:   "No matching lines found in " + path,
			Evidence: map[string]any{"lines_removed": 0},
		}
	}

	backup := fmt.Sprintf("%s.backup-%s", path, h.Now().Format("20060102-150405"))
	if err := os.WriteFile(backup, original, info.Mode().Perm()); err != nil {
		return failed("creating backup: "+err.Error(), nil)
	}
	evidence := map[string]any{"backup_path": backup, "lines_removed": removed}

	if err := replaceFile(path, []byte(kept), info.Mode().Perm()); err != nil {
		return failed("rewriting file: "+err.Error(), evidence)
	}

	stdout := "Backup created: " + backup
	if len(p.VerifyCommand) == 0 {
		return Result{Success: true, Stdout: stdout, Evidence: evidence}
	}

	res, err := h.Runner.Run(ctx, filepath.Dir(path), expandAll(p.VerifyCommand))
	verify := strings.TrimSpace(res.Stdout)
	evidence["verify_output"] = verify
	ok := err == nil && res.ExitCode == 0 && strings.Contains(verify, p.VerifyContains)

	out := Result{Success: ok, Stdout: stdout + "\nVerify: " + verify, Stderr: res.Stderr, Evidence: evidence}
	if err != nil {
		out.Stderr = strings.TrimSpace(res.Stderr + "\n" + err.Error())
	}
	return out
}

// stripLines drops every line matching re and returns the remainder and
// the number of lines removed.
func stripLines(content string, re *regexp.Regexp) (string, int) {
	lines := strings.SplitAfter(content, "\n")
	var b strings.Builder
	removed := 0
	for _, line := range lines {
		if line == "" {
			continue
		}
		if re.MatchString(strings.TrimRight(line, "\r\n")) {
			removed++
			continue
		}
		b.WriteString(line)
	}
	return b.String(), removed
}

func replaceFile(path string, content []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".autonomy-fix-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func expandAll(argv []string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = config.ExpandHome(a)
	}
	return out
}

func looksLikePath(arg string) bool {
	return strings.Contains(arg, "/") && !strings.HasPrefix(arg, "-")
}
