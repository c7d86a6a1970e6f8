// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package recovery

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// CommandResult is the captured outcome of an external command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner runs an external command. Err is set only when the command could
// not be started or was killed; a non-zero exit is reported in ExitCode.
type Runner interface {
	Run(ctx context.Context, dir string, argv []string) (CommandResult, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, dir string, argv []string) (CommandResult, error)

func (f RunnerFunc) Run(ctx context.Context, dir string, argv []string) (CommandResult, error) {
	return f(ctx, dir, argv)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, argv []string) (CommandResult, error) {
	if len(argv) == 0 {
		return CommandResult{ExitCode: -1}, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		res.ExitCode = -1
		return res, ctx.Err()
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		res.ExitCode = -1
		return res, err
	}
}

// tail keeps the last n bytes of s, cut on a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := len(s) - n
	for cut < len(s) && !isRuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
