// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/richardlaurits/butti-journey/internal/autonomy"
	"github.com/richardlaurits/butti-journey/internal/recovery"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

func newExecCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec --action ID --integration NAME [flags] -- command [args...]",
		Short: "Run a command through the gate",
		Long: `Authorize the action, run the command if allowed, and record the outcome:
a success clears the integration's breaker and writes the cooldown marker, a
failure counts toward the breaker. A non-zero exit status is a failure and the
command's trimmed stdout becomes the result.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requestFromFlags(cmd)
			if err != nil {
				return err
			}
			timeout, _ := cmd.Flags().GetDuration("timeout")
			dir, _ := cmd.Flags().GetString("dir")

			rt, err := a.wire(cmd)
			if err != nil {
				return err
			}
			defer rt.Close() //nolint:errcheck

			out := rt.Coordinator.Executor.Execute(cmd.Context(), req, commandWork(a.runner, dir, args, timeout))
			asJSON, _ := cmd.Flags().GetBool("json")
			if err := writeOutcome(cmd.OutOrStdout(), req, out, asJSON); err != nil {
				return err
			}
			switch {
			case !out.Decision.Allowed:
				return blockedError(out.Decision)
			case !out.Success:
				return autoerr.Errorf(autoerr.CodeExecutorWorkFailure, "%s failed: %v", req.ActionID, out.Evidence["error"])
			}
			return nil
		},
	}
	addRequestFlags(cmd)
	cmd.Flags().Duration("timeout", 0, "kill the command after this long (0 = no limit)")
	cmd.Flags().String("dir", "", "working directory for the command")
	cmd.Flags().Bool("json", false, "print the outcome as JSON")
	return cmd
}

// commandWork adapts an argv to the executor's unit of work.
func commandWork(runner recovery.Runner, dir string, argv []string, timeout time.Duration) autonomy.WorkFunc {
	return func(ctx context.Context) (any, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		res, err := runner.Run(ctx, dir, argv)
		if err != nil {
			return nil, autoerr.Wrapf(err, autoerr.CodeExecutorWorkFailure, "running %s", argv[0])
		}
		if res.ExitCode != 0 {
			msg := strings.TrimSpace(res.Stderr)
			if msg == "" {
				msg = "no stderr"
			}
			return nil, autoerr.Errorf(autoerr.CodeExecutorWorkFailure, "%s exited with status %d: %s", argv[0], res.ExitCode, msg)
		}
		return strings.TrimSpace(res.Stdout), nil
	}
}

func writeOutcome(w io.Writer, req autonomy.Request, out autonomy.Outcome, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	var err error
	switch {
	case !out.Decision.Allowed:
		_, err = fmt.Fprintf(w, "BLOCKED: %s - %s\n", req.ActionID, out.Decision.Reason)
	case out.Success:
		_, err = fmt.Fprintf(w, "SUCCESS: %s\n", req.ActionID)
		if err == nil && out.Result != "" {
			_, err = fmt.Fprintln(w, out.Result)
		}
	default:
		_, err = fmt.Fprintf(w, "FAILED: %s - %v\n", req.ActionID, out.Evidence["error"])
	}
	return err
}
