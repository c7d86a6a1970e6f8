// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/richardlaurits/butti-journey/internal/autonomy"
	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

func newAuthorizeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Ask the gate whether an action may run",
		Long: `Run the kill switch, circuit breaker, duplicate, and cooldown checks for an
action without running anything. Exits 0 when the action is authorized and 1
when it is blocked, so scripts can write:

  autonomy authorize --action send_email --integration gmail --target bob && send_mail`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := requestFromFlags(cmd)
			if err != nil {
				return err
			}
			rt, err := a.wire(cmd)
			if err != nil {
				return err
			}
			defer rt.Close() //nolint:errcheck

			decision := rt.Coordinator.Gate.Authorize(cmd.Context(), req)
			asJSON, _ := cmd.Flags().GetBool("json")
			if err := writeDecision(cmd.OutOrStdout(), decision, asJSON); err != nil {
				return err
			}
			return blockedError(decision)
		},
	}
	addRequestFlags(cmd)
	cmd.Flags().Bool("json", false, "print the decision as JSON")
	return cmd
}

// addRequestFlags declares the flags that describe a gate request.
func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().String("action", "", "action id, e.g. send_email (required)")
	cmd.Flags().String("type", string(store.ActionSideEffect), "action type: side_effect, recovery, or other")
	cmd.Flags().String("integration", "", "integration the action touches (required)")
	cmd.Flags().String("target", "", "action target, e.g. a recipient")
	cmd.Flags().String("check-id", "", "health check id; enables the duplicate remediation check")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("integration")
}

func requestFromFlags(cmd *cobra.Command) (autonomy.Request, error) {
	var req autonomy.Request
	req.ActionID, _ = cmd.Flags().GetString("action")
	req.Integration, _ = cmd.Flags().GetString("integration")
	req.Target, _ = cmd.Flags().GetString("target")
	req.CheckID, _ = cmd.Flags().GetString("check-id")

	typ, _ := cmd.Flags().GetString("type")
	switch t := store.ActionType(typ); t {
	case store.ActionSideEffect, store.ActionRecovery, store.ActionOther:
		req.ActionType = t
	default:
		return req, autoerr.Errorf(autoerr.CodeCLIInputInvalid, "--type must be one of [side_effect, recovery, other], got %q", typ)
	}
	if req.ActionID == "" || req.Integration == "" {
		return req, autoerr.New(autoerr.CodeCLIInputInvalid, "--action and --integration must not be empty")
	}
	return req, nil
}

func writeDecision(w io.Writer, d autonomy.Decision, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}
	if d.Allowed {
		_, err := fmt.Fprintf(w, "AUTHORIZED: %s\n", d.Reason)
		return err
	}
	_, err := fmt.Fprintf(w, "BLOCKED: %s\n", d.Reason)
	return err
}

// blockedError turns a refusal into the exit-status error main recognises.
func blockedError(d autonomy.Decision) error {
	if d.Allowed {
		return nil
	}
	return autoerr.New(autoerr.CodeCLIBlocked, d.Reason, autoerr.Field("gate_code", string(d.Code)))
}
