// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/richardlaurits/butti-journey/internal/dashboard"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

func newBreakerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breaker",
		Short: "Inspect per-integration circuit breakers",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show every recorded breaker as stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.wire(cmd)
			if err != nil {
				return err
			}
			defer rt.Close() //nolint:errcheck

			metrics, err := rt.Coordinator.Breakers.Metrics(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(metrics)
			}
			if len(metrics) == 0 {
				_, err := fmt.Fprintln(out, "No integrations recorded.")
				return err
			}
			now := time.Now()
			for _, m := range metrics {
				if _, err := fmt.Fprintf(out, "%-24s %-40s failures: %d\n", m.Integration, dashboard.BreakerLabel(m, now), m.FailureCount); err != nil {
					return err
				}
			}
			return nil
		},
	}
	list.Flags().Bool("json", false, "print metrics as JSON")

	check := &cobra.Command{
		Use:   "check INTEGRATION",
		Short: "Check one integration, recovering it if its down period has passed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.wire(cmd)
			if err != nil {
				return err
			}
			defer rt.Close() //nolint:errcheck

			ok, label := rt.Coordinator.Breakers.Check(cmd.Context(), args[0])
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], label); err != nil {
				return err
			}
			if !ok {
				return autoerr.New(autoerr.CodeCLIBlocked, label, autoerr.FieldIntegration(args[0]))
			}
			return nil
		},
	}

	cmd.AddCommand(list, check)
	return cmd
}
