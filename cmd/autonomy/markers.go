// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/richardlaurits/butti-journey/internal/dashboard"
)

func newMarkersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "markers",
		Short: "List recent action markers, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			rt, err := a.wire(cmd)
			if err != nil {
				return err
			}
			defer rt.Close() //nolint:errcheck

			markers, err := rt.Coordinator.Ledger.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(markers)
			}
			if len(markers) == 0 {
				_, err := fmt.Fprintln(out, "No markers recorded.")
				return err
			}
			now := time.Now()
			for _, m := range markers {
				if _, err := fmt.Fprintf(out, "%s  %-32s %-12s %s\n",
					m.Timestamp.Local().Format("2006-01-02 15:04"), m.ActionID, m.ActionType, dashboard.Age(m.Timestamp, now)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "maximum markers to show (0 = all)")
	cmd.Flags().Bool("json", false, "print markers as JSON")
	return cmd
}
