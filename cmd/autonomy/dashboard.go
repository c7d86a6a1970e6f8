// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package main

import (
	"encoding/json"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/richardlaurits/butti-journey/internal/dashboard"
)

func newDashboardCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the kill switch, breakers, recent and blocked actions, and watchdog status",
		Long:  "Render a read-only view of the autonomy state. Nothing is written, not even lazy breaker recovery.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.wire(cmd)
			if err != nil {
				return err
			}
			defer rt.Close() //nolint:errcheck

			src := rt.DashboardSource()
			out := cmd.OutOrStdout()

			if watch, _ := cmd.Flags().GetBool("watch"); watch {
				refresh := time.Duration(rt.Config.Dashboard.RefreshSeconds) * time.Second
				p := tea.NewProgram(dashboard.NewModel(src.Build, refresh),
					tea.WithContext(cmd.Context()),
					tea.WithInput(cmd.InOrStdin()),
					tea.WithOutput(out),
				)
				_, err := p.Run()
				return err
			}

			data := src.Build(cmd.Context())
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(data)
			}
			_, err = fmt.Fprint(out, dashboard.Render(data))
			return err
		},
	}
	cmd.Flags().Bool("json", false, "print the projection as JSON")
	cmd.Flags().BoolP("watch", "w", false, "keep refreshing in an interactive view")
	return cmd
}
