// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/richardlaurits/butti-journey/internal/autonomy"
)

func newKillSwitchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill-switch",
		Short: "Engage, release, or inspect the global kill switch",
		Long:  "While the kill switch is ON every autonomous action and every recovery is refused.",
	}

	set := func(on bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			rt, err := a.wire(cmd)
			if err != nil {
				return err
			}
			defer rt.Close() //nolint:errcheck

			ks := rt.Coordinator.KillSwitch
			if err := ks.Set(cmd.Context(), on); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Kill switch %s (%s)\n", onOff(ks.Engaged()), ks.Path())
			return err
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "on",
			Short: "Stop all autonomous actions",
			Args:  cobra.NoArgs,
			RunE:  set(true),
		},
		&cobra.Command{
			Use:   "off",
			Short: "Allow autonomous actions again",
			Args:  cobra.NoArgs,
			RunE:  set(false),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show whether the kill switch is engaged",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := a.loadConfig()
				if err != nil {
					return err
				}
				ks := autonomy.NewKillSwitch(cfg.KillSwitch.Path)
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Kill switch %s (%s)\n", onOff(ks.Engaged()), ks.Path())
				return err
			},
		},
	)
	return cmd
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
