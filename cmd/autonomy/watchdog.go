// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/richardlaurits/butti-journey/internal/store"
	"github.com/richardlaurits/butti-journey/internal/watchdog"
)

func newWatchdogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Run one health sweep with Tier-1 auto-recovery",
		Long: `Collect subordinate, job, and environment health, evaluate the health-check
rules, run Tier-1 recovery for triggered checks, and save the snapshot.
Health data younger than watchdog.cache_ttl_minutes is reused unless --force
is given. Intended to run from cron.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			force, _ := cmd.Flags().GetBool("force")

			rt, err := a.wire(cmd)
			if err != nil {
				return err
			}
			defer rt.Close() //nolint:errcheck

			report, sweepErr := rt.Watchdog().Sweep(cmd.Context(), watchdog.SweepOptions{Force: force})

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report.Snapshot); err != nil {
					return err
				}
			} else if err := report.WriteSummary(out); err != nil {
				return err
			}
			return sweepErr
		},
	}
	cmd.Flags().Bool("force", false, "ignore cached health data")
	cmd.Flags().Bool("json", false, "print the snapshot as JSON")

	cmd.AddCommand(newWatchdogHistoryCmd(a), newWatchdogRulesCmd(a))
	return cmd
}

func newWatchdogHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded recovery attempts, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := store.RecoveryFilter{}
			filter.ActionID, _ = cmd.Flags().GetString("action")
			filter.Limit, _ = cmd.Flags().GetInt("limit")
			if failed, _ := cmd.Flags().GetBool("failed"); failed {
				filter.Result = store.RecoveryFailed
			}

			rt, err := a.wire(cmd)
			if err != nil {
				return err
			}
			defer rt.Close() //nolint:errcheck

			entries, err := rt.Engine().History(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			if len(entries) == 0 {
				_, err := fmt.Fprintln(out, "No recovery attempts recorded.")
				return err
			}
			for _, e := range entries {
				line := fmt.Sprintf("%s  %-8s %s (check %s)", e.Timestamp.Local().Format("2006-01-02 15:04"), e.Result, e.ActionID, e.CheckID)
				if e.Result == store.RecoveryFailed && e.Stderr != "" {
					line += ": " + e.Stderr
				}
				if _, err := fmt.Fprintln(out, line); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().String("action", "", "only this recovery action")
	cmd.Flags().Bool("failed", false, "only failed attempts")
	cmd.Flags().IntP("limit", "n", 50, "show at most this many of the newest entries (0 = all)")
	cmd.Flags().Bool("json", false, "print entries as JSON")
	return cmd
}

func newWatchdogRulesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Validate the health-check rules file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			rules, err := watchdog.LoadRules(cfg.Watchdog.RulesFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "%s: %d checks\n", cfg.Watchdog.RulesFile, len(rules.Checks)); err != nil {
				return err
			}
			for _, r := range rules.Checks {
				if _, err := fmt.Fprintf(out, "  %-32s %-8s %s %s %v (%d actions)\n",
					r.ID, r.EffectiveSeverity(), r.Condition.Field, r.Condition.Op, r.Condition.Value, len(r.RecoveryActions)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
