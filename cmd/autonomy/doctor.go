// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/richardlaurits/butti-journey/internal/autonomy"
	"github.com/richardlaurits/butti-journey/internal/config"
	"github.com/richardlaurits/butti-journey/internal/store"
	"github.com/richardlaurits/butti-journey/internal/watchdog"
)

const doctorProbeTimeout = 10 * time.Second

// doctorHTTPClient is replaced in tests.
var doctorHTTPClient = &http.Client{Timeout: 2 * time.Second}

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check configuration, state directory, storage, kill switch, rules, environment probes, the HTTP API, and disk space.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDoctor(cmd)
		},
	}
}

type doctorCheck struct {
	name string
	fn   func() string
}

func (a *app) runDoctor(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()

	cfg, err := a.loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(w, "%-20s %s\n", "Config:", "invalid")
		return err
	}

	checks := []doctorCheck{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(a.v.ConfigFileUsed()) }},
		{"Data Dir", func() string { return checkDataDir(cfg.DataDir) }},
		{"Storage", func() string { return checkStorage(cmd.Context(), cfg) }},
		{"Kill Switch", func() string { return checkKillSwitch(cfg.KillSwitch.Path) }},
		{"Rules", func() string { return checkRules(cfg.Watchdog.RulesFile) }},
		{"Subordinates", func() string { return checkSubordinates(cfg.Watchdog.SubordinatesDir) }},
	}
	for _, p := range cfg.Watchdog.Probes {
		checks = append(checks, doctorCheck{"Probe " + p.Name, func() string { return a.checkProbe(cmd.Context(), p) }})
	}
	checks = append(checks,
		doctorCheck{"API", func() string { return checkAPI(cfg.Server.Listen) }},
		doctorCheck{"Disk Space", func() string { return checkDiskSpace(cfg.DataDir) }},
	)

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}
	return nil
}

func checkBinary() string {
	return fmt.Sprintf("autonomy %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(used string) string {
	if used != "" {
		return fmt.Sprintf("loaded from %s", used)
	}
	return "using defaults (no config file found)"
}

func checkDataDir(dir string) string {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Sprintf("%s does not exist yet (created on first use)", dir)
	}
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	if !info.IsDir() {
		return fmt.Sprintf("%s is not a directory", dir)
	}
	if err := checkWritable(dir); err != nil {
		return fmt.Sprintf("%s is not writable", dir)
	}
	return fmt.Sprintf("%s (writable)", dir)
}

func checkStorage(ctx context.Context, cfg *config.Config) string {
	st, err := store.Open(store.StorageConfig{
		Backend:               cfg.Storage.Backend,
		RecoveryLogMaxEntries: cfg.Watchdog.RecoveryLogMaxEntries,
	}, cfg.DataDir)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	defer st.Close() //nolint:errcheck

	table, err := st.Breakers().List(ctx)
	if err != nil {
		return fmt.Sprintf("%s backend, breaker table unreadable: %s", cfg.Storage.Backend, err)
	}
	markers, err := st.Markers().List(ctx)
	if err != nil {
		return fmt.Sprintf("%s backend, markers unreadable: %s", cfg.Storage.Backend, err)
	}
	return fmt.Sprintf("%s backend, %d breaker(s), %d marker(s)", cfg.Storage.Backend, len(table), len(markers))
}

func checkKillSwitch(path string) string {
	if autonomy.NewKillSwitch(path).Engaged() {
		return fmt.Sprintf("ON (%s): all autonomous actions disabled", path)
	}
	return fmt.Sprintf("OFF (%s)", path)
}

func checkRules(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Sprintf("no rules file at %s", path)
	}
	rules, err := watchdog.LoadRules(path)
	if err != nil {
		return fmt.Sprintf("invalid: %s", err)
	}
	return fmt.Sprintf("%d check(s) in %s", len(rules.Checks), path)
}

func checkSubordinates(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("no subordinates directory at %s", dir)
		}
		return fmt.Sprintf("error reading subordinates: %s", err)
	}

	count := 0
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			count++
		}
	}
	return fmt.Sprintf("%d agent dir(s) in %s", count, dir)
}

func (a *app) checkProbe(ctx context.Context, p config.ProbeSpec) string {
	ctx, cancel := context.WithTimeout(ctx, doctorProbeTimeout)
	defer cancel()

	res, err := a.runner.Run(ctx, "", p.Command)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	out := strings.TrimSpace(res.Stdout)
	switch {
	case res.ExitCode != 0:
		return fmt.Sprintf("failed (exit %d)", res.ExitCode)
	case p.Contains != "" && !strings.Contains(out, p.Contains):
		return fmt.Sprintf("failed (output lacks %q)", p.Contains)
	}
	if first, _, _ := strings.Cut(out, "\n"); first != "" {
		return "ok: " + first
	}
	return "ok"
}

func checkAPI(addr string) string {
	resp, err := doctorHTTPClient.Get("http://" + addr + "/health")
	if err != nil {
		return fmt.Sprintf("not running at %s (run 'autonomy serve')", addr)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("unhealthy at %s: HTTP %d", addr, resp.StatusCode)
	}
	return fmt.Sprintf("ok at %s", addr)
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to home directory if data dir doesn't exist yet.
		path, _ = os.UserHomeDir()
	}

	availBytes, err := diskAvailable(path)
	if err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
