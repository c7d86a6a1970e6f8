// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/richardlaurits/butti-journey/internal/autonomy"
	"github.com/richardlaurits/butti-journey/internal/config"
	"github.com/richardlaurits/butti-journey/internal/dashboard"
	"github.com/richardlaurits/butti-journey/internal/recovery"
	"github.com/richardlaurits/butti-journey/internal/store"
	_ "github.com/richardlaurits/butti-journey/internal/store/file"   // register file backend
	_ "github.com/richardlaurits/butti-journey/internal/store/sqlite" // register sqlite backend
	"github.com/richardlaurits/butti-journey/internal/watchdog"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

// Runtime holds the wired subsystems for one command invocation.
type Runtime struct {
	Config      *config.Config
	Logger      *slog.Logger
	ActionLog   *autonomy.ActionLog
	Store       store.Store
	Coordinator *autonomy.Coordinator

	runner recovery.Runner
}

// loadConfig decodes and validates the configuration resolved by initViper.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.FromViper(a.v)
	if err != nil {
		return nil, autoerr.Wrap(err, autoerr.CodeCLISetupFailure, "loading config")
	}
	return cfg, nil
}

// wire opens the state store and the action log and builds the coordinator
// from the validated configuration.
func (a *app) wire(cmd *cobra.Command) (*Runtime, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Logging, a.v.GetBool("verbose"))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, autoerr.Errorf(autoerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}
	config.WarnInsecurePermissions(cfg.KillSwitch.Path)

	st, err := store.Open(store.StorageConfig{
		Backend:               cfg.Storage.Backend,
		RecoveryLogMaxEntries: cfg.Watchdog.RecoveryLogMaxEntries,
	}, cfg.DataDir)
	if err != nil {
		return nil, autoerr.Wrap(err, autoerr.CodeCLISetupFailure, "opening state store")
	}

	actionLog, err := autonomy.OpenActionLog(cfg.Logging.File)
	if err != nil {
		_ = st.Close()
		return nil, autoerr.Wrap(err, autoerr.CodeCLISetupFailure, "opening action log")
	}

	coord := autonomy.NewCoordinator(st, cfg.KillSwitch.Path,
		autonomy.WithLogger(logger),
		autonomy.WithActionLog(actionLog),
		autonomy.WithBreakerPolicy(cfg.Breaker.FailureThreshold, cfg.DownDuration()),
		autonomy.WithCooldowns(cfg.SideEffectCooldown(), cfg.RecoveryCooldown(), cfg.DuplicateWindow()),
		autonomy.WithEvidenceMaxChars(cfg.Executor.EvidenceMaxChars),
	)

	return &Runtime{
		Config:      cfg,
		Logger:      logger,
		ActionLog:   actionLog,
		Store:       st,
		Coordinator: coord,
		runner:      a.runner,
	}, nil
}

// Engine builds the Tier-1 recovery engine with the built-in handlers.
func (r *Runtime) Engine() *recovery.Engine {
	return recovery.NewEngine(r.Store.RecoveryLog(), recovery.DefaultRegistry(r.runner, nil),
		recovery.WithKillSwitch(r.Coordinator.KillSwitch),
		recovery.WithHandlerTimeout(time.Duration(r.Config.Watchdog.HandlerTimeoutSeconds)*time.Second),
		recovery.WithLogger(r.Logger),
		recovery.WithActionLog(r.ActionLog),
	)
}

// Watchdog builds a watchdog wired to the recovery engine.
func (r *Runtime) Watchdog() *watchdog.Watchdog {
	return watchdog.New(r.Config.Watchdog, r.Store.Snapshots(), r.Engine(),
		watchdog.WithRunner(r.runner),
		watchdog.WithLogger(r.Logger),
		watchdog.WithActionLog(r.ActionLog),
	)
}

// DashboardSource describes what the dashboard reads.
func (r *Runtime) DashboardSource() dashboard.Source {
	return dashboard.Source{
		KillSwitch:     r.Coordinator.KillSwitch,
		Store:          r.Store,
		ActionLogPath:  r.Config.Logging.File,
		RecentMarkers:  r.Config.Dashboard.RecentMarkers,
		BlockedActions: r.Config.Dashboard.BlockedActions,
	}
}

// Close releases the action log and the store.
func (r *Runtime) Close() error {
	return errors.Join(r.ActionLog.Close(), r.Store.Close())
}

func newLogger(w io.Writer, cfg config.LoggingConfig, verbose bool) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
