// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/richardlaurits/butti-journey/internal/config"
	"github.com/richardlaurits/butti-journey/internal/recovery"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

// app carries what every subcommand shares. Tests swap the runner.
type app struct {
	v      *viper.Viper
	runner recovery.Runner
}

// NewRootCmd creates the root autonomy command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{v: viper.New(), runner: recovery.ExecRunner{}})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "autonomy",
		Short:         "Autonomy: safety gate and watchdog for autonomous agents",
		Long:          "autonomy authorizes side-effecting actions, runs them with breaker and cooldown bookkeeping, and keeps subordinate agents and jobs healthy.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initViper(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to state directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newAuthorizeCmd(a),
		newExecCmd(a),
		newKillSwitchCmd(a),
		newBreakerCmd(a),
		newMarkersCmd(a),
		newWatchdogCmd(a),
		newDashboardCmd(a),
		newServeCmd(a),
		newDoctorCmd(a),
		newVersionCmd(),
	)

	return root
}

// initViper applies defaults, env bindings, flag bindings, and the config
// file so the precedence flag > env > file > defaults holds everywhere.
func (a *app) initViper(cmd *cobra.Command) error {
	v := a.v

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return autoerr.Errorf(autoerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is left unset so viper does not try the bare name,
		// which would match the autonomy binary in the working directory.
		v.SetConfigName("autonomy")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/autonomy")
		v.AddConfigPath("/etc/autonomy")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return autoerr.Errorf(autoerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return autoerr.Errorf(autoerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	if err := v.BindPFlag("data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return autoerr.Errorf(autoerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return autoerr.Errorf(autoerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	if used := v.ConfigFileUsed(); used != "" {
		config.WarnInsecurePermissions(used)
	}
	slog.Debug("configuration loaded", "file", v.ConfigFileUsed())
	return nil
}
