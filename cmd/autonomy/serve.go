// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/richardlaurits/butti-journey/internal/server"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP API",
		Long:  "Expose the dashboard, breakers, markers, and the last watchdog snapshot over HTTP. No route changes state.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.wire(cmd)
			if err != nil {
				return err
			}
			defer rt.Close() //nolint:errcheck

			srv, err := newAPIServer(rt)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt.Logger.Info("serving autonomy API", "listen", rt.Config.Server.Listen)
			return srv.Start(ctx)
		},
	}
	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = a.v.BindPFlag("server.listen", cmd.Flags().Lookup("listen"))
	return cmd
}

// newAPIServer wires the HTTP API to the runtime's read-only services.
func newAPIServer(rt *Runtime) (*server.Server, error) {
	services, err := server.NewServices(
		rt.DashboardSource(),
		rt.Coordinator.Breakers,
		rt.Coordinator.Ledger,
		rt.Store.Snapshots(),
	)
	if err != nil {
		return nil, autoerr.Errorf(autoerr.CodeCLISetupFailure, "creating services: %w", err)
	}

	srv, err := server.New(server.Config{
		ListenAddr:  rt.Config.Server.Listen,
		CORSOrigins: rt.Config.Server.CORSOrigins,
	})
	if err != nil {
		return nil, autoerr.Errorf(autoerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	srv.RegisterServices(services)
	return srv, nil
}
