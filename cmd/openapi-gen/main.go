// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/richardlaurits/butti-journey/internal/dashboard"
	"github.com/richardlaurits/butti-journey/internal/server"
	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
	"github.com/richardlaurits/butti-journey/pkg/health"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec registers every route against no-op services and returns
// the OpenAPI document huma derives from the handler types.
func generateSpec() ([]byte, error) {
	svc, err := server.NewServices(dashboard.Source{}, stubBreakers{}, stubMarkers{}, stubStatus{})
	if err != nil {
		return nil, autoerr.Errorf(autoerr.CodeCLISetupFailure, "creating services: %w", err)
	}

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, autoerr.Errorf(autoerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	srv.RegisterServices(svc)

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// No-op service stubs for spec generation. Methods are never called.

type stubBreakers struct{}

func (stubBreakers) Metrics(context.Context) ([]health.Metrics, error) { return nil, nil }

type stubMarkers struct{}

func (stubMarkers) Recent(context.Context, int) ([]*store.ActionMarker, error) { return nil, nil }

type stubStatus struct{}

func (stubStatus) Load(context.Context) (*store.StatusSnapshot, error) { return nil, nil }
