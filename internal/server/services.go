// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package server

import (
	"context"

	"github.com/richardlaurits/butti-journey/internal/dashboard"
	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
	"github.com/richardlaurits/butti-journey/pkg/health"
)

// DashboardService builds the full dashboard projection.
// dashboard.Source satisfies it.
type DashboardService interface {
	Build(ctx context.Context) *dashboard.Data
}

// BreakerService reports circuit-breaker metrics.
// *autonomy.Breakers satisfies it.
type BreakerService interface {
	Metrics(ctx context.Context) ([]health.Metrics, error)
}

// MarkerService lists recent action markers, newest first.
// *autonomy.Ledger satisfies it.
type MarkerService interface {
	Recent(ctx context.Context, n int) ([]*store.ActionMarker, error)
}

// StatusService loads the last watchdog snapshot.
// store.SnapshotStore satisfies it.
type StatusService interface {
	Load(ctx context.Context) (*store.StatusSnapshot, error)
}

// Services holds dependencies injected into route handlers.
// Each field is an interface so subsystems can be mocked in tests.
type Services struct {
	dashboard DashboardService
	breakers  BreakerService
	markers   MarkerService
	status    StatusService
}

// NewServices creates a Services instance. Every service is required.
func NewServices(dash DashboardService, breakers BreakerService, markers MarkerService, status StatusService) (*Services, error) {
	if dash == nil {
		return nil, autoerr.New(autoerr.CodeServerConfigInvalid, "dashboard service is required")
	}
	if breakers == nil {
		return nil, autoerr.New(autoerr.CodeServerConfigInvalid, "breaker service is required")
	}
	if markers == nil {
		return nil, autoerr.New(autoerr.CodeServerConfigInvalid, "marker service is required")
	}
	if status == nil {
		return nil, autoerr.New(autoerr.CodeServerConfigInvalid, "status service is required")
	}
	return &Services{dashboard: dash, breakers: breakers, markers: markers, status: status}, nil
}
