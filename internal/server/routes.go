// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/richardlaurits/butti-journey/internal/dashboard"
	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
	"github.com/richardlaurits/butti-journey/pkg/health"
)

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-dashboard",
		Method:      http.MethodGet,
		Path:        "/api/v1/dashboard",
		Summary:     "Full dashboard projection",
		Tags:        []string{"dashboard"},
	}, s.handleDashboard)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-breakers",
		Method:      http.MethodGet,
		Path:        "/api/v1/breakers",
		Summary:     "List circuit breakers",
		Tags:        []string{"breakers"},
	}, s.handleListBreakers)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-breaker",
		Method:      http.MethodGet,
		Path:        "/api/v1/breakers/{integration}",
		Summary:     "Get one circuit breaker",
		Tags:        []string{"breakers"},
	}, s.handleGetBreaker)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-markers",
		Method:      http.MethodGet,
		Path:        "/api/v1/markers",
		Summary:     "List recent action markers",
		Tags:        []string{"markers"},
	}, s.handleListMarkers)

	huma.Register(s.api, huma.Operation{
		OperationID: "watchdog-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/watchdog/status",
		Summary:     "Last watchdog snapshot",
		Tags:        []string{"watchdog"},
	}, s.handleWatchdogStatus)
}

// --- Request/Response types for huma ---

type dashboardOutput struct {
	Body *dashboard.Data
}

type listBreakersOutput struct {
	Body struct {
		Breakers []health.Metrics `json:"breakers"`
	}
}

type getBreakerInput struct {
	Integration string `path:"integration" minLength:"1"`
}
type getBreakerOutput struct {
	Body health.Metrics
}

type listMarkersInput struct {
	Limit int `query:"limit" default:"20" minimum:"1" maximum:"500" doc:"Maximum markers to return"`
}
type listMarkersOutput struct {
	Body struct {
		Markers []*store.ActionMarker `json:"markers"`
	}
}

type watchdogStatusOutput struct {
	Body *store.StatusSnapshot
}

// --- Handlers ---

func (s *Server) handleDashboard(ctx context.Context, _ *struct{}) (*dashboardOutput, error) {
	return &dashboardOutput{Body: s.services.dashboard.Build(ctx)}, nil
}

func (s *Server) handleListBreakers(ctx context.Context, _ *struct{}) (*listBreakersOutput, error) {
	metrics, err := s.services.breakers.Metrics(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing breakers", err)
	}
	out := &listBreakersOutput{}
	out.Body.Breakers = metrics
	if out.Body.Breakers == nil {
		out.Body.Breakers = []health.Metrics{}
	}
	return out, nil
}

func (s *Server) handleGetBreaker(ctx context.Context, input *getBreakerInput) (*getBreakerOutput, error) {
	metrics, err := s.services.breakers.Metrics(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing breakers", err)
	}
	for _, m := range metrics {
		if m.Integration == input.Integration {
			return &getBreakerOutput{Body: m}, nil
		}
	}
	return nil, huma.Error404NotFound("breaker not found: " + input.Integration)
}

func (s *Server) handleListMarkers(ctx context.Context, input *listMarkersInput) (*listMarkersOutput, error) {
	markers, err := s.services.markers.Recent(ctx, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing markers", err)
	}
	out := &listMarkersOutput{}
	out.Body.Markers = markers
	if out.Body.Markers == nil {
		out.Body.Markers = []*store.ActionMarker{}
	}
	return out, nil
}

func (s *Server) handleWatchdogStatus(ctx context.Context, _ *struct{}) (*watchdogStatusOutput, error) {
	snap, err := s.services.status.Load(ctx)
	if err != nil {
		return nil, statusError("loading watchdog status", err)
	}
	return &watchdogStatusOutput{Body: snap}, nil
}

// statusError maps an error code onto the matching huma status error.
func statusError(msg string, err error) huma.StatusError {
	switch autoerr.HTTPStatus(err) {
	case http.StatusNotFound:
		return huma.Error404NotFound(msg, err)
	case http.StatusBadRequest:
		return huma.Error400BadRequest(msg, err)
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}
