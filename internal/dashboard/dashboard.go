// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

// Package dashboard builds a read-only view of the autonomy state: the kill
// switch, circuit breakers, recent action markers, recently blocked actions,
// and the last watchdog snapshot. Building a view never writes anything and
// never fails; unreadable sources are reported in Data.Problems.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/richardlaurits/butti-journey/internal/autonomy"
	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
	"github.com/richardlaurits/butti-journey/pkg/health"
)

// Defaults for Source limits left at zero.
const (
	DefaultRecentMarkers  = 10
	DefaultBlockedActions = 5
)

// KillSwitchStatus is the kill switch as seen at build time.
type KillSwitchStatus struct {
	Engaged bool   `json:"engaged"`
	Path    string `json:"path"`
}

// Data is one dashboard projection.
type Data struct {
	GeneratedAt    time.Time             `json:"generated_at"`
	KillSwitch     KillSwitchStatus      `json:"kill_switch"`
	Breakers       []health.Metrics      `json:"circuit_breakers"`
	RecentMarkers  []*store.ActionMarker `json:"recent_markers"`
	BlockedActions []autonomy.LogEntry   `json:"blocked_actions"`
	Watchdog       *store.StatusSnapshot `json:"watchdog,omitempty"`
	Problems       []string              `json:"problems,omitempty"`
}

// Source holds what a projection reads from.
type Source struct {
	KillSwitch     *autonomy.KillSwitch
	Store          store.Store
	ActionLogPath  string
	RecentMarkers  int
	BlockedActions int
	Now            func() time.Time
}

// Build reads every source once and returns the projection.
func (s Source) Build(ctx context.Context) *Data {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	d := &Data{
		GeneratedAt:    now,
		Breakers:       []health.Metrics{},
		RecentMarkers:  []*store.ActionMarker{},
		BlockedActions: []autonomy.LogEntry{},
	}

	if s.KillSwitch != nil {
		d.KillSwitch = KillSwitchStatus{Engaged: s.KillSwitch.Engaged(), Path: s.KillSwitch.Path()}
	}

	if s.Store != nil {
		s.readStore(ctx, d, now)
	}

	if s.ActionLogPath != "" {
		blocked, err := autonomy.TailEvents(s.ActionLogPath, autonomy.EventBlock, limit(s.BlockedActions, DefaultBlockedActions))
		if err != nil {
			d.problem("action log", err)
		} else {
			d.BlockedActions = blocked
		}
	}

	return d
}

func (s Source) readStore(ctx context.Context, d *Data, now time.Time) {
	if table, err := s.Store.Breakers().List(ctx); err != nil {
		d.problem("circuit breakers", err)
	} else {
		d.Breakers = autonomy.MetricsFromTable(table, now)
	}

	if markers, err := s.Store.Markers().List(ctx); err != nil {
		d.problem("markers", err)
	} else {
		if n := limit(s.RecentMarkers, DefaultRecentMarkers); len(markers) > n {
			markers = markers[:n]
		}
		d.RecentMarkers = markers
	}

	snap, err := s.Store.Snapshots().Load(ctx)
	switch {
	case err == nil:
		d.Watchdog = snap
	case !autoerr.IsNotFound(err):
		d.problem("watchdog status", err)
	}
}

func (d *Data) problem(source string, err error) {
	d.Problems = append(d.Problems, fmt.Sprintf("%s: %v", source, err))
}

func limit(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
