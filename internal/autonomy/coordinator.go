// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package autonomy

import "github.com/richardlaurits/butti-journey/internal/store"

// Coordinator wires the gate components over one state store.
type Coordinator struct {
	KillSwitch *KillSwitch
	Breakers   *Breakers
	Ledger     *Ledger
	Gate       *Gate
	Executor   *Executor
}

// NewCoordinator builds every component with the same options.
func NewCoordinator(st store.Store, killSwitchPath string, opts ...Option) *Coordinator {
	ks := NewKillSwitch(killSwitchPath, opts...)
	breakers := NewBreakers(st.Breakers(), opts...)
	ledger := NewLedger(st.Markers(), opts...)
	gate := NewGate(ks, breakers, ledger, opts...)
	return &Coordinator{
		KillSwitch: ks,
		Breakers:   breakers,
		Ledger:     ledger,
		Gate:       gate,
		Executor:   NewExecutor(gate, opts...),
	}
}
