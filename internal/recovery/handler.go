// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package recovery

import (
	"context"
	"sort"
	"sync"

	"github.com/richardlaurits/butti-journey/internal/store"
	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

// Invocation is what a handler receives.
type Invocation struct {
	CheckID  string
	Action   ActionDef
	Snapshot *store.StatusSnapshot
}

// Result is what a handler reports back.
type Result struct {
	Success  bool           `json:"success"`
	Stdout   string         `json:"stdout"`
	Stderr   string         `json:"stderr"`
	Evidence map[string]any `json:"evidence"`
}

// Handler performs one narrow, reversible fix.
type Handler interface {
	Handle(ctx context.Context, inv Invocation) Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, inv Invocation) Result

func (f HandlerFunc) Handle(ctx context.Context, inv Invocation) Result { return f(ctx, inv) }

// Registry maps handler names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register adds or replaces a handler.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Lookup returns the handler for name.
func (r *Registry) Lookup(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		return nil, autoerr.New(autoerr.CodeRecoveryHandlerNotFound, "unknown recovery handler",
			autoerr.Field("handler", name))
	}
	return h, nil
}

// Names returns the registered handler names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func failed(stderr string, evidence map[string]any) Result {
	if evidence == nil {
		evidence = map[string]any{}
	}
	return Result{Success: false, Stderr: stderr, Evidence: evidence}
}
