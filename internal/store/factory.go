// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package store

import (
	"sort"
	"sync"

	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

// Factory opens a Store rooted at dataDir.
type Factory func(dataDir string, cfg StorageConfig) (Store, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveBackend returns the effective backend name, defaulting to "file".
func resolveBackend(cfg StorageConfig) string {
	if cfg.Backend == "" {
		return "file"
	}
	return cfg.Backend
}

// Open creates the state store for dataDir using the configured backend.
func Open(cfg StorageConfig, dataDir string) (Store, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, autoerr.Errorf(autoerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	return factory(dataDir, cfg)
}
