// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package store

// DefaultRecoveryLogMaxEntries bounds the recovery log when no limit is configured.
const DefaultRecoveryLogMaxEntries = 1000

// StorageConfig controls which backend the store factory uses.
type StorageConfig struct {
	Backend               string // "file" (default) or "sqlite".
	RecoveryLogMaxEntries int    // 0 uses DefaultRecoveryLogMaxEntries.
}

// MaxEntries returns the effective recovery log bound.
func (c StorageConfig) MaxEntries() int {
	if c.RecoveryLogMaxEntries <= 0 {
		return DefaultRecoveryLogMaxEntries
	}
	return c.RecoveryLogMaxEntries
}
