// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package file

import (
	"context"
	"os"
	"time"

	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

const lockPollInterval = 20 * time.Millisecond

// fileLock is an advisory exclusive lock on a sidecar file, shared across
// processes through flock(2), or LockFileEx on Windows.
type fileLock struct {
	path string
	file *os.File
}

func newFileLock(path string) *fileLock {
	return &fileLock{path: path}
}

// Lock blocks until the lock is held or ctx is done.
func (fl *fileLock) Lock(ctx context.Context) error {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreLockFailure, "open lock file", autoerr.FieldPath(fl.path))
	}

	for {
		busy, err := tryLock(f)
		if err == nil {
			fl.file = f
			return nil
		}
		if !busy {
			_ = f.Close()
			return autoerr.Wrap(err, autoerr.CodeStoreLockFailure, "acquire lock", autoerr.FieldPath(fl.path))
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return autoerr.Wrap(ctx.Err(), autoerr.CodeStoreLockFailure, "waiting for lock", autoerr.FieldPath(fl.path))
		case <-time.After(lockPollInterval):
		}
	}
}

// Unlock releases the lock. The sidecar file is left in place so that
// concurrent waiters keep locking the same inode.
func (fl *fileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}

	err := unlock(fl.file)
	closeErr := fl.file.Close()
	fl.file = nil

	if err != nil {
		return autoerr.Wrap(err, autoerr.CodeStoreLockFailure, "release lock", autoerr.FieldPath(fl.path))
	}
	if closeErr != nil {
		return autoerr.Wrap(closeErr, autoerr.CodeStoreLockFailure, "close lock file", autoerr.FieldPath(fl.path))
	}
	return nil
}

// withLock runs fn while holding the lock for path.
func withLock(ctx context.Context, path string, fn func() error) (err error) {
	lk := newFileLock(path + ".lock")
	if err := lk.Lock(ctx); err != nil {
		return err
	}
	defer func() {
		if unlockErr := lk.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}()
	return fn()
}
