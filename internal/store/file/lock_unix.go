// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

//go:build !windows

package file

import (
	"os"

	"golang.org/x/sys/unix"
)

// tryLock takes a non-blocking exclusive flock. busy reports that another
// holder has it or the call was interrupted, so the caller should retry.
func tryLock(f *os.File) (busy bool, err error) {
	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return false, nil
	}
	return err == unix.EWOULDBLOCK || err == unix.EINTR, err
}

func unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
