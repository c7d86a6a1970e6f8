// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

//go:build windows

package main

import (
	"os"

	"golang.org/x/sys/windows"
)

// checkWritable creates and removes a scratch file; Windows ACLs are not
// reflected in mode bits.
func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".autonomy-doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func diskAvailable(path string) (uint64, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return 0, err
	}
	return free, nil
}
