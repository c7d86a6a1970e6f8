// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package main

import (
	"fmt"
	"os"

	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		// Refusals were already reported on stdout.
		if !autoerr.HasCode(err, autoerr.CodeCLIBlocked) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
