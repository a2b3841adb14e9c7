// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for hayStacked.
//
// Usage:
//
//	go run . fetch [flags]
//	./haystacked history --bike WPI100
//
// See --help for all commands.
package main

import (
	"os"

	"github.com/gearsfleet/haystacked/internal/logging"
	"github.com/gearsfleet/haystacked/ui/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		logging.Errorf("haystacked: %v", err)
		os.Exit(1)
	}
}
