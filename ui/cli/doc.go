// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

// Package cli implements the haystacked command line.
//
// Commands:
//   - fetch: run exactly one fetch, decrypt and store cycle
//   - keys: list loaded tags and skipped key files
//   - history: print the stored path of one bike
//   - maintain: engine-specific database housekeeping
//   - version: build information
//
// Scheduling is left to cron, systemd timers or similar; fetch refuses to
// start while another cycle holds the lock file.
package cli
