// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

// Package db persists decoded tag positions.
//
// A Store wraps a long-lived *bun.DB for one of three engines (sqlite,
// postgres, mysql). Schema changes ship as embedded SQL files under
// migrations/<engine>/ and are applied by Open, tracked in the
// schema_migrations table.
//
// Writes go through UpsertLocations, which replaces existing rows keyed by
// (bike_id, timestamp) inside a single transaction. Reads for the history
// command go through LocationHistory.
//
// Testing notes
//   - Use WithTestStore in package tests; it opens a named in-memory sqlite
//     database with migrations applied.
package db
