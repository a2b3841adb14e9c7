// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/gearsfleet/haystacked/internal/model"
)

const locationTable = "location"

// LocationModel is the Bun mapping of the location table.
type LocationModel struct {
	bun.BaseModel `bun:"table:location"`
	BikeID        string  `bun:"bike_id,pk"`
	Timestamp     int64   `bun:"timestamp,pk"`
	Latitude      float64 `bun:"latitude"`
	Longitude     float64 `bun:"longitude"`
}

func locationModelToModel(m LocationModel) model.LocationRow {
	return model.LocationRow{BikeID: m.BikeID, Timestamp: m.Timestamp, Latitude: m.Latitude, Longitude: m.Longitude}
}

// Store is a Bun-backed location store.
type Store struct {
	bun    *bun.DB
	dbType string
}

// Type returns the engine name the store was opened with.
func (s *Store) Type() string { return s.dbType }

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.bun.Close() }

// UpsertLocations writes rows in one transaction, replacing any existing row
// with the same (bike_id, timestamp). An empty batch does nothing.
func (s *Store) UpsertLocations(ctx context.Context, rows []model.LocationRow) error {
	if len(rows) == 0 {
		return nil
	}
	models := dedupeLocations(rows)

	tx, err := s.bun.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := tx.NewInsert().Model(&models)
	switch tx.Dialect().Name() {
	case dialect.PG:
		q = q.On("CONFLICT (bike_id, timestamp) DO UPDATE").
			Set("latitude = EXCLUDED.latitude").
			Set("longitude = EXCLUDED.longitude")
	default:
		// sqlite and mysql both understand REPLACE INTO.
		q = q.Replace()
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("upsert %d locations: %w", len(models), MapDBError(err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	dbLogf("db: upserted %d locations", len(models))
	return nil
}

type locationKey struct {
	bike string
	ts   int64
}

// dedupeLocations collapses rows sharing (bike_id, timestamp) to the last one
// in input order. Postgres rejects ON CONFLICT DO UPDATE when a key repeats
// within one statement.
func dedupeLocations(rows []model.LocationRow) []LocationModel {
	models := make([]LocationModel, 0, len(rows))
	seen := make(map[locationKey]int, len(rows))
	for _, r := range rows {
		m := LocationModel{BikeID: r.BikeID, Timestamp: r.Timestamp, Latitude: r.Latitude, Longitude: r.Longitude}
		k := locationKey{r.BikeID, r.Timestamp}
		if i, ok := seen[k]; ok {
			models[i] = m
			continue
		}
		seen[k] = len(models)
		models = append(models, m)
	}
	return models
}

// LocationHistory returns a bike's rows with start <= timestamp <= end,
// oldest first.
func (s *Store) LocationHistory(ctx context.Context, bikeID string, start, end int64) ([]model.LocationRow, error) {
	var ms []LocationModel
	err := s.bun.NewSelect().Model(&ms).
		Where("? = ?", bun.Ident("bike_id"), bikeID).
		Where("? >= ?", bun.Ident("timestamp"), start).
		Where("? <= ?", bun.Ident("timestamp"), end).
		OrderExpr("? ASC", bun.Ident("timestamp")).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", bikeID, err)
	}
	out := make([]model.LocationRow, 0, len(ms))
	for _, m := range ms {
		out = append(out, locationModelToModel(m))
	}
	return out, nil
}

// BikeIDs lists every bike with at least one stored location.
func (s *Store) BikeIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := QueryRawInto(ctx, s.bun, &ids, "SELECT DISTINCT bike_id FROM location ORDER BY bike_id"); err != nil {
		return nil, fmt.Errorf("list bikes: %w", err)
	}
	return ids, nil
}
