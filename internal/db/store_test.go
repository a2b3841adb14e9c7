// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"testing"

	"github.com/gearsfleet/haystacked/internal/model"
)

func TestUpsertLocations_ReplacesOnConflict(t *testing.T) {
	WithTestStore(t, func(s *Store) {
		ctx := context.Background()
		first := []model.LocationRow{
			{BikeID: "WPI100", Timestamp: 10, Latitude: 1, Longitude: 2},
			{BikeID: "WPI100", Timestamp: 20, Latitude: 3, Longitude: 4},
		}
		if err := s.UpsertLocations(ctx, first); err != nil {
			t.Fatalf("UpsertLocations failed: %v", err)
		}
		second := []model.LocationRow{
			{BikeID: "WPI100", Timestamp: 20, Latitude: 5, Longitude: 6},
			{BikeID: "WPI101", Timestamp: 20, Latitude: 7, Longitude: 8},
		}
		if err := s.UpsertLocations(ctx, second); err != nil {
			t.Fatalf("second UpsertLocations failed: %v", err)
		}

		rows, err := s.LocationHistory(ctx, "WPI100", 0, 100)
		if err != nil {
			t.Fatalf("LocationHistory failed: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("expected 2 rows for WPI100, got %d", len(rows))
		}
		if rows[1].Latitude != 5 || rows[1].Longitude != 6 {
			t.Fatalf("expected replaced coordinates, got %+v", rows[1])
		}

		ids, err := s.BikeIDs(ctx)
		if err != nil {
			t.Fatalf("BikeIDs failed: %v", err)
		}
		if len(ids) != 2 || ids[0] != "WPI100" || ids[1] != "WPI101" {
			t.Fatalf("unexpected bike ids %v", ids)
		}
	})
}

func TestUpsertLocations_InBatchDuplicateKeepsLast(t *testing.T) {
	WithTestStore(t, func(s *Store) {
		ctx := context.Background()
		batch := []model.LocationRow{
			{BikeID: "A", Timestamp: 10, Latitude: 1, Longitude: 0},
			{BikeID: "A", Timestamp: 11, Latitude: 9, Longitude: 9},
			{BikeID: "A", Timestamp: 10, Latitude: 2, Longitude: 0},
		}
		if err := s.UpsertLocations(ctx, batch); err != nil {
			t.Fatalf("UpsertLocations failed: %v", err)
		}
		rows, err := s.LocationHistory(ctx, "A", 0, 100)
		if err != nil {
			t.Fatalf("LocationHistory failed: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("expected 2 rows, got %d: %+v", len(rows), rows)
		}
		if rows[0].Timestamp != 10 || rows[0].Latitude != 2 {
			t.Fatalf("expected last duplicate to win, got %+v", rows[0])
		}
	})
}

func TestDedupeLocations(t *testing.T) {
	got := dedupeLocations([]model.LocationRow{
		{BikeID: "A", Timestamp: 10, Latitude: 1},
		{BikeID: "B", Timestamp: 10, Latitude: 5},
		{BikeID: "A", Timestamp: 10, Latitude: 2},
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 models, got %d", len(got))
	}
	if got[0].BikeID != "A" || got[0].Latitude != 2 || got[1].BikeID != "B" {
		t.Fatalf("unexpected dedupe result %+v", got)
	}
}

func TestUpsertLocations_EmptyIsNoop(t *testing.T) {
	WithTestStore(t, func(s *Store) {
		if err := s.UpsertLocations(context.Background(), nil); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		ids, err := s.BikeIDs(context.Background())
		if err != nil || len(ids) != 0 {
			t.Fatalf("expected empty table, got %v, %v", ids, err)
		}
	})
}

func TestLocationHistory_BoundsAndOrder(t *testing.T) {
	WithTestStore(t, func(s *Store) {
		ctx := context.Background()
		rows := []model.LocationRow{
			{BikeID: "B", Timestamp: 30},
			{BikeID: "B", Timestamp: 10},
			{BikeID: "B", Timestamp: 20},
			{BikeID: "B", Timestamp: 40},
			{BikeID: "C", Timestamp: 20},
		}
		if err := s.UpsertLocations(ctx, rows); err != nil {
			t.Fatalf("UpsertLocations failed: %v", err)
		}
		got, err := s.LocationHistory(ctx, "B", 10, 30)
		if err != nil {
			t.Fatalf("LocationHistory failed: %v", err)
		}
		want := []int64{10, 20, 30}
		if len(got) != len(want) {
			t.Fatalf("expected %d rows, got %+v", len(want), got)
		}
		for i, r := range got {
			if r.Timestamp != want[i] || r.BikeID != "B" {
				t.Fatalf("row %d: unexpected %+v", i, r)
			}
		}
	})
}

func TestMaintain_SQLite(t *testing.T) {
	WithTestStore(t, func(s *Store) {
		if err := s.Maintain(context.Background()); err != nil {
			t.Fatalf("Maintain failed: %v", err)
		}
	})
}
