// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"

	"github.com/gearsfleet/haystacked/internal/db"
	"github.com/gearsfleet/haystacked/internal/model"
)

// seedRows writes three WPI100 positions at base-59m, base-30m and base+2h,
// plus one position of another bike.
func seedRows(s *db.Store, base int64) error {
	return s.UpsertLocations(context.Background(), []model.LocationRow{
		{BikeID: "WPI100", Timestamp: base - 3600 + 60, Latitude: 42.0, Longitude: -71.0},
		{BikeID: "WPI100", Timestamp: base - 1800, Latitude: 42.01, Longitude: -71.0},
		{BikeID: "WPI100", Timestamp: base + 2*3600, Latitude: 42.02, Longitude: -71.0},
		{BikeID: "WPI101", Timestamp: base, Latitude: 1, Longitude: 1},
	})
}
