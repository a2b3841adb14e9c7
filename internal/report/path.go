// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package report

import (
	"math"

	"github.com/gearsfleet/haystacked/internal/model"
)

// PathLength sums the straight-line degree distance between consecutive
// rows, scaled by 60 and rounded to two decimals. Rows must already be in
// timestamp order.
func PathLength(rows []model.LocationRow) float64 {
	var sum float64
	for i := 1; i < len(rows); i++ {
		sum += math.Hypot(rows[i].Latitude-rows[i-1].Latitude, rows[i].Longitude-rows[i-1].Longitude)
	}
	return math.Round(sum*60*100) / 100
}
