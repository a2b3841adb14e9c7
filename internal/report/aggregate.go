// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package report

import (
	"sort"

	"github.com/gearsfleet/haystacked/internal/model"
)

// Summary is the outcome of Aggregate.
type Summary struct {
	Reports []model.DecodedLocationReport
	Found   []string
	Missing []string
}

// Aggregate orders reports by timestamp and splits names into tags that
// reported and tags that did not. The input slice is not modified.
func Aggregate(decoded []model.DecodedLocationReport, names []string) Summary {
	sorted := make([]model.DecodedLocationReport, len(decoded))
	copy(sorted, decoded)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	seen := make(map[string]struct{}, len(sorted))
	for _, r := range sorted {
		seen[r.TagName] = struct{}{}
	}
	found := make([]string, 0, len(seen))
	for name := range seen {
		found = append(found, name)
	}
	sort.Strings(found)

	var missing []string
	for _, name := range names {
		if _, ok := seen[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)

	return Summary{Reports: sorted, Found: found, Missing: missing}
}

// Rows projects reports onto storage rows.
func (s Summary) Rows() []model.LocationRow {
	rows := make([]model.LocationRow, 0, len(s.Reports))
	for _, r := range s.Reports {
		rows = append(rows, model.RowFromReport(r))
	}
	return rows
}
