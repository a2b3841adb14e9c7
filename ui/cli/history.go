// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gearsfleet/haystacked/internal/db"
	"github.com/gearsfleet/haystacked/internal/i18n"
	"github.com/gearsfleet/haystacked/internal/report"
)

func newHistoryCmd() *cobra.Command {
	var bike, start, end string
	cmd := &cobra.Command{
		Use:   "history",
		Short: i18n.T("cli.history.short"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if bike == "" {
				return errors.New("--bike is required")
			}
			from, to, err := historyRange(start, end, appConfig.History.EndPadSeconds, time.Now())
			if err != nil {
				return err
			}

			store, err := db.Open(appConfig.Database.Type, appConfig.Database.Dsn)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rows, err := store.LocationHistory(cmd.Context(), bike, from, to)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				_, _ = fmt.Fprintln(out, i18n.T("history.empty", map[string]any{"Bike": bike}))
				return nil
			}
			for _, r := range rows {
				_, _ = fmt.Fprintf(out, "%s\t%.7f\t%.7f\n", time.Unix(r.Timestamp, 0).UTC().Format(time.RFC3339), r.Latitude, r.Longitude)
			}
			_, _ = fmt.Fprintln(out, i18n.T("history.summary", map[string]any{
				"Count": len(rows), "Length": fmt.Sprintf("%.2f", report.PathLength(rows)),
			}))
			return nil
		},
	}
	cmd.Flags().StringVar(&bike, "bike", "", "Bike id (tag name)")
	cmd.Flags().StringVar(&start, "start", "", "Start time, RFC 3339 (default: 24h before end)")
	cmd.Flags().StringVar(&end, "end", "", "End time, RFC 3339 (default: now)")
	addDatabaseFlags(cmd)
	return cmd
}

// historyRange parses the bounds and adds pad seconds to the end.
// TODO: the default pad of 18900s is 5h15m although it is meant as a 15
// minute ping allowance; confirm the intended value before changing it.
func historyRange(start, end string, padSeconds int64, now time.Time) (from, to int64, err error) {
	endT := now
	if end != "" {
		if endT, err = time.Parse(time.RFC3339, end); err != nil {
			return 0, 0, fmt.Errorf("invalid --end: %w", err)
		}
	}
	startT := endT.Add(-24 * time.Hour)
	if start != "" {
		if startT, err = time.Parse(time.RFC3339, start); err != nil {
			return 0, 0, fmt.Errorf("invalid --start: %w", err)
		}
	}
	if startT.After(endT) {
		return 0, 0, errors.New("--start is after --end")
	}
	return startT.Unix(), endT.Unix() + padSeconds, nil
}
