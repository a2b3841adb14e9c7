// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gearsfleet/haystacked/internal/db"
	"github.com/gearsfleet/haystacked/internal/i18n"
)

func newMaintainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: i18n.T("cli.maintain.short"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := db.Open(appConfig.Database.Type, appConfig.Database.Dsn)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := store.Maintain(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), i18n.T("maintain.done", map[string]any{"Type": store.Type()}))
			return nil
		},
	}
	addDatabaseFlags(cmd)
	return cmd
}
