// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gearsfleet/haystacked/internal/i18n"
	"github.com/gearsfleet/haystacked/internal/keystore"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: i18n.T("cli.keys.short"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := keystore.Load(appConfig.Keys.Dir)
			if err != nil {
				return err
			}
			defer ks.Zero()

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, i18n.T("keys.loaded", map[string]any{"Count": ks.Len(), "Dir": appConfig.Keys.Dir}))
			for _, id := range ks.IDs() {
				pair, _ := ks.Lookup(id)
				_, _ = fmt.Fprintf(out, "  %s\t%s\n", pair.Name, id)
			}
			for _, s := range ks.Skipped {
				_, _ = fmt.Fprintln(out, i18n.T("keys.skipped", map[string]any{"Path": s.Path, "Reason": s.Reason.Error()}))
			}
			return nil
		},
	}
	cmd.Flags().String("keys", "", "Directory of *.keys files")
	return cmd
}
