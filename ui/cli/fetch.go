// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gearsfleet/haystacked/internal/anisette"
	"github.com/gearsfleet/haystacked/internal/config"
	"github.com/gearsfleet/haystacked/internal/credentials"
	"github.com/gearsfleet/haystacked/internal/cycle"
	"github.com/gearsfleet/haystacked/internal/db"
	"github.com/gearsfleet/haystacked/internal/fetch"
	"github.com/gearsfleet/haystacked/internal/i18n"
	"github.com/gearsfleet/haystacked/internal/keystore"
	"github.com/gearsfleet/haystacked/internal/logging"
	"github.com/gearsfleet/haystacked/internal/metrics"
)

// newProcess starts the header generator; tests replace it with a fake.
var newProcess = func(c config.Config) anisette.Process {
	return anisette.NewExecProcess(c.Anisette.Dir, c.Anisette.Binary)
}

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: i18n.T("cli.fetch.short"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runFetch(ctx, cmd, appConfig)
		},
	}
	cmd.Flags().String("credentials", "auth.json", "Credential file with dsid and searchPartyToken (.age files are decrypted)")
	cmd.Flags().String("identity", "", "age identity file for encrypted credentials")
	cmd.Flags().String("keys", "", "Directory of *.keys files")
	cmd.Flags().Int("hours", 24, "Lookback window in hours")
	cmd.Flags().String("push-url", "", "Prometheus Pushgateway URL")
	addDatabaseFlags(cmd)
	return cmd
}

func runFetch(ctx context.Context, cmd *cobra.Command, c config.Config) error {
	if c.Window.Hours <= 0 {
		return fmt.Errorf("--hours must be positive, got %d", c.Window.Hours)
	}
	creds, err := credentials.Load(c.Credentials.Path, c.Credentials.Identity)
	if err != nil {
		return err
	}

	return cycle.WithLock(c.Lock.Path, func() error {
		store, err := db.Open(c.Database.Type, c.Database.Dsn)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		rec := metrics.New()
		runner := &cycle.Runner{
			LoadKeys: func() (*keystore.KeyStore, error) { return keystore.Load(c.Keys.Dir) },
			NewSession: func() cycle.Session {
				return anisette.NewSession(
					newProcess(c),
					anisette.NewHTTPHeaderSource(c.Anisette.URL, c.Anisette.ResetPath),
					anisette.Options{ReadyTimeout: c.Anisette.ReadyTimeout},
				)
			},
			NewFetcher: func(h fetch.HeaderProvider) cycle.Fetcher {
				return fetch.New(creds, h, fetch.Options{
					URL:            c.Gateway.URL,
					Timeout:        c.Gateway.Timeout,
					MaxAuthRetries: c.Fetch.MaxAuthRetries,
					RetryInterval:  c.Fetch.RetryInterval,
				})
			},
			Sink:        store,
			Metrics:     rec,
			WindowHours: c.Window.Hours,
		}

		res, runErr := runner.Run(ctx)

		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rec.Push(pushCtx, c.Metrics.PushURL, c.Metrics.Job); err != nil {
			logging.Warnf("%v", err)
		}
		if runErr != nil {
			return runErr
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, i18n.T("fetch.summary", map[string]any{
			"ID": res.ID, "Received": res.Received, "Used": len(res.Reports),
			"Corrupt": res.Corrupt, "Resets": res.Resets,
		}))
		_, _ = fmt.Fprintln(out, i18n.T("fetch.found", map[string]any{"Tags": strings.Join(res.Found, ", ")}))
		_, _ = fmt.Fprintln(out, i18n.T("fetch.missing", map[string]any{"Tags": strings.Join(res.Missing, ", ")}))
		return nil
	})
}
