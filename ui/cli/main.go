// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/gearsfleet/haystacked/buildvars"
	"github.com/gearsfleet/haystacked/internal/config"
	"github.com/gearsfleet/haystacked/internal/db"
	"github.com/gearsfleet/haystacked/internal/i18n"
	"github.com/gearsfleet/haystacked/internal/logging"
)

var version = "dev"   // set by the linker
var gitCommit = "dev" // short commit SHA, set at build time
var buildDate = ""    // RFC3339, set at build time

var (
	cfgFile   string
	verbose   bool
	appConfig config.Config
)

func setupDefaultServices(cmd *cobra.Command, _ []string) error {
	path, err := getConfigPathFromCli(cmd)
	if err != nil {
		return err
	}

	appConfig, err = config.LoadConfig[config.Config](cmd, config.Defaults(), path)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logging.SetLevel(appConfig.Log.Level)
	if verbose {
		logging.SetDebug(true)
		db.SetDebug(true)
	}
	i18n.Init(appConfig.Language)
	return nil
}

func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	if !cmd.Flags().Changed("config") {
		return nil, nil
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("could not read --config flag: %w", err)
	}
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
	}
	return &path, nil
}

// Execute runs the CLI entrypoint.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds a fresh command tree; tests call it once per case.
func NewRootCmd() *cobra.Command {
	i18n.Init("en")
	cmd := &cobra.Command{
		Use:               "haystacked",
		Short:             i18n.T("cli.root.short"),
		SilenceUsage:      true,
		PersistentPreRunE: setupDefaultServices,
	}
	cmd.Version = compositeVersion(resolveBuildVersion(nil))

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging, including database statements")
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	cmd.PersistentFlags().String("lang", "en", `Output language ("en", "de")`)
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newFetchCmd(),
		newKeysCmd(),
		newHistoryCmd(),
		newMaintainCmd(),
		newVersionCmd(),
	)
	return cmd
}

func addDatabaseFlags(cmd *cobra.Command) {
	cmd.Flags().String("db-type", "sqlite", "Database type (sqlite, postgres, mysql)")
	cmd.Flags().String("dsn", "haystacked.db", "Database connection string (DSN)")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: i18n.T("cli.version.short"),
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	v, c, d := resolveBuildVersion(nil)
	_, _ = fmt.Fprintf(w, "version: %s\n", v)
	_, _ = fmt.Fprintf(w, "commit: %s\n", c)
	if d != "" {
		_, _ = fmt.Fprintf(w, "built: %s\n", d)
	}
}

func compositeVersion(v, c, d string) string {
	out := v
	if c != "" && c != "dev" {
		out += " (" + c + ")"
	}
	if d != "" {
		out += " built: " + d
	}
	return out
}

// resolveBuildVersion prefers link-time values, then module and VCS data
// from build info. A nil info reads the running binary.
func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	versionOut = buildvars.VersionOrDefault(version)
	commitOut = gitCommit
	dateOut = buildDate

	if info == nil {
		if local, ok := debug.ReadBuildInfo(); ok {
			info = local
		}
	}
	if info == nil {
		return versionOut, commitOut, dateOut
	}
	if versionOut == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		versionOut = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if commitOut == "dev" && s.Value != "" {
				commitOut = s.Value
				if len(commitOut) > 12 {
					commitOut = commitOut[:12]
				}
			}
		case "vcs.time":
			if dateOut == "" {
				dateOut = s.Value
			}
		}
	}
	return versionOut, commitOut, dateOut
}
