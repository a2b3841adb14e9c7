// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	cfg "github.com/gearsfleet/haystacked/internal/config"
)

func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("HOME", tmp)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return tmp
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolate(t)
	c, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Window.Hours != 24 || c.Fetch.MaxAuthRetries != 3 {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.Anisette.ReadyTimeout != 30*time.Second {
		t.Fatalf("expected duration default, got %s", c.Anisette.ReadyTimeout)
	}
	if c.History.EndPadSeconds != 18900 {
		t.Fatalf("expected end pad default 18900, got %d", c.History.EndPadSeconds)
	}
}

func TestLoadConfig_ExplicitFileEnvAndFlags(t *testing.T) {
	tmp := isolate(t)
	file := filepath.Join(tmp, "cfg.yaml")
	body := "database:\n  type: postgres\n  dsn: postgresql://user@/db\nwindow:\n  hours: 6\nlanguage: de\n"
	if err := os.WriteFile(file, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("HAYSTACKED_GATEWAY_TIMEOUT", "5s")

	cmd := &cobra.Command{}
	cmd.Flags().Int("hours", 24, "")
	if err := cmd.Flags().Set("hours", "12"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	c, err := cfg.LoadConfig[cfg.Config](cmd, cfg.Defaults(), &file)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Database.Type != "postgres" || c.Language != "de" {
		t.Fatalf("file values not applied: %+v", c)
	}
	if c.Gateway.Timeout != 5*time.Second {
		t.Fatalf("env override not applied, got %s", c.Gateway.Timeout)
	}
	if c.Window.Hours != 12 {
		t.Fatalf("flag should win over file, got %d", c.Window.Hours)
	}
}

func TestLoadConfig_UnsetFlagKeepsFileValue(t *testing.T) {
	tmp := isolate(t)
	file := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(file, []byte("keys:\n  dir: /srv/keys\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cmd := &cobra.Command{}
	cmd.Flags().String("keys", "", "")

	c, err := cfg.LoadConfig[cfg.Config](cmd, cfg.Defaults(), &file)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Keys.Dir != "/srv/keys" {
		t.Fatalf("expected file value, got %q", c.Keys.Dir)
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	tmp := isolate(t)
	file := filepath.Join(tmp, "bad.yaml")
	if err := os.WriteFile(file, []byte("database: [unclosed\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), &file); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestWriteConfigFile_CreatesFile(t *testing.T) {
	isolate(t)
	c := cfg.Config{Language: "en"}
	c.Database.Type = "sqlite"
	c.Database.Dsn = "haystacked.db"

	path, err := cfg.WriteConfigFile(&c, false)
	if err != nil {
		t.Fatalf("WriteConfigFile failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected config file at %s: %v", path, err)
	}
	if runtimeSupportsPerms() && info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
}
