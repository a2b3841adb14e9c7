// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads hayStacked settings from defaults, haystacked.yaml,
// HAYSTACKED_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "haystacked"

// Config is the full settings tree.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Keys        KeysConfig        `mapstructure:"keys" yaml:"keys"`
	Window      WindowConfig      `mapstructure:"window" yaml:"window"`
	Anisette    AnisetteConfig    `mapstructure:"anisette" yaml:"anisette"`
	Gateway     GatewayConfig     `mapstructure:"gateway" yaml:"gateway"`
	Fetch       FetchConfig       `mapstructure:"fetch" yaml:"fetch"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Lock        LockConfig        `mapstructure:"lock" yaml:"lock"`
	History     HistoryConfig     `mapstructure:"history" yaml:"history"`
	Language    string            `mapstructure:"language" yaml:"language"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

type DatabaseConfig struct {
	Type string `mapstructure:"type" yaml:"type"`
	Dsn  string `mapstructure:"dsn" yaml:"dsn"`
}

type CredentialsConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	// Identity is an age identity file for *.age credential files.
	Identity string `mapstructure:"identity" yaml:"identity"`
}

type KeysConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

type WindowConfig struct {
	Hours int `mapstructure:"hours" yaml:"hours"`
}

type AnisetteConfig struct {
	Binary       string        `mapstructure:"binary" yaml:"binary"`
	Dir          string        `mapstructure:"dir" yaml:"dir"`
	URL          string        `mapstructure:"url" yaml:"url"`
	ResetPath    string        `mapstructure:"reset_path" yaml:"reset_path"`
	ReadyTimeout time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
}

type GatewayConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type FetchConfig struct {
	MaxAuthRetries int           `mapstructure:"max_auth_retries" yaml:"max_auth_retries"`
	RetryInterval  time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
}

type MetricsConfig struct {
	PushURL string `mapstructure:"push_url" yaml:"push_url"`
	Job     string `mapstructure:"job" yaml:"job"`
}

type LockConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type HistoryConfig struct {
	// EndPadSeconds is added to the end bound of history queries.
	EndPadSeconds int64 `mapstructure:"end_pad_seconds" yaml:"end_pad_seconds"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Defaults returns the built-in value of every key.
func Defaults() map[string]any {
	return map[string]any{
		"database.type":           "sqlite",
		"database.dsn":            "haystacked.db",
		"credentials.path":        "auth.json",
		"credentials.identity":    "",
		"keys.dir":                filepath.Join("hayStacked", "keys"),
		"window.hours":            24,
		"anisette.binary":         "anisette-v3-server",
		"anisette.dir":            "",
		"anisette.url":            "http://127.0.0.1:6969",
		"anisette.reset_path":     "",
		"anisette.ready_timeout":  "30s",
		"gateway.url":             "https://gateway.icloud.com/acsnservice/fetch",
		"gateway.timeout":         "60s",
		"fetch.max_auth_retries":  3,
		"fetch.retry_interval":    "2s",
		"metrics.push_url":        "",
		"metrics.job":             "haystacked",
		"lock.path":               "",
		"history.end_pad_seconds": 18900,
		"language":                "en",
		"log.level":               "info",
	}
}

// FlagKeys maps command-line flag names onto config keys. Flags not listed
// bind under their own name.
var FlagKeys = map[string]string{
	"db-type":     "database.type",
	"dsn":         "database.dsn",
	"credentials": "credentials.path",
	"identity":    "credentials.identity",
	"keys":        "keys.dir",
	"hours":       "window.hours",
	"lang":        "language",
	"log-level":   "log.level",
	"push-url":    "metrics.push_url",
}

// GetConfigPath returns the user or system haystacked.yaml location.
func GetConfigPath(system bool) (string, error) {
	var dir string
	if system {
		switch runtime.GOOS {
		case "windows":
			dir = filepath.Join(os.Getenv("ProgramData"), "hayStacked")
		default:
			dir = "/etc/haystacked"
		}
	} else {
		userDir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		dir = filepath.Join(userDir, "haystacked")
	}
	return filepath.Join(dir, "haystacked.yaml"), nil
}

// LoadConfig resolves T from defaults, the first haystacked.yaml found (or
// explicitPath when set), the environment and the flags of cmd.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, explicitPath *string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("haystacked")
	v.SetConfigType("yaml")
	if explicitPath != nil && *explicitPath != "" {
		v.SetConfigFile(*explicitPath)
	}
	if p, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(p))
	}
	if p, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(p))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return c, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		var bindErr error
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			key, ok := FlagKeys[f.Name]
			if !ok {
				key = f.Name
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return c, bindErr
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

// WriteConfigFile stores c as YAML at the user or system location.
func WriteConfigFile[T any](c *T, system bool) (string, error) {
	path, err := GetConfigPath(system)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("could not create config directory %s: %w", filepath.Dir(path), err)
	}
	// 0600: the file may point at credential material.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
