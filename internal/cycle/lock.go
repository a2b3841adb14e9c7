// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package cycle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrCycleInProgress is returned when another process holds the cycle lock.
var ErrCycleInProgress = errors.New("another fetch cycle is in progress")

// DefaultLockPath is the lock file used when none is configured.
func DefaultLockPath() string {
	return filepath.Join(os.TempDir(), "haystacked.lock")
}

// WithLock runs fn while holding an exclusive lock on path. It fails fast
// with ErrCycleInProgress instead of waiting.
func WithLock(path string, fn func() error) error {
	if path == "" {
		path = DefaultLockPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire cycle lock %s: %w", path, err)
	}
	if !locked {
		return ErrCycleInProgress
	}
	defer func() { _ = fl.Unlock() }()
	return fn()
}
