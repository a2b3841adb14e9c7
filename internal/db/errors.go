// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
	// ErrUnsupportedEngine is returned for database types other than
	// sqlite, postgres and mysql.
	ErrUnsupportedEngine = errors.New("unsupported database type")
)

// MapDBError maps driver constraint failures onto ErrDuplicate by message,
// which keeps driver packages out of error handling.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	le := strings.ToLower(err.Error())
	// MySQL 1062, Postgres 23505, SQLite "UNIQUE constraint failed"
	for _, marker := range []string{"duplicate", "unique", "23505", "1062"} {
		if strings.Contains(le, marker) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
	}
	return err
}
