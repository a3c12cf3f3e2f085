// Package shared provides common utilities used across the codebase.
package shared

import (
	"context"
	"strings"
	"time"
)

// IsSQLiteConflict reports whether err is a SQLite concurrency error
// (SQLITE_BUSY or "database is locked"). Both forms appear when the runner
// and the answer server contend for the same file; they warrant a retry,
// not a failure.
func IsSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// RetryOnConflict runs fn, retrying up to attempts times with the given
// delay while fn keeps failing with a SQLite conflict. Any other error, or
// context cancellation, stops the retries immediately.
func RetryOnConflict(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); !IsSQLiteConflict(err) {
			return err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
