package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	maxAttempts    = 5
	initialBackoff = 10 * time.Millisecond
	attemptTimeout = 5 * time.Second
)

// inTx runs fn inside a single transaction and commits it, retrying the
// whole attempt on lock conflicts with fibonacci backoff, bounded at
// maxAttempts. fn must be safe to re-run from scratch: every attempt
// re-reads its entity group, so a restarted attempt is evaluated against
// fresh state. Any error from fn rolls the transaction back; no partial
// mutation is ever committed.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	backoff := retry.WithMaxRetries(maxAttempts-1, retry.NewFibonacci(initialBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		defer cancel()

		err := runAttempt(attemptCtx, db, fn)
		if isLockConflict(err) || errors.Is(err, context.DeadlineExceeded) {
			return retry.RetryableError(err)
		}
		return err
	})
	if isLockConflict(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrBusy, err)
	}
	return err
}

func runAttempt(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// isLockConflict matches the busy/locked errors SQLite surfaces when a
// concurrent transaction holds the write lock past the busy timeout.
func isLockConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
