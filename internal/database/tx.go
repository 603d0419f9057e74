package database

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strconv"
	"time"
)

const defaultBackoff = 50 * time.Millisecond

type TxOptions struct {
	IsolationLevel sql.IsolationLevel
	ReadOnly       bool
	// MaxRetries is the number of re-runs WithRetry allows after the first attempt.
	MaxRetries int
	// Backoff is the first pause between attempts; it doubles after each retry.
	Backoff time.Duration
	// OnRetry, when set, is called before each pause with the 1-based attempt that failed.
	OnRetry func(attempt int, err error)
	// LockTimeout bounds how long a statement waits for a row lock. Zero waits forever.
	LockTimeout time.Duration
}

func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		MaxRetries:     3,
		Backoff:        defaultBackoff,
	}
}

// WithTransaction runs fn in one transaction, committing on nil and rolling back otherwise.
func WithTransaction(ctx context.Context, db *sql.DB, opts TxOptions, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{
		Isolation: opts.IsolationLevel,
		ReadOnly:  opts.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if opts.LockTimeout > 0 {
		ms := strconv.FormatInt(opts.LockTimeout.Milliseconds(), 10) + "ms"
		if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// WithRetry runs fn in a fresh transaction until it commits, fails with a permanent
// error, or opts.MaxRetries retries are used up. Deadlocks, serialization failures,
// lock timeouts and generated-number collisions are retried. fn must be safe to run
// more than once.
func WithRetry(ctx context.Context, db *sql.DB, opts TxOptions, fn func(*sql.Tx) error) error {
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := WithTransaction(ctx, db, opts, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt >= opts.MaxRetries {
			if IsLockNotAvailable(err) {
				return fmt.Errorf("max retries (%d) exceeded: %w: %w", opts.MaxRetries, ErrLockTimeout, err)
			}
			return fmt.Errorf("max retries (%d) exceeded: %w", opts.MaxRetries, err)
		}

		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, err)
		}
		if err := sleepBackoff(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
}

func sleepBackoff(ctx context.Context, backoff time.Duration) error {
	jitter := time.Duration(rand.Int63n(int64(backoff/4) + 1))

	timer := time.NewTimer(backoff + jitter)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
