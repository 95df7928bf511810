package runlog

import (
	"context"
	"errors"
	"strings"
	"time"
)

// SQLITE_BUSY primary result code; extended codes carry it in the low byte.
const sqliteBusyCode = 5

var busyBackoff = []time.Duration{
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	80 * time.Millisecond,
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs op, retrying with backoff while SQLite reports the ledger
// busy. Two launchers for different projects may share one state directory.
func retryOnBusy(ctx context.Context, op func() error) error {
	err := op()
	for _, delay := range busyBackoff {
		if !isSQLiteBusy(err) {
			return err
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		err = op()
	}
	return err
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
