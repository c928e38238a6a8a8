package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Notifier receives post-hoc facts for an event room. brackets.Hub implements it.
type Notifier interface {
	Publish(tournamentID int, eventType string, payload interface{})
}

type nopNotifier struct{}

func (nopNotifier) Publish(int, string, interface{}) {}

// withTx runs fn inside one transaction: commit on nil, rollback on error or panic.
func withTx(ctx context.Context, db *sql.DB, logger *slog.Logger, fn func(tx *sql.Tx) error) (txErr error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if txErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("rollback failed", slog.Any("error", rbErr), slog.Any("cause", txErr))
				txErr = fmt.Errorf("transaction processing error: %w (rollback also failed: %v)", txErr, rbErr)
			}
		} else if cErr := tx.Commit(); cErr != nil {
			txErr = fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()
	txErr = fn(tx)
	return txErr
}

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func minutes(d int) time.Duration { return time.Duration(d) * time.Minute }
