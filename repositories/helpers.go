package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// SQLExecutor is satisfied by both *sql.DB and *sql.Tx.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ErrVersionConflict is returned when a row exists but its version moved on.
var ErrVersionConflict = errors.New("row version conflict")

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func checkAffectedRows(result sql.Result, notFoundError error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFoundError // Возвращаем переданную ошибку "не найдено"
	}
	return nil
}

// versionMiss tells apart a missing row from a stale version after a
// version-checked UPDATE touched nothing.
func versionMiss(ctx context.Context, exec SQLExecutor, table string, id int, notFound error) error {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := exec.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to probe %s %d: %w", table, id, err)
	}
	if !exists {
		return notFound
	}
	return ErrVersionConflict
}

// mapPQError translates constraint violations; anything else is returned as is.
func mapPQError(err error, foreignKey, unique error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23503": // foreign_key_violation
		if foreignKey != nil {
			return fmt.Errorf("%w: %s", foreignKey, pqErr.Constraint)
		}
	case "23505": // unique_violation
		if unique != nil {
			return fmt.Errorf("%w: %s", unique, pqErr.Constraint)
		}
	}
	return err
}

// int64s converts ids for pq.Array, which has no []int support.
func int64s(ids []int) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
