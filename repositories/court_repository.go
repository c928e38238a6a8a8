package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/padel-system/models"
	"github.com/lib/pq"
)

var ErrCourtNotFound = errors.New("court not found")

type CourtRepository interface {
	ListActive(ctx context.Context, exec SQLExecutor, organizationID int) ([]models.Court, error)
	// LockCourts takes row locks on the courts in id order. It must run inside a transaction.
	LockCourts(ctx context.Context, exec SQLExecutor, courtIDs []int) error
	// ListBlocks returns blocks of the organization overlapping [from, to),
	// organization-wide blocks included.
	ListBlocks(ctx context.Context, exec SQLExecutor, organizationID int, from, to time.Time) ([]models.CourtBlock, error)
	ListBookings(ctx context.Context, exec SQLExecutor, courtIDs []int, from, to time.Time) ([]models.CourtBooking, error)
}

type postgresCourtRepository struct {
	db *sql.DB
}

func NewPostgresCourtRepository(db *sql.DB) CourtRepository {
	return &postgresCourtRepository{db: db}
}

func (r *postgresCourtRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresCourtRepository) ListActive(ctx context.Context, exec SQLExecutor, organizationID int) ([]models.Court, error) {
	query := `
		SELECT id, organization_id, name, display_order, active
		FROM courts
		WHERE organization_id = $1 AND active = TRUE
		ORDER BY display_order, id`
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	courts := make([]models.Court, 0)
	for rows.Next() {
		var c models.Court
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.DisplayOrder, &c.Active); err != nil {
			return nil, err
		}
		courts = append(courts, c)
	}
	return courts, rows.Err()
}

func (r *postgresCourtRepository) LockCourts(ctx context.Context, exec SQLExecutor, courtIDs []int) error {
	if len(courtIDs) == 0 {
		return nil
	}
	query := `SELECT id FROM courts WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, pq.Array(int64s(courtIDs)))
	if err != nil {
		return fmt.Errorf("failed to lock courts: %w", err)
	}
	defer rows.Close()

	locked := 0
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return err
		}
		locked++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if locked != len(courtIDs) {
		return fmt.Errorf("%w: locked %d of %d courts", ErrCourtNotFound, locked, len(courtIDs))
	}
	return nil
}

func (r *postgresCourtRepository) ListBlocks(ctx context.Context, exec SQLExecutor, organizationID int, from, to time.Time) ([]models.CourtBlock, error) {
	query := `
		SELECT id, organization_id, court_id, kind, starts_at, ends_at, reason
		FROM court_blocks
		WHERE organization_id = $1 AND starts_at < $3 AND ends_at > $2
		ORDER BY starts_at, id`
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, organizationID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blocks := make([]models.CourtBlock, 0)
	for rows.Next() {
		var b models.CourtBlock
		if err := rows.Scan(&b.ID, &b.OrganizationID, &b.CourtID, &b.Kind, &b.StartsAt, &b.EndsAt, &b.Reason); err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (r *postgresCourtRepository) ListBookings(ctx context.Context, exec SQLExecutor, courtIDs []int, from, to time.Time) ([]models.CourtBooking, error) {
	if len(courtIDs) == 0 {
		return []models.CourtBooking{}, nil
	}
	query := `
		SELECT id, court_id, starts_at, duration_minutes, status, pending_expires_at
		FROM court_bookings
		WHERE court_id = ANY($1)
		  AND starts_at < $3
		  AND starts_at + make_interval(mins => duration_minutes) > $2
		  AND status <> $4
		ORDER BY court_id, starts_at, id`
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, pq.Array(int64s(courtIDs)), from, to, models.BookingCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]models.CourtBooking, 0)
	for rows.Next() {
		var b models.CourtBooking
		if err := rows.Scan(&b.ID, &b.CourtID, &b.StartsAt, &b.DurationMinutes, &b.Status, &b.PendingExpiresAt); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
