package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/Dosada05/padel-system/models"
)

type AvailabilityRepository interface {
	// ListByEvent returns player unavailability windows of the event overlapping [from, to).
	ListByEvent(ctx context.Context, exec SQLExecutor, eventID int, from, to time.Time) ([]models.PlayerUnavailability, error)
}

type postgresAvailabilityRepository struct {
	db *sql.DB
}

func NewPostgresAvailabilityRepository(db *sql.DB) AvailabilityRepository {
	return &postgresAvailabilityRepository{db: db}
}

func (r *postgresAvailabilityRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresAvailabilityRepository) ListByEvent(ctx context.Context, exec SQLExecutor, eventID int, from, to time.Time) ([]models.PlayerUnavailability, error) {
	query := `
		SELECT id, event_id, player_id, starts_at, ends_at
		FROM player_unavailability
		WHERE event_id = $1 AND starts_at < $3 AND ends_at > $2
		ORDER BY player_id, starts_at`
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, eventID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	windows := make([]models.PlayerUnavailability, 0)
	for rows.Next() {
		var u models.PlayerUnavailability
		if err := rows.Scan(&u.ID, &u.TournamentID, &u.PlayerID, &u.StartsAt, &u.EndsAt); err != nil {
			return nil, err
		}
		windows = append(windows, u)
	}
	return windows, rows.Err()
}
