package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/padel-system/models"
)

var (
	ErrStandingPairingInvalid = errors.New("standing pairing conflict or invalid")
	ErrStandingRequiresTx     = errors.New("standings replacement requires a transaction")
)

type StandingRepository interface {
	// ReplaceGroup deletes the stored table of the group and inserts rows in its place.
	ReplaceGroup(ctx context.Context, tx *sql.Tx, eventID int, groupLabel string, rows []*models.GroupStanding) error
	ListByGroup(ctx context.Context, exec SQLExecutor, eventID int, groupLabel string) ([]*models.GroupStanding, error)
}

type postgresStandingRepository struct {
	db *sql.DB
}

func NewPostgresStandingRepository(db *sql.DB) StandingRepository {
	return &postgresStandingRepository{db: db}
}

func (r *postgresStandingRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresStandingRepository) ReplaceGroup(ctx context.Context, tx *sql.Tx, eventID int, groupLabel string, standings []*models.GroupStanding) error {
	if tx == nil {
		return ErrStandingRequiresTx
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_standings WHERE event_id = $1 AND group_label = $2`, eventID, groupLabel); err != nil {
		return fmt.Errorf("failed to clear standings of group %s: %w", groupLabel, err)
	}
	if len(standings) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO group_standings
		    (event_id, group_label, pairing_id, rank, played, wins, losses, set_diff, game_diff, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`)
	if err != nil {
		return fmt.Errorf("failed to prepare standings insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, s := range standings {
		s.TournamentID = eventID
		s.GroupLabel = groupLabel
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
		err := stmt.QueryRowContext(ctx,
			s.TournamentID, s.GroupLabel, s.PairingID, s.Rank, s.Played, s.Wins, s.Losses,
			s.SetDiff, s.GameDiff, s.UpdatedAt,
		).Scan(&s.ID)
		if err != nil {
			return fmt.Errorf("failed to insert standing for pairing %d: %w", s.PairingID, mapPQError(err, ErrStandingPairingInvalid, ErrStandingPairingInvalid))
		}
	}
	return nil
}

func (r *postgresStandingRepository) ListByGroup(ctx context.Context, exec SQLExecutor, eventID int, groupLabel string) ([]*models.GroupStanding, error) {
	query := `
		SELECT id, event_id, group_label, pairing_id, rank, played, wins, losses, set_diff, game_diff, updated_at
		FROM group_standings
		WHERE event_id = $1 AND group_label = $2
		ORDER BY rank ASC, pairing_id ASC`
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, eventID, groupLabel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	standings := make([]*models.GroupStanding, 0)
	for rows.Next() {
		var s models.GroupStanding
		if err := rows.Scan(&s.ID, &s.TournamentID, &s.GroupLabel, &s.PairingID, &s.Rank, &s.Played,
			&s.Wins, &s.Losses, &s.SetDiff, &s.GameDiff, &s.UpdatedAt); err != nil {
			return nil, err
		}
		standings = append(standings, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return standings, nil
}
