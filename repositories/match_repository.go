package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/padel-system/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound          = errors.New("match not found")
	ErrMatchReferenceInvalid  = errors.New("match references an unknown event, stage, court or pairing")
	ErrStageNotFound          = errors.New("stage not found")
	ErrStageTournamentInvalid = errors.New("stage tournament reference invalid")
)

type MatchRepository interface {
	CreateStage(ctx context.Context, exec SQLExecutor, stage *models.Stage) error
	// DeleteSkeleton removes every match and stage of the event.
	DeleteSkeleton(ctx context.Context, exec SQLExecutor, eventID int) error
	// CountStarted counts matches of the event that are in progress or done.
	CountStarted(ctx context.Context, exec SQLExecutor, eventID int) (int, error)

	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	LinkNext(ctx context.Context, exec SQLExecutor, matchID, nextMatchID, slot int) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByEvent(ctx context.Context, exec SQLExecutor, eventID int) ([]*models.Match, error)
	ListByGroup(ctx context.Context, exec SQLExecutor, eventID int, groupLabel string) ([]*models.Match, error)
	// ListOnCourts returns scheduled, non-cancelled matches of any event that
	// overlap [from, to) on the given courts. A match with neither end nor
	// positive duration stored is taken to last fallbackMinutes.
	ListOnCourts(ctx context.Context, exec SQLExecutor, courtIDs []int, from, to time.Time, fallbackMinutes int) ([]*models.Match, error)

	// Version-checked writes. On success match.Version holds the new version.
	UpdateSchedule(ctx context.Context, exec SQLExecutor, match *models.Match) error
	UpdateResult(ctx context.Context, exec SQLExecutor, match *models.Match) error
	UpdateSides(ctx context.Context, exec SQLExecutor, match *models.Match) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `id, event_id, stage_id, group_label, round_type, round_label, round, order_in_round,
	pairing1_id, pairing2_id, status, court_id, start_at, end_at, duration_minutes, score_sets,
	winner_pairing_id, next_match_id, next_match_slot, version, created_at, updated_at`

func scanMatch(row rowScanner) (*models.Match, error) {
	var (
		m    models.Match
		sets []byte
	)
	err := row.Scan(
		&m.ID, &m.TournamentID, &m.StageID, &m.GroupLabel, &m.RoundType, &m.RoundLabel, &m.Round, &m.OrderInRound,
		&m.Pairing1ID, &m.Pairing2ID, &m.Status, &m.CourtID, &m.StartAt, &m.EndAt, &m.DurationMinutes, &sets,
		&m.WinnerPairingID, &m.NextMatchID, &m.NextMatchSlot, &m.Version, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	if len(sets) > 0 {
		if err := json.Unmarshal(sets, &m.Sets); err != nil {
			return nil, fmt.Errorf("match %d has malformed score_sets: %w", m.ID, err)
		}
	}
	return &m, nil
}

func encodeSets(sets []models.SetScore) (interface{}, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(sets)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (r *postgresMatchRepository) CreateStage(ctx context.Context, exec SQLExecutor, stage *models.Stage) error {
	query := `
		INSERT INTO tournament_stages (event_id, name, stage_type, stage_order, bracket_size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		stage.TournamentID, stage.Name, stage.Type, stage.Order, stage.BracketSize,
	).Scan(&stage.ID)
	return mapPQError(err, ErrStageTournamentInvalid, nil)
}

func (r *postgresMatchRepository) DeleteSkeleton(ctx context.Context, exec SQLExecutor, eventID int) error {
	executor := r.getExecutor(exec)
	if _, err := executor.ExecContext(ctx, `DELETE FROM tournament_matches WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("failed to delete matches of event %d: %w", eventID, err)
	}
	if _, err := executor.ExecContext(ctx, `DELETE FROM tournament_stages WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("failed to delete stages of event %d: %w", eventID, err)
	}
	return nil
}

func (r *postgresMatchRepository) CountStarted(ctx context.Context, exec SQLExecutor, eventID int) (int, error) {
	query := `SELECT COUNT(*) FROM tournament_matches WHERE event_id = $1 AND status = ANY($2)`
	started := pq.Array([]string{string(models.MatchStatusInProgress), string(models.MatchStatusDone)})
	var n int
	err := r.getExecutor(exec).QueryRowContext(ctx, query, eventID, started).Scan(&n)
	return n, err
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	sets, err := encodeSets(m.Sets)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO tournament_matches (
			event_id, stage_id, group_label, round_type, round_label, round, order_in_round,
			pairing1_id, pairing2_id, status, court_id, start_at, end_at, duration_minutes, score_sets,
			winner_pairing_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, version, created_at, updated_at`
	err = r.getExecutor(exec).QueryRowContext(ctx, query,
		m.TournamentID, m.StageID, m.GroupLabel, m.RoundType, m.RoundLabel, m.Round, m.OrderInRound,
		m.Pairing1ID, m.Pairing2ID, m.Status, m.CourtID, m.StartAt, m.EndAt, m.DurationMinutes, sets,
		m.WinnerPairingID,
	).Scan(&m.ID, &m.Version, &m.CreatedAt, &m.UpdatedAt)
	return mapPQError(err, ErrMatchReferenceInvalid, nil)
}

func (r *postgresMatchRepository) LinkNext(ctx context.Context, exec SQLExecutor, matchID, nextMatchID, slot int) error {
	query := `UPDATE tournament_matches SET next_match_id = $1, next_match_slot = $2 WHERE id = $3`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, nextMatchID, slot, matchID)
	if err != nil {
		return mapPQError(err, ErrMatchReferenceInvalid, nil)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM tournament_matches WHERE id = $1`
	return scanMatch(r.getExecutor(exec).QueryRowContext(ctx, query, id))
}

func (r *postgresMatchRepository) ListByEvent(ctx context.Context, exec SQLExecutor, eventID int) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + `
		FROM tournament_matches
		WHERE event_id = $1
		ORDER BY stage_id, round, order_in_round, id`
	return r.list(ctx, exec, query, eventID)
}

func (r *postgresMatchRepository) ListByGroup(ctx context.Context, exec SQLExecutor, eventID int, groupLabel string) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + `
		FROM tournament_matches
		WHERE event_id = $1 AND group_label = $2
		ORDER BY round, order_in_round, id`
	return r.list(ctx, exec, query, eventID, groupLabel)
}

func (r *postgresMatchRepository) ListOnCourts(ctx context.Context, exec SQLExecutor, courtIDs []int, from, to time.Time, fallbackMinutes int) ([]*models.Match, error) {
	if len(courtIDs) == 0 {
		return []*models.Match{}, nil
	}
	query := `SELECT ` + matchColumns + `
		FROM tournament_matches
		WHERE court_id = ANY($1)
		  AND start_at IS NOT NULL AND start_at < $3
		  AND COALESCE(end_at, start_at + make_interval(mins => CASE WHEN duration_minutes > 0 THEN duration_minutes ELSE $5 END)) > $2
		  AND status <> $4
		ORDER BY court_id, start_at, id`
	return r.list(ctx, exec, query, pq.Array(int64s(courtIDs)), from, to, models.MatchStatusCancelled, fallbackMinutes)
}

func (r *postgresMatchRepository) list(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.Match, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}

func (r *postgresMatchRepository) UpdateSchedule(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	query := `
		UPDATE tournament_matches SET
			court_id = $1, start_at = $2, end_at = $3, duration_minutes = $4, status = $5,
			version = version + 1, updated_at = NOW()
		WHERE id = $6 AND version = $7
		RETURNING version`
	return r.versioned(ctx, exec, m, query, m.CourtID, m.StartAt, m.EndAt, m.DurationMinutes, m.Status, m.ID, m.Version)
}

func (r *postgresMatchRepository) UpdateResult(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	sets, err := encodeSets(m.Sets)
	if err != nil {
		return err
	}
	query := `
		UPDATE tournament_matches SET
			score_sets = $1, winner_pairing_id = $2, status = $3,
			version = version + 1, updated_at = NOW()
		WHERE id = $4 AND version = $5
		RETURNING version`
	return r.versioned(ctx, exec, m, query, sets, m.WinnerPairingID, m.Status, m.ID, m.Version)
}

func (r *postgresMatchRepository) UpdateSides(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	query := `
		UPDATE tournament_matches SET
			pairing1_id = $1, pairing2_id = $2,
			version = version + 1, updated_at = NOW()
		WHERE id = $3 AND version = $4
		RETURNING version`
	return r.versioned(ctx, exec, m, query, m.Pairing1ID, m.Pairing2ID, m.ID, m.Version)
}

func (r *postgresMatchRepository) versioned(ctx context.Context, exec SQLExecutor, m *models.Match, query string, args ...interface{}) error {
	executor := r.getExecutor(exec)
	err := executor.QueryRowContext(ctx, query, args...).Scan(&m.Version)
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return versionMiss(ctx, executor, "tournament_matches", m.ID, ErrMatchNotFound)
	}
	return mapPQError(err, ErrMatchReferenceInvalid, nil)
}
