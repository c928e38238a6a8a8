package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dosada05/padel-system/models"
	"github.com/lib/pq"
)

var (
	ErrPairingNotFound       = errors.New("pairing not found")
	ErrPairingSlotNotFound   = errors.New("pairing slot not found")
	ErrPairingEventInvalid   = errors.New("pairing event reference invalid")
	ErrPairingSlotDuplicated = errors.New("pairing slot already exists")
)

type PairingRepository interface {
	// Create inserts the pairing and its slots; IDs and Version are filled in.
	Create(ctx context.Context, exec SQLExecutor, p *models.Pairing) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Pairing, error)
	// Update writes the lifecycle fields and slots when Version still matches,
	// then bumps p.Version.
	Update(ctx context.Context, exec SQLExecutor, p *models.Pairing) error
	ListConfirmedByEvent(ctx context.Context, exec SQLExecutor, eventID int) ([]*models.Pairing, error)
	// PlayersByPairing maps each pairing to the players in its filled slots.
	PlayersByPairing(ctx context.Context, exec SQLExecutor, pairingIDs []int) (map[int][]int, error)
	ListGraceExpired(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Pairing, error)
	ListPastDeadline(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Pairing, error)
}

type postgresPairingRepository struct {
	db *sql.DB
}

func NewPostgresPairingRepository(db *sql.DB) PairingRepository {
	return &postgresPairingRepository{db: db}
}

func (r *postgresPairingRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const pairingColumns = `id, organization_id, event_id, captain_user_id, payment_mode, join_mode, status,
	guarantee_status, grace_until_at, deadline_at, invite_token_hash, version, created_at, updated_at`

func scanPairing(row rowScanner) (*models.Pairing, error) {
	var p models.Pairing
	err := row.Scan(
		&p.ID, &p.OrganizationID, &p.TournamentID, &p.CaptainUserID, &p.PaymentMode, &p.JoinMode, &p.Status,
		&p.GuaranteeStatus, &p.GraceUntilAt, &p.DeadlineAt, &p.InviteTokenHash, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPairingNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *postgresPairingRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Pairing) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO padel_pairings (
			organization_id, event_id, captain_user_id, payment_mode, join_mode, status,
			guarantee_status, grace_until_at, deadline_at, invite_token_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, version, created_at, updated_at`

	err := executor.QueryRowContext(ctx, query,
		p.OrganizationID, p.TournamentID, p.CaptainUserID, p.PaymentMode, p.JoinMode, p.Status,
		p.GuaranteeStatus, p.GraceUntilAt, p.DeadlineAt, p.InviteTokenHash,
	).Scan(&p.ID, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapPQError(err, ErrPairingEventInvalid, nil)
	}

	slotQuery := `
		INSERT INTO padel_pairing_slots (pairing_id, slot_role, slot_status, payment_status, player_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	for i := range p.Slots {
		s := &p.Slots[i]
		s.PairingID = p.ID
		if err := executor.QueryRowContext(ctx, slotQuery, s.PairingID, s.Role, s.Status, s.PaymentStatus, s.PlayerID).Scan(&s.ID); err != nil {
			return mapPQError(err, nil, ErrPairingSlotDuplicated)
		}
	}
	return nil
}

func (r *postgresPairingRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Pairing, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + pairingColumns + ` FROM padel_pairings WHERE id = $1`
	p, err := scanPairing(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.attachSlots(ctx, executor, []*models.Pairing{p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *postgresPairingRepository) Update(ctx context.Context, exec SQLExecutor, p *models.Pairing) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE padel_pairings SET
			status = $1, guarantee_status = $2, grace_until_at = $3, invite_token_hash = $4,
			version = version + 1, updated_at = NOW()
		WHERE id = $5 AND version = $6
		RETURNING version, updated_at`

	err := executor.QueryRowContext(ctx, query,
		p.Status, p.GuaranteeStatus, p.GraceUntilAt, p.InviteTokenHash, p.ID, p.Version,
	).Scan(&p.Version, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return versionMiss(ctx, executor, "padel_pairings", p.ID, ErrPairingNotFound)
		}
		return err
	}

	slotQuery := `
		UPDATE padel_pairing_slots SET slot_status = $1, payment_status = $2, player_id = $3
		WHERE id = $4 AND pairing_id = $5`
	for _, s := range p.Slots {
		result, err := executor.ExecContext(ctx, slotQuery, s.Status, s.PaymentStatus, s.PlayerID, s.ID, p.ID)
		if err != nil {
			return err
		}
		if err := checkAffectedRows(result, ErrPairingSlotNotFound); err != nil {
			return fmt.Errorf("slot %d of pairing %d: %w", s.ID, p.ID, err)
		}
	}
	return nil
}

func (r *postgresPairingRepository) ListConfirmedByEvent(ctx context.Context, exec SQLExecutor, eventID int) ([]*models.Pairing, error) {
	query := `SELECT ` + pairingColumns + `
		FROM padel_pairings
		WHERE event_id = $1 AND status = ANY($2)
		ORDER BY id ASC`
	confirmed := pq.Array([]string{string(models.PairingConfirmedBothPaid), string(models.PairingConfirmedCaptainFull)})
	return r.list(ctx, r.getExecutor(exec), query, eventID, confirmed)
}

func (r *postgresPairingRepository) ListGraceExpired(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Pairing, error) {
	query := `SELECT ` + pairingColumns + `
		FROM padel_pairings
		WHERE guarantee_status = $1 AND grace_until_at IS NOT NULL AND grace_until_at <= $2
		ORDER BY id ASC`
	return r.list(ctx, r.getExecutor(exec), query, models.GuaranteeRequiresAction, now)
}

func (r *postgresPairingRepository) ListPastDeadline(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Pairing, error) {
	query := `SELECT ` + pairingColumns + `
		FROM padel_pairings
		WHERE status = ANY($1) AND deadline_at IS NOT NULL AND deadline_at <= $2
		ORDER BY id ASC`
	pending := pq.Array([]string{string(models.PairingPendingOnePaid), string(models.PairingPendingPartnerPayment)})
	return r.list(ctx, r.getExecutor(exec), query, pending, now)
}

func (r *postgresPairingRepository) list(ctx context.Context, executor SQLExecutor, query string, args ...interface{}) ([]*models.Pairing, error) {
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairings := make([]*models.Pairing, 0)
	for rows.Next() {
		p, err := scanPairing(rows)
		if err != nil {
			return nil, err
		}
		pairings = append(pairings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachSlots(ctx, executor, pairings); err != nil {
		return nil, err
	}
	return pairings, nil
}

func (r *postgresPairingRepository) attachSlots(ctx context.Context, executor SQLExecutor, pairings []*models.Pairing) error {
	if len(pairings) == 0 {
		return nil
	}
	byID := make(map[int]*models.Pairing, len(pairings))
	ids := make([]int64, 0, len(pairings))
	for _, p := range pairings {
		byID[p.ID] = p
		ids = append(ids, int64(p.ID))
	}

	query := `
		SELECT id, pairing_id, slot_role, slot_status, payment_status, player_id
		FROM padel_pairing_slots
		WHERE pairing_id = ANY($1)
		ORDER BY pairing_id, id`
	rows, err := executor.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var s models.PairingSlot
		if err := rows.Scan(&s.ID, &s.PairingID, &s.Role, &s.Status, &s.PaymentStatus, &s.PlayerID); err != nil {
			return err
		}
		if p, ok := byID[s.PairingID]; ok {
			p.Slots = append(p.Slots, s)
		}
	}
	return rows.Err()
}

func (r *postgresPairingRepository) PlayersByPairing(ctx context.Context, exec SQLExecutor, pairingIDs []int) (map[int][]int, error) {
	players := make(map[int][]int, len(pairingIDs))
	if len(pairingIDs) == 0 {
		return players, nil
	}
	var sb strings.Builder
	sb.WriteString(`SELECT pairing_id, player_id FROM padel_pairing_slots`)
	sb.WriteString(` WHERE pairing_id = ANY($1) AND slot_status = $2 AND player_id IS NOT NULL`)
	sb.WriteString(` ORDER BY pairing_id, id`)

	rows, err := r.getExecutor(exec).QueryContext(ctx, sb.String(), pq.Array(int64s(pairingIDs)), models.SlotStatusFilled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var pairingID, playerID int
		if err := rows.Scan(&pairingID, &playerID); err != nil {
			return nil, err
		}
		players[pairingID] = append(players[pairingID], playerID)
	}
	return players, rows.Err()
}
