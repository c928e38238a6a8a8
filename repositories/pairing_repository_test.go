package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/padel-system/models"
)

var pairingCols = []string{
	"id", "organization_id", "event_id", "captain_user_id", "payment_mode", "join_mode", "status",
	"guarantee_status", "grace_until_at", "deadline_at", "invite_token_hash", "version", "created_at", "updated_at",
}

var slotCols = []string{"id", "pairing_id", "slot_role", "slot_status", "payment_status", "player_id"}

func pendingPairing() *models.Pairing {
	return &models.Pairing{
		ID:              4,
		OrganizationID:  1,
		TournamentID:    2,
		CaptainUserID:   10,
		PaymentMode:     models.PaymentModeSplit,
		JoinMode:        models.JoinModeInvitePartner,
		Status:          models.PairingPendingPartnerPayment,
		GuaranteeStatus: models.GuaranteeNone,
		Version:         2,
		Slots: []models.PairingSlot{
			{ID: 40, PairingID: 4, Role: models.SlotRoleCaptain, Status: models.SlotStatusFilled, PaymentStatus: models.SlotPaid, PlayerID: intPtr(10)},
			{ID: 41, PairingID: 4, Role: models.SlotRolePartner, Status: models.SlotStatusPending, PaymentStatus: models.SlotUnpaid},
		},
	}
}

func TestPairingRepository_UpdateBumpsVersion(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresPairingRepository(db)
	p := pendingPairing()
	now := time.Now()

	mock.ExpectQuery(`UPDATE padel_pairings SET`).
		WithArgs("PENDING_PARTNER_PAYMENT", "NONE", sqlmock.AnyArg(), sqlmock.AnyArg(), 4, int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(int64(3), now))
	mock.ExpectExec(`UPDATE padel_pairing_slots SET`).
		WithArgs("FILLED", "PAID", sqlmock.AnyArg(), 40, 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE padel_pairing_slots SET`).
		WithArgs("PENDING", "UNPAID", sqlmock.AnyArg(), 41, 4).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), nil, p))
	assert.Equal(t, int64(3), p.Version)
}

func TestPairingRepository_UpdateStaleVersion(t *testing.T) {
	tests := []struct {
		name   string
		exists bool
		want   error
	}{
		{"row moved on", true, ErrVersionConflict},
		{"row gone", false, ErrPairingNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewPostgresPairingRepository(db)

			mock.ExpectQuery(`UPDATE padel_pairings SET`).
				WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}))
			mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM padel_pairings WHERE id = \$1\)`).
				WithArgs(4).
				WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tt.exists))

			err := repo.Update(context.Background(), nil, pendingPairing())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPairingRepository_UpdateMissingSlot(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresPairingRepository(db)

	mock.ExpectQuery(`UPDATE padel_pairings SET`).
		WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(int64(3), time.Now()))
	mock.ExpectExec(`UPDATE padel_pairing_slots SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), nil, pendingPairing())
	assert.ErrorIs(t, err, ErrPairingSlotNotFound)
}

func TestPairingRepository_GetByIDAttachesSlots(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresPairingRepository(db)
	now := time.Now()

	mock.ExpectQuery(`FROM padel_pairings WHERE id = \$1`).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows(pairingCols).AddRow(
			4, 1, 2, 10, "SPLIT", "INVITE_PARTNER", "PENDING_PARTNER_PAYMENT",
			"NONE", nil, nil, nil, int64(2), now, now,
		))
	mock.ExpectQuery(`FROM padel_pairing_slots\s+WHERE pairing_id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(slotCols).
			AddRow(40, 4, "CAPTAIN", "FILLED", "PAID", 10).
			AddRow(41, 4, "PARTNER", "PENDING", "UNPAID", nil))

	p, err := repo.GetByID(context.Background(), nil, 4)
	require.NoError(t, err)
	require.Len(t, p.Slots, 2)
	assert.Equal(t, 10, *p.Slot(models.SlotRoleCaptain).PlayerID)
	assert.Nil(t, p.Slot(models.SlotRolePartner).PlayerID)
	assert.False(t, p.IsComplete())
}

func TestPairingRepository_GetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresPairingRepository(db)

	mock.ExpectQuery(`FROM padel_pairings WHERE id = \$1`).WithArgs(99).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), nil, 99)
	assert.ErrorIs(t, err, ErrPairingNotFound)
}

func TestPairingRepository_CreateDuplicateSlot(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresPairingRepository(db)
	p := pendingPairing()
	p.ID, p.Version = 0, 0

	mock.ExpectQuery(`INSERT INTO padel_pairings`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "created_at", "updated_at"}).
			AddRow(8, int64(1), time.Now(), time.Now()))
	mock.ExpectQuery(`INSERT INTO padel_pairing_slots`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "padel_pairing_slots_pairing_id_slot_role_key"})

	err := repo.Create(context.Background(), nil, p)
	assert.ErrorIs(t, err, ErrPairingSlotDuplicated)
	assert.Equal(t, 8, p.ID)
}

func TestPairingRepository_PlayersByPairing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresPairingRepository(db)

	mock.ExpectQuery(`SELECT pairing_id, player_id FROM padel_pairing_slots`).
		WithArgs(sqlmock.AnyArg(), "FILLED").
		WillReturnRows(sqlmock.NewRows([]string{"pairing_id", "player_id"}).
			AddRow(4, 10).AddRow(4, 11).AddRow(5, 12))

	players, err := repo.PlayersByPairing(context.Background(), nil, []int{4, 5})
	require.NoError(t, err)
	assert.Equal(t, map[int][]int{4: {10, 11}, 5: {12}}, players)
}
