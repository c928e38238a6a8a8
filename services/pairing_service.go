package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/padel-system/brackets"
	"github.com/Dosada05/padel-system/lifecycle"
	"github.com/Dosada05/padel-system/metrics"
	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/repositories"
	"github.com/Dosada05/padel-system/utils"
)

type CreatePairingInput struct {
	OrganizationID int
	TournamentID   int
	CaptainUserID  int
	PaymentMode    models.PaymentMode
	JoinMode       models.JoinMode
	DeadlineAt     *time.Time
}

// CreatedPairing holds the new pairing and, for invite pairings, the raw
// invite token. The token is not stored and cannot be recovered later.
type CreatedPairing struct {
	Pairing     *models.Pairing `json:"pairing"`
	InviteToken string          `json:"invite_token,omitempty"`
}

type PairingService interface {
	Create(ctx context.Context, input CreatePairingInput) (*CreatedPairing, error)
	Get(ctx context.Context, orgID, pairingID int) (*models.Pairing, error)
	ClaimInvite(ctx context.Context, pairingID int, token string, userID int, expectedVersion int64) (*models.Pairing, error)
	RecordPayment(ctx context.Context, orgID, pairingID int, role models.SlotRole, coversBoth bool, expectedVersion int64) (*models.Pairing, error)
	ApplyAction(ctx context.Context, orgID, pairingID int, action lifecycle.Action, expectedVersion int64) (*models.Pairing, error)
	ApplyGuaranteeAction(ctx context.Context, orgID, pairingID int, action lifecycle.GuaranteeAction, expectedVersion int64) (*models.Pairing, error)
	Cancel(ctx context.Context, orgID, pairingID int, expectedVersion int64) (*models.Pairing, error)
	// ExpireOverdue cancels pairings whose guarantee grace or registration
	// deadline passed at now and returns how many were cancelled.
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

type pairingService struct {
	db             *sql.DB
	pairingRepo    repositories.PairingRepository
	tournamentRepo repositories.TournamentRepository
	notifier       Notifier
	metrics        *metrics.Metrics
	logger         *slog.Logger
	now            func() time.Time
}

func NewPairingService(
	db *sql.DB,
	pairingRepo repositories.PairingRepository,
	tournamentRepo repositories.TournamentRepository,
	notifier Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) PairingService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &pairingService{
		db:             db,
		pairingRepo:    pairingRepo,
		tournamentRepo: tournamentRepo,
		notifier:       notifier,
		metrics:        m,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *pairingService) Create(ctx context.Context, input CreatePairingInput) (*CreatedPairing, error) {
	if input.PaymentMode != models.PaymentModeFull && input.PaymentMode != models.PaymentModeSplit {
		return nil, fmt.Errorf("%w: unknown payment mode %q", ErrValidationFailed, input.PaymentMode)
	}
	if input.JoinMode != models.JoinModeInvitePartner && input.JoinMode != models.JoinModeLookingForPartner {
		return nil, fmt.Errorf("%w: unknown join mode %q", ErrValidationFailed, input.JoinMode)
	}
	if input.CaptainUserID <= 0 {
		return nil, fmt.Errorf("%w: captain is required", ErrValidationFailed)
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, nil, input.TournamentID)
	if err != nil {
		return nil, notFound(err)
	}
	if tournament.OrganizationID != input.OrganizationID {
		return nil, fmt.Errorf("%w: tournament %d", ErrNotFound, input.TournamentID)
	}
	if tournament.Status != models.StatusDraft && tournament.Status != models.StatusRegistration {
		return nil, fmt.Errorf("%w: status is %s", ErrRegistrationNotOpen, tournament.Status)
	}

	captainID := input.CaptainUserID
	pairing := &models.Pairing{
		OrganizationID:  input.OrganizationID,
		TournamentID:    input.TournamentID,
		CaptainUserID:   input.CaptainUserID,
		PaymentMode:     input.PaymentMode,
		JoinMode:        input.JoinMode,
		Status:          models.PairingPendingOnePaid,
		GuaranteeStatus: lifecycle.InitialGuarantee(input.PaymentMode),
		DeadlineAt:      input.DeadlineAt,
		Slots: []models.PairingSlot{
			{Role: models.SlotRoleCaptain, Status: models.SlotStatusFilled, PaymentStatus: models.SlotUnpaid, PlayerID: &captainID},
			{Role: models.SlotRolePartner, Status: models.SlotStatusPending, PaymentStatus: models.SlotUnpaid},
		},
	}

	result := &CreatedPairing{Pairing: pairing}
	if input.JoinMode == models.JoinModeInvitePartner {
		token, hash, err := utils.NewInviteToken()
		if err != nil {
			return nil, fmt.Errorf("failed to create invite token: %w", err)
		}
		pairing.InviteTokenHash = &hash
		result.InviteToken = token
	}

	if err := s.pairingRepo.Create(ctx, nil, pairing); err != nil {
		if errors.Is(err, repositories.ErrPairingEventInvalid) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, fmt.Errorf("failed to create pairing: %w", err)
	}
	s.logger.Info("pairing created",
		slog.Int("pairing_id", pairing.ID),
		slog.Int("tournament_id", pairing.TournamentID),
		slog.String("payment_mode", string(pairing.PaymentMode)),
	)
	return result, nil
}

func (s *pairingService) Get(ctx context.Context, orgID, pairingID int) (*models.Pairing, error) {
	p, err := s.pairingRepo.GetByID(ctx, nil, pairingID)
	if err != nil {
		return nil, notFound(err)
	}
	if p.OrganizationID != orgID {
		return nil, fmt.Errorf("%w: pairing %d", ErrNotFound, pairingID)
	}
	return p, nil
}

func (s *pairingService) ClaimInvite(ctx context.Context, pairingID int, token string, userID int, expectedVersion int64) (*models.Pairing, error) {
	return s.mutate(ctx, 0, pairingID, expectedVersion, func(p *models.Pairing) (bool, error) {
		if p.InviteTokenHash == nil || token == "" || !utils.CheckTokenHash(token, *p.InviteTokenHash) {
			return false, ErrInvalidInviteToken
		}
		if userID == p.CaptainUserID {
			return false, fmt.Errorf("%w: captain cannot join as partner", ErrValidationFailed)
		}
		partner := p.Slot(models.SlotRolePartner)
		if partner == nil || partner.Status != models.SlotStatusPending {
			return false, ErrPartnerSlotTaken
		}
		if err := s.apply(p, lifecycle.ActionPartnerJoined); err != nil {
			return false, err
		}
		partner.Status = models.SlotStatusFilled
		partner.PlayerID = &userID
		p.InviteTokenHash = nil
		return true, nil
	})
}

func (s *pairingService) RecordPayment(ctx context.Context, orgID, pairingID int, role models.SlotRole, coversBoth bool, expectedVersion int64) (*models.Pairing, error) {
	return s.mutate(ctx, orgID, pairingID, expectedVersion, func(p *models.Pairing) (bool, error) {
		if lifecycle.IsTerminal(p.Status) {
			return false, fmt.Errorf("%w: %s", ErrPairingTerminalStatus, p.Status)
		}
		slot := p.Slot(role)
		if slot == nil || slot.Status == models.SlotStatusCancelled {
			return false, fmt.Errorf("%w: no active %s slot", ErrValidationFailed, role)
		}
		if role == models.SlotRolePartner && slot.Status != models.SlotStatusFilled {
			return false, fmt.Errorf("%w: partner has not joined", ErrValidationFailed)
		}
		if coversBoth && role != models.SlotRoleCaptain {
			return false, fmt.Errorf("%w: only the captain can pay for both players", ErrValidationFailed)
		}

		slot.PaymentStatus = models.SlotPaid
		if coversBoth {
			if partner := p.Slot(models.SlotRolePartner); partner != nil && partner.Status != models.SlotStatusCancelled {
				partner.PaymentStatus = models.SlotPaid
			}
		}

		action, ok := lifecycle.FromPayment(role, coversBoth)
		if !ok {
			// доля капитана: подтверждаем, только если партнёр уже заплатил
			if !p.AllActiveSlotsPaid() {
				return true, nil
			}
			action = lifecycle.ActionPartnerPaid
		}
		if next := lifecycle.Transition(p.Status, action); next != p.Status && lifecycle.IsConfirmed(next) && !p.AllActiveSlotsPaid() {
			s.logger.Info("payment recorded, confirmation waits for unpaid slots",
				slog.Int("pairing_id", p.ID), slog.String("action", string(action)))
			return true, nil
		}
		return true, s.apply(p, action)
	})
}

func (s *pairingService) ApplyAction(ctx context.Context, orgID, pairingID int, action lifecycle.Action, expectedVersion int64) (*models.Pairing, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidationFailed, action)
	}
	if action == lifecycle.ActionCancel {
		return s.Cancel(ctx, orgID, pairingID, expectedVersion)
	}
	return s.mutate(ctx, orgID, pairingID, expectedVersion, func(p *models.Pairing) (bool, error) {
		if next := lifecycle.Transition(p.Status, action); next != p.Status && lifecycle.IsConfirmed(next) && !p.AllActiveSlotsPaid() {
			return false, fmt.Errorf("%w: unpaid slots remain", ErrInvalidTransition)
		}
		if err := s.apply(p, action); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *pairingService) ApplyGuaranteeAction(ctx context.Context, orgID, pairingID int, action lifecycle.GuaranteeAction, expectedVersion int64) (*models.Pairing, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown guarantee action %q", ErrValidationFailed, action)
	}
	return s.mutate(ctx, orgID, pairingID, expectedVersion, func(p *models.Pairing) (bool, error) {
		return true, s.applyGuarantee(p, action)
	})
}

func (s *pairingService) Cancel(ctx context.Context, orgID, pairingID int, expectedVersion int64) (*models.Pairing, error) {
	return s.mutate(ctx, orgID, pairingID, expectedVersion, func(p *models.Pairing) (bool, error) {
		if p.Status == models.PairingCancelledIncomplete {
			return false, nil
		}
		return true, s.cancel(p)
	})
}

func (s *pairingService) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	graceExpired, err := s.pairingRepo.ListGraceExpired(ctx, nil, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired guarantees: %w", err)
	}
	pastDeadline, err := s.pairingRepo.ListPastDeadline(ctx, nil, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list pairings past deadline: %w", err)
	}

	cancelled := 0
	seen := make(map[int]struct{}, len(graceExpired)+len(pastDeadline))
	expire := func(p *models.Pairing, graceElapsed bool) {
		if _, ok := seen[p.ID]; ok {
			return
		}
		seen[p.ID] = struct{}{}
		var wasLive bool
		got, err := s.mutate(ctx, p.OrganizationID, p.ID, p.Version, func(cur *models.Pairing) (bool, error) {
			wasLive = !lifecycle.IsTerminal(cur.Status)
			if graceElapsed {
				if err := s.applyGuarantee(cur, lifecycle.GuaranteeExpire); err != nil {
					return false, err
				}
				return true, nil
			}
			if !wasLive {
				return false, nil
			}
			return true, s.cancel(cur)
		})
		switch {
		case err == nil:
			// подтверждённая пара теряет только гарантию
			if wasLive && got.Status == models.PairingCancelledIncomplete {
				cancelled++
			}
		case errors.Is(err, ErrPairingConflict), errors.Is(err, ErrPairingTerminalStatus):
			s.logger.Info("sweeper skipped pairing", slog.Int("pairing_id", p.ID), slog.Any("reason", err))
		default:
			s.logger.Error("sweeper failed to expire pairing", slog.Int("pairing_id", p.ID), slog.Any("error", err))
		}
	}
	for _, p := range graceExpired {
		expire(p, true)
	}
	for _, p := range pastDeadline {
		expire(p, false)
	}
	if cancelled > 0 && s.metrics != nil {
		s.metrics.PairingsExpired.Add(float64(cancelled))
	}
	return cancelled, nil
}

// mutate loads the pairing in a transaction, checks tenant and version, runs fn
// and writes the result back. fn returning false leaves the row untouched.
// orgID 0 skips the tenant check (invite claims are authorised by the token).
func (s *pairingService) mutate(ctx context.Context, orgID, pairingID int, expectedVersion int64, fn func(p *models.Pairing) (bool, error)) (*models.Pairing, error) {
	var (
		pairing    *models.Pairing
		prevStatus models.PairingStatus
	)
	err := withTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		p, err := s.pairingRepo.GetByID(ctx, tx, pairingID)
		if err != nil {
			return notFound(err)
		}
		if orgID != 0 && p.OrganizationID != orgID {
			return fmt.Errorf("%w: pairing %d", ErrNotFound, pairingID)
		}
		if p.Version != expectedVersion {
			return fmt.Errorf("%w: expected version %d, current %d", ErrPairingConflict, expectedVersion, p.Version)
		}
		prevStatus = p.Status

		changed, err := fn(p)
		if err != nil {
			return err
		}
		pairing = p
		if !changed {
			return nil
		}
		if err := s.pairingRepo.Update(ctx, tx, p); err != nil {
			if errors.Is(err, repositories.ErrVersionConflict) {
				return fmt.Errorf("%w: %w", ErrPairingConflict, err)
			}
			return notFound(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPairingConflict) && s.metrics != nil {
			s.metrics.VersionConflicts.WithLabelValues("pairing").Inc()
		}
		return nil, err
	}

	if pairing.Status != prevStatus {
		s.logger.Info("pairing status changed",
			slog.Int("pairing_id", pairing.ID),
			slog.String("from", string(prevStatus)),
			slog.String("to", string(pairing.Status)),
		)
		switch {
		case lifecycle.IsConfirmed(pairing.Status):
			s.notifier.Publish(pairing.TournamentID, brackets.EventPairingConfirmed, pairing)
		case pairing.Status == models.PairingCancelledIncomplete:
			s.notifier.Publish(pairing.TournamentID, brackets.EventPairingCancelled, pairing)
		}
	}
	return pairing, nil
}

func (s *pairingService) apply(p *models.Pairing, action lifecycle.Action) error {
	next, err := lifecycle.Apply(p.Status, action)
	switch {
	case errors.Is(err, lifecycle.ErrTerminalStatus):
		return fmt.Errorf("%w: %s rejects %s", ErrPairingTerminalStatus, p.Status, action)
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, p.Status)
	case err != nil:
		return err
	}
	p.Status = next
	return nil
}

// applyGuarantee moves the guarantee sub-machine. An expired guarantee cancels the pairing.
func (s *pairingService) applyGuarantee(p *models.Pairing, action lifecycle.GuaranteeAction) error {
	if p.Status == models.PairingCancelledIncomplete {
		return fmt.Errorf("%w: pairing %d is cancelled", ErrPairingTerminalStatus, p.ID)
	}
	step, err := lifecycle.ApplyGuarantee(p.GuaranteeStatus, action, s.now().UTC())
	switch {
	case errors.Is(err, lifecycle.ErrTerminalStatus):
		return fmt.Errorf("%w: guarantee %s rejects %s", ErrPairingTerminalStatus, p.GuaranteeStatus, action)
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return fmt.Errorf("%w: guarantee %s from %s", ErrInvalidTransition, action, p.GuaranteeStatus)
	case err != nil:
		return err
	}
	p.GuaranteeStatus = step.Status
	p.GraceUntilAt = step.GraceUntil
	if step.Status == models.GuaranteeExpired && !lifecycle.IsTerminal(p.Status) {
		return s.cancel(p)
	}
	return nil
}

func (s *pairingService) cancel(p *models.Pairing) error {
	if err := s.apply(p, lifecycle.ActionCancel); err != nil {
		return err
	}
	for i := range p.Slots {
		if p.Slots[i].Status != models.SlotStatusFilled {
			p.Slots[i].Status = models.SlotStatusCancelled
		}
	}
	p.InviteTokenHash = nil
	return nil
}
