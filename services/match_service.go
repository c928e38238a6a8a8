package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/padel-system/agenda"
	"github.com/Dosada05/padel-system/brackets"
	"github.com/Dosada05/padel-system/metrics"
	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/repositories"
	"github.com/Dosada05/padel-system/standings"
)

type RecordResultInput struct {
	ExpectedVersion int64             `json:"expected_version"`
	Sets            []models.SetScore `json:"sets"`
}

type RescheduleInput struct {
	ExpectedVersion int64     `json:"expected_version"`
	CourtID         int       `json:"court_id"`
	StartAt         time.Time `json:"start_at"`
	// DurationMinutes falls back to the stored duration, then to the engine default.
	DurationMinutes *int `json:"duration_minutes,omitempty"`
}

type RescheduledMatch struct {
	Match      *models.Match  `json:"match"`
	Overridden []agenda.Entry `json:"overridden,omitempty"`
}

// MatchResult is published to the event room after a result is stored.
type MatchResult struct {
	Match *models.Match `json:"match"`
	// Advanced are the matches that received the winner, walkovers included.
	Advanced []*models.Match `json:"advanced,omitempty"`
}

type MatchService interface {
	Get(ctx context.Context, orgID, matchID int) (*models.Match, error)
	RecordResult(ctx context.Context, orgID, matchID int, input RecordResultInput) (*MatchResult, error)
	Reschedule(ctx context.Context, orgID, matchID int, input RescheduleInput) (*RescheduledMatch, error)
}

type matchService struct {
	db              *sql.DB
	tournamentRepo  repositories.TournamentRepository
	matchRepo       repositories.MatchRepository
	courtRepo       repositories.CourtRepository
	rebuilder       *groupRebuilder
	loader          *agendaLoader
	defaultDuration int
	notifier        Notifier
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

func NewMatchService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	courtRepo repositories.CourtRepository,
	standingRepo repositories.StandingRepository,
	rules []standings.Rule,
	defaultDuration int,
	notifier Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) MatchService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &matchService{
		db:              db,
		tournamentRepo:  tournamentRepo,
		matchRepo:       matchRepo,
		courtRepo:       courtRepo,
		rebuilder:       newGroupRebuilder(matchRepo, standingRepo, rules),
		loader:          &agendaLoader{courtRepo: courtRepo, matchRepo: matchRepo, now: time.Now},
		defaultDuration: defaultDuration,
		notifier:        notifier,
		metrics:         m,
		logger:          logger,
	}
}

func (s *matchService) Get(ctx context.Context, orgID, matchID int) (*models.Match, error) {
	m, _, err := s.owned(ctx, nil, orgID, matchID)
	return m, err
}

// owned loads the match with its tournament, hiding matches of other organizations.
func (s *matchService) owned(ctx context.Context, exec repositories.SQLExecutor, orgID, matchID int) (*models.Match, *models.Tournament, error) {
	m, err := s.matchRepo.GetByID(ctx, exec, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, nil, notFound(err)
		}
		return nil, nil, err
	}
	t, err := ownedTournament(ctx, exec, s.tournamentRepo, orgID, m.TournamentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: match %d", ErrNotFound, matchID)
		}
		return nil, nil, err
	}
	return m, t, nil
}

func (s *matchService) RecordResult(ctx context.Context, orgID, matchID int, input RecordResultInput) (*MatchResult, error) {
	if err := validateSets(input.Sets); err != nil {
		return nil, err
	}
	winnerSide := standings.Winner(input.Sets)
	if winnerSide == 0 {
		return nil, fmt.Errorf("%w: the score does not decide a winner", ErrInvalidScore)
	}

	result := &MatchResult{}
	err := withTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		m, tournament, err := s.owned(ctx, tx, orgID, matchID)
		if err != nil {
			return err
		}
		if m.Version != input.ExpectedVersion {
			return fmt.Errorf("%w: match %d is at version %d", ErrMatchConflict, m.ID, m.Version)
		}
		if m.Status == models.MatchStatusDone || m.Status == models.MatchStatusCancelled {
			return fmt.Errorf("%w: match %d is %s", ErrMatchFinished, m.ID, m.Status)
		}
		if m.Pairing1ID == nil || m.Pairing2ID == nil {
			return fmt.Errorf("%w: match %d is waiting for its sides", ErrMatchNotReady, m.ID)
		}

		winner := *m.Pairing1ID
		if winnerSide == 2 {
			winner = *m.Pairing2ID
		}
		m.Sets = input.Sets
		m.WinnerPairingID = &winner
		m.Status = models.MatchStatusDone
		if err := s.matchRepo.UpdateResult(ctx, tx, m); err != nil {
			return matchWriteErr(m.ID, err)
		}
		result.Match = m

		if m.NextMatchID != nil {
			all, err := s.matchRepo.ListByEvent(ctx, tx, m.TournamentID)
			if err != nil {
				return fmt.Errorf("failed to load matches of tournament %d: %w", m.TournamentID, err)
			}
			byID := make(map[int]*models.Match, len(all))
			for _, x := range all {
				byID[x.ID] = x
			}
			byID[m.ID] = m
			if result.Advanced, err = s.advance(ctx, tx, byID, m); err != nil {
				return err
			}
		}

		if m.GroupLabel != nil {
			if _, err := s.rebuilder.rebuild(ctx, tx, tournament, *m.GroupLabel); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.countConflict(err)
		return nil, err
	}

	s.logger.Info("match result recorded",
		slog.Int("match_id", matchID),
		slog.Int("winner_pairing_id", *result.Match.WinnerPairingID),
		slog.Int("advanced", len(result.Advanced)),
	)
	s.notifier.Publish(result.Match.TournamentID, brackets.EventMatchResult, result)
	return result, nil
}

// advance moves the winner of from into the slot it feeds. When the other
// slot can never be filled, because its feeder was void, the next match is a
// walkover and the winner keeps moving.
func (s *matchService) advance(ctx context.Context, tx *sql.Tx, byID map[int]*models.Match, from *models.Match) ([]*models.Match, error) {
	var advanced []*models.Match
	cur := from
	for cur.NextMatchID != nil && cur.NextMatchSlot != nil && cur.WinnerPairingID != nil {
		next, ok := byID[*cur.NextMatchID]
		if !ok {
			return nil, fmt.Errorf("match %d feeds unknown match %d", cur.ID, *cur.NextMatchID)
		}
		winner := *cur.WinnerPairingID
		slot := *cur.NextMatchSlot
		if slot == 1 {
			next.Pairing1ID = &winner
		} else {
			next.Pairing2ID = &winner
		}
		if err := s.matchRepo.UpdateSides(ctx, tx, next); err != nil {
			return nil, matchWriteErr(next.ID, err)
		}
		advanced = append(advanced, next)

		if !otherFeederVoid(byID, next, slot) {
			break
		}
		next.WinnerPairingID = &winner
		next.Status = models.MatchStatusDone
		next.Sets = nil
		if err := s.matchRepo.UpdateResult(ctx, tx, next); err != nil {
			return nil, matchWriteErr(next.ID, err)
		}
		cur = next
	}
	return advanced, nil
}

// otherFeederVoid reports whether the slot opposite to filled is fed by a cancelled match.
func otherFeederVoid(byID map[int]*models.Match, next *models.Match, filled int) bool {
	other := 1
	if filled == 1 {
		other = 2
	}
	if (other == 1 && next.Pairing1ID != nil) || (other == 2 && next.Pairing2ID != nil) {
		return false
	}
	for _, m := range byID {
		if m.NextMatchID != nil && *m.NextMatchID == next.ID && m.NextMatchSlot != nil && *m.NextMatchSlot == other {
			return m.Status == models.MatchStatusCancelled
		}
	}
	return false
}

func validateSets(sets []models.SetScore) error {
	if len(sets) == 0 {
		return fmt.Errorf("%w: at least one set is required", ErrInvalidScore)
	}
	for i, set := range sets {
		if set.A < 0 || set.B < 0 {
			return fmt.Errorf("%w: set %d has negative games", ErrInvalidScore, i+1)
		}
		if set.A == 0 && set.B == 0 {
			return fmt.Errorf("%w: set %d is empty", ErrInvalidScore, i+1)
		}
	}
	return nil
}

func (s *matchService) Reschedule(ctx context.Context, orgID, matchID int, input RescheduleInput) (*RescheduledMatch, error) {
	if input.StartAt.IsZero() || input.CourtID <= 0 {
		return nil, fmt.Errorf("%w: court_id and start_at are required", ErrValidationFailed)
	}
	if input.DurationMinutes != nil && *input.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration_minutes must be positive", ErrValidationFailed)
	}

	out := &RescheduledMatch{}
	err := withTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		m, _, err := s.owned(ctx, tx, orgID, matchID)
		if err != nil {
			return err
		}
		if m.Version != input.ExpectedVersion {
			return fmt.Errorf("%w: match %d is at version %d", ErrMatchConflict, m.ID, m.Version)
		}
		if m.Status == models.MatchStatusDone || m.Status == models.MatchStatusCancelled {
			return fmt.Errorf("%w: match %d is %s", ErrMatchFinished, m.ID, m.Status)
		}

		courts, err := s.courtRepo.ListActive(ctx, tx, orgID)
		if err != nil {
			return fmt.Errorf("failed to list courts: %w", err)
		}
		if !hasCourt(courts, input.CourtID) {
			return fmt.Errorf("%w: court %d", ErrNotFound, input.CourtID)
		}
		if err := s.courtRepo.LockCourts(ctx, tx, []int{input.CourtID}); err != nil {
			return notFound(err)
		}

		duration := s.defaultDuration
		if m.DurationMinutes != nil && *m.DurationMinutes > 0 {
			duration = *m.DurationMinutes
		}
		if input.DurationMinutes != nil {
			duration = *input.DurationMinutes
		}
		start := input.StartAt.UTC()
		end := start.Add(minutes(duration))

		candidate := agenda.Entry{
			Kind:       agenda.KindMatchSlot,
			ResourceID: courtResource(input.CourtID),
			SourceID:   matchSource(m.ID),
			Start:      start,
			End:        end,
		}
		var decision agenda.Decision
		ix, err := s.loader.load(ctx, tx, orgID, []int{input.CourtID}, start, end, candidate.SourceID)
		if err != nil {
			s.logger.Warn("agenda load failed, denying reschedule", slog.Int("match_id", m.ID), slog.Any("error", err))
			decision = agenda.FailClosed()
		} else {
			decision = ix.Evaluate(candidate)
		}
		if s.metrics != nil {
			s.metrics.AgendaDecisions.WithLabelValues(string(decision.Reason)).Inc()
		}
		if !decision.Allowed {
			return &AgendaConflictError{MatchID: m.ID, Decision: decision}
		}

		m.CourtID = intPtr(input.CourtID)
		m.StartAt = &start
		m.EndAt = &end
		m.DurationMinutes = intPtr(duration)
		if m.Status == models.MatchStatusPending {
			m.Status = models.MatchStatusScheduled
		}
		if err := s.matchRepo.UpdateSchedule(ctx, tx, m); err != nil {
			return matchWriteErr(m.ID, err)
		}
		out.Match = m
		out.Overridden = decision.Overridden
		return nil
	})
	if err != nil {
		s.countConflict(err)
		return nil, err
	}

	s.logger.Info("match rescheduled",
		slog.Int("match_id", matchID),
		slog.Int("court_id", input.CourtID),
		slog.Time("start_at", *out.Match.StartAt),
		slog.Int("overridden", len(out.Overridden)),
	)
	s.notifier.Publish(out.Match.TournamentID, brackets.EventMatchRescheduled, out.Match)
	return out, nil
}

func (s *matchService) countConflict(err error) {
	if errors.Is(err, ErrMatchConflict) && s.metrics != nil {
		s.metrics.VersionConflicts.WithLabelValues("match").Inc()
	}
}

func matchWriteErr(matchID int, err error) error {
	if errors.Is(err, repositories.ErrVersionConflict) {
		return fmt.Errorf("%w: match %d: %w", ErrMatchConflict, matchID, err)
	}
	return notFound(err)
}
