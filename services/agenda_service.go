package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Dosada05/padel-system/agenda"
	"github.com/Dosada05/padel-system/autoschedule"
	"github.com/Dosada05/padel-system/metrics"
	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/repositories"
)

type AgendaCheckInput struct {
	Kind    agenda.Kind `json:"type"`
	CourtID int         `json:"court_id"`
	Start   time.Time   `json:"starts_at"`
	End     time.Time   `json:"ends_at"`
	// SourceID names the occupant being moved so that its current entry is ignored, e.g. "match:12".
	SourceID string `json:"source_id,omitempty"`
}

type AgendaService interface {
	// Check returns the conflict engine decision for the candidate. When the
	// court agenda cannot be loaded the decision is MISSING_EXISTING_DATA.
	Check(ctx context.Context, orgID int, input AgendaCheckInput) (agenda.Decision, error)
}

type agendaService struct {
	courtRepo repositories.CourtRepository
	loader    *agendaLoader
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewAgendaService(
	courtRepo repositories.CourtRepository,
	matchRepo repositories.MatchRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) AgendaService {
	return &agendaService{
		courtRepo: courtRepo,
		loader:    &agendaLoader{courtRepo: courtRepo, matchRepo: matchRepo, now: time.Now},
		metrics:   m,
		logger:    logger,
	}
}

func (s *agendaService) Check(ctx context.Context, orgID int, input AgendaCheckInput) (agenda.Decision, error) {
	if !input.Kind.Valid() {
		return agenda.Decision{}, fmt.Errorf("%w: unknown agenda type %q", ErrValidationFailed, input.Kind)
	}
	if !input.End.After(input.Start) {
		return agenda.Decision{}, fmt.Errorf("%w: ends_at must be after starts_at", ErrValidationFailed)
	}
	courts, err := s.courtRepo.ListActive(ctx, nil, orgID)
	if err != nil {
		s.logger.Warn("agenda check without court list", slog.Int("org_id", orgID), slog.Any("error", err))
		return s.record(agenda.FailClosed()), nil
	}
	if !hasCourt(courts, input.CourtID) {
		return agenda.Decision{}, fmt.Errorf("%w: court %d", ErrNotFound, input.CourtID)
	}

	ix, err := s.loader.load(ctx, nil, orgID, []int{input.CourtID}, input.Start, input.End, input.SourceID)
	if err != nil {
		s.logger.Warn("agenda load failed, denying candidate",
			slog.Int("court_id", input.CourtID),
			slog.String("reason", string(agenda.ReasonMissingExistingData)),
			slog.Any("error", err),
		)
		return s.record(agenda.FailClosed()), nil
	}
	return s.record(ix.Evaluate(agenda.Entry{
		Kind:       input.Kind,
		ResourceID: courtResource(input.CourtID),
		SourceID:   input.SourceID,
		Start:      input.Start,
		End:        input.End,
	})), nil
}

func (s *agendaService) record(d agenda.Decision) agenda.Decision {
	if s.metrics != nil {
		s.metrics.AgendaDecisions.WithLabelValues(string(d.Reason)).Inc()
	}
	return d
}

func hasCourt(courts []models.Court, id int) bool {
	for _, c := range courts {
		if c.ID == id {
			return true
		}
	}
	return false
}

func courtResource(id int) string { return "court:" + strconv.Itoa(id) }

func matchSource(id int) string { return "match:" + strconv.Itoa(id) }

// agendaLoader builds the occupancy index of a set of courts from blocks,
// active bookings and scheduled matches.
type agendaLoader struct {
	courtRepo repositories.CourtRepository
	matchRepo repositories.MatchRepository
	now       func() time.Time
}

var errNoCourts = errors.New("no courts to load")

// load reads the agenda of courtIDs overlapping [from, to). Entries whose
// source is in skip are left out. Every requested court is tracked even when
// empty, so a court missing from the index means it was never loaded.
func (l *agendaLoader) load(ctx context.Context, exec repositories.SQLExecutor, orgID int, courtIDs []int, from, to time.Time, skip ...string) (*agenda.Index, error) {
	if len(courtIDs) == 0 {
		return nil, errNoCourts
	}
	blocks, err := l.courtRepo.ListBlocks(ctx, exec, orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("blocks: %w", err)
	}
	bookings, err := l.courtRepo.ListBookings(ctx, exec, courtIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("bookings: %w", err)
	}
	matches, err := l.matchRepo.ListOnCourts(ctx, exec, courtIDs, from, to, autoschedule.DefaultDurationMinutes)
	if err != nil {
		return nil, fmt.Errorf("matches: %w", err)
	}

	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		if s != "" {
			skipped[s] = true
		}
	}
	ix := agenda.NewIndex()
	add := func(e agenda.Entry) {
		if !skipped[e.SourceID] {
			ix.Add(e)
		}
	}
	for _, id := range courtIDs {
		ix.Track(courtResource(id))
	}

	for _, b := range blocks {
		kind := agenda.KindHardBlock
		if b.Kind == models.BlockKindSoft {
			kind = agenda.KindSoftBlock
		}
		targets := courtIDs
		if b.CourtID != nil {
			targets = []int{*b.CourtID}
		}
		for _, c := range targets {
			if !ix.Known(courtResource(c)) {
				continue
			}
			add(agenda.Entry{
				Kind:       kind,
				ResourceID: courtResource(c),
				SourceID:   "block:" + strconv.Itoa(b.ID),
				Start:      b.StartsAt,
				End:        b.EndsAt,
			})
		}
	}
	now := l.now()
	for _, b := range bookings {
		if !b.IsActive(now) {
			continue
		}
		add(agenda.Entry{
			Kind:       agenda.KindBooking,
			ResourceID: courtResource(b.CourtID),
			SourceID:   "booking:" + strconv.Itoa(b.ID),
			Start:      b.StartsAt,
			End:        b.EndsAt(),
		})
	}
	for _, m := range matches {
		if m.CourtID == nil || m.StartAt == nil {
			continue
		}
		add(agenda.Entry{
			Kind:       agenda.KindMatchSlot,
			ResourceID: courtResource(*m.CourtID),
			SourceID:   matchSource(m.ID),
			Start:      *m.StartAt,
			End:        matchEnd(m, autoschedule.DefaultDurationMinutes),
		})
	}
	return ix, nil
}

// matchEnd is the stored end, else start plus duration, else start plus fallback minutes.
func matchEnd(m *models.Match, fallbackMinutes int) time.Time {
	if m.EndAt != nil {
		return *m.EndAt
	}
	d := fallbackMinutes
	if m.DurationMinutes != nil && *m.DurationMinutes > 0 {
		d = *m.DurationMinutes
	}
	return m.StartAt.Add(minutes(d))
}
