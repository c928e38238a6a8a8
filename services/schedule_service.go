package services

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/padel-system/agenda"
	"github.com/Dosada05/padel-system/autoschedule"
	"github.com/Dosada05/padel-system/brackets"
	"github.com/Dosada05/padel-system/config"
	"github.com/Dosada05/padel-system/metrics"
	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/repositories"
	"github.com/Dosada05/padel-system/storage"
)

// AutoScheduleInput describes one run. Nil numbers fall back to the engine defaults.
type AutoScheduleInput struct {
	WindowStart     time.Time             `json:"window_start"`
	WindowEnd       time.Time             `json:"window_end"`
	DurationMinutes *int                  `json:"duration_minutes,omitempty"`
	SlotMinutes     *int                  `json:"slot_minutes,omitempty"`
	BufferMinutes   *int                  `json:"buffer_minutes,omitempty"`
	MinRestMinutes  *int                  `json:"min_rest_minutes,omitempty"`
	Priority        autoschedule.Priority `json:"priority,omitempty"`
	// MatchIDs limits the run to these matches; empty means every unscheduled match.
	MatchIDs []int `json:"match_ids,omitempty"`
	DryRun   bool  `json:"dry_run"`
}

type ScheduleResult struct {
	RunID  string            `json:"run_id"`
	DryRun bool              `json:"dry_run"`
	Plan   autoschedule.Plan `json:"plan"`
	// Overridden lists lower priority entries now under a placed match; the organizer relocates them.
	Overridden []agenda.Entry `json:"overridden,omitempty"`
}

type ScheduleService interface {
	AutoSchedule(ctx context.Context, orgID, eventID int, input AutoScheduleInput) (*ScheduleResult, error)
}

type scheduleService struct {
	db               *sql.DB
	tournamentRepo   repositories.TournamentRepository
	matchRepo        repositories.MatchRepository
	pairingRepo      repositories.PairingRepository
	courtRepo        repositories.CourtRepository
	availabilityRepo repositories.AvailabilityRepository
	loader           *agendaLoader
	defaults         config.SchedulerDefaults
	notifier         Notifier
	exporter         storage.Exporter
	metrics          *metrics.Metrics
	logger           *slog.Logger
	now              func() time.Time
}

func NewScheduleService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	pairingRepo repositories.PairingRepository,
	courtRepo repositories.CourtRepository,
	availabilityRepo repositories.AvailabilityRepository,
	defaults config.SchedulerDefaults,
	notifier Notifier,
	exporter storage.Exporter,
	m *metrics.Metrics,
	logger *slog.Logger,
) ScheduleService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if exporter == nil {
		exporter = storage.NopExporter()
	}
	return &scheduleService{
		db:               db,
		tournamentRepo:   tournamentRepo,
		matchRepo:        matchRepo,
		pairingRepo:      pairingRepo,
		courtRepo:        courtRepo,
		availabilityRepo: availabilityRepo,
		loader:           &agendaLoader{courtRepo: courtRepo, matchRepo: matchRepo, now: time.Now},
		defaults:         defaults,
		notifier:         notifier,
		exporter:         exporter,
		metrics:          m,
		logger:           logger,
		now:              time.Now,
	}
}

// snapshot is everything a run reads before planning.
type snapshot struct {
	matches        []*models.Match
	foreign        []*models.Match
	courts         []models.Court
	blocks         []models.CourtBlock
	bookings       []models.CourtBooking
	unavailability []models.PlayerUnavailability
	players        map[int][]int
}

func (s *scheduleService) AutoSchedule(ctx context.Context, orgID, eventID int, input AutoScheduleInput) (*ScheduleResult, error) {
	started := s.now()
	cfg, err := s.config(input)
	if err != nil {
		return nil, err
	}

	tournament, err := ownedTournament(ctx, nil, s.tournamentRepo, orgID, eventID)
	if err != nil {
		return nil, err
	}

	margin := minutes(cfg.BufferMinutes + cfg.MinRestMinutes)
	from, to := cfg.WindowStart.Add(-margin), cfg.WindowEnd.Add(margin)
	snap, err := s.loadSnapshot(ctx, orgID, eventID, from, to, cfg.DurationMinutes)
	if err != nil {
		return nil, err
	}

	in := s.buildInput(cfg, snap, input.MatchIDs)
	plan := autoschedule.Compute(in)
	result := &ScheduleResult{RunID: uuid.NewString(), DryRun: input.DryRun, Plan: plan}

	if !input.DryRun && len(plan.Scheduled) > 0 {
		overridden, err := s.commit(ctx, orgID, snap.matches, plan.Scheduled, from, to)
		if err != nil {
			return nil, err
		}
		result.Overridden = overridden
		for _, p := range plan.Scheduled {
			s.notifier.Publish(eventID, brackets.EventMatchRescheduled, p)
		}
		s.export(ctx, tournament, result)
	}

	if s.metrics != nil {
		s.metrics.ScheduleDuration.Observe(s.now().Sub(started).Seconds())
		if !input.DryRun {
			s.metrics.ScheduledMatches.Add(float64(len(plan.Scheduled)))
			for _, sk := range plan.Skipped {
				s.metrics.SkippedMatches.WithLabelValues(string(sk.Reason)).Inc()
			}
		}
	}
	s.logger.Info("auto-schedule finished",
		slog.Int("tournament_id", eventID),
		slog.String("run_id", result.RunID),
		slog.Bool("dry_run", input.DryRun),
		slog.Int("placed", len(plan.Scheduled)),
		slog.Int("skipped", len(plan.Skipped)),
	)
	return result, nil
}

func (s *scheduleService) config(input AutoScheduleInput) (autoschedule.Config, error) {
	pick := func(v *int, def int) int {
		if v != nil {
			return *v
		}
		return def
	}
	cfg := autoschedule.Config{
		WindowStart:     input.WindowStart,
		WindowEnd:       input.WindowEnd,
		DurationMinutes: pick(input.DurationMinutes, s.defaults.DurationMinutes),
		SlotMinutes:     pick(input.SlotMinutes, s.defaults.SlotMinutes),
		BufferMinutes:   pick(input.BufferMinutes, s.defaults.BufferMinutes),
		MinRestMinutes:  pick(input.MinRestMinutes, s.defaults.MinRestMinutes),
		Priority:        input.Priority,
	}
	if cfg.Priority == "" {
		cfg.Priority = autoschedule.Priority(s.defaults.Priority)
	}

	switch {
	case cfg.WindowStart.IsZero() || !cfg.WindowEnd.After(cfg.WindowStart):
		return cfg, fmt.Errorf("%w: window_end must be after window_start", ErrValidationFailed)
	case cfg.DurationMinutes <= 0 || cfg.SlotMinutes <= 0:
		return cfg, fmt.Errorf("%w: duration and slot must be positive", ErrValidationFailed)
	case cfg.BufferMinutes < 0 || cfg.MinRestMinutes < 0:
		return cfg, fmt.Errorf("%w: buffer and rest cannot be negative", ErrValidationFailed)
	case !cfg.Priority.Valid():
		return cfg, fmt.Errorf("%w: unknown priority %q", ErrValidationFailed, cfg.Priority)
	}
	return cfg, nil
}

// loadSnapshot reads the planning inputs concurrently. Court dependent reads
// run once the court list is known. Matches stored without a length are
// loaded as lasting durationMinutes, the same default the planner applies.
func (s *scheduleService) loadSnapshot(ctx context.Context, orgID, eventID int, from, to time.Time, durationMinutes int) (*snapshot, error) {
	snap := &snapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.matches, err = s.matchRepo.ListByEvent(gctx, nil, eventID)
		return wrapLoad("matches", err)
	})
	g.Go(func() error {
		var err error
		snap.courts, err = s.courtRepo.ListActive(gctx, nil, orgID)
		return wrapLoad("courts", err)
	})
	g.Go(func() error {
		var err error
		snap.blocks, err = s.courtRepo.ListBlocks(gctx, nil, orgID, from, to)
		return wrapLoad("court blocks", err)
	})
	g.Go(func() error {
		var err error
		snap.unavailability, err = s.availabilityRepo.ListByEvent(gctx, nil, eventID, from, to)
		return wrapLoad("player unavailability", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	courtIDs := make([]int, len(snap.courts))
	for i, c := range snap.courts {
		courtIDs[i] = c.ID
	}
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.bookings, err = s.courtRepo.ListBookings(gctx, nil, courtIDs, from, to)
		return wrapLoad("court bookings", err)
	})
	g.Go(func() error {
		var err error
		snap.foreign, err = s.matchRepo.ListOnCourts(gctx, nil, courtIDs, from, to, durationMinutes)
		return wrapLoad("matches on courts", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pairingIDs := make([]int, 0, 2*len(snap.matches))
	seen := make(map[int]bool)
	for _, group := range [][]*models.Match{snap.matches, snap.foreign} {
		for _, m := range group {
			for _, id := range m.PairingIDs() {
				if !seen[id] {
					seen[id] = true
					pairingIDs = append(pairingIDs, id)
				}
			}
		}
	}
	players, err := s.pairingRepo.PlayersByPairing(ctx, nil, pairingIDs)
	if err != nil {
		return nil, wrapLoad("pairing players", err)
	}
	snap.players = players
	return snap, nil
}

func wrapLoad(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrAgendaDataUnavailable, what, err)
}

func (s *scheduleService) buildInput(cfg autoschedule.Config, snap *snapshot, only []int) autoschedule.Input {
	in := autoschedule.Input{
		Config:         cfg,
		PairingPlayers: snap.players,
	}
	wanted := make(map[int]bool, len(only))
	for _, id := range only {
		wanted[id] = true
	}

	existing := make(map[int]bool)
	addExisting := func(m *models.Match) {
		if existing[m.ID] || m.StartAt == nil || m.Status == models.MatchStatusCancelled {
			return
		}
		existing[m.ID] = true
		em := autoschedule.ExistingMatch{
			ID:         m.ID,
			CourtID:    m.CourtID,
			Start:      *m.StartAt,
			End:        m.EndAt,
			Pairing1ID: m.Pairing1ID,
			Pairing2ID: m.Pairing2ID,
		}
		if m.DurationMinutes != nil {
			em.DurationMinutes = *m.DurationMinutes
		}
		in.Scheduled = append(in.Scheduled, em)
	}

	for _, m := range snap.matches {
		switch {
		case m.StartAt != nil:
			addExisting(m)
		case m.Status == models.MatchStatusPending || m.Status == models.MatchStatusScheduled:
			if len(wanted) > 0 && !wanted[m.ID] {
				continue
			}
			um := autoschedule.Match{
				ID:         m.ID,
				Pairing1ID: m.Pairing1ID,
				Pairing2ID: m.Pairing2ID,
				RoundType:  m.RoundType,
				RoundLabel: derefString(m.RoundLabel),
				CourtID:    m.CourtID,
			}
			if m.DurationMinutes != nil {
				um.DurationMinutes = *m.DurationMinutes
			}
			in.Unscheduled = append(in.Unscheduled, um)
		}
	}
	for _, m := range snap.foreign {
		addExisting(m)
	}

	for _, c := range snap.courts {
		in.CourtIDs = append(in.CourtIDs, c.ID)
	}
	// Hard blocks and active bookings close the court; soft blocks stay open
	// to matches and are reported as overridden at commit.
	for _, b := range snap.blocks {
		if b.Kind == models.BlockKindHard {
			in.CourtBlocks = append(in.CourtBlocks, autoschedule.Block{CourtID: b.CourtID, Start: b.StartsAt, End: b.EndsAt})
		}
	}
	now := s.now()
	for _, b := range snap.bookings {
		if b.IsActive(now) {
			in.CourtBlocks = append(in.CourtBlocks, autoschedule.Block{CourtID: intPtr(b.CourtID), Start: b.StartsAt, End: b.EndsAt()})
		}
	}
	for _, u := range snap.unavailability {
		in.Unavailability = append(in.Unavailability, autoschedule.Unavailability{PlayerID: u.PlayerID, Start: u.StartsAt, End: u.EndsAt})
	}
	return in
}

// commit writes the placements in one transaction. The courts are locked and
// their agenda reloaded, then each placement is re-validated by the conflict
// engine in court, start, match order; accepted placements join the index so
// later ones see them.
func (s *scheduleService) commit(ctx context.Context, orgID int, matches []*models.Match, placements []autoschedule.Placement, from, to time.Time) ([]agenda.Entry, error) {
	byID := make(map[int]*models.Match, len(matches))
	for _, m := range matches {
		byID[m.ID] = m
	}
	ordered := slices.Clone(placements)
	slices.SortFunc(ordered, func(a, b autoschedule.Placement) int {
		if c := cmp.Compare(a.CourtID, b.CourtID); c != 0 {
			return c
		}
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.MatchID, b.MatchID)
	})

	courtIDs := make([]int, 0)
	skip := make([]string, 0, len(ordered))
	for _, p := range ordered {
		if len(courtIDs) == 0 || courtIDs[len(courtIDs)-1] != p.CourtID {
			courtIDs = append(courtIDs, p.CourtID)
		}
		skip = append(skip, matchSource(p.MatchID))
	}

	var overridden []agenda.Entry
	err := withTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		if err := s.courtRepo.LockCourts(ctx, tx, courtIDs); err != nil {
			return notFound(err)
		}
		ix, loadErr := s.loader.load(ctx, tx, orgID, courtIDs, from, to, skip...)

		for _, p := range ordered {
			candidate := agenda.Entry{
				Kind:       agenda.KindMatchSlot,
				ResourceID: courtResource(p.CourtID),
				SourceID:   matchSource(p.MatchID),
				Start:      p.Start,
				End:        p.End,
			}
			var decision agenda.Decision
			if loadErr != nil {
				decision = agenda.FailClosed()
			} else {
				decision = ix.Evaluate(candidate)
			}
			if s.metrics != nil {
				s.metrics.AgendaDecisions.WithLabelValues(string(decision.Reason)).Inc()
			}
			if !decision.Allowed {
				if loadErr != nil {
					s.logger.Warn("agenda reload failed at commit", slog.Int("match_id", p.MatchID), slog.Any("error", loadErr))
				}
				return &AgendaConflictError{MatchID: p.MatchID, Decision: decision}
			}
			overridden = append(overridden, decision.Overridden...)
			ix.Add(candidate)

			m, ok := byID[p.MatchID]
			if !ok {
				return fmt.Errorf("placement for unknown match %d", p.MatchID)
			}
			start, end := p.Start, p.End
			m.CourtID = intPtr(p.CourtID)
			m.StartAt = &start
			m.EndAt = &end
			m.DurationMinutes = intPtr(p.DurationMinutes)
			m.Status = models.MatchStatusScheduled
			if err := s.matchRepo.UpdateSchedule(ctx, tx, m); err != nil {
				if errors.Is(err, repositories.ErrVersionConflict) {
					return fmt.Errorf("%w: match %d: %w", ErrMatchConflict, m.ID, err)
				}
				return notFound(err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMatchConflict) {
			if s.metrics != nil {
				s.metrics.VersionConflicts.WithLabelValues("match").Inc()
			}
			s.logger.Info("auto-schedule lost a race, plan must be recomputed", slog.Any("error", err))
		}
		return nil, err
	}
	return overridden, nil
}

func (s *scheduleService) export(ctx context.Context, tournament *models.Tournament, result *ScheduleResult) {
	res, err := s.exporter.Export(ctx, storage.Snapshot{
		Kind:      storage.SnapshotSchedule,
		EventID:   tournament.ID,
		EventName: tournament.Name,
		RunID:     result.RunID,
		Data:      result,
	})
	if err != nil {
		s.logger.Warn("schedule export failed", slog.Int("tournament_id", tournament.ID), slog.Any("error", err))
		return
	}
	if res != nil {
		s.logger.Info("schedule exported", slog.Int("tournament_id", tournament.ID), slog.String("key", res.Key))
	}
}
