package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Dosada05/padel-system/brackets"
	"github.com/Dosada05/padel-system/lifecycle"
	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/repositories"
	"github.com/Dosada05/padel-system/storage"
	"github.com/Dosada05/padel-system/utils"
)

const defaultGroupLabel = "A"

type GenerateBracketInput struct {
	// Format overrides the tournament format when set.
	Format models.BracketFormat `json:"format,omitempty"`
	// Seed makes the draw reproducible. Empty means a fresh seed, returned in the result.
	Seed          string `json:"seed,omitempty"`
	TargetSize    int    `json:"target_size,omitempty"`
	PreserveOrder bool   `json:"preserve_order,omitempty"`
}

type GeneratedBracket struct {
	TournamentID int                  `json:"tournament_id"`
	Format       models.BracketFormat `json:"format"`
	Seed         string               `json:"seed"`
	Stages       []*models.Stage      `json:"stages"`
}

type BracketService interface {
	Generate(ctx context.Context, orgID, eventID int, input GenerateBracketInput) (*GeneratedBracket, error)
	ListMatches(ctx context.Context, orgID, eventID int) ([]*models.Match, error)
}

type bracketService struct {
	db             *sql.DB
	tournamentRepo repositories.TournamentRepository
	pairingRepo    repositories.PairingRepository
	matchRepo      repositories.MatchRepository
	notifier       Notifier
	exporter       storage.Exporter
	logger         *slog.Logger
	now            func() time.Time
}

func NewBracketService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	pairingRepo repositories.PairingRepository,
	matchRepo repositories.MatchRepository,
	notifier Notifier,
	exporter storage.Exporter,
	logger *slog.Logger,
) BracketService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if exporter == nil {
		exporter = storage.NopExporter()
	}
	return &bracketService{
		db:             db,
		tournamentRepo: tournamentRepo,
		pairingRepo:    pairingRepo,
		matchRepo:      matchRepo,
		notifier:       notifier,
		exporter:       exporter,
		logger:         logger,
		now:            time.Now,
	}
}

// stagePlan is one stage waiting to be written.
type stagePlan struct {
	stage      models.Stage
	bracket    *brackets.Bracket
	roundType  models.RoundType
	groupLabel *string
	// labelPrefix marks the draw of knockout round labels ("A ").
	labelPrefix string
	// skeleton stages have no known participants yet.
	skeleton bool
}

func (s *bracketService) Generate(ctx context.Context, orgID, eventID int, input GenerateBracketInput) (*GeneratedBracket, error) {
	tournament, err := ownedTournament(ctx, nil, s.tournamentRepo, orgID, eventID)
	if err != nil {
		return nil, err
	}

	format := input.Format
	if format == "" {
		format = tournament.Format
	}
	if !format.Valid() {
		return nil, fmt.Errorf("%w: unknown format %q", ErrValidationFailed, format)
	}

	pairings, err := s.pairingRepo.ListConfirmedByEvent(ctx, nil, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmed pairings of tournament %d: %w", eventID, err)
	}
	roster := make([]int, 0, len(pairings))
	for _, p := range pairings {
		if lifecycle.IsConfirmed(p.Status) {
			roster = append(roster, p.ID)
		}
	}
	if len(roster) < 2 {
		return nil, fmt.Errorf("%w: %d confirmed pairings in tournament %d", ErrNotEnoughTeams, len(roster), eventID)
	}

	seed := input.Seed
	if seed == "" {
		seed = uuid.NewString()
	}
	params := brackets.GenerateBracketParams{
		PairingIDs:    roster,
		Rand:          utils.NewSeededRand(seed),
		TargetSize:    input.TargetSize,
		PreserveOrder: input.PreserveOrder,
	}

	plans, err := s.plan(ctx, format, params)
	if err != nil {
		if errors.Is(err, brackets.ErrBracketTooSmall) || errors.Is(err, brackets.ErrInvalidBracketSize) ||
			errors.Is(err, brackets.ErrNotEnoughParticipants) {
			return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
		}
		return nil, fmt.Errorf("failed to generate bracket for tournament %d: %w", eventID, err)
	}

	result := &GeneratedBracket{TournamentID: eventID, Format: format, Seed: seed}
	err = withTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		started, err := s.matchRepo.CountStarted(ctx, tx, eventID)
		if err != nil {
			return fmt.Errorf("failed to count started matches: %w", err)
		}
		if started > 0 {
			return fmt.Errorf("%w: %d matches", ErrTournamentAlreadyStarted, started)
		}
		if err := s.matchRepo.DeleteSkeleton(ctx, tx, eventID); err != nil {
			return err
		}
		for i := range plans {
			stage, err := s.persistStage(ctx, tx, eventID, &plans[i])
			if err != nil {
				return err
			}
			result.Stages = append(result.Stages, stage)
		}
		return s.tournamentRepo.UpdateGeneration(ctx, tx, eventID, seed, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bracket generated",
		slog.Int("tournament_id", eventID),
		slog.String("format", string(format)),
		slog.Int("pairings", len(roster)),
		slog.String("seed", seed),
	)
	s.notifier.Publish(eventID, brackets.EventBracketGenerated, result)
	s.export(ctx, tournament, result)
	return result, nil
}

func (s *bracketService) ListMatches(ctx context.Context, orgID, eventID int) ([]*models.Match, error) {
	if _, err := ownedTournament(ctx, nil, s.tournamentRepo, orgID, eventID); err != nil {
		return nil, err
	}
	return s.matchRepo.ListByEvent(ctx, nil, eventID)
}

func (s *bracketService) plan(ctx context.Context, format models.BracketFormat, params brackets.GenerateBracketParams) ([]stagePlan, error) {
	group := defaultGroupLabel
	switch format {
	case models.FormatRoundRobin:
		b, err := brackets.NewRoundRobinGenerator().GenerateBracket(ctx, params)
		if err != nil {
			return nil, err
		}
		return []stagePlan{{
			stage:      models.Stage{Name: "Group " + group, Type: models.StageGroups, Order: 1},
			bracket:    b,
			roundType:  models.RoundTypeGroups,
			groupLabel: &group,
		}}, nil

	case models.FormatSingleElimination:
		b, err := brackets.NewSingleEliminationGenerator().GenerateBracket(ctx, params)
		if err != nil {
			return nil, err
		}
		return []stagePlan{{
			stage:     models.Stage{Name: "Main draw", Type: models.StagePlayoff, Order: 1, BracketSize: intPtr(b.Size)},
			bracket:   b,
			roundType: models.RoundTypeKnockout,
		}}, nil

	case models.FormatDrawAB:
		b, err := brackets.NewDrawABGenerator().GenerateBracket(ctx, params)
		if err != nil {
			return nil, err
		}
		return []stagePlan{
			{
				stage:       models.Stage{Name: "Draw A", Type: models.StagePlayoff, Order: 1, BracketSize: intPtr(b.Size)},
				bracket:     b,
				roundType:   models.RoundTypeKnockout,
				labelPrefix: "A ",
			},
			{
				stage:       models.Stage{Name: "Draw B", Type: models.StageConsolation, Order: 2, BracketSize: intPtr(b.Size / 2)},
				bracket:     &brackets.Bracket{Format: models.FormatDrawAB, Size: b.Size / 2, Main: b.Consolation},
				roundType:   models.RoundTypeKnockout,
				labelPrefix: "B ",
			},
		}, nil

	case models.FormatGroupsPlusPlayoff:
		groupParams := params
		groupParams.TargetSize = 0
		groups, err := brackets.NewRoundRobinGenerator().GenerateBracket(ctx, groupParams)
		if err != nil {
			return nil, err
		}
		playoff, err := playoffSkeleton(ctx, len(params.PairingIDs), params.TargetSize)
		if err != nil {
			return nil, err
		}
		return []stagePlan{
			{
				stage:      models.Stage{Name: "Group " + group, Type: models.StageGroups, Order: 1},
				bracket:    groups,
				roundType:  models.RoundTypeGroups,
				groupLabel: &group,
			},
			{
				stage:     models.Stage{Name: "Playoff", Type: models.StagePlayoff, Order: 2, BracketSize: intPtr(playoff.Size)},
				bracket:   playoff,
				roundType: models.RoundTypeKnockout,
				skeleton:  true,
			},
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", brackets.ErrUnknownFormat, format)
}

// playoffSkeleton builds an elimination bracket for the group qualifiers. Seats
// stay empty until the group phase is decided. The default size is four
// qualifiers, two for groups smaller than four.
func playoffSkeleton(ctx context.Context, groupSize, target int) (*brackets.Bracket, error) {
	qualifiers := target
	if qualifiers == 0 {
		qualifiers = 4
		if groupSize < 4 {
			qualifiers = 2
		}
	}
	if qualifiers > groupSize {
		return nil, fmt.Errorf("%w: %d qualifiers from a group of %d", brackets.ErrBracketTooSmall, qualifiers, groupSize)
	}
	seats := make([]int, qualifiers)
	for i := range seats {
		seats[i] = i + 1
	}
	b, err := brackets.NewSingleEliminationGenerator().GenerateBracket(ctx, brackets.GenerateBracketParams{
		PairingIDs:    seats,
		Rand:          utils.NewSeededRand("playoff"),
		TargetSize:    target,
		PreserveOrder: true,
	})
	if err != nil {
		return nil, err
	}
	for _, m := range b.Main {
		m.Participant1ID, m.Participant2ID, m.IsBye = nil, nil, false
	}
	return b, nil
}

// seat is what generation already knows about a match outcome.
type seat struct {
	winner *int
	void   bool
}

// persistStage writes the stage in two passes: matches first, then the
// next-match links. Byes are stored as done with their winner already advanced;
// a match with no possible participant is stored as cancelled.
func (s *bracketService) persistStage(ctx context.Context, tx *sql.Tx, eventID int, plan *stagePlan) (*models.Stage, error) {
	stage := plan.stage
	stage.TournamentID = eventID
	if err := s.matchRepo.CreateStage(ctx, tx, &stage); err != nil {
		return nil, fmt.Errorf("failed to create stage %q: %w", stage.Name, err)
	}

	dbIDs := make(map[string]int, len(plan.bracket.Main))
	outcomes := make(map[string]seat, len(plan.bracket.Main))
	rounds := plan.bracket.Rounds()

	// ПЕРВЫЙ ПРОХОД: создаём матчи
	for _, bm := range plan.bracket.Main {
		match := &models.Match{
			TournamentID: eventID,
			StageID:      stage.ID,
			GroupLabel:   plan.groupLabel,
			RoundType:    plan.roundType,
			Round:        bm.Round,
			OrderInRound: bm.OrderInRound,
			Pairing1ID:   bm.Participant1ID,
			Pairing2ID:   bm.Participant2ID,
			Status:       models.MatchStatusPending,
		}
		if plan.roundType == models.RoundTypeKnockout {
			match.RoundLabel = strPtr(knockoutLabel(plan.labelPrefix, 2*len(rounds[bm.Round-1])))
		}

		if !plan.skeleton && plan.roundType == models.RoundTypeKnockout {
			var src1, src2 *seat
			if bm.Round > 1 {
				o1, o2 := outcomes[derefString(bm.SourceMatch1UID)], outcomes[derefString(bm.SourceMatch2UID)]
				src1, src2 = &o1, &o2
				match.Pairing1ID, match.Pairing2ID = o1.winner, o2.winner
			}
			out := resolveSeat(match.Pairing1ID, match.Pairing2ID, src1, src2)
			outcomes[bm.UID] = out
			switch {
			case out.void:
				match.Status = models.MatchStatusCancelled
			case out.winner != nil:
				match.Status = models.MatchStatusDone
				match.WinnerPairingID = out.winner
			}
		}

		if err := s.matchRepo.Create(ctx, tx, match); err != nil {
			return nil, fmt.Errorf("failed to create match %s: %w", bm.UID, err)
		}
		dbIDs[bm.UID] = match.ID
		stage.Matches = append(stage.Matches, match)
	}

	// ВТОРОЙ ПРОХОД: связи next_match_id / next_match_slot
	for i, bm := range plan.bracket.Main {
		if bm.NextMatchUID == nil || bm.NextSlot == nil {
			continue
		}
		nextID, ok := dbIDs[*bm.NextMatchUID]
		if !ok {
			return nil, fmt.Errorf("match %s points to unknown match %s", bm.UID, *bm.NextMatchUID)
		}
		current := stage.Matches[i]
		if err := s.matchRepo.LinkNext(ctx, tx, current.ID, nextID, *bm.NextSlot); err != nil {
			return nil, fmt.Errorf("failed to link match %d to %d: %w", current.ID, nextID, err)
		}
		current.NextMatchID = intPtr(nextID)
		current.NextMatchSlot = intPtr(*bm.NextSlot)
	}
	return &stage, nil
}

// resolveSeat decides a knockout match at generation time. src1/src2 are the
// feeding matches, nil in the first round.
func resolveSeat(p1, p2 *int, src1, src2 *seat) seat {
	if p1 != nil && p2 != nil {
		return seat{}
	}
	pending := func(src *seat) bool { return src != nil && !src.void && src.winner == nil }
	if pending(src1) || pending(src2) {
		return seat{}
	}
	switch {
	case p1 != nil:
		return seat{winner: p1}
	case p2 != nil:
		return seat{winner: p2}
	}
	return seat{void: true}
}

// knockoutLabel names a round by the number of pairings entering it.
func knockoutLabel(prefix string, alive int) string {
	var name string
	switch alive {
	case 2:
		name = "FINAL"
	case 4:
		name = "SEMIFINAL"
	case 8:
		name = "QUARTERFINAL"
	default:
		name = "R" + strconv.Itoa(alive)
	}
	return prefix + name
}

func (s *bracketService) export(ctx context.Context, tournament *models.Tournament, result *GeneratedBracket) {
	res, err := s.exporter.Export(ctx, storage.Snapshot{
		Kind:      storage.SnapshotBracket,
		EventID:   tournament.ID,
		EventName: tournament.Name,
		RunID:     uuid.NewString(),
		Data:      result,
	})
	if err != nil {
		s.logger.Warn("bracket export failed", slog.Int("tournament_id", tournament.ID), slog.Any("error", err))
		return
	}
	if res != nil {
		s.logger.Info("bracket exported", slog.Int("tournament_id", tournament.ID), slog.String("key", res.Key))
	}
}
