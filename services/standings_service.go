package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/repositories"
	"github.com/Dosada05/padel-system/standings"
	"github.com/Dosada05/padel-system/utils"
)

type StandingsService interface {
	// Rebuild recomputes the table of a group from all of its matches and replaces the stored rows.
	Rebuild(ctx context.Context, orgID, eventID int, group string) ([]*models.GroupStanding, error)
	Get(ctx context.Context, orgID, eventID int, group string) ([]*models.GroupStanding, error)
}

type standingsService struct {
	db             *sql.DB
	tournamentRepo repositories.TournamentRepository
	rebuilder      *groupRebuilder
	standingRepo   repositories.StandingRepository
	logger         *slog.Logger
}

func NewStandingsService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	standingRepo repositories.StandingRepository,
	rules []standings.Rule,
	logger *slog.Logger,
) StandingsService {
	return &standingsService{
		db:             db,
		tournamentRepo: tournamentRepo,
		rebuilder:      newGroupRebuilder(matchRepo, standingRepo, rules),
		standingRepo:   standingRepo,
		logger:         logger,
	}
}

func (s *standingsService) Rebuild(ctx context.Context, orgID, eventID int, group string) ([]*models.GroupStanding, error) {
	var rows []*models.GroupStanding
	err := withTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		tournament, err := ownedTournament(ctx, tx, s.tournamentRepo, orgID, eventID)
		if err != nil {
			return err
		}
		rows, err = s.rebuilder.rebuild(ctx, tx, tournament, group)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("standings rebuilt", slog.Int("tournament_id", eventID), slog.String("group", group), slog.Int("rows", len(rows)))
	return rows, nil
}

func (s *standingsService) Get(ctx context.Context, orgID, eventID int, group string) ([]*models.GroupStanding, error) {
	if _, err := ownedTournament(ctx, nil, s.tournamentRepo, orgID, eventID); err != nil {
		return nil, err
	}
	return s.standingRepo.ListByGroup(ctx, nil, eventID, group)
}

// groupRebuilder recomputes a group table inside the caller's transaction.
type groupRebuilder struct {
	matchRepo    repositories.MatchRepository
	standingRepo repositories.StandingRepository
	rules        []standings.Rule
}

func newGroupRebuilder(matchRepo repositories.MatchRepository, standingRepo repositories.StandingRepository, rules []standings.Rule) *groupRebuilder {
	if len(rules) == 0 {
		rules = standings.DefaultRules()
	}
	return &groupRebuilder{matchRepo: matchRepo, standingRepo: standingRepo, rules: rules}
}

func (g *groupRebuilder) rebuild(ctx context.Context, tx *sql.Tx, tournament *models.Tournament, group string) ([]*models.GroupStanding, error) {
	matches, err := g.matchRepo.ListByGroup(ctx, tx, tournament.ID, group)
	if err != nil {
		return nil, fmt.Errorf("failed to load matches of group %s: %w", group, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: group %s has no matches", ErrNotFound, group)
	}

	var (
		roster  []int
		results []standings.Result
	)
	for _, m := range matches {
		roster = append(roster, m.PairingIDs()...)
		if m.Pairing1ID == nil || m.Pairing2ID == nil {
			continue
		}
		results = append(results, standings.Result{
			MatchID:    m.ID,
			Pairing1ID: *m.Pairing1ID,
			Pairing2ID: *m.Pairing2ID,
			Status:     m.Status,
			Sets:       m.Sets,
		})
	}

	// монетка детерминирована: seed турнира + группа
	rng := utils.NewSeededRand(derefString(tournament.GenerationSeed) + "/" + group)
	table, err := standings.Compute(roster, results, g.rules, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	rows := make([]*models.GroupStanding, len(table))
	for i, r := range table {
		rows[i] = &models.GroupStanding{
			TournamentID: tournament.ID,
			GroupLabel:   group,
			PairingID:    r.PairingID,
			Rank:         r.Rank,
			Played:       r.Played,
			Wins:         r.Wins,
			Losses:       r.Losses,
			SetDiff:      r.SetDiff(),
			GameDiff:     r.GameDiff(),
		}
	}
	if err := g.standingRepo.ReplaceGroup(ctx, tx, tournament.ID, group, rows); err != nil {
		return nil, fmt.Errorf("failed to store standings of group %s: %w", group, err)
	}
	return rows, nil
}

// ownedTournament loads the tournament and hides tournaments of other organizations.
func ownedTournament(ctx context.Context, exec repositories.SQLExecutor, repo repositories.TournamentRepository, orgID, eventID int) (*models.Tournament, error) {
	t, err := repo.GetByID(ctx, exec, eventID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, notFound(err)
		}
		return nil, err
	}
	if t.OrganizationID != orgID {
		return nil, fmt.Errorf("%w: tournament %d", ErrNotFound, eventID)
	}
	return t, nil
}
