package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dosada05/padel-system/matchmaking"
)

type GenerateRoundInput struct {
	// Players in priority order; the first four share the first court.
	Players []int `json:"players"`
	// Previous round, when any, steers the new groupings away from repeats.
	Previous *matchmaking.Round `json:"previous,omitempty"`
}

type MatchmakingService interface {
	GenerateRound(ctx context.Context, input GenerateRoundInput) (*matchmaking.Round, error)
}

type matchmakingService struct {
	logger *slog.Logger
}

func NewMatchmakingService(logger *slog.Logger) MatchmakingService {
	return &matchmakingService{logger: logger}
}

func (s *matchmakingService) GenerateRound(ctx context.Context, input GenerateRoundInput) (*matchmaking.Round, error) {
	if len(input.Players) == 0 {
		return nil, fmt.Errorf("%w: players are required", ErrValidationFailed)
	}
	seen := make(map[int]struct{}, len(input.Players))
	for _, id := range input.Players {
		if id <= 0 {
			return nil, fmt.Errorf("%w: invalid player id %d", ErrValidationFailed, id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: player %d listed twice", ErrValidationFailed, id)
		}
		seen[id] = struct{}{}
	}

	var history *matchmaking.History
	if input.Previous != nil {
		history = matchmaking.HistoryOf(*input.Previous)
	}
	round := matchmaking.Generate(input.Players, history)

	s.logger.DebugContext(ctx, "matchmaking round generated",
		slog.Int("players", len(input.Players)),
		slog.Int("groups", len(round.Groups)),
		slog.Int("byes", len(round.Byes)),
	)
	return &round, nil
}
