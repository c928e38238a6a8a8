package brackets

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/Dosada05/padel-system/models"
)

var (
	ErrNotEnoughParticipants = errors.New("at least two pairings are required")
	ErrBracketTooSmall       = errors.New("BRACKET_TOO_SMALL")
	ErrInvalidBracketSize    = errors.New("INVALID_BRACKET_SIZE")
	ErrMissingRand           = errors.New("a seeded random source is required")
	ErrUnknownFormat         = errors.New("unknown bracket format")
)

type GenerateBracketParams struct {
	PairingIDs []int
	// Rand drives shuffles and home/away flips. Callers seed it; generators never create one.
	Rand *rand.Rand
	// TargetSize is the elimination bracket size; zero means the next power of two.
	TargetSize int
	// PreserveOrder keeps PairingIDs in the given seed order instead of shuffling.
	PreserveOrder bool
}

// Bracket is a generated stage skeleton. Consolation is only used by Draw A/B
// and starts empty.
type Bracket struct {
	Format      models.BracketFormat
	Size        int
	Main        []*BracketMatch
	Consolation []*BracketMatch
}

// Rounds groups the main matches by round, in order.
func (b *Bracket) Rounds() [][]*BracketMatch {
	var rounds [][]*BracketMatch
	for _, m := range b.Main {
		for len(rounds) < m.Round {
			rounds = append(rounds, nil)
		}
		rounds[m.Round-1] = append(rounds[m.Round-1], m)
	}
	return rounds
}

type BracketGenerator interface {
	GenerateBracket(ctx context.Context, params GenerateBracketParams) (*Bracket, error)

	GetName() string
}

// NewGenerator returns the generator for a single-stage format.
func NewGenerator(format models.BracketFormat) (BracketGenerator, error) {
	switch format {
	case models.FormatRoundRobin:
		return NewRoundRobinGenerator(), nil
	case models.FormatSingleElimination:
		return NewSingleEliminationGenerator(), nil
	case models.FormatDrawAB:
		return NewDrawABGenerator(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

func validateParams(ctx context.Context, params GenerateBracketParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if params.Rand == nil {
		return ErrMissingRand
	}
	if len(params.PairingIDs) < 2 {
		return fmt.Errorf("%w: got %d", ErrNotEnoughParticipants, len(params.PairingIDs))
	}
	return nil
}

func matchUID(round, order int) string {
	return fmt.Sprintf("R%dM%d", round, order)
}
