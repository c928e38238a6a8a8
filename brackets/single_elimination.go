package brackets

import (
	"context"
	"fmt"
	"math/bits"
	"slices"

	"github.com/Dosada05/padel-system/models"
)

type BracketMatch struct {
	UID          string
	Round        int
	OrderInRound int

	Participant1ID *int
	Participant2ID *int

	SourceMatch1UID *string
	SourceMatch2UID *string

	// NextMatchUID and NextSlot (1 or 2) tell where the winner goes. Nil for finals and round robin.
	NextMatchUID *string
	NextSlot     *int

	// IsBye marks a first round match with exactly one side filled.
	IsBye bool
}

type SingleEliminationGenerator struct {
}

func NewSingleEliminationGenerator() BracketGenerator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

// NextPowerOfTwo returns the smallest power of two >= n.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// BracketSize resolves the bracket size for n teams and an optional target.
func BracketSize(n, target int) (int, error) {
	if target == 0 {
		return NextPowerOfTwo(n), nil
	}
	if target < n {
		return 0, fmt.Errorf("%w: size %d for %d pairings", ErrBracketTooSmall, target, n)
	}
	if !isPowerOfTwo(target) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidBracketSize, target)
	}
	return target, nil
}

func (g *SingleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) (*Bracket, error) {
	if err := validateParams(ctx, params); err != nil {
		return nil, err
	}
	size, err := BracketSize(len(params.PairingIDs), params.TargetSize)
	if err != nil {
		return nil, err
	}

	ordered := slices.Clone(params.PairingIDs)
	if !params.PreserveOrder {
		params.Rand.Shuffle(len(ordered), func(i, j int) {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		})
	}

	// пустые слоты в конце сетки
	seats := make([]*int, size)
	for i := range ordered {
		id := ordered[i]
		seats[i] = &id
	}

	numRounds := bits.Len(uint(size)) - 1
	matches := make([]*BracketMatch, 0, size-1)

	for r := 1; r <= numRounds; r++ {
		count := size >> r
		for m := 1; m <= count; m++ {
			bm := &BracketMatch{
				UID:          matchUID(r, m),
				Round:        r,
				OrderInRound: m,
			}
			if r == 1 {
				bm.Participant1ID = seats[2*(m-1)]
				bm.Participant2ID = seats[2*m-1]
				bm.IsBye = (bm.Participant1ID == nil) != (bm.Participant2ID == nil)
			} else {
				src1, src2 := matchUID(r-1, 2*m-1), matchUID(r-1, 2*m)
				bm.SourceMatch1UID = &src1
				bm.SourceMatch2UID = &src2
			}
			if r < numRounds {
				next := matchUID(r+1, (m+1)/2)
				slot := 2 - m%2
				bm.NextMatchUID = &next
				bm.NextSlot = &slot
			}
			matches = append(matches, bm)
		}
	}

	return &Bracket{
		Format: models.FormatSingleElimination,
		Size:   size,
		Main:   matches,
	}, nil
}

// DrawABGenerator builds a main draw plus a consolation draw that is filled
// later as first round losers drop down.
type DrawABGenerator struct {
	main SingleEliminationGenerator
}

func NewDrawABGenerator() BracketGenerator {
	return &DrawABGenerator{}
}

func (g *DrawABGenerator) GetName() string {
	return "DrawAB"
}

func (g *DrawABGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) (*Bracket, error) {
	b, err := g.main.GenerateBracket(ctx, params)
	if err != nil {
		return nil, err
	}
	b.Format = models.FormatDrawAB
	b.Consolation = []*BracketMatch{}
	return b, nil
}
