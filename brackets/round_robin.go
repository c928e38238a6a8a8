package brackets

import (
	"context"
	"slices"

	"github.com/Dosada05/padel-system/models"
)

// bye is the sentinel seat added when the team count is odd.
const bye = -1

type RoundRobinGenerator struct{}

func NewRoundRobinGenerator() BracketGenerator {
	return &RoundRobinGenerator{}
}

func (g *RoundRobinGenerator) GetName() string {
	return "RoundRobin"
}

// GenerateBracket schedules every pairing against every other one with the
// circle method: seat 0 stays fixed and the other seats rotate one step per
// round. Matches against the bye seat are dropped. Which side is listed first
// is a seeded coin flip and has no competitive effect.
func (g *RoundRobinGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) (*Bracket, error) {
	if err := validateParams(ctx, params); err != nil {
		return nil, err
	}

	seats := slices.Clone(params.PairingIDs)
	if len(seats)%2 != 0 {
		seats = append(seats, bye)
	}
	n := len(seats)

	matches := make([]*BracketMatch, 0, n*(n-1)/2)
	for r := 1; r <= n-1; r++ {
		order := 0
		for i := 0; i < n/2; i++ {
			home, away := seats[i], seats[n-1-i]
			if home == bye || away == bye {
				continue
			}
			if params.Rand.IntN(2) == 1 {
				home, away = away, home
			}
			order++
			matches = append(matches, &BracketMatch{
				UID:            matchUID(r, order),
				Round:          r,
				OrderInRound:   order,
				Participant1ID: &home,
				Participant2ID: &away,
			})
		}
		// rotate right, keeping seat 0 in place
		last := seats[n-1]
		copy(seats[2:], seats[1:n-1])
		seats[1] = last
	}

	return &Bracket{
		Format: models.FormatRoundRobin,
		Main:   matches,
	}, nil
}
