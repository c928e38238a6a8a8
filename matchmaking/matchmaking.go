// Package matchmaking builds the next round of doubles groupings from an
// ordered roster, steering away from partnerships and rivalries of the
// previous round.
package matchmaking

const (
	TeammateRepeatPenalty = 100
	OpponentRepeatPenalty = 10
)

// Team is two players sharing a side.
type Team [2]int

// Group is one court: two teams facing each other.
type Group struct {
	TeamA Team `json:"team_a"`
	TeamB Team `json:"team_b"`
}

// Round is the outcome of one generation. Byes lists players left without a group.
type Round struct {
	Groups []Group `json:"groups"`
	Byes   []int   `json:"byes"`
}

type pair struct{ lo, hi int }

func newPair(a, b int) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

// History is the set of teammate and opponent pairs formed in the previous round.
type History struct {
	teammates map[pair]struct{}
	opponents map[pair]struct{}
}

func NewHistory() *History {
	return &History{
		teammates: make(map[pair]struct{}),
		opponents: make(map[pair]struct{}),
	}
}

func (h *History) AddTeammates(a, b int) { h.teammates[newPair(a, b)] = struct{}{} }
func (h *History) AddOpponents(a, b int) { h.opponents[newPair(a, b)] = struct{}{} }

func (h *History) wereTeammates(a, b int) bool {
	if h == nil {
		return false
	}
	_, ok := h.teammates[newPair(a, b)]
	return ok
}

func (h *History) wereOpponents(a, b int) bool {
	if h == nil {
		return false
	}
	_, ok := h.opponents[newPair(a, b)]
	return ok
}

// HistoryOf records the pairs formed by round.
func HistoryOf(round Round) *History {
	h := NewHistory()
	for _, g := range round.Groups {
		h.AddTeammates(g.TeamA[0], g.TeamA[1])
		h.AddTeammates(g.TeamB[0], g.TeamB[1])
		for _, a := range g.TeamA {
			for _, b := range g.TeamB {
				h.AddOpponents(a, b)
			}
		}
	}
	return h
}

// splits lists the three ways to divide a quartet, in preference order.
var splits = [3][4]int{
	{0, 1, 2, 3},
	{0, 2, 1, 3},
	{0, 3, 1, 2},
}

// Penalty scores a grouping against history.
func Penalty(g Group, history *History) int {
	score := 0
	if history.wereTeammates(g.TeamA[0], g.TeamA[1]) {
		score += TeammateRepeatPenalty
	}
	if history.wereTeammates(g.TeamB[0], g.TeamB[1]) {
		score += TeammateRepeatPenalty
	}
	for _, a := range g.TeamA {
		for _, b := range g.TeamB {
			if history.wereOpponents(a, b) {
				score += OpponentRepeatPenalty
			}
		}
	}
	return score
}

// Generate groups players four at a time in the given order. For each quartet
// the split with the lowest penalty wins, earlier splits winning ties.
// A nil history means no previous round.
func Generate(players []int, history *History) Round {
	round := Round{Groups: []Group{}, Byes: []int{}}

	full := len(players) / 4 * 4
	for i := 0; i < full; i += 4 {
		q := players[i : i+4]

		var (
			best      Group
			bestScore = -1
		)
		for _, s := range splits {
			g := Group{
				TeamA: Team{q[s[0]], q[s[1]]},
				TeamB: Team{q[s[2]], q[s[3]]},
			}
			if score := Penalty(g, history); bestScore < 0 || score < bestScore {
				best, bestScore = g, score
			}
		}
		round.Groups = append(round.Groups, best)
	}

	round.Byes = append(round.Byes, players[full:]...)
	return round
}
