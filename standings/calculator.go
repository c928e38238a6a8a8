// Package standings ranks the pairings of a group from finished match results.
//
// Aggregates are always rebuilt from the full set of finished matches; nothing
// is accumulated incrementally. Ranking walks an ordered tie-break chain and
// stops at the first rule that separates two rows.
package standings

import (
	"cmp"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/Dosada05/padel-system/models"
)

var (
	ErrUnknownRule = errors.New("unknown tie-break rule")
	ErrMissingRand = errors.New("COIN_FLIP requires a seeded random source")
)

type Rule string

const (
	RuleWins       Rule = "WINS"
	RuleSetDiff    Rule = "SET_DIFF"
	RuleGameDiff   Rule = "GAME_DIFF"
	RuleHeadToHead Rule = "HEAD_TO_HEAD"
	RuleCoinFlip   Rule = "COIN_FLIP"
)

func (r Rule) Valid() bool {
	switch r {
	case RuleWins, RuleSetDiff, RuleGameDiff, RuleHeadToHead, RuleCoinFlip:
		return true
	}
	return false
}

// DefaultRules is the chain used when a tournament does not configure one.
func DefaultRules() []Rule {
	return []Rule{RuleWins, RuleHeadToHead, RuleSetDiff, RuleGameDiff, RuleCoinFlip}
}

// ParseRules validates rule names and drops repeats, keeping the first occurrence.
func ParseRules(names []string) ([]Rule, error) {
	rules := make([]Rule, 0, len(names))
	for _, name := range names {
		r := Rule(strings.ToUpper(strings.TrimSpace(name)))
		if !r.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRule, name)
		}
		if !slices.Contains(rules, r) {
			rules = append(rules, r)
		}
	}
	return rules, nil
}

// Result is one match of the group as reported by the match store.
type Result struct {
	MatchID    int
	Pairing1ID int
	Pairing2ID int
	Status     models.MatchStatus
	Sets       []models.SetScore
}

// Row is the aggregate of one pairing.
type Row struct {
	PairingID int `json:"pairing_id"`
	Rank      int `json:"rank"`
	Played    int `json:"played"`
	Wins      int `json:"wins"`
	Losses    int `json:"losses"`
	SetsWon   int `json:"sets_won"`
	SetsLost  int `json:"sets_lost"`
	GamesWon  int `json:"games_won"`
	GamesLost int `json:"games_lost"`
	// HeadToHead counts wins against each opponent.
	HeadToHead map[int]int `json:"head_to_head"`
}

func (r *Row) SetDiff() int  { return r.SetsWon - r.SetsLost }
func (r *Row) GameDiff() int { return r.GamesWon - r.GamesLost }

// Winner returns 1 or 2 for the side that took more sets (games break a set
// tie), or 0 when the score does not decide a winner.
func Winner(sets []models.SetScore) int {
	var setsA, setsB, gamesA, gamesB int
	for _, s := range sets {
		gamesA += s.A
		gamesB += s.B
		switch {
		case s.A > s.B:
			setsA++
		case s.B > s.A:
			setsB++
		}
	}
	switch {
	case setsA != setsB:
		if setsA > setsB {
			return 1
		}
		return 2
	case gamesA > gamesB:
		return 1
	case gamesB > gamesA:
		return 2
	}
	return 0
}

// Compute aggregates results for roster and returns the rows ranked by rules.
// Results that are not done, or that involve a pairing outside roster, are
// ignored. rng is only consulted when the chain contains COIN_FLIP.
func Compute(roster []int, results []Result, rules []Rule, rng *rand.Rand) ([]Row, error) {
	for _, r := range rules {
		if !r.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRule, r)
		}
	}
	coin := slices.Contains(rules, RuleCoinFlip)
	if coin && rng == nil {
		return nil, ErrMissingRand
	}

	ids := slices.Clone(roster)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	rows := make(map[int]*Row, len(ids))
	for _, id := range ids {
		rows[id] = &Row{PairingID: id, HeadToHead: map[int]int{}}
	}

	for _, res := range results {
		if res.Status != models.MatchStatusDone {
			continue
		}
		a, okA := rows[res.Pairing1ID]
		b, okB := rows[res.Pairing2ID]
		if !okA || !okB || a == b {
			continue
		}
		a.Played++
		b.Played++
		for _, s := range res.Sets {
			a.GamesWon += s.A
			a.GamesLost += s.B
			b.GamesWon += s.B
			b.GamesLost += s.A
			switch {
			case s.A > s.B:
				a.SetsWon++
				b.SetsLost++
			case s.B > s.A:
				b.SetsWon++
				a.SetsLost++
			}
		}
		switch Winner(res.Sets) {
		case 1:
			a.Wins++
			b.Losses++
			a.HeadToHead[b.PairingID]++
		case 2:
			b.Wins++
			a.Losses++
			b.HeadToHead[a.PairingID]++
		}
	}

	// Draws are assigned over the sorted roster so the same seed gives the same order.
	draw := map[int]int{}
	if coin {
		for i, p := range rng.Perm(len(ids)) {
			draw[ids[i]] = p
		}
	}

	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		out = append(out, *rows[id])
	}
	slices.SortStableFunc(out, func(a, b Row) int {
		for _, rule := range rules {
			var c int
			switch rule {
			case RuleWins:
				c = cmp.Compare(b.Wins, a.Wins)
			case RuleSetDiff:
				c = cmp.Compare(b.SetDiff(), a.SetDiff())
			case RuleGameDiff:
				c = cmp.Compare(b.GameDiff(), a.GameDiff())
			case RuleHeadToHead:
				c = cmp.Compare(b.HeadToHead[a.PairingID], a.HeadToHead[b.PairingID])
			case RuleCoinFlip:
				c = cmp.Compare(draw[a.PairingID], draw[b.PairingID])
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})

	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}
