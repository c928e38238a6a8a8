package autoschedule

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/Dosada05/padel-system/models"
)

type Priority string

const (
	GroupsFirst   Priority = "GROUPS_FIRST"
	KnockoutFirst Priority = "KNOCKOUT_FIRST"
)

func (p Priority) Valid() bool {
	return p == GroupsFirst || p == KnockoutFirst
}

func roundTypeOrder(rt models.RoundType, p Priority) int {
	first, second := models.RoundTypeGroups, models.RoundTypeKnockout
	if p == KnockoutFirst {
		first, second = second, first
	}
	switch rt {
	case first:
		return 0
	case second:
		return 1
	}
	return 2
}

type roundMeta struct {
	prefix int
	// size is the number of pairings alive in the round, 0 when unknown.
	size int
}

// parseRoundLabel reads knockout labels such as "A QUARTERFINAL", "B R16" or "FINAL".
func parseRoundLabel(label string) roundMeta {
	meta := roundMeta{prefix: 2}
	base := strings.TrimSpace(label)
	switch {
	case strings.HasPrefix(base, "A "):
		meta.prefix, base = 0, strings.TrimSpace(base[2:])
	case strings.HasPrefix(base, "B "):
		meta.prefix, base = 1, strings.TrimSpace(base[2:])
	}
	switch {
	case strings.HasPrefix(base, "R"):
		if n, err := strconv.Atoi(base[1:]); err == nil {
			meta.size = n
		}
	case base == "QUARTERFINAL":
		meta.size = 8
	case base == "SEMIFINAL":
		meta.size = 4
	case base == "FINAL":
		meta.size = 2
	}
	return meta
}

// sortMatches orders by round priority (round type, then for knockout the A/B
// draw and larger rounds first) and then by match id.
func sortMatches(matches []Match, p Priority) []Match {
	out := slices.Clone(matches)
	slices.SortStableFunc(out, func(a, b Match) int {
		if c := cmp.Compare(roundTypeOrder(a.RoundType, p), roundTypeOrder(b.RoundType, p)); c != 0 {
			return c
		}
		if a.RoundType == models.RoundTypeKnockout || b.RoundType == models.RoundTypeKnockout {
			am, bm := parseRoundLabel(a.RoundLabel), parseRoundLabel(b.RoundLabel)
			if c := cmp.Compare(am.prefix, bm.prefix); c != 0 {
				return c
			}
			if am.size != 0 && bm.size != 0 && am.size != bm.size {
				return cmp.Compare(bm.size, am.size)
			}
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
