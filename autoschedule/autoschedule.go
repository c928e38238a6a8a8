// Package autoschedule assigns courts and start times to unscheduled matches.
//
// The algorithm is priority-greedy without backtracking: matches are taken in
// round priority order, and each one gets the earliest legal start found on the
// slot grid (ties go to the court listed first). A match that fits nowhere is
// reported as skipped; that is a normal outcome, not an error.
package autoschedule

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Dosada05/padel-system/agenda"
	"github.com/Dosada05/padel-system/models"
)

const (
	DefaultSlotMinutes     = 15
	DefaultDurationMinutes = 90
)

type SkipReason string

const (
	SkipMissingPairings   SkipReason = "MISSING_PAIRINGS"
	SkipCourtNotAvailable SkipReason = "COURT_NOT_AVAILABLE"
	SkipNoSlotAvailable   SkipReason = "NO_SLOT_AVAILABLE"
)

type Config struct {
	WindowStart     time.Time
	WindowEnd       time.Time
	DurationMinutes int
	SlotMinutes     int
	BufferMinutes   int
	MinRestMinutes  int
	Priority        Priority
}

// Match is a match waiting for a court and a time.
type Match struct {
	ID         int
	Pairing1ID *int
	Pairing2ID *int
	RoundType  models.RoundType
	RoundLabel string
	// CourtID pins the match to one court.
	CourtID *int
	// DurationMinutes overrides Config.DurationMinutes when positive.
	DurationMinutes int
}

// ExistingMatch already holds a time (and usually a court).
type ExistingMatch struct {
	ID              int
	CourtID         *int
	Start           time.Time
	End             *time.Time
	DurationMinutes int
	Pairing1ID      *int
	Pairing2ID      *int
}

// Block closes a court for an interval. A nil CourtID closes every court.
type Block struct {
	CourtID *int
	Start   time.Time
	End     time.Time
}

type Unavailability struct {
	PlayerID int
	Start    time.Time
	End      time.Time
}

type Input struct {
	Config      Config
	Unscheduled []Match
	Scheduled   []ExistingMatch
	// CourtIDs is the fixed court order used to break ties.
	CourtIDs       []int
	PairingPlayers map[int][]int
	Unavailability []Unavailability
	CourtBlocks    []Block
}

type Placement struct {
	MatchID         int       `json:"match_id"`
	CourtID         int       `json:"court_id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
}

type Skip struct {
	MatchID int        `json:"match_id"`
	Reason  SkipReason `json:"reason"`
}

type Plan struct {
	Scheduled []Placement `json:"scheduled"`
	Skipped   []Skip      `json:"skipped"`
}

func courtKey(id int) string   { return "court:" + strconv.Itoa(id) }
func pairingKey(id int) string { return "pairing:" + strconv.Itoa(id) }
func playerKey(id int) string  { return "player:" + strconv.Itoa(id) }

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }

// roundUp moves t forward to the next slot boundary, counting slots from the
// start of t's hour: with 45 minute slots 09:10 becomes 09:45 and 09:50 becomes 10:30.
func roundUp(t time.Time, slot time.Duration) time.Time {
	hour := t.Truncate(time.Hour)
	steps := (t.Sub(hour) + slot - 1) / slot
	return hour.Add(steps * slot)
}

type planner struct {
	cfg      Config
	slot     time.Duration
	buffer   time.Duration
	rest     time.Duration
	courts   *agenda.Index
	busy     *agenda.Index
	unavail  *agenda.Index
	players  map[int][]int
	courtSet map[int]bool
}

func newPlanner(in Input) *planner {
	cfg := in.Config
	if cfg.SlotMinutes <= 0 {
		cfg.SlotMinutes = DefaultSlotMinutes
	}
	if cfg.DurationMinutes <= 0 {
		cfg.DurationMinutes = DefaultDurationMinutes
	}
	if !cfg.Priority.Valid() {
		cfg.Priority = GroupsFirst
	}

	p := &planner{
		cfg:      cfg,
		slot:     minutes(cfg.SlotMinutes),
		buffer:   minutes(max(cfg.BufferMinutes, 0)),
		rest:     minutes(max(cfg.MinRestMinutes, 0)),
		courts:   agenda.NewIndex(),
		busy:     agenda.NewIndex(),
		unavail:  agenda.NewIndex(),
		players:  in.PairingPlayers,
		courtSet: make(map[int]bool, len(in.CourtIDs)),
	}
	for _, id := range in.CourtIDs {
		p.courtSet[id] = true
		p.courts.Track(courtKey(id))
	}

	for i, b := range in.CourtBlocks {
		source := fmt.Sprintf("block-%d", i)
		if b.CourtID == nil {
			for _, id := range in.CourtIDs {
				p.courts.Add(agenda.Entry{Kind: agenda.KindHardBlock, ResourceID: courtKey(id), SourceID: source, Start: b.Start, End: b.End})
			}
			continue
		}
		if p.courtSet[*b.CourtID] {
			p.courts.Add(agenda.Entry{Kind: agenda.KindHardBlock, ResourceID: courtKey(*b.CourtID), SourceID: source, Start: b.Start, End: b.End})
		}
	}

	for _, u := range in.Unavailability {
		p.unavail.Add(agenda.Entry{Kind: agenda.KindHardBlock, ResourceID: playerKey(u.PlayerID), Start: u.Start, End: u.End})
	}

	for _, m := range in.Scheduled {
		end := m.Start.Add(minutes(cfg.DurationMinutes))
		if m.End != nil {
			end = *m.End
		} else if m.DurationMinutes > 0 {
			end = m.Start.Add(minutes(m.DurationMinutes))
		}
		if m.CourtID != nil && p.courtSet[*m.CourtID] {
			p.courts.Add(agenda.Entry{Kind: agenda.KindMatchSlot, ResourceID: courtKey(*m.CourtID), SourceID: strconv.Itoa(m.ID), Start: m.Start, End: end})
		}
		p.markBusy(m.ID, m.Pairing1ID, m.Pairing2ID, m.Start, end)
	}
	return p
}

// participantKeys returns the busy keys of a match (pairings and players) and,
// separately, the player keys alone.
func (p *planner) participantKeys(p1, p2 *int) (all, players []string) {
	for _, id := range []*int{p1, p2} {
		if id == nil {
			continue
		}
		all = append(all, pairingKey(*id))
		for _, player := range p.players[*id] {
			players = append(players, playerKey(player))
		}
	}
	all = append(all, players...)
	return all, players
}

func (p *planner) markBusy(matchID int, p1, p2 *int, start, end time.Time) {
	all, _ := p.participantKeys(p1, p2)
	for _, key := range all {
		p.busy.Add(agenda.Entry{Kind: agenda.KindMatchSlot, ResourceID: key, SourceID: strconv.Itoa(matchID), Start: start, End: end})
	}
}

// conflictEnd returns the earliest instant from which start could be legal again
// when [start, end) collides on court, rest or availability.
func (p *planner) conflictEnd(court int, all, players []string, start, end time.Time) (time.Time, bool) {
	var (
		next     time.Time
		conflict bool
	)
	push := func(t time.Time) {
		if !conflict || t.After(next) {
			next = t
		}
		conflict = true
	}

	if e, ok := p.courts.LatestOverlapEnd(courtKey(court), start.Add(-p.buffer), end.Add(p.buffer)); ok {
		push(e.Add(p.buffer))
	}
	margin := p.buffer + p.rest
	for _, key := range all {
		if e, ok := p.busy.LatestOverlapEnd(key, start.Add(-margin), end.Add(margin)); ok {
			push(e.Add(margin))
		}
	}
	for _, key := range players {
		if e, ok := p.unavail.LatestOverlapEnd(key, start.Add(-p.buffer), end.Add(p.buffer)); ok {
			push(e.Add(p.buffer))
		}
	}
	return next, conflict
}

// Compute produces a placement plan. It never fails: matches that cannot be
// placed are listed in Plan.Skipped.
func Compute(in Input) Plan {
	p := newPlanner(in)
	plan := Plan{Scheduled: []Placement{}, Skipped: []Skip{}}

	gridStart := roundUp(p.cfg.WindowStart, p.slot)

	for _, m := range sortMatches(in.Unscheduled, p.cfg.Priority) {
		if m.Pairing1ID == nil || m.Pairing2ID == nil {
			plan.Skipped = append(plan.Skipped, Skip{MatchID: m.ID, Reason: SkipMissingPairings})
			continue
		}

		candidates := in.CourtIDs
		if m.CourtID != nil {
			candidates = nil
			if p.courtSet[*m.CourtID] {
				candidates = []int{*m.CourtID}
			}
		}
		if len(candidates) == 0 {
			plan.Skipped = append(plan.Skipped, Skip{MatchID: m.ID, Reason: SkipCourtNotAvailable})
			continue
		}

		duration := minutes(p.cfg.DurationMinutes)
		if m.DurationMinutes > 0 {
			duration = minutes(m.DurationMinutes)
		}
		all, players := p.participantKeys(m.Pairing1ID, m.Pairing2ID)

		var (
			best  Placement
			found bool
		)
		for _, court := range candidates {
			t := gridStart
			for !t.Add(duration).After(p.cfg.WindowEnd) {
				if found && !t.Before(best.Start) {
					break
				}
				next, conflict := p.conflictEnd(court, all, players, t, t.Add(duration))
				if !conflict {
					best = Placement{MatchID: m.ID, CourtID: court, Start: t, End: t.Add(duration), DurationMinutes: int(duration / time.Minute)}
					found = true
					break
				}
				t = roundUp(next, p.slot)
			}
		}

		if !found {
			plan.Skipped = append(plan.Skipped, Skip{MatchID: m.ID, Reason: SkipNoSlotAvailable})
			continue
		}

		plan.Scheduled = append(plan.Scheduled, best)
		p.courts.Add(agenda.Entry{Kind: agenda.KindMatchSlot, ResourceID: courtKey(best.CourtID), SourceID: strconv.Itoa(m.ID), Start: best.Start, End: best.End})
		p.markBusy(m.ID, m.Pairing1ID, m.Pairing2ID, best.Start, best.End)
	}
	return plan
}
