package models

import "time"

type MatchStatus string

const (
	MatchStatusPending    MatchStatus = "pending"
	MatchStatusScheduled  MatchStatus = "scheduled"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusDone       MatchStatus = "done"
	MatchStatusCancelled  MatchStatus = "cancelled"
)

type RoundType string

const (
	RoundTypeGroups   RoundType = "GROUPS"
	RoundTypeKnockout RoundType = "KNOCKOUT"
)

// SetScore is the games won by each side in one set.
type SetScore struct {
	A int `json:"a"`
	B int `json:"b"`
}

// Match belongs to a stage. Pairing ids stay nil until the feeding match is decided.
type Match struct {
	ID              int         `json:"id" db:"id"`
	TournamentID    int         `json:"tournament_id" db:"tournament_id"`
	StageID         int         `json:"stage_id" db:"stage_id"`
	GroupLabel      *string     `json:"group_label,omitempty" db:"group_label"`
	RoundType       RoundType   `json:"round_type" db:"round_type"`
	RoundLabel      *string     `json:"round_label,omitempty" db:"round_label"`
	Round           int         `json:"round" db:"round"`
	OrderInRound    int         `json:"order_in_round" db:"order_in_round"`
	Pairing1ID      *int        `json:"pairing1_id,omitempty" db:"pairing1_id"`
	Pairing2ID      *int        `json:"pairing2_id,omitempty" db:"pairing2_id"`
	Status          MatchStatus `json:"status" db:"status"`
	CourtID         *int        `json:"court_id,omitempty" db:"court_id"`
	StartAt         *time.Time  `json:"start_at,omitempty" db:"start_at"`
	EndAt           *time.Time  `json:"end_at,omitempty" db:"end_at"`
	DurationMinutes *int        `json:"duration_minutes,omitempty" db:"duration_minutes"`
	Sets            []SetScore  `json:"sets,omitempty" db:"score_sets"`
	WinnerPairingID *int        `json:"winner_pairing_id,omitempty" db:"winner_pairing_id"`
	NextMatchID     *int        `json:"next_match_id,omitempty" db:"next_match_id"`
	NextMatchSlot   *int        `json:"next_match_slot,omitempty" db:"next_match_slot"`
	Version         int64       `json:"version" db:"version"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// IsScheduled reports whether the match already holds a court and a start time.
func (m *Match) IsScheduled() bool {
	return m.CourtID != nil && m.StartAt != nil
}

// PairingIDs returns the resolved sides of the match.
func (m *Match) PairingIDs() []int {
	ids := make([]int, 0, 2)
	if m.Pairing1ID != nil {
		ids = append(ids, *m.Pairing1ID)
	}
	if m.Pairing2ID != nil {
		ids = append(ids, *m.Pairing2ID)
	}
	return ids
}
