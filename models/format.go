package models

// BracketFormat is the structure generated for a tournament.
type BracketFormat string

const (
	FormatRoundRobin        BracketFormat = "ROUND_ROBIN"
	FormatSingleElimination BracketFormat = "SINGLE_ELIMINATION"
	FormatDrawAB            BracketFormat = "DRAW_A_B"
	FormatGroupsPlusPlayoff BracketFormat = "GROUPS_PLUS_PLAYOFF"
)

func (f BracketFormat) Valid() bool {
	switch f {
	case FormatRoundRobin, FormatSingleElimination, FormatDrawAB, FormatGroupsPlusPlayoff:
		return true
	}
	return false
}

type StageType string

const (
	StageGroups      StageType = "GROUPS"
	StagePlayoff     StageType = "PLAYOFF"
	StageConsolation StageType = "CONSOLATION"
)

// Stage is one ordered phase of a tournament (group phase, main draw, consolation draw).
type Stage struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	Name         string    `json:"name" db:"name"`
	Type         StageType `json:"type" db:"stage_type"`
	Order        int       `json:"order" db:"stage_order"`
	BracketSize  *int      `json:"bracket_size,omitempty" db:"bracket_size"`

	Matches []*Match `json:"matches,omitempty" db:"-"`
}
