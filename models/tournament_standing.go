package models

import "time"

// GroupStanding is one rebuilt row of a group table. Rows are replaced as a whole set per group.
type GroupStanding struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	GroupLabel   string    `json:"group_label" db:"group_label"`
	PairingID    int       `json:"pairing_id" db:"pairing_id"`
	Rank         int       `json:"rank" db:"rank"`
	Played       int       `json:"played" db:"played"`
	Wins         int       `json:"wins" db:"wins"`
	Losses       int       `json:"losses" db:"losses"`
	SetDiff      int       `json:"set_diff" db:"set_diff"`
	GameDiff     int       `json:"game_diff" db:"game_diff"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
