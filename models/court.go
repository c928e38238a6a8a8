package models

import "time"

// Court is a bookable resource of an organization.
type Court struct {
	ID             int    `json:"id" db:"id"`
	OrganizationID int    `json:"organization_id" db:"organization_id"`
	Name           string `json:"name" db:"name"`
	DisplayOrder   int    `json:"display_order" db:"display_order"`
	Active         bool   `json:"active" db:"active"`
}

type BlockKind string

const (
	BlockKindHard BlockKind = "HARD_BLOCK"
	BlockKindSoft BlockKind = "SOFT_BLOCK"
)

// CourtBlock is a maintenance or reservation window. A nil CourtID blocks every court of the organization.
type CourtBlock struct {
	ID             int       `json:"id" db:"id"`
	OrganizationID int       `json:"organization_id" db:"organization_id"`
	CourtID        *int      `json:"court_id,omitempty" db:"court_id"`
	Kind           BlockKind `json:"kind" db:"kind"`
	StartsAt       time.Time `json:"starts_at" db:"starts_at"`
	EndsAt         time.Time `json:"ends_at" db:"ends_at"`
	Reason         *string   `json:"reason,omitempty" db:"reason"`
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// CourtBooking is a regular (non-tournament) reservation of a court.
type CourtBooking struct {
	ID               int           `json:"id" db:"id"`
	CourtID          int           `json:"court_id" db:"court_id"`
	StartsAt         time.Time     `json:"starts_at" db:"starts_at"`
	DurationMinutes  int           `json:"duration_minutes" db:"duration_minutes"`
	Status           BookingStatus `json:"status" db:"status"`
	PendingExpiresAt *time.Time    `json:"pending_expires_at,omitempty" db:"pending_expires_at"`
}

// EndsAt returns the end of the booking.
func (b CourtBooking) EndsAt() time.Time {
	return b.StartsAt.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// IsActive reports whether the booking still holds the court at now.
func (b CourtBooking) IsActive(now time.Time) bool {
	switch b.Status {
	case BookingConfirmed:
		return true
	case BookingPending:
		return b.PendingExpiresAt != nil && b.PendingExpiresAt.After(now)
	}
	return false
}

// PlayerUnavailability is a window a player declared they cannot play.
type PlayerUnavailability struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	PlayerID     int       `json:"player_id" db:"player_id"`
	StartsAt     time.Time `json:"starts_at" db:"starts_at"`
	EndsAt       time.Time `json:"ends_at" db:"ends_at"`
}
