package models

import "time"

// TournamentStatus представляет статусы турнира, соответствующие ENUM в БД.
type TournamentStatus string

const (
	StatusDraft        TournamentStatus = "draft"
	StatusRegistration TournamentStatus = "registration"
	StatusActive       TournamentStatus = "active"
	StatusCompleted    TournamentStatus = "completed"
	StatusCanceled     TournamentStatus = "canceled"
)

// Tournament is a padel event owned by one organization.
type Tournament struct {
	ID             int              `json:"id" db:"id"`
	OrganizationID int              `json:"organization_id" db:"organization_id"`
	Name           string           `json:"name" db:"name"`
	Format         BracketFormat    `json:"format" db:"format"`
	Status         TournamentStatus `json:"status" db:"status"`
	StartsAt       time.Time        `json:"starts_at" db:"starts_at"`
	EndsAt         *time.Time       `json:"ends_at,omitempty" db:"ends_at"`
	GenerationSeed *string          `json:"generation_seed,omitempty" db:"generation_seed"`
	GeneratedAt    *time.Time       `json:"generated_at,omitempty" db:"generated_at"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}
