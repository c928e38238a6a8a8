package services

import (
	"errors"
	"fmt"

	"github.com/Dosada05/padel-system/agenda"
	"github.com/Dosada05/padel-system/brackets"
	"github.com/Dosada05/padel-system/lifecycle"
	"github.com/Dosada05/padel-system/repositories"
	"github.com/Dosada05/padel-system/standings"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	ErrNotFound         = errors.New("requested resource not found")
	ErrValidationFailed = errors.New("validation failed")

	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrForbiddenOperation   = errors.New("operation not allowed for the current user")
	ErrRateLimited          = errors.New("too many requests for this organization")

	// Ошибки конфликтов
	ErrMatchConflict            = errors.New("match was modified concurrently")
	ErrPairingConflict          = errors.New("pairing was modified concurrently")
	ErrAgendaConflict           = errors.New("slot is held by an activity of equal or higher priority")
	ErrAgendaDataUnavailable    = errors.New("existing agenda could not be loaded")
	ErrTournamentAlreadyStarted = errors.New("tournament already has started or finished matches")

	// Регистрация пар
	ErrPairingTerminalStatus = errors.New("pairing is in a terminal status")
	ErrInvalidTransition     = errors.New("transition is not defined for the current status")
	ErrInvalidInviteToken    = errors.New("invite token is invalid or already used")
	ErrRegistrationNotOpen   = errors.New("tournament registration is not open")
	ErrPartnerSlotTaken      = errors.New("partner slot is already filled")

	ErrMatchNotReady  = errors.New("match sides are not resolved yet")
	ErrMatchFinished  = errors.New("match is already finished or cancelled")
	ErrInvalidScore   = errors.New("score does not decide a winner")
	ErrNotEnoughTeams = errors.New("not enough confirmed pairings")
)

// AgendaConflictError carries the conflict engine decision that aborted a write.
type AgendaConflictError struct {
	MatchID  int
	Decision agenda.Decision
}

func (e *AgendaConflictError) Error() string {
	if e.Decision.BlockedBy != nil {
		return fmt.Sprintf("match %d: %s by %s", e.MatchID, e.Decision.Reason, e.Decision.BlockedBy)
	}
	return fmt.Sprintf("match %d: %s", e.MatchID, e.Decision.Reason)
}

func (e *AgendaConflictError) Unwrap() error {
	if e.Decision.Reason == agenda.ReasonMissingExistingData {
		return ErrAgendaDataUnavailable
	}
	return ErrAgendaConflict
}

// ErrorCode returns the stable machine code of err, or "" when it has none.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, brackets.ErrInvalidBracketSize):
		return "INVALID_BRACKET_SIZE"
	case errors.Is(err, brackets.ErrBracketTooSmall):
		return "BRACKET_TOO_SMALL"
	case errors.Is(err, ErrAgendaDataUnavailable):
		return "MISSING_EXISTING_DATA"
	case errors.Is(err, ErrPairingTerminalStatus), errors.Is(err, lifecycle.ErrTerminalStatus):
		return "PADREG_TERMINAL_STATUS"
	case errors.Is(err, ErrMatchConflict):
		return "MATCH_CONFLICT"
	case errors.Is(err, ErrPairingConflict):
		return "PAIRING_CONFLICT"
	case errors.Is(err, ErrAgendaConflict):
		return "AGENDA_CONFLICT"
	case errors.Is(err, ErrTournamentAlreadyStarted):
		return "TOURNAMENT_ALREADY_STARTED"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrInvalidInviteToken):
		return "INVALID_INVITE_TOKEN"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrForbiddenOperation):
		return "FORBIDDEN"
	case errors.Is(err, ErrValidationFailed), errors.Is(err, standings.ErrUnknownRule):
		return "VALIDATION_FAILED"
	}
	return ""
}

// notFound folds repository not-found sentinels into ErrNotFound, keeping the repository error in the chain.
func notFound(err error) error {
	switch {
	case errors.Is(err, repositories.ErrTournamentNotFound),
		errors.Is(err, repositories.ErrPairingNotFound),
		errors.Is(err, repositories.ErrMatchNotFound),
		errors.Is(err, repositories.ErrCourtNotFound),
		errors.Is(err, repositories.ErrStageNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
