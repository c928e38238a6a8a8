// Package lifecycle holds the transition tables of a pairing registration and
// of its payment guarantee.
package lifecycle

import (
	"errors"

	"github.com/Dosada05/padel-system/models"
)

var (
	// ErrTerminalStatus is returned when a non-identity transition is requested on a terminal state.
	ErrTerminalStatus = errors.New("PADREG_TERMINAL_STATUS")
	// ErrInvalidTransition is returned when the action is not defined for the current state.
	ErrInvalidTransition = errors.New("lifecycle transition not allowed")
)

// Action is an event applied to a pairing lifecycle.
type Action string

const (
	// ActionPartnerJoined: the partner slot was filled, payment still outstanding.
	ActionPartnerJoined Action = "PARTNER_JOINED"
	// ActionPartnerPaid: the partner paid their share.
	ActionPartnerPaid Action = "PARTNER_PAID"
	// ActionCaptainPaidFull: the captain paid for both players.
	ActionCaptainPaidFull Action = "CAPTAIN_PAID_FULL"
	ActionCancel          Action = "CANCEL"
)

func (a Action) Valid() bool {
	switch a {
	case ActionPartnerJoined, ActionPartnerPaid, ActionCaptainPaidFull, ActionCancel:
		return true
	}
	return false
}

var terminalStatuses = map[models.PairingStatus]struct{}{
	models.PairingConfirmedBothPaid:    {},
	models.PairingConfirmedCaptainFull: {},
	models.PairingCancelledIncomplete:  {},
}

// IsTerminal reports whether status accepts identity transitions only.
func IsTerminal(status models.PairingStatus) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// IsConfirmed reports whether the pairing may enter a generated bracket.
func IsConfirmed(status models.PairingStatus) bool {
	return status == models.PairingConfirmedBothPaid || status == models.PairingConfirmedCaptainFull
}

// Transition returns the state reached by applying action to current.
// Undefined combinations return current unchanged.
func Transition(current models.PairingStatus, action Action) models.PairingStatus {
	switch current {
	case models.PairingPendingOnePaid:
		switch action {
		case ActionPartnerJoined:
			return models.PairingPendingPartnerPayment
		case ActionPartnerPaid:
			return models.PairingConfirmedBothPaid
		case ActionCaptainPaidFull:
			return models.PairingConfirmedCaptainFull
		case ActionCancel:
			return models.PairingCancelledIncomplete
		}
	case models.PairingPendingPartnerPayment:
		switch action {
		case ActionPartnerPaid:
			return models.PairingConfirmedBothPaid
		case ActionCaptainPaidFull:
			return models.PairingConfirmedCaptainFull
		case ActionCancel:
			return models.PairingCancelledIncomplete
		}
	case models.PairingCancelledIncomplete:
		if action == ActionCancel {
			return models.PairingCancelledIncomplete
		}
	case models.PairingConfirmedBothPaid, models.PairingConfirmedCaptainFull:
		// terminal, identity only
	}
	return current
}

// Apply is Transition with the rejection made explicit. A terminal state
// answering with itself to a non-identity action yields ErrTerminalStatus; an
// undefined action on a live state yields ErrInvalidTransition. In both cases
// the returned status is current and callers must not persist anything.
func Apply(current models.PairingStatus, action Action) (models.PairingStatus, error) {
	next := Transition(current, action)
	if next != current {
		return next, nil
	}
	if IsTerminal(current) {
		if current == models.PairingCancelledIncomplete && action == ActionCancel {
			return current, nil
		}
		return current, ErrTerminalStatus
	}
	return current, ErrInvalidTransition
}

// FromPayment derives the lifecycle action for a captured payment.
func FromPayment(role models.SlotRole, coversBoth bool) (Action, bool) {
	switch {
	case role == models.SlotRoleCaptain && coversBoth:
		return ActionCaptainPaidFull, true
	case role == models.SlotRolePartner:
		return ActionPartnerPaid, true
	}
	return "", false
}
