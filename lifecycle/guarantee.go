package lifecycle

import (
	"time"

	"github.com/Dosada05/padel-system/models"
)

// GracePeriod is how long a player has to resolve a guarantee that requires action.
const GracePeriod = 24 * time.Hour

type GuaranteeAction string

const (
	GuaranteeArm           GuaranteeAction = "ARM"
	GuaranteeSchedule      GuaranteeAction = "SCHEDULE"
	GuaranteeSucceed       GuaranteeAction = "SUCCEED"
	GuaranteeFail          GuaranteeAction = "FAIL"
	GuaranteeRequireAction GuaranteeAction = "REQUIRE_ACTION"
	GuaranteeExpire        GuaranteeAction = "EXPIRE"
)

func (a GuaranteeAction) Valid() bool {
	switch a {
	case GuaranteeArm, GuaranteeSchedule, GuaranteeSucceed, GuaranteeFail, GuaranteeRequireAction, GuaranteeExpire:
		return true
	}
	return false
}

var terminalGuarantees = map[models.GuaranteeStatus]struct{}{
	models.GuaranteeSucceeded: {},
	models.GuaranteeExpired:   {},
}

func IsGuaranteeTerminal(status models.GuaranteeStatus) bool {
	_, ok := terminalGuarantees[status]
	return ok
}

// GuaranteeTransition returns the next guarantee state.
// Undefined combinations return current unchanged.
func GuaranteeTransition(current models.GuaranteeStatus, action GuaranteeAction) models.GuaranteeStatus {
	switch current {
	case models.GuaranteeNone:
		if action == GuaranteeArm {
			return models.GuaranteeArmed
		}
	case models.GuaranteeArmed:
		if action == GuaranteeSchedule {
			return models.GuaranteeScheduled
		}
	case models.GuaranteeScheduled:
		switch action {
		case GuaranteeSucceed:
			return models.GuaranteeSucceeded
		case GuaranteeFail:
			return models.GuaranteeFailed
		case GuaranteeRequireAction:
			return models.GuaranteeRequiresAction
		case GuaranteeExpire:
			return models.GuaranteeExpired
		}
	case models.GuaranteeFailed:
		if action == GuaranteeRequireAction {
			return models.GuaranteeRequiresAction
		}
	case models.GuaranteeRequiresAction:
		// late payment or grace expiry
		switch action {
		case GuaranteeSucceed:
			return models.GuaranteeSucceeded
		case GuaranteeExpire:
			return models.GuaranteeExpired
		}
	case models.GuaranteeSucceeded, models.GuaranteeExpired:
	}
	return current
}

// GuaranteeStep is the outcome of applying a guarantee action.
type GuaranteeStep struct {
	Status models.GuaranteeStatus
	// GraceUntil is set only when Status is REQUIRES_ACTION.
	GraceUntil *time.Time
	Changed    bool
}

// ApplyGuarantee applies action at now. Entering REQUIRES_ACTION opens a grace
// window of GracePeriod; no other state carries a deadline.
func ApplyGuarantee(current models.GuaranteeStatus, action GuaranteeAction, now time.Time) (GuaranteeStep, error) {
	next := GuaranteeTransition(current, action)
	if next == current {
		if IsGuaranteeTerminal(current) {
			return GuaranteeStep{Status: current}, ErrTerminalStatus
		}
		return GuaranteeStep{Status: current}, ErrInvalidTransition
	}
	step := GuaranteeStep{Status: next, Changed: true}
	if next == models.GuaranteeRequiresAction {
		deadline := now.Add(GracePeriod)
		step.GraceUntil = &deadline
	}
	return step, nil
}

// InitialGuarantee is the guarantee state of a new pairing.
func InitialGuarantee(mode models.PaymentMode) models.GuaranteeStatus {
	if mode == models.PaymentModeSplit {
		return models.GuaranteeArmed
	}
	return models.GuaranteeNone
}
