package models

import "time"

type PairingStatus string

const (
	PairingPendingOnePaid        PairingStatus = "PENDING_ONE_PAID"
	PairingPendingPartnerPayment PairingStatus = "PENDING_PARTNER_PAYMENT"
	PairingConfirmedBothPaid     PairingStatus = "CONFIRMED_BOTH_PAID"
	PairingConfirmedCaptainFull  PairingStatus = "CONFIRMED_CAPTAIN_FULL"
	PairingCancelledIncomplete   PairingStatus = "CANCELLED_INCOMPLETE"
)

type GuaranteeStatus string

const (
	GuaranteeNone           GuaranteeStatus = "NONE"
	GuaranteeArmed          GuaranteeStatus = "ARMED"
	GuaranteeScheduled      GuaranteeStatus = "SCHEDULED"
	GuaranteeSucceeded      GuaranteeStatus = "SUCCEEDED"
	GuaranteeFailed         GuaranteeStatus = "FAILED"
	GuaranteeRequiresAction GuaranteeStatus = "REQUIRES_ACTION"
	GuaranteeExpired        GuaranteeStatus = "EXPIRED"
)

type PaymentMode string

const (
	PaymentModeFull  PaymentMode = "FULL"
	PaymentModeSplit PaymentMode = "SPLIT"
)

type JoinMode string

const (
	JoinModeInvitePartner     JoinMode = "INVITE_PARTNER"
	JoinModeLookingForPartner JoinMode = "LOOKING_FOR_PARTNER"
)

type SlotRole string

const (
	SlotRoleCaptain SlotRole = "CAPTAIN"
	SlotRolePartner SlotRole = "PARTNER"
)

type SlotStatus string

const (
	SlotStatusPending   SlotStatus = "PENDING"
	SlotStatusFilled    SlotStatus = "FILLED"
	SlotStatusCancelled SlotStatus = "CANCELLED"
)

type SlotPaymentStatus string

const (
	SlotUnpaid SlotPaymentStatus = "UNPAID"
	SlotPaid   SlotPaymentStatus = "PAID"
)

// Pairing is a two-player team registered for a tournament.
type Pairing struct {
	ID              int             `json:"id" db:"id"`
	OrganizationID  int             `json:"organization_id" db:"organization_id"`
	TournamentID    int             `json:"tournament_id" db:"tournament_id"`
	CaptainUserID   int             `json:"captain_user_id" db:"captain_user_id"`
	PaymentMode     PaymentMode     `json:"payment_mode" db:"payment_mode"`
	JoinMode        JoinMode        `json:"join_mode" db:"join_mode"`
	Status          PairingStatus   `json:"status" db:"status"`
	GuaranteeStatus GuaranteeStatus `json:"guarantee_status" db:"guarantee_status"`
	GraceUntilAt    *time.Time      `json:"grace_until_at,omitempty" db:"grace_until_at"`
	DeadlineAt      *time.Time      `json:"deadline_at,omitempty" db:"deadline_at"`
	InviteTokenHash *string         `json:"-" db:"invite_token_hash"`
	Version         int64           `json:"version" db:"version"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`

	Slots []PairingSlot `json:"slots" db:"-"`
}

// PairingSlot is one of the two player positions of a pairing.
type PairingSlot struct {
	ID            int               `json:"id" db:"id"`
	PairingID     int               `json:"pairing_id" db:"pairing_id"`
	Role          SlotRole          `json:"role" db:"slot_role"`
	Status        SlotStatus        `json:"status" db:"slot_status"`
	PaymentStatus SlotPaymentStatus `json:"payment_status" db:"payment_status"`
	PlayerID      *int              `json:"player_id,omitempty" db:"player_id"`
}

// Slot returns the slot holding the given role.
func (p *Pairing) Slot(role SlotRole) *PairingSlot {
	for i := range p.Slots {
		if p.Slots[i].Role == role {
			return &p.Slots[i]
		}
	}
	return nil
}

// IsComplete reports whether both player slots are filled.
func (p *Pairing) IsComplete() bool {
	filled := 0
	for _, s := range p.Slots {
		if s.Status == SlotStatusFilled {
			filled++
		}
	}
	return filled == 2
}

// AllActiveSlotsPaid reports whether every non-cancelled slot is paid.
func (p *Pairing) AllActiveSlotsPaid() bool {
	active := 0
	for _, s := range p.Slots {
		if s.Status == SlotStatusCancelled {
			continue
		}
		active++
		if s.PaymentStatus != SlotPaid {
			return false
		}
	}
	return active > 0
}

// PlayerIDs returns the ids of players occupying filled slots.
func (p *Pairing) PlayerIDs() []int {
	ids := make([]int, 0, 2)
	for _, s := range p.Slots {
		if s.Status == SlotStatusFilled && s.PlayerID != nil {
			ids = append(ids, *s.PlayerID)
		}
	}
	return ids
}
