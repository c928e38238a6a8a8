// Package agenda decides whether a time-boxed activity may occupy a resource
// next to what already occupies it.
package agenda

import (
	"fmt"
	"time"
)

// Kind is the occupant kind of an agenda entry.
type Kind string

const (
	KindHardBlock Kind = "HARD_BLOCK"
	KindMatchSlot Kind = "MATCH_SLOT"
	KindBooking   Kind = "BOOKING"
	KindSoftBlock Kind = "SOFT_BLOCK"
)

// Priority returns the precedence of the kind, higher wins. Unknown kinds rank
// above everything so that they can never be overridden.
func (k Kind) Priority() int {
	switch k {
	case KindHardBlock:
		return 4
	case KindMatchSlot:
		return 3
	case KindBooking:
		return 2
	case KindSoftBlock:
		return 1
	default:
		return 5
	}
}

func (k Kind) Valid() bool {
	switch k {
	case KindHardBlock, KindMatchSlot, KindBooking, KindSoftBlock:
		return true
	}
	return false
}

// Reason is the outcome code of an evaluation.
type Reason string

const (
	ReasonNoConflict              Reason = "NO_CONFLICT"
	ReasonBlockedByHigherPriority Reason = "BLOCKED_BY_HIGHER_PRIORITY"
	ReasonOverridesLowerPriority  Reason = "OVERRIDES_LOWER_PRIORITY"
	ReasonMissingExistingData     Reason = "MISSING_EXISTING_DATA"
)

// Entry is a time interval [Start, End) held by an occupant on a resource.
type Entry struct {
	Kind       Kind      `json:"type"`
	ResourceID string    `json:"resource_id"`
	SourceID   string    `json:"source_id"`
	Start      time.Time `json:"starts_at"`
	End        time.Time `json:"ends_at"`
}

func (e Entry) String() string {
	return fmt.Sprintf("%s:%s@%s[%s,%s)", e.Kind, e.SourceID, e.ResourceID,
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// Decision is the verdict for one candidate.
type Decision struct {
	Allowed       bool    `json:"allowed"`
	Reason        Reason  `json:"reason"`
	BlockedBy     *Entry  `json:"blocked_by,omitempty"`
	BlockedByType Kind    `json:"blocked_by_type,omitempty"`
	Overridden    []Entry `json:"overridden,omitempty"`
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) share time.
// Intervals that only touch at a boundary do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Evaluate decides whether candidate may coexist with existing. Entries held by
// other resources are ignored. The candidate is denied by the overlapping entry
// of highest priority when that priority is equal to or above its own.
func Evaluate(candidate Entry, existing []Entry) Decision {
	var (
		blocker    *Entry
		overridden []Entry
	)
	own := candidate.Kind.Priority()

	for i := range existing {
		e := existing[i]
		if e.ResourceID != "" && candidate.ResourceID != "" && e.ResourceID != candidate.ResourceID {
			continue
		}
		if !Overlaps(candidate.Start, candidate.End, e.Start, e.End) {
			continue
		}
		if e.Kind.Priority() >= own {
			if blocker == nil || e.Kind.Priority() > blocker.Kind.Priority() ||
				(e.Kind.Priority() == blocker.Kind.Priority() && e.Start.Before(blocker.Start)) {
				blocker = &existing[i]
			}
			continue
		}
		overridden = append(overridden, e)
	}

	if blocker != nil {
		b := *blocker
		return Decision{
			Allowed:       false,
			Reason:        ReasonBlockedByHigherPriority,
			BlockedBy:     &b,
			BlockedByType: b.Kind,
		}
	}
	if len(overridden) > 0 {
		return Decision{Allowed: true, Reason: ReasonOverridesLowerPriority, Overridden: overridden}
	}
	return Decision{Allowed: true, Reason: ReasonNoConflict}
}

// FailClosed is the decision used when the existing entries of the resource
// could not be determined. It always denies.
func FailClosed() Decision {
	return Decision{Allowed: false, Reason: ReasonMissingExistingData}
}

// EvaluateLoaded evaluates candidate against entries produced by a loader.
// A non-nil loadErr yields the fail-closed decision.
func EvaluateLoaded(candidate Entry, existing []Entry, loadErr error) Decision {
	if loadErr != nil {
		return FailClosed()
	}
	return Evaluate(candidate, existing)
}
