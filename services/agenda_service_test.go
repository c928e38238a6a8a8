package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/padel-system/agenda"
	"github.com/Dosada05/padel-system/metrics"
	"github.com/Dosada05/padel-system/models"
)

func newAgendaFixture() (*agendaService, *fakeCourtRepo, *fakeMatchRepo, *metrics.Metrics) {
	courts := &fakeCourtRepo{
		courts: []models.Court{{ID: 1, OrganizationID: 1, Active: true}, {ID: 2, OrganizationID: 1, Active: true}},
	}
	matches := newFakeMatchRepo(&models.Match{
		ID: 40, TournamentID: 7, CourtID: intPtr(1), StartAt: ptrTime(at(10, 0)), DurationMinutes: intPtr(90),
		Status: models.MatchStatusScheduled,
	})
	m := metrics.New(prometheus.NewRegistry())
	svc := NewAgendaService(courts, matches, m, discardLogger()).(*agendaService)
	svc.loader.now = func() time.Time { return at(8, 0) }
	return svc, courts, matches, m
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestAgendaService_Check(t *testing.T) {
	expiredHold := at(7, 0)
	liveHold := at(9, 0)

	tests := []struct {
		name     string
		setup    func(c *fakeCourtRepo)
		input    AgendaCheckInput
		allowed  bool
		reason   agenda.Reason
		blocker  string
		override []string
	}{
		{
			name:    "free court",
			input:   AgendaCheckInput{Kind: agenda.KindBooking, CourtID: 2, Start: at(10, 0), End: at(11, 0)},
			allowed: true,
			reason:  agenda.ReasonNoConflict,
		},
		{
			name:    "booking under a match",
			input:   AgendaCheckInput{Kind: agenda.KindBooking, CourtID: 1, Start: at(11, 0), End: at(12, 0)},
			reason:  agenda.ReasonBlockedByHigherPriority,
			blocker: "match:40",
		},
		{
			name:    "touching intervals do not overlap",
			input:   AgendaCheckInput{Kind: agenda.KindBooking, CourtID: 1, Start: at(11, 30), End: at(12, 30)},
			allowed: true,
			reason:  agenda.ReasonNoConflict,
		},
		{
			name:    "moving the match over itself",
			input:   AgendaCheckInput{Kind: agenda.KindMatchSlot, CourtID: 1, Start: at(10, 30), End: at(12, 0), SourceID: "match:40"},
			allowed: true,
			reason:  agenda.ReasonNoConflict,
		},
		{
			name: "organization wide hard block",
			setup: func(c *fakeCourtRepo) {
				c.blocks = []models.CourtBlock{{ID: 3, OrganizationID: 1, Kind: models.BlockKindHard, StartsAt: at(14, 0), EndsAt: at(16, 0)}}
			},
			input:   AgendaCheckInput{Kind: agenda.KindMatchSlot, CourtID: 2, Start: at(15, 0), End: at(16, 30)},
			reason:  agenda.ReasonBlockedByHigherPriority,
			blocker: "block:3",
		},
		{
			name: "match overrides bookings",
			setup: func(c *fakeCourtRepo) {
				c.bookings = []models.CourtBooking{
					{ID: 1, CourtID: 2, StartsAt: at(14, 0), DurationMinutes: 60, Status: models.BookingConfirmed},
					{ID: 2, CourtID: 2, StartsAt: at(15, 0), DurationMinutes: 60, Status: models.BookingPending, PendingExpiresAt: &expiredHold},
					{ID: 3, CourtID: 2, StartsAt: at(15, 0), DurationMinutes: 60, Status: models.BookingPending, PendingExpiresAt: &liveHold},
				}
			},
			input:    AgendaCheckInput{Kind: agenda.KindMatchSlot, CourtID: 2, Start: at(14, 30), End: at(16, 0)},
			allowed:  true,
			reason:   agenda.ReasonOverridesLowerPriority,
			override: []string{"booking:1", "booking:3"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, courts, _, _ := newAgendaFixture()
			if tt.setup != nil {
				tt.setup(courts)
			}
			d, err := svc.Check(context.Background(), 1, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
			if tt.blocker != "" {
				require.NotNil(t, d.BlockedBy)
				assert.Equal(t, tt.blocker, d.BlockedBy.SourceID)
			}
			var overridden []string
			for _, e := range d.Overridden {
				overridden = append(overridden, e.SourceID)
			}
			assert.ElementsMatch(t, tt.override, overridden)
		})
	}
}

func TestAgendaService_FailsClosed(t *testing.T) {
	svc, _, matches, m := newAgendaFixture()
	matches.listErr = errors.New("timeout")

	d, err := svc.Check(context.Background(), 1, AgendaCheckInput{Kind: agenda.KindBooking, CourtID: 2, Start: at(10, 0), End: at(11, 0)})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, agenda.ReasonMissingExistingData, d.Reason)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgendaDecisions.WithLabelValues("MISSING_EXISTING_DATA")))
}

func TestAgendaService_Rejects(t *testing.T) {
	svc, _, _, _ := newAgendaFixture()
	ctx := context.Background()

	_, err := svc.Check(ctx, 1, AgendaCheckInput{Kind: "LESSON", CourtID: 1, Start: at(10, 0), End: at(11, 0)})
	require.ErrorIs(t, err, ErrValidationFailed)

	_, err = svc.Check(ctx, 1, AgendaCheckInput{Kind: agenda.KindBooking, CourtID: 1, Start: at(11, 0), End: at(11, 0)})
	require.ErrorIs(t, err, ErrValidationFailed)

	_, err = svc.Check(ctx, 2, AgendaCheckInput{Kind: agenda.KindBooking, CourtID: 1, Start: at(10, 0), End: at(11, 0)})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAgendaService_MatchWithoutStoredLengthKeepsDefaultDuration(t *testing.T) {
	courts := &fakeCourtRepo{courts: []models.Court{{ID: 2, OrganizationID: 1, Active: true}}}
	matches := newFakeMatchRepo(&models.Match{
		ID: 41, TournamentID: 7, CourtID: intPtr(2), StartAt: ptrTime(at(10, 0)),
		Status: models.MatchStatusScheduled,
	})
	svc := NewAgendaService(courts, matches, metrics.New(prometheus.NewRegistry()), discardLogger()).(*agendaService)
	svc.loader.now = func() time.Time { return at(8, 0) }

	d, err := svc.Check(context.Background(), 1, AgendaCheckInput{
		Kind: agenda.KindMatchSlot, CourtID: 2, Start: at(10, 30), End: at(11, 30),
	})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, agenda.ReasonBlockedByHigherPriority, d.Reason)
	require.NotNil(t, d.BlockedBy)
	assert.Equal(t, "match:41", d.BlockedBy.SourceID)
}
