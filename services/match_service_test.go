package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/padel-system/agenda"
	"github.com/Dosada05/padel-system/brackets"
	"github.com/Dosada05/padel-system/metrics"
	"github.com/Dosada05/padel-system/models"
)

type matchFixture struct {
	svc       MatchService
	mock      sqlmock.Sqlmock
	matches   *fakeMatchRepo
	courts    *fakeCourtRepo
	standings *fakeStandingRepo
	notifier  *recordingNotifier
}

func newMatchFixture(t *testing.T, ms ...*models.Match) *matchFixture {
	t.Helper()
	db, mock := newTxDB(t)
	f := &matchFixture{
		mock:      mock,
		matches:   newFakeMatchRepo(ms...),
		courts:    &fakeCourtRepo{courts: []models.Court{{ID: 1, OrganizationID: 1, Active: true}, {ID: 2, OrganizationID: 1, Active: true}}},
		standings: newFakeStandingRepo(),
		notifier:  &recordingNotifier{},
	}
	seed := "s"
	f.svc = NewMatchService(db,
		newFakeTournamentRepo(&models.Tournament{ID: 7, OrganizationID: 1, GenerationSeed: &seed}),
		f.matches, f.courts, f.standings, nil, 90, f.notifier,
		metrics.New(prometheus.NewRegistry()), discardLogger(),
	)
	return f
}

// knockout: semi 10 and semi 11 feed final 12.
func knockout(semi2 models.MatchStatus, p3, p4 *int) []*models.Match {
	return []*models.Match{
		{ID: 10, TournamentID: 7, RoundType: models.RoundTypeKnockout, Round: 1, Pairing1ID: intPtr(1), Pairing2ID: intPtr(2),
			Status: models.MatchStatusScheduled, NextMatchID: intPtr(12), NextMatchSlot: intPtr(1)},
		{ID: 11, TournamentID: 7, RoundType: models.RoundTypeKnockout, Round: 1, Pairing1ID: p3, Pairing2ID: p4,
			Status: semi2, NextMatchID: intPtr(12), NextMatchSlot: intPtr(2)},
		{ID: 12, TournamentID: 7, RoundType: models.RoundTypeKnockout, Round: 2, Status: models.MatchStatusPending},
	}
}

var straightSets = []models.SetScore{{A: 6, B: 2}, {A: 6, B: 3}}

func TestMatchService_RecordResultAdvancesWinner(t *testing.T) {
	f := newMatchFixture(t, knockout(models.MatchStatusScheduled, intPtr(3), intPtr(4))...)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	res, err := f.svc.RecordResult(context.Background(), 1, 10, RecordResultInput{ExpectedVersion: 1, Sets: straightSets})
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusDone, res.Match.Status)
	assert.Equal(t, 1, *res.Match.WinnerPairingID)
	assert.Equal(t, int64(2), res.Match.Version)

	final := f.matches.stored(12)
	require.NotNil(t, final.Pairing1ID)
	assert.Equal(t, 1, *final.Pairing1ID)
	assert.Nil(t, final.Pairing2ID)
	assert.Equal(t, models.MatchStatusPending, final.Status)
	require.Len(t, res.Advanced, 1)

	assert.Equal(t, []string{brackets.EventMatchResult}, f.notifier.types())
}

func TestMatchService_RecordResultWalkover(t *testing.T) {
	f := newMatchFixture(t, knockout(models.MatchStatusCancelled, nil, nil)...)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	res, err := f.svc.RecordResult(context.Background(), 1, 10, RecordResultInput{ExpectedVersion: 1, Sets: []models.SetScore{{A: 3, B: 6}, {A: 4, B: 6}}})
	require.NoError(t, err)
	assert.Equal(t, 2, *res.Match.WinnerPairingID)

	final := f.matches.stored(12)
	assert.Equal(t, models.MatchStatusDone, final.Status)
	require.NotNil(t, final.WinnerPairingID)
	assert.Equal(t, 2, *final.WinnerPairingID)
	assert.Empty(t, final.Sets)
}

func TestMatchService_RecordResultRebuildsGroup(t *testing.T) {
	f := newMatchFixture(t, groupMatches()...)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	_, err := f.svc.RecordResult(context.Background(), 1, 3, RecordResultInput{ExpectedVersion: 1, Sets: []models.SetScore{{A: 6, B: 1}, {A: 6, B: 1}}})
	require.NoError(t, err)

	rows := f.standings.groups["A"]
	require.Len(t, rows, 3)
	assert.Equal(t, 1, rows[0].PairingID)
	assert.Equal(t, 2, rows[0].Wins)
}

func TestMatchService_RecordResultRejects(t *testing.T) {
	tests := []struct {
		name     string
		matchID  int
		version  int64
		sets     []models.SetScore
		want     error
		noTx     bool
		rollback bool
	}{
		{name: "undecided score", matchID: 10, version: 1, sets: []models.SetScore{{A: 6, B: 6}}, want: ErrInvalidScore, noTx: true},
		{name: "no sets", matchID: 10, version: 1, want: ErrInvalidScore, noTx: true},
		{name: "stale version", matchID: 10, version: 3, sets: straightSets, want: ErrMatchConflict},
		{name: "waiting for sides", matchID: 12, version: 1, sets: straightSets, want: ErrMatchNotReady},
		{name: "already decided", matchID: 11, version: 1, sets: straightSets, want: ErrMatchFinished},
		{name: "unknown match", matchID: 99, version: 1, sets: straightSets, want: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMatchFixture(t, knockout(models.MatchStatusDone, intPtr(3), intPtr(4))...)
			if !tt.noTx {
				f.mock.ExpectBegin()
				f.mock.ExpectRollback()
			}
			_, err := f.svc.RecordResult(context.Background(), 1, tt.matchID, RecordResultInput{ExpectedVersion: tt.version, Sets: tt.sets})
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, f.notifier.types())
		})
	}
}

func TestMatchService_RecordResultHidesOtherOrganization(t *testing.T) {
	f := newMatchFixture(t, knockout(models.MatchStatusScheduled, intPtr(3), intPtr(4))...)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.RecordResult(context.Background(), 2, 10, RecordResultInput{ExpectedVersion: 1, Sets: straightSets})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMatchService_Reschedule(t *testing.T) {
	f := newMatchFixture(t, knockout(models.MatchStatusScheduled, intPtr(3), intPtr(4))...)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	out, err := f.svc.Reschedule(context.Background(), 1, 12, RescheduleInput{ExpectedVersion: 1, CourtID: 2, StartAt: at(14, 0)})
	require.NoError(t, err)
	assert.Equal(t, at(15, 30), *out.Match.EndAt)
	assert.Equal(t, 90, *out.Match.DurationMinutes)
	assert.Equal(t, models.MatchStatusScheduled, out.Match.Status)
	assert.Empty(t, out.Overridden)

	stored := f.matches.stored(12)
	assert.Equal(t, 2, *stored.CourtID)
	assert.Equal(t, [][]int{{2}}, f.courts.locked)
	assert.Equal(t, []string{brackets.EventMatchRescheduled}, f.notifier.types())
}

func TestMatchService_RescheduleBlocked(t *testing.T) {
	f := newMatchFixture(t, knockout(models.MatchStatusScheduled, intPtr(3), intPtr(4))...)
	f.courts.blocks = []models.CourtBlock{{ID: 4, OrganizationID: 1, CourtID: intPtr(2), Kind: models.BlockKindHard, StartsAt: at(13, 0), EndsAt: at(15, 0)}}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Reschedule(context.Background(), 1, 12, RescheduleInput{ExpectedVersion: 1, CourtID: 2, StartAt: at(14, 0), DurationMinutes: intPtr(60)})
	require.ErrorIs(t, err, ErrAgendaConflict)

	var conflict *AgendaConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "block:4", conflict.Decision.BlockedBy.SourceID)
	assert.Nil(t, f.matches.stored(12).CourtID)
}

func TestMatchService_RescheduleOverridesBooking(t *testing.T) {
	f := newMatchFixture(t, knockout(models.MatchStatusScheduled, intPtr(3), intPtr(4))...)
	f.courts.bookings = []models.CourtBooking{{ID: 8, CourtID: 1, StartsAt: at(14, 0), DurationMinutes: 60, Status: models.BookingConfirmed}}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	out, err := f.svc.Reschedule(context.Background(), 1, 12, RescheduleInput{ExpectedVersion: 1, CourtID: 1, StartAt: at(14, 0)})
	require.NoError(t, err)
	require.Len(t, out.Overridden, 1)
	assert.Equal(t, agenda.KindBooking, out.Overridden[0].Kind)
}

func TestMatchService_RescheduleForeignCourt(t *testing.T) {
	f := newMatchFixture(t, knockout(models.MatchStatusScheduled, intPtr(3), intPtr(4))...)
	f.courts.courts = append(f.courts.courts, models.Court{ID: 9, OrganizationID: 2, Active: true})
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Reschedule(context.Background(), 1, 12, RescheduleInput{ExpectedVersion: 1, CourtID: 9, StartAt: at(14, 0)})
	require.ErrorIs(t, err, ErrNotFound)
}
