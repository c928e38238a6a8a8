package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/repositories"
	"github.com/Dosada05/padel-system/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTxDB returns a mock database that accepts any number of transactions.
// Callers add the ExpectBegin/ExpectCommit pairs they need.
func newTxDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func at(h, m int) time.Time {
	return time.Date(2026, 5, 9, h, m, 0, 0, time.UTC)
}

// --- tournaments ---

type fakeTournamentRepo struct {
	tournaments map[int]*models.Tournament
}

func newFakeTournamentRepo(ts ...*models.Tournament) *fakeTournamentRepo {
	r := &fakeTournamentRepo{tournaments: map[int]*models.Tournament{}}
	for _, t := range ts {
		r.tournaments[t.ID] = t
	}
	return r
}

func (r *fakeTournamentRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Tournament, error) {
	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTournamentRepo) UpdateGeneration(_ context.Context, _ repositories.SQLExecutor, id int, seed string, at time.Time) error {
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.GenerationSeed = &seed
	t.GeneratedAt = &at
	return nil
}

func (r *fakeTournamentRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	return nil
}

// --- pairings ---

type fakePairingRepo struct {
	mu       sync.Mutex
	pairings map[int]*models.Pairing
	nextID   int
	players  map[int][]int
	updates  int
}

func newFakePairingRepo() *fakePairingRepo {
	return &fakePairingRepo{pairings: map[int]*models.Pairing{}, nextID: 1, players: map[int][]int{}}
}

func clonePairing(p *models.Pairing) *models.Pairing {
	cp := *p
	cp.Slots = append([]models.PairingSlot(nil), p.Slots...)
	return &cp
}

// put stores p as is, assigning an id when missing.
func (r *fakePairingRepo) put(p *models.Pairing) *models.Pairing {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == 0 {
		p.ID = r.nextID
		r.nextID++
	}
	if p.Version == 0 {
		p.Version = 1
	}
	r.pairings[p.ID] = clonePairing(p)
	return p
}

func (r *fakePairingRepo) Create(_ context.Context, _ repositories.SQLExecutor, p *models.Pairing) error {
	r.put(p)
	return nil
}

func (r *fakePairingRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Pairing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pairings[id]
	if !ok {
		return nil, repositories.ErrPairingNotFound
	}
	return clonePairing(p), nil
}

func (r *fakePairingRepo) Update(_ context.Context, _ repositories.SQLExecutor, p *models.Pairing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.pairings[p.ID]
	if !ok {
		return repositories.ErrPairingNotFound
	}
	if cur.Version != p.Version {
		return repositories.ErrVersionConflict
	}
	p.Version++
	r.pairings[p.ID] = clonePairing(p)
	r.updates++
	return nil
}

func (r *fakePairingRepo) sorted(keep func(p *models.Pairing) bool) []*models.Pairing {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Pairing
	for _, p := range r.pairings {
		if keep(p) {
			out = append(out, clonePairing(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakePairingRepo) ListConfirmedByEvent(_ context.Context, _ repositories.SQLExecutor, eventID int) ([]*models.Pairing, error) {
	return r.sorted(func(p *models.Pairing) bool {
		return p.TournamentID == eventID &&
			(p.Status == models.PairingConfirmedBothPaid || p.Status == models.PairingConfirmedCaptainFull)
	}), nil
}

func (r *fakePairingRepo) PlayersByPairing(_ context.Context, _ repositories.SQLExecutor, ids []int) (map[int][]int, error) {
	out := make(map[int][]int, len(ids))
	for _, id := range ids {
		if players, ok := r.players[id]; ok {
			out[id] = players
		}
	}
	return out, nil
}

func (r *fakePairingRepo) ListGraceExpired(_ context.Context, _ repositories.SQLExecutor, now time.Time) ([]*models.Pairing, error) {
	return r.sorted(func(p *models.Pairing) bool {
		return p.GuaranteeStatus == models.GuaranteeRequiresAction && p.GraceUntilAt != nil && p.GraceUntilAt.Before(now)
	}), nil
}

func (r *fakePairingRepo) ListPastDeadline(_ context.Context, _ repositories.SQLExecutor, now time.Time) ([]*models.Pairing, error) {
	return r.sorted(func(p *models.Pairing) bool {
		pending := p.Status == models.PairingPendingOnePaid || p.Status == models.PairingPendingPartnerPayment
		return pending && p.DeadlineAt != nil && p.DeadlineAt.Before(now)
	}), nil
}

// --- matches ---

type fakeMatchRepo struct {
	mu      sync.Mutex
	matches map[int]*models.Match
	stages  []*models.Stage
	nextID  int
	// listErr fails ListOnCourts, simulating an unreadable agenda.
	listErr error
	deleted bool
}

func newFakeMatchRepo(ms ...*models.Match) *fakeMatchRepo {
	r := &fakeMatchRepo{matches: map[int]*models.Match{}, nextID: 1000}
	for _, m := range ms {
		if m.Version == 0 {
			m.Version = 1
		}
		r.matches[m.ID] = cloneMatch(m)
	}
	return r
}

func cloneMatch(m *models.Match) *models.Match {
	cp := *m
	cp.Sets = append([]models.SetScore(nil), m.Sets...)
	return &cp
}

func (r *fakeMatchRepo) stored(id int) *models.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneMatch(r.matches[id])
}

func (r *fakeMatchRepo) CreateStage(_ context.Context, _ repositories.SQLExecutor, stage *models.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stage.ID = len(r.stages) + 1
	r.stages = append(r.stages, stage)
	return nil
}

func (r *fakeMatchRepo) DeleteSkeleton(_ context.Context, _ repositories.SQLExecutor, eventID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.matches {
		if m.TournamentID == eventID {
			delete(r.matches, id)
		}
	}
	r.stages = nil
	r.deleted = true
	return nil
}

func (r *fakeMatchRepo) CountStarted(_ context.Context, _ repositories.SQLExecutor, eventID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.matches {
		if m.TournamentID == eventID && (m.Status == models.MatchStatusInProgress || m.Status == models.MatchStatusDone) {
			n++
		}
	}
	return n, nil
}

func (r *fakeMatchRepo) Create(_ context.Context, _ repositories.SQLExecutor, m *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = r.nextID
	r.nextID++
	m.Version = 1
	r.matches[m.ID] = cloneMatch(m)
	return nil
}

func (r *fakeMatchRepo) LinkNext(_ context.Context, _ repositories.SQLExecutor, matchID, nextMatchID, slot int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[matchID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.NextMatchID = &nextMatchID
	m.NextMatchSlot = &slot
	return nil
}

func (r *fakeMatchRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	return cloneMatch(m), nil
}

func (r *fakeMatchRepo) filter(keep func(m *models.Match) bool) []*models.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Match
	for _, m := range r.matches {
		if keep(m) {
			out = append(out, cloneMatch(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeMatchRepo) ListByEvent(_ context.Context, _ repositories.SQLExecutor, eventID int) ([]*models.Match, error) {
	return r.filter(func(m *models.Match) bool { return m.TournamentID == eventID }), nil
}

func (r *fakeMatchRepo) ListByGroup(_ context.Context, _ repositories.SQLExecutor, eventID int, group string) ([]*models.Match, error) {
	return r.filter(func(m *models.Match) bool {
		return m.TournamentID == eventID && m.GroupLabel != nil && *m.GroupLabel == group
	}), nil
}

func (r *fakeMatchRepo) ListOnCourts(_ context.Context, _ repositories.SQLExecutor, courtIDs []int, from, to time.Time, fallbackMinutes int) ([]*models.Match, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	courts := make(map[int]bool, len(courtIDs))
	for _, id := range courtIDs {
		courts[id] = true
	}
	return r.filter(func(m *models.Match) bool {
		if m.CourtID == nil || m.StartAt == nil || !courts[*m.CourtID] || m.Status == models.MatchStatusCancelled {
			return false
		}
		return m.StartAt.Before(to) && matchEnd(m, fallbackMinutes).After(from)
	}), nil
}

func (r *fakeMatchRepo) write(m *models.Match, apply func(cur *models.Match)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.matches[m.ID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	if cur.Version != m.Version {
		return repositories.ErrVersionConflict
	}
	apply(cur)
	cur.Version++
	m.Version = cur.Version
	return nil
}

func (r *fakeMatchRepo) UpdateSchedule(_ context.Context, _ repositories.SQLExecutor, m *models.Match) error {
	return r.write(m, func(cur *models.Match) {
		cur.CourtID, cur.StartAt, cur.EndAt, cur.DurationMinutes, cur.Status = m.CourtID, m.StartAt, m.EndAt, m.DurationMinutes, m.Status
	})
}

func (r *fakeMatchRepo) UpdateResult(_ context.Context, _ repositories.SQLExecutor, m *models.Match) error {
	return r.write(m, func(cur *models.Match) {
		cur.Sets = append([]models.SetScore(nil), m.Sets...)
		cur.WinnerPairingID, cur.Status = m.WinnerPairingID, m.Status
	})
}

func (r *fakeMatchRepo) UpdateSides(_ context.Context, _ repositories.SQLExecutor, m *models.Match) error {
	return r.write(m, func(cur *models.Match) {
		cur.Pairing1ID, cur.Pairing2ID = m.Pairing1ID, m.Pairing2ID
	})
}

// --- courts ---

type fakeCourtRepo struct {
	courts   []models.Court
	blocks   []models.CourtBlock
	bookings []models.CourtBooking
	locked   [][]int
	listErr  error
}

func (r *fakeCourtRepo) ListActive(_ context.Context, _ repositories.SQLExecutor, orgID int) ([]models.Court, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []models.Court
	for _, c := range r.courts {
		if c.OrganizationID == orgID && c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCourtRepo) LockCourts(_ context.Context, _ repositories.SQLExecutor, ids []int) error {
	r.locked = append(r.locked, append([]int(nil), ids...))
	return nil
}

func (r *fakeCourtRepo) ListBlocks(_ context.Context, _ repositories.SQLExecutor, orgID int, from, to time.Time) ([]models.CourtBlock, error) {
	var out []models.CourtBlock
	for _, b := range r.blocks {
		if b.OrganizationID == orgID && b.StartsAt.Before(to) && b.EndsAt.After(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeCourtRepo) ListBookings(_ context.Context, _ repositories.SQLExecutor, ids []int, from, to time.Time) ([]models.CourtBooking, error) {
	courts := make(map[int]bool, len(ids))
	for _, id := range ids {
		courts[id] = true
	}
	var out []models.CourtBooking
	for _, b := range r.bookings {
		if courts[b.CourtID] && b.StartsAt.Before(to) && b.EndsAt().After(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeAvailabilityRepo struct {
	windows []models.PlayerUnavailability
}

func (r *fakeAvailabilityRepo) ListByEvent(_ context.Context, _ repositories.SQLExecutor, eventID int, from, to time.Time) ([]models.PlayerUnavailability, error) {
	var out []models.PlayerUnavailability
	for _, w := range r.windows {
		if w.TournamentID == eventID && w.StartsAt.Before(to) && w.EndsAt.After(from) {
			out = append(out, w)
		}
	}
	return out, nil
}

// --- standings ---

type fakeStandingRepo struct {
	groups map[string][]*models.GroupStanding
}

func newFakeStandingRepo() *fakeStandingRepo {
	return &fakeStandingRepo{groups: map[string][]*models.GroupStanding{}}
}

func (r *fakeStandingRepo) ReplaceGroup(_ context.Context, _ *sql.Tx, _ int, group string, rows []*models.GroupStanding) error {
	r.groups[group] = rows
	return nil
}

func (r *fakeStandingRepo) ListByGroup(_ context.Context, _ repositories.SQLExecutor, _ int, group string) ([]*models.GroupStanding, error) {
	return r.groups[group], nil
}

// --- side effects ---

type published struct {
	tournamentID int
	eventType    string
	payload      interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

func (n *recordingNotifier) Publish(tournamentID int, eventType string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, published{tournamentID, eventType, payload})
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.eventType
	}
	return out
}

type fakeExporter struct {
	snapshots []storage.Snapshot
	err       error
}

func (e *fakeExporter) Export(_ context.Context, snap storage.Snapshot) (*storage.PutResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.snapshots = append(e.snapshots, snap)
	return &storage.PutResult{Key: string(snap.Kind) + "/" + snap.RunID}, nil
}
