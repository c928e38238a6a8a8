package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/padel-system/agenda"
	"github.com/Dosada05/padel-system/lifecycle"
	"github.com/Dosada05/padel-system/matchmaking"
	"github.com/Dosada05/padel-system/middleware"
	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/services"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withClaims stands in for Authenticate in handler tests.
func withClaims(claims jwt.MapClaims) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithClaims(r.Context(), claims)))
		})
	}
}

func organizer() jwt.MapClaims {
	return jwt.MapClaims{"user_id": 5.0, "org_id": 1.0, "role": "organizer"}
}

func player() jwt.MapClaims {
	return jwt.MapClaims{"user_id": 9.0, "org_id": 1.0, "role": "player"}
}

type response struct {
	status int
	body   map[string]json.RawMessage
}

func (r response) code(t *testing.T) string {
	t.Helper()
	var code string
	if raw, ok := r.body["code"]; ok {
		require.NoError(t, json.Unmarshal(raw, &code))
	}
	return code
}

func (r response) decode(t *testing.T, key string, dst interface{}) {
	t.Helper()
	raw, ok := r.body[key]
	require.True(t, ok, "missing %q in response", key)
	require.NoError(t, json.Unmarshal(raw, dst))
}

func serve(t *testing.T, router http.Handler, method, path string, body interface{}) response {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	res := response{status: rr.Code}
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res.body), rr.Body.String())
	}
	return res
}

func newRouter(claims jwt.MapClaims, mount func(r chi.Router)) *chi.Mux {
	router := chi.NewRouter()
	router.Use(withClaims(claims))
	mount(router)
	return router
}

type fakePairingService struct {
	services.PairingService
	created     *services.CreatedPairing
	pairing     *models.Pairing
	err         error
	createInput services.CreatePairingInput
	action      lifecycle.Action
	version     int64
	orgID       int
}

func (f *fakePairingService) Create(_ context.Context, in services.CreatePairingInput) (*services.CreatedPairing, error) {
	f.createInput = in
	return f.created, f.err
}

func (f *fakePairingService) Get(_ context.Context, orgID, _ int) (*models.Pairing, error) {
	f.orgID = orgID
	return f.pairing, f.err
}

func (f *fakePairingService) ApplyAction(_ context.Context, orgID, _ int, action lifecycle.Action, version int64) (*models.Pairing, error) {
	f.orgID, f.action, f.version = orgID, action, version
	return f.pairing, f.err
}

func (f *fakePairingService) ClaimInvite(_ context.Context, _ int, _ string, _ int, version int64) (*models.Pairing, error) {
	f.version = version
	return f.pairing, f.err
}

type fakeScheduleService struct {
	result *services.ScheduleResult
	err    error
	input  services.AutoScheduleInput
}

func (f *fakeScheduleService) AutoSchedule(_ context.Context, _, _ int, in services.AutoScheduleInput) (*services.ScheduleResult, error) {
	f.input = in
	return f.result, f.err
}

type fakeAgendaService struct {
	decision agenda.Decision
	err      error
}

func (f *fakeAgendaService) Check(context.Context, int, services.AgendaCheckInput) (agenda.Decision, error) {
	return f.decision, f.err
}

type fakeBracketService struct {
	services.BracketService
	bracket *services.GeneratedBracket
	err     error
}

func (f *fakeBracketService) Generate(context.Context, int, int, services.GenerateBracketInput) (*services.GeneratedBracket, error) {
	return f.bracket, f.err
}

type fakeMatchService struct {
	services.MatchService
	result *services.MatchResult
	err    error
	input  services.RecordResultInput
}

func (f *fakeMatchService) RecordResult(_ context.Context, _, _ int, in services.RecordResultInput) (*services.MatchResult, error) {
	f.input = in
	return f.result, f.err
}

type fakeStandingsService struct {
	rows  []*models.GroupStanding
	err   error
	group string
}

func (f *fakeStandingsService) Get(_ context.Context, _, _ int, group string) ([]*models.GroupStanding, error) {
	f.group = group
	return f.rows, f.err
}

func (f *fakeStandingsService) Rebuild(ctx context.Context, orgID, eventID int, group string) ([]*models.GroupStanding, error) {
	return f.Get(ctx, orgID, eventID, group)
}

type fakeMatchmakingService struct {
	round *matchmaking.Round
	err   error
}

func (f *fakeMatchmakingService) GenerateRound(context.Context, services.GenerateRoundInput) (*matchmaking.Round, error) {
	return f.round, f.err
}
