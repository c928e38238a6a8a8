package routes

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/padel-system/brackets"
	"github.com/Dosada05/padel-system/handlers"
	"github.com/Dosada05/padel-system/metrics"
	"github.com/Dosada05/padel-system/middleware"
	"github.com/Dosada05/padel-system/services"
)

var testSecret = []byte("routes-secret")

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

type countingScheduleService struct{ calls int }

func (s *countingScheduleService) AutoSchedule(context.Context, int, int, services.AutoScheduleInput) (*services.ScheduleResult, error) {
	s.calls++
	return &services.ScheduleResult{RunID: "run", DryRun: true}, nil
}

func newTestRouter(t *testing.T, schedule services.ScheduleService) *chi.Mux {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := metrics.NewRegistry()
	metrics.New(reg)

	router := chi.NewRouter()
	SetupRoutes(router, Handlers{
		Pairing:     handlers.NewPairingHandler(nil, logger),
		Bracket:     handlers.NewBracketHandler(nil, logger),
		Schedule:    handlers.NewScheduleHandler(schedule, nil, logger),
		Match:       handlers.NewMatchHandler(nil, logger),
		Standings:   handlers.NewStandingsHandler(nil, logger),
		Matchmaking: handlers.NewMatchmakingHandler(nil, logger),
		WebSocket:   handlers.NewWebSocketHandler(brackets.NewHub(logger), nil, logger),
		Health:      handlers.NewHealthHandler(okPinger{}, logger),
		Metrics:     metrics.Handler(reg),
	}, Options{
		JWTSecret:       testSecret,
		ScheduleLimiter: middleware.NewOrgRateLimiter(1),
		Logger:          logger,
	})
	return router
}

func token(t *testing.T, role string, orgID int) string {
	t.Helper()
	claims := jwt.MapClaims{"user_id": 5, "role": role, "exp": time.Now().Add(time.Hour).Unix()}
	if orgID > 0 {
		claims["org_id"] = orgID
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return s
}

func do(router http.Handler, method, path, bearer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

const window = `{"window_start":"2026-05-09T09:00:00Z","window_end":"2026-05-09T12:00:00Z","dry_run":true}`

func TestRoutes_PublicEndpoints(t *testing.T) {
	router := newTestRouter(t, &countingScheduleService{})

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/healthz", "", "").Code)

	rr := do(router, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")

	rr = do(router, http.MethodGet, "/swagger/doc.json", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "/events/{eventID}/schedule")
}

func TestRoutes_Authentication(t *testing.T) {
	schedule := &countingScheduleService{}
	router := newTestRouter(t, schedule)

	rr := do(router, http.MethodPost, "/api/v1/events/7/schedule", "", window)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(router, http.MethodPost, "/api/v1/events/7/schedule", token(t, "player", 1), window)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(router, http.MethodPost, "/api/v1/events/7/schedule", token(t, "organizer", 0), window)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	assert.Zero(t, schedule.calls)
}

func TestRoutes_ScheduleIsRateLimitedPerOrganization(t *testing.T) {
	schedule := &countingScheduleService{}
	router := newTestRouter(t, schedule)

	rr := do(router, http.MethodPost, "/api/v1/events/7/schedule", token(t, "organizer", 1), window)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(router, http.MethodPost, "/api/v1/events/7/schedule", token(t, "organizer", 1), window)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), "RATE_LIMITED")

	rr = do(router, http.MethodPost, "/api/v1/events/7/schedule", token(t, "admin", 2), window)
	assert.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, 2, schedule.calls)
}
