package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/padel-system/models"
)

var secret = []byte("test-secret")

func sign(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func organizerClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"user_id": 5,
		"org_id":  3,
		"role":    "organizer",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
}

func echoPrincipal(w http.ResponseWriter, r *http.Request) {
	p, err := PrincipalFromContext(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(p)
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body["code"]
}

func TestAuthenticate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Authenticate(secret, logger)(http.HandlerFunc(echoPrincipal))

	expired := organizerClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + sign(t, secret, organizerClaims()), http.StatusOK},
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong key", "Bearer " + sign(t, []byte("other"), organizerClaims()), http.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, secret, expired), http.StatusUnauthorized},
		{"garbage", "Bearer not.a.token", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			require.Equal(t, tt.status, rr.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, "UNAUTHORIZED", errorCode(t, rr))
				return
			}
			var p models.Principal
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
			assert.Equal(t, models.Principal{UserID: 5, OrganizationID: 3, Role: models.RoleOrganizer}, p)
		})
	}
}

func TestAuthorize(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Authorize(models.RoleOrganizer, models.RoleAdmin)(ok)

	tests := []struct {
		name   string
		claims jwt.MapClaims
		status int
	}{
		{"organizer", jwt.MapClaims{"user_id": 1.0, "org_id": 2.0, "role": "organizer"}, http.StatusNoContent},
		{"admin with string ids", jwt.MapClaims{"user_id": "1", "org_id": "2", "role": "admin"}, http.StatusNoContent},
		{"player", jwt.MapClaims{"user_id": 1.0, "role": "player"}, http.StatusForbidden},
		{"organizer without organization", jwt.MapClaims{"user_id": 1.0, "role": "organizer"}, http.StatusForbidden},
		{"unknown role", jwt.MapClaims{"user_id": 1.0, "org_id": 2.0, "role": "root"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req = req.WithContext(WithClaims(req.Context(), tt.claims))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestGetUserIDFromContext(t *testing.T) {
	_, err := GetUserIDFromContext(context.Background())
	require.Error(t, err)

	tests := []struct {
		name    string
		value   interface{}
		want    int
		wantErr bool
	}{
		{"float", 7.0, 7, false},
		{"string", "7", 7, false},
		{"fraction", 7.5, 0, true},
		{"zero", 0.0, 0, true},
		{"bool", true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithClaims(context.Background(), jwt.MapClaims{"user_id": tt.value})
			got, err := GetUserIDFromContext(ctx)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRateLimitByOrg(t *testing.T) {
	limiter := NewOrgRateLimiter(2)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) })
	h := RateLimitByOrg(limiter)(ok)

	call := func(orgID interface{}) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		claims := jwt.MapClaims{"user_id": 1.0, "role": "organizer"}
		if orgID != nil {
			claims["org_id"] = orgID
		}
		req = req.WithContext(WithClaims(req.Context(), claims))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusAccepted, call(1.0).Code)
	assert.Equal(t, http.StatusAccepted, call(1.0).Code)

	rr := call(1.0)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, rr))
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// бюджет считается отдельно для каждой организации
	assert.Equal(t, http.StatusAccepted, call(2.0).Code)
	assert.Equal(t, http.StatusForbidden, call(nil).Code)
}

func TestOrgRateLimiter_PrunesIdleOrganizations(t *testing.T) {
	limiter := NewOrgRateLimiter(1)
	clock := time.Date(2026, 5, 9, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return clock }

	for id := 1; id <= cleanupThreshold+1; id++ {
		limiter.GetLimiter(id)
	}
	clock = clock.Add(maxIdleAge + time.Minute)
	limiter.GetLimiter(1)

	assert.Len(t, limiter.orgs, 1)
}
