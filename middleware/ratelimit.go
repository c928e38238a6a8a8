package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// cleanupThreshold is the map size above which idle entries are pruned.
	cleanupThreshold = 500
	maxIdleAge       = 10 * time.Minute
)

type orgEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// OrgRateLimiter keeps one token bucket per organization.
type OrgRateLimiter struct {
	orgs map[int]*orgEntry
	mu   sync.Mutex
	r    rate.Limit
	b    int
	now  func() time.Time
}

// NewOrgRateLimiter allows perMinute requests per organization with a burst of the same size.
func NewOrgRateLimiter(perMinute int) *OrgRateLimiter {
	return &OrgRateLimiter{
		orgs: make(map[int]*orgEntry),
		r:    rate.Limit(float64(perMinute) / 60),
		b:    perMinute,
		now:  time.Now,
	}
}

// GetLimiter returns the limiter of orgID, pruning idle organizations when the map is large.
func (l *OrgRateLimiter) GetLimiter(orgID int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.orgs) > cleanupThreshold {
		cutoff := now.Add(-maxIdleAge)
		for k, e := range l.orgs {
			if e.lastSeen.Before(cutoff) {
				delete(l.orgs, k)
			}
		}
	}

	e, exists := l.orgs[orgID]
	if !exists {
		e = &orgEntry{limiter: rate.NewLimiter(l.r, l.b)}
		l.orgs[orgID] = e
	}
	e.lastSeen = now
	return e.limiter
}

// RateLimitByOrg rejects requests beyond the organization budget with 429.
// It must run after Authenticate.
func RateLimitByOrg(limiter *OrgRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID, err := GetOrgIDFromContext(r.Context())
			if err != nil {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "token is not bound to an organization")
				return
			}

			lim := limiter.GetLimiter(orgID)
			if !lim.Allow() {
				retry := time.Duration(float64(time.Second) / float64(limiter.r))
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests for this organization")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
