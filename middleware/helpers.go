package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Dosada05/padel-system/models"
)

type contextKey string

const userContextKey contextKey = "user"

// Имена JWT claims, которые выдаёт платформа
const (
	jwtClaimUserID = "user_id"
	jwtClaimOrgID  = "org_id"
	jwtClaimRole   = "role"
)

var errNoClaims = errors.New("user claims not found in context or invalid type")

// WithClaims stores verified claims in ctx. Handlers tests use it to skip token signing.
func WithClaims(ctx context.Context, claims jwt.MapClaims) context.Context {
	return context.WithValue(ctx, userContextKey, claims)
}

func claimsFrom(ctx context.Context) (jwt.MapClaims, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return nil, errNoClaims
	}
	return claims, nil
}

func GetUserIDFromContext(ctx context.Context) (int, error) {
	claims, err := claimsFrom(ctx)
	if err != nil {
		return 0, err
	}
	return intClaim(claims, jwtClaimUserID)
}

// GetOrgIDFromContext returns the organization the caller acts for.
func GetOrgIDFromContext(ctx context.Context) (int, error) {
	claims, err := claimsFrom(ctx)
	if err != nil {
		return 0, err
	}
	return intClaim(claims, jwtClaimOrgID)
}

func GetUserRoleFromContext(ctx context.Context) (models.UserRole, error) {
	claims, err := claimsFrom(ctx)
	if err != nil {
		return "", err
	}

	roleClaim, ok := claims[jwtClaimRole]
	if !ok {
		return "", fmt.Errorf("missing '%s' claim in token", jwtClaimRole)
	}
	roleStr, ok := roleClaim.(string)
	if !ok {
		return "", fmt.Errorf("invalid type for '%s' claim: expected string, got %T", jwtClaimRole, roleClaim)
	}

	role := models.UserRole(roleStr)
	if !role.Valid() {
		return "", fmt.Errorf("invalid role value in claim: %q", roleStr)
	}
	return role, nil
}

// PrincipalFromContext collects user, organization and role. The organization
// is optional here; organizer routes enforce it in Authorize.
func PrincipalFromContext(ctx context.Context) (models.Principal, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return models.Principal{}, err
	}
	role, err := GetUserRoleFromContext(ctx)
	if err != nil {
		return models.Principal{}, err
	}
	p := models.Principal{UserID: userID, Role: role}
	if orgID, err := GetOrgIDFromContext(ctx); err == nil {
		p.OrganizationID = orgID
	}
	return p, nil
}

// intClaim reads a positive integer claim. JSON numbers arrive as float64,
// some issuers send ids as strings.
func intClaim(claims jwt.MapClaims, name string) (int, error) {
	raw, ok := claims[name]
	if !ok {
		return 0, fmt.Errorf("missing '%s' claim in token", name)
	}

	var id int
	switch v := raw.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("'%s' claim is not an integer: %f", name, v)
		}
		id = int(v)
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("'%s' claim is not an integer: %q", name, v)
		}
		id = parsed
	default:
		return 0, fmt.Errorf("invalid type for '%s' claim: expected float64 or string, got %T", name, raw)
	}

	if id <= 0 {
		return 0, fmt.Errorf("invalid value in '%s' claim: %d", name, id)
	}
	return id, nil
}

// writeError mirrors the handlers error envelope; middleware cannot import handlers.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
