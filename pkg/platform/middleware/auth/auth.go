package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"opsdesk/pkg/domain"
	request "opsdesk/pkg/platform/middleware/request"
	"opsdesk/pkg/requestcontext"
)

// JWTValidator turns a bearer token into claims.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// ValidatorFunc adapts a function to JWTValidator.
type ValidatorFunc func(tokenString string) (*JWTClaims, error)

func (f ValidatorFunc) ValidateToken(tokenString string) (*JWTClaims, error) { return f(tokenString) }

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	UserID      string
	TenantID    string
	Role        string
	Permissions []string
	JTI         string
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// ToPrincipal converts validated claims into the caller identity.
func ToPrincipal(claims *JWTClaims) (domain.Principal, error) {
	userID, err := domain.ParseUserID(claims.UserID)
	if err != nil {
		return domain.Principal{}, err
	}
	tenantID, err := domain.ParseTenantID(claims.TenantID)
	if err != nil {
		return domain.Principal{}, err
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.Principal{}, err
	}
	return domain.Principal{
		UserID:      userID,
		TenantID:    tenantID,
		Role:        role,
		Permissions: claims.Permissions,
	}, nil
}

// RequireAuth validates the bearer token and stores the Principal on the context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			principal, err := ToPrincipal(claims)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed claims",
					"error", err,
					"jti", claims.JTI,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid token claims")
				return
			}

			ctx = requestcontext.WithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GrantSource supplies permissions approved after a token was issued.
type GrantSource interface {
	GrantedPermissions(ctx context.Context, tenantID domain.TenantID, userID domain.UserID) ([]string, error)
}

// MergeGrants appends approved grants to the principal set by RequireAuth.
// A lookup failure keeps the token's permissions and is only logged.
func MergeGrants(source GrantSource, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal := requestcontext.Principal(ctx)
			if !principal.IsAuthenticated() || principal.IsAdmin() {
				next.ServeHTTP(w, r)
				return
			}
			granted, err := source.GrantedPermissions(ctx, principal.TenantID, principal.UserID)
			if err != nil {
				logger.WarnContext(ctx, "failed to load permission grants",
					"error", err,
					"user_id", principal.UserID,
					"request_id", request.GetRequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}
			perms := slices.Clone(principal.Permissions)
			for _, perm := range granted {
				if !slices.Contains(perms, perm) {
					perms = append(perms, perm)
				}
			}
			principal.Permissions = perms
			next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(ctx, principal)))
		})
	}
}
