package middleware

import (
	"context"
	"net/http"
	"strings"

	"caregiver-hub/internal/model"
)

type tokenVerifier interface {
	VerifyAccessToken(token string) (*model.AuthClaims, error)
}

type contextKey string

const principalContextKey contextKey = "principal"

type AuthMiddleware struct {
	verifier tokenVerifier
}

func NewAuthMiddleware(verifier tokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// RequireAuth accepts any valid access token, caregiver, admin or patient.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid authorization header")
			return
		}

		claims, err := m.verifier.VerifyAccessToken(token)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		noteSubject(r.Context(), claims.Subject, string(claims.Role))
		ctx := WithPrincipal(r.Context(), claims.Principal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects patient principals. It must run after RequireAuth.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		if _, isUser := principal.(model.UserPrincipal); !isUser {
			writeAuthError(w, http.StatusForbidden, "FORBIDDEN", "caregiver or admin account required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeAuthError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
			return
		}
		if !user.IsAdmin() {
			writeAuthError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithPrincipal(ctx context.Context, principal model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(model.Principal)
	return principal, ok && principal != nil
}

func UserFromContext(ctx context.Context) (model.UserPrincipal, bool) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return model.UserPrincipal{}, false
	}
	user, ok := principal.(model.UserPrincipal)
	return user, ok
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

func writeAuthError(w http.ResponseWriter, status int, code string, message string) {
	writeJSONError(w, status, code, message)
}
