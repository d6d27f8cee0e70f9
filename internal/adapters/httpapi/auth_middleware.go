package httpapi

import (
	"net/http"
	"strings"

	"github.com/convention-registry/member-api/internal/platform/auth/sessiontoken"
)

// TokenVerifier verifies a raw session token.
type TokenVerifier interface {
	Verify(raw string) (sessiontoken.Session, error)
}

func isPublicPath(path string) bool {
	return path == "/healthz" || path == "/metrics"
}

// NewAuthMiddleware enforces Authorization: Bearer <session token> for every people endpoint.
//
// On success, it stores the authenticated session in request context.
func NewAuthMiddleware(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authz := r.Header.Get("Authorization")
			if authz == "" {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing Authorization header", nil)
				return
			}
			const prefix = "Bearer "
			if !strings.HasPrefix(authz, prefix) {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "malformed Authorization header", nil)
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
			if raw == "" {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
				return
			}

			sess, err := v.Verify(raw)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// NewDevAuthMiddleware is a local/dev-only auth shim.
//
// It takes the session email from X-Debug-Email (falling back to defaultEmail) and a
// comma-separated role list from X-Debug-Roles (member_admin, member_list, admin_admin).
// Do NOT use this in production deployments.
func NewDevAuthMiddleware(defaultEmail string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			email := strings.TrimSpace(r.Header.Get("X-Debug-Email"))
			if email == "" {
				email = strings.TrimSpace(defaultEmail)
			}
			if email == "" {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing session (set X-Debug-Email)", nil)
				return
			}

			sess := sessiontoken.Session{Email: email}
			for _, role := range strings.Split(r.Header.Get("X-Debug-Roles"), ",") {
				switch strings.TrimSpace(role) {
				case "member_admin":
					sess.MemberAdmin = true
				case "member_list":
					sess.MemberList = true
				case "admin_admin":
					sess.AdminAdmin = true
				}
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}
