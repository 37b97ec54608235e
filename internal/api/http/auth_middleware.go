package httpapi

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/tokengate/tokengate/internal/domain/identity"
)

// requireAdmin checks the bearer token against the configured bcrypt hash
// and records the acting identity from X-Actor.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminTokenHash == "" {
			respondError(w, http.StatusServiceUnavailable, "ADMIN_DISABLED", "admin token not configured")
			return
		}
		token := extractToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(s.adminTokenHash), []byte(token)); err != nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}
		actor := identity.Identity(strings.TrimSpace(r.Header.Get("X-Actor")))
		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
	})
}

func extractToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return ""
}
