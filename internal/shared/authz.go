package shared

import (
	"log/slog"
	"net/http"

	"github.com/procura-erp/procura-erp/internal/platform/httpx"
)

// Role names are fixed for this system; there is no permission matrix.
const (
	RoleOfficeHead = "OFFICE_HEAD"
	RoleAccountant = "ACCOUNTANT"
	RolePresident  = "PRESIDENT"
	RoleAdmin      = "ADMIN"
)

// Authz wires role checks for HTTP handlers.
type Authz struct {
	Logger *slog.Logger
}

// RequireAuth ensures a logged-in user.
func (a Authz) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole ensures the current user holds one of the given roles.
// Admin passes every check.
func (a Authz) RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := SessionFromContext(r.Context())
			if sess == nil || sess.User() == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
				return
			}
			if sess.Role() == RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := allowed[sess.Role()]; !ok {
				if a.Logger != nil {
					a.Logger.Warn("role denied", slog.String("role", sess.Role()), slog.String("path", r.URL.Path))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
