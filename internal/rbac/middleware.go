package rbac

import (
	"log/slog"
	"net/http"

	"github.com/loomline/loomline/internal/platform/httpx"
	"github.com/loomline/loomline/internal/tenancy"
)

// Middleware guards routes with permission-code checks against the
// authorities materialized at request entry. No storage round-trip happens
// here; the work was done once by the principal resolver.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny admits principals holding at least one of the given codes.
func (m Middleware) RequireAny(codes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := tenancy.PrincipalFromContext(r.Context())
			if p == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			for _, code := range codes {
				if p.HasPermission(code) {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.deny(w, r, p, codes)
		})
	}
}

// RequireSuperAdmin admits platform super-admin sessions only.
func (m Middleware) RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := tenancy.PrincipalFromContext(r.Context())
		if p == nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		if !p.IsSuperAdmin() {
			m.deny(w, r, p, []string{"super_admin"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, p *tenancy.Principal, codes []string) {
	if m.Logger != nil {
		m.Logger.Warn("authorization denied",
			slog.Int64("user_id", p.UserID),
			slog.String("path", r.URL.Path),
			slog.Any("required", codes))
	}
	httpx.RespondError(w, httpx.ErrForbidden)
}
