package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/loomline/loomline/internal/tenancy"
)

// PermissionSource computes the effective permission codes for a subject.
// Implemented by the rbac engine; abstracted here so the middleware can be
// tested without a database.
type PermissionSource interface {
	ComputeEffective(ctx context.Context, userID int64, roleID *int64, tenantID *int64, tenantOwner bool) ([]string, error)
}

// Middleware resolves the request principal once per request: it extracts
// and verifies the bearer token, checks the password-version counter and
// binds a fully materialized principal to the request context. Requests
// without a valid token continue as anonymous.
type Middleware struct {
	codec    *TokenCodec
	versions *PasswordVersions
	perms    PermissionSource
	logger   *slog.Logger
}

// NewMiddleware wires the principal resolver.
func NewMiddleware(codec *TokenCodec, versions *PasswordVersions, perms PermissionSource, logger *slog.Logger) *Middleware {
	return &Middleware{codec: codec, versions: versions, perms: perms, logger: logger}
}

// Handler is the chi-compatible middleware entry point.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub := m.resolveSubject(r)
		if sub == nil {
			next.ServeHTTP(w, r)
			return
		}

		p := &tenancy.Principal{
			UserID:      sub.UserID,
			Username:    sub.Username,
			RoleID:      sub.RoleID,
			RoleName:    sub.RoleName,
			OpenID:      sub.OpenID,
			TenantID:    sub.TenantID,
			TenantOwner: sub.TenantOwner,
			SuperAdmin:  sub.SuperAdmin,
			PermRange:   sub.PermRange,
			TeamID:      sub.TeamID,
			PwdVersion:  sub.PwdVersion,
			Permissions: m.materializeAuthorities(r.Context(), sub),
		}
		next.ServeHTTP(w, r.WithContext(tenancy.WithPrincipal(r.Context(), p)))
	})
}

// resolveSubject extracts and verifies the token, then enforces the
// password-version invalidation marker.
func (m *Middleware) resolveSubject(r *http.Request) *Subject {
	token := ExtractToken(r)
	if token == "" {
		return nil
	}
	sub := m.codec.Verify(token)
	if sub == nil {
		return nil
	}

	if m.versions != nil && sub.UserID != 0 {
		current, err := m.versions.Current(r.Context(), sub.UserID)
		if err != nil {
			// The counter store being down must not take the platform with
			// it; availability wins over this one invalidation guarantee.
			m.logger.Warn("password version check failed, allowing request",
				slog.Int64("user_id", sub.UserID),
				slog.Any("error", err))
		} else if sub.PwdVersion < current {
			m.logger.Debug("token predates password change",
				slog.Int64("user_id", sub.UserID),
				slog.Int64("token_version", sub.PwdVersion),
				slog.Int64("current_version", current))
			return nil
		}
	}
	return sub
}

// materializeAuthorities combines role tags with the effective permission
// codes. A failing permission computation degrades to role tags only; the
// session stays usable and still tenant-isolated.
func (m *Middleware) materializeAuthorities(ctx context.Context, sub *Subject) []string {
	authorities := make([]string, 0, 8)
	appendRoleTag(&authorities, sub.RoleID)
	appendRoleTag(&authorities, sub.RoleName)
	if sub.TenantOwner {
		authorities = append(authorities, "ROLE_tenant_owner")
	}

	if m.perms == nil {
		return authorities
	}
	var roleID *int64
	if id, err := strconv.ParseInt(strings.TrimSpace(sub.RoleID), 10, 64); err == nil {
		roleID = &id
	}
	if roleID == nil && !sub.TenantOwner {
		return authorities
	}
	codes, err := m.perms.ComputeEffective(ctx, sub.UserID, roleID, sub.TenantID, sub.TenantOwner)
	if err != nil {
		m.logger.Warn("permission resolution degraded to role tags",
			slog.Int64("user_id", sub.UserID),
			slog.Any("error", err))
		return authorities
	}
	return append(authorities, codes...)
}

// ExtractToken pulls the bearer token from the Authorization header, falling
// back to the token query parameter for link-based access (file downloads)
// that cannot set headers.
func ExtractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) >= 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func appendRoleTag(authorities *[]string, role string) {
	for _, part := range strings.FieldsFunc(role, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	}) {
		if part = strings.TrimSpace(part); part != "" {
			*authorities = append(*authorities, "ROLE_"+part)
		}
	}
}
