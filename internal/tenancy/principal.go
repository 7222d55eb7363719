package tenancy

import (
	"context"
	"strings"
)

// Permission range values carried in tokens and principals. They control how
// far a user's row-level visibility extends inside their own tenant.
const (
	RangeAll  = "all"
	RangeTeam = "team"
	RangeOwn  = "own"
)

// Principal is the authenticated identity reconstructed from a signed token
// on every request. It is never persisted server-side; the password version
// counter is the only piece of login state the server keeps.
type Principal struct {
	UserID      int64
	Username    string
	RoleID      string
	RoleName    string
	OpenID      string
	TenantID    *int64
	TenantOwner bool
	SuperAdmin  bool
	PermRange   string
	TeamID      int64
	PwdVersion  int64

	// Permissions holds the materialized authority set for the request: role
	// tags plus the effective permission codes computed at request entry.
	Permissions []string
}

// IsSuperAdmin reports whether the principal has platform-wide reach. The
// explicit flag wins; a nil tenant combined with an admin role is accepted
// for tokens issued before the flag existed.
func (p *Principal) IsSuperAdmin() bool {
	if p == nil {
		return false
	}
	return p.SuperAdmin || (p.TenantID == nil && p.IsTopAdmin())
}

// IsTopAdmin reports whether the principal administers its tenant. Tenant
// owners qualify regardless of role assignment.
func (p *Principal) IsTopAdmin() bool {
	if p == nil {
		return false
	}
	if p.TenantOwner {
		return true
	}
	return IsAdminRole(p.RoleName) || IsAdminRole(p.RoleID)
}

// DataScope resolves the effective row-level visibility: all, team or own.
func (p *Principal) DataScope() string {
	if p == nil {
		return RangeOwn
	}
	if p.IsTopAdmin() || strings.EqualFold(p.PermRange, RangeAll) {
		return RangeAll
	}
	if strings.EqualFold(p.PermRange, RangeTeam) {
		return RangeTeam
	}
	return RangeOwn
}

// HasPermission reports whether the materialized authority set contains code.
func (p *Principal) HasPermission(code string) bool {
	if p == nil || code == "" {
		return false
	}
	for _, c := range p.Permissions {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

// IsAdminRole reports whether a role identifier names an administrator. Used
// to pick the anti-escalation default for legacy tokens that predate the
// permission-range claim.
func IsAdminRole(role string) bool {
	r := strings.TrimSpace(role)
	if r == "" {
		return false
	}
	if r == "1" {
		return true
	}
	lower := strings.ToLower(r)
	return strings.Contains(lower, "admin") || strings.Contains(lower, "manager")
}

type principalContextKey struct{}

// WithPrincipal binds the principal to the request context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the bound principal, nil when the request is
// anonymous.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
