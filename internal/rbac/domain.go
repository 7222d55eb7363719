package rbac

import "time"

// Role represents a permission grouping. Template roles carry a NULL tenant
// id and are visible to every tenant alongside its own roles.
type Role struct {
	ID        int64
	TenantID  *int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Permission represents an atomic capability identified by a stable code.
type Permission struct {
	ID   int64
	Code string
	Name string
}

// CeilingStatus classifies a tenant ceiling entry.
type CeilingStatus string

const (
	CeilingGranted CeilingStatus = "GRANTED"
	CeilingBlocked CeilingStatus = "BLOCKED"
)

// CeilingEntry is the administrator-configured upper bound of what any user
// inside a tenant may ever hold.
type CeilingEntry struct {
	TenantID     int64
	PermissionID int64
	Status       CeilingStatus
}

// OverrideType classifies a per-user adjustment beneath the ceiling.
type OverrideType string

const (
	OverrideGrant  OverrideType = "GRANT"
	OverrideRevoke OverrideType = "REVOKE"
)

// OverrideEntry is a fine per-user adjustment: GRANT adds within the
// ceiling, REVOKE removes unconditionally.
type OverrideEntry struct {
	UserID       int64
	PermissionID int64
	Type         OverrideType
}
