package auth

import "time"

// User represents an account row joined with its role name.
type User struct {
	ID           int64
	TenantID     *int64
	Username     string
	PasswordHash string
	OpenID       string
	RoleID       *int64
	RoleName     string
	PermRange    string
	TeamID       int64
	TenantOwner  bool
	SuperAdmin   bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LoginRecord captures a login attempt for the login_logs table.
type LoginRecord struct {
	UserID    int64
	Username  string
	TenantID  *int64
	Succeeded bool
	IP        string
	UserAgent string
	At        time.Time
}
