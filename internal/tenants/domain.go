package tenants

import "time"

// Tenant is one customer organisation on the platform.
type Tenant struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Contact   string     `json:"contact,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
