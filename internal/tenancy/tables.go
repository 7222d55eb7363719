package tenancy

import "strings"

// TableConfig is the immutable classification of tables consumed by the
// rewriter. It is built once at startup; the zero value filters everything.
type TableConfig struct {
	excluded   map[string]struct{}
	shared     map[string]struct{}
	superAdmin map[string]struct{}
}

// NewTableConfig builds a TableConfig from explicit table lists. Names are
// matched case-insensitively.
func NewTableConfig(excluded, shared, superAdmin []string) *TableConfig {
	cfg := &TableConfig{
		excluded:   make(map[string]struct{}, len(excluded)),
		shared:     make(map[string]struct{}, len(shared)),
		superAdmin: make(map[string]struct{}, len(superAdmin)),
	}
	for _, t := range excluded {
		cfg.excluded[strings.ToLower(t)] = struct{}{}
	}
	for _, t := range shared {
		cfg.shared[strings.ToLower(t)] = struct{}{}
	}
	for _, t := range superAdmin {
		cfg.superAdmin[strings.ToLower(t)] = struct{}{}
	}
	return cfg
}

// DefaultTableConfig returns the production classification.
func DefaultTableConfig() *TableConfig {
	return NewTableConfig(
		// Tenant-agnostic system tables without a tenant_id column, plus the
		// cross-tenant permission definitions.
		[]string{
			"tenants",
			"permissions",
			"role_permissions",
			"login_logs",
			"audit_logs",
			"dict_entries",
			"param_configs",
			"serial_rules",
			"tenant_permission_ceilings",
			"user_permission_overrides",
		},
		// Shared tables mix tenant rows with NULL-tenant template rows.
		[]string{
			"roles",
			"process_templates",
			"template_operation_logs",
		},
		// Tables a super-admin session may touch across tenants, limited to
		// onboarding and platform administration flows.
		[]string{
			"users",
		},
	)
}

// IsExcluded reports whether the table is tenant-agnostic.
func (c *TableConfig) IsExcluded(table string) bool {
	_, ok := c.excluded[strings.ToLower(table)]
	return ok
}

// IsShared reports whether the table mixes tenant and template rows.
func (c *TableConfig) IsShared(table string) bool {
	_, ok := c.shared[strings.ToLower(table)]
	return ok
}

// AllExcluded reports whether every referenced table is tenant-agnostic.
func (c *TableConfig) AllExcluded(tables []string) bool {
	for _, t := range tables {
		if !c.IsExcluded(t) {
			return false
		}
	}
	return true
}

// AnyShared reports whether any referenced table is a shared table.
func (c *TableConfig) AnyShared(tables []string) bool {
	for _, t := range tables {
		if c.IsShared(t) {
			return true
		}
	}
	return false
}

// AllSuperAdminAccessible reports whether a tenant-less session may access
// every referenced table: excluded, shared and super-admin managed tables
// qualify.
func (c *TableConfig) AllSuperAdminAccessible(tables []string) bool {
	for _, t := range tables {
		lower := strings.ToLower(t)
		if _, ok := c.excluded[lower]; ok {
			continue
		}
		if _, ok := c.shared[lower]; ok {
			continue
		}
		if _, ok := c.superAdmin[lower]; ok {
			continue
		}
		return false
	}
	return true
}
