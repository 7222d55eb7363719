package tenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSuperAdmin(t *testing.T) {
	tenantID := int64(4)

	assert.True(t, (&Principal{SuperAdmin: true}).IsSuperAdmin())
	assert.True(t, (&Principal{RoleName: "platform admin"}).IsSuperAdmin())
	assert.False(t, (&Principal{TenantID: &tenantID, RoleName: "admin"}).IsSuperAdmin())
	assert.False(t, (&Principal{TenantID: &tenantID, TenantOwner: true}).IsSuperAdmin())
	assert.False(t, (*Principal)(nil).IsSuperAdmin())
}

func TestIsTopAdmin(t *testing.T) {
	assert.True(t, (&Principal{TenantOwner: true}).IsTopAdmin())
	assert.True(t, (&Principal{RoleName: "Workshop Manager"}).IsTopAdmin())
	assert.True(t, (&Principal{RoleID: "1"}).IsTopAdmin())
	assert.False(t, (&Principal{RoleName: "operator"}).IsTopAdmin())
}

func TestDataScope(t *testing.T) {
	assert.Equal(t, RangeAll, (&Principal{TenantOwner: true, PermRange: RangeOwn}).DataScope())
	assert.Equal(t, RangeAll, (&Principal{PermRange: "ALL"}).DataScope())
	assert.Equal(t, RangeTeam, (&Principal{PermRange: RangeTeam}).DataScope())
	assert.Equal(t, RangeOwn, (&Principal{PermRange: "bogus"}).DataScope())
	assert.Equal(t, RangeOwn, (*Principal)(nil).DataScope())
}

func TestHasPermission(t *testing.T) {
	p := &Principal{Permissions: []string{"orders:read", "ROLE_operator"}}
	assert.True(t, p.HasPermission("orders:read"))
	assert.True(t, p.HasPermission("ORDERS:READ"))
	assert.False(t, p.HasPermission("orders:write"))
	assert.False(t, p.HasPermission(""))
}

func TestIsAdminRole(t *testing.T) {
	assert.True(t, IsAdminRole("1"))
	assert.True(t, IsAdminRole("Admin"))
	assert.True(t, IsAdminRole("site manager"))
	assert.False(t, IsAdminRole("operator"))
	assert.False(t, IsAdminRole(""))
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	assert.Nil(t, PrincipalFromContext(context.Background()))

	p := &Principal{UserID: 42}
	ctx := WithPrincipal(context.Background(), p)
	assert.Same(t, p, PrincipalFromContext(ctx))
}
