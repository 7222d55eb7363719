package rbac

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomline/loomline/internal/shared"
)

type fakeStore struct {
	rolePerms   map[int64][]int64
	allPerms    []int64
	ceilings    map[int64][]CeilingEntry
	overrides   map[int64][]OverrideEntry
	codes       map[int64]string
	permissions []Permission

	inserted []OverrideEntry
	deleted  []int64
	upserted []CeilingEntry

	roles    []Role
	assigned map[int64][]int64

	failRolePerms bool
	roleCalls     int
}

func (f *fakeStore) ListRoles(_ context.Context, tenantID *int64) ([]Role, error) {
	var out []Role
	for _, r := range f.roles {
		if r.TenantID == nil || (tenantID != nil && *r.TenantID == *tenantID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateRole(_ context.Context, role *Role) error {
	for _, r := range f.roles {
		if r.Name == role.Name {
			return shared.ErrDuplicate
		}
	}
	role.ID = int64(len(f.roles) + 1)
	f.roles = append(f.roles, *role)
	return nil
}

func (f *fakeStore) DeleteRole(_ context.Context, roleID int64) error {
	for i, r := range f.roles {
		if r.ID == roleID {
			f.roles = append(f.roles[:i], f.roles[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (f *fakeStore) SetRolePermissions(_ context.Context, roleID int64, permissionIDs []int64) error {
	if f.assigned == nil {
		f.assigned = map[int64][]int64{}
	}
	f.assigned[roleID] = permissionIDs
	return nil
}

func (f *fakeStore) RolePermissionIDs(_ context.Context, roleID int64) ([]int64, error) {
	f.roleCalls++
	if f.failRolePerms {
		return nil, errors.New("store down")
	}
	return f.rolePerms[roleID], nil
}

func (f *fakeStore) AllPermissionIDs(context.Context) ([]int64, error) {
	return f.allPerms, nil
}

func (f *fakeStore) CeilingEntries(_ context.Context, tenantID int64) ([]CeilingEntry, error) {
	return f.ceilings[tenantID], nil
}

func (f *fakeStore) Overrides(_ context.Context, userID int64) ([]OverrideEntry, error) {
	return f.overrides[userID], nil
}

func (f *fakeStore) PermissionCodes(_ context.Context, ids []int64) ([]string, error) {
	codes := make([]string, 0, len(ids))
	for _, id := range ids {
		if code, ok := f.codes[id]; ok {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

func (f *fakeStore) ListPermissions(context.Context) ([]Permission, error) {
	return f.permissions, nil
}

func (f *fakeStore) UpsertCeiling(_ context.Context, entry CeilingEntry) error {
	f.upserted = append(f.upserted, entry)
	return nil
}

func (f *fakeStore) DeleteCeiling(context.Context, int64, int64) error { return nil }

func (f *fakeStore) InsertOverride(_ context.Context, entry OverrideEntry) error {
	for _, existing := range f.inserted {
		if existing.UserID == entry.UserID && existing.PermissionID == entry.PermissionID {
			return shared.ErrDuplicate
		}
	}
	f.inserted = append(f.inserted, entry)
	return nil
}

func (f *fakeStore) DeleteOverride(_ context.Context, userID, _ int64) error {
	f.deleted = append(f.deleted, userID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rolePerms: map[int64][]int64{},
		ceilings:  map[int64][]CeilingEntry{},
		overrides: map[int64][]OverrideEntry{},
		codes: map[int64]string{
			1: "orders:read",
			2: "orders:write",
			3: "reports:read",
			4: "admin:permissions",
		},
		allPerms: []int64{1, 2, 3, 4},
	}
}

func ptr(v int64) *int64 { return &v }

func TestComputeEffectiveNoRole(t *testing.T) {
	engine := NewEngine(newFakeStore(), nil, testLogger())

	codes, err := engine.ComputeEffective(context.Background(), 10, nil, ptr(1), false)
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestComputeEffectiveRoleWithinUnrestrictedCeiling(t *testing.T) {
	store := newFakeStore()
	store.rolePerms[5] = []int64{1, 2}
	engine := NewEngine(store, nil, testLogger())

	codes, err := engine.ComputeEffective(context.Background(), 10, ptr(5), ptr(1), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders:read", "orders:write"}, codes)
}

func TestComputeEffectiveCeilingIntersection(t *testing.T) {
	store := newFakeStore()
	store.rolePerms[5] = []int64{1, 2, 3}
	store.ceilings[1] = []CeilingEntry{
		{TenantID: 1, PermissionID: 1, Status: CeilingGranted},
		{TenantID: 1, PermissionID: 2, Status: CeilingGranted},
	}
	engine := NewEngine(store, nil, testLogger())

	codes, err := engine.ComputeEffective(context.Background(), 10, ptr(5), ptr(1), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders:read", "orders:write"}, codes)
}

func TestComputeEffectiveBlockedBeatsRoleAndGrant(t *testing.T) {
	store := newFakeStore()
	store.rolePerms[5] = []int64{1, 2}
	store.ceilings[1] = []CeilingEntry{
		{TenantID: 1, PermissionID: 2, Status: CeilingBlocked},
	}
	engine := NewEngine(store, nil, testLogger())

	codes, err := engine.ComputeEffective(context.Background(), 10, ptr(5), ptr(1), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders:read"}, codes)
}

func TestComputeEffectiveOverrides(t *testing.T) {
	store := newFakeStore()
	store.rolePerms[5] = []int64{1}
	store.overrides[10] = []OverrideEntry{
		{UserID: 10, PermissionID: 3, Type: OverrideGrant},
		{UserID: 10, PermissionID: 1, Type: OverrideRevoke},
	}
	engine := NewEngine(store, nil, testLogger())

	codes, err := engine.ComputeEffective(context.Background(), 10, ptr(5), ptr(1), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"reports:read"}, codes)
}

func TestComputeEffectiveIgnoresOutOfCeilingGrant(t *testing.T) {
	store := newFakeStore()
	store.rolePerms[5] = []int64{1}
	store.ceilings[1] = []CeilingEntry{
		{TenantID: 1, PermissionID: 1, Status: CeilingGranted},
		{TenantID: 1, PermissionID: 3, Status: CeilingBlocked},
	}
	// Recorded before the ceiling was narrowed; must not resurface.
	store.overrides[10] = []OverrideEntry{
		{UserID: 10, PermissionID: 2, Type: OverrideGrant},
		{UserID: 10, PermissionID: 3, Type: OverrideGrant},
	}
	engine := NewEngine(store, nil, testLogger())

	codes, err := engine.ComputeEffective(context.Background(), 10, ptr(5), ptr(1), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders:read"}, codes)
}

func TestComputeEffectiveRevokeBeatsGrant(t *testing.T) {
	store := newFakeStore()
	store.rolePerms[5] = []int64{1}
	store.overrides[10] = []OverrideEntry{
		{UserID: 10, PermissionID: 2, Type: OverrideGrant},
		{UserID: 10, PermissionID: 2, Type: OverrideRevoke},
	}
	engine := NewEngine(store, nil, testLogger())

	codes, err := engine.ComputeEffective(context.Background(), 10, ptr(5), ptr(1), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders:read"}, codes)
}

func TestComputeEffectiveOwnerWithoutRole(t *testing.T) {
	store := newFakeStore()
	store.ceilings[1] = []CeilingEntry{
		{TenantID: 1, PermissionID: 1, Status: CeilingGranted},
		{TenantID: 1, PermissionID: 4, Status: CeilingGranted},
	}
	engine := NewEngine(store, nil, testLogger())

	codes, err := engine.ComputeEffective(context.Background(), 10, nil, ptr(1), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin:permissions", "orders:read"}, codes)
}

func TestComputeEffectiveSuperAdminSkipsCeiling(t *testing.T) {
	store := newFakeStore()
	store.rolePerms[1] = []int64{1, 4}
	engine := NewEngine(store, nil, testLogger())

	codes, err := engine.ComputeEffective(context.Background(), 1, ptr(1), nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin:permissions", "orders:read"}, codes)
}

func TestComputeEffectiveUsesCache(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newFakeStore()
	store.rolePerms[5] = []int64{1}
	engine := NewEngine(store, client, testLogger())

	first, err := engine.ComputeEffective(context.Background(), 10, ptr(5), ptr(1), false)
	require.NoError(t, err)
	second, err := engine.ComputeEffective(context.Background(), 10, ptr(5), ptr(1), false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.roleCalls)

	// Eviction forces a recompute.
	engine.EvictUser(context.Background(), 10)
	engine.EvictRole(context.Background(), 5)
	_, err = engine.ComputeEffective(context.Background(), 10, ptr(5), ptr(1), false)
	require.NoError(t, err)
	assert.Equal(t, 2, store.roleCalls)
}

func TestComputeEffectivePropagatesStoreErrors(t *testing.T) {
	store := newFakeStore()
	store.failRolePerms = true
	engine := NewEngine(store, nil, testLogger())

	_, err := engine.ComputeEffective(context.Background(), 10, ptr(5), ptr(1), false)
	assert.Error(t, err)
}

func TestGrantWithinCeiling(t *testing.T) {
	store := newFakeStore()
	store.ceilings[1] = []CeilingEntry{
		{TenantID: 1, PermissionID: 1, Status: CeilingGranted},
		{TenantID: 1, PermissionID: 2, Status: CeilingBlocked},
	}
	engine := NewEngine(store, nil, testLogger())
	ctx := context.Background()

	ok, err := engine.GrantWithinCeiling(ctx, 1, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = engine.GrantWithinCeiling(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = engine.GrantWithinCeiling(ctx, 1, 3)
	require.NoError(t, err)
	assert.False(t, ok, "not GRANTED while a granted list exists")

	// Tenant 2 has no ceiling at all: unrestricted.
	ok, err = engine.GrantWithinCeiling(ctx, 2, 3)
	require.NoError(t, err)
	assert.True(t, ok)
}
