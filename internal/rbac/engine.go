package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache key prefixes. Values are JSON-encoded code or id lists.
const (
	userPermCachePrefix      = "user:perms:"
	rolePermCachePrefix      = "role:perms:"
	tenantCeilingCachePrefix = "tenant:ceiling:"
)

const cacheTTL = 30 * time.Minute

// Engine computes a user's effective permission codes from three tiers:
//
//	effective = ((role ∩ ceilingGranted) − ceilingBlocked ∪ userGrants) − userRevokes
//
// A tenant with no ceiling configuration is unrestricted. Grants are kept
// inside the ceiling at admin-write time, so the read path applies them as
// recorded. Revokes always win. Results are cached in Redis and concurrent
// computations for the same user are collapsed.
type Engine struct {
	store  Store
	cache  *redis.Client
	logger *slog.Logger
	group  singleflight.Group
}

// NewEngine constructs an Engine. The cache client may be nil, in which case
// every call recomputes from the store.
func NewEngine(store Store, cache *redis.Client, logger *slog.Logger) *Engine {
	return &Engine{store: store, cache: cache, logger: logger}
}

// ComputeEffective resolves the effective permission code list for a user.
// Any failure returns an error so the caller can degrade to coarse role-tag
// authorities; the request itself keeps going.
func (e *Engine) ComputeEffective(ctx context.Context, userID int64, roleID *int64, tenantID *int64, tenantOwner bool) ([]string, error) {
	// A tenant owner without a role still receives everything the ceiling
	// allows; anyone else without a role holds nothing.
	if roleID == nil && !(tenantOwner && tenantID != nil) {
		return []string{}, nil
	}

	// Super-admin sessions are not subject to a ceiling.
	if tenantID == nil {
		ids, err := e.rolePermissionIDs(ctx, *roleID)
		if err != nil {
			return nil, err
		}
		return e.store.PermissionCodes(ctx, ids)
	}

	cacheKey := fmt.Sprintf("%s%d", userPermCachePrefix, userID)
	if codes, ok := e.cachedStrings(ctx, cacheKey); ok {
		return codes, nil
	}

	v, err, _ := e.group.Do(cacheKey, func() (any, error) {
		codes, err := e.computeTenantUser(ctx, userID, roleID, *tenantID, tenantOwner)
		if err != nil {
			return nil, err
		}
		e.cacheStrings(ctx, cacheKey, codes)
		return codes, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (e *Engine) computeTenantUser(ctx context.Context, userID int64, roleID *int64, tenantID int64, tenantOwner bool) ([]string, error) {
	var base []int64
	var err error
	if roleID != nil {
		base, err = e.rolePermissionIDs(ctx, *roleID)
	} else {
		// Owner without a role: synthesize "everything within the ceiling".
		base, err = e.store.AllPermissionIDs(ctx)
	}
	if err != nil {
		return nil, err
	}
	if len(base) == 0 && !tenantOwner {
		return []string{}, nil
	}

	granted, blocked, err := e.ceilingSets(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	effective := make(map[int64]struct{}, len(base))
	for _, id := range base {
		if len(granted) > 0 {
			if _, ok := granted[id]; !ok {
				continue
			}
		}
		effective[id] = struct{}{}
	}
	for id := range blocked {
		delete(effective, id)
	}

	overrides, err := e.store.Overrides(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		if o.Type != OverrideGrant {
			continue
		}
		// Grants are checked against the ceiling when written; re-check here
		// so a later ceiling change cannot resurrect an out-of-bounds grant.
		if _, bad := blocked[o.PermissionID]; bad {
			continue
		}
		if len(granted) > 0 {
			if _, ok := granted[o.PermissionID]; !ok {
				continue
			}
		}
		effective[o.PermissionID] = struct{}{}
	}
	for _, o := range overrides {
		if o.Type == OverrideRevoke {
			delete(effective, o.PermissionID)
		}
	}

	ids := make([]int64, 0, len(effective))
	for id := range effective {
		ids = append(ids, id)
	}
	return e.store.PermissionCodes(ctx, ids)
}

func (e *Engine) rolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	cacheKey := fmt.Sprintf("%s%d", rolePermCachePrefix, roleID)
	if ids, ok := e.cachedIDs(ctx, cacheKey); ok {
		return ids, nil
	}
	ids, err := e.store.RolePermissionIDs(ctx, roleID)
	if err != nil {
		return nil, err
	}
	e.cacheIDs(ctx, cacheKey, ids)
	return ids, nil
}

func (e *Engine) ceilingSets(ctx context.Context, tenantID int64) (granted, blocked map[int64]struct{}, err error) {
	cacheKey := fmt.Sprintf("%s%d", tenantCeilingCachePrefix, tenantID)
	entries, ok := e.cachedCeiling(ctx, cacheKey)
	if !ok {
		entries, err = e.store.CeilingEntries(ctx, tenantID)
		if err != nil {
			return nil, nil, err
		}
		e.cacheCeiling(ctx, cacheKey, entries)
	}

	granted = make(map[int64]struct{})
	blocked = make(map[int64]struct{})
	for _, entry := range entries {
		switch entry.Status {
		case CeilingGranted:
			granted[entry.PermissionID] = struct{}{}
		case CeilingBlocked:
			blocked[entry.PermissionID] = struct{}{}
		}
	}
	return granted, blocked, nil
}

// GrantWithinCeiling reports whether a permission may be granted to a user
// of the tenant: either no ceiling is configured, or the permission is
// GRANTED and not BLOCKED.
func (e *Engine) GrantWithinCeiling(ctx context.Context, tenantID, permissionID int64) (bool, error) {
	granted, blocked, err := e.ceilingSets(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if _, ok := blocked[permissionID]; ok {
		return false, nil
	}
	if len(granted) == 0 {
		return true, nil
	}
	_, ok := granted[permissionID]
	return ok, nil
}

// EvictUser drops the cached effective permissions for a user.
func (e *Engine) EvictUser(ctx context.Context, userID int64) {
	e.evict(ctx, fmt.Sprintf("%s%d", userPermCachePrefix, userID))
}

// EvictRole drops the cached permission ids for a role.
func (e *Engine) EvictRole(ctx context.Context, roleID int64) {
	e.evict(ctx, fmt.Sprintf("%s%d", rolePermCachePrefix, roleID))
}

// EvictTenantCeiling drops the cached ceiling for a tenant.
func (e *Engine) EvictTenantCeiling(ctx context.Context, tenantID int64) {
	e.evict(ctx, fmt.Sprintf("%s%d", tenantCeilingCachePrefix, tenantID))
}

func (e *Engine) evict(ctx context.Context, key string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Del(ctx, key).Err(); err != nil {
		e.logger.Warn("permission cache evict", slog.String("key", key), slog.Any("error", err))
	}
}

func (e *Engine) cachedStrings(ctx context.Context, key string) ([]string, bool) {
	if e.cache == nil {
		return nil, false
	}
	data, err := e.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var codes []string
	if err := json.Unmarshal(data, &codes); err != nil {
		return nil, false
	}
	return codes, true
}

func (e *Engine) cacheStrings(ctx context.Context, key string, codes []string) {
	if e.cache == nil {
		return
	}
	data, err := json.Marshal(codes)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, data, cacheTTL).Err(); err != nil {
		e.logger.Debug("permission cache write", slog.String("key", key), slog.Any("error", err))
	}
}

func (e *Engine) cachedIDs(ctx context.Context, key string) ([]int64, bool) {
	if e.cache == nil {
		return nil, false
	}
	data, err := e.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, false
	}
	return ids, true
}

func (e *Engine) cacheIDs(ctx context.Context, key string, ids []int64) {
	if e.cache == nil {
		return
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return
	}
	_ = e.cache.Set(ctx, key, data, cacheTTL).Err()
}

func (e *Engine) cachedCeiling(ctx context.Context, key string) ([]CeilingEntry, bool) {
	if e.cache == nil {
		return nil, false
	}
	data, err := e.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var entries []CeilingEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

func (e *Engine) cacheCeiling(ctx context.Context, key string, entries []CeilingEntry) {
	if e.cache == nil {
		return
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	_ = e.cache.Set(ctx, key, data, cacheTTL).Err()
}
