package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loomline/loomline/internal/shared"
)

// ErrOutsideCeiling rejects a GRANT override for a permission the tenant
// ceiling does not allow. Enforced here, at admin-write time, so the read
// path can trust recorded grants.
var ErrOutsideCeiling = errors.New("rbac: grant exceeds tenant permission ceiling")

// Service exposes administration of the permission model: ceilings and
// per-user overrides. Every mutation evicts the affected caches.
type Service struct {
	store  Store
	engine *Engine
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService constructs the admin service.
func NewService(store Store, engine *Engine, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{store: store, engine: engine, audit: audit, logger: logger}
}

// ListPermissions returns the permission catalogue.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// ListRoles returns the tenant's roles plus shared template roles.
func (s *Service) ListRoles(ctx context.Context, tenantID *int64) ([]Role, error) {
	return s.store.ListRoles(ctx, tenantID)
}

// CreateRole adds a role for the tenant.
func (s *Service) CreateRole(ctx context.Context, actorID int64, role *Role) error {
	if err := s.store.CreateRole(ctx, role); err != nil {
		return err
	}
	s.record(ctx, actorID, "role.create", "role", role.ID, map[string]any{"name": role.Name})
	return nil
}

// DeleteRole removes a role and its assignments.
func (s *Service) DeleteRole(ctx context.Context, actorID, roleID int64) error {
	if err := s.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.engine.EvictRole(ctx, roleID)
	s.record(ctx, actorID, "role.delete", "role", roleID, nil)
	return nil
}

// SetRolePermissions replaces a role's permission set. Assignments must stay
// within the tenant ceiling, same as per-user grants.
func (s *Service) SetRolePermissions(ctx context.Context, actorID int64, tenantID *int64, roleID int64, permissionIDs []int64) error {
	if tenantID != nil {
		for _, pid := range permissionIDs {
			ok, err := s.engine.GrantWithinCeiling(ctx, *tenantID, pid)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: permission %d", ErrOutsideCeiling, pid)
			}
		}
	}
	if err := s.store.SetRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	s.engine.EvictRole(ctx, roleID)
	s.record(ctx, actorID, "role.set_permissions", "role", roleID, map[string]any{
		"permission_ids": permissionIDs,
	})
	return nil
}

// SetCeiling writes or flips a ceiling entry for a tenant.
func (s *Service) SetCeiling(ctx context.Context, actorID int64, entry CeilingEntry) error {
	if entry.Status != CeilingGranted && entry.Status != CeilingBlocked {
		return fmt.Errorf("rbac: invalid ceiling status %q", entry.Status)
	}
	if err := s.store.UpsertCeiling(ctx, entry); err != nil {
		return err
	}
	s.engine.EvictTenantCeiling(ctx, entry.TenantID)
	s.record(ctx, actorID, "ceiling.set", "tenant", entry.TenantID, map[string]any{
		"permission_id": entry.PermissionID,
		"status":        string(entry.Status),
	})
	return nil
}

// RemoveCeiling deletes a ceiling entry for a tenant.
func (s *Service) RemoveCeiling(ctx context.Context, actorID, tenantID, permissionID int64) error {
	if err := s.store.DeleteCeiling(ctx, tenantID, permissionID); err != nil {
		return err
	}
	s.engine.EvictTenantCeiling(ctx, tenantID)
	s.record(ctx, actorID, "ceiling.remove", "tenant", tenantID, map[string]any{
		"permission_id": permissionID,
	})
	return nil
}

// AddOverride records a per-user adjustment. GRANT entries must stay within
// the tenant ceiling.
func (s *Service) AddOverride(ctx context.Context, actorID int64, tenantID *int64, entry OverrideEntry) error {
	if entry.Type != OverrideGrant && entry.Type != OverrideRevoke {
		return fmt.Errorf("rbac: invalid override type %q", entry.Type)
	}
	if entry.Type == OverrideGrant && tenantID != nil {
		ok, err := s.engine.GrantWithinCeiling(ctx, *tenantID, entry.PermissionID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOutsideCeiling
		}
	}
	if err := s.store.InsertOverride(ctx, entry); err != nil {
		return err
	}
	s.engine.EvictUser(ctx, entry.UserID)
	s.record(ctx, actorID, "override.add", "user", entry.UserID, map[string]any{
		"permission_id": entry.PermissionID,
		"type":          string(entry.Type),
	})
	return nil
}

// RemoveOverride deletes a per-user adjustment.
func (s *Service) RemoveOverride(ctx context.Context, actorID, userID, permissionID int64) error {
	if err := s.store.DeleteOverride(ctx, userID, permissionID); err != nil {
		return err
	}
	s.engine.EvictUser(ctx, userID)
	s.record(ctx, actorID, "override.remove", "user", userID, map[string]any{
		"permission_id": permissionID,
	})
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
