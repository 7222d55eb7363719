package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomline/loomline/internal/platform/db"
	"github.com/loomline/loomline/internal/shared"
)

// Store defines the persistence surface the engine and admin service need.
type Store interface {
	ListRoles(ctx context.Context, tenantID *int64) ([]Role, error)
	CreateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, roleID int64) error
	SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error)
	AllPermissionIDs(ctx context.Context) ([]int64, error)
	CeilingEntries(ctx context.Context, tenantID int64) ([]CeilingEntry, error)
	Overrides(ctx context.Context, userID int64) ([]OverrideEntry, error)
	PermissionCodes(ctx context.Context, ids []int64) ([]string, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	UpsertCeiling(ctx context.Context, entry CeilingEntry) error
	DeleteCeiling(ctx context.Context, tenantID, permissionID int64) error
	InsertOverride(ctx context.Context, entry OverrideEntry) error
	DeleteOverride(ctx context.Context, userID, permissionID int64) error
}

// PGStore implements Store on PostgreSQL. Every table it touches is on the
// tenant-agnostic allow-list, so statements here are never rewritten.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PGStore.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// ListRoles returns a tenant's roles together with the NULL-tenant template
// roles every tenant may use. A nil tenantID lists template roles only.
func (s *PGStore) ListRoles(ctx context.Context, tenantID *int64) ([]Role, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, created_at, updated_at FROM roles
		 WHERE tenant_id IS NULL OR tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Name, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// CreateRole inserts a role. A duplicate name within the tenant surfaces as
// shared.ErrDuplicate.
func (s *PGStore) CreateRole(ctx context.Context, role *Role) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO roles (tenant_id, name, created_at, updated_at)
		 VALUES ($1, $2, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		role.TenantID, role.Name).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrDuplicate
		}
		return err
	}
	return nil
}

// DeleteRole removes a role and its permission assignments.
func (s *PGStore) DeleteRole(ctx context.Context, roleID int64) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// SetRolePermissions replaces the role's permission set atomically.
func (s *PGStore) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, pid := range permissionIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
				roleID, pid); err != nil {
				return err
			}
		}
		return nil
	})
}

// RolePermissionIDs returns the permission ids attached to a role.
func (s *PGStore) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT permission_id FROM role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// AllPermissionIDs returns every permission id in the system.
func (s *PGStore) AllPermissionIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM permissions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// CeilingEntries returns the full ceiling configuration for a tenant.
func (s *PGStore) CeilingEntries(ctx context.Context, tenantID int64) ([]CeilingEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT permission_id, status FROM tenant_permission_ceilings WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []CeilingEntry
	for rows.Next() {
		e := CeilingEntry{TenantID: tenantID}
		if err := rows.Scan(&e.PermissionID, &e.Status); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Overrides returns the per-user adjustments.
func (s *PGStore) Overrides(ctx context.Context, userID int64) ([]OverrideEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT permission_id, override_type FROM user_permission_overrides WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []OverrideEntry
	for rows.Next() {
		e := OverrideEntry{UserID: userID}
		if err := rows.Scan(&e.PermissionID, &e.Type); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PermissionCodes maps permission ids to their sorted codes.
func (s *PGStore) PermissionCodes(ctx context.Context, ids []int64) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT code FROM permissions WHERE id = ANY($1) ORDER BY code`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := make([]string, 0, len(ids))
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// ListPermissions returns the full permission catalogue ordered by code.
func (s *PGStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, code, name FROM permissions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Name); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// UpsertCeiling writes or flips a ceiling entry.
func (s *PGStore) UpsertCeiling(ctx context.Context, entry CeilingEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenant_permission_ceilings (tenant_id, permission_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id, permission_id) DO UPDATE SET status = EXCLUDED.status`,
		entry.TenantID, entry.PermissionID, entry.Status)
	return err
}

// DeleteCeiling removes a ceiling entry.
func (s *PGStore) DeleteCeiling(ctx context.Context, tenantID, permissionID int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM tenant_permission_ceilings WHERE tenant_id = $1 AND permission_id = $2`,
		tenantID, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// InsertOverride records a per-user adjustment. A duplicate entry surfaces
// as shared.ErrDuplicate.
func (s *PGStore) InsertOverride(ctx context.Context, entry OverrideEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_permission_overrides (user_id, permission_id, override_type)
		 VALUES ($1, $2, $3)`,
		entry.UserID, entry.PermissionID, entry.Type)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrDuplicate
		}
		return err
	}
	return nil
}

// DeleteOverride removes a per-user adjustment.
func (s *PGStore) DeleteOverride(ctx context.Context, userID, permissionID int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM user_permission_overrides WHERE user_id = $1 AND permission_id = $2`,
		userID, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanIDs(rows pgx.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ Store = (*PGStore)(nil)
