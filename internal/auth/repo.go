package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomline/loomline/internal/shared"
)

// Repository defines persistence operations for the auth module. Lookups run
// before a principal is bound, so they pass through the pipeline unfiltered.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	RecordLogin(ctx context.Context, rec LoginRecord) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByUsername fetches an active account with its role name.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	const query = `
		SELECT u.id, u.tenant_id, u.username, u.password_hash, u.openid,
		       u.role_id, COALESCE(ro.name, ''), u.permission_range, u.team_id,
		       u.is_tenant_owner, u.is_super_admin, u.is_active,
		       u.created_at, u.updated_at
		FROM users u
		LEFT JOIN roles ro ON ro.id = u.role_id
		WHERE u.username = $1`

	var (
		u        User
		tenantID pgtype.Int8
		roleID   pgtype.Int8
		openid   pgtype.Text
		teamID   pgtype.Int8
	)
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&u.ID, &tenantID, &u.Username, &u.PasswordHash, &openid,
		&roleID, &u.RoleName, &u.PermRange, &teamID,
		&u.TenantOwner, &u.SuperAdmin, &u.IsActive,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if tenantID.Valid {
		u.TenantID = &tenantID.Int64
	}
	if roleID.Valid {
		u.RoleID = &roleID.Int64
	}
	u.OpenID = openid.String
	u.TeamID = teamID.Int64
	return &u, nil
}

// UpdatePassword replaces the stored hash.
func (r *PGRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		userID, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RecordLogin appends a row to login_logs and, on success, moves the
// account's last_login_at marker. The table is tenant-agnostic.
func (r *PGRepository) RecordLogin(ctx context.Context, rec LoginRecord) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO login_logs (user_id, username, tenant_id, succeeded, ip, user_agent, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.UserID, rec.Username, rec.TenantID, rec.Succeeded, rec.IP, rec.UserAgent, at)
	if err != nil {
		return err
	}
	if rec.Succeeded && rec.UserID != 0 {
		_, err = r.pool.Exec(ctx,
			`UPDATE users SET last_login_at = $2 WHERE id = $1`, rec.UserID, at)
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
