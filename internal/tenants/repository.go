package tenants

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomline/loomline/internal/platform/db"
	"github.com/loomline/loomline/internal/shared"
)

// Repository persists tenants and their owner accounts. Everything here runs
// in a platform super-admin session; the tenants table itself is excluded
// from rewriting and users is on the super-admin allow-list.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateWithOwner inserts the tenant and its owner account in one
// transaction. A tenant must never exist without an owner who can sign in.
func (r *Repository) CreateWithOwner(ctx context.Context, t *Tenant, ownerUsername, ownerPasswordHash string) (int64, error) {
	var ownerID int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO tenants (name, contact, is_active, created_at)
			 VALUES ($1, $2, TRUE, NOW()) RETURNING id, created_at`,
			t.Name, t.Contact).Scan(&t.ID, &t.CreatedAt); err != nil {
			return fmt.Errorf("insert tenant: %w", err)
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO users (tenant_id, username, password_hash, is_tenant_owner, is_active, created_at)
			 VALUES ($1, $2, $3, TRUE, TRUE, NOW()) RETURNING id`,
			t.ID, ownerUsername, ownerPasswordHash).Scan(&ownerID); err != nil {
			return fmt.Errorf("insert owner: %w", err)
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, shared.ErrDuplicate
		}
		return 0, err
	}
	t.IsActive = true
	return ownerID, nil
}

// List returns every tenant ordered by creation time.
func (r *Repository) List(ctx context.Context) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, contact, is_active, created_at, updated_at
		 FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Contact, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetActive flips the tenant activity flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tenants SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
