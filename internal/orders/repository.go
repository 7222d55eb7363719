package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/loomline/loomline/internal/shared"
	"github.com/loomline/loomline/internal/tenancy"
)

// orderScope declares the row-level columns for production orders. Listing
// and lookups pass it explicitly so the filter is visible at the call site.
var orderScope = tenancy.RowScope{
	CreatorColumn: "created_by",
	TeamColumn:    "factory_id",
	Alias:         "o",
}

// Repository persists production orders through the tenant-aware pipeline.
// No query here mentions tenant_id; isolation is the pipeline's job.
type Repository struct {
	db *tenancy.DB
}

// NewRepository constructs the repository.
func NewRepository(db *tenancy.DB) *Repository {
	return &Repository{db: db}
}

// orderColumns keeps factory_id and created_by named in the projection so
// the scope wrapper can reference them on the derived table.
const orderColumns = `id, order_no, style_no, quantity, status, COALESCE(factory_id, 0) AS factory_id, created_by, COALESCE(remark, '') AS remark, created_at, updated_at`

// Create inserts the order. tenant_id is stamped by the pipeline.
func (r *Repository) Create(ctx context.Context, o *Order) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO production_orders (order_no, style_no, quantity, status, factory_id, created_by, remark, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, 0), $6, $7, NOW()) RETURNING id, created_at`,
		o.OrderNo, o.StyleNo, o.Quantity, o.Status, o.FactoryID, o.CreatedBy, o.Remark,
	).Scan(&o.ID, &o.CreatedAt)
}

// Get returns one order visible to the caller's data scope.
func (r *Repository) Get(ctx context.Context, id int64) (*Order, error) {
	row := r.db.QueryRowScoped(ctx, orderScope,
		`SELECT `+orderColumns+` FROM production_orders WHERE id = $1`, id)
	var o Order
	if err := scanOrder(row, &o); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// List returns orders visible to the caller's data scope, newest first.
// Pagination sits above the scope wrapper; putting LIMIT inside the wrapped
// statement would page through rows the caller is not allowed to see.
func (r *Repository) List(ctx context.Context, status string, limit, offset int) ([]Order, error) {
	inner := r.db.Rewriter().Rewrite(ctx,
		`SELECT `+orderColumns+` FROM production_orders WHERE ($1 = '' OR status = $1)`)
	scoped := orderScope.Wrap(inner, tenancy.PrincipalFromContext(ctx))

	rows, err := r.db.Pool().Query(ctx,
		scoped+` ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Count returns the scoped total for pagination. The aggregation sits above
// the scope wrapper, so the count sees exactly the rows List would return.
func (r *Repository) Count(ctx context.Context, status string) (int, error) {
	inner := r.db.Rewriter().Rewrite(ctx,
		`SELECT id, created_by, COALESCE(factory_id, 0) AS factory_id
		 FROM production_orders WHERE ($1 = '' OR status = $1)`)
	scoped := orderScope.Wrap(inner, tenancy.PrincipalFromContext(ctx))

	var total int
	err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM (`+scoped+`) c`, status).Scan(&total)
	return total, err
}

// UpdateStatus moves the order through its lifecycle. The tenant predicate is
// appended by the pipeline, so a cross-tenant id simply affects zero rows.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE production_orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a draft order.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM production_orders WHERE id = $1 AND status = 'draft'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row, o *Order) error {
	return row.Scan(&o.ID, &o.OrderNo, &o.StyleNo, &o.Quantity, &o.Status,
		&o.FactoryID, &o.CreatedBy, &o.Remark, &o.CreatedAt, &o.UpdatedAt)
}
