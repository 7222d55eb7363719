package tenancy

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the tenant-aware statement pipeline. Every statement passes through
// the rewriter before it reaches the pool, so business repositories never
// add tenant predicates themselves. INSERTs get the tenant id stamped from
// the bound principal.
type DB struct {
	pool     *pgxpool.Pool
	rewriter *Rewriter
	logger   *slog.Logger
}

// NewDB wraps a pool with the tenant isolation pipeline.
func NewDB(pool *pgxpool.Pool, tables *TableConfig, logger *slog.Logger) *DB {
	return &DB{
		pool:     pool,
		rewriter: NewRewriter(tables, logger),
		logger:   logger,
	}
}

// Pool exposes the underlying pool for platform concerns (migrations,
// health checks) that must bypass tenancy.
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

// Rewriter exposes the configured rewriter, mainly for tests.
func (d *DB) Rewriter() *Rewriter {
	return d.rewriter
}

// Query runs a tenant-filtered query. INSERT statements arriving here, as
// RETURNING clauses force them to, get the tenant id stamped like in Exec.
func (d *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return d.pool.Query(ctx, d.prepare(ctx, sql), args...)
}

// QueryRow runs a tenant-filtered single-row query.
func (d *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return d.pool.QueryRow(ctx, d.prepare(ctx, sql), args...)
}

// QueryScoped runs a query through both the tenant filter and the declared
// row scope. The scope applies to this statement only.
func (d *DB) QueryScoped(ctx context.Context, scope RowScope, sql string, args ...any) (pgx.Rows, error) {
	rewritten := d.rewriter.Rewrite(ctx, sql)
	return d.pool.Query(ctx, scope.Wrap(rewritten, PrincipalFromContext(ctx)), args...)
}

// QueryRowScoped is QueryScoped for single-row lookups.
func (d *DB) QueryRowScoped(ctx context.Context, scope RowScope, sql string, args ...any) pgx.Row {
	rewritten := d.rewriter.Rewrite(ctx, sql)
	return d.pool.QueryRow(ctx, scope.Wrap(rewritten, PrincipalFromContext(ctx)), args...)
}

// Exec runs a mutation. UPDATE/DELETE receive the tenant predicate, INSERT
// receives a stamped tenant_id column.
func (d *DB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return d.pool.Exec(ctx, d.prepare(ctx, sql), args...)
}

// prepare routes a statement to its isolation stage: INSERT gets the tenant
// id stamped, everything else goes through the rewriter. Every entry point
// funnels through here so no verb can reach the pool unprocessed.
func (d *DB) prepare(ctx context.Context, sql string) string {
	if DetectKind(sql) == StatementInsert {
		return d.stampInsert(ctx, sql)
	}
	return d.rewriter.Rewrite(ctx, sql)
}

var insertPattern = regexp.MustCompile("(?i)^\\s*INSERT\\s+INTO\\s+[`\"]?([A-Za-z_][A-Za-z0-9_]*)[`\"]?\\s*\\(")

// stampInsert adds tenant_id to a single-row INSERT issued by a tenant
// session against a tenant-scoped table. Statements it cannot parse with
// certainty pass through unchanged; callers of multi-row or column-less
// inserts supply tenant_id themselves.
func (d *DB) stampInsert(ctx context.Context, sql string) string {
	p := PrincipalFromContext(ctx)
	if p == nil || p.TenantID == nil {
		return sql
	}

	m := insertPattern.FindStringSubmatchIndex(sql)
	if m == nil {
		return sql
	}
	table := strings.ToLower(sql[m[2]:m[3]])
	if d.rewriter.tables.IsExcluded(table) {
		return sql
	}

	colsStart := m[1] - 1 // opening parenthesis matched by the pattern
	colsEnd := matchingParen(sql, colsStart)
	if colsEnd < 0 {
		return sql
	}
	if strings.Contains(strings.ToLower(sql[colsStart:colsEnd]), "tenant_id") {
		return sql
	}

	tail := sql[colsEnd+1:]
	valuesIdx := findFirstAtDepthZero(tail, "VALUES")
	if valuesIdx < 0 {
		return sql
	}
	valsStart := strings.IndexByte(tail[valuesIdx:], '(')
	if valsStart < 0 {
		return sql
	}
	valsStart += colsEnd + 1 + valuesIdx
	valsEnd := matchingParen(sql, valsStart)
	if valsEnd < 0 {
		return sql
	}
	if rest := strings.TrimSpace(sql[valsEnd+1:]); strings.HasPrefix(rest, ",") {
		// Multi-row insert, leave it to the caller.
		return sql
	}

	stamped := sql[:colsEnd] + ", tenant_id" + sql[colsEnd:valsEnd] +
		fmt.Sprintf(", %d", *p.TenantID) + sql[valsEnd:]
	if d.logger != nil {
		d.logger.Debug("tenant insert stamped",
			slog.String("table", table),
			slog.Int64("tenant_id", *p.TenantID))
	}
	return stamped
}

// matchingParen returns the index of the parenthesis closing the one at
// open, or -1 when unbalanced.
func matchingParen(sql string, open int) int {
	depth := 0
	for i := open; i < len(sql); i++ {
		switch sql[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
