package tenancy

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tenantCtx(tenantID int64) context.Context {
	return WithPrincipal(context.Background(), &Principal{UserID: 10, TenantID: &tenantID})
}

func superAdminCtx() context.Context {
	return WithPrincipal(context.Background(), &Principal{UserID: 1, SuperAdmin: true})
}

func newTestRewriter(t *testing.T) *Rewriter {
	t.Helper()
	return NewRewriter(DefaultTableConfig(), discardLogger())
}

func TestRewritePassThroughWithoutPrincipal(t *testing.T) {
	rw := newTestRewriter(t)
	sql := "SELECT * FROM production_orders"
	assert.Equal(t, sql, rw.Rewrite(context.Background(), sql))
}

func TestRewriteAppendsTenantPredicate(t *testing.T) {
	rw := newTestRewriter(t)

	got := rw.Rewrite(tenantCtx(7), "SELECT * FROM production_orders")
	assert.Equal(t, "SELECT * FROM production_orders WHERE tenant_id = 7", got)
}

func TestRewriteExtendsExistingWhere(t *testing.T) {
	rw := newTestRewriter(t)

	got := rw.Rewrite(tenantCtx(7), "SELECT * FROM production_orders WHERE status = 'draft'")
	assert.Equal(t, "SELECT * FROM production_orders WHERE status = 'draft' AND tenant_id = 7", got)
}

func TestRewriteInsertsBeforeTerminator(t *testing.T) {
	rw := newTestRewriter(t)

	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "order by",
			in:   "SELECT * FROM production_orders ORDER BY id",
			want: "SELECT * FROM production_orders WHERE tenant_id = 7 ORDER BY id",
		},
		{
			name: "where plus limit",
			in:   "SELECT * FROM production_orders WHERE qty > 0 LIMIT 10",
			want: "SELECT * FROM production_orders WHERE qty > 0 AND tenant_id = 7 LIMIT 10",
		},
		{
			name: "group by",
			in:   "SELECT status, COUNT(*) FROM production_orders GROUP BY status",
			want: "SELECT status, COUNT(*) FROM production_orders WHERE tenant_id = 7 GROUP BY status",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, rw.Rewrite(tenantCtx(7), tc.in))
		})
	}
}

func TestRewriteIgnoresTerminatorsInsideSubqueries(t *testing.T) {
	rw := newTestRewriter(t)

	in := "SELECT * FROM production_orders WHERE id IN (SELECT order_id FROM order_lines GROUP BY order_id)"
	got := rw.Rewrite(tenantCtx(3), in)
	assert.Equal(t, in+" AND tenant_id = 3", got)
}

func TestRewriteUsesOuterWhereNotSubqueryWhere(t *testing.T) {
	rw := newTestRewriter(t)

	in := "SELECT * FROM production_orders WHERE id IN (SELECT order_id FROM order_lines WHERE qty > 0)"
	got := rw.Rewrite(tenantCtx(3), in)
	assert.Equal(t, in+" AND tenant_id = 3", got)
}

func TestRewriteIsIdempotent(t *testing.T) {
	rw := newTestRewriter(t)

	once := rw.Rewrite(tenantCtx(5), "SELECT * FROM production_orders")
	twice := rw.Rewrite(tenantCtx(5), once)
	assert.Equal(t, once, twice)
}

func TestRewriteNotFooledByAliasedLookalike(t *testing.T) {
	rw := newTestRewriter(t)

	// A caller-written aliased predicate is not the rewriter's own; the bare
	// predicate must still be appended.
	in := "SELECT * FROM production_orders o WHERE o.tenant_id = 7"
	got := rw.Rewrite(tenantCtx(7), in)
	assert.Equal(t, in+" AND tenant_id = 7", got)

	// One more pass leaves the result alone.
	assert.Equal(t, got, rw.Rewrite(tenantCtx(7), got))
}

func TestRewriteSkipsExcludedTables(t *testing.T) {
	rw := newTestRewriter(t)

	sql := "SELECT * FROM tenants"
	assert.Equal(t, sql, rw.Rewrite(tenantCtx(7), sql))

	sql = "SELECT * FROM dict_entries WHERE kind = 'unit'"
	assert.Equal(t, sql, rw.Rewrite(tenantCtx(7), sql))
}

func TestRewriteRelaxesSharedTablesOnSelectOnly(t *testing.T) {
	rw := newTestRewriter(t)

	got := rw.Rewrite(tenantCtx(7), "SELECT * FROM process_templates")
	assert.Equal(t, "SELECT * FROM process_templates WHERE (tenant_id = 7 OR tenant_id IS NULL)", got)

	// Mutations never get the NULL-tenant relaxation.
	got = rw.Rewrite(tenantCtx(7), "UPDATE process_templates SET name = 'x'")
	assert.Equal(t, "UPDATE process_templates SET name = 'x' WHERE tenant_id = 7", got)

	got = rw.Rewrite(tenantCtx(7), "DELETE FROM process_templates")
	assert.Equal(t, "DELETE FROM process_templates WHERE tenant_id = 7", got)
}

func TestRewriteSharedRelaxationSurvivesFreshWhere(t *testing.T) {
	rw := newTestRewriter(t)

	got := rw.Rewrite(tenantCtx(7), "SELECT * FROM process_templates ORDER BY id")
	assert.Equal(t, "SELECT * FROM process_templates WHERE (tenant_id = 7 OR tenant_id IS NULL) ORDER BY id", got)
}

func TestRewriteUpdateAndDelete(t *testing.T) {
	rw := newTestRewriter(t)

	got := rw.Rewrite(tenantCtx(2), "UPDATE production_orders SET status = 'done' WHERE id = 9")
	assert.Equal(t, "UPDATE production_orders SET status = 'done' WHERE id = 9 AND tenant_id = 2", got)

	got = rw.Rewrite(tenantCtx(2), "DELETE FROM production_orders WHERE id = 9")
	assert.Equal(t, "DELETE FROM production_orders WHERE id = 9 AND tenant_id = 2", got)
}

func TestRewriteLeavesInsertAlone(t *testing.T) {
	rw := newTestRewriter(t)

	sql := "INSERT INTO production_orders (a) VALUES (1)"
	assert.Equal(t, sql, rw.Rewrite(tenantCtx(2), sql))
}

func TestRewriteSkipsInconclusiveStatements(t *testing.T) {
	rw := newTestRewriter(t)

	cases := []string{
		"SELECT 1",
		"SELECT NOW()",
		"TRUNCATE production_orders",
	}
	for _, sql := range cases {
		assert.Equal(t, sql, rw.Rewrite(tenantCtx(2), sql))
	}
}

func TestRewriteSuperAdminAllowListedTables(t *testing.T) {
	rw := newTestRewriter(t)

	// users is on the super-admin allow-list, tenants is excluded outright.
	sql := "SELECT * FROM users WHERE is_active"
	assert.Equal(t, sql, rw.Rewrite(superAdminCtx(), sql))

	sql = "SELECT u.id FROM users u JOIN tenants t ON t.id = u.tenant_id"
	assert.Equal(t, sql, rw.Rewrite(superAdminCtx(), sql))
}

func TestRewriteSuperAdminBlockedFromBusinessTables(t *testing.T) {
	rw := newTestRewriter(t)

	got := rw.Rewrite(superAdminCtx(), "SELECT * FROM production_orders")
	assert.Equal(t, "SELECT * FROM production_orders WHERE tenant_id IS NULL", got)
}

func TestRewriteJoinGetsSinglePredicate(t *testing.T) {
	rw := newTestRewriter(t)

	in := "SELECT o.id FROM production_orders o JOIN order_lines l ON l.order_id = o.id"
	got := rw.Rewrite(tenantCtx(4), in)
	assert.Equal(t, in+" WHERE tenant_id = 4", got)
}

func TestDetectKind(t *testing.T) {
	require.Equal(t, StatementSelect, DetectKind("  select * from x"))
	require.Equal(t, StatementSelect, DetectKind("WITH cte AS (SELECT 1) SELECT * FROM cte"))
	require.Equal(t, StatementInsert, DetectKind("INSERT INTO x VALUES (1)"))
	require.Equal(t, StatementUpdate, DetectKind("update x set a = 1"))
	require.Equal(t, StatementDelete, DetectKind("DELETE FROM x"))
	require.Equal(t, StatementOther, DetectKind("TRUNCATE x"))
}

func TestReferencedTables(t *testing.T) {
	tables := referencedTables("SELECT * FROM a JOIN b ON b.id = a.b_id WHERE a.id IN (SELECT a_id FROM c)")
	assert.Equal(t, []string{"a", "b", "c"}, tables)

	assert.Nil(t, referencedTables("SELECT 1"))
}
