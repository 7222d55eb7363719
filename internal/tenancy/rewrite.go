package tenancy

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// StatementKind classifies the leading verb of a SQL statement.
type StatementKind int

const (
	StatementOther StatementKind = iota
	StatementSelect
	StatementInsert
	StatementUpdate
	StatementDelete
)

// tablePattern captures identifiers following FROM/JOIN/UPDATE/DELETE FROM.
// Derived tables (an opening parenthesis instead of an identifier) simply do
// not match, so their inner references are picked up by later matches.
var tablePattern = regexp.MustCompile("(?i)\\b(?:FROM|JOIN|UPDATE|DELETE\\s+FROM)\\s+[`\"]?([A-Za-z_][A-Za-z0-9_]*)")

// Rewriter appends tenant-isolation predicates to outgoing statements. It is
// an explicit stage in the statement pipeline: it consumes SQL text and
// returns new SQL text, never mutating anything in flight.
type Rewriter struct {
	tables *TableConfig
	logger *slog.Logger
}

// NewRewriter constructs a Rewriter over the given table classification.
func NewRewriter(tables *TableConfig, logger *slog.Logger) *Rewriter {
	if tables == nil {
		tables = DefaultTableConfig()
	}
	return &Rewriter{tables: tables, logger: logger}
}

// DetectKind classifies sql by its first keyword.
func DetectKind(sql string) StatementKind {
	trimmed := strings.TrimSpace(sql)
	upper := strings.ToUpper(trimmed)
	switch {
	case strings.HasPrefix(upper, "SELECT"), strings.HasPrefix(upper, "WITH"):
		return StatementSelect
	case strings.HasPrefix(upper, "INSERT"):
		return StatementInsert
	case strings.HasPrefix(upper, "UPDATE"):
		return StatementUpdate
	case strings.HasPrefix(upper, "DELETE"):
		return StatementDelete
	default:
		return StatementOther
	}
}

// Rewrite applies tenant isolation to a SELECT/UPDATE/DELETE statement based
// on the principal bound to ctx. Statements issued before a principal is
// bound pass through unchanged; INSERT is handled by the fill-on-insert hook.
// When table extraction is inconclusive the statement passes through rather
// than risking a corrupted rewrite.
func (rw *Rewriter) Rewrite(ctx context.Context, sql string) string {
	p := PrincipalFromContext(ctx)
	if p == nil {
		return sql
	}

	kind := DetectKind(sql)
	if kind != StatementSelect && kind != StatementUpdate && kind != StatementDelete {
		return sql
	}

	tables := referencedTables(sql)
	if len(tables) == 0 {
		return sql
	}
	if rw.tables.AllExcluded(tables) {
		return sql
	}

	if p.TenantID == nil {
		if rw.tables.AllSuperAdminAccessible(tables) {
			return sql
		}
		// A tenant-less session touching business tables gets a deliberate
		// zero-row predicate instead of an error, so nothing leaks.
		const cond = "tenant_id IS NULL"
		if containsCondition(sql, cond) {
			return sql
		}
		if rw.logger != nil {
			rw.logger.Warn("tenant rewrite: tenant-less session blocked",
				slog.Int64("user_id", p.UserID),
				slog.String("tables", strings.Join(tables, ",")))
		}
		return insertCondition(sql, cond)
	}

	cond := fmt.Sprintf("tenant_id = %d", *p.TenantID)
	if kind == StatementSelect && rw.tables.AnyShared(tables) {
		// Shared tables carry NULL-tenant template rows that every tenant
		// may read. Mutations still target only the caller's own rows.
		cond = fmt.Sprintf("(tenant_id = %d OR tenant_id IS NULL)", *p.TenantID)
	}
	if containsCondition(sql, cond) {
		return sql
	}
	if rw.logger != nil {
		rw.logger.Debug("tenant rewrite applied",
			slog.Int64("tenant_id", *p.TenantID),
			slog.String("tables", strings.Join(tables, ",")))
	}
	return insertCondition(sql, cond)
}

// referencedTables extracts plain table identifiers from sql. An empty result
// means extraction was inconclusive and the caller must skip rewriting.
func referencedTables(sql string) []string {
	matches := tablePattern.FindAllStringSubmatch(sql, -1)
	if len(matches) == 0 {
		return nil
	}
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.ToLower(strings.Trim(m[1], "`\""))
		if name != "" {
			tables = append(tables, name)
		}
	}
	return tables
}

// containsCondition keeps the rewrite idempotent. The match is anchored to
// the exact forms insertCondition emits at depth 0, so a caller-written
// lookalike such as "o.tenant_id = 7" never suppresses the rewrite.
func containsCondition(sql, cond string) bool {
	return findFirstAtDepthZero(sql, " WHERE "+cond) >= 0 ||
		findFirstAtDepthZero(sql, " AND "+cond) >= 0
}

// insertCondition places cond at the outermost insertion point: before the
// first depth-0 terminator keyword, extending an existing outer WHERE with
// AND or introducing a fresh one.
func insertCondition(sql, cond string) string {
	insertPos := len(sql)
	for _, kw := range []string{" ORDER BY ", " GROUP BY ", " HAVING ", " LIMIT "} {
		if idx := findFirstAtDepthZero(sql, kw); idx > 0 && idx < insertPos {
			insertPos = idx
		}
	}

	whereIdx := findLastAtDepthZero(sql, " WHERE ")
	if whereIdx >= 0 && whereIdx < insertPos {
		return sql[:insertPos] + " AND " + cond + sql[insertPos:]
	}
	return sql[:insertPos] + " WHERE " + cond + sql[insertPos:]
}

// findFirstAtDepthZero locates the first occurrence of keyword outside any
// parentheses, so terminators inside sub-selects are never matched.
func findFirstAtDepthZero(sql, keyword string) int {
	upperSQL := strings.ToUpper(sql)
	upperKeyword := strings.ToUpper(keyword)
	depth := 0
	maxStart := len(upperSQL) - len(upperKeyword)
	for i := 0; i <= maxStart; i++ {
		switch sql[i] {
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		}
		if depth == 0 && strings.HasPrefix(upperSQL[i:], upperKeyword) {
			return i
		}
	}
	return -1
}

// findLastAtDepthZero locates the last depth-0 occurrence of keyword.
func findLastAtDepthZero(sql, keyword string) int {
	upperSQL := strings.ToUpper(sql)
	upperKeyword := strings.ToUpper(keyword)
	depth := 0
	last := -1
	maxStart := len(upperSQL) - len(upperKeyword)
	for i := 0; i <= maxStart; i++ {
		switch sql[i] {
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		}
		if depth == 0 && strings.HasPrefix(upperSQL[i:], upperKeyword) {
			last = i
		}
	}
	return last
}
