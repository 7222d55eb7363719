package tenancy

import (
	"fmt"
	"regexp"
	"strings"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// RowScope declares row-level filtering for a single statement: which column
// identifies the creator, which identifies the team, and the alias to expose
// the wrapped result under. Call sites pass a RowScope per query instead of
// writing WHERE clauses themselves; because the scope travels with the call
// there is no ambient state to leak into an unrelated statement.
type RowScope struct {
	CreatorColumn string
	TeamColumn    string
	Alias         string
}

// Valid reports whether the declared identifiers are safe to splice into SQL.
func (s RowScope) Valid() bool {
	if s.CreatorColumn == "" || !identPattern.MatchString(s.CreatorColumn) {
		return false
	}
	if s.TeamColumn != "" && !identPattern.MatchString(s.TeamColumn) {
		return false
	}
	if s.Alias != "" && !identPattern.MatchString(s.Alias) {
		return false
	}
	return true
}

// Wrap applies the row-level filter derived from the principal's permission
// range. The original statement is wrapped as a derived table rather than
// patched in place, which stays correct for joins, unions and aggregates at
// the cost of one extra planning step.
//
//	all  -> unchanged
//	own  -> creator column = user id
//	team -> team column = team id, degrading to the creator column when no
//	        team column is declared or the principal has no team
func (s RowScope) Wrap(sql string, p *Principal) string {
	if p == nil || !s.Valid() {
		return sql
	}

	var cond string
	switch p.DataScope() {
	case RangeAll:
		return sql
	case RangeTeam:
		if s.TeamColumn != "" && p.TeamID != 0 {
			cond = fmt.Sprintf("%s = %d", s.TeamColumn, p.TeamID)
		} else {
			cond = fmt.Sprintf("%s = %d", s.CreatorColumn, p.UserID)
		}
	default:
		cond = fmt.Sprintf("%s = %d", s.CreatorColumn, p.UserID)
	}

	alias := s.Alias
	if alias == "" {
		alias = "scoped"
	}
	return fmt.Sprintf("SELECT * FROM (%s) %s WHERE %s.%s", strings.TrimSpace(sql), alias, alias, cond)
}
