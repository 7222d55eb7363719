package tenancy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowScopeValid(t *testing.T) {
	assert.True(t, RowScope{CreatorColumn: "created_by"}.Valid())
	assert.True(t, RowScope{CreatorColumn: "created_by", TeamColumn: "factory_id", Alias: "o"}.Valid())

	assert.False(t, RowScope{}.Valid())
	assert.False(t, RowScope{CreatorColumn: "created_by; DROP TABLE x"}.Valid())
	assert.False(t, RowScope{CreatorColumn: "created_by", TeamColumn: "1bad"}.Valid())
	assert.False(t, RowScope{CreatorColumn: "created_by", Alias: "o o"}.Valid())
}

func TestRowScopeWrap(t *testing.T) {
	scope := RowScope{CreatorColumn: "created_by", TeamColumn: "factory_id", Alias: "o"}
	sql := "SELECT * FROM production_orders WHERE tenant_id = 7"

	t.Run("nil principal passes through", func(t *testing.T) {
		assert.Equal(t, sql, scope.Wrap(sql, nil))
	})

	t.Run("all range passes through", func(t *testing.T) {
		p := &Principal{UserID: 10, PermRange: RangeAll}
		assert.Equal(t, sql, scope.Wrap(sql, p))
	})

	t.Run("top admin passes through regardless of range", func(t *testing.T) {
		p := &Principal{UserID: 10, PermRange: RangeOwn, TenantOwner: true}
		assert.Equal(t, sql, scope.Wrap(sql, p))
	})

	t.Run("own range filters by creator", func(t *testing.T) {
		p := &Principal{UserID: 10, PermRange: RangeOwn}
		assert.Equal(t,
			"SELECT * FROM ("+sql+") o WHERE o.created_by = 10",
			scope.Wrap(sql, p))
	})

	t.Run("team range filters by team column", func(t *testing.T) {
		p := &Principal{UserID: 10, PermRange: RangeTeam, TeamID: 3}
		assert.Equal(t,
			"SELECT * FROM ("+sql+") o WHERE o.factory_id = 3",
			scope.Wrap(sql, p))
	})

	t.Run("team range degrades to creator without a team", func(t *testing.T) {
		p := &Principal{UserID: 10, PermRange: RangeTeam}
		assert.Equal(t,
			"SELECT * FROM ("+sql+") o WHERE o.created_by = 10",
			scope.Wrap(sql, p))
	})

	t.Run("team range degrades without a team column", func(t *testing.T) {
		s := RowScope{CreatorColumn: "created_by"}
		p := &Principal{UserID: 10, PermRange: RangeTeam, TeamID: 3}
		assert.Equal(t,
			"SELECT * FROM ("+sql+") scoped WHERE scoped.created_by = 10",
			s.Wrap(sql, p))
	})

	t.Run("invalid scope passes through", func(t *testing.T) {
		s := RowScope{CreatorColumn: "bad column"}
		p := &Principal{UserID: 10, PermRange: RangeOwn}
		assert.Equal(t, sql, s.Wrap(sql, p))
	})
}
