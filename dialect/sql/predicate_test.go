package sql

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insersa/iscore/schema/field"
)

func TestRender(t *testing.T) {
	day := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		pred     field.Predicate
		value    any
		wantSQL  string
		wantArgs []any
	}{
		{"equal", field.PredicateEqual, "open", "status=?", []any{"open"}},
		{"unset is equal", field.PredicateUnset, 3, "status=?", []any{3}},
		{"contains", field.PredicateContains, "op", "UPPER(status) LIKE UPPER(?)", []any{"%op%"}},
		{"contains wildcard", field.PredicateContains, "o*n", "UPPER(status) LIKE UPPER(?)", []any{"%o%n%"}},
		{"contains explicit pattern", field.PredicateContains, "op%", "UPPER(status) LIKE UPPER(?)", []any{"op%"}},
		{"contains number", field.PredicateContains, 42, "UPPER(status) LIKE UPPER(?)", []any{"%42%"}},
		{"diff", field.PredicateDiff, "closed", "status<>?", []any{"closed"}},
		{"is null", field.PredicateIsNull, nil, "status IS NULL", nil},
		{"is not null", field.PredicateIsNotNull, "ignored", "status IS NOT NULL", nil},
		{"in", field.PredicateIn, []string{"a", "b"}, "status IN (?, ?)", []any{"a", "b"}},
		{"in scalar", field.PredicateIn, "a", "status IN (?)", []any{"a"}},
		{"not in", field.PredicateNotIn, []int{1, 2, 3}, "status NOT IN (?, ?, ?)", []any{1, 2, 3}},
		{"in empty", field.PredicateIn, []string{}, "1=0", nil},
		{"not in empty", field.PredicateNotIn, []string{}, "1=1", nil},
		{
			"in sub-query", field.PredicateIn, SubQuery{SQL: "SELECT x FROM t WHERE y=?", Args: []any{1}},
			"status IN (SELECT x FROM t WHERE y=?)", []any{1},
		},
		{
			"date from time", field.PredicateDateEqual, time.Date(2024, 3, 9, 17, 45, 0, 0, time.UTC),
			"(status>=? AND status<?)", []any{day, day.AddDate(0, 0, 1)},
		},
		{
			"date from string", field.PredicateDateEqual, "2024-03-09",
			"(status>=? AND status<?)", []any{day, day.AddDate(0, 0, 1)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := Render("status", tt.pred, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestRenderUnsupportedOperand(t *testing.T) {
	tests := []struct {
		name  string
		pred  field.Predicate
		value any
	}{
		{"diff slice", field.PredicateDiff, []string{"a"}},
		{"diff map", field.PredicateDiff, map[string]int{"a": 1}},
		{"diff nil", field.PredicateDiff, nil},
		{"equal sub-query", field.PredicateEqual, SubQuery{SQL: "SELECT 1"}},
		{"in nil", field.PredicateIn, nil},
		{"in map", field.PredicateIn, map[string]int{}},
		{"date garbage", field.PredicateDateEqual, "yesterday"},
		{"date int", field.PredicateDateEqual, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Render("c", tt.pred, tt.value)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrOperand))
		})
	}
}

func TestUnion(t *testing.T) {
	u := Union(
		SubQuery{SQL: "SELECT a FROM x WHERE b=?", Args: []any{1}},
		SubQuery{SQL: "SELECT c FROM y WHERE d=?", Args: []any{2}},
	)
	assert.Equal(t, "SELECT a FROM x WHERE b=? UNION SELECT c FROM y WHERE d=?", u.SQL)
	assert.Equal(t, []any{1, 2}, u.Args)

	one := SubQuery{SQL: "SELECT 1"}
	assert.Equal(t, one, Union(one))
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a=$1 AND b IN ($2, $3)", Rebind("postgres", "a=? AND b IN (?, ?)"))
	assert.Equal(t, "a=? AND b=?", Rebind("mysql", "a=? AND b=?"))
	assert.Equal(t, "a=? AND b=?", Rebind("sqlite", "a=? AND b=?"))
	assert.Equal(t, "SELECT 1", Rebind("postgres", "SELECT 1"))
}
