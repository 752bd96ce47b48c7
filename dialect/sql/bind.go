package sql

import (
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/insersa/iscore/dialect"
)

// Rebind converts the ? placeholders of query to the bind variables of the
// dialect: $1, $2, ... for Postgres, unchanged for MySQL and SQLite.
func Rebind(dialectName, query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	return sqlx.Rebind(BindType(dialectName), query)
}

// BindType returns the sqlx bind type of a dialect.
func BindType(dialectName string) int {
	switch dialectName {
	case dialect.SQLite:
		return sqlx.QUESTION
	default:
		return sqlx.BindType(dialectName)
	}
}
