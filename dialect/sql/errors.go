package sql

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/insersa/iscore"
)

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry         = 1062
	mysqlNotNull                = 1048
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// Constraint kinds reported by ConstraintKind.
const (
	ConstraintNone       = ""
	ConstraintUnique     = "unique"
	ConstraintForeignKey = "foreign key"
	ConstraintCheck      = "check"
	ConstraintNotNull    = "not null"
)

// ConstraintKind classifies err as a constraint violation of one of the
// supported drivers. It returns ConstraintNone for other errors.
func ConstraintKind(err error) string {
	if err == nil {
		return ConstraintNone
	}
	var (
		pqErr    *pq.Error
		mysqlErr *mysql.MySQLError
	)
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgUniqueViolation:
			return ConstraintUnique
		case pgForeignKeyViolation:
			return ConstraintForeignKey
		case pgCheckViolation:
			return ConstraintCheck
		case pgNotNullViolation:
			return ConstraintNotNull
		}
		return ConstraintNone
	}
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlDuplicateEntry:
			return ConstraintUnique
		case mysqlForeignKeyParent, mysqlForeignKeyChild:
			return ConstraintForeignKey
		case mysqlCheckConstraintViolate:
			return ConstraintCheck
		case mysqlNotNull:
			return ConstraintNotNull
		}
		return ConstraintNone
	}
	// SQLite reports constraints in the message only.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return ConstraintUnique
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return ConstraintForeignKey
	case strings.Contains(msg, "CHECK constraint failed"):
		return ConstraintCheck
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return ConstraintNotNull
	}
	return ConstraintNone
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
func IsUniqueConstraintError(err error) bool {
	return ConstraintKind(err) == ConstraintUnique
}

// IsForeignKeyConstraintError reports if the error resulted from a foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool {
	return ConstraintKind(err) == ConstraintForeignKey
}

// WrapConstraint returns err wrapped in an iscore.ConstraintError when it is
// a constraint violation, and err otherwise.
func WrapConstraint(err error) error {
	if kind := ConstraintKind(err); kind != ConstraintNone {
		return iscore.NewConstraintError(kind+" constraint violated", err)
	}
	return err
}
