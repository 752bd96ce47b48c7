package schema

import (
	"strings"

	"github.com/insersa/iscore/schema/field"
)

// Separator splits a table qualifier from a column in attribute names.
const Separator = "__"

// AttributeInfo describes one attribute of an entity.
type AttributeInfo struct {
	Entity    string
	Name      string
	Table     string // Empty for the entity's primary table.
	Type      field.Type
	Position  int
	Required  bool
	Hidden    bool
	List      bool // Selected by list queries.
	Length    int  // Maximum length of string values; 0 means unbounded.
	Predicate field.Predicate
	DBName    string // Column name when it differs from Name.

	// column is the physical column set by a name mapping.
	column string
}

// Column returns the unqualified physical column name.
func (a AttributeInfo) Column() string {
	switch {
	case a.column != "":
		return a.column
	case a.DBName != "":
		return a.DBName
	}
	if _, col, ok := strings.Cut(a.Name, Separator); ok {
		return col
	}
	return a.Name
}

// TableName returns the table holding the attribute.
func (a AttributeInfo) TableName(primary string) string {
	if a.Table != "" {
		return a.Table
	}
	if tbl, _, ok := strings.Cut(a.Name, Separator); ok {
		return tbl
	}
	return primary
}

// Qualified returns the column qualified by its table, falling back to the
// primary table. Used in projections.
func (a AttributeInfo) Qualified(primary string) string {
	return a.TableName(primary) + "." + a.Column()
}

// Ref returns the column as referenced in predicates and sort clauses:
// qualified when the attribute names its table, bare otherwise.
func (a AttributeInfo) Ref() string {
	if a.Table != "" {
		return a.Table + "." + a.Column()
	}
	if tbl, _, ok := strings.Cut(a.Name, Separator); ok {
		return tbl + "." + a.Column()
	}
	return a.Column()
}

// Separated reports if the attribute name carries its table.
func (a AttributeInfo) Separated() bool {
	return strings.Contains(a.Name, Separator)
}

// QualifyName renders a name that is not a declared attribute, converting
// the table separator: "a__b" renders as "a.b".
func QualifyName(name string) string {
	if tbl, col, ok := strings.Cut(name, Separator); ok {
		return tbl + "." + col
	}
	return name
}
