package dao

import (
	"strings"

	"github.com/insersa/iscore/dialect/sql"
	"github.com/insersa/iscore/privacy"
	"github.com/insersa/iscore/schema/field"
)

// Query is a search request. Values holds the criteria by attribute name:
// a scalar is compared with the attribute's predicate kind, an Op with its
// own kind. Absent, nil and empty-string values are ignored, as are names
// that are not searchable attributes.
type Query struct {
	Values map[string]any
	// Select lists the projected attributes; empty selects *.
	Select []string
	// SortKey names a sort definition; it wins over SortIndex.
	SortKey string
	// SortIndex is the 1-based sort definition index.
	SortIndex int
	// Reverse flips the direction of toggleable sort items.
	Reverse bool
	Limit   int
	Offset  int
	// Extra is a caller predicate ANDed after the attribute predicates.
	// Its ? placeholders bind ExtraArgs.
	Extra     string
	ExtraArgs []any
	// Children restricts the result to records having children that match,
	// by child link name.
	Children map[string]*Query
	// Parents restricts the result to records whose parent matches, by
	// parent link name.
	Parents map[string]*Query
	// Viewer identifies the caller to the Authorizer.
	Viewer privacy.Viewer
}

// Where sets the value of one attribute and returns q.
func (q *Query) Where(name string, v any) *Query {
	if q.Values == nil {
		q.Values = make(map[string]any)
	}
	q.Values[name] = v
	return q
}

// Op is a value carrying its own predicate kind.
type Op struct {
	Kind    field.Predicate
	Operand any
}

// Eq compares by equality regardless of the attribute's predicate kind.
func Eq(v any) Op { return Op{Kind: field.PredicateEqual, Operand: v} }

// Like is a case-insensitive substring match.
func Like(s string) Op { return Op{Kind: field.PredicateContains, Operand: s} }

// OnDay matches values on the same calendar day as v.
func OnDay(v any) Op { return Op{Kind: field.PredicateDateEqual, Operand: v} }

// In matches any of vs.
func In(vs ...any) Op { return Op{Kind: field.PredicateIn, Operand: vs} }

// NotIn matches none of vs.
func NotIn(vs ...any) Op { return Op{Kind: field.PredicateNotIn, Operand: vs} }

// InQuery matches the rows returned by a sub-query.
func InQuery(s Statement) Op {
	return Op{Kind: field.PredicateIn, Operand: s.SubQuery()}
}

// NotInQuery matches none of the rows returned by a sub-query.
func NotInQuery(s Statement) Op {
	return Op{Kind: field.PredicateNotIn, Operand: s.SubQuery()}
}

// Diff matches values different from v.
func Diff(v any) Op { return Op{Kind: field.PredicateDiff, Operand: v} }

// IsNull matches NULL.
func IsNull() Op { return Op{Kind: field.PredicateIsNull} }

// IsNotNull matches anything but NULL.
func IsNotNull() Op { return Op{Kind: field.PredicateIsNotNull} }

// Statement is SQL text with ? placeholders and the arguments they bind,
// in textual order.
type Statement struct {
	SQL  string
	Args []any
}

// String returns the SQL text.
func (s Statement) String() string { return s.SQL }

// SubQuery returns s as the operand of IN and NOT IN.
func (s Statement) SubQuery() sql.SubQuery {
	return sql.SubQuery{SQL: s.SQL, Args: s.Args}
}

// empty reports if v carries no criterion.
func empty(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	}
	return false
}

// builder accumulates SQL text and arguments.
type builder struct {
	sb   strings.Builder
	args []any
}

func (b *builder) WriteString(s string) *builder {
	b.sb.WriteString(s)
	return b
}

func (b *builder) Arg(args ...any) *builder {
	b.args = append(b.args, args...)
	return b
}

func (b *builder) Statement() Statement {
	return Statement{SQL: b.sb.String(), Args: b.args}
}
