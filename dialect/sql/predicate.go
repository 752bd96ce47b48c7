package sql

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/insersa/iscore/schema/field"
)

// ErrOperand is wrapped by errors of operands that have no rendering rule
// for the predicate kind they are used with.
var ErrOperand = errors.New("dialect/sql: unsupported operand")

// SubQuery is a statement used as the operand of IN and NOT IN.
type SubQuery struct {
	SQL  string
	Args []any
}

// Union merges sub-queries with UNION. Arguments keep textual order.
func Union(qs ...SubQuery) SubQuery {
	if len(qs) == 1 {
		return qs[0]
	}
	var (
		parts = make([]string, len(qs))
		args  []any
	)
	for i, q := range qs {
		parts[i] = q.SQL
		args = append(args, q.Args...)
	}
	return SubQuery{SQL: strings.Join(parts, " UNION "), Args: args}
}

// dateLayouts are the accepted string forms of DateEqual operands.
var dateLayouts = []string{time.DateOnly, time.RFC3339, time.DateTime, "02.01.2006"}

// Render renders the predicate kind p on the column reference ref. It
// returns the condition with ? placeholders and their arguments in textual
// order.
func Render(ref string, p field.Predicate, v any) (string, []any, error) {
	switch p {
	case field.PredicateIsNull:
		return ref + " IS NULL", nil, nil
	case field.PredicateIsNotNull:
		return ref + " IS NOT NULL", nil, nil
	case field.PredicateIn:
		return renderIn(ref, "IN", v)
	case field.PredicateNotIn:
		return renderIn(ref, "NOT IN", v)
	}
	if err := scalar(p, v); err != nil {
		return "", nil, err
	}
	switch p {
	case field.PredicateEqual, field.PredicateUnset:
		return ref + "=?", []any{v}, nil
	case field.PredicateDiff:
		return ref + "<>?", []any{v}, nil
	case field.PredicateContains:
		return "UPPER(" + ref + ") LIKE UPPER(?)", []any{LikePattern(fmt.Sprint(v))}, nil
	case field.PredicateDateEqual:
		day, err := dayOf(v)
		if err != nil {
			return "", nil, err
		}
		return "(" + ref + ">=? AND " + ref + "<?)", []any{day, day.AddDate(0, 0, 1)}, nil
	default:
		return "", nil, fmt.Errorf("%w: unknown predicate kind %d", ErrOperand, p)
	}
}

// LikePattern returns the LIKE argument of a substring search. A * in s is
// a wildcard; a value that already contains % is used as given.
func LikePattern(s string) string {
	if strings.Contains(s, "%") {
		return s
	}
	return "%" + strings.ReplaceAll(s, "*", "%") + "%"
}

func renderIn(ref, op string, v any) (string, []any, error) {
	switch v := v.(type) {
	case SubQuery:
		return ref + " " + op + " (" + v.SQL + ")", v.Args, nil
	case *SubQuery:
		if v == nil {
			return "", nil, fmt.Errorf("%w: nil sub-query for %s", ErrOperand, op)
		}
		return ref + " " + op + " (" + v.SQL + ")", v.Args, nil
	case nil:
		return "", nil, fmt.Errorf("%w: nil operand for %s", ErrOperand, op)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if b, ok := v.([]byte); ok {
			return ref + " " + op + " (?)", []any{b}, nil
		}
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Struct:
		if _, ok := v.(time.Time); !ok {
			return "", nil, fmt.Errorf("%w: %T for %s", ErrOperand, v, op)
		}
		fallthrough
	default:
		return ref + " " + op + " (?)", []any{v}, nil
	}
	n := rv.Len()
	if n == 0 {
		// Nothing is in an empty set.
		if op == "IN" {
			return "1=0", nil, nil
		}
		return "1=1", nil, nil
	}
	args := make([]any, n)
	for i := range n {
		args[i] = rv.Index(i).Interface()
	}
	return ref + " " + op + " (" + strings.Repeat("?, ", n-1) + "?)", args, nil
}

// scalar checks v can be bound to a single placeholder.
func scalar(p field.Predicate, v any) error {
	if v == nil {
		return fmt.Errorf("%w: nil operand for %s", ErrOperand, p)
	}
	if _, ok := v.([]byte); ok {
		return nil
	}
	switch k := reflect.TypeOf(v).Kind(); k {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Func, reflect.Chan:
		return fmt.Errorf("%w: %T for %s", ErrOperand, v, p)
	}
	switch v.(type) {
	case SubQuery, *SubQuery:
		return fmt.Errorf("%w: sub-query for %s", ErrOperand, p)
	}
	return nil
}

func dayOf(v any) (time.Time, error) {
	var t time.Time
	switch v := v.(type) {
	case time.Time:
		t = v
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("%w: nil date", ErrOperand)
		}
		t = *v
	case string:
		var err error
		for _, layout := range dateLayouts {
			if t, err = time.Parse(layout, strings.TrimSpace(v)); err == nil {
				break
			}
		}
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q is not a date", ErrOperand, v)
		}
	default:
		return time.Time{}, fmt.Errorf("%w: %T for %s", ErrOperand, v, field.PredicateDateEqual)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()), nil
}
