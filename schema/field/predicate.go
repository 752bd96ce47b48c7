package field

import (
	"fmt"
	"strings"
)

// Predicate is the comparison applied to an attribute in a search.
type Predicate uint8

// Predicate kinds.
const (
	PredicateUnset     Predicate = iota // Not configured; see Resolve.
	PredicateEqual                      // col=?
	PredicateContains                   // case-insensitive substring match
	PredicateDateEqual                  // same calendar day, time of day ignored
	PredicateIn                         // col IN (...)
	PredicateNotIn                      // col NOT IN (...)
	PredicateDiff                       // col<>?
	PredicateIsNull                     // col IS NULL
	PredicateIsNotNull                  // col IS NOT NULL
	endPredicates
)

var predicateNames = [...]string{
	PredicateUnset:     "",
	PredicateEqual:     "equal",
	PredicateContains:  "like",
	PredicateDateEqual: "date",
	PredicateIn:        "in",
	PredicateNotIn:     "not_in",
	PredicateDiff:      "diff",
	PredicateIsNull:    "is_null",
	PredicateIsNotNull: "is_not_null",
}

// ParsePredicate parses a predicate kind as written in entity definitions.
// The empty string parses as PredicateUnset.
func ParsePredicate(s string) (Predicate, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "contains", "case_insensitive_contains":
		return PredicateContains, nil
	case "date_equal":
		return PredicateDateEqual, nil
	case "eq", "strict":
		return PredicateEqual, nil
	}
	for p := PredicateUnset; p < endPredicates; p++ {
		if predicateNames[p] == name {
			return p, nil
		}
	}
	return PredicateUnset, fmt.Errorf("field: unknown predicate kind %q", s)
}

// String returns the predicate name.
func (p Predicate) String() string {
	if p < endPredicates {
		return predicateNames[p]
	}
	return fmt.Sprintf("Predicate(%d)", p)
}

// Unary reports if the predicate takes no operand.
func (p Predicate) Unary() bool {
	return p == PredicateIsNull || p == PredicateIsNotNull
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Predicate) UnmarshalText(b []byte) error {
	v, err := ParsePredicate(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Resolve returns the predicate kind used to search an attribute of type t
// that declares the predicate kind declared. Date and timestamp attributes
// always compare by day. An unset kind defaults to PredicateContains for
// strings, unless equalByDefault is set, and to PredicateEqual otherwise.
func Resolve(t Type, declared Predicate, equalByDefault bool) Predicate {
	switch {
	case t.IsTemporal():
		return PredicateDateEqual
	case declared != PredicateUnset:
		return declared
	case t.IsString() && !equalByDefault:
		return PredicateContains
	default:
		return PredicateEqual
	}
}
