package privacy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/insersa/iscore"
)

// Policy decision sentinel errors.
//
// These errors are used as return values from rules to indicate how the
// policy evaluation should proceed. Use errors.Is() to check for them.
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision. Filters added
	// by earlier rules still apply.
	Allow = errors.New("iscore/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	Deny = errors.New("iscore/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule in the chain.
	Skip = errors.New("iscore/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Mode is the kind of statement a security clause restricts.
type Mode uint8

// Statement modes.
const (
	ModeSelect Mode = iota
	ModeUpdate
	ModeDelete
)

func (m Mode) String() string {
	switch m {
	case ModeSelect:
		return "select"
	case ModeUpdate:
		return "update"
	case ModeDelete:
		return "delete"
	}
	return fmt.Sprintf("Mode(%d)", m)
}

// Authorizer returns the security clause of a statement: an escaped SQL
// boolean expression ANDed into its WHERE clause, or "" for no restriction.
// A non-nil error denies the statement.
type Authorizer interface {
	SecurityClause(ctx context.Context, entity string, viewer Viewer, mode Mode) (string, error)
}

// AuthorizerFunc is an adapter to use ordinary functions as Authorizer.
type AuthorizerFunc func(ctx context.Context, entity string, viewer Viewer, mode Mode) (string, error)

// SecurityClause returns f(ctx, entity, viewer, mode).
func (f AuthorizerFunc) SecurityClause(ctx context.Context, entity string, viewer Viewer, mode Mode) (string, error) {
	return f(ctx, entity, viewer, mode)
}

// Request is the statement a policy is evaluated for.
type Request struct {
	Entity string
	Viewer Viewer
	Mode   Mode

	filters []string
}

// Where restricts the statement with a boolean SQL expression. The
// expression is used as given and must already be escaped.
func (r *Request) Where(clause string) {
	if clause = strings.TrimSpace(clause); clause != "" {
		r.filters = append(r.filters, clause)
	}
}

// Filters returns the expressions added with Where.
func (r *Request) Filters() []string {
	return append([]string(nil), r.filters...)
}

// Rule decides on a request. It returns Allow, Deny, Skip, nil (same as
// Skip) or any other error, which denies the request.
type Rule interface {
	Eval(context.Context, *Request) error
}

// RuleFunc is an adapter to use ordinary functions as rules.
type RuleFunc func(context.Context, *Request) error

// Eval returns f(ctx, r).
func (f RuleFunc) Eval(ctx context.Context, r *Request) error {
	return f(ctx, r)
}

// Policy is an ordered list of rules. Evaluation stops at the first rule
// that allows or denies; a policy whose rules all skip allows.
type Policy []Rule

// Eval evaluates the rules against r.
func (p Policy) Eval(ctx context.Context, r *Request) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, rule := range p {
		switch decision := rule.Eval(ctx, r); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// SecurityClause implements Authorizer. The viewer defaults to the viewer
// of the context. Filters are ANDed; a denial is returned as an
// *iscore.PrivacyError.
func (p Policy) SecurityClause(ctx context.Context, entity string, viewer Viewer, mode Mode) (string, error) {
	if viewer == nil {
		viewer = ViewerFromContext(ctx)
	}
	r := &Request{Entity: entity, Viewer: viewer, Mode: mode}
	if err := p.Eval(ctx, r); err != nil {
		return "", iscore.NewPrivacyError(entity, mode.String(), err)
	}
	return And(r.filters...), nil
}

// Entities is an Authorizer with one policy per entity name and a default
// policy for the others.
type Entities struct {
	Default  Policy
	Policies map[string]Policy
}

// SecurityClause implements Authorizer.
func (e Entities) SecurityClause(ctx context.Context, entity string, viewer Viewer, mode Mode) (string, error) {
	if p, ok := e.Policies[entity]; ok {
		return p.SecurityClause(ctx, entity, viewer, mode)
	}
	return e.Default.SecurityClause(ctx, entity, viewer, mode)
}

// And joins boolean expressions with AND. Expressions containing a
// top-level OR are parenthesised when there are several.
func And(clauses ...string) string {
	switch len(clauses) {
	case 0:
		return ""
	case 1:
		return clauses[0]
	}
	parts := make([]string, len(clauses))
	for i, c := range clauses {
		parts[i] = Paren(c)
	}
	return strings.Join(parts, " AND ")
}

// Paren wraps an expression in parentheses when it contains OR outside of
// parentheses and string literals.
func Paren(clause string) string {
	if hasTopLevelOr(clause) {
		return "(" + clause + ")"
	}
	return clause
}

func hasTopLevelOr(s string) bool {
	depth, quoted := 0, false
	upper := strings.ToUpper(s)
	for i := 0; i < len(upper); i++ {
		switch c := upper[i]; {
		case c == '\'':
			quoted = !quoted
		case quoted:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && strings.HasPrefix(upper[i:], "OR") &&
			(i == 0 || isSpace(upper[i-1])) && (i+2 == len(upper) || isSpace(upper[i+2])):
			return true
		}
	}
	return false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attached to it. Policies evaluated with the returned
// context return the decision without running their rules.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}
