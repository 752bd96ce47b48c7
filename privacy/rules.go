package privacy

import (
	"context"
	"slices"

	"github.com/insersa/iscore/dialect/sql"
)

// Viewer represents the authenticated user making a request.
// This interface should be implemented by application-specific user types.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// GetTenantID returns the viewer's tenant identifier for multi-tenancy.
	// Returns empty string if not applicable.
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context.
// Returns nil if no viewer is present.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string { return v.UserID }

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string { return v.Roles }

// GetTenantID returns the tenant ID.
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

type fixedDecision struct {
	decision error
}

func (f fixedDecision) Eval(context.Context, *Request) error {
	return f.decision
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() Rule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() Rule {
	return fixedDecision{Deny}
}

// ContextRule creates a rule from a context evaluation function.
func ContextRule(eval func(context.Context) error) Rule {
	return RuleFunc(func(ctx context.Context, _ *Request) error {
		return eval(ctx)
	})
}

// DenyIfNoViewer returns a rule that denies requests without a viewer.
// This is typically used as the first rule in a policy.
//
//	privacy.Policy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("admin"),
//	    privacy.TenantClause("tenant_id"),
//	}
func DenyIfNoViewer() Rule {
	return RuleFunc(func(_ context.Context, r *Request) error {
		if r.Viewer == nil {
			return Denyf("iscore/privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows requests of viewers with the role.
func HasRole(role string) Rule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows requests of viewers with any of
// the roles, and skips otherwise.
func HasAnyRole(roles ...string) Rule {
	return RuleFunc(func(_ context.Context, r *Request) error {
		if r.Viewer == nil {
			return Skip
		}
		for _, role := range roles {
			if slices.Contains(r.Viewer.GetRoles(), role) {
				return Allow
			}
		}
		return Skip
	})
}

// OnMode evaluates rule only for statements of the given modes.
func OnMode(rule Rule, modes ...Mode) Rule {
	return RuleFunc(func(ctx context.Context, r *Request) error {
		if slices.Contains(modes, r.Mode) {
			return rule.Eval(ctx, r)
		}
		return Skip
	})
}

// DenyMode returns a rule denying statements of the given mode.
func DenyMode(mode Mode) Rule {
	return OnMode(RuleFunc(func(_ context.Context, r *Request) error {
		return Denyf("iscore/privacy: %s on %s is not allowed", r.Mode, r.Entity)
	}), mode)
}

// FixedClause returns a rule restricting every statement with clause.
func FixedClause(clause string) Rule {
	return RuleFunc(func(_ context.Context, r *Request) error {
		r.Where(clause)
		return Skip
	})
}

// TenantClause returns a rule restricting statements to rows whose column
// holds the viewer's tenant. Requests without a tenant are denied.
func TenantClause(column string) Rule {
	return RuleFunc(func(_ context.Context, r *Request) error {
		if r.Viewer == nil || r.Viewer.GetTenantID() == "" {
			return Denyf("iscore/privacy: tenant required for %s", r.Entity)
		}
		r.Where(column + "=" + sql.Quote(r.Viewer.GetTenantID()))
		return Skip
	})
}

// OwnerClause returns a rule restricting statements to rows whose column
// holds the viewer's id. Requests without a viewer are denied.
func OwnerClause(column string) Rule {
	return RuleFunc(func(_ context.Context, r *Request) error {
		if r.Viewer == nil || r.Viewer.GetID() == "" {
			return Denyf("iscore/privacy: viewer required for %s", r.Entity)
		}
		r.Where(column + "=" + sql.Quote(r.Viewer.GetID()))
		return Skip
	})
}
