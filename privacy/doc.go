// Package privacy produces the security clauses of generated statements.
//
// A security clause is an escaped SQL boolean expression the statement
// builder ANDs into the WHERE clause of SELECT, UPDATE and DELETE
// statements. It is obtained from an [Authorizer] per entity, viewer and
// statement [Mode].
//
// [Policy] implements Authorizer with rules evaluated in order. Each rule
// returns a decision:
//
//   - Allow: grants access and stops evaluation
//   - Deny: denies access and stops evaluation
//   - Skip: continues with the next rule
//
// Rules may restrict the statement with [Request.Where] before deciding.
// If all rules skip, the request is allowed with the filters collected.
//
//	policy := privacy.Policy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.OnMode(privacy.HasRole("admin"), privacy.ModeSelect),
//	    privacy.DenyMode(privacy.ModeDelete),
//	    privacy.TenantClause("orders.tenant_id"),
//	}
//	clause, err := policy.SecurityClause(ctx, "Order", viewer, privacy.ModeSelect)
//	// clause == "orders.tenant_id='acme'"
//
// A denied request yields an *iscore.PrivacyError.
package privacy
