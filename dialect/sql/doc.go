// Package sql executes statements against database/sql databases and
// renders the search predicates of the statement builder.
//
// # Driver
//
// [Driver] wraps a *sql.DB and implements dialect.Driver. Statements are
// written with ? placeholders and rebound to the dialect's bind variables
// on execution:
//
//	drv, err := sql.Open(dialect.Postgres, dsn)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//	// "SELECT ... WHERE status=?" runs as "SELECT ... WHERE status=$1".
//
// The database/sql driver must be registered by the program, e.g. with a
// blank import of github.com/lib/pq.
//
// [WithSession] attaches session variables to a context; the driver sets
// them before each statement, for row-level security policies:
//
//	ctx = sql.WithSession(ctx, sql.SessionVar{Name: "iscore.user", Value: "jdoe"})
//
// [StatsDriver] wraps a Driver with statement counters, slow query
// reports and debug logging.
//
// # Predicates
//
// [Render] renders one predicate kind on a column:
//
//	sql.Render("status", field.PredicateEqual, "open")      // status=?
//	sql.Render("status", field.PredicateContains, "op")     // UPPER(status) LIKE UPPER(?) with "%op%"
//	sql.Render("ord_date", field.PredicateDateEqual, day)   // (ord_date>=? AND ord_date<?)
//	sql.Render("ord_id", field.PredicateIn, sub)            // ord_id IN (SELECT ...)
//
// # Errors
//
// [ConstraintKind] classifies constraint violations of lib/pq,
// go-sql-driver/mysql and SQLite errors.
package sql
