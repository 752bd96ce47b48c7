// Package dialect names the supported SQL dialects and defines the
// interfaces statements are executed through.
//
//   - Postgres: PostgreSQL, placeholders $1, $2, ...
//   - MySQL: MySQL and MariaDB, placeholders ?
//   - SQLite: SQLite, placeholders ?
//
// Statements are built with ? placeholders; the dialect/sql driver rebinds
// them to the dialect's form before execution.
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// The Tx interface adds Commit and Rollback. Both Driver and Tx implement
// ExecQuerier, so code that runs statements accepts either.
package dialect
