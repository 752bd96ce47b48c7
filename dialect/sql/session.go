package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/insersa/iscore/dialect"
)

// SessionVar is a database session setting applied before a statement,
// typically read by row-level security policies.
type SessionVar struct {
	Name  string
	Value string
}

type sessionKey struct{}

// WithSession returns a context whose statements set vars on their database
// session first. PostgreSQL names need a prefix ("iscore.user") and are
// read with current_setting; MySQL names become user variables (@name).
func WithSession(ctx context.Context, vars ...SessionVar) context.Context {
	if len(vars) == 0 {
		return ctx
	}
	prev := SessionFrom(ctx)
	all := make([]SessionVar, 0, len(prev)+len(vars))
	return context.WithValue(ctx, sessionKey{}, append(append(all, prev...), vars...))
}

// SessionFrom returns the session variables attached to ctx.
func SessionFrom(ctx context.Context) []SessionVar {
	vars, _ := ctx.Value(sessionKey{}).([]SessionVar)
	return vars
}

var varName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]{0,127}$`)

// session returns where to run a statement of ctx. Outside a transaction
// the variables are set on a dedicated connection, cleared again by the
// returned release function. Inside a transaction they are local to it on
// PostgreSQL; MySQL keeps them on the connection until overwritten.
func (c Conn) session(ctx context.Context) (ExecQuerier, func() error, error) {
	vars := SessionFrom(ctx)
	if len(vars) == 0 {
		return c.ExecQuerier, nil, nil
	}
	for _, v := range vars {
		if !varName.MatchString(v.Name) {
			return nil, nil, fmt.Errorf("invalid session variable name: %q", v.Name)
		}
	}
	var (
		ex      ExecQuerier
		release func() error
		local   bool
	)
	switch e := c.ExecQuerier.(type) {
	case *sql.Tx:
		ex, local = e, true
	case *sql.DB:
		conn, err := e.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		ex, release = conn, conn.Close
	default:
		return nil, nil, fmt.Errorf("session variables need a *sql.DB or *sql.Tx, got %T", c.ExecQuerier)
	}
	for _, v := range vars {
		if err := c.setVar(ctx, ex, v, local); err != nil {
			if release != nil {
				err = errors.Join(err, release())
			}
			return nil, nil, fmt.Errorf("set session variable %s: %w", v.Name, err)
		}
	}
	if release == nil {
		return ex, nil, nil
	}
	closeConn := release
	release = func() error {
		// The statement context may be done already.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var err error
		for _, v := range vars {
			err = errors.Join(err, c.resetVar(ctx, ex, v.Name))
		}
		return errors.Join(err, closeConn())
	}
	return ex, release, nil
}

func (c Conn) setVar(ctx context.Context, ex ExecQuerier, v SessionVar, local bool) error {
	var err error
	switch c.dialect {
	case dialect.Postgres:
		_, err = ex.ExecContext(ctx, "SELECT set_config($1, $2, $3)", v.Name, v.Value, local)
	case dialect.MySQL:
		_, err = ex.ExecContext(ctx, "SET @`"+v.Name+"` = ?", v.Value)
	default:
		err = fmt.Errorf("dialect %q has no session variables", c.dialect)
	}
	return err
}

func (c Conn) resetVar(ctx context.Context, ex ExecQuerier, name string) error {
	var err error
	switch c.dialect {
	case dialect.Postgres:
		_, err = ex.ExecContext(ctx, "RESET "+name)
	case dialect.MySQL:
		_, err = ex.ExecContext(ctx, "SET @`"+name+"` = NULL")
	}
	return err
}
