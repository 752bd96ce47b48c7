package dao

import (
	"context"
	"errors"
	"fmt"

	"github.com/insersa/iscore"
	"github.com/insersa/iscore/dialect"
	"github.com/insersa/iscore/dialect/sql"
)

// NextID allocates the next value of the named sequence in the default
// sequence table.
func NextID(ctx context.Context, drv dialect.Driver, name string) (int64, error) {
	return nextID(ctx, drv, DefaultSequenceTable, name)
}

// NextID allocates the next id of the entity from its sequence.
func (d *DAO) NextID(ctx context.Context, drv dialect.Driver) (int64, error) {
	if d.vo.Sequence() == "" {
		return 0, iscore.NewConfigError(d.vo.Name(), d.vo.IDField(), "sequence", "entity has no sequence")
	}
	return nextID(ctx, drv, d.cfg.SequenceTable, d.vo.Sequence())
}

// nextID increments and reads the sequence row in a transaction of its
// own, committed before returning. The commit releases the row lock right
// away, so callers allocating ids inside long transactions of their own do
// not serialize on the sequence row.
func nextID(ctx context.Context, drv dialect.Driver, table, name string) (int64, error) {
	tx, err := drv.Tx(ctx)
	if err != nil {
		return 0, fmt.Errorf("dao: next id %s: %w", name, err)
	}
	id, err := allocate(ctx, tx, table, name)
	if err != nil {
		return 0, rollback(tx, fmt.Errorf("dao: next id %s: %w", name, err))
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("dao: next id %s: commit: %w", name, err)
	}
	return id, nil
}

func allocate(ctx context.Context, tx dialect.Tx, table, name string) (int64, error) {
	var res sql.Result
	if err := tx.Exec(ctx, "UPDATE "+table+" SET value = value + 1 WHERE name = ?", []any{name}, &res); err != nil {
		return 0, err
	}
	switch n, err := res.RowsAffected(); {
	case err != nil:
		return 0, err
	case n == 0:
		return 0, iscore.NewNotFoundError("sequence", name)
	}
	var rows sql.Rows
	if err := tx.Query(ctx, "SELECT value FROM "+table+" WHERE name = ?", []any{name}, &rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, iscore.NewNotFoundError("sequence", name)
	}
	var id int64
	if err := rows.Scan(&id); err != nil {
		return 0, err
	}
	return id, rows.Close()
}

// rollback calls tx.Rollback and wraps the given error with the rollback
// error if occurred.
func rollback(tx dialect.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = errors.Join(err, fmt.Errorf("rollback: %w", rerr))
	}
	return err
}
