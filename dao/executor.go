package dao

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/insersa/iscore"
	"github.com/insersa/iscore/dialect"
	"github.com/insersa/iscore/dialect/sql"
	"github.com/insersa/iscore/privacy"
)

// Status is the outcome of a write.
type Status uint8

// Write statuses.
const (
	StatusOK Status = iota
	// StatusNothingDone reports an insert or field update that affected no row.
	StatusNothingDone
	// StatusConflict reports a guarded update or delete that affected no
	// row: the record was changed or deleted since it was read.
	StatusConflict
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNothingDone:
		return "nothing done"
	case StatusConflict:
		return "conflict"
	}
	return fmt.Sprintf("Status(%d)", s)
}

// Result is the outcome of a write.
type Result struct {
	Status       Status
	RowsAffected int64
}

// Executor runs the statements of DAOs on a connection or transaction it
// does not own. Select results are cached when the DAO config has a Cache.
type Executor struct {
	drv   dialect.ExecQuerier
	group singleflight.Group
}

// NewExecutor returns an Executor running statements on drv.
func NewExecutor(drv dialect.ExecQuerier) *Executor {
	return &Executor{drv: drv}
}

// Select runs the search of q and returns the rows as maps from column
// name to value.
func (e *Executor) Select(ctx context.Context, d *DAO, q *Query) ([]map[string]any, error) {
	s, err := d.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	var viewer privacy.Viewer
	if q != nil {
		viewer = q.Viewer
	}
	// Composed results depend on other entities and are not cached.
	cacheable := q == nil || len(q.Children) == 0 && len(q.Parents) == 0
	return e.rows(ctx, d, viewer, "select", s, cacheable)
}

// Get returns the record with the given id.
func (e *Executor) Get(ctx context.Context, d *DAO, id any) (map[string]any, error) {
	s, err := d.SelectByID(ctx, id, privacy.ViewerFromContext(ctx))
	if err != nil {
		return nil, err
	}
	rows, err := e.rows(ctx, d, nil, "get", s, true)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, iscore.NewNotFoundError(d.Entity(), id)
	}
	return rows[0], nil
}

// Count returns the number of records matching q.
func (e *Executor) Count(ctx context.Context, d *DAO, q *Query) (int64, error) {
	s, err := d.Count(ctx, q)
	if err != nil {
		return 0, err
	}
	var viewer privacy.Viewer
	if q != nil {
		viewer = q.Viewer
	}
	ctx, _ = d.session(ctx, viewer)
	var rows sql.Rows
	if err := e.drv.Query(ctx, s.SQL, s.Args, &rows); err != nil {
		return 0, iscore.NewQueryError(d.Entity(), "count", err)
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, iscore.NewQueryError(d.Entity(), "count", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, iscore.NewQueryError(d.Entity(), "count", err)
	}
	return n, nil
}

// Insert creates r. An insert affecting no row reports StatusNothingDone.
func (e *Executor) Insert(ctx context.Context, d *DAO, r *Record) (Result, error) {
	s, err := d.Insert(ctx, r)
	if err != nil {
		return Result{}, err
	}
	ctx, _ = d.session(ctx, r.Viewer)
	n, err := e.exec(ctx, d, "insert", s)
	e.invalidate(ctx, d, d.vo.Table())
	if err != nil {
		return Result{}, err
	}
	if n == 0 {
		return Result{Status: StatusNothingDone}, nil
	}
	return Result{Status: StatusOK, RowsAffected: n}, nil
}

// Update writes r. A stale timestamp reports StatusConflict together with
// an *iscore.ConflictError.
func (e *Executor) Update(ctx context.Context, d *DAO, r *Record) (Result, error) {
	s, err := d.Update(ctx, r)
	if err != nil {
		return Result{}, err
	}
	ctx, _ = d.session(ctx, r.Viewer)
	n, err := e.exec(ctx, d, "update", s)
	e.invalidate(ctx, d, d.vo.Table())
	if err != nil {
		return Result{}, err
	}
	if n == 0 {
		return Result{Status: StatusConflict}, iscore.NewConflictError(d.Entity(), "update", r.ID)
	}
	return Result{Status: StatusOK, RowsAffected: n}, nil
}

// UpdateField writes one attribute of the record with the given id.
func (e *Executor) UpdateField(ctx context.Context, d *DAO, id any, name string, value any, auditUser string) (Result, error) {
	s, err := d.UpdateField(ctx, id, name, value, auditUser)
	if err != nil {
		return Result{}, err
	}
	ctx, _ = d.session(ctx, nil)
	n, err := e.exec(ctx, d, "update", s)
	e.invalidate(ctx, d, d.vo.Table())
	if err != nil {
		return Result{}, err
	}
	if n == 0 {
		return Result{Status: StatusNothingDone}, nil
	}
	return Result{Status: StatusOK, RowsAffected: n}, nil
}

// Delete deletes r and the rows depending on it. A stale or denied delete
// removes no row at all. Run Delete in a transaction to keep a failure
// half way from leaving the dependent rows deleted.
func (e *Executor) Delete(ctx context.Context, d *DAO, r *Record) (Result, error) {
	stmts, err := d.Delete(ctx, r)
	if err != nil {
		return Result{}, err
	}
	ctx, _ = d.session(ctx, r.Viewer)
	defer e.invalidate(ctx, d, d.deleteTables()...)
	var n int64
	for _, s := range stmts {
		if n, err = e.exec(ctx, d, "delete", s); err != nil {
			return Result{}, err
		}
	}
	if n == 0 {
		return Result{Status: StatusConflict}, iscore.NewConflictError(d.Entity(), "delete", r.ID)
	}
	return Result{Status: StatusOK, RowsAffected: n}, nil
}

func (e *Executor) exec(ctx context.Context, d *DAO, op string, s Statement) (int64, error) {
	var res sql.Result
	if err := e.drv.Exec(ctx, s.SQL, s.Args, &res); err != nil {
		return 0, iscore.NewMutationError(d.Entity(), op, sql.WrapConstraint(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, iscore.NewMutationError(d.Entity(), op, err)
	}
	return n, nil
}

// invalidate drops the cached results of every entity reading one of the
// written tables.
func (e *Executor) invalidate(ctx context.Context, d *DAO, tables ...string) {
	c := d.cfg.Cache
	if c == nil {
		return
	}
	for _, entity := range d.readers(tables) {
		if err := c.DeletePrefix(ctx, iscore.EntityPrefix(entity)); err != nil {
			d.cfg.Logger.WarnContext(ctx, "cache invalidation failed", "entity", entity, "error", err)
		}
	}
}

func (e *Executor) rows(ctx context.Context, d *DAO, viewer privacy.Viewer, op string, s Statement, cacheable bool) ([]map[string]any, error) {
	ctx, session := d.session(ctx, viewer)
	load := func() ([]map[string]any, error) {
		var rows sql.Rows
		if err := e.drv.Query(ctx, s.SQL, s.Args, &rows); err != nil {
			return nil, iscore.NewQueryError(d.Entity(), op, err)
		}
		out, err := sql.ScanMaps(rows)
		if err != nil {
			return nil, iscore.NewQueryError(d.Entity(), op, err)
		}
		return out, nil
	}
	cache := d.cfg.Cache
	if cache == nil || !cacheable {
		return load()
	}
	// Rows filtered by the database on the session differ per viewer.
	key := iscore.CacheKey{Entity: d.Entity(), Operation: op, SQL: s.SQL, Args: append(slices.Clone(s.Args), session...)}.String()
	if b, err := cache.Get(ctx, key); err == nil && b != nil {
		if out, err := decodeRows(b); err == nil {
			return out, nil
		}
	}
	v, err, shared := e.group.Do(key, func() (any, error) {
		out, err := load()
		if err != nil {
			return nil, err
		}
		b, err := msgpack.Marshal(out)
		if err != nil {
			d.cfg.Logger.WarnContext(ctx, "cannot encode rows for the cache", "entity", d.Entity(), "error", err)
			return out, nil
		}
		if err := cache.Set(ctx, key, b, d.cfg.CacheTTL); err != nil {
			d.cfg.Logger.WarnContext(ctx, "cache write failed", "entity", d.Entity(), "error", err)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	out := v.([]map[string]any)
	if shared {
		cp := make([]map[string]any, len(out))
		for i, m := range out {
			cp[i] = maps.Clone(m)
		}
		out = cp
	}
	return out, nil
}

func decodeRows(b []byte) ([]map[string]any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	var out []map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
