package dao_test

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/insersa/iscore"
	"github.com/insersa/iscore/dao"
	"github.com/insersa/iscore/dialect"
	"github.com/insersa/iscore/dialect/sql"
	"github.com/insersa/iscore/privacy"
)

const ddl = `
CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT, region TEXT);
CREATE TABLE orders (ord_id INTEGER PRIMARY KEY, ord_ts TEXT, ord_user TEXT, status TEXT NOT NULL, cust_id INTEGER, ord_date TEXT, note TEXT);
CREATE TABLE lines (line_id INTEGER PRIMARY KEY, line_ord INTEGER, product TEXT);
CREATE TABLE order_colors (oc_ord INTEGER, oc_color TEXT);
CREATE TABLE order_notes (on_ord INTEGER, body TEXT);
CREATE TABLE events (ev_id INTEGER PRIMARY KEY, ev_ts INTEGER, name TEXT);
CREATE TABLE id_seq (name TEXT PRIMARY KEY, value INTEGER NOT NULL);
INSERT INTO id_seq (name, value) VALUES ('SEQ_ORDER', 0);
INSERT INTO customers (id, name, region) VALUES (1, 'ACME', 'EU'), (2, 'Globex', 'US');
`

func openSQLite(t *testing.T) *sql.Driver {
	t.Helper()
	drv, err := sql.Open(dialect.SQLite, filepath.Join(t.TempDir(), "iscore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })
	_, err = drv.DB().Exec(ddl)
	require.NoError(t, err)
	return drv
}

func TestExecutorOptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	var tick atomic.Int64
	tick.Store(1000)
	daos := registry(t, dao.WithDialect(dialect.SQLite), dao.WithClock(func() time.Time {
		return time.UnixMilli(tick.Add(1))
	}))
	events := daos.MustDAO("Event")
	ex := dao.NewExecutor(openSQLite(t))

	res, err := ex.Insert(ctx, events, &dao.Record{Values: map[string]any{"ev_id": 1, "name": "boot"}})
	require.NoError(t, err)
	assert.Equal(t, dao.StatusOK, res.Status)

	row, err := ex.Get(ctx, events, 1)
	require.NoError(t, err)
	stale := row["ev_ts"]
	assert.Equal(t, int64(1001), stale)

	res, err = ex.Update(ctx, events, &dao.Record{ID: 1, Timestamp: stale, Values: map[string]any{"name": "first"}})
	require.NoError(t, err)
	assert.Equal(t, dao.StatusOK, res.Status)
	assert.Equal(t, int64(1), res.RowsAffected)

	res, err = ex.Update(ctx, events, &dao.Record{ID: 1, Timestamp: stale, Values: map[string]any{"name": "second"}})
	require.Error(t, err)
	assert.True(t, iscore.IsConflict(err))
	assert.Equal(t, dao.StatusConflict, res.Status)
	assert.Zero(t, res.RowsAffected)

	_, err = ex.Delete(ctx, events, &dao.Record{ID: 1, Timestamp: stale})
	assert.True(t, iscore.IsConflict(err))

	row, err = ex.Get(ctx, events, 1)
	require.NoError(t, err)
	assert.Equal(t, "first", row["name"])
	res, err = ex.Delete(ctx, events, &dao.Record{ID: 1, Timestamp: row["ev_ts"]})
	require.NoError(t, err)
	assert.Equal(t, dao.StatusOK, res.Status)

	_, err = ex.Get(ctx, events, 1)
	assert.True(t, iscore.IsNotFound(err))

	res, err = ex.UpdateField(ctx, events, 1, "name", "gone", "")
	require.NoError(t, err)
	assert.Equal(t, dao.StatusNothingDone, res.Status)
}

func TestExecutorSelect(t *testing.T) {
	ctx := context.Background()
	daos := registry(t,
		dao.WithDialect(dialect.SQLite),
		dao.WithAuthorizer(privacy.AuthorizerFunc(func(_ context.Context, entity string, _ privacy.Viewer, mode privacy.Mode) (string, error) {
			if entity == "Order" && mode == privacy.ModeSelect {
				return "region='EU'", nil
			}
			return "", nil
		})),
	)
	orders, lines := daos.MustDAO("Order"), daos.MustDAO("Line")
	ex := dao.NewExecutor(openSQLite(t))

	for _, r := range []*dao.Record{
		{Values: map[string]any{"ord_id": 1, "status": "open", "cust_id": 1}, AuditUser: "jdoe"},
		{Values: map[string]any{"ord_id": 2, "status": "open", "cust_id": 2}, AuditUser: "jdoe"},
		{Values: map[string]any{"ord_id": 3, "status": "closed", "cust_id": 1}, AuditUser: "jdoe"},
	} {
		_, err := ex.Insert(ctx, orders, r)
		require.NoError(t, err)
	}
	_, err := ex.Insert(ctx, lines, &dao.Record{Values: map[string]any{"line_id": 10, "line_ord": 3, "product": "Office chair"}})
	require.NoError(t, err)

	rows, err := ex.Select(ctx, orders, &dao.Query{Values: map[string]any{"status": "open"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["ord_id"])
	assert.Equal(t, "ACME", rows[0]["name"])
	assert.Equal(t, "jdoe", rows[0]["ord_user"])
	assert.NotNil(t, rows[0]["ord_ts"])

	n, err := ex.Count(ctx, orders, &dao.Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows, err = ex.Select(ctx, orders, &dao.Query{
		Children: map[string]*dao.Query{"lines": {Values: map[string]any{"product": "CHAIR"}}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0]["ord_id"])

	rows, err = ex.Select(ctx, orders, &dao.Query{
		Children: map[string]*dao.Query{"lines": {Values: map[string]any{"product": "table"}}},
	})
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = ex.Insert(ctx, orders, &dao.Record{Values: map[string]any{"ord_id": 1, "status": "dup"}})
	require.Error(t, err)
	assert.True(t, iscore.IsMutationError(err))
	assert.True(t, iscore.IsConstraintError(err))
}

func TestExecutorDeleteCascades(t *testing.T) {
	ctx := context.Background()
	daos := registry(t, dao.WithDialect(dialect.SQLite))
	orders := daos.MustDAO("Order")
	drv := openSQLite(t)
	ex := dao.NewExecutor(drv)

	_, err := ex.Insert(ctx, orders, &dao.Record{Values: map[string]any{"ord_id": 1, "status": "open", "cust_id": 1}})
	require.NoError(t, err)
	_, err = drv.DB().Exec(`
		INSERT INTO lines (line_id, line_ord, product) VALUES (1, 1, 'a'), (2, 2, 'b');
		INSERT INTO order_colors (oc_ord, oc_color) VALUES (1, 'red');
		INSERT INTO order_notes (on_ord, body) VALUES (1, 'x');
	`)
	require.NoError(t, err)

	row, err := ex.Get(ctx, orders, 1)
	require.NoError(t, err)

	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	res, err := dao.NewExecutor(tx).Delete(ctx, orders, &dao.Record{ID: 1, Timestamp: row["ord_ts"]})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, dao.StatusOK, res.Status)

	var count int
	require.NoError(t, drv.DB().QueryRow("SELECT COUNT(*) FROM lines").Scan(&count))
	assert.Equal(t, 1, count, "only the lines of the deleted order are removed")
	require.NoError(t, drv.DB().QueryRow("SELECT COUNT(*) FROM order_colors").Scan(&count))
	assert.Zero(t, count)
	require.NoError(t, drv.DB().QueryRow("SELECT COUNT(*) FROM order_notes").Scan(&count))
	assert.Zero(t, count)
}

func TestExecutorStaleDeleteKeepsDependents(t *testing.T) {
	ctx := context.Background()
	orders := registry(t, dao.WithDialect(dialect.SQLite)).MustDAO("Order")
	drv := openSQLite(t)
	ex := dao.NewExecutor(drv)

	_, err := ex.Insert(ctx, orders, &dao.Record{Values: map[string]any{"ord_id": 1, "status": "open", "cust_id": 1}})
	require.NoError(t, err)
	_, err = drv.DB().Exec(`
		INSERT INTO lines (line_id, line_ord, product) VALUES (1, 1, 'a');
		INSERT INTO order_colors (oc_ord, oc_color) VALUES (1, 'red');
		INSERT INTO order_notes (on_ord, body) VALUES (1, 'x');
	`)
	require.NoError(t, err)

	for _, r := range []*dao.Record{
		{ID: 1, Timestamp: "1999-01-01 00:00:00"},
		{ID: 1},
	} {
		res, err := ex.Delete(ctx, orders, r)
		require.Error(t, err)
		assert.True(t, iscore.IsConflict(err))
		assert.Equal(t, dao.StatusConflict, res.Status)
	}
	for _, table := range []string{"orders", "lines", "order_colors", "order_notes"} {
		var count int
		require.NoError(t, drv.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&count))
		assert.Equal(t, 1, count, table)
	}
}

func TestExecutorCache(t *testing.T) {
	ctx := context.Background()
	cache := iscore.NewMemoryCache()
	daos := registry(t, dao.WithDialect(dialect.SQLite), dao.WithCache(cache, time.Minute))
	tags := daos.MustDAO("Tag")
	drv := openSQLite(t)
	_, err := drv.DB().Exec("CREATE TABLE tags (tag_id INTEGER PRIMARY KEY, label TEXT)")
	require.NoError(t, err)
	ex := dao.NewExecutor(drv)

	_, err = ex.Insert(ctx, tags, &dao.Record{Values: map[string]any{"tag_id": 1, "label": "gift"}})
	require.NoError(t, err)
	rows, err := ex.Select(ctx, tags, &dao.Query{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, cache.Len())

	// Writes behind the executor's back are not seen until it invalidates.
	_, err = drv.DB().Exec("INSERT INTO tags (tag_id, label) VALUES (2, 'sale')")
	require.NoError(t, err)
	rows, err = ex.Select(ctx, tags, &dao.Query{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["tag_id"])
	assert.Equal(t, "gift", rows[0]["label"])

	_, err = ex.UpdateField(ctx, tags, 1, "label", "present", "")
	require.NoError(t, err)
	assert.Zero(t, cache.Len())
	rows, err = ex.Select(ctx, tags, &dao.Query{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestExecutorCacheJoinedEntity(t *testing.T) {
	ctx := context.Background()
	cache := iscore.NewMemoryCache()
	daos := registry(t, dao.WithDialect(dialect.SQLite), dao.WithCache(cache, time.Minute))
	orders, lines := daos.MustDAO("Order"), daos.MustDAO("Line")
	ex := dao.NewExecutor(openSQLite(t))

	_, err := ex.Insert(ctx, orders, &dao.Record{Values: map[string]any{"ord_id": 1, "status": "open", "cust_id": 1}})
	require.NoError(t, err)
	_, err = ex.Insert(ctx, lines, &dao.Record{Values: map[string]any{"line_id": 10, "line_ord": 1, "product": "chair"}})
	require.NoError(t, err)

	q := func() *dao.Query { return &dao.Query{Select: []string{"line_id", "orders__status"}} }
	rows, err := ex.Select(ctx, lines, q())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "open", rows[0]["orders__status"])

	_, err = ex.UpdateField(ctx, orders, 1, "status", "closed", "")
	require.NoError(t, err)
	rows, err = ex.Select(ctx, lines, q())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "closed", rows[0]["orders__status"], "a write to a joined table drops the cached rows")

	row, err := ex.Get(ctx, orders, 1)
	require.NoError(t, err)
	rows, err = ex.Select(ctx, lines, &dao.Query{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	_, err = ex.Delete(ctx, orders, &dao.Record{ID: 1, Timestamp: row["ord_ts"]})
	require.NoError(t, err)
	rows, err = ex.Select(ctx, lines, &dao.Query{})
	require.NoError(t, err)
	assert.Empty(t, rows, "cascade deletes drop the cached rows of the child")
}

func TestExecutorViewerSession(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	cache := iscore.NewMemoryCache()
	tags := registry(t,
		dao.WithDialect(dialect.Postgres),
		dao.WithViewerSession("iscore.user", "iscore.tenant"),
		dao.WithCache(cache, time.Minute),
	).MustDAO("Tag")
	ex := dao.NewExecutor(sql.OpenDB(dialect.Postgres, db))

	expect := func(user, tenant string) {
		mock.ExpectExec("SELECT set_config($1, $2, $3)").WithArgs("iscore.user", user, false).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("SELECT set_config($1, $2, $3)").WithArgs("iscore.tenant", tenant, false).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT * FROM tags ORDER BY tag_id ASC").WillReturnRows(sqlmock.NewRows([]string{"tag_id"}).AddRow(int64(1)))
		mock.ExpectExec("RESET iscore.user").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("RESET iscore.tenant").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	ctx := context.Background()
	jdoe := &privacy.SimpleViewer{UserID: "jdoe", TenantID: "acme"}
	expect("jdoe", "acme")
	_, err = ex.Select(ctx, tags, &dao.Query{Viewer: jdoe})
	require.NoError(t, err)
	_, err = ex.Select(ctx, tags, &dao.Query{Viewer: jdoe})
	require.NoError(t, err)

	expect("mallory", "globex")
	rows, err := ex.Select(privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "mallory", TenantID: "globex"}), tags, &dao.Query{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 2, cache.Len(), "results are cached per session")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextIDSQLite(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	daos := registry(t, dao.WithSequenceTable("id_seq"))

	first, err := daos.NextID(ctx, drv, "SEQ_ORDER")
	require.NoError(t, err)
	second, err := daos.MustDAO("Order").NextID(ctx, drv)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)
	assert.Greater(t, second, first)

	_, err = daos.NextID(ctx, drv, "NOPE")
	assert.True(t, iscore.IsNotFound(err))
}
