package main

import (
	"bytes"
	"context"
	stdsql "database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const entities = `
entities:
  - name: Order
    table: orders
    id: ord_id
    sequence: SEQ_ORDER
    attributes:
      - {name: ord_id, type: BIGINT}
      - {name: status, type: VARCHAR(20), predicate: equal}
      - {name: region, table: customers, type: VARCHAR}
    joins:
      - {table: customers, on: orders.cust_id = customers.id}
`

func schemaDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.yaml"), []byte(entities), 0o600))
	return dir
}

func TestRunSelect(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-schema", schemaDir(t), "-dialect", "postgres",
		"select", "Order", "-limit", "5", "status=open",
	}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())
	assert.Equal(t, "SELECT * FROM orders JOIN customers ON orders.cust_id = customers.id WHERE status=$1 ORDER BY ord_id ASC LIMIT 5\n-- args: [open]\n", stdout.String())
}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-schema", schemaDir(t)}, &stdout, &stderr)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr.String(), "usage: iscore")

	err = run(context.Background(), []string{"-schema", schemaDir(t), "frobnicate"}, &stdout, &stderr)
	assert.ErrorIs(t, err, errUsage)

	err = run(context.Background(), []string{"-schema", schemaDir(t), "select", "Invoice"}, &stdout, &stderr)
	assert.Error(t, err)

	err = run(context.Background(), []string{"-schema", schemaDir(t), "nextid", "SEQ_ORDER"}, &stdout, &stderr)
	assert.ErrorContains(t, err, "data source")
}

func TestRunValidate(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-schema", schemaDir(t), "validate"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Validation passed.")
}

func TestRunSQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "iscore.db")
	db, err := stdsql.Open("sqlite", dsn)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE customers (id INTEGER PRIMARY KEY, region TEXT);
		CREATE TABLE orders (ord_id INTEGER PRIMARY KEY, cust_id INTEGER, status TEXT);
		CREATE TABLE id_seq (name TEXT PRIMARY KEY, value INTEGER NOT NULL);
		INSERT INTO customers VALUES (1, 'EU');
		INSERT INTO orders VALUES (1, 1, 'open'), (2, 1, 'closed');
		INSERT INTO id_seq VALUES ('SEQ_ORDER', 41);
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	base := []string{"-schema", schemaDir(t), "-dialect", "sqlite", "-dsn", dsn, "-sequence-table", "id_seq"}
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), append(base, "nextid", "SEQ_ORDER"), &stdout, &stderr), stderr.String())
	assert.Equal(t, "42\n", stdout.String())

	stdout.Reset()
	require.NoError(t, run(context.Background(), append(base, "query", "Order", "status=open"), &stdout, &stderr), stderr.String())
	assert.JSONEq(t, `{"ord_id": 1, "cust_id": 1, "status": "open", "id": 1, "region": "EU"}`, stdout.String())

	stdout.Reset()
	stderr.Reset()
	require.NoError(t, run(context.Background(), append(base, "-debug", "query", "Order", "status=closed"), &stdout, &stderr), stderr.String())
	assert.Contains(t, stderr.String(), "msg=statement")
	assert.Contains(t, stderr.String(), "queries=1")
}
