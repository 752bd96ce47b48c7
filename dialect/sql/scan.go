package sql

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ScanMaps reads all remaining rows as maps from column name to value and
// closes rows. Byte slices are returned as strings.
func ScanMaps(rows ColumnScanner) ([]map[string]any, error) {
	defer rows.Close()
	var out []map[string]any
	for rows.Next() {
		m := make(map[string]any)
		if err := sqlx.MapScan(rows, m); err != nil {
			return nil, fmt.Errorf("dialect/sql: scan: %w", err)
		}
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dialect/sql: rows: %w", err)
	}
	return out, nil
}
