package db

import (
	"context"
	"fmt"
)

// ExportTableNames lists the tables included in spreadsheet exports.
var ExportTableNames = []string{
	"reservations",
	"recurring_series",
	"space_closures",
}

func exportQuery(table string) (string, bool) {
	switch table {
	case "reservations":
		return `SELECT * FROM reservations ORDER BY reserved_at, id`, true
	case "recurring_series":
		return `SELECT * FROM recurring_series ORDER BY id`, true
	case "space_closures":
		return `SELECT * FROM space_closures ORDER BY starts_at, id`, true
	}
	return "", false
}

// GetTableData dumps an exportable table. Rows are keyed by column name and
// columns come back in table order.
func (db *DB) GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error) {
	query, ok := exportQuery(tableName)
	if !ok {
		return nil, nil, fmt.Errorf("table %q is not exportable", tableName)
	}

	rows, err := db.conn(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("dump %s: %w", tableName, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out []map[string]any
	for rows.Next() {
		cells := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("dump %s: %w", tableName, err)
		}

		row := make(map[string]any, len(columns))
		for i, name := range columns {
			if b, isBytes := cells[i].([]byte); isBytes {
				row[name] = string(b)
				continue
			}
			row[name] = cells[i]
		}
		out = append(out, row)
	}
	return out, columns, rows.Err()
}
