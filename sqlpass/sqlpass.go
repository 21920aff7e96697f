// Package sqlpass runs caller-supplied SQL against a SQLite database.
//
// Query text is executed verbatim: no parameter binding and no statement
// restriction. A connection is opened for each call and closed before the
// call returns.
package sqlpass

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver used for SQLite.
const DriverName = "sqlite"

// Row is one result row, in column order.
type Row []any

// Result holds the column names and rows of a query.
type Result struct {
	Columns []string
	Rows    []Row
}

// Query executes query against the SQLite database at dsn and returns every row.
func Query(ctx context.Context, dsn, query string) ([]Row, error) {
	result, err := QueryWithColumns(ctx, dsn, query)
	if err != nil {
		return nil, err
	}
	return result.Rows, nil
}

// QueryWithColumns is Query that also reports column names.
func QueryWithColumns(ctx context.Context, dsn, query string) (*Result, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	result := &Result{Columns: columns, Rows: []Row{}}
	for rows.Next() {
		row := make(Row, len(columns))
		dest := make([]any, len(columns))
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}
