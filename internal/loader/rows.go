package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"mtgdata/pkg/database"
	"mtgdata/pkg/models"
)

// maxBatch keeps IN (...) lists under the 999 bind variable limit of older
// SQLite builds, even when a query repeats the list twice.
const maxBatch = 400

func scanRows(rows *sql.Rows) ([]models.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var out []models.Row
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(models.Row, len(cols))
		for i, col := range cols {
			row[col] = models.NormalizeValue(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func queryRows(ctx context.Context, db database.Queryer, query string, args ...any) ([]models.Row, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func ensureTable(ctx context.Context, db database.Queryer, table string) error {
	ok, err := database.TableExists(ctx, db, table)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableMissing, table)
	}
	return nil
}

// selectAll returns every row of table. Table names are constants from this
// package, never user input.
func selectAll(ctx context.Context, db database.Queryer, table string) ([]models.Row, error) {
	if err := ensureTable(ctx, db, table); err != nil {
		return nil, err
	}
	rows, err := queryRows(ctx, db, "SELECT * FROM "+table)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return rows, nil
}

func selectByUUID(ctx context.Context, db database.Queryer, table string, uuids []string) ([]models.Row, error) {
	if err := ensureTable(ctx, db, table); err != nil {
		return nil, err
	}
	var out []models.Row
	for _, chunk := range chunks(uuids, maxBatch) {
		q := "SELECT * FROM " + table + " WHERE uuid IN (" + placeholders(len(chunk)) + ")"
		rows, err := queryRows(ctx, db, q, anySlice(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("select %s by uuid: %w", table, err)
		}
		out = append(out, rows...)
	}
	return out, nil
}

func chunks(items []string, size int) [][]string {
	var out [][]string
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anySlice(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a substring pattern for LIKE ... ESCAPE '\'.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
