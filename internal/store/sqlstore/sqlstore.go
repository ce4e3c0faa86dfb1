// Package sqlstore implements the Table Store adapter contract's
// read/insert/update/delete operations generically over database/sql,
// shared by the sqlitestore and mysqlstore backends. It knows nothing
// about a specific driver; each backend supplies a *sql.DB, an
// identifier-quoting function, and its own table-listing query.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/taylorhickem/tablesync/internal/store"
)

// Conn wraps a *sql.DB as a store.Conn.
type Conn struct {
	DB *sql.DB
}

func (c *Conn) Close() error { return c.DB.Close() }

func (c *Conn) Connected() bool {
	if c == nil || c.DB == nil {
		return false
	}
	return c.DB.Ping() == nil
}

// QuoteFunc quotes an identifier for safe interpolation into SQL text
// (database/sql has no identifier placeholders).
type QuoteFunc func(name string) string

// ListTables runs query, which must select exactly one column of table
// names, and returns them as a slice.
func ListTables(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlstore: scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ReadTable returns every row currently visible in table (spec §4.1).
func ReadTable(ctx context.Context, db *sql.DB, table string, quote QuoteFunc) (store.Table, error) {
	query := fmt.Sprintf("SELECT * FROM %s", quote(table))
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return store.Table{}, fmt.Errorf("sqlstore: read table %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return store.Table{}, fmt.Errorf("sqlstore: columns for %s: %w", table, err)
	}

	result := store.Table{Name: table}
	for rows.Next() {
		scanTargets := make([]any, len(cols))
		scanValues := make([]any, len(cols))
		for i := range scanTargets {
			scanTargets[i] = &scanValues[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return store.Table{}, fmt.Errorf("sqlstore: scan row in %s: %w", table, err)
		}
		row := make(store.Row, len(cols))
		for i, col := range cols {
			row[col] = driverValueToValue(scanValues[i])
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}

// driverValueToValue converts a value scanned from database/sql (already
// normalized by the driver to nil, int64, float64, bool, []byte, string,
// or time.Time) into a store.Value.
func driverValueToValue(v any) store.Value {
	switch t := v.(type) {
	case nil:
		return store.NullValue()
	case int64:
		return store.IntValue(t)
	case float64:
		return store.FloatValue(t)
	case bool:
		if t {
			return store.IntValue(1)
		}
		return store.IntValue(0)
	case []byte:
		return store.StringValue(string(t))
	case string:
		return store.StringValue(t)
	case time.Time:
		return store.TimeValue(t)
	default:
		return store.StringValue(fmt.Sprintf("%v", t))
	}
}

// InsertRows appends rows to table within a single transaction (spec
// §4.1: "Each mutation is expected to be applied as a single logical
// batch"). Rows are grouped by column set so each group can share one
// prepared statement.
func InsertRows(ctx context.Context, db *sql.DB, table string, rows []store.Row, quote QuoteFunc) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin insert tx: %w", err)
	}
	defer tx.Rollback()

	stmts := make(map[string]*sql.Stmt)
	for _, row := range rows {
		cols := row.ColumnSet()
		key := strings.Join(cols, ",")
		stmt, ok := stmts[key]
		if !ok {
			placeholders := make([]string, len(cols))
			quotedCols := make([]string, len(cols))
			for i, c := range cols {
				placeholders[i] = "?"
				quotedCols[i] = quote(c)
			}
			query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(table), strings.Join(quotedCols, ","), strings.Join(placeholders, ","))
			stmt, err = tx.PrepareContext(ctx, query)
			if err != nil {
				return fmt.Errorf("sqlstore: prepare insert for %s: %w", table, err)
			}
			defer stmt.Close()
			stmts[key] = stmt
		}
		args := make([]any, len(cols))
		for i, c := range cols {
			args[i] = valueToDriver(row[c])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("sqlstore: insert into %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// UpdateRows matches each input row by keyCol and overwrites all other
// columns it carries (spec §4.1). Rows with no matching existing row are
// a no-op, which database/sql's zero-rows-affected UPDATE already is.
func UpdateRows(ctx context.Context, db *sql.DB, table string, rows []store.Row, keyCol string, quote QuoteFunc) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin update tx: %w", err)
	}
	defer tx.Rollback()

	stmts := make(map[string]*sql.Stmt)
	for _, row := range rows {
		setCols := make([]string, 0, len(row))
		for c := range row {
			if c == keyCol {
				continue
			}
			setCols = append(setCols, c)
		}
		key := strings.Join(setCols, ",")
		stmt, ok := stmts[key]
		if !ok {
			setClauses := make([]string, len(setCols))
			for i, c := range setCols {
				setClauses[i] = fmt.Sprintf("%s = ?", quote(c))
			}
			query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", quote(table), strings.Join(setClauses, ","), quote(keyCol))
			stmt, err = tx.PrepareContext(ctx, query)
			if err != nil {
				return fmt.Errorf("sqlstore: prepare update for %s: %w", table, err)
			}
			defer stmt.Close()
			stmts[key] = stmt
		}
		args := make([]any, 0, len(setCols)+1)
		for _, c := range setCols {
			args = append(args, valueToDriver(row[c]))
		}
		args = append(args, valueToDriver(row[keyCol]))
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("sqlstore: update %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// DeleteRows deletes rows whose keyCol value equals any input row's
// keyCol value (spec §4.1).
func DeleteRows(ctx context.Context, db *sql.DB, table string, rows []store.Row, keyCol string, quote QuoteFunc) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin delete tx: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(table), quote(keyCol))
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("sqlstore: prepare delete for %s: %w", table, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, valueToDriver(store.KeyOf(row, keyCol))); err != nil {
			return fmt.Errorf("sqlstore: delete from %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func valueToDriver(v store.Value) any {
	switch v.Kind {
	case store.KindNull:
		return nil
	case store.KindString:
		return v.Str
	case store.KindInt:
		return v.Int
	case store.KindFloat:
		return v.Flt
	case store.KindTime:
		return v.Time
	default:
		return nil
	}
}
