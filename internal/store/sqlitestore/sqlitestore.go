// Package sqlitestore implements the embedded, file-backed Table Store
// adapter using modernc.org/sqlite, the pure-Go driver the teacher repo
// uses for its own local persistence layer (internal/db.Open).
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/taylorhickem/tablesync/internal/store"
	"github.com/taylorhickem/tablesync/internal/store/sqlstore"
)

// Store implements store.Store for sqlite db_type endpoints.
type Store struct{}

// New returns a Store implementation registerable under the "sqlite"
// db_type.
func New() Store { return Store{} }

// Connect opens (and creates, if absent) the sqlite file named by the
// "path" config key. It pins the connection pool to one connection, the
// same defensive setting the teacher's internal/db package uses, since
// SQLite allows only one writer and a wider pool risks corrupting the
// WAL/SHM files under concurrent access.
func (Store) Connect(ctx context.Context, cfg map[string]any) (store.Conn, error) {
	path, _ := cfg["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("sqlitestore: missing \"path\" in endpoint config")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: set busy_timeout: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: ping %s: %w", path, err)
	}

	return &sqlstore.Conn{DB: db}, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Store) ListTables(ctx context.Context, c store.Conn) ([]string, error) {
	conn := c.(*sqlstore.Conn)
	return sqlstore.ListTables(ctx, conn.DB,
		`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`)
}

func (Store) ReadTable(ctx context.Context, c store.Conn, table string) (store.Table, error) {
	conn := c.(*sqlstore.Conn)
	return sqlstore.ReadTable(ctx, conn.DB, table, quoteIdent)
}

func (Store) InsertRows(ctx context.Context, c store.Conn, table string, rows []store.Row) error {
	conn := c.(*sqlstore.Conn)
	return sqlstore.InsertRows(ctx, conn.DB, table, rows, quoteIdent)
}

func (Store) UpdateRows(ctx context.Context, c store.Conn, table string, rows []store.Row, keyCol string) error {
	conn := c.(*sqlstore.Conn)
	return sqlstore.UpdateRows(ctx, conn.DB, table, rows, keyCol, quoteIdent)
}

func (Store) DeleteRows(ctx context.Context, c store.Conn, table string, rows []store.Row, keyCol string) error {
	conn := c.(*sqlstore.Conn)
	return sqlstore.DeleteRows(ctx, conn.DB, table, rows, keyCol, quoteIdent)
}

var _ store.Store = Store{}
