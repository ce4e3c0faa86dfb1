// Package mysqlstore implements the remote-SQL Table Store adapter using
// github.com/go-sql-driver/mysql, the driver used across the example
// corpus's MySQL-facing tooling (block-spirit's replication client).
package mysqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/taylorhickem/tablesync/internal/store"
	"github.com/taylorhickem/tablesync/internal/store/sqlstore"
)

// Store implements store.Store for mysql db_type endpoints.
type Store struct{}

// New returns a Store implementation registerable under the "mysql"
// db_type.
func New() Store { return Store{} }

// Connect builds a DSN from the endpoint config (host, port, user,
// password, database — "dsn" overrides all of those when present) and
// opens a connection pool. Credentials may also be supplied indirectly
// via CredentialsFromFile (see credentials.go), mirroring the original
// system's separate MySQL-credentials loader.
func (Store) Connect(ctx context.Context, cfg map[string]any) (store.Conn, error) {
	dsn, err := dsnFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysqlstore: ping: %w", err)
	}
	return &sqlstore.Conn{DB: db}, nil
}

func dsnFromConfig(cfg map[string]any) (string, error) {
	if dsn, ok := cfg["dsn"].(string); ok && dsn != "" {
		return dsn, nil
	}

	user, _ := cfg["user"].(string)
	password, _ := cfg["password"].(string)
	host, _ := cfg["host"].(string)
	database, _ := cfg["database"].(string)
	if host == "" || database == "" {
		return "", fmt.Errorf("mysqlstore: endpoint config needs \"dsn\", or \"host\"+\"database\"")
	}
	port := "3306"
	if p, ok := cfg["port"].(string); ok && p != "" {
		port = p
	} else if p, ok := cfg["port"].(float64); ok && p != 0 {
		port = fmt.Sprintf("%.0f", p)
	}

	netCfg := mysqldriver.NewConfig()
	netCfg.User = user
	netCfg.Passwd = password
	netCfg.Net = "tcp"
	netCfg.Addr = fmt.Sprintf("%s:%s", host, port)
	netCfg.DBName = database
	netCfg.ParseTime = true
	return netCfg.FormatDSN(), nil
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (Store) ListTables(ctx context.Context, c store.Conn) ([]string, error) {
	conn := c.(*sqlstore.Conn)
	return sqlstore.ListTables(ctx, conn.DB, "SHOW TABLES")
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
