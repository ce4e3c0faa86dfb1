// Package kvstore implements the "generic" Table Store adapter over
// github.com/dgraph-io/badger/v4, an embedded key-value engine used
// elsewhere in the example corpus (kasuganosora-sqlexec's badger
// resource) to back a document-oriented table model. It is the nearest
// idiomatic-Go analogue to the original system's DynamoDB reader
// (original_source/lambda/dynamodb.py): rows are items addressed by a
// partition key, optionally refined by a sort key, with no fixed
// column schema.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/taylorhickem/tablesync/internal/store"
)

const (
	prefixTable = "table:"
	prefixRow   = "row:"
)

// Store implements store.Store for generic db_type endpoints backed by
// Badger. Unlike sqlitestore/mysqlstore it needs no SQL dialect: row
// keys are built directly from the partition key (and sort key, if
// configured) named in the endpoint config.
type Store struct{}

// New returns a Store implementation registerable under the "generic"
// db_type.
func New() Store { return Store{} }

// Conn wraps an open Badger database.
type Conn struct {
	DB           *badger.DB
	PartitionKey string
	SortKey      string // empty when the table has no sort key
}

func (c *Conn) Close() error { return c.DB.Close() }

func (c *Conn) Connected() bool { return c.DB != nil && !c.DB.IsClosed() }

// Connect opens the Badger database named by the "path" config key
// (or an in-memory instance when cfg["in_memory"] is true, mirroring
// kasuganosora-sqlexec's DataSourceConfig.InMemory option). "partition_key"
// is required; "sort_key" is optional, matching the DynamoDBTable
// keys scheme of original_source/lambda/dynamodb.py where every table
// declares a partition key and may declare a sort key.
func (Store) Connect(ctx context.Context, cfg map[string]any) (store.Conn, error) {
	partitionKey, _ := cfg["partition_key"].(string)
	if partitionKey == "" {
		return nil, fmt.Errorf("kvstore: missing \"partition_key\" in endpoint config")
	}
	sortKey, _ := cfg["sort_key"].(string)

	var opts badger.Options
	if inMemory, _ := cfg["in_memory"].(bool); inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		path, _ := cfg["path"].(string)
		if path == "" {
			return nil, fmt.Errorf("kvstore: endpoint config needs \"path\" unless \"in_memory\" is true")
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open: %w", err)
	}
	return &Conn{DB: db, PartitionKey: partitionKey, SortKey: sortKey}, nil
}

// rowKey builds the "row:{table}:{partitionValue}[:{sortValue}]" key for
// row, the same colon-delimited scheme as KeyEncoder.EncodeRowKey.
func rowKey(table string, row store.Row, partitionKey, sortKey string) ([]byte, error) {
	pv, ok := row[partitionKey]
	if !ok || pv.IsNull() {
		return nil, fmt.Errorf("kvstore: row missing partition key %q", partitionKey)
	}
	key := fmt.Sprintf("%s%s:%s", prefixRow, table, pv.String())
	if sortKey != "" {
		sv, ok := row[sortKey]
		if !ok || sv.IsNull() {
			return nil, fmt.Errorf("kvstore: row missing sort key %q", sortKey)
		}
		key = fmt.Sprintf("%s:%s", key, sv.String())
	}
	return []byte(key), nil
}

func rowPrefix(table string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixRow, table))
}

// tableRegistryKey records that a table has been written to, so
// ListTables has something to enumerate without a full keyspace scan.
func tableRegistryKey(table string) []byte {
	return []byte(prefixTable + table)
}

func (Store) ListTables(ctx context.Context, c store.Conn) ([]string, error) {
	conn := c.(*Conn)
	var names []string
	err := conn.DB.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixTable)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			names = append(names, strings.TrimPrefix(key, prefixTable))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: list tables: %w", err)
	}
	return names, nil
}

func (Store) ReadTable(ctx context.Context, c store.Conn, table string) (store.Table, error) {
	conn := c.(*Conn)
	result := store.Table{Name: table}
	err := conn.DB.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := rowPrefix(table)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var row store.Row
			err := item.Value(func(val []byte) error {
				r, err := decodeRow(val)
				if err != nil {
					return err
				}
				row = r
				return nil
			})
			if err != nil {
				return fmt.Errorf("row at key %s: %w", item.Key(), err)
			}
			result.Rows = append(result.Rows, row)
		}
		return nil
	})
	if err != nil {
		return store.Table{}, fmt.Errorf("kvstore: read table %s: %w", table, err)
	}
	return result, nil
}

func (Store) InsertRows(ctx context.Context, c store.Conn, table string, rows []store.Row) error {
	conn := c.(*Conn)
	return putRows(conn, table, rows, false)
}

// UpdateRows overwrites the item at each row's key with the whole input
// row: there is no column-level merge. Each key is looked up first, and
// an input row whose key has no existing item is a no-op, per the Store
// contract.
func (Store) UpdateRows(ctx context.Context, c store.Conn, table string, rows []store.Row, keyCol string) error {
	conn := c.(*Conn)
	return putRows(conn, table, rows, true)
}

// putRows writes rows to table. When requireExisting is true (UpdateRows),
// a row whose key has no existing item in the store is skipped rather than
// inserted.
func putRows(conn *Conn, table string, rows []store.Row, requireExisting bool) error {
	if len(rows) == 0 {
		return nil
	}
	wb := conn.DB.NewWriteBatch()
	defer wb.Cancel()
	wrote := false
	for _, row := range rows {
		key, err := rowKey(table, row, conn.PartitionKey, conn.SortKey)
		if err != nil {
			return fmt.Errorf("kvstore: write to %s: %w", table, err)
		}
		if requireExisting {
			exists, err := keyExists(conn.DB, key)
			if err != nil {
				return fmt.Errorf("kvstore: check existing key in %s: %w", table, err)
			}
			if !exists {
				continue
			}
		}
		val, err := encodeRow(row)
		if err != nil {
			return fmt.Errorf("kvstore: encode row for %s: %w", table, err)
		}
		if err := wb.Set(key, val); err != nil {
			return fmt.Errorf("kvstore: write to %s: %w", table, err)
		}
		wrote = true
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("kvstore: write to %s: %w", table, err)
	}
	if !wrote {
		return nil
	}
	return conn.DB.Update(func(txn *badger.Txn) error {
		return txn.Set(tableRegistryKey(table), nil)
	})
}

// keyExists reports whether key already has an item in db.
func keyExists(db *badger.DB, key []byte) (bool, error) {
	err := db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (Store) DeleteRows(ctx context.Context, c store.Conn, table string, rows []store.Row, keyCol string) error {
	conn := c.(*Conn)
	if len(rows) == 0 {
		return nil
	}
	wb := conn.DB.NewWriteBatch()
	defer wb.Cancel()
	for _, row := range rows {
		key, err := rowKey(table, row, conn.PartitionKey, conn.SortKey)
		if err != nil {
			return fmt.Errorf("kvstore: delete from %s: %w", table, err)
		}
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("kvstore: delete from %s: %w", table, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("kvstore: delete from %s: %w", table, err)
	}
	return nil
}

// kvValue is the JSON wire shape for a single store.Value, tagging
// which field is meaningful so round-tripping doesn't need to guess
// between an int and a float that happens to be integral.
type kvValue struct {
	Kind string  `json:"kind"`
	Str  string  `json:"str,omitempty"`
	Int  int64   `json:"int,omitempty"`
	Flt  float64 `json:"flt,omitempty"`
	Time string  `json:"time,omitempty"`
}

func encodeRow(row store.Row) ([]byte, error) {
	wire := make(map[string]kvValue, len(row))
	for col, v := range row {
		switch v.Kind {
		case store.KindNull:
			wire[col] = kvValue{Kind: "null"}
		case store.KindString:
			wire[col] = kvValue{Kind: "string", Str: v.Str}
		case store.KindInt:
			wire[col] = kvValue{Kind: "int", Int: v.Int}
		case store.KindFloat:
			wire[col] = kvValue{Kind: "float", Flt: v.Flt}
		case store.KindTime:
			wire[col] = kvValue{Kind: "time", Time: v.Time.UTC().Format(time.RFC3339Nano)}
		default:
			return nil, fmt.Errorf("unsupported value kind for column %q", col)
		}
	}
	return json.Marshal(wire)
}

func decodeRow(data []byte) (store.Row, error) {
	var wire map[string]kvValue
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	row := make(store.Row, len(wire))
	for col, v := range wire {
		switch v.Kind {
		case "null":
			row[col] = store.NullValue()
		case "string":
			row[col] = store.StringValue(v.Str)
		case "int":
			row[col] = store.IntValue(v.Int)
		case "float":
			row[col] = store.FloatValue(v.Flt)
		case "time":
			t, err := time.Parse(time.RFC3339Nano, v.Time)
			if err != nil {
				return nil, fmt.Errorf("decode time for column %q: %w", col, err)
			}
			row[col] = store.TimeValue(t)
		default:
			return nil, fmt.Errorf("unrecognized value kind %q for column %q", v.Kind, col)
		}
	}
	return row, nil
}

var _ store.Store = Store{}
