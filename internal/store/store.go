// Package store defines the Table Store adapter contract: the uniform
// surface the sync core requires of a backend (connect, list tables, read
// a whole table, and the three row-level mutations). How a concrete
// backend implements it is deliberately kept out of the core — see the
// sqlitestore, mysqlstore, and kvstore subpackages for the adapters this
// module ships.
package store

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Kind enumerates the scalar kinds a column value may hold.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindTime
)

// Value is a tagged variant over the scalar kinds a Row column may hold.
// The zero Value is KindNull.
type Value struct {
	Kind Kind
	Str  string
	Int  int64
	Flt  float64
	Time time.Time
}

func NullValue() Value           { return Value{Kind: KindNull} }
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func IntValue(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Flt: f} }
func TimeValue(t time.Time) Value {
	return Value{Kind: KindTime, Time: t}
}

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Equal reports value equality (not reference identity) between two
// Values, comparing within each scalar kind. Two Values of different
// kinds are never equal, except that KindNull equals only KindNull.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return v.Str == other.Str
	case KindInt:
		return v.Int == other.Int
	case KindFloat:
		return v.Flt == other.Flt
	case KindTime:
		return v.Time.Equal(other.Time)
	default:
		return false
	}
}

// Less reports whether v orders strictly before other under the
// last-modified comparison of spec §3 ("orderable value"). Null/missing
// values are treated as the minimum possible value.
func (v Value) Less(other Value) bool {
	if v.IsNull() {
		return !other.IsNull()
	}
	if other.IsNull() {
		return false
	}
	switch v.Kind {
	case KindInt:
		if other.Kind == KindFloat {
			return float64(v.Int) < other.Flt
		}
		return v.Int < other.Int
	case KindFloat:
		if other.Kind == KindInt {
			return v.Flt < float64(other.Int)
		}
		return v.Flt < other.Flt
	case KindTime:
		return v.Time.Before(other.Time)
	case KindString:
		return v.Str < other.Str
	default:
		return false
	}
}

// String renders the value for diagnostics; it is not a canonical
// serialization.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "<null>"
	case KindString:
		return v.Str
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Flt)
	case KindTime:
		return v.Time.Format(time.RFC3339Nano)
	default:
		return "<invalid>"
	}
}

// Row maps column name to scalar value. Rows within one Table share a
// column set (spec §3).
type Row map[string]Value

// Clone returns a shallow copy of r; Values are immutable so a shallow
// copy is a full copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ColumnSet returns the sorted set of column names present in r.
func (r Row) ColumnSet() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Table is an ordered sequence of Rows produced by reading a named table
// at one instant (spec §3). Row order is not semantically meaningful;
// callers may rely on a positional index only within one Table value.
type Table struct {
	Name string
	Rows []Row
}

// Conn is a live connection to one endpoint, returned by Store.Connect.
type Conn interface {
	// Close releases the connection's resources.
	Close() error
	// Connected reports whether the connection is still usable.
	Connected() bool
}

// Store is the uniform per-backend surface the sync core consumes. A
// db_type value in a sync configuration selects one Store implementation
// at program-assembly time (spec §9, "Backend polymorphism").
type Store interface {
	// Connect opens a connection using backend-specific config, opaque to
	// the core.
	Connect(ctx context.Context, cfg map[string]any) (Conn, error)

	// ListTables enumerates the table names visible on the connection.
	ListTables(ctx context.Context, c Conn) ([]string, error)

	// ReadTable returns every row currently visible in the named table.
	// Ordering need not be stable across calls.
	ReadTable(ctx context.Context, c Conn, table string) (Table, error)

	// InsertRows appends rows to the named table as a single logical
	// batch. It does not rely on any key-uniqueness enforcement by the
	// backend; the core only ever inserts rows it has already determined
	// are absent.
	InsertRows(ctx context.Context, c Conn, table string, rows []Row) error

	// UpdateRows overwrites, for each input row, the existing row whose
	// keyCol value matches, replacing all other columns. Input rows with
	// no matching existing row are a no-op.
	UpdateRows(ctx context.Context, c Conn, table string, rows []Row, keyCol string) error

	// DeleteRows deletes rows whose keyCol value equals any input row's
	// keyCol value. Input rows carry at minimum the key column.
	DeleteRows(ctx context.Context, c Conn, table string, rows []Row, keyCol string) error
}

// KeyOf returns the key column's value from row, or the zero Value
// (KindNull) if absent.
func KeyOf(row Row, keyCol string) Value {
	if v, ok := row[keyCol]; ok {
		return v
	}
	return NullValue()
}
