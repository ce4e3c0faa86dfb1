package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/taylorhickem/tablesync/internal/store"
)

func openTestConn(t *testing.T, partitionKey, sortKey string) store.Conn {
	t.Helper()
	cfg := map[string]any{"in_memory": true, "partition_key": partitionKey}
	if sortKey != "" {
		cfg["sort_key"] = sortKey
	}
	conn, err := New().Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConnect_MissingPartitionKey(t *testing.T) {
	_, err := New().Connect(context.Background(), map[string]any{"in_memory": true})
	if err == nil {
		t.Fatalf("expected an error for a missing partition_key")
	}
}

func TestConnect_MissingPathWhenNotInMemory(t *testing.T) {
	_, err := New().Connect(context.Background(), map[string]any{"partition_key": "id"})
	if err == nil {
		t.Fatalf("expected an error for a missing path")
	}
}

func TestInsertReadUpdateDelete_PartitionKeyOnly(t *testing.T) {
	conn := openTestConn(t, "id", "")
	st := New()
	ctx := context.Background()

	rows := []store.Row{
		{"id": store.IntValue(1), "v": store.StringValue("a")},
		{"id": store.IntValue(2), "v": store.StringValue("b")},
	}
	if err := st.InsertRows(ctx, conn, "widgets", rows); err != nil {
		t.Fatalf("InsertRows failed: %v", err)
	}

	tbl, err := st.ReadTable(ctx, conn, "widgets")
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(tbl.Rows))
	}

	update := []store.Row{{"id": store.IntValue(1), "v": store.StringValue("updated")}}
	if err := st.UpdateRows(ctx, conn, "widgets", update, "id"); err != nil {
		t.Fatalf("UpdateRows failed: %v", err)
	}
	tbl, err = st.ReadTable(ctx, conn, "widgets")
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	for _, r := range tbl.Rows {
		if store.KeyOf(r, "id").Equal(store.IntValue(1)) && r["v"].Str != "updated" {
			t.Errorf("expected updated value, got %v", r["v"])
		}
	}

	del := []store.Row{{"id": store.IntValue(2)}}
	if err := st.DeleteRows(ctx, conn, "widgets", del, "id"); err != nil {
		t.Fatalf("DeleteRows failed: %v", err)
	}
	tbl, err = st.ReadTable(ctx, conn, "widgets")
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	if len(tbl.Rows) != 1 {
		t.Fatalf("expected 1 row after delete, got %d", len(tbl.Rows))
	}
}

// UpdateRows is a no-op for a row whose key has no existing item, per the
// Store contract (internal/store/store.go's UpdateRows doc comment).
func TestUpdateRows_NonMatchingKeyIsNoop(t *testing.T) {
	conn := openTestConn(t, "id", "")
	st := New()
	ctx := context.Background()

	if err := st.InsertRows(ctx, conn, "widgets", []store.Row{
		{"id": store.IntValue(1), "v": store.StringValue("a")},
	}); err != nil {
		t.Fatalf("InsertRows failed: %v", err)
	}

	update := []store.Row{{"id": store.IntValue(99), "v": store.StringValue("ghost")}}
	if err := st.UpdateRows(ctx, conn, "widgets", update, "id"); err != nil {
		t.Fatalf("UpdateRows failed: %v", err)
	}

	tbl, err := st.ReadTable(ctx, conn, "widgets")
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	if len(tbl.Rows) != 1 {
		t.Fatalf("expected the non-matching update to be a no-op, got %d rows", len(tbl.Rows))
	}
	for _, r := range tbl.Rows {
		if store.KeyOf(r, "id").Equal(store.IntValue(99)) {
			t.Fatalf("expected no row inserted for the non-matching key, got %+v", r)
		}
	}
}

func TestListTables_TracksWrittenTables(t *testing.T) {
	conn := openTestConn(t, "id", "")
	st := New()
	ctx := context.Background()

	if err := st.InsertRows(ctx, conn, "widgets", []store.Row{{"id": store.IntValue(1)}}); err != nil {
		t.Fatalf("InsertRows failed: %v", err)
	}
	if err := st.InsertRows(ctx, conn, "gadgets", []store.Row{{"id": store.IntValue(1)}}); err != nil {
		t.Fatalf("InsertRows failed: %v", err)
	}

	names, err := st.ListTables(ctx, conn)
	if err != nil {
		t.Fatalf("ListTables failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 tables, got %v", names)
	}
}

func TestRowKey_PartitionAndSortKey(t *testing.T) {
	row := store.Row{"pk": store.StringValue("alice"), "sk": store.IntValue(7)}
	key, err := rowKey("widgets", row, "pk", "sk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "row:widgets:alice:7"
	if string(key) != want {
		t.Errorf("rowKey = %q, want %q", key, want)
	}
}

func TestRowKey_MissingPartitionValue(t *testing.T) {
	row := store.Row{"v": store.StringValue("a")}
	if _, err := rowKey("widgets", row, "id", ""); err == nil {
		t.Fatalf("expected an error for a row missing its partition key")
	}
}

func TestRowKey_MissingSortValue(t *testing.T) {
	row := store.Row{"id": store.IntValue(1)}
	if _, err := rowKey("widgets", row, "id", "sk"); err == nil {
		t.Fatalf("expected an error for a row missing its configured sort key")
	}
}

func TestEncodeDecodeRow_RoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	row := store.Row{
		"s": store.StringValue("hello"),
		"i": store.IntValue(42),
		"f": store.FloatValue(3.5),
		"t": store.TimeValue(now),
		"n": store.NullValue(),
	}
	data, err := encodeRow(row)
	if err != nil {
		t.Fatalf("encodeRow failed: %v", err)
	}
	got, err := decodeRow(data)
	if err != nil {
		t.Fatalf("decodeRow failed: %v", err)
	}
	for col, want := range row {
		gotVal, ok := got[col]
		if !ok {
			t.Fatalf("missing column %q after round trip", col)
		}
		if !gotVal.Equal(want) {
			t.Errorf("column %q = %v, want %v", col, gotVal, want)
		}
	}
}
