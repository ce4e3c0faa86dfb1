package diff

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/taylorhickem/tablesync/internal/store"
)

func TestEditSet_MarshalJSON_Shape(t *testing.T) {
	edits := EditSet{
		Master: Side{Insert: []store.Row{{"id": store.IntValue(1)}}},
		Slave:  Side{Delete: []store.Row{{"id": store.IntValue(2)}}},
	}
	data, err := json.Marshal(edits)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal into map failed: %v", err)
	}
	if _, ok := raw["master"]; !ok {
		t.Errorf("expected a top-level \"master\" key, got %s", data)
	}
	if _, ok := raw["slave"]; !ok {
		t.Errorf("expected a top-level \"slave\" key, got %s", data)
	}
}

func TestEditSet_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	orig := EditSet{
		Master: Side{
			Insert: []store.Row{{"id": store.IntValue(1), "v": store.StringValue("a")}},
			Update: []store.Row{{"id": store.IntValue(2), "f": store.FloatValue(1.5)}},
		},
		Slave: Side{
			Delete: []store.Row{{"id": store.IntValue(3), "t": store.TimeValue(now)}},
		},
	}
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded EditSet
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if len(decoded.Master.Insert) != 1 || !decoded.Master.Insert[0]["id"].Equal(store.IntValue(1)) {
		t.Errorf("master.insert round-trip mismatch: %+v", decoded.Master.Insert)
	}
	if len(decoded.Master.Update) != 1 || !decoded.Master.Update[0]["f"].Equal(store.FloatValue(1.5)) {
		t.Errorf("master.update round-trip mismatch: %+v", decoded.Master.Update)
	}
	if len(decoded.Slave.Delete) != 1 || !decoded.Slave.Delete[0]["t"].Equal(store.TimeValue(now)) {
		t.Errorf("slave.delete round-trip mismatch: %+v", decoded.Slave.Delete)
	}
}

// A float column carrying a whole number decodes back as an int, not a
// float, for values present in the source row as store.KindFloat: the export
// format has no type tag, so rowFromJSON's bare JSON-number heuristic can't
// distinguish "2" from "2.0" and prefers the int reading. This round trip
// documents that known lossiness rather than asserting the impossible.
func TestEditSet_RoundTrip_WholeNumberFloatBecomesInt(t *testing.T) {
	orig := EditSet{Master: Side{Insert: []store.Row{{"id": store.FloatValue(2)}}}}
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded EditSet
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	got := decoded.Master.Insert[0]["id"]
	if got.Kind != store.KindInt || got.Int != 2 {
		t.Fatalf("expected the lossy int reading for a whole-number float, got %+v", got)
	}
}

func TestEditSet_UnmarshalJSON_NullBecomesNullValue(t *testing.T) {
	data := []byte(`{"master":{"insert":[{"id":null}],"update":[],"delete":[]},"slave":{"insert":[],"update":[],"delete":[]}}`)
	var decoded EditSet
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !decoded.Master.Insert[0]["id"].IsNull() {
		t.Fatalf("expected a null JSON value to decode to NullValue, got %+v", decoded.Master.Insert[0]["id"])
	}
}

func TestEditSet_UnmarshalJSON_BoolBecomesStringValue(t *testing.T) {
	data := []byte(`{"master":{"insert":[{"active":true}],"update":[],"delete":[]},"slave":{"insert":[],"update":[],"delete":[]}}`)
	var decoded EditSet
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	got := decoded.Master.Insert[0]["active"]
	if got.Kind != store.KindString || got.Str != "true" {
		t.Fatalf("expected bool true to decode to StringValue(\"true\"), got %+v", got)
	}
}

func TestExportTables_IsIndentedJSON(t *testing.T) {
	edits := map[string]EditSet{
		"widgets": {Master: Side{Insert: []store.Row{{"id": store.IntValue(1)}}}},
	}
	data, err := ExportTables(edits)
	if err != nil {
		t.Fatalf("ExportTables failed: %v", err)
	}
	if !strings.Contains(string(data), "\n  ") {
		t.Errorf("expected indented JSON output, got %s", data)
	}
	var decoded map[string]EditSet
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode of exported JSON failed: %v", err)
	}
	if _, ok := decoded["widgets"]; !ok {
		t.Fatalf("expected a \"widgets\" entry, got %+v", decoded)
	}
}
