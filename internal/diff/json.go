package diff

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/taylorhickem/tablesync/internal/store"
)

// rowJSON is the wire representation of a store.Row: plain JSON scalars,
// with time.Time columns rendered as RFC3339Nano strings. The format
// carries no type tags, so decoding guesses each kind from the JSON
// primitive: a string that parses as RFC3339Nano becomes KindTime, any
// other string KindString, a whole number KindInt, any other number
// KindFloat, a bool the string "true"/"false", and null KindNull.
type rowJSON map[string]any

func rowToJSON(r store.Row) rowJSON {
	out := make(rowJSON, len(r))
	for col, v := range r {
		switch v.Kind {
		case store.KindNull:
			out[col] = nil
		case store.KindString:
			out[col] = v.Str
		case store.KindInt:
			out[col] = v.Int
		case store.KindFloat:
			out[col] = v.Flt
		case store.KindTime:
			out[col] = v.Time.Format(time.RFC3339Nano)
		}
	}
	return out
}

func rowFromJSON(r rowJSON) store.Row {
	out := make(store.Row, len(r))
	for col, raw := range r {
		switch val := raw.(type) {
		case nil:
			out[col] = store.NullValue()
		case string:
			if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
				out[col] = store.TimeValue(t)
			} else {
				out[col] = store.StringValue(val)
			}
		case float64:
			if val == float64(int64(val)) {
				out[col] = store.IntValue(int64(val))
			} else {
				out[col] = store.FloatValue(val)
			}
		case bool:
			if val {
				out[col] = store.StringValue("true")
			} else {
				out[col] = store.StringValue("false")
			}
		default:
			out[col] = store.NullValue()
		}
	}
	return out
}

func rowsToJSON(rows []store.Row) []rowJSON {
	out := make([]rowJSON, len(rows))
	for i, r := range rows {
		out[i] = rowToJSON(r)
	}
	return out
}

func rowsFromJSON(rows []rowJSON) []store.Row {
	out := make([]store.Row, len(rows))
	for i, r := range rows {
		out[i] = rowFromJSON(r)
	}
	return out
}

type sideJSON struct {
	Insert []rowJSON `json:"insert"`
	Update []rowJSON `json:"update"`
	Delete []rowJSON `json:"delete"`
}

type editSetJSON struct {
	Master sideJSON `json:"master"`
	Slave  sideJSON `json:"slave"`
}

// MarshalJSON renders e in the edits export format of spec §6.
func (e EditSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(editSetJSON{
		Master: sideJSON{
			Insert: rowsToJSON(e.Master.Insert),
			Update: rowsToJSON(e.Master.Update),
			Delete: rowsToJSON(e.Master.Delete),
		},
		Slave: sideJSON{
			Insert: rowsToJSON(e.Slave.Insert),
			Update: rowsToJSON(e.Slave.Update),
			Delete: rowsToJSON(e.Slave.Delete),
		},
	})
}

// UnmarshalJSON parses e from the edits export format of spec §6.
func (e *EditSet) UnmarshalJSON(data []byte) error {
	var raw editSetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("diff: unmarshal EditSet: %w", err)
	}
	e.Master = Side{
		Insert: rowsFromJSON(raw.Master.Insert),
		Update: rowsFromJSON(raw.Master.Update),
		Delete: rowsFromJSON(raw.Master.Delete),
	}
	e.Slave = Side{
		Insert: rowsFromJSON(raw.Slave.Insert),
		Update: rowsFromJSON(raw.Slave.Update),
		Delete: rowsFromJSON(raw.Slave.Delete),
	}
	return nil
}

// ExportTables renders a per-table map of EditSets in the format of
// spec §6's "Edits export format".
func ExportTables(edits map[string]EditSet) ([]byte, error) {
	return json.MarshalIndent(edits, "", "  ")
}
