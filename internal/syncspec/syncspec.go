// Package syncspec loads and represents a sync configuration: the two
// endpoints and the ordered set of tables in scope (spec §4.2). Unlike
// the teacher's internal/syncconfig, which keeps package-level config
// state cached under the user's home directory, SyncSpec is an explicit
// value built once and passed into a Syncer — no process-wide singleton
// (spec §9, "Process-wide state in the original").
package syncspec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrConfiguration is returned for any malformed sync configuration:
// missing file, unparseable document, unknown db_type, or a table spec
// missing key/last_modified (spec §7).
var ErrConfiguration = errors.New("syncspec: configuration error")

// EndpointSpec describes one side of a sync: which backend kind to use
// and its opaque connection parameters (spec §3).
type EndpointSpec struct {
	DBType string         `json:"db_type"`
	Config map[string]any `json:"-"`
}

// TableSpec names a table in scope and its key/last-modified columns
// (spec §3).
type TableSpec struct {
	Name         string
	KeyColumn    string
	LastModified string
}

// SyncSpec is the full declarative sync configuration (spec §3): two
// endpoints and an ordered list of TableSpecs. Table order is the order
// given in the configuration's "tables" object and defines sync order
// (spec §4.2).
type SyncSpec struct {
	Master EndpointSpec
	Slave  EndpointSpec
	Tables []TableSpec
}

// rawTableEntry mirrors one value of the configuration's "tables" map.
type rawTableEntry struct {
	Key          string `json:"key"`
	LastModified string `json:"last_modified"`
}

var validDBTypes = map[string]bool{
	"sqlite":  true,
	"mysql":   true,
	"generic": true,
}

// Load reads a sync configuration document from path. An absent or
// unparseable file yields the empty SyncSpec (zero tables) rather than
// an error, matching spec §4.2: "the Syncer treats this as a no-op sync."
func Load(path string) (SyncSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return SyncSpec{}, nil
		}
		return SyncSpec{}, nil
	}
	spec, err := Parse(data)
	if err != nil {
		return SyncSpec{}, nil
	}
	return spec, nil
}

// LoadStrict is like Load but returns ErrConfiguration instead of
// silently degrading to an empty SyncSpec. The CLI's `config` verb uses
// LoadStrict so a malformed file is reported, per spec §6 ("exit 0 on
// success, non-zero with a one-line diagnostic on failure").
func LoadStrict(path string) (SyncSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SyncSpec{}, fmt.Errorf("%w: read %s: %v", ErrConfiguration, path, err)
	}
	return Parse(data)
}

// Parse decodes a sync configuration document, preserving the "tables"
// object's key iteration order (spec §4.2) by walking the raw JSON token
// stream rather than decoding straight into a Go map, since Go maps do
// not preserve insertion order.
func Parse(data []byte) (SyncSpec, error) {
	envelope := struct {
		Master json.RawMessage `json:"master"`
		Slave  json.RawMessage `json:"slave"`
		Tables json.RawMessage `json:"tables"`
	}{}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return SyncSpec{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	var master, slave EndpointSpec
	if len(envelope.Master) > 0 {
		var err error
		master, err = decodeEndpoint(envelope.Master)
		if err != nil {
			return SyncSpec{}, fmt.Errorf("master: %w", err)
		}
	}
	if len(envelope.Slave) > 0 {
		var err error
		slave, err = decodeEndpoint(envelope.Slave)
		if err != nil {
			return SyncSpec{}, fmt.Errorf("slave: %w", err)
		}
	}

	tables, err := decodeTablesOrdered(envelope.Tables)
	if err != nil {
		return SyncSpec{}, err
	}

	return SyncSpec{Master: master, Slave: slave, Tables: tables}, nil
}

// decodeEndpoint decodes one endpoint object, validating db_type and
// preserving every other field as opaque backend config.
func decodeEndpoint(raw json.RawMessage) (EndpointSpec, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return EndpointSpec{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	dbType, _ := fields["db_type"].(string)
	if !validDBTypes[dbType] {
		return EndpointSpec{}, fmt.Errorf("%w: unknown db_type %q", ErrConfiguration, dbType)
	}
	delete(fields, "db_type")
	return EndpointSpec{DBType: dbType, Config: fields}, nil
}

// decodeTablesOrdered walks the raw "tables" object token-by-token to
// recover key order, then validates each entry has both key and
// last_modified set.
func decodeTablesOrdered(raw json.RawMessage) ([]TableSpec, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: tables: %v", ErrConfiguration, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: tables must be an object", ErrConfiguration)
	}

	var tables []TableSpec
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: tables: %v", ErrConfiguration, err)
		}
		tableName, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: tables: non-string key", ErrConfiguration)
		}

		var entry rawTableEntry
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("%w: table %q: %v", ErrConfiguration, tableName, err)
		}
		if entry.Key == "" {
			return nil, fmt.Errorf("%w: table %q missing key column", ErrConfiguration, tableName)
		}
		if entry.LastModified == "" {
			return nil, fmt.Errorf("%w: table %q missing last_modified column", ErrConfiguration, tableName)
		}
		tables = append(tables, TableSpec{
			Name:         tableName,
			KeyColumn:    entry.Key,
			LastModified: entry.LastModified,
		})
	}
	return tables, nil
}
