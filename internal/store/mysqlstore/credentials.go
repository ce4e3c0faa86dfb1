package mysqlstore

import (
	"encoding/json"
	"fmt"
	"os"
)

// Credentials mirrors the JSON document the original system's MySQL
// credentials loader (sqlgsheet/mysql.py) read from a file path kept out
// of the sync configuration — so a database password never needs to sit
// next to the table list.
type Credentials struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// CredentialsFromFile loads Credentials from a JSON file and returns them
// as endpoint config ready to merge into a sync configuration's mysql
// endpoint entry (under the keys Store.Connect understands).
func CredentialsFromFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: read credentials %s: %w", path, err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("mysqlstore: parse credentials %s: %w", path, err)
	}
	cfg := map[string]any{
		"host":     creds.Host,
		"database": creds.Database,
		"user":     creds.Username,
		"password": creds.Password,
	}
	if creds.Port != "" {
		cfg["port"] = creds.Port
	}
	return cfg, nil
}
