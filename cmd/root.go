// Package cmd implements the tablesync CLI using cobra.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taylorhickem/tablesync/internal/store"
	"github.com/taylorhickem/tablesync/internal/store/kvstore"
	"github.com/taylorhickem/tablesync/internal/store/mysqlstore"
	"github.com/taylorhickem/tablesync/internal/store/sqlitestore"
)

// defaultConfigPath is used by `update` when no path argument is given.
const defaultConfigPath = "tablesync.json"

var versionStr string

// SetVersion sets the version string reported by --version.
func SetVersion(v string) {
	versionStr = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:           "tablesync",
	Short:         "Two-endpoint master/slave table synchronizer",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// stores returns the db_type -> Store registry the Syncer is assembled
// with. New backends are added here, not threaded through every call
// site, mirroring how the teacher CLI wires its single internal/db
// connection once at the root.
func stores() map[string]store.Store {
	return map[string]store.Store{
		"sqlite":  sqlitestore.New(),
		"mysql":   mysqlstore.New(),
		"generic": kvstore.New(),
	}
}

// newLogger builds the slog.Logger the Syncer runs with, JSON by default
// and text opt-in, matching the teacher's cmd/td-sync/main.go handler
// selection (its cfg.LogFormat == "text" switch).
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("TABLESYNC_DEBUG") != "" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("TABLESYNC_LOG_FORMAT")) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(updateCmd)
}
