package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taylorhickem/tablesync/internal/diff"
	"github.com/taylorhickem/tablesync/internal/syncer"
	"github.com/taylorhickem/tablesync/internal/syncspec"
)

var (
	updateDryRun         bool
	updateExportPath     string
	updateKeepConnection bool
)

var updateCmd = &cobra.Command{
	Use:   "update [path]",
	Short: "Diff and sync configured tables between master and slave",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runUpdate,
}

func init() {
	updateCmd.Flags().BoolVar(&updateDryRun, "dry-run", false, "compute edits without applying them")
	updateCmd.Flags().StringVar(&updateExportPath, "export", "", "write the edits-export JSON to this path")
	updateCmd.Flags().BoolVar(&updateKeepConnection, "keep-connection", false, "leave endpoint connections open after sync")
}

// statusReport is the single-line status JSON printed on normal
// completion, per the CLI's external interface contract.
type statusReport struct {
	Status string `json:"status"`
	Tables int    `json:"tables"`
	Error  string `json:"error,omitempty"`
}

func runUpdate(cmd *cobra.Command, args []string) error {
	path := defaultConfigPath
	if len(args) == 1 {
		path = args[0]
	}

	spec, err := syncspec.LoadStrict(path)
	if err != nil {
		return err
	}

	s := syncer.New(spec, stores(), syncer.WithLogger(newLogger()))

	ctx := context.Background()
	syncErr := s.Sync(ctx, !updateDryRun, updateKeepConnection)

	if updateExportPath != "" {
		if err := writeExport(s, updateExportPath); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: export failed: %v\n", err)
		}
	}

	report := statusReport{Status: s.Status().String(), Tables: len(spec.Tables)}
	if syncErr != nil {
		report.Error = syncErr.Error()
	}
	data, _ := json.Marshal(report)
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	if syncErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", syncErr)
		os.Exit(1)
	}

	switch s.Status() {
	case syncer.Synced:
		return nil
	case syncer.PendingEdits:
		os.Exit(2)
	default:
		os.Exit(1)
	}
	return nil
}

func writeExport(s *syncer.Syncer, path string) error {
	edits := s.ExportAll()
	data, err := diff.ExportTables(edits)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
