package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taylorhickem/tablesync/internal/syncspec"
)

var configCmd = &cobra.Command{
	Use:   "config <path>",
	Short: "Load and validate a sync configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := syncspec.LoadStrict(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d table(s) configured (master=%s, slave=%s)\n",
			len(spec.Tables), spec.Master.DBType, spec.Slave.DBType)
		return nil
	},
}
