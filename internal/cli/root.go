// Package cli implements statusctl, the operator tool for the access status
// store.
package cli

import (
	"github.com/spf13/cobra"
)

// RootCmd builds the statusctl command tree.
func RootCmd() *cobra.Command {
	conn := &StoreConnection{}

	rootCmd := &cobra.Command{
		Use:   "statusctl",
		Short: "Inspect and maintain access point status history",
		Long: `statusctl works directly against the status store used by the API server.
It can create the schema, dry-run the mail extractor, pair access points with
work orders, and show current status and incident history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	conn.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(MigrateCmd(conn))
	rootCmd.AddCommand(ExtractCmd(conn))
	rootCmd.AddCommand(AccessPointCmd(conn))
	rootCmd.AddCommand(LinkCmd(conn))
	rootCmd.AddCommand(StatusCmd(conn))
	rootCmd.AddCommand(HistoryCmd(conn))
	return rootCmd
}
