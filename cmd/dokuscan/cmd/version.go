package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dokuscan/dokuscan/internal/version"
)

// versionCmd prints build information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		v, commit, date := version.Info()
		fmt.Fprintf(cmd.OutOrStdout(), "dokuscan %s\n", v)
		fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "Built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
