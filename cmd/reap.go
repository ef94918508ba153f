package cmd

import (
	"github.com/spf13/cobra"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Kill engine processes left behind by crashed sessions",
	Long: `Kill every running process whose executable matches engine.executable.
Useful after a crash left engine processes holding connections open.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			return rt.syncer.KillAllSessions(rt.ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(reapCmd)
}
