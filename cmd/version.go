package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		color.New(color.FgCyan, color.Bold).Printf("domain-manager %s\n", buildVersion)
		color.New(color.Faint).Printf("commit: %s\n", buildCommit)
		color.New(color.Faint).Printf("built:  %s\n", buildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
