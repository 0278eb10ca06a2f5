package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var flagConfigFile string

var rootCmd = &cobra.Command{
	Use:   "recurring-donations",
	Short: "Recurring pledge scheduling service",
	Long:  "Schedules recurring donation pledges, records their executions and issues donation receipt numbers.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagConfigFile != "" {
			_ = os.Setenv("CONFIG_FILE", flagConfigFile)
		}
	},
	SilenceUsage: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfigFile, "config", "c", "", "YAML config file (overrides CONFIG_FILE)")
}
