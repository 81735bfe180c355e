package cli

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "eacal.yaml"

var rootCmd = &cobra.Command{
	Use:           "eacal",
	Short:         "Mirror a class timetable into a calendar",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().String("config", defaultConfigPath, "path to the YAML config file (created with defaults if missing)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(weekCmd)
	rootCmd.AddCommand(lessonsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

func Execute() error {
	return rootCmd.Execute()
}
