package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var weekCmd = LeafCommand{
	Use:   "week",
	Short: "Print the week index the timetable service considers current",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, err := newTimetableClient(cfg)
		if err != nil {
			return err
		}

		week, err := client.CurrentWeek(cmd.Context())
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), week)
		return nil
	},
}.Build()
