package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"eacal/internal/syncer"
)

var syncCmd = LeafCommand{
	Use:   "sync",
	Short: "Mirror one timetable week into the calendar",
	Long: `Fetches the class timetable for one week, compares it with the calendar
over the same days and applies the difference: stale lessons are deleted,
missing ones added. Running it again without timetable changes does nothing.`,
	StrFlags:  []StringFlag{classFlag},
	IntFlags:  []IntFlag{weekFlag},
	BoolFlags: []BoolFlag{strictFlag, {Name: "dry-run", Usage: "print the planned changes without applying them"}},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		w := cmd.OutOrStdout()
		s, err := newSyncer(cmd.Context(), cfg,
			syncer.WithDryRun(dryRun),
			syncer.WithProgress(printMutation(w)),
		)
		if err != nil {
			return err
		}

		report, err := runOnce(cmd.Context(), s, cfg)
		printParseErrors(w, report)
		if err != nil {
			return err
		}
		printSummary(w, report)

		if n := len(report.Failures); n > 0 {
			return fmt.Errorf("%d calendar change(s) failed", n)
		}
		return nil
	},
}.Build()

func printMutation(w io.Writer) syncer.ProgressFunc {
	return func(m syncer.Mutation) {
		line := m.String()
		switch {
		case m.Err != nil:
			line = Error(line)
		case m.DryRun:
			line = Info(line)
		case m.Action == syncer.ActionDelete:
			line = Warning(line)
		default:
			line = Primary(line)
		}
		_, _ = fmt.Fprintln(w, line)
	}
}

func printParseErrors(w io.Writer, r syncer.Report) {
	for _, msg := range r.ParseErrors {
		_, _ = fmt.Fprintf(w, "%s %s\n", Warning("skipped:"), msg)
	}
}

func printSummary(w io.Writer, r syncer.Report) {
	verb := "synced"
	if r.DryRun {
		verb = "planned"
	}
	_, _ = fmt.Fprintf(w, "%s %s\n",
		Bold(fmt.Sprintf("Week %d (%s) %s:", r.Week, r.Class, verb)),
		Silent(fmt.Sprintf("%d added, %d deleted, %d unchanged, %d failed",
			len(r.Added), len(r.Deleted), r.Unchanged, len(r.Failures))),
	)
}
