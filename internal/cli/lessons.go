package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"eacal/internal/lesson"
)

var lessonsCmd = LeafCommand{
	Use:       "lessons",
	Short:     "Print the parsed timetable of one week without touching the calendar",
	StrFlags:  []StringFlag{classFlag},
	IntFlags:  []IntFlag{weekFlag},
	BoolFlags: []BoolFlag{strictFlag},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Class == "" {
			return errors.New("class is not set")
		}
		client, err := newTimetableClient(cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		week, err := resolveWeek(ctx, client, cfg)
		if err != nil {
			return err
		}
		raw, err := client.FetchWeek(ctx, cfg.Class, week)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		lessons, parseErrs := newParser(cfg).Parse(raw.Days, raw.Definitions)
		for _, perr := range parseErrs {
			_, _ = fmt.Fprintf(w, "%s %v\n", Warning("skipped:"), perr)
		}
		if cfg.Strict && len(parseErrs) > 0 {
			return parseErrs[0]
		}

		_, _ = fmt.Fprintln(w, Bold(fmt.Sprintf("Week %d (%s)", week, cfg.Class)))
		printLessons(w, lessons)
		return nil
	},
}.Build()

// printLessons prints lessons grouped under a heading per day. Input is
// expected sorted by start.
func printLessons(w io.Writer, lessons []lesson.Lesson) {
	if len(lessons) == 0 {
		_, _ = fmt.Fprintln(w, Silent("no lessons"))
		return
	}

	var day string
	for _, l := range lessons {
		if d := l.Start.Format("Mon 02.01."); d != day {
			day = d
			_, _ = fmt.Fprintln(w, Info(day))
		}
		_, _ = fmt.Fprintf(w, "  %s  %-24s %s %s\n",
			Silent(l.Start.Format("15:04")+"-"+l.End.Format("15:04")),
			l.Subject,
			Primary(l.Classroom),
			Silent(l.Teacher),
		)
	}
}
