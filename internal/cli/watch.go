package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"eacal/internal/config"
	appLog "eacal/internal/log"
	"eacal/internal/scheduler"
	"eacal/internal/web"
)

var watchCmd = LeafCommand{
	Use:   "watch",
	Short: "Sync on the configured schedule and serve status over HTTP",
	StrFlags: []StringFlag{
		classFlag,
		{Name: "listen", Usage: "HTTP listen address (overrides config)"},
	},
	BoolFlags: []BoolFlag{
		strictFlag,
		{Name: "now", Usage: "run one sync immediately on startup"},
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("listen") {
			cfg.Listen, _ = cmd.Flags().GetString("listen")
		}
		runNow, _ := cmd.Flags().GetBool("now")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runWatch(ctx, cfg, runNow)
	},
}.Build()

// runWatch serves until ctx is canceled or the scheduler or HTTP server
// fail.
func runWatch(ctx context.Context, cfg *config.Config, runNow bool) error {
	s, err := newSyncer(ctx, cfg)
	if err != nil {
		return err
	}

	var srv *web.Server
	sched, err := scheduler.New(cfg.RefreshCron, cfg.Location(), func(ctx context.Context) {
		report, _ := runOnce(ctx, s, cfg)
		srv.Record(report)
	})
	if err != nil {
		return err
	}
	srv = web.NewServer(cfg, sched)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- sched.Start(ctx) }()
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	if runNow {
		go func() {
			if err := sched.Trigger(ctx); errors.Is(err, scheduler.ErrBusy) {
				appLog.Warn("startup sync skipped, a run is already in progress")
			}
		}()
	}

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	appLog.Info("eacal exiting")
	return firstErr
}

var _ web.Runner = (*scheduler.Scheduler)(nil)
