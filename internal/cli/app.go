package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"eacal/internal/calendar"
	"eacal/internal/calendar/google"
	"eacal/internal/calendar/ics"
	"eacal/internal/config"
	appLog "eacal/internal/log"
	"eacal/internal/syncer"
	"eacal/internal/timetable"
)

var (
	classFlag  = StringFlag{Name: "class", Usage: "timetable class (overrides config)"}
	weekFlag   = IntFlag{Name: "week", Usage: "absolute week index (default: the current week)"}
	strictFlag = BoolFlag{Name: "strict", Usage: "abort on the first malformed lesson instead of skipping it"}
)

// loadConfig reads the config file named by --config, overlays the
// environment and then any command flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed(classFlag.Name) {
		cfg.Class, _ = flags.GetString(classFlag.Name)
	}
	if flags.Changed(weekFlag.Name) {
		week, _ := flags.GetInt(weekFlag.Name)
		cfg.Week = &week
	}
	if flags.Changed(strictFlag.Name) {
		cfg.Strict, _ = flags.GetBool(strictFlag.Name)
	}

	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	appLog.Debug("effective config",
		"config_path", path,
		"class", cfg.Class,
		"timezone", cfg.Timezone,
		"backend", cfg.Calendar.Backend,
		"strict", cfg.Strict,
	)
	return cfg, nil
}

func newTimetableClient(cfg *config.Config) (*timetable.GraphQLClient, error) {
	if cfg.Timetable.Endpoint == "" {
		return nil, errors.New("timetable.endpoint is not set")
	}
	timeout := time.Duration(cfg.Timetable.TimeoutSeconds) * time.Second
	return timetable.NewGraphQLClient(cfg.Timetable.Endpoint, timetable.WithTimeout(timeout)), nil
}

func newParser(cfg *config.Config) *timetable.Parser {
	p := timetable.NewParser(cfg.Location(), nil)
	p.Strict = cfg.Strict
	return p
}

func newGateway(ctx context.Context, cfg *config.Config) (calendar.Gateway, error) {
	switch cfg.Calendar.Backend {
	case config.BackendICS:
		return ics.New(cfg.Calendar.ICSPath, ics.WithLocation(cfg.Location())), nil
	case config.BackendGoogle:
		return google.NewFromCredentials(ctx, cfg.Calendar.CalendarID, cfg.Calendar.CredentialsFile, cfg.Location())
	default:
		return nil, fmt.Errorf("unknown calendar backend %q", cfg.Calendar.Backend)
	}
}

// newSyncer validates cfg and wires the timetable client, parser and
// calendar backend into a Syncer.
func newSyncer(ctx context.Context, cfg *config.Config, opts ...syncer.Option) (*syncer.Syncer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	client, err := newTimetableClient(cfg)
	if err != nil {
		return nil, err
	}
	gw, err := newGateway(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts = append([]syncer.Option{syncer.WithParser(newParser(cfg))}, opts...)
	return syncer.New(client, gw, opts...), nil
}

// runOnce syncs the configured week, or the current one if none is set.
func runOnce(ctx context.Context, s *syncer.Syncer, cfg *config.Config) (syncer.Report, error) {
	if cfg.Week != nil {
		return s.Run(ctx, cfg.Class, *cfg.Week)
	}
	return s.RunCurrent(ctx, cfg.Class)
}

// resolveWeek returns the configured week, asking the service for the
// current one if none is set.
func resolveWeek(ctx context.Context, client timetable.Client, cfg *config.Config) (int, error) {
	if cfg.Week != nil {
		return *cfg.Week, nil
	}
	return client.CurrentWeek(ctx)
}
