package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Calendar backends.
const (
	BackendGoogle = "google"
	BackendICS    = "ics"
)

const (
	defaultListen         = "127.0.0.1:8080"
	defaultTimezone       = "Europe/Ljubljana"
	defaultRefreshCron    = "0 6 * * *"
	defaultTimeoutSeconds = 15
	defaultICSPath        = "./var/lessons.ics"
	defaultLogLevel       = "info"
)

// TimetableConfig describes the remote timetable service.
type TimetableConfig struct {
	// Endpoint is the GraphQL endpoint URL.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// TimeoutSeconds bounds each request to the service.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// CalendarConfig selects and configures the calendar store.
type CalendarConfig struct {
	// Backend is "google" or "ics".
	Backend string `yaml:"backend" json:"backend"`
	// CalendarID identifies the Google calendar.
	CalendarID string `yaml:"calendar_id" json:"calendar_id"`
	// CredentialsFile is the Google service account key file.
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	// ICSPath is the iCalendar file used by the ics backend.
	ICSPath string `yaml:"ics_path" json:"ics_path"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Class is the timetable class to mirror (e.g. "R4C").
	Class string `yaml:"class" json:"class"`

	// Week is an absolute week index. Nil syncs the week the service
	// declares current.
	Week *int `yaml:"week,omitempty" json:"week,omitempty"`

	// Timezone is the IANA timezone lessons are placed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Strict aborts a sync on the first malformed lesson instead of
	// skipping it.
	Strict bool `yaml:"strict" json:"strict"`

	Timetable TimetableConfig `yaml:"timetable" json:"timetable"`
	Calendar  CalendarConfig  `yaml:"calendar" json:"calendar"`

	// RefreshCron is a cron-style schedule (e.g. "0 6 * * *") for watch mode.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Listen is the HTTP listen address of the status server in watch mode.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone: defaultTimezone,
		Timetable: TimetableConfig{
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		Calendar: CalendarConfig{
			Backend: BackendGoogle,
			ICSPath: defaultICSPath,
		},
		RefreshCron: defaultRefreshCron,
		Listen:      defaultListen,
		LogLevel:    defaultLogLevel,
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Timetable.TimeoutSeconds <= 0 {
		c.Timetable.TimeoutSeconds = defaultTimeoutSeconds
	}
	switch c.Calendar.Backend {
	case BackendGoogle, BackendICS:
	default:
		c.Calendar.Backend = BackendGoogle
	}
	if c.Calendar.ICSPath == "" {
		c.Calendar.ICSPath = defaultICSPath
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// Validate reports settings a sync cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Class == "" {
		errs = append(errs, errors.New("class is not set"))
	}
	if c.Timetable.Endpoint == "" {
		errs = append(errs, errors.New("timetable.endpoint is not set"))
	}
	if c.Week != nil && *c.Week < 0 {
		errs = append(errs, fmt.Errorf("week %d is negative", *c.Week))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	switch c.Calendar.Backend {
	case BackendGoogle:
		if c.Calendar.CalendarID == "" {
			errs = append(errs, errors.New("calendar.calendar_id is not set"))
		}
		if c.Calendar.CredentialsFile == "" {
			errs = append(errs, errors.New("calendar.credentials_file is not set"))
		}
	case BackendICS:
		if c.Calendar.ICSPath == "" {
			errs = append(errs, errors.New("calendar.ics_path is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown calendar backend %q", c.Calendar.Backend))
	}
	return errors.Join(errs...)
}

// Location returns the configured timezone, or time.Local if it does not load.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Environment variables that override file values.
const (
	EnvClass        = "EACAL_CLASS"
	EnvWeek         = "EACAL_WEEK"
	EnvTimetableURL = "EACAL_TIMETABLE_URL"
	EnvCalendarID   = "CALENDAR_ID"
	EnvCredentials  = "EACAL_CREDENTIALS"
	EnvICSPath      = "EACAL_ICS_PATH"
)

// ApplyEnv overlays environment variables onto c. The given env files
// (".env" in the working directory if none) are loaded first when they
// exist; variables already set in the process environment win over them.
func (c *Config) ApplyEnv(envFiles ...string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}

	if v := os.Getenv(EnvClass); v != "" {
		c.Class = v
	}
	if v := os.Getenv(EnvWeek); v != "" {
		week, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWeek, err)
		}
		c.Week = &week
	}
	if v := os.Getenv(EnvTimetableURL); v != "" {
		c.Timetable.Endpoint = v
	}
	if v := os.Getenv(EnvCalendarID); v != "" {
		c.Calendar.CalendarID = v
	}
	if v := os.Getenv(EnvCredentials); v != "" {
		c.Calendar.CredentialsFile = v
	}
	if v := os.Getenv(EnvICSPath); v != "" {
		c.Calendar.ICSPath = v
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to path atomically (temp file +
// rename) with 0600 permissions, creating the parent directory (0700).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eacal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
