package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/petrijr/uiflow/internal/pages"
	"github.com/petrijr/uiflow/pkg/api"
)

// LogLevel specifies the logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat specifies the log output format.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// ConsoleConfig says which console and app the flows target.
type ConsoleConfig struct {
	BaseURL string `toml:"base_url"`
	App     string `toml:"app_name"`
}

// BrowserConfig holds browser launch settings.
type BrowserConfig struct {
	Headless    bool   `toml:"headless"`
	ExecPath    string `toml:"exec_path"`
	UserDataDir string `toml:"user_data_dir"`
	Width       int    `toml:"window_width"`
	Height      int    `toml:"window_height"`

	// ActionsPerSecond paces clicks, fills and key presses. Zero disables
	// pacing.
	ActionsPerSecond float64 `toml:"actions_per_second"`
	Burst            int     `toml:"burst"`
}

// RetryConfig is the retry policy of page operations.
type RetryConfig struct {
	MaxAttempts    int           `toml:"max_attempts"`
	Delay          time.Duration `toml:"delay"`
	AttemptTimeout time.Duration `toml:"attempt_timeout"`
}

// StabilizeConfig tunes toggle stabilization.
type StabilizeConfig struct {
	RequiredStableReadings int           `toml:"required_stable_readings"`
	PollInterval           time.Duration `toml:"poll_interval"`
	MaxPolls               int           `toml:"max_polls"`
}

// RaceConfig bounds outcome races.
type RaceConfig struct {
	Timeout time.Duration `toml:"timeout"`
}

// TimingConfig holds waits and settle delays.
type TimingConfig struct {
	ElementTimeout     time.Duration `toml:"element_timeout"`
	UninstallSettle    time.Duration `toml:"uninstall_settle"`
	InstallVerifyDelay time.Duration `toml:"install_verify_delay"`
	ScreenSettle       time.Duration `toml:"screen_settle"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  LogLevel  `toml:"level"`
	Format LogFormat `toml:"format"`
	File   string    `toml:"file"`
}

// JournalConfig locates the SQLite run journal.
type JournalConfig struct {
	Path string `toml:"path"`
}

// MetricsConfig controls the Prometheus textfile export. An empty Textfile
// disables it.
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// WorkerConfig controls how queued runs are retried.
type WorkerConfig struct {
	// MaxAttempts is how many times a queued run is tried; failed runs are
	// resumed at the failed step.
	MaxAttempts int           `toml:"max_attempts"`
	Backoff     time.Duration `toml:"backoff"`
}

// Config is the main configuration struct for uiflow.
type Config struct {
	Console   ConsoleConfig   `toml:"console"`
	Browser   BrowserConfig   `toml:"browser"`
	Retry     RetryConfig     `toml:"retry"`
	Stabilize StabilizeConfig `toml:"stabilize"`
	Race      RaceConfig      `toml:"race"`
	Timing    TimingConfig    `toml:"timing"`
	Logging   LoggingConfig   `toml:"logging"`
	Journal   JournalConfig   `toml:"journal"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Worker    WorkerConfig    `toml:"worker"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Console: ConsoleConfig{
			BaseURL: "https://falcon.crowdstrike.com",
			App:     "foundry-sample-insider-threat",
		},
		Browser: BrowserConfig{
			Headless:         true,
			Width:            1920,
			Height:           1080,
			ActionsPerSecond: 5,
			Burst:            3,
		},
		Retry: RetryConfig{
			MaxAttempts: api.DefaultMaxAttempts,
			Delay:       api.DefaultRetryDelay,
		},
		Stabilize: StabilizeConfig{
			RequiredStableReadings: 3,
			PollInterval:           500 * time.Millisecond,
			MaxPolls:               5,
		},
		Race: RaceConfig{
			Timeout: 15 * time.Second,
		},
		Timing: TimingConfig{
			ElementTimeout:     10 * time.Second,
			UninstallSettle:    10 * time.Second,
			InstallVerifyDelay: 2 * time.Second,
			ScreenSettle:       2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
		},
		Journal: JournalConfig{
			Path: ".uiflow/journal.db",
		},
		Worker: WorkerConfig{
			MaxAttempts: 2,
			Backoff:     30 * time.Second,
		},
	}
}

// Load loads configuration from file, merging with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if no config file
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parsing config: unknown key %s", undecoded[0])
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Console.BaseURL == "" {
		return fmt.Errorf("console.base_url is required")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.Delay < 0 || c.Retry.AttemptTimeout < 0 {
		return fmt.Errorf("retry durations must not be negative")
	}
	if c.Stabilize.RequiredStableReadings < 1 {
		return fmt.Errorf("stabilize.required_stable_readings must be at least 1")
	}
	if c.Stabilize.PollInterval <= 0 {
		return fmt.Errorf("stabilize.poll_interval must be positive")
	}
	if c.Race.Timeout <= 0 {
		return fmt.Errorf("race.timeout must be positive")
	}
	if c.Browser.ActionsPerSecond < 0 {
		return fmt.Errorf("browser.actions_per_second must not be negative")
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		return fmt.Errorf("browser window size must be positive")
	}
	switch c.Logging.Level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case LogFormatJSON, LogFormatText:
	default:
		return fmt.Errorf("logging.format %q is not one of json, text", c.Logging.Format)
	}
	if c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required")
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("worker.max_attempts must be at least 1")
	}
	if c.Worker.Backoff < 0 {
		return fmt.Errorf("worker.backoff must not be negative")
	}
	return nil
}

// RetryPolicy returns the retry policy of page operations.
func (c *Config) RetryPolicy() api.RetryPolicy {
	return api.RetryPolicy{
		MaxAttempts:    c.Retry.MaxAttempts,
		Delay:          c.Retry.Delay,
		AttemptTimeout: c.Retry.AttemptTimeout,
	}.Normalize()
}

// PageSettings returns the settings page flows run with.
func (c *Config) PageSettings(logger *slog.Logger) pages.Settings {
	return pages.Settings{
		BaseURL: c.Console.BaseURL,
		Retry:   c.RetryPolicy(),
		Toggle: api.StabilizeOptions{
			RequiredStableReadings: c.Stabilize.RequiredStableReadings,
			PollInterval:           c.Stabilize.PollInterval,
			MaxPolls:               c.Stabilize.MaxPolls,
		},
		SaveTimeout:        c.Race.Timeout,
		Timeout:            c.Timing.ElementTimeout,
		InstallVerifyDelay: c.Timing.InstallVerifyDelay,
		UninstallSettle:    c.Timing.UninstallSettle,
		ScreenSettle:       c.Timing.ScreenSettle,
		Logger:             logger,
	}
}
