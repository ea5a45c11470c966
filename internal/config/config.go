package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// LocalConfigName is the project-local config file searched for upward from
// the working directory
const LocalConfigName = ".label-bulk.toml"

// Config holds all application configuration
type Config struct {
	Tracker       TrackerConfig       `toml:"tracker"`
	Limits        LimitsConfig        `toml:"limits"`
	Paths         PathsConfig         `toml:"paths"`
	Progress      ProgressConfig      `toml:"progress"`
	Logging       LoggingConfig       `toml:"logging"`
	Validation    ValidationConfig    `toml:"validation"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// TrackerConfig holds the issue tracker connection settings
type TrackerConfig struct {
	BaseURL          string   `toml:"base_url"`
	Email            string   `toml:"email"`
	APIToken         string   `toml:"api_token"`
	BearerToken      string   `toml:"bearer_token"`
	APIVersion       string   `toml:"api_version"`
	Timeout          Duration `toml:"timeout"`
	VerifyTLS        bool     `toml:"verify_tls"`
	PageSize         int      `toml:"page_size"`
	CheckEditability bool     `toml:"check_editability"`
}

// LimitsConfig controls pacing and retries of mutation calls
type LimitsConfig struct {
	MinDelay    Duration `toml:"min_delay"`
	MaxAttempts int      `toml:"max_attempts"`
	BackoffBase Duration `toml:"backoff_base"`
	BackoffMax  Duration `toml:"backoff_max"`
	// MaxRetryAfter bounds how long a server Retry-After is honoured
	MaxRetryAfter Duration `toml:"max_retry_after"`
	Concurrency   int      `toml:"concurrency"`
}

// PathsConfig holds file locations
type PathsConfig struct {
	InputFile string `toml:"input_file"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
}

// ProgressConfig selects where resumable progress is kept
type ProgressConfig struct {
	Backend      string   `toml:"backend"`
	DatabasePath string   `toml:"database_path"`
	RetryDelay   Duration `toml:"retry_delay"`
}

// LoggingConfig holds log settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ValidationConfig holds input validation settings
type ValidationConfig struct {
	LabelSpaces string `toml:"label_spaces"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// Progress backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Duration is a time.Duration that reads from TOML strings like "1s"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Tracker: TrackerConfig{
			BaseURL:    "",
			APIVersion: "3",
			Timeout:    Duration{30 * time.Second},
			VerifyTLS:  true,
			PageSize:   100,
		},
		Limits: LimitsConfig{
			MinDelay:      Duration{time.Second},
			MaxAttempts:   3,
			BackoffBase:   Duration{time.Second},
			BackoffMax:    Duration{30 * time.Second},
			MaxRetryAfter: Duration{5 * time.Minute},
			Concurrency:   1,
		},
		Paths: PathsConfig{
			InputFile: "jql_queries.json",
			OutputDir: "output",
			LogDir:    "logs",
		},
		Progress: ProgressConfig{
			Backend:      BackendFile,
			DatabasePath: filepath.Join(home, ".label-bulk", "progress.db"),
			RetryDelay:   Duration{500 * time.Millisecond},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Validation: ValidationConfig{
			LabelSpaces: "reject",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.Paths.InputFile = ExpandPath(cfg.Paths.InputFile)
	cfg.Paths.OutputDir = ExpandPath(cfg.Paths.OutputDir)
	cfg.Paths.LogDir = ExpandPath(cfg.Paths.LogDir)
	cfg.Progress.DatabasePath = ExpandPath(cfg.Progress.DatabasePath)

	return cfg, nil
}

// LoadWithLocalFallback loads the explicit path if given, else a local
// config found upward from the working directory, else the default path
func LoadWithLocalFallback(explicit string) (*Config, error) {
	if explicit != "" {
		return Load(explicit)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}

// FindLocalConfig walks up from the working directory looking for
// LocalConfigName. Returns "" if none is found.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ApplyEnv overrides settings from environment variables. MAX_RETRIES counts
// retries, so it maps to one less than MaxAttempts.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("JIRA_BASE_URL", &c.Tracker.BaseURL)
	str("JIRA_EMAIL", &c.Tracker.Email)
	str("JIRA_API_TOKEN", &c.Tracker.APIToken)
	str("JIRA_BEARER_TOKEN", &c.Tracker.BearerToken)
	str("API_VERSION", &c.Tracker.APIVersion)
	str("DEFAULT_INPUT_FILE", &c.Paths.InputFile)
	str("OUTPUT_DIR", &c.Paths.OutputDir)
	str("LOG_DIR", &c.Paths.LogDir)

	if v := getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("REQUEST_TIMEOUT: %w", err)
		}
		c.Tracker.Timeout = Duration{d}
	}
	if v := getenv("RATE_LIMIT_PAUSE"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_PAUSE: %w", err)
		}
		c.Limits.MinDelay = Duration{d}
	}
	// MAX_RETRIES counts retries, max_attempts counts calls
	if v := getenv("MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_RETRIES: %w", err)
		}
		c.Limits.MaxAttempts = n + 1
	}
	if v := getenv("MAX_RESULTS_PER_PAGE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_RESULTS_PER_PAGE: %w", err)
		}
		c.Tracker.PageSize = n
	}
	if v := getenv("VERIFY_SSL"); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "t":
			c.Tracker.VerifyTLS = true
		default:
			c.Tracker.VerifyTLS = false
		}
	}
	return nil
}

// parseSeconds accepts either a Go duration ("1500ms") or a number of
// seconds ("1.5")
func parseSeconds(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}

// Validate checks the settings needed to talk to the tracker
func (c *Config) Validate() error {
	if c.Tracker.BaseURL == "" {
		return fmt.Errorf("tracker.base_url is required")
	}
	if c.Tracker.BearerToken == "" && (c.Tracker.Email == "" || c.Tracker.APIToken == "") {
		return fmt.Errorf("tracker credentials required: set bearer_token or email and api_token")
	}
	if c.Tracker.PageSize <= 0 {
		return fmt.Errorf("tracker.page_size must be positive")
	}
	if c.Limits.Concurrency <= 0 {
		return fmt.Errorf("limits.concurrency must be positive")
	}
	if c.Limits.MaxAttempts < 1 {
		return fmt.Errorf("limits.max_attempts must be at least 1")
	}
	if c.Limits.MaxRetryAfter.Duration <= 0 {
		return fmt.Errorf("limits.max_retry_after must be positive")
	}
	switch c.Progress.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown progress backend %q", c.Progress.Backend)
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "label-bulk", "config.toml")
}
