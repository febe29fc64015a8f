package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	API       APIConfig       `toml:"api"`
	Auth      AuthConfig      `toml:"auth"`
	Storage   StorageConfig   `toml:"storage"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Server    ServerConfig    `toml:"server"`
	WebSocket WebSocketConfig `toml:"websocket"`
	Jobs      JobsConfig      `toml:"jobs"`
	Logging   LoggingConfig   `toml:"logging"`
}

// APIConfig describes the lead-verification backend
type APIConfig struct {
	BaseURL       string  `toml:"base_url" validate:"required,url"`
	VersionPrefix string  `toml:"version_prefix"`             // e.g. "/v1", prepended to every path
	WorkspaceID   string  `toml:"workspace_id"`               // Fallback when no workspace was stored at login
	Timeout       string  `toml:"timeout"`                    // Per-request HTTP timeout, e.g. "15s"
	RateLimit     float64 `toml:"rate_limit" validate:"gte=0"` // Requests per second, 0 = unlimited
	UserAgent     string  `toml:"user_agent"`
}

// AuthConfig controls credential handling
type AuthConfig struct {
	LoginPath string `toml:"login_path" validate:"required"` // Carried on the login-required event
	// ShareRefresh makes concurrent 401s await one refresh call. With it off,
	// each 401 refreshes on its own; if the backend rotates refresh tokens,
	// all but the first of those calls present a spent token and log the user out.
	ShareRefresh bool `toml:"share_refresh"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Credential store directory, created owner-only
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Forget stored credentials on startup
	LockWait       string `toml:"lock_wait"`                // How long to wait for another process to release the store, default 2s
}

// MonitorConfig holds the polling cadence and message display durations
type MonitorConfig struct {
	LogPollInterval    string `toml:"log_poll_interval"`    // Log modal polling, default 2.5s
	VerifyPollInterval string `toml:"verify_poll_interval"` // Verification flow polling, default 2s
	VerifyTimeout      string `toml:"verify_timeout"`       // Verification polling budget, default 30s
	SuccessMessage     string `toml:"success_message"`      // How long "Done" stays visible
	ErrorMessage       string `toml:"error_message"`        // How long a failed-job message stays visible
	VerifyErrorMessage string `toml:"verify_error_message"` // How long a trigger error stays visible
	ShortMessage       string `toml:"short_message"`        // Network errors and cancellation notices
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

// WebSocketConfig contains configuration for the local bridge
type WebSocketConfig struct {
	AllowedEvents    []string `toml:"allowed_events"`    // Empty = forward every event type
	SnapshotThrottle string   `toml:"snapshot_throttle"` // Minimum spacing between job_snapshot messages
}

// JobsConfig controls the active job list in serve mode
type JobsConfig struct {
	ReloadSchedule string `toml:"reload_schedule"` // Cron with seconds; empty disables scheduled reloads
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
	Dir        string   `toml:"dir"`         // File output directory, default "logs" beside the credential store
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:       "http://localhost:8000",
			VersionPrefix: "/v1",
			WorkspaceID:   "1",
			Timeout:       "15s",
			RateLimit:     10,
			UserAgent:     "leadwatch/" + GetVersion(),
		},
		Auth: AuthConfig{
			LoginPath:    "/login",
			ShareRefresh: true,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:     "./data",
				LockWait: "2s",
			},
		},
		Monitor: MonitorConfig{
			LogPollInterval:    "2.5s",
			VerifyPollInterval: "2s",
			VerifyTimeout:      "30s",
			SuccessMessage:     "4s",
			ErrorMessage:       "6s",
			VerifyErrorMessage: "5s",
			ShortMessage:       "3s",
		},
		Server: ServerConfig{
			Port: 8095,
			Host: "localhost",
		},
		WebSocket: WebSocketConfig{
			AllowedEvents:    []string{},
			SnapshotThrottle: "250ms",
		},
		Jobs: JobsConfig{
			ReloadSchedule: "*/15 * * * * *",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
	}
}

// LoadFromFile loads configuration from a single file.
func LoadFromFile(path string) (*Config, error) {
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration with priority: defaults -> files (in order) -> env
// Later files override earlier ones. CLI flags are applied separately via ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

func applyEnvOverrides(config *Config) {
	// API configuration
	if baseURL := os.Getenv("LEADWATCH_API_BASE_URL"); baseURL != "" {
		config.API.BaseURL = baseURL
	}
	if prefix, ok := os.LookupEnv("LEADWATCH_API_VERSION_PREFIX"); ok {
		config.API.VersionPrefix = prefix
	}
	if workspace := os.Getenv("LEADWATCH_WORKSPACE_ID"); workspace != "" {
		config.API.WorkspaceID = workspace
	}
	if timeout := os.Getenv("LEADWATCH_API_TIMEOUT"); timeout != "" {
		config.API.Timeout = timeout
	}
	if rateLimit := os.Getenv("LEADWATCH_API_RATE_LIMIT"); rateLimit != "" {
		if rl, err := strconv.ParseFloat(rateLimit, 64); err == nil {
			config.API.RateLimit = rl
		}
	}

	// Auth configuration
	if loginPath := os.Getenv("LEADWATCH_LOGIN_PATH"); loginPath != "" {
		config.Auth.LoginPath = loginPath
	}
	if share := os.Getenv("LEADWATCH_SHARE_REFRESH"); share != "" {
		if sr, err := strconv.ParseBool(share); err == nil {
			config.Auth.ShareRefresh = sr
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("LEADWATCH_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if lockWait := os.Getenv("LEADWATCH_BADGER_LOCK_WAIT"); lockWait != "" {
		config.Storage.Badger.LockWait = lockWait
	}

	// Monitor configuration
	if interval := os.Getenv("LEADWATCH_LOG_POLL_INTERVAL"); interval != "" {
		config.Monitor.LogPollInterval = interval
	}
	if interval := os.Getenv("LEADWATCH_VERIFY_POLL_INTERVAL"); interval != "" {
		config.Monitor.VerifyPollInterval = interval
	}
	if timeout := os.Getenv("LEADWATCH_VERIFY_TIMEOUT"); timeout != "" {
		config.Monitor.VerifyTimeout = timeout
	}

	// Server configuration
	if port := os.Getenv("LEADWATCH_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("LEADWATCH_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Jobs configuration
	if schedule, ok := os.LookupEnv("LEADWATCH_JOBS_RELOAD_SCHEDULE"); ok {
		config.Jobs.ReloadSchedule = schedule
	}

	// Logging configuration
	if dir := os.Getenv("LEADWATCH_LOG_DIR"); dir != "" {
		config.Logging.Dir = dir
	}
	if level := os.Getenv("LEADWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("LEADWATCH_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string, baseURL string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if baseURL != "" {
		config.API.BaseURL = baseURL
	}
}

// Validate checks struct constraints, durations and the reload schedule
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"api.timeout":                  c.API.Timeout,
		"storage.badger.lock_wait":     c.Storage.Badger.LockWait,
		"monitor.log_poll_interval":    c.Monitor.LogPollInterval,
		"monitor.verify_poll_interval": c.Monitor.VerifyPollInterval,
		"monitor.verify_timeout":       c.Monitor.VerifyTimeout,
		"monitor.success_message":      c.Monitor.SuccessMessage,
		"monitor.error_message":        c.Monitor.ErrorMessage,
		"monitor.verify_error_message": c.Monitor.VerifyErrorMessage,
		"monitor.short_message":        c.Monitor.ShortMessage,
		"websocket.snapshot_throttle":  c.WebSocket.SnapshotThrottle,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil || d < 0 {
			return fmt.Errorf("invalid duration for %s: %q", key, value)
		}
	}

	if c.Jobs.ReloadSchedule != "" {
		if err := ValidateJobSchedule(c.Jobs.ReloadSchedule); err != nil {
			return err
		}
	}

	return nil
}

// ValidateJobSchedule validates a cron expression with a leading seconds field
func ValidateJobSchedule(schedule string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// ParseDuration parses value, returning fallback when it is empty or malformed
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// APIURL joins the base URL, version prefix and path
func (c *Config) APIURL(path string) string {
	base := strings.TrimRight(c.API.BaseURL, "/")
	prefix := strings.Trim(c.API.VersionPrefix, "/")
	if prefix != "" {
		base += "/" + prefix
	}
	return base + "/" + strings.TrimLeft(path, "/")
}
