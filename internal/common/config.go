package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Engine      EngineConfig    `toml:"engine"`
	Monitor     MonitorConfig   `toml:"monitor"`
	Store       StoreConfig     `toml:"store"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Logging     LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// EngineConfig controls the transfer engine adapters.
type EngineConfig struct {
	MaxRetries     int           `toml:"max_retries"`      // Retry budget for transient network failures
	MaxBackoff     time.Duration `toml:"max_backoff"`      // Cap on the exponential backoff delay
	StopGrace      time.Duration `toml:"stop_grace"`       // How long stop waits before force-killing the child
	StopDrainLines int           `toml:"stop_drain_lines"` // Trailing output lines drained on stop for final progress
}

// MonitorConfig controls the event monitor poll loop.
type MonitorConfig struct {
	ActiveInterval time.Duration `toml:"active_interval"` // Sleep between cycles while jobs are running
	IdleInterval   time.Duration `toml:"idle_interval"`   // Sleep between cycles when nothing is running
	ReaperCycles   int           `toml:"reaper_cycles"`   // Run the engine reaper every N cycles
	ReaperAge      time.Duration `toml:"reaper_age"`      // Drop stopped engines older than this
}

// StoreConfig controls job store persistence behavior.
type StoreConfig struct {
	PersistInterval time.Duration `toml:"persist_interval"` // Minimum time between progress persists per job
	PersistPercent  float64       `toml:"persist_percent"`  // Persist when percent moved at least this much
	WriteRetries    int           `toml:"write_retries"`    // Retry budget for transient IO failures on writes
	ListCacheTTL    time.Duration `toml:"list_cache_ttl"`   // How long the supervisor's list cache stays fresh
}

// WebSocketConfig contains configuration for the update fan-out.
type WebSocketConfig struct {
	// Throttle interval for notification broadcasts. Zero disables throttling.
	NotificationThrottle time.Duration `toml:"notification_throttle"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "production",
		Server: ServerConfig{
			Port: 5550,
			Host: "localhost",
		},
		Engine: EngineConfig{
			MaxRetries:     10,
			MaxBackoff:     60 * time.Second,
			StopGrace:      5 * time.Second,
			StopDrainLines: 10,
		},
		Monitor: MonitorConfig{
			ActiveInterval: 1 * time.Second,
			IdleInterval:   5 * time.Second,
			ReaperCycles:   10,
			ReaperAge:      300 * time.Second,
		},
		Store: StoreConfig{
			PersistInterval: 2 * time.Second,
			PersistPercent:  1.0,
			WriteRetries:    3,
			ListCacheTTL:    1 * time.Second,
		},
		WebSocket: WebSocketConfig{
			NotificationThrottle: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files, later files
// overriding earlier ones, then applies environment overrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("BACKUPD_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("BACKUPD_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("BACKUPD_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if retries := os.Getenv("BACKUPD_ENGINE_MAX_RETRIES"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil {
			config.Engine.MaxRetries = r
		}
	}

	if level := os.Getenv("BACKUPD_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("BACKUPD_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
