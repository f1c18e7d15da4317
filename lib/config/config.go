// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// EnvironmentVariable names the variable [Load] reads the config path
// from.
const EnvironmentVariable = "COMMANDROOM_CONFIG"

// Config is the master configuration for the command room service and
// CLI.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Paths configures file locations.
	Paths PathsConfig `yaml:"paths"`

	// Log configures the service logger.
	Log LogConfig `yaml:"log"`

	// AI configures the assistant's inference providers.
	AI AIConfig `yaml:"ai"`

	// Room configures per-room coordination timing.
	Room RoomConfig `yaml:"room"`

	// Snapshots configures persistence of room documents.
	Snapshots SnapshotConfig `yaml:"snapshots"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths     *PathsConfig    `yaml:"paths,omitempty"`
	Log       *LogConfig      `yaml:"log,omitempty"`
	Room      *RoomConfig     `yaml:"room,omitempty"`
	Snapshots *SnapshotConfig `yaml:"snapshots,omitempty"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Root is the base directory for command room data.
	Root string `yaml:"root"`

	// State holds room snapshots.
	State string `yaml:"state"`

	// Socket is the service's Unix socket.
	Socket string `yaml:"socket"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: debug in
	// development, info otherwise.
	Level string `yaml:"level"`
}

// AIConfig configures inference.
type AIConfig struct {
	// DefaultProvider and DefaultModel seed the aiConfig of new rooms.
	DefaultProvider string `yaml:"default_provider"`
	DefaultModel    string `yaml:"default_model"`

	// MaxTokens bounds one provider response. Zero leaves it to the
	// provider.
	MaxTokens int `yaml:"max_tokens"`

	// MaxToolSteps bounds provider round trips per generation.
	// Default: 5
	MaxToolSteps int `yaml:"max_tool_steps"`

	// HistoryLimit is how many recent messages are sent to the
	// provider. Default: 40
	HistoryLimit int `yaml:"history_limit"`

	// Providers maps provider names (as stored in a room's aiConfig)
	// to OpenAI-compatible endpoints.
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig is one OpenAI-compatible endpoint.
type ProviderConfig struct {
	// BaseURL is the API root, e.g. https://api.deepseek.com.
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	// The key itself never appears in the config file.
	APIKeyEnv string `yaml:"api_key_env"`

	// ReasoningEffort is sent as reasoning_effort when a room enables
	// thinking. Empty omits it.
	ReasoningEffort string `yaml:"reasoning_effort"`
}

// RoomConfig configures coordination timing. Durations are strings
// accepted by time.ParseDuration.
type RoomConfig struct {
	// StallTimeout is how long a streaming slot may go without progress
	// before a session's watchdog clears it. Default: 90s
	StallTimeout string `yaml:"stall_timeout"`

	// ToolTimeout bounds the wait for a tool executor's result. It
	// must be shorter than StallTimeout. Default: 30s
	ToolTimeout string `yaml:"tool_timeout"`

	// WatchdogInterval is how often each session samples the streaming
	// slot. Default: 5s
	WatchdogInterval string `yaml:"watchdog_interval"`

	// AssistantName is the author name shown on assistant messages.
	// Default: NEXUS AI
	AssistantName string `yaml:"assistant_name"`
}

// SnapshotConfig configures room persistence.
type SnapshotConfig struct {
	// Enabled turns persistence on. Default: false in development,
	// true in production.
	Enabled bool `yaml:"enabled"`

	// Interval is how often dirty rooms are flushed. Default: 10s
	Interval string `yaml:"interval"`

	// Compression is zstd, lz4, or none. Default: zstd
	Compression string `yaml:"compression"`

	// Recipients, when set, encrypts snapshots to these age public
	// keys.
	Recipients []string `yaml:"recipients"`

	// IdentityFile is the age identity file used to decrypt encrypted
	// snapshots on startup.
	IdentityFile string `yaml:"identity_file"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "commandroom")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:   defaultRoot,
			State:  filepath.Join(defaultRoot, "state"),
			Socket: filepath.Join(defaultRoot, "commandroom.sock"),
		},
		Log: LogConfig{Level: "debug"},
		AI: AIConfig{
			DefaultProvider: "deepseek",
			DefaultModel:    "deepseek-chat",
			MaxToolSteps:    5,
			HistoryLimit:    40,
			Providers: map[string]ProviderConfig{
				"deepseek": {BaseURL: "https://api.deepseek.com", APIKeyEnv: "DEEPSEEK_API_KEY"},
				"openai":   {BaseURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY"},
				"gemini":   {BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai", APIKeyEnv: "GEMINI_API_KEY", ReasoningEffort: "medium"},
			},
		},
		Room: RoomConfig{
			StallTimeout:     "90s",
			ToolTimeout:      "30s",
			WatchdogInterval: "5s",
			AssistantName:    "NEXUS AI",
		},
		Snapshots: SnapshotConfig{
			Interval:    "10s",
			Compression: "zstd",
		},
	}
}

// Load loads configuration from the COMMANDROOM_CONFIG environment
// variable. There are no fallbacks: if it is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your commandroom.yaml config file, or use --config flag", EnvironmentVariable)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values. The only expansion performed is ${HOME},
// ${COMMANDROOM_ROOT} and ${VAR:-default} in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: quieter logs and durable rooms.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Log:       &LogConfig{Level: "info"},
				Snapshots: &SnapshotConfig{Enabled: true},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
		if overrides.Paths.Socket != "" {
			c.Paths.Socket = overrides.Paths.Socket
		}
	}

	if overrides.Log != nil && overrides.Log.Level != "" {
		c.Log.Level = overrides.Log.Level
	}

	if overrides.Room != nil {
		if overrides.Room.StallTimeout != "" {
			c.Room.StallTimeout = overrides.Room.StallTimeout
		}
		if overrides.Room.ToolTimeout != "" {
			c.Room.ToolTimeout = overrides.Room.ToolTimeout
		}
		if overrides.Room.WatchdogInterval != "" {
			c.Room.WatchdogInterval = overrides.Room.WatchdogInterval
		}
		if overrides.Room.AssistantName != "" {
			c.Room.AssistantName = overrides.Room.AssistantName
		}
	}

	if overrides.Snapshots != nil {
		// Enabled is a bool, so we always apply it from overrides.
		c.Snapshots.Enabled = overrides.Snapshots.Enabled
		if overrides.Snapshots.Interval != "" {
			c.Snapshots.Interval = overrides.Snapshots.Interval
		}
		if overrides.Snapshots.Compression != "" {
			c.Snapshots.Compression = overrides.Snapshots.Compression
		}
		if len(overrides.Snapshots.Recipients) > 0 {
			c.Snapshots.Recipients = overrides.Snapshots.Recipients
		}
		if overrides.Snapshots.IdentityFile != "" {
			c.Snapshots.IdentityFile = overrides.Snapshots.IdentityFile
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"COMMANDROOM_ROOT": c.Paths.Root,
		"HOME":             os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["COMMANDROOM_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Socket = expandVars(c.Paths.Socket, vars)
	c.Snapshots.IdentityFile = expandVars(c.Snapshots.IdentityFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Paths.Socket == "" {
		errs = append(errs, fmt.Errorf("paths.socket is required"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if c.AI.MaxToolSteps < 1 {
		errs = append(errs, fmt.Errorf("ai.max_tool_steps must be at least 1"))
	}
	if c.AI.HistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("ai.history_limit must be at least 1"))
	}
	if c.AI.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("ai.max_tokens must not be negative"))
	}
	if _, ok := c.AI.Providers[c.AI.DefaultProvider]; !ok {
		errs = append(errs, fmt.Errorf("ai.default_provider %q is not in ai.providers", c.AI.DefaultProvider))
	}
	for _, name := range c.AI.ProviderNames() {
		if c.AI.Providers[name].BaseURL == "" {
			errs = append(errs, fmt.Errorf("ai.providers.%s.base_url is required", name))
		}
	}

	for field, value := range map[string]string{
		"room.stall_timeout":     c.Room.StallTimeout,
		"room.tool_timeout":      c.Room.ToolTimeout,
		"room.watchdog_interval": c.Room.WatchdogInterval,
		"snapshots.interval":     c.Snapshots.Interval,
	} {
		if _, err := parsePositiveDuration(field, value); err != nil {
			errs = append(errs, err)
		}
	}
	if timings, err := c.Room.Timings(); err == nil && timings.ToolTimeout >= timings.StallTimeout {
		errs = append(errs, fmt.Errorf("room.tool_timeout (%s) must be shorter than room.stall_timeout (%s)",
			c.Room.ToolTimeout, c.Room.StallTimeout))
	}
	if c.Room.AssistantName == "" {
		errs = append(errs, fmt.Errorf("room.assistant_name is required"))
	}

	compressionValues := []string{"zstd", "lz4", "none"}
	if !contains(compressionValues, c.Snapshots.Compression) {
		errs = append(errs, fmt.Errorf("snapshots.compression must be one of: %v", compressionValues))
	}
	if c.Snapshots.Enabled && c.Paths.State == "" {
		errs = append(errs, fmt.Errorf("paths.state is required when snapshots are enabled"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.State,
		filepath.Dir(c.Paths.Socket),
	}

	for _, path := range paths {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return level, nil
}

// ProviderNames returns the configured provider names, sorted.
func (a AIConfig) ProviderNames() []string {
	names := make([]string, 0, len(a.Providers))
	for name := range a.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RoomTimings holds the parsed durations of a [RoomConfig].
type RoomTimings struct {
	StallTimeout     time.Duration
	ToolTimeout      time.Duration
	WatchdogInterval time.Duration
}

// Timings parses the room durations.
func (r RoomConfig) Timings() (RoomTimings, error) {
	var timings RoomTimings
	var errs []error
	var err error
	if timings.StallTimeout, err = parsePositiveDuration("room.stall_timeout", r.StallTimeout); err != nil {
		errs = append(errs, err)
	}
	if timings.ToolTimeout, err = parsePositiveDuration("room.tool_timeout", r.ToolTimeout); err != nil {
		errs = append(errs, err)
	}
	if timings.WatchdogInterval, err = parsePositiveDuration("room.watchdog_interval", r.WatchdogInterval); err != nil {
		errs = append(errs, err)
	}
	return timings, errors.Join(errs...)
}

// IntervalDuration parses Interval.
func (s SnapshotConfig) IntervalDuration() (time.Duration, error) {
	return parsePositiveDuration("snapshots.interval", s.Interval)
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return duration, nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
