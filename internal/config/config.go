// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/choirchat/choir-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete choir client configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Server connection settings
	Server ServerConfig `toml:"server" json:"server"`

	// Streaming transport settings
	Stream StreamConfig `toml:"stream" json:"stream"`

	// Page layout settings
	Pagination PaginationConfig `toml:"pagination" json:"pagination"`

	// Local thread persistence
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Terminal UI settings
	UI UIConfig `toml:"ui" json:"ui"`

	// Per-phase model selection, keyed by phase wire name
	Models map[string]ModelSelection `toml:"models" json:"models"`
}

// ServerConfig contains the streaming API endpoint settings.
type ServerConfig struct {
	// URL is the streaming endpoint
	URL string `toml:"url" json:"url"`
	// AuthToken is sent as a bearer credential when set
	AuthToken string `toml:"auth_token" json:"auth_token"`
	// TimeoutSecs bounds non-streaming HTTP requests
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// StreamConfig tunes streaming and reconnection behavior.
type StreamConfig struct {
	// MaxRetries is the number of reconnection attempts after the
	// initial connection fails or drops. Zero (or absent) selects the
	// default; -1 disables reconnection
	MaxRetries int `toml:"max_retries" json:"max_retries"`
	// ReconnectDelaySecs is the base backoff delay; attempt n waits
	// base * 1.5^(n-1)
	ReconnectDelaySecs float64 `toml:"reconnect_delay_secs" json:"reconnect_delay_secs"`
	// ChannelBuffer is the event channel depth
	ChannelBuffer int `toml:"channel_buffer" json:"channel_buffer"`
	// HistoryTurns bounds how much conversation context each request carries
	HistoryTurns int `toml:"history_turns" json:"history_turns"`
	// LegacyExperiencePhase maps the bare "experience" wire name:
	// "experience_vectors" or "experience_web"
	LegacyExperiencePhase string `toml:"legacy_experience_phase" json:"legacy_experience_phase"`
	// PollFallback switches to REST polling instead of SSE
	PollFallback bool `toml:"poll_fallback" json:"poll_fallback"`
	// PollIntervalSecs is the polling cadence when PollFallback is set
	PollIntervalSecs float64 `toml:"poll_interval_secs" json:"poll_interval_secs"`
}

// PaginationConfig tunes how long phase content splits into pages.
type PaginationConfig struct {
	// TargetFill is the preferred page fill ratio (0-1)
	TargetFill float64 `toml:"target_fill" json:"target_fill"`
	// MaxFill is the hard page fill ceiling (0-1)
	MaxFill float64 `toml:"max_fill" json:"max_fill"`
	// MinFill is the merge threshold for underfull pages (0-1)
	MinFill float64 `toml:"min_fill" json:"min_fill"`
	// LongParagraphChars is the length past which paragraphs split
	// into sentences
	LongParagraphChars int `toml:"long_paragraph_chars" json:"long_paragraph_chars"`
	// CacheEntries caps the layout cache
	CacheEntries int `toml:"cache_entries" json:"cache_entries"`
	// CacheTTLMinutes ages out cold cache entries
	CacheTTLMinutes int `toml:"cache_ttl_minutes" json:"cache_ttl_minutes"`
}

// StorageConfig contains thread persistence settings.
type StorageConfig struct {
	// DatabasePath is the sqlite file (empty = ~/.choir/choir.db)
	DatabasePath string `toml:"database_path" json:"database_path"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// UpdatesPerSecond caps content repaint frequency while streaming
	UpdatesPerSecond float64 `toml:"updates_per_second" json:"updates_per_second"`
	// ShowPhaseDetails shows provider and model per phase
	ShowPhaseDetails bool `toml:"show_phase_details" json:"show_phase_details"`
	// CompactMode uses a more compact layout
	CompactMode bool `toml:"compact_mode" json:"compact_mode"`
}

// ModelSelection picks a provider and model for one phase.
type ModelSelection struct {
	Provider    string  `toml:"provider" json:"provider"`
	ModelName   string  `toml:"model_name" json:"model_name"`
	Temperature float64 `toml:"temperature" json:"temperature"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Server: ServerConfig{
			URL:         "https://choir.chat/api/postchain/stream",
			TimeoutSecs: 30,
		},

		Stream: StreamConfig{
			MaxRetries:            3,
			ReconnectDelaySecs:    3,
			ChannelBuffer:         100,
			HistoryTurns:          10,
			LegacyExperiencePhase: "experience_vectors",
			PollIntervalSecs:      1,
		},

		Pagination: PaginationConfig{
			TargetFill:         0.80,
			MaxFill:            0.95,
			MinFill:            0.30,
			LongParagraphChars: 200,
			CacheEntries:       100,
			CacheTTLMinutes:    30,
		},

		UI: UIConfig{
			Theme:            "dark",
			UpdatesPerSecond: 30,
			ShowPhaseDetails: true,
		},

		Models: map[string]ModelSelection{},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the choir configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".choir"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only) to protect auth tokens.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finish(cfg)
			}
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finish(cfg)
			}
		}
	}

	cfg, err = finish(cfg)
	if err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// finish applies the override, migration, defaulting, and validation
// chain every load path shares.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.Migrate()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. JSON when the path ends in .json, TOML otherwise.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finish(cfg)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf strings.Builder
	buf.WriteString("# choir configuration file\n")
	buf.WriteString("# Generated by choir - edit with care\n")
	buf.WriteString("\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// MIGRATION
// =============================================================================

// Migrate rewrites settings from older config layouts in place.
// Older configs keyed the combined experience phase as "experience";
// it split into experience_vectors and experience_web.
func (c *Config) Migrate() {
	if sel, ok := c.Models["experience"]; ok {
		target := c.Stream.LegacyExperiencePhase
		if target == "" {
			target = "experience_vectors"
		}
		if _, exists := c.Models[target]; !exists {
			c.Models[target] = sel
		}
		delete(c.Models, "experience")
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Server.URL == "" {
		errs = append(errs, ValidationError{
			Field:   "server.url",
			Message: "must not be empty",
		})
	} else if u, err := url.Parse(c.Server.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "server.url",
			Message: fmt.Sprintf("invalid URL '%s'", c.Server.URL),
		})
	}

	if c.Stream.MaxRetries < -1 || c.Stream.MaxRetries > 10 {
		errs = append(errs, ValidationError{
			Field:   "stream.max_retries",
			Message: fmt.Sprintf("must be -1 to 10 (-1 disables reconnection), got %d", c.Stream.MaxRetries),
		})
	}

	if c.Stream.ReconnectDelaySecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "stream.reconnect_delay_secs",
			Message: "must be non-negative",
		})
	}

	switch c.Stream.LegacyExperiencePhase {
	case "", "experience_vectors", "experience_web":
	default:
		errs = append(errs, ValidationError{
			Field:   "stream.legacy_experience_phase",
			Message: fmt.Sprintf("must be experience_vectors or experience_web, got '%s'", c.Stream.LegacyExperiencePhase),
		})
	}

	if c.Pagination.TargetFill <= 0 || c.Pagination.TargetFill > 1 {
		errs = append(errs, ValidationError{
			Field:   "pagination.target_fill",
			Message: "must be between 0 and 1",
		})
	}
	if c.Pagination.MaxFill <= 0 || c.Pagination.MaxFill > 1 {
		errs = append(errs, ValidationError{
			Field:   "pagination.max_fill",
			Message: "must be between 0 and 1",
		})
	}
	if c.Pagination.MaxFill < c.Pagination.TargetFill {
		errs = append(errs, ValidationError{
			Field:   "pagination.max_fill",
			Message: "must be at least target_fill",
		})
	}
	if c.Pagination.MinFill < 0 || c.Pagination.MinFill >= c.Pagination.TargetFill {
		errs = append(errs, ValidationError{
			Field:   "pagination.min_fill",
			Message: "must be non-negative and below target_fill",
		})
	}
	if c.Pagination.CacheEntries < 0 || c.Pagination.CacheEntries > 100000 {
		errs = append(errs, ValidationError{
			Field:   "pagination.cache_entries",
			Message: fmt.Sprintf("must be 0-100000, got %d", c.Pagination.CacheEntries),
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if c.UI.UpdatesPerSecond < 0 {
		errs = append(errs, ValidationError{
			Field:   "ui.updates_per_second",
			Message: "must be non-negative",
		})
	}

	for phase := range c.Models {
		if !validModelPhase(phase) {
			errs = append(errs, ValidationError{
				Field:   "models." + phase,
				Message: "unknown phase name",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validModelPhase reports whether a models table key names a pipeline phase.
func validModelPhase(name string) bool {
	switch name {
	case "action", "experience_vectors", "experience_web",
		"intention", "observation", "understanding", "yield":
		return true
	}
	return false
}

// SetDefaults sets default values for any missing or zero-value
// configuration fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Server.URL == "" {
		c.Server.URL = defaults.Server.URL
	}
	if c.Server.TimeoutSecs == 0 {
		c.Server.TimeoutSecs = defaults.Server.TimeoutSecs
	}

	if c.Stream.MaxRetries == 0 {
		c.Stream.MaxRetries = defaults.Stream.MaxRetries
	}
	if c.Stream.ReconnectDelaySecs == 0 {
		c.Stream.ReconnectDelaySecs = defaults.Stream.ReconnectDelaySecs
	}
	if c.Stream.ChannelBuffer == 0 {
		c.Stream.ChannelBuffer = defaults.Stream.ChannelBuffer
	}
	if c.Stream.HistoryTurns == 0 {
		c.Stream.HistoryTurns = defaults.Stream.HistoryTurns
	}
	if c.Stream.LegacyExperiencePhase == "" {
		c.Stream.LegacyExperiencePhase = defaults.Stream.LegacyExperiencePhase
	}
	if c.Stream.PollIntervalSecs == 0 {
		c.Stream.PollIntervalSecs = defaults.Stream.PollIntervalSecs
	}

	if c.Pagination.TargetFill == 0 {
		c.Pagination.TargetFill = defaults.Pagination.TargetFill
	}
	if c.Pagination.MaxFill == 0 {
		c.Pagination.MaxFill = defaults.Pagination.MaxFill
	}
	if c.Pagination.MinFill == 0 {
		c.Pagination.MinFill = defaults.Pagination.MinFill
	}
	if c.Pagination.LongParagraphChars == 0 {
		c.Pagination.LongParagraphChars = defaults.Pagination.LongParagraphChars
	}
	if c.Pagination.CacheEntries == 0 {
		c.Pagination.CacheEntries = defaults.Pagination.CacheEntries
	}
	if c.Pagination.CacheTTLMinutes == 0 {
		c.Pagination.CacheTTLMinutes = defaults.Pagination.CacheTTLMinutes
	}

	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
	if c.UI.UpdatesPerSecond == 0 {
		c.UI.UpdatesPerSecond = defaults.UI.UpdatesPerSecond
	}

	if c.Models == nil {
		c.Models = map[string]ModelSelection{}
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - CHOIR_SERVER_URL: overrides server.url
//   - CHOIR_AUTH_TOKEN: overrides server.auth_token
//   - CHOIR_MAX_RETRIES: overrides stream.max_retries
//   - CHOIR_RECONNECT_DELAY: overrides stream.reconnect_delay_secs
//   - CHOIR_POLL_FALLBACK: set to "1" or "true" to use REST polling
//   - CHOIR_DB_PATH: overrides storage.database_path
//   - CHOIR_THEME: overrides ui.theme
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CHOIR_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("CHOIR_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("CHOIR_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Stream.MaxRetries = n
		}
	}
	if v := os.Getenv("CHOIR_RECONNECT_DELAY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Stream.ReconnectDelaySecs = f
		}
	}
	if v := os.Getenv("CHOIR_POLL_FALLBACK"); v != "" {
		c.Stream.PollFallback = v == "1" || strings.ToLower(v) == "true"
	}
	if v := os.Getenv("CHOIR_DB_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv("CHOIR_THEME"); v != "" {
		c.UI.Theme = v
	}
}
