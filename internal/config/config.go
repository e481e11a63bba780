// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/squidbay/squidops-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete squidops configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Marketplace API connection
	API APIConfig `toml:"api" json:"api"`

	// Login limits and session timers
	Session SessionConfig `toml:"session" json:"session"`

	// Terminal console
	UI UIConfig `toml:"ui" json:"ui"`

	// Log sink
	Logging LoggingConfig `toml:"logging" json:"logging"`

	// Report and export files
	Export ExportConfig `toml:"export" json:"export"`
}

// APIConfig configures the marketplace client.
type APIConfig struct {
	BaseURL           string  `toml:"base_url" json:"base_url"`
	TimeoutSecs       int     `toml:"timeout_secs" json:"timeout_secs"`
	MaxRetries        int     `toml:"max_retries" json:"max_retries"`
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
}

// Timeout is the per-request timeout.
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSecs) * time.Second
}

// SessionConfig configures the session controller.
type SessionConfig struct {
	// MaxAttempts is the shared failure budget for key, TOTP and backup code.
	MaxAttempts int `toml:"max_attempts" json:"max_attempts"`

	LockoutSecs        int `toml:"lockout_secs" json:"lockout_secs"`
	SessionTimeoutMins int `toml:"session_timeout_mins" json:"session_timeout_mins"`
	IdleTimeoutMins    int `toml:"idle_timeout_mins" json:"idle_timeout_mins"`
}

// LockoutDuration is how long logins are refused after MaxAttempts failures.
func (s SessionConfig) LockoutDuration() time.Duration {
	return time.Duration(s.LockoutSecs) * time.Second
}

// SessionTimeout is the hard limit from a completed login.
func (s SessionConfig) SessionTimeout() time.Duration {
	return time.Duration(s.SessionTimeoutMins) * time.Minute
}

// IdleTimeout ends the session after no input.
func (s SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutMins) * time.Minute
}

// UIConfig contains console display settings.
type UIConfig struct {
	// Theme is auto, dark or light.
	Theme string `toml:"theme" json:"theme"`

	// DefaultTab is selected right after login.
	DefaultTab string `toml:"default_tab" json:"default_tab"`

	// CompactMode drops the sidebar on narrow terminals.
	CompactMode bool `toml:"compact_mode" json:"compact_mode"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level" json:"level"`

	// File is the log path. Empty means ~/.squidops/logs/squidops.log.
	File string `toml:"file" json:"file"`
}

// ExportConfig configures report files.
type ExportConfig struct {
	Dir             string `toml:"dir" json:"dir"`
	Format          string `toml:"format" json:"format"`
	OpenAfterExport bool   `toml:"open_after_export" json:"open_after_export"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default settings.
const (
	DefaultVersion           = "1"
	DefaultBaseURL           = "https://squidbay-api-production.up.railway.app"
	DefaultTimeoutSecs       = 30
	DefaultMaxRetries        = 2
	DefaultRequestsPerSecond = 10
	DefaultMaxAttempts       = 5
	DefaultLockoutSecs       = 900
	DefaultSessionMins       = 240
	DefaultIdleMins          = 30
	DefaultTheme             = "auto"
	DefaultTab               = "dashboard"
	DefaultLogLevel          = "info"
	DefaultExportFormat      = "csv"
)

// Default returns a Config with built-in defaults.
func Default() *Config {
	return &Config{
		Version: DefaultVersion,
		API: APIConfig{
			BaseURL:           DefaultBaseURL,
			TimeoutSecs:       DefaultTimeoutSecs,
			MaxRetries:        DefaultMaxRetries,
			RequestsPerSecond: DefaultRequestsPerSecond,
		},
		Session: SessionConfig{
			MaxAttempts:        DefaultMaxAttempts,
			LockoutSecs:        DefaultLockoutSecs,
			SessionTimeoutMins: DefaultSessionMins,
			IdleTimeoutMins:    DefaultIdleMins,
		},
		UI: UIConfig{
			Theme:      DefaultTheme,
			DefaultTab: DefaultTab,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
		Export: ExportConfig{
			Dir:    ".",
			Format: DefaultExportFormat,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// DirEnv overrides the configuration directory.
const DirEnv = "SQUIDOPS_HOME"

// ConfigDir returns the squidops configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv(DirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".squidops"), nil
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

// Path returns the config file Load would read: the TOML file if present,
// else the JSON file if present, else the TOML path.
func Path() (string, error) {
	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, nil
	}
	return tomlPath, nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o700)
}

// ensureSecurePermissions tightens a config file to 0600.
// SECURITY: the file names the API endpoint and export locations; keep it owner-only.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default location. TOML is tried first,
// then JSON, then built-in defaults. Environment overrides are applied last.
//
// A file that fails to parse is reported alongside a usable default config.
func Load() (*Config, error) {
	var loadErr error
	for _, candidate := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := candidate()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		var verrs ValidateErrors
		if errors.As(err, &verrs) {
			return nil, err
		}
		loadErr = err
		break
	}

	cfg := Default()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// LoadTOML decodes a TOML file over cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
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

// LoadFromPath loads one file (JSON by extension, TOML otherwise) over the
// defaults, then applies environment overrides and validates.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finish() error {
	c.ApplyEnvOverrides()
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SetDefaults fills zero values with defaults. Explicit zeros that are
// meaningful (max_retries = 0) are kept.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = d.API.BaseURL
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.TimeoutSecs == 0 {
		c.API.TimeoutSecs = d.API.TimeoutSecs
	}
	if c.API.RequestsPerSecond == 0 {
		c.API.RequestsPerSecond = d.API.RequestsPerSecond
	}
	if c.Session.MaxAttempts == 0 {
		c.Session.MaxAttempts = d.Session.MaxAttempts
	}
	if c.Session.LockoutSecs == 0 {
		c.Session.LockoutSecs = d.Session.LockoutSecs
	}
	if c.Session.SessionTimeoutMins == 0 {
		c.Session.SessionTimeoutMins = d.Session.SessionTimeoutMins
	}
	if c.Session.IdleTimeoutMins == 0 {
		c.Session.IdleTimeoutMins = d.Session.IdleTimeoutMins
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.DefaultTab == "" {
		c.UI.DefaultTab = d.UI.DefaultTab
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Export.Dir == "" {
		c.Export.Dir = d.Export.Dir
	}
	if c.Export.Format == "" {
		c.Export.Format = d.Export.Format
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to the default TOML path.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg to path.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# squidops configuration file\n")
	buf.WriteString("# Environment: SQUIDOPS_API_URL, SQUIDOPS_LOG_LEVEL, SQUIDOPS_EXPORT_DIR\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	// RELIABILITY: a crash mid-save must not leave a truncated config.
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
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
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var (
	validThemes    = map[string]bool{"auto": true, "dark": true, "light": true}
	validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats   = map[string]bool{"csv": true, "json": true, "md": true, "markdown": true}
	validTabs      = map[string]bool{
		"dashboard": true, "skills": true, "agents": true, "reviews": true, "transactions": true,
		"keys": true, "security": true, "reports": true, "settings": true,
		"analytics": true, "infra": true, "github": true,
	}
)

// Validate checks every section and returns ValidateErrors listing all problems.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// API
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Host == "" {
		add("api.base_url", "invalid URL %q", c.API.BaseURL)
	} else if u.Scheme != "https" && !isLoopback(u.Hostname()) {
		// SECURITY: the admin key travels in a header; only loopback may use plain HTTP.
		add("api.base_url", "must use https (got %s)", u.Scheme)
	}
	if c.API.TimeoutSecs < 1 || c.API.TimeoutSecs > 300 {
		add("api.timeout_secs", "must be between 1 and 300, got %d", c.API.TimeoutSecs)
	}
	if c.API.MaxRetries < 0 || c.API.MaxRetries > 10 {
		add("api.max_retries", "must be between 0 and 10, got %d", c.API.MaxRetries)
	}
	if c.API.RequestsPerSecond < 0 {
		add("api.requests_per_second", "must not be negative")
	}

	// Session
	if c.Session.MaxAttempts < 1 || c.Session.MaxAttempts > 20 {
		add("session.max_attempts", "must be between 1 and 20, got %d", c.Session.MaxAttempts)
	}
	if c.Session.LockoutSecs < 60 {
		add("session.lockout_secs", "must be at least 60, got %d", c.Session.LockoutSecs)
	}
	if c.Session.SessionTimeoutMins < 1 {
		add("session.session_timeout_mins", "must be positive, got %d", c.Session.SessionTimeoutMins)
	}
	if c.Session.IdleTimeoutMins < 1 {
		add("session.idle_timeout_mins", "must be positive, got %d", c.Session.IdleTimeoutMins)
	} else if c.Session.IdleTimeoutMins > c.Session.SessionTimeoutMins {
		add("session.idle_timeout_mins", "must not exceed session_timeout_mins (%d)", c.Session.SessionTimeoutMins)
	}

	// UI
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		add("ui.theme", "invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme)
	}
	if !validTabs[strings.ToLower(c.UI.DefaultTab)] {
		add("ui.default_tab", "unknown tab '%s'", c.UI.DefaultTab)
	}

	// Logging
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	// Export
	if !validFormats[strings.ToLower(c.Export.Format)] {
		add("export.format", "invalid format '%s', must be one of: csv, json, md", c.Export.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// Environment variables read by ApplyEnvOverrides.
const (
	EnvAPIURL    = "SQUIDOPS_API_URL"
	EnvLogLevel  = "SQUIDOPS_LOG_LEVEL"
	EnvExportDir = "SQUIDOPS_EXPORT_DIR"
	EnvTheme     = "SQUIDOPS_THEME"
)

// ApplyEnvOverrides applies environment variable overrides:
//   - SQUIDOPS_API_URL: overrides api.base_url
//   - SQUIDOPS_LOG_LEVEL: overrides logging.level
//   - SQUIDOPS_EXPORT_DIR: overrides export.dir
//   - SQUIDOPS_THEME: overrides ui.theme
//
// The admin key is never read from configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvExportDir); v != "" {
		c.Export.Dir = v
	}
	if v := os.Getenv(EnvTheme); v != "" {
		c.UI.Theme = strings.ToLower(v)
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value using its file key (e.g. "session.idle_timeout_mins").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a value using its file key. Strings are parsed for numeric and
// bool fields.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks the tagged fields named by a dotted key.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tag, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ","); tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func setFieldValue(field reflect.Value, value any) error {
	s, isString := value.(string)
	switch field.Kind() {
	case reflect.String:
		field.SetString(fmt.Sprint(value))
	case reflect.Bool:
		if !isString {
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("expected bool, got %T", value)
			}
			field.SetBool(b)
			return nil
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("expected bool: %w", err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		if !isString {
			s = fmt.Sprint(value)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("expected integer: %w", err)
		}
		field.SetInt(n)
	case reflect.Float64:
		if !isString {
			s = fmt.Sprint(value)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("expected number: %w", err)
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}

// Keys lists every settable key in file order.
func Keys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			tag, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
			if t.Field(i).Type.Kind() == reflect.Struct {
				walk(t.Field(i).Type, prefix+tag+".")
				continue
			}
			keys = append(keys, prefix+tag)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// Clone returns a copy. Config holds no maps or slices, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the config as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return buf.String()
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig   *Config
	globalConfigMu sync.RWMutex
)

// Global returns the configuration set by SetGlobal, loading it on first use.
func Global() *Config {
	globalConfigMu.RLock()
	cfg := globalConfig
	globalConfigMu.RUnlock()
	if cfg != nil {
		return cfg
	}

	loaded, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}
	if loaded == nil {
		loaded = Default()
	}

	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	if globalConfig == nil {
		globalConfig = loaded
	}
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting clears the global configuration.
func ResetGlobalForTesting() {
	SetGlobal(nil)
}
