// Package config provides the configuration schema, loader, and provider registry
// for the UrbanSense server.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/urbansense/urbansense/internal/settings"
)

// LogLevel controls log verbosity for the UrbanSense server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SettingsBackend selects where user settings are persisted.
type SettingsBackend string

const (
	SettingsMemory   SettingsBackend = "memory"
	SettingsFile     SettingsBackend = "file"
	SettingsPostgres SettingsBackend = "postgres"
)

// IsValid reports whether b is a recognised settings backend.
func (b SettingsBackend) IsValid() bool {
	switch b {
	case SettingsMemory, SettingsFile, SettingsPostgres:
		return true
	}
	return false
}

// Config is the root configuration structure for UrbanSense.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Settings  SettingsConfig  `yaml:"settings"`
	Session   SessionConfig   `yaml:"session"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ShutdownTimeout bounds graceful shutdown. Default: 15s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AllowedOrigins lists the origins allowed to open the device WebSocket.
	// Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares which implementation to use for each oracle. Each
// entry selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	Vision ProviderEntry `yaml:"vision"`

	// VisionFallback lists providers tried in order when Vision fails.
	VisionFallback []ProviderEntry `yaml:"vision_fallback"`

	Directions ProviderEntry `yaml:"directions"`
	Transit    ProviderEntry `yaml:"transit"`

	// Dialer places SOS calls from the server. Empty means the device dials.
	Dialer ProviderEntry `yaml:"dialer"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini", "osm").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// ProjectID is required by providers that scope requests to a project
	// (watsonx).
	ProjectID string `yaml:"project_id"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// OptionString returns Options[key] formatted as a string, or "".
func (e ProviderEntry) OptionString(key string) string {
	v, ok := e.Options[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// OptionFloat returns Options[key] as a float64. ok is false when the key is
// missing or not numeric.
func (e ProviderEntry) OptionFloat(key string) (f float64, ok bool) {
	switch v := e.Options[key].(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// OptionDuration returns Options[key] parsed as a duration.
func (e ProviderEntry) OptionDuration(key string) (time.Duration, bool) {
	s := e.OptionString(key)
	if s == "" {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	return d, err == nil
}

// SettingsConfig selects the settings store and the defaults for new users.
type SettingsConfig struct {
	Store SettingsBackend `yaml:"store"`

	// Path is the JSON file used by the file store.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string used by the postgres store.
	DSN string `yaml:"dsn"`

	Defaults SettingsDefaults `yaml:"defaults"`
}

// SettingsDefaults overrides [settings.Defaults] for users who have not
// changed a value. Nil fields keep the built-in default.
type SettingsDefaults struct {
	VoiceCommandEnabled *bool   `yaml:"voice_command_enabled"`
	MockDataMode        *bool   `yaml:"mock_data_mode"`
	SOSContactName      *string `yaml:"sos_contact_name"`
	SOSContactNumber    *string `yaml:"sos_contact_number"`
}

// Resolve applies d over [settings.Defaults].
func (d SettingsDefaults) Resolve() settings.Settings {
	s := settings.Defaults()
	if d.VoiceCommandEnabled != nil {
		s.VoiceCommandEnabled = *d.VoiceCommandEnabled
	}
	if d.MockDataMode != nil {
		s.MockDataMode = *d.MockDataMode
	}
	if d.SOSContactName != nil {
		s.SOSContactName = *d.SOSContactName
	}
	if d.SOSContactNumber != nil {
		s.SOSContactNumber = *d.SOSContactNumber
	}
	return s
}

// SessionConfig holds per-session tunables. Zero values mean the built-in
// default. Changes apply to sessions started after a reload.
type SessionConfig struct {
	ArrivalThresholdM    float64       `yaml:"arrival_threshold_m"`
	SOSDialDelay         time.Duration `yaml:"sos_dial_delay"`
	SynthesisTimeout     time.Duration `yaml:"synthesis_timeout"`
	SynthesisSettle      time.Duration `yaml:"synthesis_settle"`
	DedupWindow          time.Duration `yaml:"dedup_window"`
	CaptureFocusDelay    time.Duration `yaml:"capture_focus_delay"`
	CaptureQuality       float64       `yaml:"capture_quality"`
	LocateTimeout        time.Duration `yaml:"locate_timeout"`
	MockGuidanceInterval time.Duration `yaml:"mock_guidance_interval"`
	PhoneticCommands     bool          `yaml:"phonetic_commands"`

	// VoiceLanguages lists preferred synthesis voice languages, most
	// preferred first. Sent to devices when they connect.
	VoiceLanguages []string `yaml:"voice_languages"`

	// DemoScenesDir holds the images used by Explore in mock data mode.
	DemoScenesDir string `yaml:"demo_scenes_dir"`
}

// DefaultVoiceLanguages is used when session.voice_languages is empty.
var DefaultVoiceLanguages = []string{"en-IN", "en-GB", "en-US", "en"}

// Defaults used by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultDirections      = "osm"
	DefaultTransit         = "canned"
)

// ApplyDefaults fills unset fields that have a sensible default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Providers.Directions.Name == "" {
		cfg.Providers.Directions.Name = DefaultDirections
	}
	if cfg.Providers.Transit.Name == "" {
		cfg.Providers.Transit.Name = DefaultTransit
	}
	if cfg.Settings.Store == "" {
		cfg.Settings.Store = SettingsMemory
	}
	if len(cfg.Session.VoiceLanguages) == 0 {
		cfg.Session.VoiceLanguages = DefaultVoiceLanguages
	}
}
