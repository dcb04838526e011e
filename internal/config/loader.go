package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"vision":     {"gemini", "openai", "watson"},
	"directions": {"osm"},
	"transit":    {"canned", "anyllm"},
	"dialer":     {"device", "twilio"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// from the environment, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	data = ExpandEnv(data)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces ${VAR} with the value of the environment variable VAR.
// Unset variables expand to the empty string. A bare $ is left alone so
// secrets containing dollar signs survive.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must not be negative"))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, fmt.Errorf("server.tls requires both cert_file and key_file"))
	}

	// Providers
	if cfg.Providers.Vision.Name == "" {
		errs = append(errs, fmt.Errorf("providers.vision.name is required"))
	}
	validateProviderName("vision", cfg.Providers.Vision.Name)
	for i, fb := range cfg.Providers.VisionFallback {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.vision_fallback[%d].name is required", i))
		}
		validateProviderName("vision", fb.Name)
	}
	validateProviderName("directions", cfg.Providers.Directions.Name)
	validateProviderName("transit", cfg.Providers.Transit.Name)
	validateProviderName("dialer", cfg.Providers.Dialer.Name)

	if cfg.Providers.Vision.Name == "watson" && cfg.Providers.Vision.ProjectID == "" {
		errs = append(errs, fmt.Errorf("providers.vision: watson requires project_id"))
	}
	if cfg.Providers.Transit.Name == "anyllm" && cfg.Providers.Transit.Model == "" {
		errs = append(errs, fmt.Errorf("providers.transit: anyllm requires model"))
	}

	// Settings
	switch {
	case !cfg.Settings.Store.IsValid():
		errs = append(errs, fmt.Errorf("settings.store %q is invalid; valid values: memory, file, postgres", cfg.Settings.Store))
	case cfg.Settings.Store == SettingsFile && cfg.Settings.Path == "":
		errs = append(errs, fmt.Errorf("settings.path is required when store is file"))
	case cfg.Settings.Store == SettingsPostgres && cfg.Settings.DSN == "":
		errs = append(errs, fmt.Errorf("settings.dsn is required when store is postgres"))
	}
	if cfg.Settings.Store == SettingsMemory {
		slog.Warn("settings.store is memory; user settings will be lost on restart")
	}

	// Session
	s := cfg.Session
	if s.ArrivalThresholdM < 0 {
		errs = append(errs, fmt.Errorf("session.arrival_threshold_m must not be negative"))
	}
	if s.CaptureQuality < 0 || s.CaptureQuality > 1 {
		errs = append(errs, fmt.Errorf("session.capture_quality %.2f is out of range [0, 1]", s.CaptureQuality))
	}
	for name, d := range map[string]int64{
		"sos_dial_delay":         int64(s.SOSDialDelay),
		"synthesis_timeout":      int64(s.SynthesisTimeout),
		"synthesis_settle":       int64(s.SynthesisSettle),
		"dedup_window":           int64(s.DedupWindow),
		"capture_focus_delay":    int64(s.CaptureFocusDelay),
		"locate_timeout":         int64(s.LocateTimeout),
		"mock_guidance_interval": int64(s.MockGuidanceInterval),
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("session.%s must not be negative", name))
		}
	}
	if s.DemoScenesDir != "" {
		if info, err := os.Stat(s.DemoScenesDir); err != nil || !info.IsDir() {
			slog.Warn("session.demo_scenes_dir is not a readable directory; mock Explore will use canned descriptions",
				"dir", s.DemoScenesDir)
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
