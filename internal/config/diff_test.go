package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/urbansense/urbansense/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo, ListenAddr: ":8080"},
		Providers: config.ProvidersConfig{
			Vision:     config.ProviderEntry{Name: "gemini"},
			Directions: config.ProviderEntry{Name: "osm"},
		},
		Settings: config.SettingsConfig{Store: config.SettingsMemory},
		Session:  config.SessionConfig{ArrivalThresholdM: 15, VoiceLanguages: []string{"en-IN"}},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	d := config.Diff(cfg, baseConfig())
	if d.LogLevelChanged || d.SessionChanged || d.DefaultsChanged {
		t.Errorf("expected no changes, got %+v", d)
	}
	if !d.HotReloadable() {
		t.Errorf("RestartRequired = %v", d.RestartRequired)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if !d.HotReloadable() {
		t.Errorf("log level change should not need a restart: %v", d.RestartRequired)
	}
}

func TestDiff_SessionChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Session.SOSDialDelay = 5 * time.Second

	if d := config.Diff(old, new); !d.SessionChanged {
		t.Error("expected SessionChanged=true for sos_dial_delay")
	}

	new = baseConfig()
	new.Session.VoiceLanguages = []string{"en-GB"}
	if d := config.Diff(old, new); !d.SessionChanged {
		t.Error("expected SessionChanged=true for voice_languages")
	}
}

func TestDiff_DefaultsChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	off := false
	new.Settings.Defaults.VoiceCommandEnabled = &off

	d := config.Diff(old, new)
	if !d.DefaultsChanged {
		t.Error("expected DefaultsChanged=true")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.ListenAddr = ":9090"
	new.Providers.Vision.Model = "gemini-2.5-pro"
	new.Settings.Store = config.SettingsPostgres
	new.Settings.DSN = "postgres://localhost/urbansense"

	d := config.Diff(old, new)
	for _, want := range []string{"server.listen_addr", "providers", "settings.store"} {
		if !slices.Contains(d.RestartRequired, want) {
			t.Errorf("RestartRequired = %v, missing %q", d.RestartRequired, want)
		}
	}
	if d.HotReloadable() {
		t.Error("HotReloadable() = true")
	}
}
