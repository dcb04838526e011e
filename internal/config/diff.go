package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SessionChanged is true when any session tunable changed. New values
	// apply to sessions that connect after the reload.
	SessionChanged bool

	// DefaultsChanged is true when the settings defaults for new users changed.
	DefaultsChanged bool

	// RestartRequired names the sections that changed but are only read at
	// startup (listen address, TLS, providers, settings store).
	RestartRequired []string
}

// HotReloadable reports whether every change in d can be applied without a
// restart.
func (d ConfigDiff) HotReloadable() bool { return len(d.RestartRequired) == 0 }

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.SessionChanged = !reflect.DeepEqual(old.Session, new.Session)
	d.DefaultsChanged = old.Settings.Defaults.Resolve() != new.Settings.Defaults.Resolve()

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if !reflect.DeepEqual(old.Server.AllowedOrigins, new.Server.AllowedOrigins) {
		d.RestartRequired = append(d.RestartRequired, "server.allowed_origins")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Settings.Store != new.Settings.Store ||
		old.Settings.Path != new.Settings.Path ||
		old.Settings.DSN != new.Settings.DSN {
		d.RestartRequired = append(d.RestartRequired, "settings.store")
	}
	return d
}
