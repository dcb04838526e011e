// Package settings holds the per-user preferences of UrbanSense and the
// key-value Store abstraction they persist through.
//
// Values are stored as strings, matching what the web client keeps in local
// storage: booleans as JSON (`true`/`false`), contact fields verbatim, and
// permissionsGranted as "true" or absent.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Persisted keys.
const (
	KeyVoiceCommandEnabled = "voiceCommandEnabled"
	KeySOSContactName      = "sosContactName"
	KeySOSContactNumber    = "sosContactNumber"
	KeyMockDataMode        = "mockDataMode"
	KeyPermissionsGranted  = "permissionsGranted"
)

// ErrNotFound is returned by [Store.Get] for a key that was never written.
var ErrNotFound = errors.New("settings: key not found")

// ErrUnknownKey is returned when a change names a key this package does not
// know.
var ErrUnknownKey = errors.New("settings: unknown key")

// ErrInvalidValue is returned when a change carries a value the key cannot
// hold.
var ErrInvalidValue = errors.New("settings: invalid value")

// Settings are the preferences of one user.
type Settings struct {
	VoiceCommandEnabled bool   `json:"voiceCommandEnabled" yaml:"voice_command_enabled"`
	SOSContactName      string `json:"sosContactName" yaml:"sos_contact_name"`
	SOSContactNumber    string `json:"sosContactNumber" yaml:"sos_contact_number"`
	MockDataMode        bool   `json:"mockDataMode" yaml:"mock_data_mode"`
	PermissionsGranted  bool   `json:"permissionsGranted" yaml:"permissions_granted"`
}

// Defaults returns the settings of a user who has never changed anything.
func Defaults() Settings {
	return Settings{VoiceCommandEnabled: true}
}

// HasSOSContact reports whether both the emergency contact name and number
// are configured.
func (s Settings) HasSOSContact() bool {
	return s.SOSContactName != "" && s.SOSContactNumber != ""
}

// Store is a string key-value store partitioned by profile. A profile is the
// stable identifier a device presents when it connects.
//
// Implementations must be safe for concurrent use. Writes are synchronous:
// when Set returns nil the value is durable.
type Store interface {
	// Get returns the value of key, or [ErrNotFound].
	Get(ctx context.Context, profile, key string) (string, error)

	// Load returns every key of profile. An unknown profile yields an empty
	// map.
	Load(ctx context.Context, profile string) (map[string]string, error)

	// Set writes key.
	Set(ctx context.Context, profile, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, profile, key string) error
}

// Decode builds Settings from stored values on top of base. Malformed values
// keep the base value.
func Decode(base Settings, kv map[string]string) Settings {
	s := base
	if v, ok := kv[KeyVoiceCommandEnabled]; ok {
		var b bool
		if json.Unmarshal([]byte(v), &b) == nil {
			s.VoiceCommandEnabled = b
		}
	}
	if v, ok := kv[KeyMockDataMode]; ok {
		var b bool
		if json.Unmarshal([]byte(v), &b) == nil {
			s.MockDataMode = b
		}
	}
	if v, ok := kv[KeySOSContactName]; ok {
		s.SOSContactName = v
	}
	if v, ok := kv[KeySOSContactNumber]; ok {
		s.SOSContactNumber = v
	}
	if v, ok := kv[KeyPermissionsGranted]; ok {
		s.PermissionsGranted = v == "true"
	}
	return s
}

// Encode returns the stored form of s. permissionsGranted is omitted when
// false.
func Encode(s Settings) map[string]string {
	kv := map[string]string{
		KeyVoiceCommandEnabled: strconv.FormatBool(s.VoiceCommandEnabled),
		KeySOSContactName:      s.SOSContactName,
		KeySOSContactNumber:    s.SOSContactNumber,
		KeyMockDataMode:        strconv.FormatBool(s.MockDataMode),
	}
	if s.PermissionsGranted {
		kv[KeyPermissionsGranted] = "true"
	}
	return kv
}

// Manager reads and writes the Settings of a single profile.
type Manager struct {
	store    Store
	profile  string
	defaults Settings
}

// NewManager returns a Manager for profile backed by store.
func NewManager(store Store, profile string, defaults Settings) *Manager {
	return &Manager{store: store, profile: profile, defaults: defaults}
}

// Profile returns the profile this Manager writes to.
func (m *Manager) Profile() string { return m.profile }

// Load reads the stored settings merged over the defaults.
func (m *Manager) Load(ctx context.Context) (Settings, error) {
	kv, err := m.store.Load(ctx, m.profile)
	if err != nil {
		return m.defaults, fmt.Errorf("settings: load %q: %w", m.profile, err)
	}
	return Decode(m.defaults, kv), nil
}

// Apply validates changes, writes each one synchronously, and returns s with
// the changes applied. Writing stops at the first failure.
func (m *Manager) Apply(ctx context.Context, s Settings, changes map[string]string) (Settings, error) {
	for key, value := range changes {
		switch key {
		case KeyVoiceCommandEnabled, KeyMockDataMode:
			var b bool
			if err := json.Unmarshal([]byte(value), &b); err != nil {
				return s, fmt.Errorf("%w: %s: want JSON boolean, got %q", ErrInvalidValue, key, value)
			}
			value = strconv.FormatBool(b)
		case KeySOSContactName, KeySOSContactNumber:
		case KeyPermissionsGranted:
			if value != "true" {
				if err := m.store.Delete(ctx, m.profile, key); err != nil {
					return s, fmt.Errorf("settings: delete %s: %w", key, err)
				}
				s.PermissionsGranted = false
				continue
			}
		default:
			return s, fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
		if err := m.store.Set(ctx, m.profile, key, value); err != nil {
			return s, fmt.Errorf("settings: set %s: %w", key, err)
		}
		s = Decode(s, map[string]string{key: value})
	}
	return s, nil
}

// SetVoiceCommandEnabled persists the voice command toggle.
func (m *Manager) SetVoiceCommandEnabled(ctx context.Context, s Settings, enabled bool) (Settings, error) {
	return m.Apply(ctx, s, map[string]string{KeyVoiceCommandEnabled: strconv.FormatBool(enabled)})
}

// GrantPermissions persists permissionsGranted="true".
func (m *Manager) GrantPermissions(ctx context.Context, s Settings) (Settings, error) {
	return m.Apply(ctx, s, map[string]string{KeyPermissionsGranted: "true"})
}
