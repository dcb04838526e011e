// Package server builds the HTTP surface of UrbanSense: the device WebSocket,
// the settings API used by the settings screen, health probes and the
// Prometheus scrape endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/urbansense/urbansense/internal/bridge"
	"github.com/urbansense/urbansense/internal/health"
	"github.com/urbansense/urbansense/internal/observe"
	"github.com/urbansense/urbansense/internal/settings"
)

// maxSettingsBody bounds PUT /api/settings bodies.
const maxSettingsBody = 16 << 10

// Config holds the dependencies of the router. Store, Defaults and Connect
// are required.
type Config struct {
	// Store backs the settings API.
	Store settings.Store

	// Defaults returns the settings of a profile that has stored nothing.
	// It is called per request so hot-reloaded defaults apply.
	Defaults func() settings.Settings

	// Connect runs a session on a freshly accepted device and blocks until
	// the session ends.
	Connect func(ctx context.Context, dev *bridge.Device)

	// SettingsChanged is told about changes written through the settings
	// API so running sessions of that profile pick them up. Optional.
	SettingsChanged func(profile string, changes map[string]string)

	// Health serves /healthz and /readyz. Optional.
	Health *health.Handler

	// Metrics serves /metrics. Optional.
	Metrics http.Handler

	// RequestMetrics records per-request spans and durations. Optional.
	RequestMetrics *observe.Metrics

	BridgeOptions []bridge.Option

	Logger *slog.Logger
}

type server struct {
	cfg Config
	log *slog.Logger
}

// New returns the router.
func New(cfg Config) http.Handler {
	s := &server{cfg: cfg, log: cfg.Logger}
	if s.log == nil {
		s.log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if cfg.RequestMetrics != nil {
		r.Use(observe.Middleware(cfg.RequestMetrics))
	}

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	r.Get("/ws", s.handleDevice)
	r.Get("/api/settings/{profile}", s.handleGetSettings)
	r.Put("/api/settings/{profile}", s.handlePutSettings)
	return r
}

func (s *server) handleDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := bridge.Accept(w, r, s.cfg.BridgeOptions...)
	if err != nil {
		s.log.Warn("server: device handshake failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	s.cfg.Connect(r.Context(), dev)
}

func (s *server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	profile := chi.URLParam(r, "profile")
	st, err := s.manager(profile).Load(r.Context())
	if err != nil {
		s.log.Error("server: load settings", "profile", profile, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handlePutSettings takes a JSON object of settings keys. Values may be
// JSON booleans or strings.
func (s *server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	profile := chi.URLParam(r, "profile")

	var body map[string]json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}
	changes, err := rawChanges(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m := s.manager(profile)
	cur, err := m.Load(r.Context())
	if err != nil {
		s.log.Error("server: load settings", "profile", profile, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	next, err := m.Apply(r.Context(), cur, changes)
	switch {
	case errors.Is(err, settings.ErrUnknownKey), errors.Is(err, settings.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.Error("server: save settings", "profile", profile, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	if s.cfg.SettingsChanged != nil && len(changes) > 0 {
		s.cfg.SettingsChanged(profile, changes)
	}
	s.log.Info("server: settings updated", "profile", profile, "keys", len(changes))
	writeJSON(w, http.StatusOK, next)
}

func (s *server) manager(profile string) *settings.Manager {
	defaults := settings.Defaults()
	if s.cfg.Defaults != nil {
		defaults = s.cfg.Defaults()
	}
	return settings.NewManager(s.cfg.Store, profile, defaults)
}

// rawChanges converts JSON values to the stored string form: strings are
// unquoted, booleans kept as their literal.
func rawChanges(body map[string]json.RawMessage) (map[string]string, error) {
	out := make(map[string]string, len(body))
	for k, v := range body {
		var str string
		if err := json.Unmarshal(v, &str); err == nil {
			out[k] = str
			continue
		}
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			out[k] = strconv.FormatBool(b)
			continue
		}
		return nil, errors.New(k + ": value must be a string or boolean")
	}
	return out, nil
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
