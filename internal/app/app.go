// Package app wires all UrbanSense subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates the settings store, the
// demo scene library and the session manager, Run serves HTTP until the
// context is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithSettingsStore,
// WithDemoLibrary, ...). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/urbansense/urbansense/internal/bridge"
	"github.com/urbansense/urbansense/internal/config"
	"github.com/urbansense/urbansense/internal/demo"
	"github.com/urbansense/urbansense/internal/health"
	"github.com/urbansense/urbansense/internal/observe"
	"github.com/urbansense/urbansense/internal/resilience"
	"github.com/urbansense/urbansense/internal/server"
	"github.com/urbansense/urbansense/internal/session"
	"github.com/urbansense/urbansense/internal/settings"
	"github.com/urbansense/urbansense/internal/settings/file"
	"github.com/urbansense/urbansense/internal/settings/memory"
	"github.com/urbansense/urbansense/internal/settings/postgres"
)

var _ Conn = (*bridge.Device)(nil)

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	store          settings.Store
	demo           *demo.Library
	sessions       *SessionManager
	metrics        *observe.Metrics
	metricsHandler http.Handler
	log            *slog.Logger

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSettingsStore injects a settings store instead of creating one from
// config.
func WithSettingsStore(s settings.Store) Option {
	return func(a *App) { a.store = s }
}

// WithDemoLibrary injects the mock-mode scene library.
func WithDemoLibrary(l *demo.Library) Option {
	return func(a *App) { a.demo = l }
}

// WithMetrics sets the metrics instruments. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App. providers comes from [BuildProviders] (or tests).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("app: config must not be nil")
	case providers == nil || providers.Vision == nil || providers.Directions == nil || providers.Transit == nil:
		return nil, errors.New("app: vision, directions and transit providers are required")
	}

	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Settings store ────────────────────────────────────────────────
	if err := a.initSettings(ctx); err != nil {
		return nil, fmt.Errorf("app: init settings: %w", err)
	}

	// ── 2. Demo scenes ───────────────────────────────────────────────────
	a.initDemo()

	// ── 3. Sessions ──────────────────────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		Providers:      providers,
		Store:          a.store,
		Demo:           a.demo,
		Tunables:       SessionTunables(cfg.Session),
		Defaults:       cfg.Settings.Defaults.Resolve(),
		VoiceLanguages: cfg.Session.VoiceLanguages,
		Metrics:        a.metrics,
		Logger:         a.log,
	})
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initSettings(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	sc := a.cfg.Settings
	switch sc.Store {
	case config.SettingsFile:
		st, err := file.Open(sc.Path)
		if err != nil {
			return err
		}
		a.store = st
		a.log.Info("settings: file store", "path", sc.Path)

	case config.SettingsPostgres:
		st, err := postgres.NewStore(ctx, sc.DSN)
		if err != nil {
			return err
		}
		a.store = st
		a.closers = append(a.closers, func() error {
			st.Close()
			return nil
		})
		a.log.Info("settings: postgres store")

	default:
		a.store = memory.New()
		a.log.Warn("settings: in-memory store, preferences are lost on restart")
	}
	return nil
}

func (a *App) initDemo() {
	if a.demo != nil {
		return
	}
	if dir := a.cfg.Session.DemoScenesDir; dir != "" {
		a.demo = demo.NewLibrary(os.DirFS(dir))
		return
	}
	a.demo = demo.NewLibrary(nil)
}

// SessionTunables maps the session config section onto session tunables.
// Zero values fall back to the session defaults.
func SessionTunables(c config.SessionConfig) session.Tunables {
	return session.Tunables{
		ArrivalThreshold:     c.ArrivalThresholdM,
		SOSDialDelay:         c.SOSDialDelay,
		SynthesisTimeout:     c.SynthesisTimeout,
		SynthesisSettle:      c.SynthesisSettle,
		DedupWindow:          c.DedupWindow,
		CaptureFocusDelay:    c.CaptureFocusDelay,
		CaptureQuality:       c.CaptureQuality,
		LocateTimeout:        c.LocateTimeout,
		DemoGuidanceInterval: c.MockGuidanceInterval,
		PhoneticCommands:     c.PhoneticCommands,
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Store returns the settings store.
func (a *App) Store() settings.Store { return a.store }

// Checkers returns the readiness checks for the configured backends.
func (a *App) Checkers() []health.Checker {
	checks := []health.Checker{health.SettingsStore(a.store)}
	if p, ok := a.store.(health.Pinger); ok {
		checks = append(checks, health.Ping("settings_db", p))
	}
	if p, ok := a.providers.Directions.(health.Pinger); ok {
		checks = append(checks, health.Ping("directions", p))
	}
	if vf, ok := a.providers.Vision.(interface {
		States() map[string]resilience.State
	}); ok {
		checks = append(checks, health.Breakers("vision", vf.States))
	}
	return checks
}

// Handler returns the HTTP router.
func (a *App) Handler() http.Handler {
	var bopts []bridge.Option
	bopts = append(bopts, bridge.WithLogger(a.log))
	if origins := a.cfg.Server.AllowedOrigins; len(origins) > 0 {
		bopts = append(bopts, bridge.WithOriginPatterns(origins...))
	}

	return server.New(server.Config{
		Store:    a.store,
		Defaults: a.sessions.Defaults,
		Connect: func(ctx context.Context, dev *bridge.Device) {
			if err := a.sessions.Serve(ctx, dev); err != nil {
				a.log.Warn("session failed", "profile", dev.Profile(), "err", err)
			}
		},
		SettingsChanged: func(profile string, changes map[string]string) {
			if n := a.sessions.ApplySettings(profile, changes); n > 0 {
				a.log.Debug("settings pushed to running sessions", "profile", profile, "sessions", n)
			}
		},
		Health:         health.New(a.Checkers()...),
		Metrics:        a.metricsHandler,
		RequestMetrics: a.metrics,
		BridgeOptions:  bopts,
		Logger:         a.log,
	})
}

// ApplyConfig applies the hot-reloadable parts of a reloaded config. The
// log level is the caller's job since it owns the handler.
func (a *App) ApplyConfig(next *config.Config, d config.ConfigDiff) {
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config: changes need a restart to apply", "fields", d.RestartRequired)
	}
	if d.SessionChanged || d.DefaultsChanged {
		a.sessions.Update(SessionTunables(next.Session), next.Settings.Defaults.Resolve(), next.Session.VoiceLanguages)
		a.log.Info("config: new sessions use the reloaded session settings")
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured address and blocks until ctx is
// cancelled or the listener fails. On cancellation it stops all sessions and
// drains the server within the shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		// http.Server does not track hijacked WebSocket connections.
		if err := a.sessions.StopAll(sctx); err != nil {
			a.log.Warn("session drain incomplete", "err", err)
		}
		return srv.Shutdown(sctx)
	})

	a.log.Info("app running", "addr", a.cfg.Server.ListenAddr, "tls", a.cfg.Server.TLS != nil)
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops remaining sessions and tears down all subsystems. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		if err := a.sessions.StopAll(ctx); err != nil {
			shutdownErr = err
			return
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
