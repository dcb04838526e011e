package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/urbansense/urbansense/internal/demo"
	"github.com/urbansense/urbansense/internal/observe"
	"github.com/urbansense/urbansense/internal/session"
	"github.com/urbansense/urbansense/internal/settings"
	"github.com/urbansense/urbansense/pkg/device"
)

// ErrShuttingDown is returned by [SessionManager.Serve] once
// [SessionManager.StopAll] has been called.
var ErrShuttingDown = errors.New("app: shutting down")

// Conn is a connected client a session can run on. *bridge.Device
// implements it.
type Conn interface {
	device.Device

	// Profile is the settings profile the client asked for.
	Profile() string

	// Welcome tells the client its session id and voice preferences.
	Welcome(ctx context.Context, sessionID string, voiceLanguages []string) error

	Close() error
}

// SessionInfo holds metadata about a running session.
type SessionInfo struct {
	SessionID string
	Profile   string
	StartedAt time.Time
	State     string
}

type running struct {
	sess   *session.Session
	info   SessionInfo
	cancel context.CancelFunc
}

// SessionManager runs one [session.Session] per connected device.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*running
	seq      uint64
	closed   bool
	wg       sync.WaitGroup

	// Hot-reloadable; captured by each new session at start.
	tun            session.Tunables
	defaults       settings.Settings
	voiceLanguages []string

	providers *Providers
	store     settings.Store
	demo      *demo.Library
	metrics   *observe.Metrics
	log       *slog.Logger
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Providers      *Providers
	Store          settings.Store
	Demo           *demo.Library
	Tunables       session.Tunables
	Defaults       settings.Settings
	VoiceLanguages []string
	Metrics        *observe.Metrics
	Logger         *slog.Logger
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &SessionManager{
		sessions:       make(map[string]*running),
		tun:            cfg.Tunables,
		defaults:       cfg.Defaults,
		voiceLanguages: slices.Clone(cfg.VoiceLanguages),
		providers:      cfg.Providers,
		store:          cfg.Store,
		demo:           cfg.Demo,
		metrics:        cfg.Metrics,
		log:            log,
	}
}

// Serve runs a session on conn and blocks until the device disconnects, ctx
// is done or [SessionManager.StopAll] is called. conn is closed on return.
func (sm *SessionManager) Serve(ctx context.Context, conn Conn) error {
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r, langs, err := sm.register(conn, cancel)
	if err != nil {
		return err
	}
	id := r.info.SessionID
	defer sm.unregister(id)

	if err := conn.Welcome(ctx, id, langs); err != nil {
		sm.log.Warn("session: welcome failed", "session_id", id, "err", err)
	}
	sm.log.Info("session started", "session_id", id, "profile", r.info.Profile)

	err = r.sess.Run(ctx)
	sm.log.Info("session ended", "session_id", id, "duration", time.Since(r.info.StartedAt).Round(time.Second))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (sm *SessionManager) register(conn Conn, cancel context.CancelFunc) (*running, []string, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return nil, nil, ErrShuttingDown
	}
	sm.seq++
	now := time.Now().UTC()
	id := fmt.Sprintf("session-%s-%d", now.Format("20060102T150405Z"), sm.seq)

	sess, err := session.New(session.Config{
		ID:         id,
		Device:     conn,
		Vision:     sm.providers.Vision,
		Directions: sm.providers.Directions,
		Transit:    sm.providers.Transit,
		Settings:   settings.NewManager(sm.store, conn.Profile(), sm.defaults),
		Demo:       sm.demo,
		Dialer:     sm.providers.Dialer,
		Tunables:   sm.tun,
		Metrics:    sm.metrics,
		Logger:     sm.log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("app: new session: %w", err)
	}

	r := &running{
		sess:   sess,
		cancel: cancel,
		info:   SessionInfo{SessionID: id, Profile: conn.Profile(), StartedAt: now},
	}
	sm.sessions[id] = r
	sm.wg.Add(1)
	return r, slices.Clone(sm.voiceLanguages), nil
}

func (sm *SessionManager) unregister(id string) {
	sm.mu.Lock()
	delete(sm.sessions, id)
	sm.mu.Unlock()
	sm.wg.Done()
}

// Update replaces the tunables, settings defaults and voice preferences used
// by sessions started from now on. Running sessions keep theirs.
func (sm *SessionManager) Update(tun session.Tunables, defaults settings.Settings, voiceLanguages []string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.tun = tun
	sm.defaults = defaults
	sm.voiceLanguages = slices.Clone(voiceLanguages)
}

// Defaults returns the settings defaults for new profiles.
func (sm *SessionManager) Defaults() settings.Settings {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.defaults
}

// ApplySettings forwards changes written outside a device to every running
// session of profile. It returns how many sessions were told.
func (sm *SessionManager) ApplySettings(profile string, changes map[string]string) int {
	sm.mu.Lock()
	var targets []*session.Session
	for _, r := range sm.sessions {
		if r.info.Profile == profile {
			targets = append(targets, r.sess)
		}
	}
	sm.mu.Unlock()

	// Posting blocks until the session loop takes it.
	for _, s := range targets {
		s.ApplySettings(changes)
	}
	return len(targets)
}

// Count returns the number of running sessions.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// Sessions returns the running sessions ordered by start time.
func (sm *SessionManager) Sessions() []SessionInfo {
	sm.mu.Lock()
	out := make([]SessionInfo, 0, len(sm.sessions))
	for _, r := range sm.sessions {
		info := r.info
		info.State = r.sess.State().String()
		out = append(out, info)
	}
	sm.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// StopAll cancels every running session, refuses new ones and waits until
// all have returned or ctx is done.
func (sm *SessionManager) StopAll(ctx context.Context) error {
	sm.mu.Lock()
	sm.closed = true
	n := len(sm.sessions)
	for _, r := range sm.sessions {
		r.cancel()
	}
	sm.mu.Unlock()

	done := make(chan struct{})
	go func() {
		sm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		sm.log.Info("sessions stopped", "count", n)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("app: stop sessions: %w", ctx.Err())
	}
}
