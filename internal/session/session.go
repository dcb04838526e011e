// Package session runs the per-device UrbanSense state machine.
//
// A [Session] owns one connected [device.Device]. Everything it does happens
// on a single event-loop goroutine started by [Session.Run]: device events,
// speech completions, oracle results, position updates and timers are all
// posted to the loop as closures and handled one at a time. Oracle calls and
// device round-trips run on helper goroutines that only post their results
// back, tagged with the generation of the state entry that started them so
// stale results are dropped.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/urbansense/urbansense/internal/command"
	"github.com/urbansense/urbansense/internal/demo"
	"github.com/urbansense/urbansense/internal/navigation"
	"github.com/urbansense/urbansense/internal/observe"
	"github.com/urbansense/urbansense/internal/settings"
	"github.com/urbansense/urbansense/internal/speech"
	"github.com/urbansense/urbansense/pkg/device"
	"github.com/urbansense/urbansense/pkg/geo"
	"github.com/urbansense/urbansense/pkg/provider/directions"
	"github.com/urbansense/urbansense/pkg/provider/transit"
	"github.com/urbansense/urbansense/pkg/provider/vision"
)

// Tunables are the per-session timing and threshold knobs.
type Tunables struct {
	// ArrivalThreshold is the distance in meters under which a step counts
	// as reached.
	ArrivalThreshold float64

	// SOSDialDelay is the pause between the SOS confirmation and the call.
	SOSDialDelay time.Duration

	SynthesisTimeout time.Duration
	SynthesisSettle  time.Duration
	DedupWindow      time.Duration

	// CaptureFocusDelay is how long the camera runs before the frame.
	CaptureFocusDelay time.Duration
	CaptureQuality    float64

	// LocateTimeout bounds one-shot position fetches.
	LocateTimeout time.Duration

	// DemoGuidanceInterval is how often guidance is requested automatically
	// while navigating in mock data mode.
	DemoGuidanceInterval time.Duration

	// PhoneticCommands enables the sound-alike command fallback.
	PhoneticCommands bool
}

// DefaultTunables returns the production defaults.
func DefaultTunables() Tunables {
	return Tunables{
		ArrivalThreshold:     navigation.DefaultArrivalThreshold,
		SOSDialDelay:         2 * time.Second,
		SynthesisTimeout:     speech.DefaultTimeout,
		SynthesisSettle:      speech.DefaultSettle,
		DedupWindow:          speech.DefaultDedupWindow,
		CaptureFocusDelay:    500 * time.Millisecond,
		CaptureQuality:       0.8,
		LocateTimeout:        navigation.DefaultLocateTimeout,
		DemoGuidanceInterval: 15 * time.Second,
	}
}

// withDefaults fills zero fields from [DefaultTunables].
func (t Tunables) withDefaults() Tunables {
	d := DefaultTunables()
	if t.ArrivalThreshold <= 0 {
		t.ArrivalThreshold = d.ArrivalThreshold
	}
	if t.SOSDialDelay <= 0 {
		t.SOSDialDelay = d.SOSDialDelay
	}
	if t.SynthesisTimeout <= 0 {
		t.SynthesisTimeout = d.SynthesisTimeout
	}
	if t.SynthesisSettle <= 0 {
		t.SynthesisSettle = d.SynthesisSettle
	}
	if t.DedupWindow <= 0 {
		t.DedupWindow = d.DedupWindow
	}
	if t.CaptureFocusDelay <= 0 {
		t.CaptureFocusDelay = d.CaptureFocusDelay
	}
	if t.CaptureQuality <= 0 || t.CaptureQuality > 1 {
		t.CaptureQuality = d.CaptureQuality
	}
	if t.LocateTimeout <= 0 {
		t.LocateTimeout = d.LocateTimeout
	}
	if t.DemoGuidanceInterval <= 0 {
		t.DemoGuidanceInterval = d.DemoGuidanceInterval
	}
	return t
}

// Config holds everything needed to create a [Session].
//
// ID, Device, Vision, Directions, Transit and Settings are required. Demo,
// Dialer, Metrics and Logger are optional.
type Config struct {
	// ID identifies the session in logs.
	ID string

	Device     device.Device
	Vision     vision.Provider
	Directions directions.Provider
	Transit    transit.Provider

	// Settings reads and persists the user's preferences.
	Settings *settings.Manager

	// Demo supplies scene images for mock data mode. When nil, mock Explore
	// speaks the canned scene description without calling the vision oracle.
	Demo *demo.Library

	// Dialer places SOS calls. Nil means the device dials.
	Dialer device.Dialer

	Tunables Tunables

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Session is the state machine for one connected device.
type Session struct {
	id         string
	dev        device.Device
	vision     vision.Provider
	directions directions.Provider
	transit    transit.Provider
	prefs      *settings.Manager
	demo       *demo.Library
	dialer     device.Dialer
	tun        Tunables
	metrics    *observe.Metrics
	log        *slog.Logger

	synth   *speech.Channel
	rec     *speech.Recognition
	parser  *command.Parser
	tracker *navigation.Tracker

	inbox chan func()
	done  chan struct{}
	ctx   context.Context

	// Everything below is owned by the event loop.

	state    ViewState
	gen      uint64
	settings settings.Settings

	progress    *navigation.Progress
	position    *geo.Coordinates
	destination string
	instruction string
	description string
	errMsg      string
	calling     bool

	// exploreLocked is held from the start of Explore until its result has
	// been spoken. Entering any state outside the explore flow releases it.
	exploreLocked bool

	// hold suppresses listening until the next state entry, while a flow
	// that already consumed the utterance is finishing up in place.
	hold bool

	arriving         bool
	tracking         bool
	guidanceInFlight bool
	guidanceTimer    *time.Timer
	voiceUnsupported bool

	published atomic.Int32
}

// New creates a Session from cfg. The session does nothing until [Session.Run]
// is called.
//
// Errors are prefixed with "session: ".
func New(cfg Config) (*Session, error) {
	switch {
	case cfg.ID == "":
		return nil, errors.New("session: ID must not be empty")
	case cfg.Device == nil:
		return nil, errors.New("session: Device must not be nil")
	case cfg.Vision == nil:
		return nil, errors.New("session: Vision must not be nil")
	case cfg.Directions == nil:
		return nil, errors.New("session: Directions must not be nil")
	case cfg.Transit == nil:
		return nil, errors.New("session: Transit must not be nil")
	case cfg.Settings == nil:
		return nil, errors.New("session: Settings must not be nil")
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session_id", cfg.ID)
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = cfg.Device
	}
	tun := cfg.Tunables.withDefaults()

	s := &Session{
		id:         cfg.ID,
		dev:        cfg.Device,
		vision:     cfg.Vision,
		directions: cfg.Directions,
		transit:    cfg.Transit,
		prefs:      cfg.Settings,
		demo:       cfg.Demo,
		dialer:     dialer,
		tun:        tun,
		metrics:    metrics,
		log:        log,
		inbox:      make(chan func(), 64),
		done:       make(chan struct{}),
		ctx:        context.Background(),
		state:      Idle,
		settings:   settings.Defaults(),
	}

	s.synth = speech.NewChannel(cfg.Device,
		speech.WithTimeout(tun.SynthesisTimeout),
		speech.WithSettle(tun.SynthesisSettle),
		speech.WithDedupWindow(tun.DedupWindow),
		speech.WithLogger(log),
		speech.WithMetrics(metrics),
		speech.WithActivityHook(func() { s.post(s.reconcile) }),
	)
	s.rec = speech.NewRecognition(cfg.Device, log)

	var popts []command.ParserOption
	if tun.PhoneticCommands {
		popts = append(popts, command.WithPhonetic(command.NewMatcher()))
	}
	s.parser = command.NewParser(popts...)
	s.tracker = navigation.NewTracker(cfg.Device,
		navigation.WithLocateTimeout(tun.LocateTimeout),
		navigation.WithTrackerLogger(log),
	)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current view state. It is safe to call from any
// goroutine; the value may lag the event loop by one event.
func (s *Session) State() ViewState { return ViewState(s.published.Load()) }

// Profile returns the settings profile this session reads and writes.
func (s *Session) Profile() string { return s.prefs.Profile() }

// Run processes events until ctx is done or the device disconnects. A
// disconnect returns nil; cancellation returns ctx.Err().
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.ctx = ctx

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(context.Background(), -1)

	// close(done) runs first so that callbacks posting during shutdown are
	// dropped instead of blocking.
	defer s.shutdown()
	defer close(s.done)

	s.log.Info("session: started")
	s.start()

	events := s.dev.Events()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("session: stopped", "reason", ctx.Err())
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				s.log.Info("session: device disconnected")
				return nil
			}
			s.handleEvent(ev)
		case fn := <-s.inbox:
			fn()
		}
	}
}

// ApplySettings merges raw key/value changes made outside the device (for
// example through the settings API) into the running session. Persisting
// them is the caller's job.
func (s *Session) ApplySettings(kv map[string]string) {
	s.post(func() {
		s.settings = settings.Decode(s.settings, kv)
		s.settingsChanged()
	})
}

func (s *Session) start() {
	st, err := s.prefs.Load(s.ctx)
	if err != nil {
		s.log.Warn("session: load settings, using defaults", "err", err)
	}
	s.settings = st

	if !s.rec.Available() {
		s.voiceUnsupported = true
		if s.settings.VoiceCommandEnabled {
			s.settings.VoiceCommandEnabled = false
			s.speak(MsgRecognitionUnsupported, nil)
		}
	}
	s.publish()
	s.render()

	if !s.settings.PermissionsGranted {
		s.requestPermissions()
	}
}

func (s *Session) shutdown() {
	s.stopNavigationTracking()
	_ = s.synth.Close()
	s.rec.Stop(context.Background())
	s.log.Info("session: closed")
}

func (s *Session) handleEvent(ev device.Event) {
	switch ev.Kind {
	case device.EventRecognition:
		s.onRecognition(ev.Recognition)
	case device.EventTap:
		s.onTap(ev.Target)
	case device.EventSettings:
		s.onSettings(ev.Settings)
	default:
		s.log.Debug("session: unknown event kind", "kind", ev.Kind)
	}
}

// post schedules fn on the event loop. It is a no-op once the loop has
// exited.
func (s *Session) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

// async runs work on a helper goroutine and posts the closure it returns to
// the loop, provided the state entry that started it is still current.
func (s *Session) async(work func(ctx context.Context) func()) {
	gen := s.gen
	ctx := s.ctx
	go func() {
		apply := work(ctx)
		s.post(func() {
			if s.gen != gen {
				s.log.Debug("session: dropped stale result", "gen", gen, "current", s.gen)
				return
			}
			apply()
		})
	}()
}

// transition fires t. It reports false and changes nothing if the current
// state has no edge for t.
func (s *Session) transition(t trigger) bool {
	to, ok := next(s.state, t)
	if !ok {
		s.log.Debug("session: ignored trigger", "state", s.state, "trigger", t)
		return false
	}
	s.enter(to)
	return true
}

// enter makes to the current state and runs its entry actions. Every entry,
// including re-entry of the same state, starts a new generation.
func (s *Session) enter(to ViewState) {
	from := s.state
	s.state = to
	s.gen++
	s.hold = false
	s.publish()

	if from == NavigationActive && to != NavigationActive {
		s.stopNavigationTracking()
	}
	if !to.exploring() {
		s.exploreLocked = false
	}
	if to.Listening() {
		s.rec.ResetHandled()
	}

	s.log.Debug("session: transition", "from", from, "to", to)
	s.metrics.RecordTransition(s.ctx, from.String(), to.String())

	s.onEnter(to)
	s.render()
	s.reconcile()
}

func (s *Session) publish() { s.published.Store(int32(s.state)) }

// speak queues text. then, if non-nil, runs on the loop after the utterance
// finishes. Listening is reconciled afterwards either way.
func (s *Session) speak(text string, then func()) {
	s.synth.Speak(text, func() {
		s.post(func() {
			if then != nil {
				then()
			}
			s.reconcile()
		})
	})
}

// speakInState is speak with then dropped if the state was left (or
// re-entered) while the utterance was playing.
func (s *Session) speakInState(text string, then func()) {
	gen := s.gen
	s.speak(text, func() {
		if s.gen == gen && then != nil {
			then()
		}
	})
}

// reconcile starts the recognizer exactly when the current state listens,
// voice commands are on, nothing is being spoken and no flow holds the
// microphone.
func (s *Session) reconcile() {
	want := s.state.Listening() &&
		s.settings.VoiceCommandEnabled &&
		!s.hold &&
		!s.synth.Active()
	if want == s.rec.Listening() {
		return
	}
	s.rec.Reconcile(s.ctx, want)
	s.render()
}

func (s *Session) pulse() {
	s.dev.Pulse(s.ctx, device.ConfirmationPulse)
}
