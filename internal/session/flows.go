package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urbansense/urbansense/internal/demo"
	"github.com/urbansense/urbansense/internal/navigation"
	"github.com/urbansense/urbansense/internal/observe"
	"github.com/urbansense/urbansense/pkg/device"
	"github.com/urbansense/urbansense/pkg/geo"
	"github.com/urbansense/urbansense/pkg/provider/directions"
	"github.com/urbansense/urbansense/pkg/provider/transit"
	"github.com/urbansense/urbansense/pkg/provider/vision"
	"github.com/urbansense/urbansense/pkg/types"
)

// Spoken and displayed messages.
const (
	MsgDestinationPrompt      = "Where would you like to go?"
	MsgTransitPrompt          = "Which station or stop would you like to go to?"
	MsgCancellingNavigation   = "Okay, cancelling navigation."
	MsgNoSOSContact           = "No emergency contact is set. Please add one in the settings screen."
	MsgVoiceDisabled          = "Voice commands are disabled. Please enable them in settings to use this feature."
	MsgRecognitionUnsupported = "Voice commands are not supported on this device."
	MsgLocationUnavailable    = "Could not get your location. Please ensure location services are enabled and permissions are granted."
	MsgCameraUnavailable      = "Could not access the camera. Please make sure camera permission is granted and try again."
	MsgGuidancePending        = "Getting updated guidance..."
	MsgPermissionsRequired    = "UrbanSense needs access to your location, microphone, and camera to function. Please grant these permissions to continue."
	MsgTransitFailed          = "Sorry, I couldn't get transit suggestions right now. Please try again."
)

// confirmationMessage is spoken when a route is found.
func confirmationMessage(r directions.RouteDetails) string {
	return fmt.Sprintf("I found %s, which is about %s away. Do you want to proceed?",
		r.DestinationName, geo.FormatDistance(float64(r.TotalDistance)))
}

func sosMessage(name string, demoMode bool) string {
	if demoMode {
		return fmt.Sprintf("Your current location is shared with %s. We are connecting you via call to them now.", name)
	}
	return fmt.Sprintf("Sharing your current location with %s and calling now.", name)
}

// onEnter runs the entry action of state v.
func (s *Session) onEnter(v ViewState) {
	switch v {
	case Capturing:
		s.capture()
	case Result:
		s.speakInState(s.description, func() {
			s.exploreLocked = false
			s.transition(trIdle)
		})
	case Error:
		s.speakInState(s.errMsg, s.afterError)
	case PromptingForDestination:
		s.speakInState(MsgDestinationPrompt, func() { s.transition(trDestinationPrompted) })
	case PromptingForTransitDestination:
		s.speakInState(MsgTransitPrompt, func() { s.transition(trTransitPrompted) })
	case FetchingDirections:
		s.fetchDirections()
	case AwaitingNavigationConfirmation:
		if r, ok := s.progress.Route(); ok {
			s.speak(confirmationMessage(r), nil)
		}
	case NavigationActive:
		s.startNavigationTracking()
	case ProcessingTransitSuggestion:
		s.fetchTransitSuggestion()
	}
}

// fail shows msg on the error screen and speaks it.
func (s *Session) fail(msg string) {
	s.errMsg = msg
	s.transition(trFail)
}

func (s *Session) afterError() {
	if s.settings.VoiceCommandEnabled {
		s.transition(trListen)
		return
	}
	s.reset()
}

// reset stops listening, tears down any navigation and returns to Idle with
// the screen cleared.
func (s *Session) reset() {
	s.rec.Stop(s.ctx)
	s.teardownNavigation()
	s.description = ""
	s.errMsg = ""
	s.enter(Idle)
}

// --- Explore ---

func (s *Session) startExplore() {
	if s.exploreLocked {
		s.log.Debug("session: explore already running")
		return
	}
	demoMode := s.settings.MockDataMode
	t := trExplore
	if demoMode {
		t = trExploreDemo
	}
	if _, ok := next(s.state, t); !ok {
		return
	}
	s.exploreLocked = true
	s.transition(t)
	if !demoMode {
		return
	}

	scene := s.pickScene()
	s.async(func(ctx context.Context) func() {
		if s.demo == nil {
			return func() { s.showDescription(scene.Description) }
		}
		img, err := s.demo.Image(scene)
		if err != nil {
			s.log.Warn("session: demo scene image", "scene", scene.File, "err", err)
			return func() { s.showDescription(scene.Description) }
		}
		return s.analyze(ctx, img)
	})
}

func (s *Session) pickScene() demo.Scene {
	if s.demo != nil {
		return s.demo.Pick()
	}
	return demo.Scenes[0]
}

func (s *Session) capture() {
	opts := device.CaptureOptions{
		FocusDelayMillis: int(s.tun.CaptureFocusDelay / time.Millisecond),
		Quality:          s.tun.CaptureQuality,
	}
	s.async(func(ctx context.Context) func() {
		img, err := s.dev.Capture(ctx, opts)
		if err != nil {
			s.log.Warn("session: capture", "err", err)
			return func() { s.fail(MsgCameraUnavailable) }
		}
		return func() {
			if s.transition(trCaptured) {
				s.async(func(ctx context.Context) func() { return s.analyze(ctx, img) })
			}
		}
	})
}

// analyze runs on a helper goroutine and returns the loop continuation.
func (s *Session) analyze(ctx context.Context, img types.Image) func() {
	ctx, done := s.metrics.TrackCall(ctx, "vision", "analyze")
	text, err := s.vision.AnalyzeImage(ctx, img)
	done(err)
	if err != nil {
		observe.Logger(ctx, s.log).Warn("session: analyze image", "err", err)
		return func() { s.fail(vision.AnalysisFailedMessage) }
	}
	return func() { s.showDescription(text) }
}

func (s *Session) showDescription(text string) {
	s.description = text
	s.transition(trAnalyzed)
}

// --- Navigation ---

func (s *Session) startNavigation() {
	if !s.requireVoice() {
		return
	}
	if _, ok := next(s.state, trNavigate); !ok {
		return
	}
	s.progress = nil
	s.destination = ""
	s.transition(trNavigate)
}

func (s *Session) fetchDirections() {
	dest := s.destination
	demoMode := s.settings.MockDataMode
	s.async(func(ctx context.Context) func() {
		var (
			pos      geo.Coordinates
			provider directions.Provider = s.directions
		)
		if demoMode {
			pos = demo.Position
			provider = demo.Directions{}
		} else {
			var err error
			if pos, err = s.tracker.Current(ctx); err != nil {
				s.log.Warn("session: locate for directions", "err", err)
				return func() { s.fail(MsgLocationUnavailable) }
			}
		}

		ctx, done := s.metrics.TrackCall(ctx, "directions", "route")
		route, err := provider.GetDirections(ctx, pos, dest)
		done(err)
		if err != nil {
			observe.Logger(ctx, s.log).Warn("session: get directions", "query", dest, "err", err)
			return func() { s.fail(directions.UserMessage(err)) }
		}
		if len(route.Steps) == 0 {
			return func() { s.fail(directions.MsgNoRoute) }
		}
		return func() {
			s.position = &pos
			s.progress = navigation.NewProgress(route)
			s.transition(trRouteFound)
		}
	})
}

func (s *Session) confirmNavigation() {
	s.pulse()
	s.transition(trConfirm)
}

func (s *Session) rejectNavigation() {
	s.hold = true
	s.speakInState(MsgCancellingNavigation, s.cancelNavigation)
}

func (s *Session) startNavigationTracking() {
	s.tracking = true
	s.metrics.ActiveNavigations.Add(s.ctx, 1)
	s.openPositionWatch()
	if s.settings.MockDataMode {
		s.scheduleDemoGuidance()
	}
	s.announceStep()
}

// openPositionWatch asks the device for a position watch without waiting on
// the loop. A watch that opens after its NavigationActive entry is gone is
// stopped straight away.
func (s *Session) openPositionWatch() {
	gen := s.gen
	ctx := s.ctx
	go func() {
		stop, err := s.tracker.Open(ctx, func(c geo.Coordinates) {
			s.post(func() {
				if s.gen == gen {
					s.onPosition(c)
				}
			})
		})
		s.post(func() {
			switch {
			case err != nil:
				if s.gen == gen {
					s.log.Warn("session: position watch unavailable, navigation continues", "err", err)
				}
			case s.gen != gen:
				s.log.Debug("session: stopping stale position watch", "gen", gen, "current", s.gen)
				stop()
			default:
				s.tracker.Adopt(stop)
			}
		})
	}()
}

// stopNavigationTracking ends the watch and the demo guidance timer. It is
// called whenever NavigationActive is left.
func (s *Session) stopNavigationTracking() {
	if s.tracking {
		s.tracking = false
		s.metrics.ActiveNavigations.Add(context.Background(), -1)
	}
	s.tracker.Stop()
	if s.guidanceTimer != nil {
		s.guidanceTimer.Stop()
		s.guidanceTimer = nil
	}
}

func (s *Session) scheduleDemoGuidance() {
	gen := s.gen
	s.guidanceTimer = time.AfterFunc(s.tun.DemoGuidanceInterval, func() {
		s.post(func() {
			if s.gen != gen || s.state != NavigationActive {
				return
			}
			s.requestGuidance()
			s.scheduleDemoGuidance()
		})
	})
}

func (s *Session) onPosition(c geo.Coordinates) {
	s.position = &c
	if _, advanced := s.progress.AdvanceIfNear(c, s.tun.ArrivalThreshold); advanced {
		s.metrics.RecordStepAdvance(s.ctx, "position")
		s.announceStep()
		return
	}
	s.render()
}

// announceStep shows the current step and speaks it once, or handles
// arrival when every step has been consumed.
func (s *Session) announceStep() {
	if s.progress.Arrived() {
		s.arrive()
		return
	}
	step, ok := s.progress.Current()
	if !ok {
		return
	}
	s.instruction = step.Instruction
	s.render()
	if s.progress.ClaimAnnouncement() {
		s.speak(step.Instruction, nil)
	}
}

func (s *Session) arrive() {
	if s.arriving {
		return
	}
	s.arriving = true
	s.instruction = navigation.ArrivedMessage
	s.render()
	s.speakInState(navigation.ArrivedMessage, s.cancelNavigation)
}

// requestGuidance asks the vision oracle for safety-aware guidance on the
// current step, speaks it, then advances.
func (s *Session) requestGuidance() {
	if s.state != NavigationActive || s.guidanceInFlight || s.arriving {
		return
	}
	step, ok := s.progress.Current()
	if !ok {
		return
	}
	idx := s.progress.Index()
	s.guidanceInFlight = true
	s.instruction = MsgGuidancePending
	s.render()

	demoMode := s.settings.MockDataMode
	opts := device.CaptureOptions{
		FocusDelayMillis: int(s.tun.CaptureFocusDelay / time.Millisecond),
		Quality:          s.tun.CaptureQuality,
	}
	s.async(func(ctx context.Context) func() {
		text := step.Instruction
		img, err := s.guidanceImage(ctx, demoMode, opts)
		if err != nil {
			s.log.Warn("session: guidance capture, using raw instruction", "err", err)
		} else {
			gctx, done := s.metrics.TrackCall(ctx, "vision", "guidance")
			g, gerr := s.vision.GenerateNavigationalGuidance(gctx, img, step.Instruction)
			done(gerr)
			if gerr != nil {
				observe.Logger(gctx, s.log).Warn("session: guidance, using raw instruction", "err", gerr)
			} else if g != "" {
				text = g
			}
		}
		return func() { s.deliverGuidance(idx, text) }
	})
}

func (s *Session) guidanceImage(ctx context.Context, demoMode bool, opts device.CaptureOptions) (types.Image, error) {
	if demoMode && s.demo != nil {
		if img, err := s.demo.Image(s.demo.Pick()); err == nil {
			return img, nil
		}
	}
	return s.dev.Capture(ctx, opts)
}

func (s *Session) deliverGuidance(idx int, text string) {
	s.guidanceInFlight = false
	if s.progress.Index() != idx || s.arriving {
		s.log.Debug("session: dropped guidance for a passed step", "step", idx)
		s.announceStep()
		return
	}
	s.instruction = text
	s.render()
	s.progress.ClaimAnnouncement()
	s.speak(text, nil)
	if s.progress.Advance() {
		s.metrics.RecordStepAdvance(s.ctx, "guidance")
	}
	s.announceStep()
}

// teardownNavigation stops tracking and speech and forgets the route. It is
// safe to call at any time.
func (s *Session) teardownNavigation() {
	s.stopNavigationTracking()
	s.synth.Cancel(s.ctx)
	s.progress = nil
	s.destination = ""
	s.instruction = ""
	s.arriving = false
	s.guidanceInFlight = false
}

// cancelNavigation is the single teardown path for cancel, arrival and
// rejection. Calling it again when nothing is left to tear down is a no-op.
func (s *Session) cancelNavigation() {
	target := Idle
	if s.settings.VoiceCommandEnabled {
		target = ListeningForCommand
	}
	if s.state == target && s.progress == nil && s.destination == "" {
		return
	}
	s.teardownNavigation()
	if target == ListeningForCommand {
		s.transition(trListen)
	} else {
		s.transition(trIdle)
	}
}

// --- Transit ---

func (s *Session) startTransit() {
	if !s.requireVoice() {
		return
	}
	s.transition(trTransit)
}

func (s *Session) fetchTransitSuggestion() {
	req := transit.Request{Destination: transit.CleanDestination(s.destination)}
	demoMode := s.settings.MockDataMode
	s.async(func(ctx context.Context) func() {
		req.City = s.resolveCity(ctx, demoMode)
		ctx, done := s.metrics.TrackCall(ctx, "transit", "suggest")
		text, err := s.transit.Suggest(ctx, req)
		done(err)
		if err != nil {
			observe.Logger(ctx, s.log).Warn("session: transit suggestion", "city", req.City, "err", err)
			return func() { s.fail(MsgTransitFailed) }
		}
		return func() {
			s.description = text
			s.destination = ""
			s.render()
			s.speakInState(text, func() {
				if s.settings.VoiceCommandEnabled {
					s.transition(trListen)
				} else {
					s.transition(trIdle)
				}
			})
		}
	})
}

// resolveCity runs on a helper goroutine. Failures fall back to
// [transit.DefaultCity].
func (s *Session) resolveCity(ctx context.Context, demoMode bool) string {
	if demoMode {
		return demo.City
	}
	loc, ok := s.directions.(directions.Locator)
	if !ok {
		return transit.DefaultCity
	}
	pos, err := s.tracker.Current(ctx)
	if err != nil {
		s.log.Warn("session: locate for transit, using default city", "err", err)
		return transit.DefaultCity
	}
	city, err := loc.Locality(ctx, pos)
	if err != nil || city == "" {
		s.log.Warn("session: reverse geocode, using default city", "err", err)
		return transit.DefaultCity
	}
	return city
}

// --- SOS ---

func (s *Session) triggerSOS() {
	if s.calling {
		return
	}
	if !s.settings.HasSOSContact() {
		s.speak(MsgNoSOSContact, func() {
			s.teardownNavigation()
			s.transition(trOpenSettings)
		})
		return
	}

	name, number := s.settings.SOSContactName, s.settings.SOSContactNumber
	demoMode := s.settings.MockDataMode
	s.hold = true
	s.reconcile()
	gen := s.gen
	s.speak(sosMessage(name, demoMode), func() {
		s.calling = true
		s.render()
		pos := s.position
		if demoMode {
			p := demo.Position
			pos = &p
		}
		// The call goes out even if the session ends during the delay.
		ctx := context.WithoutCancel(s.ctx)
		time.AfterFunc(s.tun.SOSDialDelay, func() {
			ctx, cancel := context.WithTimeout(ctx, sosDialTimeout)
			defer cancel()
			err := s.dial(ctx, number, pos)
			s.post(func() { s.sosDialed(gen, err) })
		})
	})
}

const sosDialTimeout = 30 * time.Second

// dial runs on a timer goroutine.
func (s *Session) dial(ctx context.Context, number string, at *geo.Coordinates) error {
	if ld, ok := s.dialer.(device.LocationDialer); ok && at != nil {
		return ld.DialFrom(ctx, number, *at)
	}
	return s.dialer.Dial(ctx, number)
}

func (s *Session) sosDialed(gen uint64, err error) {
	s.calling = false
	outcome := "dialed"
	if err != nil {
		outcome = "failed"
		s.log.Error("session: SOS dial failed", "err", err)
	} else {
		s.log.Info("session: SOS call placed")
	}
	s.metrics.RecordSOS(s.ctx, outcome)
	if s.gen != gen {
		s.render()
		return
	}
	s.teardownNavigation()
	s.enter(Idle)
}

// --- Settings and permissions ---

func (s *Session) requireVoice() bool {
	if s.settings.VoiceCommandEnabled {
		return true
	}
	s.speak(MsgVoiceDisabled, nil)
	return false
}

func (s *Session) onSettings(kv map[string]string) {
	st, err := s.prefs.Apply(s.ctx, s.settings, kv)
	if err != nil {
		s.log.Warn("session: apply settings", "err", err)
	}
	s.settings = st
	s.settingsChanged()
}

func (s *Session) settingsChanged() {
	if s.voiceUnsupported {
		s.settings.VoiceCommandEnabled = false
	}
	s.render()
	s.reconcile()
}

func (s *Session) requestPermissions() {
	s.async(func(ctx context.Context) func() {
		granted, err := s.dev.RequestPermissions(ctx)
		if err != nil && !errors.Is(err, device.ErrPermissionDenied) {
			s.log.Warn("session: request permissions", "err", err)
		}
		return func() {
			if !granted {
				s.speak(MsgPermissionsRequired, nil)
				return
			}
			st, err := s.prefs.GrantPermissions(s.ctx, s.settings)
			if err != nil {
				s.log.Warn("session: persist permissions", "err", err)
				st.PermissionsGranted = true
			}
			s.settings = st
			s.render()
		}
	})
}

// disableVoice turns voice commands off and persists the change.
func (s *Session) disableVoice() {
	st, err := s.prefs.SetVoiceCommandEnabled(s.ctx, s.settings, false)
	if err != nil {
		s.log.Warn("session: persist voice toggle", "err", err)
		st = s.settings
		st.VoiceCommandEnabled = false
	}
	s.settings = st
}

// --- Taps ---

func (s *Session) onTap(target string) {
	switch target {
	case device.TapExplore:
		s.startExplore()
	case device.TapNavigate:
		s.startNavigation()
	case device.TapTransit:
		s.startTransit()
	case device.TapSOS:
		s.triggerSOS()
	case device.TapSettings:
		if s.state.navigating() {
			s.teardownNavigation()
		}
		s.transition(trOpenSettings)
	case device.TapBack:
		if s.state == Settings {
			s.enter(Idle)
			return
		}
		s.reset()
	case device.TapCancel:
		if s.state.navigating() || s.progress != nil {
			s.cancelNavigation()
			return
		}
		s.reset()
	case device.TapGuidance:
		s.requestGuidance()
	case device.TapScreen:
		s.onScreenTap()
	case device.TapPermission:
		s.requestPermissions()
	default:
		s.log.Debug("session: unknown tap target", "target", target)
	}
}

// onScreenTap handles a tap anywhere on the screen.
func (s *Session) onScreenTap() {
	switch s.state {
	case NavigationActive:
		s.requestGuidance()
	case Idle:
		if s.requireVoice() {
			s.transition(trListen)
		}
	case Result, Error:
		s.reset()
	}
}
