// Package device defines the platform capabilities a UrbanSense client
// exposes to the server: speech synthesis, single-utterance speech
// recognition, a camera, geolocation, haptic/audio feedback, a screen, and a
// phone dialer.
//
// A session talks to exactly one Device. The production implementation is the
// WebSocket bridge in internal/bridge; tests use the scripted double in
// pkg/device/mock.
package device

import (
	"context"
	"errors"

	"github.com/urbansense/urbansense/pkg/geo"
	"github.com/urbansense/urbansense/pkg/types"
)

// Sentinel errors reported by device implementations.
var (
	// ErrUnavailable means the capability is not supported on the device.
	ErrUnavailable = errors.New("device: capability unavailable")

	// ErrPermissionDenied means the user refused access to the capability.
	ErrPermissionDenied = errors.New("device: permission denied")

	// ErrInterrupted is returned by Speak when the utterance was cancelled.
	ErrInterrupted = errors.New("device: utterance interrupted")

	// ErrInvalidState is returned by recognizer Start/Stop calls made in the
	// wrong lifecycle state.
	ErrInvalidState = errors.New("device: invalid recognizer state")

	// ErrClosed is returned once the device has disconnected.
	ErrClosed = errors.New("device: closed")
)

// Synthesizer speaks text on the device.
type Synthesizer interface {
	// SpeechAvailable reports whether the device can synthesize speech.
	SpeechAvailable() bool

	// Speak plays one utterance and blocks until it ends, fails, or ctx is
	// done. A cancelled utterance returns [ErrInterrupted].
	Speak(ctx context.Context, text string) error

	// CancelSpeech stops the current utterance, if any.
	CancelSpeech(ctx context.Context) error
}

// Recognizer is a single-utterance speech recognizer. Results, end-of-
// utterance and errors are delivered as [types.RecognitionEvent] values on
// the [Device] event stream.
type Recognizer interface {
	// RecognitionAvailable reports whether the device can recognize speech.
	RecognitionAvailable() bool

	// StartRecognition begins listening for one utterance. Calling it while
	// already listening returns [ErrInvalidState].
	StartRecognition(ctx context.Context) error

	// StopRecognition stops listening. Calling it while idle returns
	// [ErrInvalidState].
	StopRecognition(ctx context.Context) error
}

// CaptureOptions tunes a single camera capture.
type CaptureOptions struct {
	// FocusDelayMillis is how long the camera runs before the frame is taken.
	FocusDelayMillis int `json:"focusDelayMs"`

	// Quality is the JPEG quality in (0, 1].
	Quality float64 `json:"quality"`
}

// Camera grabs single frames. Implementations release the camera before
// Capture returns.
type Camera interface {
	Capture(ctx context.Context, opts CaptureOptions) (types.Image, error)
}

// PositionUpdate is one continuous-watch callback value. Exactly one of
// Coords or Err is meaningful.
type PositionUpdate struct {
	Coords geo.Coordinates
	Err    error
}

// Geolocator provides one-shot and continuous positioning.
type Geolocator interface {
	// CurrentPosition fetches the position once.
	CurrentPosition(ctx context.Context) (geo.Coordinates, error)

	// WatchPosition starts a continuous watch that invokes fn for every
	// update until stop is called or ctx is done. stop is idempotent.
	WatchPosition(ctx context.Context, fn func(PositionUpdate)) (stop func(), err error)
}

// FeedbackPattern describes a confirmation pulse.
type FeedbackPattern struct {
	VibrateMillis int     `json:"vibrateMs"`
	ToneHz        float64 `json:"toneHz"`
	ToneMillis    int     `json:"toneMs"`
}

// ConfirmationPulse is the short pulse played when a command is accepted.
var ConfirmationPulse = FeedbackPattern{VibrateMillis: 100, ToneHz: 880, ToneMillis: 100}

// Feedback plays haptic/audio cues. Failures are not reported.
type Feedback interface {
	Pulse(ctx context.Context, p FeedbackPattern)
}

// Dialer places a phone call. The outcome of the call is not observed.
type Dialer interface {
	Dial(ctx context.Context, number string) error
}

// LocationDialer is a [Dialer] that can also tell the callee where the caller
// is, for example in a spoken message at the start of the call.
type LocationDialer interface {
	Dialer
	DialFrom(ctx context.Context, number string, at geo.Coordinates) error
}

// View is what the device screen should render.
type View struct {
	State        string           `json:"state"`
	Message      string           `json:"message,omitempty"`
	Description  string           `json:"description,omitempty"`
	Error        string           `json:"error,omitempty"`
	Destination  string           `json:"destination,omitempty"`
	Instruction  string           `json:"instruction,omitempty"`
	Distance     string           `json:"distance,omitempty"`
	StepIndex    int              `json:"stepIndex,omitempty"`
	StepCount    int              `json:"stepCount,omitempty"`
	Calling      bool             `json:"calling,omitempty"`
	Listening    bool             `json:"listening"`
	Position     *geo.Coordinates `json:"position,omitempty"`
	VoiceEnabled bool             `json:"voiceEnabled"`
}

// Display renders views.
type Display interface {
	Render(ctx context.Context, v View) error
}

// Permissions asks the user for microphone, camera and location access.
type Permissions interface {
	RequestPermissions(ctx context.Context) (granted bool, err error)
}

// Device is the full capability set of a connected client.
type Device interface {
	Synthesizer
	Recognizer
	Camera
	Geolocator
	Feedback
	Dialer
	Display
	Permissions

	// Events delivers asynchronous input from the device. The channel is
	// closed when the device disconnects.
	Events() <-chan Event
}

// EventKind discriminates [Event] values.
type EventKind int

const (
	// EventRecognition carries a recognizer lifecycle event.
	EventRecognition EventKind = iota

	// EventTap is a tap on a named on-screen target.
	EventTap

	// EventSettings carries a settings change made on the settings screen.
	EventSettings
)

// Tap targets sent by clients.
const (
	TapExplore    = "explore"
	TapNavigate   = "navigate"
	TapSOS        = "sos"
	TapTransit    = "transit"
	TapSettings   = "settings"
	TapBack       = "back"
	TapGuidance   = "guidance"
	TapCancel     = "cancel"
	TapScreen     = "screen"
	TapPermission = "permissions"
)

// Event is one asynchronous input from the device.
type Event struct {
	Kind EventKind

	// Recognition is set for [EventRecognition].
	Recognition types.RecognitionEvent

	// Target is set for [EventTap].
	Target string

	// Settings holds raw key/value pairs for [EventSettings]. Values are
	// JSON-encoded as they would be persisted.
	Settings map[string]string
}
