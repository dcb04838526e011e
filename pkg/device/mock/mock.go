// Package mock provides a scripted test double for device.Device.
//
// The mock records every call behind a mutex and lets tests inject device
// input through Say, Tap, RecognitionEnd, RecognitionError and EmitPosition.
//
//	d := mock.New()
//	d.Say("explore")          // result + end events
//	d.EmitPosition(coords)    // feeds an active position watch
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/urbansense/urbansense/pkg/device"
	"github.com/urbansense/urbansense/pkg/geo"
	"github.com/urbansense/urbansense/pkg/types"
)

// Device is a mock implementation of device.Device.
type Device struct {
	mu sync.Mutex

	// --- Configurable behaviour ---

	// NoSpeech makes SpeechAvailable report false.
	NoSpeech bool

	// NoRecognition makes RecognitionAvailable report false.
	NoRecognition bool

	// SpeakDuration is how long each Speak call blocks. Default: 0.
	SpeakDuration time.Duration

	// SpeakErr, if non-nil, is returned by every Speak call.
	SpeakErr error

	// SpeakHang makes Speak ignore its context and never return on its own
	// until Release is called. Used to exercise forced-completion timeouts.
	SpeakHang bool

	// CaptureImage is returned by Capture.
	CaptureImage types.Image

	// CaptureErr, if non-nil, is returned by Capture.
	CaptureErr error

	// Position is returned by CurrentPosition.
	Position geo.Coordinates

	// PositionErr, if non-nil, is returned by CurrentPosition.
	PositionErr error

	// WatchErr, if non-nil, is returned by WatchPosition.
	WatchErr error

	// WatchDelay is how long WatchPosition takes to answer, like a device
	// asking the user for location access. Default: 0.
	WatchDelay time.Duration

	// EndDelay holds back the end event that follows Say, like a
	// recognizer that reports the end of its session late. Default: 0.
	EndDelay time.Duration

	// DialErr, if non-nil, is returned by Dial.
	DialErr error

	// PermissionsGranted is returned by RequestPermissions.
	PermissionsGranted bool

	// --- Call records ---

	Spoken          []string
	SpeechCancels   int
	RecognizerStart int
	RecognizerStop  int
	Captures        []device.CaptureOptions
	PositionCalls   int
	WatchStarts     int
	WatchStops      int
	Pulses          int
	Dialed          []string
	Views           []device.View
	PermissionAsks  int

	// --- Internal state ---

	listening    bool
	speaking     int
	maxSpeaking  int
	activeCancel context.CancelFunc
	release      chan struct{}
	watchFn      func(device.PositionUpdate)
	events       chan device.Event
	closed       bool
}

// New returns a mock device with a buffered event channel.
func New() *Device {
	return &Device{
		events:             make(chan device.Event, 64),
		release:            make(chan struct{}),
		PermissionsGranted: true,
	}
}

// SpeechAvailable implements device.Synthesizer.
func (d *Device) SpeechAvailable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.NoSpeech
}

// Speak implements device.Synthesizer.
func (d *Device) Speak(ctx context.Context, text string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mu.Lock()
	d.Spoken = append(d.Spoken, text)
	d.speaking++
	if d.speaking > d.maxSpeaking {
		d.maxSpeaking = d.speaking
	}
	d.activeCancel = cancel
	dur, err, hang, release := d.SpeakDuration, d.SpeakErr, d.SpeakHang, d.release
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.speaking--
		d.activeCancel = nil
		d.mu.Unlock()
	}()

	if hang {
		<-release
		return nil
	}
	if dur > 0 {
		t := time.NewTimer(dur)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return device.ErrInterrupted
		}
	}
	return err
}

// Release unblocks every Speak call stuck because of SpeakHang.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.release:
	default:
		close(d.release)
	}
}

// CancelSpeech implements device.Synthesizer.
func (d *Device) CancelSpeech(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.SpeechCancels++
	if d.activeCancel != nil {
		d.activeCancel()
	}
	return nil
}

// RecognitionAvailable implements device.Recognizer.
func (d *Device) RecognitionAvailable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.NoRecognition
}

// StartRecognition implements device.Recognizer. It fails with
// device.ErrInvalidState when already listening, like browser recognizers.
func (d *Device) StartRecognition(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listening {
		return device.ErrInvalidState
	}
	d.listening = true
	d.RecognizerStart++
	return nil
}

// StopRecognition implements device.Recognizer.
func (d *Device) StopRecognition(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.listening {
		return device.ErrInvalidState
	}
	d.listening = false
	d.RecognizerStop++
	return nil
}

// Capture implements device.Camera.
func (d *Device) Capture(_ context.Context, opts device.CaptureOptions) (types.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Captures = append(d.Captures, opts)
	return d.CaptureImage, d.CaptureErr
}

// CurrentPosition implements device.Geolocator.
func (d *Device) CurrentPosition(context.Context) (geo.Coordinates, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.PositionCalls++
	return d.Position, d.PositionErr
}

// WatchPosition implements device.Geolocator.
func (d *Device) WatchPosition(_ context.Context, fn func(device.PositionUpdate)) (func(), error) {
	d.mu.Lock()
	delay := d.WatchDelay
	d.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.WatchErr != nil {
		return nil, d.WatchErr
	}
	d.WatchStarts++
	d.watchFn = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.WatchStops++
			d.watchFn = nil
		})
	}, nil
}

// Pulse implements device.Feedback.
func (d *Device) Pulse(context.Context, device.FeedbackPattern) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Pulses++
}

// Dial implements device.Dialer.
func (d *Device) Dial(_ context.Context, number string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Dialed = append(d.Dialed, number)
	return d.DialErr
}

// Render implements device.Display.
func (d *Device) Render(_ context.Context, v device.View) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Views = append(d.Views, v)
	return nil
}

// RequestPermissions implements device.Permissions.
func (d *Device) RequestPermissions(context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.PermissionAsks++
	return d.PermissionsGranted, nil
}

// Events implements device.Device.
func (d *Device) Events() <-chan device.Event { return d.events }

// --- Input injection ---

// Say emits a final transcript followed by the recognizer end event and
// marks the recognizer idle, like a browser recognizer after one utterance.
func (d *Device) Say(transcript string) {
	d.mu.Lock()
	d.listening = false
	delay := d.EndDelay
	d.mu.Unlock()
	d.emit(device.Event{Kind: device.EventRecognition, Recognition: types.RecognitionEvent{
		Kind: types.RecognitionResult, Transcript: transcript,
	}})
	end := device.Event{Kind: device.EventRecognition, Recognition: types.RecognitionEvent{Kind: types.RecognitionEnd}}
	if delay <= 0 {
		d.emit(end)
		return
	}
	go func() {
		time.Sleep(delay)
		d.emit(end)
	}()
}

// RecognitionEnd emits a bare recognizer end event.
func (d *Device) RecognitionEnd() {
	d.mu.Lock()
	d.listening = false
	d.mu.Unlock()
	d.emit(device.Event{Kind: device.EventRecognition, Recognition: types.RecognitionEvent{Kind: types.RecognitionEnd}})
}

// RecognitionError emits a recognizer error event with code.
func (d *Device) RecognitionError(code string) {
	d.emit(device.Event{Kind: device.EventRecognition, Recognition: types.RecognitionEvent{
		Kind: types.RecognitionError, Error: code,
	}})
}

// Tap emits a tap on target.
func (d *Device) Tap(target string) {
	d.emit(device.Event{Kind: device.EventTap, Target: target})
}

// ChangeSettings emits a settings change event.
func (d *Device) ChangeSettings(kv map[string]string) {
	d.emit(device.Event{Kind: device.EventSettings, Settings: kv})
}

// EmitPosition feeds c to the active position watch. It reports whether a
// watch was active.
func (d *Device) EmitPosition(c geo.Coordinates) bool {
	d.mu.Lock()
	fn := d.watchFn
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(device.PositionUpdate{Coords: c})
	return true
}

// EmitPositionError feeds err to the active position watch.
func (d *Device) EmitPositionError(err error) bool {
	d.mu.Lock()
	fn := d.watchFn
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(device.PositionUpdate{Err: err})
	return true
}

// Close closes the event channel, simulating a disconnect.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
}

// emit sends under the lock so Close cannot race a send. The buffer is large
// enough that tests never block here.
func (d *Device) emit(ev device.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.events <- ev
	}
}

// --- Inspection helpers ---

// SpokenTexts returns a copy of every text passed to Speak.
func (d *Device) SpokenTexts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.Spoken...)
}

// MaxConcurrentSpeech returns the highest number of overlapping Speak calls.
func (d *Device) MaxConcurrentSpeech() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxSpeaking
}

// Listening reports whether the recognizer is started.
func (d *Device) Listening() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listening
}

// Watching reports whether a position watch is active.
func (d *Device) Watching() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.watchFn != nil
}

// LastView returns the most recently rendered view.
func (d *Device) LastView() device.View {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Views) == 0 {
		return device.View{}
	}
	return d.Views[len(d.Views)-1]
}

// RenderedStates returns the State of every rendered view, with consecutive
// repeats collapsed.
func (d *Device) RenderedStates() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, v := range d.Views {
		if len(out) == 0 || out[len(out)-1] != v.State {
			out = append(out, v.State)
		}
	}
	return out
}

// DialedNumbers returns a copy of every number passed to Dial.
func (d *Device) DialedNumbers() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.Dialed...)
}

// CaptureCount returns the number of Capture calls.
func (d *Device) CaptureCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Captures)
}

// PulseCount returns the number of Pulse calls.
func (d *Device) PulseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Pulses
}

// Counts returns recognizer start/stop and watch start/stop counters.
func (d *Device) Counts() (recStart, recStop, watchStart, watchStop int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.RecognizerStart, d.RecognizerStop, d.WatchStarts, d.WatchStops
}

var _ device.Device = (*Device)(nil)
