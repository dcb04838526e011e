package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/urbansense/urbansense/pkg/device"
	"github.com/urbansense/urbansense/pkg/types"
)

// User-facing recognition error messages.
const (
	MsgNetworkError     = "I'm having trouble connecting to the voice service. Please check your internet connection and try again."
	MsgMicrophoneDenied = "Voice commands are disabled because microphone access was denied. Please enable permissions in your browser settings."
	msgGenericError     = "A speech recognition error occurred: %s."
)

// ErrorAction tells the session how to react to a recognizer error.
type ErrorAction struct {
	// Ignore is set for transient errors that need no reaction.
	Ignore bool

	// Message is spoken to the user.
	Message string

	// DisableVoice forces voice commands off and persists the change.
	DisableVoice bool
}

// ClassifyError maps a recognizer error code to the session's reaction.
func ClassifyError(code string) ErrorAction {
	switch code {
	case types.RecognitionErrNoSpeech, types.RecognitionErrAudioCapture:
		return ErrorAction{Ignore: true}
	case types.RecognitionErrNetwork:
		return ErrorAction{Message: MsgNetworkError}
	case types.RecognitionErrNotAllowed, types.RecognitionErrServiceNotAllowed:
		return ErrorAction{Message: MsgMicrophoneDenied, DisableVoice: true}
	default:
		return ErrorAction{Message: fmt.Sprintf(msgGenericError, code)}
	}
}

// Recognition wraps a single-utterance [device.Recognizer] with the
// bookkeeping a session needs: whether the recognizer is listening and
// whether the current utterance already drove a transition.
//
// Recognition is not safe for concurrent use; it belongs to one session
// event loop.
type Recognition struct {
	rec       device.Recognizer
	log       *slog.Logger
	listening bool
	handled   bool
}

// NewRecognition wraps rec. A nil logger means slog.Default().
func NewRecognition(rec device.Recognizer, log *slog.Logger) *Recognition {
	if log == nil {
		log = slog.Default()
	}
	return &Recognition{rec: rec, log: log}
}

// Available reports whether the device can recognize speech.
func (r *Recognition) Available() bool { return r.rec.RecognitionAvailable() }

// Listening reports whether the recognizer was started and has not ended.
func (r *Recognition) Listening() bool { return r.listening }

// Start starts the recognizer. It is a no-op when already listening.
func (r *Recognition) Start(ctx context.Context) {
	if r.listening {
		return
	}
	err := r.rec.StartRecognition(ctx)
	switch {
	case err == nil, errors.Is(err, device.ErrInvalidState):
		r.listening = true
	default:
		r.log.Warn("speech: start recognition", "err", err)
	}
}

// Stop stops the recognizer. It is a no-op when not listening.
func (r *Recognition) Stop(ctx context.Context) {
	if !r.listening {
		return
	}
	r.listening = false
	if err := r.rec.StopRecognition(ctx); err != nil && !errors.Is(err, device.ErrInvalidState) {
		r.log.Warn("speech: stop recognition", "err", err)
	}
}

// Reconcile starts or stops the recognizer so that it listens exactly when
// want is true.
func (r *Recognition) Reconcile(ctx context.Context, want bool) {
	if want {
		r.Start(ctx)
	} else {
		r.Stop(ctx)
	}
}

// MarkHandled records that the current utterance triggered a transition, so
// its end event must not restart listening.
func (r *Recognition) MarkHandled() { r.handled = true }

// Handled reports whether the current utterance was marked handled.
func (r *Recognition) Handled() bool { return r.handled }

// ResetHandled clears the handled flag. Sessions call it when entering a
// listening state.
func (r *Recognition) ResetHandled() { r.handled = false }

// ClassifyError is [ClassifyError] with one addition: an "aborted" error
// that follows our own Stop is ignored.
func (r *Recognition) ClassifyError(code string) ErrorAction {
	if code == types.RecognitionErrAborted && !r.listening {
		return ErrorAction{Ignore: true}
	}
	return ClassifyError(code)
}

// ConsumeEnd processes the recognizer's end-of-utterance event. It reports
// whether the session may restart listening: false if the utterance was
// handled, in which case the flag is cleared.
func (r *Recognition) ConsumeEnd() bool {
	r.listening = false
	if r.handled {
		r.handled = false
		return false
	}
	return true
}
