package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/urbansense/urbansense/pkg/device"
	"github.com/urbansense/urbansense/pkg/geo"
	"github.com/urbansense/urbansense/pkg/types"
)

// Message types on the wire.
const (
	// client -> server
	msgHello       = "hello"
	msgResponse    = "response"
	msgRecognition = "recognition"
	msgTap         = "tap"
	msgSettings    = "settings"
	msgPosition    = "position"

	// server -> client
	msgWelcome = "welcome"
	msgRequest = "request"
	msgNotify  = "notify"
)

// Operations. Requests expect a response with the same id; notifications
// do not.
const (
	opSpeak            = "speak"
	opCancelSpeech     = "cancelSpeech"
	opStartRecognition = "startRecognition"
	opStopRecognition  = "stopRecognition"
	opCapture          = "capture"
	opPosition         = "position"
	opWatchPosition    = "watchPosition"
	opStopWatch        = "stopWatch"
	opPulse            = "pulse"
	opDial             = "dial"
	opRender           = "render"
	opPermissions      = "permissions"
)

// Error codes a client may report in a response.
const (
	codeUnavailable  = "unavailable"
	codeDenied       = "denied"
	codeInterrupted  = "interrupted"
	codeInvalidState = "invalid_state"
)

// Capabilities is what the client reported in its hello.
type Capabilities struct {
	Speech      bool `json:"speech"`
	Recognition bool `json:"recognition"`
	Camera      bool `json:"camera"`
	Geolocation bool `json:"geolocation"`
}

// outbound is every server-to-client message.
type outbound struct {
	Type          string `json:"type"`
	ID            int64  `json:"id,omitempty"`
	Op            string `json:"op,omitempty"`
	TimeoutMillis int64  `json:"timeoutMs,omitempty"`
	Params        any    `json:"params,omitempty"`
}

type welcome struct {
	Type           string   `json:"type"`
	SessionID      string   `json:"sessionId"`
	VoiceLanguages []string `json:"voiceLanguages,omitempty"`
}

// inbound is every client-to-server message. Which fields are set depends
// on Type.
type inbound struct {
	Type string `json:"type"`

	// hello
	Profile      string        `json:"profile,omitempty"`
	Capabilities *Capabilities `json:"capabilities,omitempty"`

	// response
	ID     int64           `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`

	// recognition
	Recognition *wireRecognition `json:"recognition,omitempty"`

	// tap
	Target string `json:"target,omitempty"`

	// settings
	Settings map[string]string `json:"settings,omitempty"`

	// position; Error carries a failed fix
	Watch  int64            `json:"watch,omitempty"`
	Coords *geo.Coordinates `json:"coords,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// err maps a client error onto the device sentinels.
func (e *wireError) err() error {
	var base error
	switch e.Code {
	case codeUnavailable:
		base = device.ErrUnavailable
	case codeDenied:
		base = device.ErrPermissionDenied
	case codeInterrupted:
		base = device.ErrInterrupted
	case codeInvalidState:
		base = device.ErrInvalidState
	default:
		if e.Message == "" {
			return fmt.Errorf("device error %q", e.Code)
		}
		return errors.New(e.Message)
	}
	if e.Message == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, e.Message)
}

type wireRecognition struct {
	Kind       string  `json:"kind"`
	Transcript string  `json:"transcript,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
}

func (w *wireRecognition) event() (types.RecognitionEvent, bool) {
	ev := types.RecognitionEvent{Transcript: w.Transcript, Confidence: w.Confidence, Error: w.Error}
	switch w.Kind {
	case "result":
		ev.Kind = types.RecognitionResult
	case "end":
		ev.Kind = types.RecognitionEnd
	case "error":
		ev.Kind = types.RecognitionError
	default:
		return ev, false
	}
	return ev, true
}

type speakParams struct {
	Text string `json:"text"`
}

type watchParams struct {
	Watch int64 `json:"watch"`
}

type dialParams struct {
	Number string `json:"number"`
}

type captureResult struct {
	// Image is a data: URL or bare base64 JPEG.
	Image string `json:"image"`
}

type permissionsResult struct {
	Granted bool `json:"granted"`
}
