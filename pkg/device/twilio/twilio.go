// Package twilio places SOS calls from the server through the Twilio Voice
// API instead of asking the device to open a tel: link.
//
// The callee hears a short spoken message, optionally including the caller's
// coordinates, and the call then hangs up.
package twilio

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/urbansense/urbansense/pkg/device"
	"github.com/urbansense/urbansense/pkg/geo"
)

// DefaultMessage is spoken when no location is known.
const DefaultMessage = "This is an emergency alert from UrbanSense. The caller needs help."

// Dialer implements device.LocationDialer.
type Dialer struct {
	calls   callCreator
	from    string
	message string
	voice   string
}

var _ device.LocationDialer = (*Dialer)(nil)

// callCreator is the subset of *twilioApi.ApiService used by Dialer.
type callCreator interface {
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
}

// Option is a functional option for Dialer.
type Option func(*Dialer)

// WithMessage replaces [DefaultMessage].
func WithMessage(msg string) Option {
	return func(d *Dialer) {
		if msg != "" {
			d.message = msg
		}
	}
}

// WithVoice selects the TwiML <Say> voice, e.g. "Polly.Aditi".
func WithVoice(voice string) Option {
	return func(d *Dialer) { d.voice = voice }
}

// New returns a Dialer that calls from the Twilio number from using the given
// account credentials.
func New(accountSID, authToken, from string, opts ...Option) (*Dialer, error) {
	switch {
	case accountSID == "":
		return nil, errors.New("twilio: account SID must not be empty")
	case authToken == "":
		return nil, errors.New("twilio: auth token must not be empty")
	case from == "":
		return nil, errors.New("twilio: from number must not be empty")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newDialer(client.Api, from, opts...), nil
}

func newDialer(calls callCreator, from string, opts ...Option) *Dialer {
	d := &Dialer{calls: calls, from: from, message: DefaultMessage}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dial implements device.Dialer.
func (d *Dialer) Dial(ctx context.Context, number string) error {
	return d.call(ctx, number, d.message)
}

// DialFrom implements device.LocationDialer. The spoken message ends with
// the caller's coordinates.
func (d *Dialer) DialFrom(ctx context.Context, number string, at geo.Coordinates) error {
	msg := fmt.Sprintf("%s Their location is latitude %.5f, longitude %.5f.", d.message, at.Latitude, at.Longitude)
	return d.call(ctx, number, msg)
}

// The Twilio client takes no context, so ctx is only checked before the
// request goes out.
func (d *Dialer) call(ctx context.Context, number, msg string) error {
	if strings.TrimSpace(number) == "" {
		return errors.New("twilio: dial: empty number")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("twilio: dial: %w", err)
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(number)
	params.SetFrom(d.from)
	params.SetTwiml(sayTwiML(msg, d.voice))

	call, err := d.calls.CreateCall(params)
	if err != nil {
		return fmt.Errorf("twilio: dial: %w", err)
	}
	if call != nil && call.Sid != nil {
		slog.Info("twilio: call created", "sid", *call.Sid)
	}
	return nil
}

// sayTwiML renders a response that speaks msg twice and hangs up.
func sayTwiML(msg, voice string) string {
	var esc strings.Builder
	_ = xml.EscapeText(&esc, []byte(msg))
	attr := ""
	if voice != "" {
		var v strings.Builder
		_ = xml.EscapeText(&v, []byte(voice))
		attr = fmt.Sprintf(` voice="%s"`, v.String())
	}
	say := fmt.Sprintf(`<Say%s>%s</Say>`, attr, esc.String())
	return `<?xml version="1.0" encoding="UTF-8"?><Response>` + say + `<Pause length="1"/>` + say + `<Hangup/></Response>`
}
