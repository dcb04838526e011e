package twilio

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/urbansense/urbansense/pkg/geo"
)

type fakeCalls struct {
	mu    sync.Mutex
	calls []*twilioApi.CreateCallParams
	err   error
}

func (f *fakeCalls) CreateCall(p *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)
	if f.err != nil {
		return nil, f.err
	}
	sid := "CA123"
	return &twilioApi.ApiV2010Call{Sid: &sid}, nil
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name             string
		sid, token, from string
	}{
		{"no sid", "", "tok", "+1555"},
		{"no token", "AC1", "", "+1555"},
		{"no from", "AC1", "tok", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.sid, tt.token, tt.from); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDial(t *testing.T) {
	t.Parallel()
	fc := &fakeCalls{}
	d := newDialer(fc, "+15550001111")

	if err := d.Dial(context.Background(), "+911234567890"); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if len(fc.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(fc.calls))
	}
	p := fc.calls[0]
	if *p.To != "+911234567890" || *p.From != "+15550001111" {
		t.Errorf("to/from = %q/%q", *p.To, *p.From)
	}
	if !strings.Contains(*p.Twiml, DefaultMessage) || !strings.Contains(*p.Twiml, "<Hangup/>") {
		t.Errorf("twiml = %s", *p.Twiml)
	}
}

func TestDialFrom_IncludesCoordinates(t *testing.T) {
	t.Parallel()
	fc := &fakeCalls{}
	d := newDialer(fc, "+15550001111", WithMessage("Asha needs help & is not answering."), WithVoice("Polly.Aditi"))

	at := geo.Coordinates{Latitude: 28.6315, Longitude: 77.2167}
	if err := d.DialFrom(context.Background(), "+911234567890", at); err != nil {
		t.Fatalf("DialFrom: %v", err)
	}
	twiml := *fc.calls[0].Twiml
	for _, want := range []string{"latitude 28.63150", "longitude 77.21670", "&amp; is not answering", `voice="Polly.Aditi"`} {
		if !strings.Contains(twiml, want) {
			t.Errorf("twiml missing %q: %s", want, twiml)
		}
	}
}

func TestDial_Errors(t *testing.T) {
	t.Parallel()

	t.Run("empty number", func(t *testing.T) {
		t.Parallel()
		fc := &fakeCalls{}
		if err := newDialer(fc, "+1").Dial(context.Background(), "  "); err == nil {
			t.Error("expected error")
		}
		if len(fc.calls) != 0 {
			t.Error("no call should be created")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		fc := &fakeCalls{}
		if err := newDialer(fc, "+1").Dial(ctx, "+2"); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want Canceled", err)
		}
	})

	t.Run("api error", func(t *testing.T) {
		t.Parallel()
		apiErr := errors.New("status 401")
		fc := &fakeCalls{err: apiErr}
		if err := newDialer(fc, "+1").Dial(context.Background(), "+2"); !errors.Is(err, apiErr) {
			t.Errorf("err = %v, want wrapped api error", err)
		}
	})
}
