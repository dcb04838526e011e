package directions

import (
	"errors"
	"fmt"
	"testing"

	"github.com/urbansense/urbansense/pkg/geo"
)

func TestCleanQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"find me the nearest cafe", "cafe"},
		{"Navigate to the Central Library", "Central Library"},
		{"go to   an  ATM", "ATM"},
		{"show me a pharmacy", "pharmacy"},
		{"the", ""},
		{"  ", ""},
		{"Rajiv Chowk metro station", "Rajiv Chowk metro station"},
		// Whole words only: "a" inside "plaza" is untouched.
		{"find a plaza", "plaza"},
	}
	for _, tt := range tests {
		if got := CleanQuery(tt.in); got != tt.want {
			t.Errorf("CleanQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAppendArrival(t *testing.T) {
	t.Parallel()

	last := geo.Coordinates{Latitude: 1, Longitude: 2}
	steps := []DirectionStep{
		{Instruction: "Head north", Location: geo.Coordinates{}},
		{Instruction: "Turn left", Location: last},
	}
	got := AppendArrival(steps, "Blue Tokai, Connaught Place, New Delhi")
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	arrival := got[2]
	if arrival.Location != last {
		t.Errorf("arrival location = %v, want %v", arrival.Location, last)
	}
	want := "You have arrived at your destination: Blue Tokai, Connaught Place, New Delhi."
	if arrival.Instruction != want {
		t.Errorf("instruction = %q", arrival.Instruction)
	}
}

func TestShortName(t *testing.T) {
	t.Parallel()

	if got := ShortName("Blue Tokai, Connaught Place, New Delhi"); got != "Blue Tokai" {
		t.Errorf("ShortName = %q", got)
	}
	if got := ShortName("Library"); got != "Library" {
		t.Errorf("ShortName = %q", got)
	}
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("osm: get directions: %w", NewNotFoundError("cafe"))
	if got := UserMessage(wrapped); got != `Sorry, I couldn't find "cafe" near you.` {
		t.Errorf("UserMessage = %q", got)
	}
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("expected errors.Is(ErrNotFound)")
	}
	if got := UserMessage(errors.New("boom")); got != MsgDirectionsFallback {
		t.Errorf("UserMessage = %q", got)
	}
	if got := UserMessage(NewEmptyQueryError()); got != MsgEmptyQuery {
		t.Errorf("UserMessage = %q", got)
	}
}

func TestErrorUnwrapCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: refused")
	err := &Error{Kind: ErrUnavailable, Message: MsgSearchUnavailable, Err: cause}
	if !errors.Is(err, cause) || !errors.Is(err, ErrUnavailable) {
		t.Error("expected both kind and cause to match")
	}
}
