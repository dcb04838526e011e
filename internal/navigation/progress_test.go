package navigation

import (
	"testing"

	"github.com/urbansense/urbansense/pkg/geo"
	"github.com/urbansense/urbansense/pkg/provider/directions"
)

var (
	stepA = geo.Coordinates{Latitude: 28.6315, Longitude: 77.2167}
	stepB = geo.Coordinates{Latitude: 28.6325, Longitude: 77.2180}
)

func testRoute() directions.RouteDetails {
	return directions.RouteDetails{
		DestinationName: "Blue Tokai Coffee",
		TotalDistance:   850,
		Steps: directions.AppendArrival([]directions.DirectionStep{
			{Instruction: "Head north on Janpath", Location: stepA},
			{Instruction: "Turn right onto Barakhamba Road", Location: stepB},
		}, "Blue Tokai Coffee, Connaught Place"),
	}
}

// offsetNorth returns c moved roughly meters to the north.
func offsetNorth(c geo.Coordinates, meters float64) geo.Coordinates {
	return geo.Coordinates{Latitude: c.Latitude + meters/111_195, Longitude: c.Longitude}
}

func TestProgress_IndexStaysInBounds(t *testing.T) {
	t.Parallel()

	p := NewProgress(testRoute())
	n := p.Len()
	for i := 0; i < n+3; i++ {
		p.Advance()
		if idx := p.Index(); idx < 0 || idx > n {
			t.Fatalf("index = %d out of [0, %d]", idx, n)
		}
	}
	if !p.Arrived() {
		t.Error("not arrived after advancing past every step")
	}
	if p.Advance() {
		t.Error("Advance succeeded after arrival")
	}
	if _, ok := p.Current(); ok {
		t.Error("Current returned a step after arrival")
	}
}

func TestProgress_AdvanceIfNear(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		meters  float64
		advance bool
	}{
		{"on the spot", 0, true},
		{"just inside", 14, true},
		{"just outside", 16, false},
		{"far away", 200, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewProgress(testRoute())
			_, advanced := p.AdvanceIfNear(offsetNorth(stepA, tt.meters), DefaultArrivalThreshold)
			if advanced != tt.advance {
				t.Errorf("advanced = %v, want %v", advanced, tt.advance)
			}
			want := 0
			if tt.advance {
				want = 1
			}
			if p.Index() != want {
				t.Errorf("index = %d, want %d", p.Index(), want)
			}
		})
	}
}

func TestProgress_ClaimAnnouncementOncePerStep(t *testing.T) {
	t.Parallel()

	p := NewProgress(testRoute())
	if !p.ClaimAnnouncement() {
		t.Fatal("first claim for step 0 refused")
	}
	if p.ClaimAnnouncement() {
		t.Error("second claim for step 0 granted")
	}
	p.Advance()
	if !p.ClaimAnnouncement() {
		t.Error("claim for step 1 refused")
	}
}

func TestProgress_Reset(t *testing.T) {
	t.Parallel()

	p := NewProgress(testRoute())
	p.Advance()
	p.ClaimAnnouncement()
	p.Reset()

	if p.Active() || p.Index() != 0 || p.Len() != 0 {
		t.Errorf("after Reset: active=%v index=%d len=%d", p.Active(), p.Index(), p.Len())
	}
	if _, ok := p.Route(); ok {
		t.Error("Route still loaded after Reset")
	}
	if p.Advance() {
		t.Error("Advance succeeded without a route")
	}

	var nilProgress *Progress
	if nilProgress.Active() || nilProgress.Index() != 0 {
		t.Error("nil Progress should be inactive at index 0")
	}
}
