// Package navigation tracks a walking route: which step the user is on,
// which steps have been announced, and where the device is.
package navigation

import (
	"github.com/urbansense/urbansense/pkg/geo"
	"github.com/urbansense/urbansense/pkg/provider/directions"
)

// DefaultArrivalThreshold is the distance in meters under which a step's
// location counts as reached.
const DefaultArrivalThreshold = 15.0

// ArrivedMessage is spoken once every step has been passed.
const ArrivedMessage = "You have arrived at your destination."

// Progress is the position of a user within a route. The zero value has no
// route.
//
// The step index only moves forward and stays within [0, len(steps)]; an
// index equal to len(steps) means the user has arrived.
type Progress struct {
	route      *directions.RouteDetails
	index      int
	lastSpoken int
}

// NewProgress starts progress at the first step of route.
func NewProgress(route directions.RouteDetails) *Progress {
	return &Progress{route: &route, lastSpoken: -1}
}

// Active reports whether a route is loaded.
func (p *Progress) Active() bool { return p != nil && p.route != nil }

// Route returns the loaded route. It returns false when none is loaded.
func (p *Progress) Route() (directions.RouteDetails, bool) {
	if !p.Active() {
		return directions.RouteDetails{}, false
	}
	return *p.route, true
}

// Index returns the current step index.
func (p *Progress) Index() int {
	if p == nil {
		return 0
	}
	return p.index
}

// Len returns the number of steps in the route.
func (p *Progress) Len() int {
	if !p.Active() {
		return 0
	}
	return len(p.route.Steps)
}

// Arrived reports whether every step has been passed.
func (p *Progress) Arrived() bool {
	return p.Active() && p.index >= len(p.route.Steps)
}

// Current returns the step the user is heading to.
func (p *Progress) Current() (directions.DirectionStep, bool) {
	if !p.Active() || p.index >= len(p.route.Steps) {
		return directions.DirectionStep{}, false
	}
	return p.route.Steps[p.index], true
}

// Advance moves to the next step. It reports false once arrived.
func (p *Progress) Advance() bool {
	if !p.Active() || p.index >= len(p.route.Steps) {
		return false
	}
	p.index++
	return true
}

// AdvanceIfNear advances when pos is closer than threshold meters to the
// current step's location. It returns the distance checked and whether the
// step advanced.
func (p *Progress) AdvanceIfNear(pos geo.Coordinates, threshold float64) (float64, bool) {
	step, ok := p.Current()
	if !ok {
		return 0, false
	}
	d := geo.Distance(pos, step.Location)
	if d < threshold {
		return d, p.Advance()
	}
	return d, false
}

// ClaimAnnouncement reports whether the current step has not been
// announced yet and records it as announced. At most one announcement per
// step index is granted.
func (p *Progress) ClaimAnnouncement() bool {
	if !p.Active() || p.index == p.lastSpoken {
		return false
	}
	p.lastSpoken = p.index
	return true
}

// Reset clears the route and returns progress to its zero state.
func (p *Progress) Reset() {
	p.route = nil
	p.index = 0
	p.lastSpoken = -1
}
