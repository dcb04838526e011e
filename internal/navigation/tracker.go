package navigation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/urbansense/urbansense/pkg/device"
	"github.com/urbansense/urbansense/pkg/geo"
)

// DefaultLocateTimeout bounds a one-shot position fetch.
const DefaultLocateTimeout = 10 * time.Second

// TrackerOption configures a [Tracker].
type TrackerOption func(*Tracker)

// WithLocateTimeout sets the one-shot position timeout.
func WithLocateTimeout(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithTrackerLogger sets the logger used for watch failures.
func WithTrackerLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.log = l }
}

// Tracker fetches device positions once or continuously. A Tracker holds at
// most one active watch; starting a new one stops the previous.
//
// All methods are safe for concurrent use.
type Tracker struct {
	geo     device.Geolocator
	timeout time.Duration
	log     *slog.Logger

	mu   sync.Mutex
	stop func()
}

// NewTracker returns a Tracker reading positions from g.
func NewTracker(g device.Geolocator, opts ...TrackerOption) *Tracker {
	t := &Tracker{geo: g, timeout: DefaultLocateTimeout}
	for _, o := range opts {
		o(t)
	}
	if t.log == nil {
		t.log = slog.Default()
	}
	return t
}

// Current fetches the device position once.
func (t *Tracker) Current(ctx context.Context) (geo.Coordinates, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	c, err := t.geo.CurrentPosition(ctx)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("navigation: current position: %w", err)
	}
	return c, nil
}

// Open starts a continuous watch delivering positions to fn and returns its
// stop func without keeping it. Opening can block on a round-trip to the
// device, so callers that must stay responsive open off their own goroutine
// and hand the result to [Tracker.Adopt]. Watch errors are logged and the
// watch keeps running.
func (t *Tracker) Open(ctx context.Context, fn func(geo.Coordinates)) (func(), error) {
	stop, err := t.geo.WatchPosition(ctx, func(u device.PositionUpdate) {
		if u.Err != nil {
			t.log.Warn("navigation: position watch error", "err", u.Err)
			return
		}
		fn(u.Coords)
	})
	if err != nil {
		return nil, fmt.Errorf("navigation: watch position: %w", err)
	}
	return stop, nil
}

// Adopt makes stop the active watch, stopping any previous one.
func (t *Tracker) Adopt(stop func()) {
	t.mu.Lock()
	prev := t.stop
	t.stop = stop
	t.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// Watch is Open followed by Adopt.
func (t *Tracker) Watch(ctx context.Context, fn func(geo.Coordinates)) error {
	t.Stop()
	stop, err := t.Open(ctx, fn)
	if err != nil {
		return err
	}
	t.Adopt(stop)
	return nil
}

// Watching reports whether a watch is active.
func (t *Tracker) Watching() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

// Stop ends the active watch. It is safe to call at any time.
func (t *Tracker) Stop() {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
}
