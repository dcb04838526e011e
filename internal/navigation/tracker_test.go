package navigation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/urbansense/urbansense/pkg/device"
	"github.com/urbansense/urbansense/pkg/device/mock"
	"github.com/urbansense/urbansense/pkg/geo"
)

func TestTracker_Current(t *testing.T) {
	t.Parallel()

	d := mock.New()
	d.Position = stepA
	tr := NewTracker(d)

	got, err := tr.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if got != stepA {
		t.Errorf("Current = %v, want %v", got, stepA)
	}

	d.PositionErr = device.ErrPermissionDenied
	if _, err := tr.Current(context.Background()); !errors.Is(err, device.ErrPermissionDenied) {
		t.Errorf("Current err = %v, want ErrPermissionDenied", err)
	}
}

func TestTracker_WatchAndStop(t *testing.T) {
	t.Parallel()

	d := mock.New()
	tr := NewTracker(d)

	var mu sync.Mutex
	var got []geo.Coordinates
	if err := tr.Watch(context.Background(), func(c geo.Coordinates) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	d.EmitPosition(stepA)
	d.EmitPositionError(errors.New("position unavailable"))
	d.EmitPosition(stepB)

	mu.Lock()
	if len(got) != 2 {
		t.Errorf("received %d updates, want 2 (errors are dropped)", len(got))
	}
	mu.Unlock()

	tr.Stop()
	tr.Stop()
	if tr.Watching() || d.Watching() {
		t.Error("watch still active after Stop")
	}
	if _, _, starts, stops := d.Counts(); starts != 1 || stops != 1 {
		t.Errorf("watch starts/stops = %d/%d, want 1/1", starts, stops)
	}
}

func TestTracker_WatchReplacesPrevious(t *testing.T) {
	t.Parallel()

	d := mock.New()
	tr := NewTracker(d)
	noop := func(geo.Coordinates) {}

	if err := tr.Watch(context.Background(), noop); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := tr.Watch(context.Background(), noop); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if _, _, starts, stops := d.Counts(); starts != 2 || stops != 1 {
		t.Errorf("watch starts/stops = %d/%d, want 2/1", starts, stops)
	}

	d.WatchErr = device.ErrUnavailable
	tr.Stop()
	if err := tr.Watch(context.Background(), noop); !errors.Is(err, device.ErrUnavailable) {
		t.Errorf("Watch err = %v, want ErrUnavailable", err)
	}
}

func TestTracker_OpenThenAdopt(t *testing.T) {
	t.Parallel()

	d := mock.New()
	tr := NewTracker(d)
	noop := func(geo.Coordinates) {}

	stop, err := tr.Open(context.Background(), noop)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if tr.Watching() {
		t.Error("Open kept the watch")
	}
	if !d.Watching() {
		t.Error("device watch not started")
	}

	tr.Adopt(stop)
	if !tr.Watching() {
		t.Error("Adopt did not keep the watch")
	}
	tr.Stop()
	if d.Watching() {
		t.Error("adopted watch still running after Stop")
	}
	if _, _, starts, stops := d.Counts(); starts != 1 || stops != 1 {
		t.Errorf("watch starts/stops = %d/%d, want 1/1", starts, stops)
	}
}
