package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// backend stands in for one routing service in a failover chain.
type backend struct {
	name  string
	err   error
	calls int
}

func (b *backend) route(dest string) (string, error) {
	b.calls++
	if b.err != nil {
		return "", b.err
	}
	return b.name + ": walk to " + dest, nil
}

func newChain(cfg FallbackConfig, backends ...*backend) *FallbackGroup[*backend] {
	fg := NewFallbackGroup(backends[0], backends[0].name, cfg)
	for _, b := range backends[1:] {
		fg.AddFallback(b.name, b)
	}
	return fg
}

func routeVia(ctx context.Context, fg *FallbackGroup[*backend]) (string, error) {
	return ExecuteWithResult(ctx, fg, func(b *backend) (string, error) {
		return b.route("India Gate")
	})
}

func TestExecuteWithResult_Order(t *testing.T) {
	down := errors.New("connection reset")
	tests := []struct {
		name      string
		errs      []error
		want      string
		wantCalls []int
	}{
		{"primary answers", []error{nil, nil, nil}, "osrm: walk to India Gate", []int{1, 0, 0}},
		{"second answers", []error{down, nil, nil}, "valhalla: walk to India Gate", []int{1, 1, 0}},
		{"last answers", []error{down, down, nil}, "graphhopper: walk to India Gate", []int{1, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bs := []*backend{{name: "osrm"}, {name: "valhalla"}, {name: "graphhopper"}}
			for i, err := range tt.errs {
				bs[i].err = err
			}
			got, err := routeVia(context.Background(), newChain(FallbackConfig{}, bs...))
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			for i, b := range bs {
				if b.calls != tt.wantCalls[i] {
					t.Errorf("%s calls = %d, want %d", b.name, b.calls, tt.wantCalls[i])
				}
			}
		})
	}
}

func TestExecuteWithResult_AllFailJoinsErrors(t *testing.T) {
	errA := errors.New("timeout")
	errB := errors.New("no route")
	fg := newChain(FallbackConfig{}, &backend{name: "osrm", err: errA}, &backend{name: "valhalla", err: errB})

	_, err := routeVia(context.Background(), fg)
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("err = %v, want ErrAllFailed wrapping both", err)
	}
	for _, name := range []string{"osrm: timeout", "valhalla: no route"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("err %q missing %q", err, name)
		}
	}
	if fg.Len() != 2 {
		t.Errorf("Len() = %d", fg.Len())
	}
}

func TestFallbackGroup_OpenBreakerIsSkipped(t *testing.T) {
	primary := &backend{name: "osrm", err: errors.New("503")}
	secondary := &backend{name: "valhalla"}
	fg := newChain(FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	}, primary, secondary)

	for range 4 {
		if err := fg.Execute(context.Background(), func(b *backend) error {
			_, err := b.route("Connaught Place")
			return err
		}); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	if primary.calls != 2 {
		t.Errorf("primary calls = %d, want 2 before its breaker opened", primary.calls)
	}
	if secondary.calls != 4 {
		t.Errorf("secondary calls = %d, want 4", secondary.calls)
	}
	st := fg.States()
	if st["osrm"] != StateOpen || st["valhalla"] != StateClosed {
		t.Errorf("states = %v", st)
	}
}

func TestExecuteWithResult_StopsOnCancel(t *testing.T) {
	primary := &backend{name: "osrm"}
	secondary := &backend{name: "valhalla"}
	fg := newChain(FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	}, primary, secondary)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := ExecuteWithResult(ctx, fg, func(b *backend) (string, error) {
		b.calls++
		cancel()
		return "", context.Canceled
	})
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want bare context.Canceled", err)
	}
	if primary.calls != 1 || secondary.calls != 0 {
		t.Errorf("calls = %d/%d, want 1/0", primary.calls, secondary.calls)
	}
	if s := fg.States()["osrm"]; s != StateClosed {
		t.Errorf("osrm breaker = %v, want closed after a cancelled call", s)
	}
}

func TestExecuteWithResult_DoneContextSkipsAll(t *testing.T) {
	b := &backend{name: "osrm"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := routeVia(ctx, newChain(FallbackConfig{}, b)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if b.calls != 0 {
		t.Errorf("calls = %d, want 0", b.calls)
	}
}
