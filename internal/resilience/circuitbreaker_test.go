package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("vision backend: 503")

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "vision/gemini"})
	if cb.maxFailures != 5 || cb.resetTimeout != 30*time.Second || cb.halfOpenMax != 3 {
		t.Errorf("defaults = %d/%v/%d, want 5/30s/3", cb.maxFailures, cb.resetTimeout, cb.halfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v", cb.State())
	}
}

// step is one action against a breaker followed by the state it should be
// in afterwards.
type step struct {
	do        string // "ok", "fail", "cancel", "wait", "reset"
	wantErr   error  // for calls; nil means the call's own result
	wantCall  bool   // whether fn should have run
	wantState State
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	const reset = 10 * time.Millisecond

	tests := []struct {
		name  string
		cfg   CircuitBreakerConfig
		steps []step
	}{
		{
			name: "consecutive failures trip the breaker",
			cfg:  CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour},
			steps: []step{
				{do: "fail", wantCall: true, wantState: StateClosed},
				{do: "fail", wantCall: true, wantState: StateClosed},
				{do: "fail", wantCall: true, wantState: StateOpen},
				{do: "ok", wantErr: ErrCircuitOpen, wantState: StateOpen},
			},
		},
		{
			name: "a success clears the failure streak",
			cfg:  CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour},
			steps: []step{
				{do: "fail", wantCall: true, wantState: StateClosed},
				{do: "fail", wantCall: true, wantState: StateClosed},
				{do: "ok", wantCall: true, wantState: StateClosed},
				{do: "fail", wantCall: true, wantState: StateClosed},
				{do: "fail", wantCall: true, wantState: StateClosed},
			},
		},
		{
			name: "probes close a recovered backend",
			cfg:  CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: reset, HalfOpenMax: 2},
			steps: []step{
				{do: "fail", wantCall: true, wantState: StateClosed},
				{do: "fail", wantCall: true, wantState: StateOpen},
				{do: "wait", wantState: StateHalfOpen},
				{do: "ok", wantCall: true, wantState: StateHalfOpen},
				{do: "ok", wantCall: true, wantState: StateClosed},
			},
		},
		{
			name: "a failed probe reopens",
			cfg:  CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: reset, HalfOpenMax: 3},
			steps: []step{
				{do: "fail", wantCall: true, wantState: StateClosed},
				{do: "fail", wantCall: true, wantState: StateOpen},
				{do: "wait", wantState: StateHalfOpen},
				{do: "fail", wantCall: true, wantState: StateOpen},
			},
		},
		{
			name: "cancelled calls count for nothing",
			cfg:  CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: reset, HalfOpenMax: 1},
			steps: []step{
				{do: "cancel", wantCall: true, wantState: StateClosed},
				{do: "cancel", wantCall: true, wantState: StateClosed},
				{do: "fail", wantCall: true, wantState: StateOpen},
				{do: "wait", wantState: StateHalfOpen},
				{do: "cancel", wantCall: true, wantState: StateHalfOpen},
				{do: "ok", wantCall: true, wantState: StateClosed},
			},
		},
		{
			name: "reset closes an open breaker",
			cfg:  CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
			steps: []step{
				{do: "fail", wantCall: true, wantState: StateOpen},
				{do: "reset", wantState: StateClosed},
				{do: "ok", wantCall: true, wantState: StateClosed},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Name = "vision/gemini"
			cb := NewCircuitBreaker(tt.cfg)

			for i, s := range tt.steps {
				switch s.do {
				case "wait":
					time.Sleep(reset + 5*time.Millisecond)
				case "reset":
					cb.Reset()
				default:
					var result error
					switch s.do {
					case "fail":
						result = errUpstream
					case "cancel":
						result = context.Canceled
					}
					called := false
					err := cb.Execute(func() error {
						called = true
						return result
					})
					if called != s.wantCall {
						t.Errorf("step %d (%s): called = %v, want %v", i, s.do, called, s.wantCall)
					}
					want := result
					if s.wantErr != nil {
						want = s.wantErr
					}
					if !errors.Is(err, want) {
						t.Errorf("step %d (%s): err = %v, want %v", i, s.do, err, want)
					}
				}
				if got := cb.State(); got != s.wantState {
					t.Fatalf("step %d (%s): state = %v, want %v", i, s.do, got, s.wantState)
				}
			}
		})
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var changes []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "vision/openai",
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  1,
		OnStateChange: func(name string, from, to State) {
			changes = append(changes, name+":"+from.String()+"->"+to.String())
		},
	})

	_ = cb.Execute(func() error { return errUpstream })
	time.Sleep(15 * time.Millisecond)
	_ = cb.Execute(func() error { return nil })

	want := []string{
		"vision/openai:closed->open",
		"vision/openai:open->half-open",
		"vision/openai:half-open->closed",
	}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("changes[%d] = %q, want %q", i, changes[i], want[i])
		}
	}
	if cb.Name() != "vision/openai" {
		t.Errorf("Name() = %q", cb.Name())
	}
	if got := State(99).String(); got != "unknown" {
		t.Errorf("State(99) = %q", got)
	}
}
