package speech

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/urbansense/urbansense/pkg/device/mock"
)

// waitDone fails the test if ch is not closed within d.
func waitDone(t *testing.T, ch <-chan struct{}, d time.Duration, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(d):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// completion returns a callback and a channel closed when it has fired. The
// callback fails the test if it fires twice.
func completion(t *testing.T) (func(), <-chan struct{}) {
	t.Helper()
	ch := make(chan struct{})
	var fired atomic.Int32
	return func() {
		if fired.Add(1) > 1 {
			t.Error("completion fired more than once")
			return
		}
		close(ch)
	}, ch
}

func newChannel(t *testing.T, d *mock.Device, opts ...Option) *Channel {
	t.Helper()
	c := NewChannel(d, append([]Option{WithSettle(time.Millisecond)}, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Turn left onto Janpath.", "turn left onto janpath"},
		{"Step 3: Turn LEFT onto Janpath!", "turn left onto janpath"},
		{"2. Continue straight", "continue straight"},
		{"  Where   would you like to go?  ", "where would you like to go"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSpeak_DeduplicatesQueuedRequest(t *testing.T) {
	t.Parallel()

	d := mock.New()
	d.SpeakDuration = 30 * time.Millisecond
	c := newChannel(t, d)

	cb1, done1 := completion(t)
	cb2, done2 := completion(t)
	c.Speak("Turn left.", cb1)
	c.Speak("turn left", cb2)

	waitDone(t, done1, time.Second, "first completion")
	waitDone(t, done2, time.Second, "second completion")

	if got := d.SpokenTexts(); len(got) != 1 {
		t.Errorf("spoken = %q, want exactly one utterance", got)
	}
}

func TestSpeak_DedupWindowExpires(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	now := time.Unix(1000, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	d := mock.New()
	c := newChannel(t, d, WithClock(clock))

	cb, done := completion(t)
	c.Speak("You have arrived.", cb)
	waitDone(t, done, time.Second, "first utterance")

	cb, done = completion(t)
	c.Speak("You have arrived.", cb)
	waitDone(t, done, time.Second, "deduplicated utterance")
	if n := len(d.SpokenTexts()); n != 1 {
		t.Fatalf("spoken %d times inside window, want 1", n)
	}

	mu.Lock()
	now = now.Add(DefaultDedupWindow + time.Second)
	mu.Unlock()

	cb, done = completion(t)
	c.Speak("You have arrived.", cb)
	waitDone(t, done, time.Second, "utterance after window")
	if n := len(d.SpokenTexts()); n != 2 {
		t.Errorf("spoken %d times after window, want 2", n)
	}
}

func TestSpeak_SerializesInOrder(t *testing.T) {
	t.Parallel()

	d := mock.New()
	d.SpeakDuration = 15 * time.Millisecond
	c := newChannel(t, d)

	texts := []string{"one", "two", "three"}
	dones := make([]<-chan struct{}, len(texts))
	for i, text := range texts {
		var cb func()
		cb, dones[i] = completion(t)
		c.Speak(text, cb)
	}
	for i, done := range dones {
		waitDone(t, done, time.Second, texts[i])
	}

	if got := d.SpokenTexts(); !slices.Equal(got, texts) {
		t.Errorf("spoken = %q, want %q", got, texts)
	}
	if n := d.MaxConcurrentSpeech(); n != 1 {
		t.Errorf("max concurrent speech = %d, want 1", n)
	}
}

func TestSpeak_SkipsBlankAndUnavailable(t *testing.T) {
	t.Parallel()

	t.Run("blank", func(t *testing.T) {
		t.Parallel()
		d := mock.New()
		c := newChannel(t, d)
		cb, done := completion(t)
		c.Speak("   ", cb)
		waitDone(t, done, time.Second, "blank completion")
		if n := len(d.SpokenTexts()); n != 0 {
			t.Errorf("spoke %d utterances, want 0", n)
		}
	})

	t.Run("unavailable", func(t *testing.T) {
		t.Parallel()
		d := mock.New()
		d.NoSpeech = true
		c := newChannel(t, d)
		cb, done := completion(t)
		c.Speak("hello", cb)
		waitDone(t, done, time.Second, "unavailable completion")
		if n := len(d.SpokenTexts()); n != 0 {
			t.Errorf("spoke %d utterances, want 0", n)
		}
	})
}

func TestSpeak_ErrorStillCompletes(t *testing.T) {
	t.Parallel()

	d := mock.New()
	d.SpeakErr = errors.New("synthesis-failed")
	c := newChannel(t, d)

	cb, done := completion(t)
	c.Speak("hello", cb)
	waitDone(t, done, time.Second, "completion after error")
}

func TestSpeak_TimeoutForcesCompletion(t *testing.T) {
	t.Parallel()

	d := mock.New()
	d.SpeakHang = true
	t.Cleanup(d.Release)
	c := newChannel(t, d, WithTimeout(40*time.Millisecond))

	cb, done := completion(t)
	c.Speak("stuck", cb)
	waitDone(t, done, time.Second, "forced completion")
}

func TestCancel_FlushesQueueAndInterrupts(t *testing.T) {
	t.Parallel()

	d := mock.New()
	d.SpeakDuration = 5 * time.Second
	c := newChannel(t, d)

	texts := []string{"first", "second", "third"}
	dones := make([]<-chan struct{}, len(texts))
	for i, text := range texts {
		var cb func()
		cb, dones[i] = completion(t)
		c.Speak(text, cb)
	}

	deadline := time.Now().Add(time.Second)
	for len(d.SpokenTexts()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first utterance never started")
		}
		time.Sleep(time.Millisecond)
	}

	c.Cancel(context.Background())
	for i, done := range dones {
		waitDone(t, done, time.Second, texts[i])
	}

	if got := d.SpokenTexts(); !slices.Equal(got, []string{"first"}) {
		t.Errorf("spoken = %q, want only the active utterance", got)
	}
	if c.Active() {
		t.Error("channel still active after cancel")
	}
}

func TestActivityHook(t *testing.T) {
	t.Parallel()

	d := mock.New()
	d.SpeakDuration = 20 * time.Millisecond

	signals := make(chan struct{}, 8)
	c := newChannel(t, d, WithActivityHook(func() { signals <- struct{}{} }))

	cb, done := completion(t)
	c.Speak("hello", cb)
	if !c.Active() {
		t.Error("Active() = false right after Speak")
	}
	waitDone(t, done, time.Second, "completion")

	for i := range 2 {
		select {
		case <-signals:
		case <-time.After(time.Second):
			t.Fatalf("activity signal %d not received", i+1)
		}
	}

	deadline := time.Now().Add(time.Second)
	for c.Active() {
		if time.Now().After(deadline) {
			t.Fatal("channel still active after completion")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	c := NewChannel(mock.New())
	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	cb, done := completion(t)
	c.Speak("after close", cb)
	waitDone(t, done, time.Second, "completion after close")
}
