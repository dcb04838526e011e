package app_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/urbansense/urbansense/internal/app"
	"github.com/urbansense/urbansense/internal/session"
	"github.com/urbansense/urbansense/internal/settings"
	"github.com/urbansense/urbansense/internal/settings/memory"
	devicemock "github.com/urbansense/urbansense/pkg/device/mock"
	directionsmock "github.com/urbansense/urbansense/pkg/provider/directions/mock"
	transitmock "github.com/urbansense/urbansense/pkg/provider/transit/mock"
	visionmock "github.com/urbansense/urbansense/pkg/provider/vision/mock"
)

// testConn adapts the device mock to app.Conn.
type testConn struct {
	*devicemock.Device
	profile string

	mu        sync.Mutex
	sessionID string
	languages []string
	closes    int
}

func newConn(profile string) *testConn {
	return &testConn{Device: devicemock.New(), profile: profile}
}

func (c *testConn) Profile() string { return c.profile }

func (c *testConn) Welcome(_ context.Context, sessionID string, langs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID, c.languages = sessionID, langs
	return nil
}

func (c *testConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.Device.Close()
	return nil
}

func (c *testConn) welcomed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID != ""
}

func (c *testConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func testProviders() *app.Providers {
	return &app.Providers{
		Vision:     &visionmock.Provider{AnalyzeResult: "A bench is on your left."},
		Directions: &directionsmock.Provider{City: "New Delhi"},
		Transit:    &transitmock.Provider{Result: "Take the Yellow Line."},
	}
}

func newTestSessionManager() *app.SessionManager {
	return app.NewSessionManager(app.SessionManagerConfig{
		Providers:      testProviders(),
		Store:          memory.New(),
		Tunables:       session.Tunables{SynthesisSettle: time.Millisecond},
		Defaults:       settings.Defaults(),
		VoiceLanguages: []string{"en-IN", "en"},
	})
}

// serve starts sm.Serve on its own goroutine.
func serve(ctx context.Context, sm *app.SessionManager, c *testConn) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- sm.Serve(ctx, c) }()
	return ch
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestSessionManager_ServeUntilDisconnect(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager()
	c := newConn("phone-1")
	done := serve(context.Background(), sm, c)

	waitFor(t, "welcome", c.welcomed)
	infos := sm.Sessions()
	if len(infos) != 1 || infos[0].Profile != "phone-1" || infos[0].SessionID == "" {
		t.Fatalf("Sessions() = %+v", infos)
	}

	c.mu.Lock()
	if c.sessionID != infos[0].SessionID {
		t.Errorf("welcomed with %q, want %q", c.sessionID, infos[0].SessionID)
	}
	if !slices.Equal(c.languages, []string{"en-IN", "en"}) {
		t.Errorf("voice languages = %v", c.languages)
	}
	c.mu.Unlock()

	c.Device.Close()
	if err := waitErr(t, done); err != nil {
		t.Errorf("Serve() = %v, want nil on disconnect", err)
	}
	if n := sm.Count(); n != 0 {
		t.Errorf("Count() = %d after disconnect", n)
	}
	if c.closeCount() == 0 {
		t.Error("conn not closed")
	}
}

func TestSessionManager_ContextCancel(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager()
	ctx, cancel := context.WithCancel(context.Background())
	done := serve(ctx, sm, newConn("p"))
	waitFor(t, "session to register", func() bool { return sm.Count() == 1 })

	cancel()
	if err := waitErr(t, done); err != nil {
		t.Errorf("Serve() = %v, want nil on cancel", err)
	}
}

func TestSessionManager_ApplySettings(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager()
	a1, a2, b := newConn("a"), newConn("a"), newConn("b")
	d1 := serve(context.Background(), sm, a1)
	d2 := serve(context.Background(), sm, a2)
	d3 := serve(context.Background(), sm, b)
	waitFor(t, "three sessions", func() bool { return sm.Count() == 3 })

	if n := sm.ApplySettings("a", map[string]string{settings.KeySOSContactName: "Asha"}); n != 2 {
		t.Errorf("ApplySettings(a) = %d, want 2", n)
	}
	if n := sm.ApplySettings("nobody", map[string]string{settings.KeySOSContactName: "Asha"}); n != 0 {
		t.Errorf("ApplySettings(nobody) = %d, want 0", n)
	}

	ids := map[string]bool{}
	for _, info := range sm.Sessions() {
		ids[info.SessionID] = true
	}
	if len(ids) != 3 {
		t.Errorf("session ids not unique: %v", ids)
	}

	for _, c := range []*testConn{a1, a2, b} {
		c.Device.Close()
	}
	for _, d := range []<-chan error{d1, d2, d3} {
		_ = waitErr(t, d)
	}
}

func TestSessionManager_StopAll(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager()
	done := serve(context.Background(), sm, newConn("p"))
	waitFor(t, "session to register", func() bool { return sm.Count() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := sm.StopAll(ctx); err != nil {
		t.Fatalf("StopAll() = %v", err)
	}
	if err := waitErr(t, done); err != nil {
		t.Errorf("Serve() = %v, want nil", err)
	}

	late := newConn("p")
	if err := sm.Serve(context.Background(), late); !errors.Is(err, app.ErrShuttingDown) {
		t.Errorf("Serve after StopAll = %v, want ErrShuttingDown", err)
	}
	if late.closeCount() != 1 {
		t.Error("rejected conn should be closed")
	}
}

func TestSessionManager_Update(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager()
	want := settings.Settings{VoiceCommandEnabled: false, MockDataMode: true}
	sm.Update(session.Tunables{ArrivalThreshold: 25}, want, []string{"en-GB"})

	if got := sm.Defaults(); got != want {
		t.Errorf("Defaults() = %+v, want %+v", got, want)
	}

	c := newConn("p")
	done := serve(context.Background(), sm, c)
	waitFor(t, "welcome", c.welcomed)
	c.mu.Lock()
	if !slices.Equal(c.languages, []string{"en-GB"}) {
		t.Errorf("voice languages = %v, want reloaded value", c.languages)
	}
	c.mu.Unlock()
	c.Device.Close()
	_ = waitErr(t, done)
}
