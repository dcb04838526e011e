package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/urbansense/urbansense/internal/bridge"
	"github.com/urbansense/urbansense/internal/health"
	"github.com/urbansense/urbansense/internal/server"
	"github.com/urbansense/urbansense/internal/settings"
	"github.com/urbansense/urbansense/internal/settings/memory"
	"github.com/urbansense/urbansense/internal/settings/mock"
)

type changeLog struct {
	mu      sync.Mutex
	profile string
	changes map[string]string
}

func (c *changeLog) record(profile string, changes map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profile, c.changes = profile, changes
}

func newServer(t *testing.T, store settings.Store, cl *changeLog, connect func(context.Context, *bridge.Device)) *httptest.Server {
	t.Helper()
	if connect == nil {
		connect = func(context.Context, *bridge.Device) {}
	}
	h := server.New(server.Config{
		Store:           store,
		Defaults:        func() settings.Settings { return settings.Settings{VoiceCommandEnabled: true, SOSContactName: "Default"} },
		Connect:         connect,
		SettingsChanged: cl.record,
		Health:          health.New(),
		Metrics:         http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics\n")) }),
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func TestGetSettings_Defaults(t *testing.T) {
	t.Parallel()
	srv := newServer(t, memory.New(), &changeLog{}, nil)

	var got settings.Settings
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/settings/phone-1", "", &got); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !got.VoiceCommandEnabled || got.SOSContactName != "Default" {
		t.Errorf("settings = %+v, want configured defaults", got)
	}
}

func TestPutSettings(t *testing.T) {
	t.Parallel()
	store := memory.New()
	cl := &changeLog{}
	srv := newServer(t, store, cl, nil)

	var got settings.Settings
	code := doJSON(t, http.MethodPut, srv.URL+"/api/settings/phone-1",
		`{"voiceCommandEnabled": false, "sosContactName": "Asha", "sosContactNumber": "+911234567890"}`, &got)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if got.VoiceCommandEnabled || got.SOSContactName != "Asha" || !got.HasSOSContact() {
		t.Errorf("response = %+v", got)
	}

	v, err := store.Get(context.Background(), "phone-1", settings.KeyVoiceCommandEnabled)
	if err != nil || v != "false" {
		t.Errorf("stored voiceCommandEnabled = %q, %v", v, err)
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.profile != "phone-1" || cl.changes[settings.KeySOSContactName] != "Asha" || cl.changes[settings.KeyVoiceCommandEnabled] != "false" {
		t.Errorf("SettingsChanged got %q %v", cl.profile, cl.changes)
	}
}

func TestPutSettings_BadRequests(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{"not an object", `[1,2]`},
		{"unknown key", `{"theme": "dark"}`},
		{"bad boolean", `{"mockDataMode": "maybe"}`},
		{"number value", `{"sosContactNumber": 12345}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cl := &changeLog{}
			srv := newServer(t, memory.New(), cl, nil)

			var body struct{ Error string }
			if code := doJSON(t, http.MethodPut, srv.URL+"/api/settings/p", tt.body, &body); code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", code)
			}
			if body.Error == "" {
				t.Error("expected error message")
			}
			if cl.changes != nil {
				t.Error("SettingsChanged should not be called")
			}
		})
	}
}

func TestSettings_StoreFailure(t *testing.T) {
	t.Parallel()
	store := &mock.Store{LoadErr: errors.New("disk gone")}
	srv := newServer(t, store, &changeLog{}, nil)

	if code := doJSON(t, http.MethodGet, srv.URL+"/api/settings/p", "", nil); code != http.StatusInternalServerError {
		t.Errorf("GET status = %d, want 500", code)
	}
	if code := doJSON(t, http.MethodPut, srv.URL+"/api/settings/p", `{"sosContactName":"A"}`, nil); code != http.StatusInternalServerError {
		t.Errorf("PUT status = %d, want 500", code)
	}
}

func TestProbesAndMetrics(t *testing.T) {
	t.Parallel()
	srv := newServer(t, memory.New(), &changeLog{}, nil)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
	}
}

func TestDeviceSocket(t *testing.T) {
	t.Parallel()

	connected := make(chan string, 1)
	srv := newServer(t, memory.New(), &changeLog{}, func(ctx context.Context, dev *bridge.Device) {
		defer dev.Close()
		connected <- dev.Profile()
		_ = dev.Welcome(ctx, "session-1", []string{"en"})
		<-dev.Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	if err := wsjson.Write(ctx, conn, map[string]any{"type": "hello", "profile": "phone-7"}); err != nil {
		t.Fatalf("hello: %v", err)
	}
	select {
	case p := <-connected:
		if p != "phone-7" {
			t.Errorf("profile = %q", p)
		}
	case <-ctx.Done():
		t.Fatal("Connect not called")
	}

	var welcome struct {
		Type      string `json:"type"`
		SessionID string `json:"sessionId"`
	}
	if err := wsjson.Read(ctx, conn, &welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if welcome.Type != "welcome" || welcome.SessionID != "session-1" {
		t.Errorf("welcome = %+v", welcome)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
