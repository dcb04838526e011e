package watson

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/urbansense/urbansense/pkg/provider/vision"
	"github.com/urbansense/urbansense/pkg/types"
)

func newServer(t *testing.T, status int, body string, check func(*http.Request, inferRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req inferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if check != nil {
			check(r, req)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyzeImage_Request(t *testing.T) {
	t.Parallel()

	srv := newServer(t, http.StatusOK, `{"results":[{"generated_text":"A staircase is ahead."}]}`, func(r *http.Request, req inferRequest) {
		if r.URL.Path != "/v1/projects/proj-1/model_inference" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if v := r.URL.Query().Get("version"); v != APIVersion {
			t.Errorf("version = %q", v)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key" {
			t.Errorf("authorization = %q", auth)
		}
		if len(req.Inputs) != 2 || req.Inputs[0].Type != "image" || req.Inputs[1].Type != "text" {
			t.Errorf("inputs = %+v", req.Inputs)
		}
		if req.Inputs[0].MIME != "image/jpeg" {
			t.Errorf("mime = %q", req.Inputs[0].MIME)
		}
	})

	p, err := New(srv.URL+"/", "key", "proj-1", "meta-llama/llama-3-2-90b-vision-instruct")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.AnalyzeImage(context.Background(), types.Image{Data: []byte("jpg")})
	if err != nil {
		t.Fatalf("AnalyzeImage: %v", err)
	}
	if got != "A staircase is ahead." {
		t.Errorf("got %q", got)
	}
}

func TestGuidance_FallbackFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"output field", `{"results":[{"output":"Go straight."}]}`, "Go straight."},
		{"text field", `{"results":[{"text":"Stop at the curb."}]}`, "Stop at the curb."},
		{"top level", `{"text":"Turn right."}`, "Turn right."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newServer(t, http.StatusOK, tt.body, func(_ *http.Request, req inferRequest) {
				if !strings.Contains(req.Inputs[1].Text, "Head north") {
					t.Errorf("prompt missing instruction: %q", req.Inputs[1].Text)
				}
			})
			p, _ := New(srv.URL, "key", "proj", "model")
			got, err := p.GenerateNavigationalGuidance(context.Background(), types.Image{}, "Head north")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnalyzeImage_Errors(t *testing.T) {
	t.Parallel()

	t.Run("status", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, http.StatusUnauthorized, `{"error":"bad key"}`, nil)
		p, _ := New(srv.URL, "key", "proj", "model")
		if _, err := p.AnalyzeImage(context.Background(), types.Image{}); err == nil || !strings.Contains(err.Error(), "401") {
			t.Errorf("err = %v, want status 401", err)
		}
	})
	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, http.StatusOK, `{"results":[]}`, nil)
		p, _ := New(srv.URL, "key", "proj", "model")
		if _, err := p.AnalyzeImage(context.Background(), types.Image{}); !errors.Is(err, vision.ErrEmptyResponse) {
			t.Errorf("err = %v, want ErrEmptyResponse", err)
		}
	})
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "k", "p", "m"); err == nil {
		t.Error("expected error for empty base url")
	}
	if _, err := New("http://x", "k", "", "m"); err == nil {
		t.Error("expected error for empty project")
	}
}
