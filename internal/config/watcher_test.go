package config_test

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/urbansense/urbansense/internal/config"
)

// cityYAML renders a minimal deployment config. Only the fields the reload
// tests flip are parameters.
func cityYAML(level string, arrivalM int, mockData bool, vision string) string {
	return fmt.Sprintf(`
server:
  log_level: %s
providers:
  vision:
    name: %s
settings:
  defaults:
    mock_data_mode: %t
session:
  arrival_threshold_m: %d
`, level, vision, mockData, arrivalM)
}

type reload struct{ old, new *config.Config }

// watch writes initial to a fresh config.yaml and starts a watcher with a
// short debounce. Reloads are delivered on the returned channel.
func watch(t *testing.T, initial string) (string, *config.Watcher, <-chan reload) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	write(t, path, initial)

	ch := make(chan reload, 8)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		ch <- reload{old, new}
	}, config.WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	// fsnotify needs a moment before the first event is reliably seen.
	time.Sleep(100 * time.Millisecond)
	return path, w, ch
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func next(t *testing.T, ch <-chan reload) reload {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no reload within 2s")
		return reload{}
	}
}

func none(t *testing.T, ch <-chan reload) {
	t.Helper()
	select {
	case r := <-ch:
		t.Fatalf("unexpected reload to %+v", r.new.Server)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_HotReloadsSessionAndDefaults(t *testing.T) {
	t.Parallel()
	path, w, ch := watch(t, cityYAML("info", 15, false, "gemini"))

	if got := w.Current().Session.ArrivalThresholdM; got != 15 {
		t.Fatalf("initial arrival threshold = %v", got)
	}

	write(t, path, cityYAML("debug", 25, true, "gemini"))
	r := next(t, ch)

	if r.old.Session.ArrivalThresholdM != 15 || r.new.Session.ArrivalThresholdM != 25 {
		t.Errorf("arrival threshold %v -> %v, want 15 -> 25", r.old.Session.ArrivalThresholdM, r.new.Session.ArrivalThresholdM)
	}
	if w.Current() != r.new {
		t.Error("Current() does not return the reloaded config")
	}

	d := config.Diff(r.old, r.new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %v/%q", d.LogLevelChanged, d.NewLogLevel)
	}
	if !d.SessionChanged || !d.DefaultsChanged {
		t.Errorf("diff = %+v, want session and defaults changed", d)
	}
	if !d.HotReloadable() {
		t.Errorf("restart required for %v", d.RestartRequired)
	}
}

func TestWatcher_ProviderSwapNeedsRestart(t *testing.T) {
	t.Parallel()
	path, _, ch := watch(t, cityYAML("info", 15, false, "gemini"))

	write(t, path, cityYAML("info", 15, false, "openai"))
	r := next(t, ch)

	d := config.Diff(r.old, r.new)
	if d.HotReloadable() || !slices.Contains(d.RestartRequired, "providers") {
		t.Errorf("RestartRequired = %v, want providers", d.RestartRequired)
	}
	if d.SessionChanged || d.DefaultsChanged || d.LogLevelChanged {
		t.Errorf("diff = %+v, want only the provider change", d)
	}
}

func TestWatcher_IgnoresNonChanges(t *testing.T) {
	t.Parallel()
	initial := cityYAML("info", 15, false, "gemini")
	path, w, ch := watch(t, initial)

	// Invalid content is rejected and the last good config stays current.
	write(t, path, "server:\n  log_level: bananas\n")
	none(t, ch)
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Errorf("Current() log level = %q after invalid write", w.Current().Server.LogLevel)
	}

	// Restoring identical bytes is not a change either.
	write(t, path, initial)
	none(t, ch)

	// Neither is a touch.
	later := time.Now().Add(time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	none(t, ch)

	// Nor a write to a sibling file in the watched directory.
	write(t, filepath.Join(filepath.Dir(path), "demo.env"), "GEMINI_API_KEY=x\n")
	none(t, ch)
}

func TestWatcher_AtomicReplace(t *testing.T) {
	t.Parallel()
	path, _, ch := watch(t, cityYAML("info", 15, false, "gemini"))

	tmp := path + ".tmp"
	write(t, tmp, cityYAML("info", 30, false, "gemini"))
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}

	if got := next(t, ch).new.Session.ArrivalThresholdM; got != 30 {
		t.Errorf("arrival threshold = %v, want 30", got)
	}
}

func TestWatcher_Lifecycle(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Error("NewWatcher on a missing file succeeded")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	write(t, path, cityYAML("warn", 15, false, "gemini"))
	w, err := config.NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if w.Current().Server.LogLevel != config.LogWarn {
		t.Errorf("log level = %q", w.Current().Server.LogLevel)
	}
	w.Stop()
	w.Stop()
}
