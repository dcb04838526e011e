package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/urbansense/urbansense/internal/settings"
)

func TestStore_PersistsAcrossOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Get(ctx, "p", settings.KeySOSContactName); !errors.Is(err, settings.ErrNotFound) {
		t.Fatalf("Get on empty store err = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, "p", settings.KeySOSContactName, "Asha"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "p", settings.KeyPermissionsGranted, "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Delete(ctx, "p", settings.KeyPermissionsGranted); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "p", "missing"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	kv, err := reopened.Load(ctx, "p")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(kv) != 1 || kv[settings.KeySOSContactName] != "Asha" {
		t.Errorf("reloaded = %v, want only sosContactName", kv)
	}
}

func TestOpen_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.flushLocked(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := writeFile(path, "{not json"); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("expected error opening corrupt file")
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
