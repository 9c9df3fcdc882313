package cgisession

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session_db.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	// Missing file is an empty store
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load of missing file failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty store, got %v", got)
	}

	in := Sessions{
		"0b5f3c1e-8f43-4c62-9d3a-2d1f0f6c0a11": {"visits": int64(3)},
		"9a0e4b8c-1d2f-4e3a-8b7c-6d5e4f3a2b1c": {"visits": int64(1), "theme": "dark"},
	}
	if err := store.Save(ctx, in); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// On-disk format is a plain {token: {counters}} object
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk map[string]map[string]any
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("file is not a JSON object: %v (%s)", err, raw)
	}
	if onDisk["0b5f3c1e-8f43-4c62-9d3a-2d1f0f6c0a11"]["visits"] != float64(3) {
		t.Errorf("unexpected file content: %s", raw)
	}

	got, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got["0b5f3c1e-8f43-4c62-9d3a-2d1f0f6c0a11"].Int(VisitsKey) != 3 {
		t.Errorf("unexpected visits: %v", got)
	}
	if v, ok := got["9a0e4b8c-1d2f-4e3a-8b7c-6d5e4f3a2b1c"]["visits"].(int64); !ok || v != 1 {
		t.Errorf("expected integral numbers to load as int64, got %T", got["9a0e4b8c-1d2f-4e3a-8b7c-6d5e4f3a2b1c"]["visits"])
	}
	if got["9a0e4b8c-1d2f-4e3a-8b7c-6d5e4f3a2b1c"]["theme"] != "dark" {
		t.Errorf("string value lost: %v", got)
	}

	// The whole mapping is replaced, not merged
	if err := store.Save(ctx, Sessions{}); err != nil {
		t.Fatal(err)
	}
	got, _ = store.Load(ctx)
	if len(got) != 0 {
		t.Errorf("expected empty mapping after rewrite, got %v", got)
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	for name, content := range map[string]string{
		"garbage":        "not json",
		"array":          "[1,2,3]",
		"non-object val": `{"a": 5}`,
		"trailing":       `{"a": {"visits": 1}} {}`,
		"truncated":      `{"a": {"visits": 1}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "session_db.json")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			store, _ := NewFileStore(path)
			if _, err := store.Load(context.Background()); !errors.Is(err, ErrCorruptStore) {
				t.Errorf("expected ErrCorruptStore, got %v", err)
			}

			// The manager surfaces it instead of resetting
			mgr := newTestManager(t, store, false)
			if _, _, err := mgr.Visit(context.Background(), ""); !errors.Is(err, ErrCorruptStore) {
				t.Errorf("expected ErrCorruptStore from Visit, got %v", err)
			}
			after, _ := os.ReadFile(path)
			if string(after) != content {
				t.Error("corrupt file must not be overwritten")
			}
		})
	}
}

func TestFileStore_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session_db.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	store, _ := NewFileStore(path)
	got, err := store.Load(context.Background())
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty store for empty file, got %v, %v", got, err)
	}
}

func TestFileStore_AtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session_db.json")
	store, err := NewFileStoreWithConfig(FileConfig{Path: path, AtomicWrite: true, Perm: 0o600})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, Sessions{"a": {"visits": int64(1)}}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Errorf("expected mode 0600, got %v", fi.Mode().Perm())
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestFileStore_WriteFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "session_db.json")
	store, _ := NewFileStore(path)
	if err := store.Save(context.Background(), Sessions{}); err == nil {
		t.Fatal("expected write error")
	}
}

func TestFileStore_MaxBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session_db.json")
	store, _ := NewFileStoreWithConfig(FileConfig{Path: path, MaxBytes: 16})
	ctx := context.Background()

	big := Sessions{"0b5f3c1e-8f43-4c62-9d3a-2d1f0f6c0a11": {"visits": int64(1)}}
	if err := store.Save(ctx, big); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrStoreTooLarge) {
		t.Errorf("expected ErrStoreTooLarge, got %v", err)
	}
}

func TestFileStore_CanceledContext(t *testing.T) {
	store, _ := NewFileStore(filepath.Join(t.TempDir(), "s.json"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := store.Save(ctx, Sessions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewFileStore_EmptyPath(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestPutBufferVerifier(t *testing.T) {
	buf, err := encodeSessions(Sessions{"secret": {"k": "My Secret Data"}})
	if err != nil {
		t.Fatal(err)
	}
	view := buf.Bytes()

	PutBuffer(buf)

	for i, b := range view {
		if b != 0 {
			t.Errorf("Byte at index %d was not zeroed! Got: %d", i, b)
		}
	}
	if buf.Len() != 0 {
		t.Errorf("Buffer was not reset")
	}
}
