package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLocalStorage(t *testing.T) {
	t.Run("creates storage with new directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		baseDir := filepath.Join(tmpDir, "files")

		store, err := NewLocalStorage(baseDir)
		if err != nil {
			t.Fatalf("Failed to create storage: %v", err)
		}
		if store == nil {
			t.Fatal("Storage should not be nil")
		}

		if _, err := os.Stat(baseDir); os.IsNotExist(err) {
			t.Error("Base directory should have been created")
		}
	})

	t.Run("rejects empty path", func(t *testing.T) {
		if _, err := NewLocalStorage(""); err == nil {
			t.Fatal("Expected error for empty path")
		}
	})
}

func TestLocalStorage_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	content := []byte("license file content")
	path, err := store.Save(ctx, content, "key.lic", "7f9c1c1e")
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}
	if path != filepath.Join("7f9c1c1e", "key.lic") {
		t.Errorf("Unexpected path: %s", path)
	}

	got, err := store.Get(ctx, path)
	if err != nil {
		t.Fatalf("Failed to get file: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("Expected %q, got %q", content, got)
	}
}

func TestLocalStorage_SaveStripsDirectoryComponents(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()
	store, err := NewLocalStorage(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	path, err := store.Save(ctx, []byte("x"), "../../etc/passwd", "owner")
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}
	if path != filepath.Join("owner", "passwd") {
		t.Errorf("Expected sanitized path, got %s", path)
	}
}

func TestLocalStorage_Size(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	path, err := store.Save(ctx, []byte("12345"), "f.bin", "owner")
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}

	size, err := store.Size(ctx, path)
	if err != nil {
		t.Fatalf("Failed to stat file: %v", err)
	}
	if size != 5 {
		t.Errorf("Expected size 5, got %d", size)
	}
}

func TestLocalStorage_Delete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	path, err := store.Save(ctx, []byte("x"), "f.bin", "owner")
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}

	if err := store.Delete(ctx, path); err != nil {
		t.Fatalf("Failed to delete file: %v", err)
	}

	if _, err := store.Get(ctx, path); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestLocalStorage_MissingFile(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	if _, err := store.Get(ctx, "nope/missing.bin"); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.Size(ctx, "nope/missing.bin"); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "nope/missing.bin"); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLocalStorage_RejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	for _, p := range []string{"../outside.bin", "/etc/passwd", "a/../../b"} {
		if _, err := store.Get(ctx, p); err == nil || err == ErrNotFound {
			t.Errorf("Expected path rejection for %q, got %v", p, err)
		}
	}
}
