package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorage(t *testing.T) {
	tmpDir := t.TempDir()
	storage, err := NewLocalStorage(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	t.Run("Save", func(t *testing.T) {
		content := []byte("jpeg bytes")

		if err := storage.Save("capture_001.jpg", bytes.NewReader(content)); err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		saved, err := os.ReadFile(filepath.Join(tmpDir, "capture_001.jpg"))
		if err != nil {
			t.Fatalf("File was not saved to expected location: %v", err)
		}
		if !bytes.Equal(saved, content) {
			t.Errorf("File content mismatch")
		}

		entries, _ := os.ReadDir(tmpDir)
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".incoming-") {
				t.Errorf("Temporary file left behind: %s", e.Name())
			}
		}
	})

	t.Run("Open", func(t *testing.T) {
		content := []byte("another image")
		if err := os.WriteFile(filepath.Join(tmpDir, "open.jpg"), content, 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}

		file, err := storage.Open("open.jpg")
		if err != nil {
			t.Fatalf("Failed to open file: %v", err)
		}
		defer file.Close()

		got, err := io.ReadAll(file)
		if err != nil {
			t.Fatalf("Failed to read file: %v", err)
		}
		if !bytes.Equal(got, content) {
			t.Errorf("File content mismatch")
		}
	})

	t.Run("OpenMissing", func(t *testing.T) {
		_, err := storage.Open("missing.jpg")
		if !errors.Is(err, ErrNotCached) {
			t.Errorf("Expected ErrNotCached, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		fullPath := filepath.Join(tmpDir, "delete.jpg")
		if err := os.WriteFile(fullPath, []byte("test"), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}

		if err := storage.Delete("delete.jpg"); err != nil {
			t.Fatalf("Failed to delete file: %v", err)
		}
		if _, err := os.Stat(fullPath); !os.IsNotExist(err) {
			t.Errorf("File was not deleted")
		}
		if err := storage.Delete("delete.jpg"); err != nil {
			t.Errorf("Deleting a missing file should succeed, got %v", err)
		}
	})

	t.Run("PathTraversalPrevention", func(t *testing.T) {
		for _, name := range []string{"../../../etc/passwd", "sub/dir.jpg", `..\win.jpg`, ".hidden", ""} {
			if _, err := storage.Open(name); !errors.Is(err, ErrInvalidName) {
				t.Errorf("Open(%q): expected ErrInvalidName, got %v", name, err)
			}
			if err := storage.Save(name, strings.NewReader("x")); !errors.Is(err, ErrInvalidName) {
				t.Errorf("Save(%q): expected ErrInvalidName, got %v", name, err)
			}
			if err := storage.Delete(name); !errors.Is(err, ErrInvalidName) {
				t.Errorf("Delete(%q): expected ErrInvalidName, got %v", name, err)
			}
		}
	})
}
