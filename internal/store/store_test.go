package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// createTestSQLite creates an in-memory SQLite store for testing
func createTestSQLite(t *testing.T) *SQLite {
	t.Helper()

	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

func TestStores(t *testing.T) {
	backends := map[string]func(t *testing.T) Store{
		"files": func(t *testing.T) Store {
			return NewFiles(filepath.Join(t.TempDir(), "data"))
		},
		"sqlite": func(t *testing.T) Store {
			return createTestSQLite(t)
		},
	}

	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("missing resource", func(t *testing.T) {
				s := newStore(t)
				if _, err := s.Read(ctx, "queue.json"); !errors.Is(err, ErrNotFound) {
					t.Errorf("Read err = %v, want ErrNotFound", err)
				}
				if err := s.Delete(ctx, "queue.json"); err != nil {
					t.Errorf("Delete of missing resource: %v", err)
				}
			})

			t.Run("write read overwrite delete", func(t *testing.T) {
				s := newStore(t)
				if err := s.Write(ctx, "queue.json", []byte(`{"a":1}`)); err != nil {
					t.Fatalf("Write: %v", err)
				}
				if err := s.Write(ctx, "queue.json", []byte(`{"a":2}`)); err != nil {
					t.Fatalf("Write: %v", err)
				}

				got, err := s.Read(ctx, "queue.json")
				if err != nil {
					t.Fatalf("Read: %v", err)
				}
				if string(got) != `{"a":2}` {
					t.Errorf("Read = %q", got)
				}

				if err := s.Delete(ctx, "queue.json"); err != nil {
					t.Fatalf("Delete: %v", err)
				}
				if _, err := s.Read(ctx, "queue.json"); !errors.Is(err, ErrNotFound) {
					t.Errorf("Read after delete err = %v", err)
				}
			})

			t.Run("empty payload", func(t *testing.T) {
				s := newStore(t)
				if err := s.Write(ctx, "tag.cache", nil); err != nil {
					t.Fatalf("Write: %v", err)
				}
				got, err := s.Read(ctx, "tag.cache")
				if err != nil {
					t.Fatalf("Read: %v", err)
				}
				if len(got) != 0 {
					t.Errorf("Read = %q, want empty", got)
				}
			})

			t.Run("rejects path names", func(t *testing.T) {
				s := newStore(t)
				for _, bad := range []string{"", "../x", "a/b", ".hidden"} {
					if err := s.Write(ctx, bad, []byte("x")); err == nil {
						t.Errorf("Write(%q) succeeded, want error", bad)
					}
				}
			})
		})
	}
}

func TestFilesAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	s := NewFiles(dir)

	if err := s.Write(context.Background(), "queue.json", []byte("data")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "queue.json.tmp")); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "queue.json"))
	if err != nil || string(data) != "data" {
		t.Errorf("file contents = %q, %v", data, err)
	}
}

func TestSQLiteNames(t *testing.T) {
	s := createTestSQLite(t)
	ctx := context.Background()

	for _, name := range []string{"tag.cache", "queue.json"} {
		if err := s.Write(ctx, name, []byte("x")); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	names, err := s.Names(ctx)
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"queue.json", "tag.cache"}) {
		t.Errorf("Names = %v", names)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		backend string
		wantErr bool
	}{
		{BackendFile, false},
		{"", false},
		{BackendSQLite, false},
		{"redis", true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			s, err := Open(tt.backend, dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open(%q) err = %v, wantErr %v", tt.backend, err, tt.wantErr)
			}
			if s != nil {
				_ = s.Close()
			}
		})
	}
}
