package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAtomic(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		data     string
	}{
		{name: "new file", data: "# You\n\nhello\n"},
		{name: "overwrite", existing: "old content that is longer", data: "new"},
		{name: "empty", existing: "old", data: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "convo.md")
			if tt.existing != "" {
				if err := os.WriteFile(path, []byte(tt.existing), 0o600); err != nil {
					t.Fatalf("failed to write existing file: %v", err)
				}
			}

			if err := WriteAtomic(path, []byte(tt.data), 0o644); err != nil {
				t.Fatalf("WriteAtomic failed: %v", err)
			}

			got, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("failed to read file: %v", err)
			}
			if string(got) != tt.data {
				t.Errorf("content = %q, want %q", got, tt.data)
			}

			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("Stat failed: %v", err)
			}
			if info.Mode().Perm() != 0o644 {
				t.Errorf("mode = %v, want 0644", info.Mode().Perm())
			}

			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatalf("ReadDir failed: %v", err)
			}
			if len(entries) != 1 {
				t.Errorf("temp files left behind: %v", entries)
			}
		})
	}
}

func TestWriteAtomic_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "convo.md")
	if err := WriteAtomic(path, []byte("x"), 0o644); err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}
