package acp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for paths that escape the file system root.
var ErrOutsideRoot = errors.New("path is outside the workspace")

// FileSystem serves the agent's file read and write requests.
type FileSystem interface {
	// ReadTextFile reads path. line (1-based) and limit select a window of lines.
	ReadTextFile(path string, line, limit *int) (string, error)
	// WriteTextFile writes path, creating parent directories.
	WriteTextFile(path, content string) error
}

// OSFileSystem reads and writes the local disk. When Root is set, only
// paths below it are served.
type OSFileSystem struct {
	Root string
}

var _ FileSystem = (*OSFileSystem)(nil)

// DefaultFileSystem serves any absolute path.
var DefaultFileSystem FileSystem = &OSFileSystem{}

func (fs *OSFileSystem) check(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("path must be absolute: %s", path)
	}
	path = filepath.Clean(path)
	if fs.Root == "" {
		return path, nil
	}
	rel, err := filepath.Rel(filepath.Clean(fs.Root), path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", path, ErrOutsideRoot)
	}
	return path, nil
}

func (fs *OSFileSystem) ReadTextFile(path string, line, limit *int) (string, error) {
	path, err := fs.check(path)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return sliceLines(string(b), line, limit), nil
}

func (fs *OSFileSystem) WriteTextFile(path, content string) error {
	path, err := fs.check(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// sliceLines returns at most limit lines of content starting at line.
func sliceLines(content string, line, limit *int) string {
	if line == nil && limit == nil {
		return content
	}
	lines := strings.Split(content, "\n")
	start := 0
	if line != nil && *line > 0 {
		start = min(*line-1, len(lines))
	}
	end := len(lines)
	if limit != nil && *limit > 0 && start+*limit < end {
		end = start + *limit
	}
	return strings.Join(lines[start:end], "\n")
}
