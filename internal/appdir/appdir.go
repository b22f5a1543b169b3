// Package appdir locates the agentchat data directory. It holds the default
// configuration file, the TUI log files and saved conversations.
package appdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const (
	// DirEnv overrides the data directory.
	DirEnv = "AGENTCHAT_DIR"

	ConfigFileName       = "agentchat.yaml"
	ConversationsDirName = "conversations"
	LogsDirName          = "logs"

	appName = "agentchat"
)

var cache struct {
	sync.Mutex
	dir string
}

// Dir returns the data directory without creating it. In order:
// $AGENTCHAT_DIR, then the platform default
// (~/Library/Application Support/agentchat on macOS, %APPDATA%\agentchat on
// Windows, $XDG_DATA_HOME/agentchat or ~/.local/share/agentchat elsewhere).
// The result is cached until ResetCache.
func Dir() (string, error) {
	cache.Lock()
	defer cache.Unlock()
	if cache.dir != "" {
		return cache.dir, nil
	}

	if env := os.Getenv(DirEnv); env != "" {
		cache.dir = env
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir, err := platformDir(runtime.GOOS, os.Getenv, home)
	if err != nil {
		return "", err
	}
	cache.dir = dir
	return dir, nil
}

// platformDir is the default data directory for goos.
func platformDir(goos string, getenv func(string) string, home string) (string, error) {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName), nil
	case "windows":
		appData := getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA is not set")
		}
		return filepath.Join(appData, appName), nil
	default:
		data := getenv("XDG_DATA_HOME")
		if data == "" {
			data = filepath.Join(home, ".local", "share")
		}
		return filepath.Join(data, appName), nil
	}
}

// ResetCache forgets the resolved directory. Tests use it after changing
// $AGENTCHAT_DIR.
func ResetCache() {
	cache.Lock()
	cache.dir = ""
	cache.Unlock()
}

// EnsureDir creates the data directory with its logs and conversations
// subdirectories.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	for _, sub := range []string{ConversationsDirName, LogsDirName} {
		path := filepath.Join(dir, sub)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}
	return nil
}

func join(name string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ConfigPath is the configuration file used when no other is found.
func ConfigPath() (string, error) { return join(ConfigFileName) }

// ConversationsDir is where /save writes transcripts.
func ConversationsDir() (string, error) { return join(ConversationsDirName) }

// LogsDir holds the TUI's log files.
func LogsDir() (string, error) { return join(LogsDirName) }
