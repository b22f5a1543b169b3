// Package logging configures the process-wide slog logger for agentchat.
//
// Records go to the console, to a size-rotated file, or both, each with its
// own level. Component loggers (Session, ACP, UI, ...) tag their records and
// can be filtered with Config.Components.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogConfig describes the rotated log file.
type FileLogConfig struct {
	// Path of the log file. Empty disables file logging.
	Path string
	// MaxSizeMB rotates the file once it grows past this size.
	MaxSizeMB int
	// MaxBackups is how many rotated files are kept.
	MaxBackups int
	Compress   bool
}

// DefaultFileLogConfig returns 10MB files with 3 backups.
func DefaultFileLogConfig() FileLogConfig {
	return FileLogConfig{MaxSizeMB: 10, MaxBackups: 3}
}

// Config holds logging configuration.
type Config struct {
	// Level applies to console output: debug, info, warn or error.
	Level string
	// FileLevel applies to the file. Defaults to Level.
	FileLevel string
	FileLog   *FileLogConfig
	JSON      bool
	// NoConsole turns console output off. The full-screen chat owns the
	// terminal, so it logs to the file only.
	NoConsole bool
	// Components limits output to the named components. Empty logs all.
	Components []string
	// Console replaces os.Stderr.
	Console io.Writer
}

// state is the installed configuration.
var state struct {
	mu         sync.RWMutex
	logger     *slog.Logger
	file       io.WriteCloser
	components map[string]bool
}

// Initialize installs a new global logger, closing the previous log file.
func Initialize(cfg Config) error {
	consoleLevel := parseLevel(cfg.Level)
	fileLevel := consoleLevel
	if cfg.FileLevel != "" {
		fileLevel = parseLevel(cfg.FileLevel)
	}

	var components map[string]bool
	if len(cfg.Components) > 0 {
		components = make(map[string]bool, len(cfg.Components))
		for _, c := range cfg.Components {
			components[c] = true
		}
	}

	var file io.WriteCloser
	if cfg.FileLog != nil && cfg.FileLog.Path != "" {
		file = newRotator(*cfg.FileLog)
	}

	var console io.Writer
	if !cfg.NoConsole {
		console = os.Stderr
		if cfg.Console != nil {
			console = cfg.Console
		}
	}

	newHandler := func(w io.Writer, level slog.Level) slog.Handler {
		opts := &slog.HandlerOptions{Level: level}
		if cfg.JSON {
			return slog.NewJSONHandler(w, opts)
		}
		return slog.NewTextHandler(w, opts)
	}

	var handler slog.Handler
	switch {
	case console != nil && file != nil && consoleLevel == fileLevel:
		handler = newHandler(io.MultiWriter(console, file), consoleLevel)
	case console != nil && file != nil:
		handler = fanout{newHandler(console, consoleLevel), newHandler(file, fileLevel)}
	case console != nil:
		handler = newHandler(console, consoleLevel)
	case file != nil:
		handler = newHandler(file, fileLevel)
	default:
		handler = newHandler(io.Discard, slog.LevelError+1)
	}
	logger := slog.New(handler)

	state.mu.Lock()
	prev := state.file
	state.file = file
	state.logger = logger
	state.components = components
	state.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	slog.SetDefault(logger)
	return nil
}

func newRotator(fc FileLogConfig) *lumberjack.Logger {
	size := fc.MaxSizeMB
	if size <= 0 {
		size = 10
	}
	backups := fc.MaxBackups
	if backups < 0 {
		backups = 3
	}
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    size,
		MaxBackups: backups,
		Compress:   fc.Compress,
	}
}

// Get returns the global logger, or slog.Default before Initialize.
func Get() *slog.Logger {
	state.mu.RLock()
	defer state.mu.RUnlock()
	if state.logger == nil {
		return slog.Default()
	}
	return state.logger
}

// Close closes the log file, if any.
func Close() error {
	state.mu.Lock()
	f := state.file
	state.file = nil
	state.mu.Unlock()

	if f == nil {
		return nil
	}
	return f.Close()
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

func parseLevel(level string) slog.Level {
	l, _ := ParseLevel(level)
	return l
}

func componentEnabled(name string) bool {
	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.components == nil || state.components[name]
}

// WithComponent returns a logger tagging records with component=name. The
// filter is checked on every record, so loggers created before Initialize
// follow the current configuration.
func WithComponent(name string) *slog.Logger {
	h := Get().Handler().WithAttrs([]slog.Attr{slog.String("component", name)})
	return slog.New(filter{Handler: h, keep: func() bool { return componentEnabled(name) }})
}

// Session returns a logger for the session loop.
func Session() *slog.Logger { return WithComponent("session") }

// ACP returns a logger for the agent connection.
func ACP() *slog.Logger { return WithComponent("acp") }

// Inference returns a logger for capability inference.
func Inference() *slog.Logger { return WithComponent("inference") }

// Permission returns a logger for tool permission decisions.
func Permission() *slog.Logger { return WithComponent("permission") }

// MCP returns a logger for capability provider probing.
func MCP() *slog.Logger { return WithComponent("mcp") }

// UI returns a logger for the terminal front ends.
func UI() *slog.Logger { return WithComponent("ui") }

// Settings returns a logger for configuration loading and watching.
func Settings() *slog.Logger { return WithComponent("config") }

// WithTurn adds the conversation and turn identifiers to base.
func WithTurn(base *slog.Logger, sessionID, turnID string) *slog.Logger {
	if base == nil {
		return nil
	}
	return base.With("session_id", sessionID, "turn_id", turnID)
}

// DowngradeInfoToDebug logs INFO records from logger at DEBUG. The ACP SDK
// reports routine events such as "peer connection closed" at INFO.
func DowngradeInfoToDebug(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return nil
	}
	return slog.New(downgrade{logger.Handler()})
}
