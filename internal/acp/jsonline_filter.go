package acp

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	initialLineBuf = 1024 * 1024
	maxLineBuf     = 10 * 1024 * 1024
	// diagnosticLines is how many discarded lines are kept for error reports.
	diagnosticLines = 20
)

// JSONLineFilterReader passes through only lines that look like JSON-RPC
// messages (starting with '{'). Agents sometimes print banners, ANSI escape
// sequences or crash reports on stdout; those lines are logged, dropped and
// the last few are kept for Diagnostics.
type JSONLineFilterReader struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
	pending []byte

	mu      sync.Mutex
	dropped []string
}

// NewJSONLineFilterReader wraps r. logger may be nil.
func NewJSONLineFilterReader(r io.Reader, logger *slog.Logger) *JSONLineFilterReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialLineBuf), maxLineBuf)
	return &JSONLineFilterReader{scanner: scanner, logger: logger}
}

// Read implements io.Reader.
func (f *JSONLineFilterReader) Read(p []byte) (int, error) {
	for len(f.pending) == 0 {
		if !f.scanner.Scan() {
			if err := f.scanner.Err(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}

		line := f.scanner.Bytes()
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		if trimmed[0] != '{' {
			f.drop(string(line))
			continue
		}

		f.pending = make([]byte, 0, len(line)+1)
		f.pending = append(f.pending, line...)
		f.pending = append(f.pending, '\n')
	}

	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *JSONLineFilterReader) drop(line string) {
	if f.logger != nil {
		logLine := line
		if len(logLine) > 200 {
			logLine = logLine[:100] + "..." + logLine[len(logLine)-50:]
		}
		f.logger.Debug("filtered non-JSON line from agent stdout", "line", logLine, "length", len(line))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, line)
	if len(f.dropped) > diagnosticLines {
		f.dropped = f.dropped[len(f.dropped)-diagnosticLines:]
	}
}

// Diagnostics returns the most recently discarded lines, joined.
func (f *JSONLineFilterReader) Diagnostics() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.dropped, "\n")
}
