package acp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/coder/acp-go-sdk"

	"github.com/inercia/agentchat/internal/logging"
	"github.com/inercia/agentchat/internal/runner"
)

// processOptions describes how to start the agent.
type processOptions struct {
	Command string
	Cwd     string
	Env     map[string]string
	Runner  *runner.Runner
	Logger  *slog.Logger
}

// process is a running agent and its ACP connection.
type process struct {
	conn   *acp.ClientSideConnection
	cmd    *exec.Cmd
	cancel context.CancelFunc
	wait   func() error
	stdout *JSONLineFilterReader
	stderr *stderrTail

	closeOnce sync.Once
}

// startProcess launches the agent and connects client to its stdio.
// The process outlives ctx; it is stopped by close.
func startProcess(opts processOptions, client acp.Client) (*process, error) {
	args, err := ParseCommand(opts.Command)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.ACP()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	env := BuildEnv(opts.Env)
	tail := &stderrTail{logger: logger}
	p := &process{cancel: cancel, stderr: tail}

	var stdin io.WriteCloser
	var stdout io.Reader

	if opts.Runner != nil && opts.Runner.IsRestricted() {
		if opts.Cwd != "" {
			logger.Warn("cwd is not supported with restricted runners, ignoring",
				"cwd", opts.Cwd, "runner_type", opts.Runner.Type())
		}
		logger.Info("starting agent through restricted runner",
			"runner_type", opts.Runner.Type(), "command", opts.Command)

		in, out, errPipe, wait, err := opts.Runner.RunWithPipes(runCtx, args[0], args[1:], env)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to start with runner: %w", err)
		}
		go func() { _, _ = io.Copy(tail, errPipe) }()
		stdin, stdout, p.wait = in, out, wait
	} else {
		cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
		cmd.Env = env
		cmd.Dir = opts.Cwd
		cmd.Stderr = tail

		in, err := cmd.StdinPipe()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("stdin pipe error: %w", err)
		}
		out, err := cmd.StdoutPipe()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("stdout pipe error: %w", err)
		}
		logger.Info("starting agent", "command", opts.Command, "cwd", opts.Cwd)
		if err := cmd.Start(); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to start agent: %w", err)
		}
		stdin, stdout, p.cmd, p.wait = in, out, cmd, cmd.Wait
	}

	p.stdout = NewJSONLineFilterReader(stdout, logger)
	p.conn = acp.NewClientSideConnection(client, stdin, p.stdout)
	p.conn.SetLogger(logging.DowngradeInfoToDebug(logger))
	return p, nil
}

// annotate adds whatever the agent printed outside the protocol to err.
func (p *process) annotate(err error) error {
	var extra []string
	if d := p.stdout.Diagnostics(); d != "" {
		extra = append(extra, d)
	}
	if s := p.stderr.String(); s != "" {
		extra = append(extra, s)
	}
	if len(extra) == 0 {
		return err
	}
	return fmt.Errorf("%w\nagent output:\n%s", err, strings.Join(extra, "\n"))
}

func (p *process) close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		if p.cmd != nil && p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		if p.wait != nil {
			// the process was killed, its exit status carries no information
			_ = p.wait()
		}
	})
	return nil
}

// stderrTail logs agent stderr line by line and remembers the last lines.
type stderrTail struct {
	logger *slog.Logger

	mu      sync.Mutex
	partial []byte
	lines   []string
}

func (t *stderrTail) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.partial = append(t.partial, b...)
	for {
		i := bytes.IndexByte(t.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(t.partial[:i]), "\r")
		t.partial = t.partial[i+1:]
		if line == "" {
			continue
		}
		t.logger.Debug("agent stderr", "line", line)
		t.lines = append(t.lines, line)
		if len(t.lines) > diagnosticLines {
			t.lines = t.lines[len(t.lines)-diagnosticLines:]
		}
	}
	return len(b), nil
}

func (t *stderrTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
