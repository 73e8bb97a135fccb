package transport

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/lodeworks/toolbridge/internal/errors"
)

const (
	// maxScanTokenSize is the maximum buffer size for reading output lines.
	maxScanTokenSize = 1024 * 1024 // 1MB
	// maxStderrBufferSize caps the captured stderr buffer. Stderr reading
	// continues past the cap so the pipe never fills, but the buffer stops
	// growing to bound memory usage.
	maxStderrBufferSize = 10 * 1024 * 1024 // 10MB
	// errChanBufferSize leaves room for a few decode errors ahead of the
	// terminal process error.
	errChanBufferSize = 4
)

// Config describes how to launch one tool-server process.
type Config struct {
	Command string
	Args    []string
	Dir     string
	Env     map[string]string
}

// Transport carries newline-framed JSON messages to and from one external
// tool-server process. Implement this to inject test doubles; the default
// implementation is ProcessTransport.
type Transport interface {
	// Start spawns the process and wires its standard streams.
	Start(ctx context.Context) error

	// ReadMessages returns channels for receiving frames and errors. Each
	// frame is one complete newline-terminated line of output. Decode
	// errors for individual lines are reported as *errors.FrameDecodeError
	// and do not stop reading; process exit is reported as a terminal
	// error. Both channels are closed when reading completes.
	ReadMessages(ctx context.Context) (<-chan json.RawMessage, <-chan error)

	// SendMessage writes one frame to the process input, appending the
	// newline delimiter when missing. Safe for concurrent use.
	SendMessage(ctx context.Context, data []byte) error

	// IsReady reports whether the process is running and writable.
	IsReady() bool

	// Close terminates the process. Safe to call multiple times.
	Close() error
}

// ProcessTransport implements Transport by spawning a tool-server subprocess
// and framing messages over its standard input/output. The process error
// stream is captured for diagnostics and never parsed as protocol data.
type ProcessTransport struct {
	log    *slog.Logger
	config Config

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	mu          sync.Mutex // Protects stdin writes and lifecycle flags
	closing     bool       // Whether Close() has been called (intentional shutdown)
	stdinClosed bool
}

// Compile-time verification that ProcessTransport implements Transport.
var _ Transport = (*ProcessTransport)(nil)

// NewProcessTransport creates a transport for the given launch configuration.
// The process is not spawned until Start().
func NewProcessTransport(log *slog.Logger, config Config) *ProcessTransport {
	return &ProcessTransport{
		log:    log.With("component", "transport"),
		config: config,
	}
}

// Start spawns the tool-server process with the inherited environment plus
// the configured additions, rooted in the configured working directory.
//
// Returns *errors.StartError-compatible wrapped errors when pipes or the
// spawn itself fail; process death after a successful spawn is surfaced
// through the ReadMessages error channel instead, since it can happen at
// any time independent of any in-flight call.
func (t *ProcessTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd != nil {
		return nil
	}

	t.log.Debug("Spawning tool server", "command", t.config.Command, "args", t.config.Args)

	//nolint:gosec // G204: launching operator-configured tool servers is the point
	cmd := exec.Command(t.config.Command, t.config.Args...)
	cmd.Dir = t.config.Dir
	cmd.Env = buildEnv(t.config.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.stdout = stdout
	t.stderr = stderr

	t.log.Info("Tool server started", "pid", cmd.Process.Pid)

	return nil
}

// ReadMessages reads newline-delimited frames from the process stdout.
//
// A single OS delivery may contain zero, one, or multiple complete frames,
// and a frame may span multiple deliveries; the scanner buffers partial
// lines across reads. Lines that are not valid JSON are reported as
// *errors.FrameDecodeError and skipped. When the process exits, the exit
// status and captured stderr are reported as *errors.ProcessError unless
// Close() initiated the shutdown. The goroutine closes both channels when
// it exits.
func (t *ProcessTransport) ReadMessages(ctx context.Context) (<-chan json.RawMessage, <-chan error) {
	messages := make(chan json.RawMessage)
	errs := make(chan error, errChanBufferSize)

	var stderrWg sync.WaitGroup

	var stderrMu sync.Mutex

	var stderrBuffer strings.Builder

	// Capture stderr for exit diagnostics; must drain before cmd.Wait().
	stderrWg.Add(1)

	go func() {
		defer stderrWg.Done()

		scanner := bufio.NewScanner(t.stderr)
		for scanner.Scan() {
			line := scanner.Text()

			stderrMu.Lock()

			if stderrBuffer.Len() < maxStderrBufferSize {
				if stderrBuffer.Len() > 0 {
					stderrBuffer.WriteString("\n")
				}

				stderrBuffer.WriteString(line)
			}

			stderrMu.Unlock()

			t.log.Debug("Tool server stderr", "line", line)
		}

		if err := scanner.Err(); err != nil {
			t.log.Debug("Stderr scanner error", "error", err)
		}
	}()

	go func() {
		defer close(messages)
		defer close(errs)

		scanner := bufio.NewScanner(t.stdout)

		buf := make([]byte, maxScanTokenSize)
		scanner.Buffer(buf, maxScanTokenSize)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()

				return
			default:
			}

			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			if !json.Valid(line) {
				select {
				case errs <- &errors.FrameDecodeError{
					RawData: string(line),
					Err:     stderrors.New("line is not valid JSON"),
				}:
				default:
					// Error channel full of unread decode errors; drop.
					t.log.Warn("Dropping malformed frame", "data_len", len(line))
				}

				continue
			}

			// Scanner reuses its buffer between Scan calls.
			frame := make(json.RawMessage, len(line))
			copy(frame, line)

			select {
			case messages <- frame:
			case <-ctx.Done():
				errs <- ctx.Err()

				return
			}
		}

		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("scanner error: %w", err)
		}

		stderrWg.Wait()

		err := t.cmd.Wait()

		t.mu.Lock()
		isClosing := t.closing
		t.mu.Unlock()

		if isClosing {
			t.log.Debug("Tool server terminated during shutdown")

			return
		}

		if err != nil {
			stderrMu.Lock()
			stderrOutput := stderrBuffer.String()
			stderrMu.Unlock()

			exitCode := 0
			if exitErr, ok := stderrors.AsType[*exec.ExitError](err); ok {
				exitCode = exitErr.ExitCode()
			}

			t.log.Error("Tool server exited with error", "exit_code", exitCode, "stderr", stderrOutput)

			errs <- &errors.ProcessError{
				ExitCode: exitCode,
				Stderr:   stderrOutput,
				Err:      err,
			}
		} else {
			t.log.Info("Tool server exited cleanly")
		}
	}()

	return messages, errs
}

// SendMessage writes one frame to the process stdin, appending the newline
// delimiter when missing. Fails with ErrChannelClosed once the process is
// gone or stdin has been closed.
func (t *ProcessTransport) SendMessage(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stdin == nil || t.stdinClosed {
		return errors.ErrChannelClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Copy before appending so a caller's slice with spare capacity is
	// never mutated.
	if len(data) == 0 || data[len(data)-1] != '\n' {
		framed := make([]byte, len(data)+1)
		copy(framed, data)
		framed[len(data)] = '\n'
		data = framed
	}

	if _, err := t.stdin.Write(data); err != nil {
		t.log.Error("Failed to write frame", "error", err)

		return fmt.Errorf("%w: write to stdin: %w", errors.ErrChannelClosed, err)
	}

	return nil
}

// IsReady reports whether the process is running and stdin is open.
func (t *ProcessTransport) IsReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cmd != nil && t.cmd.Process != nil && !t.stdinClosed
}

// Close terminates the process with SIGKILL. Safe to call multiple times or
// on an already-terminated process.
func (t *ProcessTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closing = true
	t.stdinClosed = true

	if t.stdin != nil {
		_ = t.stdin.Close()
		t.stdin = nil
	}

	if t.cmd != nil && t.cmd.Process != nil {
		t.log.Debug("Killing tool server", "pid", t.cmd.Process.Pid)

		if err := t.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill tool server (pid %d): %w", t.cmd.Process.Pid, err)
		}
	}

	return nil
}

// buildEnv merges the inherited environment with per-server additions.
func buildEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}

	return env
}
