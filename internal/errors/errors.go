package errors

import (
	"errors"
	"fmt"
)

// BridgeError is the base interface for all toolbridge errors.
type BridgeError interface {
	error
	IsBridgeError() bool
}

// Compile-time verification that all error types implement BridgeError.
var (
	_ BridgeError = (*StartError)(nil)
	_ BridgeError = (*ProcessError)(nil)
	_ BridgeError = (*FrameDecodeError)(nil)
	_ BridgeError = (*ServerError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrUnknownServer indicates the named server is not in the registry.
	ErrUnknownServer = errors.New("unknown server")

	// ErrUnsupportedTool indicates the tool is not in the server's declared
	// capability set.
	ErrUnsupportedTool = errors.New("tool not available")

	// ErrServerNotRunning indicates a call was made against a stopped server.
	ErrServerNotRunning = errors.New("server not running")

	// ErrRequestTimeout indicates a request timed out before a matching
	// response frame arrived.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrChannelClosed indicates the server process exited while a request
	// was in flight, or before one could be written.
	ErrChannelClosed = errors.New("channel closed")

	// ErrFallbackExhausted indicates the simulation table has no entry for
	// the requested tool.
	ErrFallbackExhausted = errors.New("fallback exhausted")
)

// StartError indicates a server failed to spawn or complete its handshake.
type StartError struct {
	Server string
	Err    error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start server %q: %v", e.Server, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *StartError) IsBridgeError() bool { return true }

// ProcessError indicates a tool-server process exited abnormally.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("tool server exited (code %d): %s", e.ExitCode, e.Stderr)
	}

	return fmt.Sprintf("tool server exited (code %d): %v", e.ExitCode, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *ProcessError) IsBridgeError() bool { return true }

// FrameDecodeError indicates a line read from the server was not valid JSON.
// These frames are logged and dropped; they never abort the read loop.
type FrameDecodeError struct {
	RawData string
	Err     error
}

func (e *FrameDecodeError) Error() string {
	return fmt.Sprintf("malformed frame: %v", e.Err)
}

func (e *FrameDecodeError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *FrameDecodeError) IsBridgeError() bool { return true }

// ServerError carries the error member of a JSON-RPC response frame.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("server error: %s", e.Message)
}

// IsBridgeError implements BridgeError.
func (e *ServerError) IsBridgeError() bool { return true }
