package toolbridge

import "github.com/lodeworks/toolbridge/internal/errors"

// Re-export error types from the internal package.

// StartError indicates a server failed to spawn or complete its handshake.
type StartError = errors.StartError

// ProcessError indicates a tool-server process exited abnormally.
type ProcessError = errors.ProcessError

// FrameDecodeError indicates a line read from a server was not valid JSON.
type FrameDecodeError = errors.FrameDecodeError

// ServerError carries the error member of a JSON-RPC response frame.
type ServerError = errors.ServerError

// BridgeError is the base interface for all toolbridge errors.
type BridgeError = errors.BridgeError

// Re-export sentinel errors from the internal package.
var (
	// ErrUnknownServer indicates the named server is not in the registry.
	ErrUnknownServer = errors.ErrUnknownServer

	// ErrUnsupportedTool indicates the tool is not in the server's declared
	// capability set.
	ErrUnsupportedTool = errors.ErrUnsupportedTool

	// ErrServerNotRunning indicates a call was made against a stopped server.
	ErrServerNotRunning = errors.ErrServerNotRunning

	// ErrRequestTimeout indicates a request timed out.
	ErrRequestTimeout = errors.ErrRequestTimeout

	// ErrChannelClosed indicates the server process exited mid-call.
	ErrChannelClosed = errors.ErrChannelClosed

	// ErrFallbackExhausted indicates the simulation table has no entry for
	// the tool.
	ErrFallbackExhausted = errors.ErrFallbackExhausted
)
