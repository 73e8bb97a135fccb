package toolbridge

import (
	"github.com/lodeworks/toolbridge/internal/registry"
	"github.com/lodeworks/toolbridge/internal/server"
)

// ServerSpec is the identity and launch information for one tool server.
type ServerSpec = registry.ServerSpec

// Status is the lifecycle status of a tool server.
type Status = registry.Status

// Lifecycle statuses.
const (
	// StatusStopped means no process is running for the server.
	StatusStopped = registry.StatusStopped
	// StatusRunning means the server process is up and handshaken.
	StatusRunning = registry.StatusRunning
	// StatusError means the last spawn or handshake failed, or the
	// process died abnormally.
	StatusError = registry.StatusError
)

// ToolDescriptor describes one callable tool as reported by tools/list.
type ToolDescriptor = server.ToolDescriptor

// ExecutionResult is the uniform envelope returned to every ExecuteTool
// caller. Exactly one of Data and Error is populated.
type ExecutionResult struct {
	// ID uniquely identifies this execution for log correlation.
	ID string `json:"id"`

	// Server and Tool echo the request.
	Server string `json:"server"`
	Tool   string `json:"tool"`

	// Success reports whether Data is populated.
	Success bool `json:"success"`

	// Degraded is true when Data came from the simulated fallback rather
	// than a live server.
	Degraded bool `json:"degraded,omitempty"`

	// Data holds the tool result on success.
	Data any `json:"data,omitempty"`

	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`
}
