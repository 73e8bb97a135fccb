// Package server owns the lifecycle of one external tool server: spawning
// the process, running the protocol handshake, and providing call/list
// operations over the connection.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/lodeworks/toolbridge/internal/errors"
	"github.com/lodeworks/toolbridge/internal/protocol"
	"github.com/lodeworks/toolbridge/internal/registry"
	"github.com/lodeworks/toolbridge/internal/transport"
)

const (
	// ProtocolVersion is the protocol revision advertised in the handshake.
	ProtocolVersion = "2024-11-05"

	// clientName and clientVersion identify this client to tool servers.
	clientName    = "toolbridge"
	clientVersion = "0.3.0"
)

// ToolDescriptor describes one callable tool as reported by tools/list.
type ToolDescriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema *jsonschema.Schema `json:"inputSchema,omitempty"`
}

// TransportFactory builds the transport for a server spec. Injectable for
// testing; the default spawns a ProcessTransport.
type TransportFactory func(log *slog.Logger, spec registry.ServerSpec) transport.Transport

// DefaultTransportFactory spawns a real child process for the spec.
func DefaultTransportFactory(log *slog.Logger, spec registry.ServerSpec) transport.Transport {
	return transport.NewProcessTransport(log, transport.Config{
		Command: spec.Command,
		Args:    spec.Args,
		Dir:     spec.Dir,
		Env:     spec.Env,
	})
}

// StateFunc observes lifecycle transitions. The server reports running,
// stopped, and error states; the registry is the usual consumer.
type StateFunc func(name string, status registry.Status)

// Config carries server construction parameters.
type Config struct {
	// RequestTimeout bounds each request; zero selects the protocol
	// default.
	RequestTimeout time.Duration
	// Factory builds the transport. Nil selects DefaultTransportFactory.
	Factory TransportFactory
	// OnState observes lifecycle transitions. May be nil.
	OnState StateFunc
}

// Server owns one tool-server process. A Server exclusively owns its
// transport and protocol connection; neither is shared across servers.
// Stop() followed by Start() produces a freshly initialized process with
// no state carried over.
type Server struct {
	log     *slog.Logger
	spec    registry.ServerSpec
	timeout time.Duration
	factory TransportFactory
	onState StateFunc

	mu      sync.Mutex
	tr      transport.Transport
	conn    *protocol.Conn
	running bool
	// gen identifies the current process instance so the exit watcher of a
	// previous instance cannot clobber a newer one.
	gen uint64
}

// New creates a server for the spec. The process is not spawned until
// Start().
func New(log *slog.Logger, spec registry.ServerSpec, config Config) *Server {
	factory := config.Factory
	if factory == nil {
		factory = DefaultTransportFactory
	}

	return &Server{
		log:     log.With("component", "server", "server", spec.Name),
		spec:    spec,
		timeout: config.RequestTimeout,
		factory: factory,
		onState: config.OnState,
	}
}

// Name returns the server's registry name.
func (s *Server) Name() string {
	return s.spec.Name
}

// Spec returns the launch spec this server was built from.
func (s *Server) Spec() registry.ServerSpec {
	return s.spec
}

// Running reports whether the process is up and the handshake completed.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// Start spawns the process and performs the initialize handshake. A no-op
// when already running. On spawn or handshake failure the server is left
// in the error state and the process, if any, is torn down.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.log.Info("Starting tool server")

	tr := s.factory(s.log, s.spec)

	if err := tr.Start(ctx); err != nil {
		s.log.Error("Failed to spawn tool server", "error", err)
		s.setState(registry.StatusError)

		return &errors.StartError{Server: s.spec.Name, Err: err}
	}

	conn := protocol.NewConn(s.log, tr, s.timeout)
	conn.Start(ctx)

	if err := s.handshake(ctx, conn); err != nil {
		s.log.Error("Handshake failed", "error", err)
		_ = tr.Close()
		conn.Stop()
		s.setState(registry.StatusError)

		return &errors.StartError{Server: s.spec.Name, Err: err}
	}

	s.tr = tr
	s.conn = conn
	s.running = true
	s.gen++

	go s.watchExit(conn, s.gen)

	s.setState(registry.StatusRunning)
	s.log.Info("Tool server ready")

	return nil
}

// handshake sends the initialize request advertising client identity and
// protocol version, then the initialized notification.
func (s *Server) handshake(ctx context.Context, conn *protocol.Conn) error {
	params := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	}

	if _, err := conn.Call(ctx, "initialize", params); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	if err := conn.Notify(ctx, "notifications/initialized", nil); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}

	return nil
}

// watchExit observes asynchronous process death for one process instance
// and records the resulting state transition. A clean exit transitions to
// stopped; a process error transitions to error.
func (s *Server) watchExit(conn *protocol.Conn, gen uint64) {
	<-conn.Done()

	s.mu.Lock()

	if s.gen != gen || !s.running {
		// Stop() already handled this instance.
		s.mu.Unlock()

		return
	}

	s.running = false
	s.tr = nil
	s.conn = nil

	status := registry.StatusStopped
	if conn.FatalError() != nil {
		status = registry.StatusError
	}

	s.mu.Unlock()

	s.log.Warn("Tool server exited", "status", status)
	s.setState(status)
}

// Stop terminates the process and clears internal state. Trivially succeeds
// when not running; stopping from the error state resets it to stopped.
// In-flight calls fail with ErrChannelClosed.
func (s *Server) Stop() error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()
		s.setState(registry.StatusStopped)

		return nil
	}

	s.log.Info("Stopping tool server")

	tr := s.tr
	conn := s.conn

	s.running = false
	s.tr = nil
	s.conn = nil
	s.gen++ // invalidate the exit watcher for this instance

	s.mu.Unlock()

	err := tr.Close()

	conn.Stop()

	s.setState(registry.StatusStopped)

	return err
}

// CallTool invokes a named tool on the running server and unwraps the
// result's content member when present.
func (s *Server) CallTool(ctx context.Context, name string, arguments map[string]any) (any, error) {
	conn, err := s.activeConn()
	if err != nil {
		return nil, err
	}

	params := map[string]any{
		"name":      name,
		"arguments": arguments,
	}

	raw, err := conn.Call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/call result: %w", err)
	}

	if content, ok := result["content"]; ok {
		return content, nil
	}

	return result, nil
}

// ListTools queries the server for its tool descriptors. Discovery is
// best-effort: any failure returns an empty list rather than an error.
func (s *Server) ListTools(ctx context.Context) []ToolDescriptor {
	conn, err := s.activeConn()
	if err != nil {
		s.log.Warn("Cannot list tools", "error", err)

		return nil
	}

	raw, err := conn.Call(ctx, "tools/list", map[string]any{})
	if err != nil {
		s.log.Warn("tools/list failed", "error", err)

		return nil
	}

	var result struct {
		Tools []ToolDescriptor `json:"tools"`
	}

	if err := json.Unmarshal(raw, &result); err != nil {
		s.log.Warn("Cannot decode tools/list result", "error", err)

		return nil
	}

	return result.Tools
}

// activeConn returns the live connection or ErrServerNotRunning.
func (s *Server) activeConn() (*protocol.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.conn == nil {
		return nil, errors.ErrServerNotRunning
	}

	return s.conn, nil
}

// setState reports a lifecycle transition to the observer, if any.
func (s *Server) setState(status registry.Status) {
	if s.onState != nil {
		s.onState(s.spec.Name, status)
	}
}
