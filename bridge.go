package toolbridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"

	"github.com/lodeworks/toolbridge/internal/errors"
	"github.com/lodeworks/toolbridge/internal/fallback"
	"github.com/lodeworks/toolbridge/internal/protocol"
	"github.com/lodeworks/toolbridge/internal/registry"
	"github.com/lodeworks/toolbridge/internal/server"
)

// Bridge is the entry point for tool execution. It owns the server registry,
// one Server per registered spec, and the fallback generator, and exposes the
// uniform "execute named tool on named server" operation.
//
// A Bridge is safe for concurrent use. Close it when done to terminate any
// processes it spawned.
type Bridge struct {
	log      *slog.Logger
	timeout  time.Duration
	registry *registry.Registry
	gen      fallback.Generator
	fallback bool
	factory  server.TransportFactory

	// starts deduplicates concurrent start attempts per server name so a
	// burst of ExecuteTool calls spawns at most one process.
	starts singleflight.Group

	mu      sync.Mutex
	servers map[string]*server.Server
}

// New creates a Bridge with the given options. No processes are spawned
// until a tool execution or explicit StartServer requires one.
func New(opts ...Option) *Bridge {
	options := bridgeOptions{
		requestTimeout: protocol.DefaultRequestTimeout,
	}

	for _, opt := range opts {
		opt(&options)
	}

	log := options.logger
	if log == nil {
		log = NopLogger()
	}

	gen := options.generator
	if gen == nil {
		gen = fallback.NewSimulated(log)
	}

	return &Bridge{
		log:      log.With("component", "bridge"),
		timeout:  options.requestTimeout,
		registry: registry.New(),
		gen:      gen,
		fallback: !options.fallbackDisabled,
		factory:  options.factory,
		servers:  make(map[string]*server.Server, 8),
	}
}

// RegisterServer adds or replaces a server in the catalog. Re-registering a
// name replaces its spec; a running process under the old spec keeps running
// until stopped.
func (b *Bridge) RegisterServer(spec ServerSpec) {
	b.registry.Register(spec)
	b.log.Debug("Registered tool server", "server", spec.Name, "capabilities", spec.Capabilities)
}

// ListServers returns every registered server with its current status,
// sorted by name.
func (b *Bridge) ListServers() []ServerSpec {
	return b.registry.List()
}

// ServerStatus returns the current lifecycle status of the named server.
func (b *Bridge) ServerStatus(name string) (Status, error) {
	return b.registry.StatusOf(name)
}

// StartServer spawns the named server and runs its handshake. A no-op when
// the server is already running. Concurrent starts of the same server are
// coalesced into a single spawn.
func (b *Bridge) StartServer(ctx context.Context, name string) error {
	spec, ok := b.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", errors.ErrUnknownServer, name)
	}

	_, err, _ := b.starts.Do(name, func() (any, error) {
		return nil, b.serverFor(spec).Start(ctx)
	})

	return err
}

// StopServer terminates the named server's process. Trivially succeeds when
// the server is not running.
func (b *Bridge) StopServer(name string) error {
	if _, ok := b.registry.Lookup(name); !ok {
		return fmt.Errorf("%w: %q", errors.ErrUnknownServer, name)
	}

	b.mu.Lock()
	srv, ok := b.servers[name]
	b.mu.Unlock()

	if !ok {
		return nil
	}

	return srv.Stop()
}

// Close stops every running server. The first stop error is returned; all
// servers are stopped regardless.
func (b *Bridge) Close() error {
	b.mu.Lock()
	servers := make([]*server.Server, 0, len(b.servers))
	for _, srv := range b.servers {
		servers = append(servers, srv)
	}
	b.mu.Unlock()

	var firstErr error
	for _, srv := range servers {
		if err := srv.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// ListTools returns the tool descriptors for the named server. A running
// server is queried live over tools/list; a stopped one is described from
// its declared capabilities without spawning anything.
func (b *Bridge) ListTools(ctx context.Context, name string) ([]ToolDescriptor, error) {
	spec, ok := b.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownServer, name)
	}

	b.mu.Lock()
	srv, running := b.servers[name]
	b.mu.Unlock()

	if running && srv.Running() {
		if tools := srv.ListTools(ctx); len(tools) > 0 {
			return tools, nil
		}
	}

	out := make([]ToolDescriptor, 0, len(spec.Capabilities))
	for _, capability := range spec.Capabilities {
		out = append(out, ToolDescriptor{Name: capability})
	}

	return out, nil
}

// ExecuteTool runs a named tool on a named server and always returns a
// populated ExecutionResult; it never panics and never returns a partial
// envelope.
//
// Caller errors are rejected before any process activity: an unregistered
// server yields an unknown-server failure and a tool outside the server's
// declared capability set yields a not-available failure, with nothing
// spawned in either case. Otherwise the server is started on demand and the
// tool invoked over the live connection. Any spawn, handshake, or call
// failure routes to the fallback generator; a generated response is returned
// as a success marked Degraded. Only when the fallback is disabled or has no
// entry for the tool does the original protocol error surface as a failed
// result.
func (b *Bridge) ExecuteTool(ctx context.Context, serverName, tool string, params map[string]any) ExecutionResult {
	result := ExecutionResult{
		ID:     ulid.Make().String(),
		Server: serverName,
		Tool:   tool,
	}

	log := b.log.With("execution", result.ID, "server", serverName, "tool", tool)

	spec, ok := b.registry.Lookup(serverName)
	if !ok {
		log.Warn("Unknown tool server")
		result.Error = fmt.Sprintf("%s: %q", errors.ErrUnknownServer, serverName)

		return result
	}

	if !spec.HasCapability(tool) {
		log.Warn("Tool not in server capability set")
		result.Error = fmt.Sprintf("%s: %q does not support %q", errors.ErrUnsupportedTool, serverName, tool)

		return result
	}

	log.Info("Executing tool")

	data, err := b.callLive(ctx, spec, tool, params)
	if err == nil {
		result.Success = true
		result.Data = data

		return result
	}

	log.Warn("Live execution failed", "error", err)

	if b.fallback {
		if data, genErr := b.gen.Generate(serverName, tool, params); genErr == nil {
			log.Info("Serving simulated response")
			result.Success = true
			result.Degraded = true
			result.Data = data

			return result
		}
	}

	result.Error = err.Error()

	return result
}

// callLive starts the server if needed and invokes the tool over the live
// connection.
func (b *Bridge) callLive(ctx context.Context, spec ServerSpec, tool string, params map[string]any) (any, error) {
	srv := b.serverFor(spec)

	_, err, _ := b.starts.Do(spec.Name, func() (any, error) {
		return nil, srv.Start(ctx)
	})
	if err != nil {
		return nil, err
	}

	return srv.CallTool(ctx, tool, params)
}

// serverFor returns the Server owning the named process, creating it on
// first use. Lifecycle transitions feed back into the registry's status
// fields.
//
// A cached Server whose launch spec has been replaced in the registry is
// rebuilt once it is no longer running, so re-registration takes effect on
// the next start instead of reviving the old launch configuration.
func (b *Bridge) serverFor(spec ServerSpec) *server.Server {
	b.mu.Lock()
	defer b.mu.Unlock()

	if srv, ok := b.servers[spec.Name]; ok {
		if srv.Running() || srv.Spec().SameLaunch(spec) {
			return srv
		}
	}

	srv := server.New(b.log, spec, server.Config{
		RequestTimeout: b.timeout,
		Factory:        b.factory,
		OnState:        b.registry.SetStatus,
	})
	b.servers[spec.Name] = srv

	return srv
}
