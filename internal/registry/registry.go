// Package registry holds the static catalog of known tool servers and their
// current lifecycle status. It is the source of truth for "does server X
// support tool Y" and "is server X currently usable".
package registry

import (
	"maps"
	"slices"
	"sync"

	"github.com/lodeworks/toolbridge/internal/errors"
)

// Status is the lifecycle status of a tool server.
type Status string

const (
	// StatusStopped means no process is running for the server.
	StatusStopped Status = "stopped"
	// StatusRunning means the server process is up and the handshake
	// completed.
	StatusRunning Status = "running"
	// StatusError means the last spawn or handshake failed, or the process
	// died abnormally.
	StatusError Status = "error"
)

// ServerSpec is the identity and launch information for one tool server.
type ServerSpec struct {
	// Name uniquely identifies the server.
	Name string
	// Command, Args and Dir describe how to start the external process.
	Command string
	Args    []string
	Dir     string
	// Env holds additional environment variables for the process.
	Env map[string]string
	// Capabilities is the fixed set of tool names the server is declared
	// to support, checked before any process activity.
	Capabilities []string
	// Status is the current lifecycle status. Mutated only through
	// lifecycle transitions; never set directly by callers.
	Status Status
}

// HasCapability reports whether the server declares support for the tool.
func (s ServerSpec) HasCapability(tool string) bool {
	return slices.Contains(s.Capabilities, tool)
}

// SameLaunch reports whether two specs describe the same launch
// configuration. Runtime status is ignored.
func (s ServerSpec) SameLaunch(o ServerSpec) bool {
	return s.Name == o.Name &&
		s.Command == o.Command &&
		s.Dir == o.Dir &&
		slices.Equal(s.Args, o.Args) &&
		slices.Equal(s.Capabilities, o.Capabilities) &&
		maps.Equal(s.Env, o.Env)
}

// clone returns a copy that shares no mutable state with the original.
func (s ServerSpec) clone() ServerSpec {
	out := s
	out.Args = slices.Clone(s.Args)
	out.Capabilities = slices.Clone(s.Capabilities)

	if s.Env != nil {
		out.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			out.Env[k] = v
		}
	}

	return out
}

// Registry is the shared server catalog. Registration happens once at
// startup; runtime status fields are mutated by server lifecycle
// transitions under the registry's serialization.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]ServerSpec
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		specs: make(map[string]ServerSpec, 8),
	}
}

// Register adds or replaces a ServerSpec by name. A spec with no status is
// registered as stopped.
func (r *Registry) Register(spec ServerSpec) {
	if spec.Status == "" {
		spec.Status = StatusStopped
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.specs[spec.Name] = spec.clone()
}

// List returns a copy of every registered spec, sorted by name.
func (r *Registry) List() []ServerSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ServerSpec, 0, len(r.specs))
	for _, spec := range r.specs {
		out = append(out, spec.clone())
	}

	slices.SortFunc(out, func(a, b ServerSpec) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		default:
			return 0
		}
	})

	return out
}

// Lookup returns the spec registered under name.
func (r *Registry) Lookup(name string) (ServerSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[name]
	if !ok {
		return ServerSpec{}, false
	}

	return spec.clone(), true
}

// StatusOf returns the current status of the named server, or
// ErrUnknownServer when it is not registered.
func (r *Registry) StatusOf(name string) (Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[name]
	if !ok {
		return "", errors.ErrUnknownServer
	}

	return spec.Status, nil
}

// SetStatus records a lifecycle transition for the named server. Unknown
// names are ignored; specs are never deleted while the system runs, so an
// unknown name can only be a stale callback.
func (r *Registry) SetStatus(name string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	spec, ok := r.specs[name]
	if !ok {
		return
	}

	spec.Status = status
	r.specs[name] = spec
}

// Supports reports whether the named server declares the tool in its
// capability set. Unknown servers support nothing.
func (r *Registry) Supports(name, tool string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[name]

	return ok && spec.HasCapability(tool)
}
