// Package config loads the tool-server catalog and process-level settings.
// The catalog is static: it is read once at startup and rebuilt from the
// file on every process start; nothing is persisted back.
package config

import (
	stderrors "errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lodeworks/toolbridge/internal/registry"
)

// Catalog matches the servers section of a toolbridge catalog file.
type Catalog struct {
	Servers []Entry `yaml:"servers"`
}

// Entry describes one tool server in the catalog file.
type Entry struct {
	Name         string            `yaml:"name"`
	Command      string            `yaml:"command"`
	Args         []string          `yaml:"args"`
	Dir          string            `yaml:"dir"`
	Env          map[string]string `yaml:"env"`
	Capabilities []string          `yaml:"capabilities"`
}

// Spec converts a catalog entry into a registry spec.
func (e Entry) Spec() registry.ServerSpec {
	return registry.ServerSpec{
		Name:         e.Name,
		Command:      e.Command,
		Args:         e.Args,
		Dir:          e.Dir,
		Env:          e.Env,
		Capabilities: e.Capabilities,
		Status:       registry.StatusStopped,
	}
}

// Load reads the catalog file at path, or returns the default catalog when
// the file does not exist.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	for _, entry := range catalog.Servers {
		if entry.Name == "" || entry.Command == "" {
			return nil, fmt.Errorf("catalog %s: every server needs a name and a command", path)
		}
	}

	return &catalog, nil
}

// Default returns the built-in catalog: the analysis servers this
// repository ships with.
func Default() *Catalog {
	return &Catalog{
		Servers: []Entry{
			{
				Name:    "git-analytics",
				Command: "gitanalytics",
				Capabilities: []string{
					"analyze_repository",
					"commit_activity",
				},
			},
			{
				Name:    "code-quality",
				Command: "codequality",
				Capabilities: []string{
					"code_complexity",
					"dependency_graph",
					"detect_debt_patterns",
				},
			},
		},
	}
}
