package fallback

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lodeworks/toolbridge/internal/errors"
)

func TestSimulated_AnalyzeRepositoryShape(t *testing.T) {
	gen := NewSimulated(slog.Default())

	data, err := gen.Generate("git-analytics", "analyze_repository", map[string]any{
		"repoPath": "/work/repo",
	})
	require.NoError(t, err)

	// Consumers key on totalCommits; it must always be present.
	require.Contains(t, data, "totalCommits")
	require.Contains(t, data, "totalAuthors")
	require.Contains(t, data, "topAuthors")
	require.Equal(t, "/work/repo", data["repoPath"])
}

func TestSimulated_StampsProvenance(t *testing.T) {
	gen := NewSimulated(slog.Default())

	data, err := gen.Generate("git-analytics", "commit_activity", nil)
	require.NoError(t, err)

	require.Equal(t, true, data["simulated"])
	require.NotEmpty(t, data["analysisId"])
	require.NotEmpty(t, data["generatedAt"])
}

func TestSimulated_UniqueAnalysisIDs(t *testing.T) {
	gen := NewSimulated(slog.Default())

	first, err := gen.Generate("git-analytics", "analyze_repository", nil)
	require.NoError(t, err)

	second, err := gen.Generate("git-analytics", "analyze_repository", nil)
	require.NoError(t, err)

	require.NotEqual(t, first["analysisId"], second["analysisId"])
}

func TestSimulated_UnknownToolExhausted(t *testing.T) {
	gen := NewSimulated(slog.Default())

	_, err := gen.Generate("git-analytics", "predict_the_future", nil)

	require.ErrorIs(t, err, errors.ErrFallbackExhausted)
	require.Contains(t, err.Error(), "predict_the_future")
}

func TestSimulated_DefaultsEchoedPath(t *testing.T) {
	gen := NewSimulated(slog.Default())

	data, err := gen.Generate("code-quality", "code_complexity", map[string]any{})
	require.NoError(t, err)
	require.Equal(t, ".", data["path"])
}

func TestSimulated_CoversDefaultCatalog(t *testing.T) {
	gen := NewSimulated(slog.Default())

	for _, tool := range []string{
		"analyze_repository",
		"commit_activity",
		"code_complexity",
		"dependency_graph",
		"detect_debt_patterns",
	} {
		_, err := gen.Generate("any", tool, nil)
		require.NoError(t, err, "tool %s", tool)
	}
}
