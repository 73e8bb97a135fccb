// Command gitanalytics is a stdio tool server offering repository analysis
// tools. It is the reference implementation of the protocol the bridge
// speaks: newline-delimited JSON-RPC over stdin/stdout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverVersion = "0.3.0"

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	server := mcp.NewServer(&mcp.Implementation{Name: "gitanalytics", Version: serverVersion}, nil)

	mcp.AddTool(server, analyzeRepositoryTool(), analyzeRepositoryHandler())
	mcp.AddTool(server, commitActivityTool(), commitActivityHandler())

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

// AnalyzeRepositoryInput selects the repository to analyze.
type AnalyzeRepositoryInput struct {
	RepoPath string `json:"repoPath,omitempty" jsonschema:"path to the git repository, defaults to the working directory"`
}

// AuthorStat is one author's contribution count.
type AuthorStat struct {
	Name    string `json:"name" jsonschema:"author name"`
	Commits int    `json:"commits" jsonschema:"number of commits by this author"`
}

// AnalyzeRepositoryResult summarizes a repository's commit history.
type AnalyzeRepositoryResult struct {
	RepoPath     string       `json:"repoPath" jsonschema:"repository analyzed"`
	TotalCommits int          `json:"totalCommits" jsonschema:"total commits on the current branch"`
	TotalAuthors int          `json:"totalAuthors" jsonschema:"distinct commit authors"`
	FirstCommit  string       `json:"firstCommit" jsonschema:"date of the first commit"`
	LastCommit   string       `json:"lastCommit" jsonschema:"date of the most recent commit"`
	TopAuthors   []AuthorStat `json:"topAuthors" jsonschema:"authors with the most commits"`
}

func analyzeRepositoryTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "analyze_repository",
		Description: "Summarize a git repository's commit history",
	}
}

func analyzeRepositoryHandler() mcp.ToolHandlerFor[AnalyzeRepositoryInput, AnalyzeRepositoryResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input AnalyzeRepositoryInput) (*mcp.CallToolResult, AnalyzeRepositoryResult, error) {
		repo := repoPath(input.RepoPath)

		authors, err := gitLines(ctx, repo, "log", "--format=%an")
		if err != nil {
			return nil, AnalyzeRepositoryResult{}, fmt.Errorf("read commit log: %w", err)
		}

		counts := make(map[string]int, 16)
		for _, author := range authors {
			counts[author]++
		}

		top := make([]AuthorStat, 0, len(counts))
		for name, commits := range counts {
			top = append(top, AuthorStat{Name: name, Commits: commits})
		}
		sort.Slice(top, func(i, j int) bool {
			if top[i].Commits != top[j].Commits {
				return top[i].Commits > top[j].Commits
			}
			return top[i].Name < top[j].Name
		})
		if len(top) > 5 {
			top = top[:5]
		}

		first, _ := gitLines(ctx, repo, "log", "--reverse", "--format=%as", "--max-count=1")
		last, _ := gitLines(ctx, repo, "log", "--format=%as", "--max-count=1")

		return nil, AnalyzeRepositoryResult{
			RepoPath:     repo,
			TotalCommits: len(authors),
			TotalAuthors: len(counts),
			FirstCommit:  firstLine(first),
			LastCommit:   firstLine(last),
			TopAuthors:   top,
		}, nil
	}
}

// CommitActivityInput selects the repository and window.
type CommitActivityInput struct {
	RepoPath string `json:"repoPath,omitempty" jsonschema:"path to the git repository, defaults to the working directory"`
	Weeks    int    `json:"weeks,omitempty" jsonschema:"number of recent weeks to report, defaults to 4"`
}

// WeekStat is commit volume for one ISO week.
type WeekStat struct {
	Week    string `json:"week" jsonschema:"monday of the week"`
	Commits int    `json:"commits" jsonschema:"commits during the week"`
}

// CommitActivityResult is recent commit volume grouped by week.
type CommitActivityResult struct {
	RepoPath string     `json:"repoPath" jsonschema:"repository analyzed"`
	Weeks    []WeekStat `json:"weeks" jsonschema:"weekly commit counts, oldest first"`
}

func commitActivityTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "commit_activity",
		Description: "Report recent commit volume grouped by week",
	}
}

func commitActivityHandler() mcp.ToolHandlerFor[CommitActivityInput, CommitActivityResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CommitActivityInput) (*mcp.CallToolResult, CommitActivityResult, error) {
		repo := repoPath(input.RepoPath)

		weeks := input.Weeks
		if weeks <= 0 {
			weeks = 4
		}

		since := fmt.Sprintf("--since=%s", strconv.Itoa(weeks*7)+" days ago")

		// %as is the author date as YYYY-MM-DD; weeks are keyed by the
		// date's ISO week start.
		dates, err := gitLines(ctx, repo, "log", since, "--format=%as")
		if err != nil {
			return nil, CommitActivityResult{}, fmt.Errorf("read commit log: %w", err)
		}

		counts := make(map[string]int, weeks)
		for _, date := range dates {
			counts[weekOf(date)]++
		}

		out := make([]WeekStat, 0, len(counts))
		for week, commits := range counts {
			out = append(out, WeekStat{Week: week, Commits: commits})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Week < out[j].Week })

		return nil, CommitActivityResult{RepoPath: repo, Weeks: out}, nil
	}
}

// repoPath defaults an empty path to the working directory.
func repoPath(path string) string {
	if path == "" {
		return "."
	}
	return path
}

// gitLines runs a git subcommand in the repository and returns its non-empty
// output lines.
func gitLines(ctx context.Context, repo string, args ...string) ([]string, error) {
	full := append([]string{"-C", repo}, args...)

	out, err := exec.CommandContext(ctx, "git", full...).Output()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}

	lines := make([]string, 0, 64)
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	return lines, nil
}

// weekOf maps a YYYY-MM-DD date onto the Monday of its week. Dates that do
// not parse are grouped under their own key rather than dropped.
func weekOf(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}

	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0

	return t.AddDate(0, 0, -offset).Format("2006-01-02")
}

func firstLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}
