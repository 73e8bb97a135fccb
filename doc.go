// Package toolbridge launches external analysis tool servers as child
// processes, speaks a newline-delimited JSON-RPC protocol with them over
// stdio, and exposes a uniform "execute named tool on named server"
// operation with fallback behavior on protocol failure.
//
// # Basic Usage
//
// Register servers from a catalog and execute tools through the bridge:
//
//	bridge := toolbridge.New(
//	    toolbridge.WithLogger(slog.Default()),
//	)
//	defer bridge.Close()
//
//	bridge.RegisterServer(toolbridge.ServerSpec{
//	    Name:         "git-analytics",
//	    Command:      "gitanalytics",
//	    Capabilities: []string{"analyze_repository"},
//	})
//
//	result := bridge.ExecuteTool(ctx, "git-analytics", "analyze_repository",
//	    map[string]any{"repoPath": "/repo"})
//	if result.Success {
//	    // result.Data holds the analysis; result.Degraded reports whether
//	    // it came from the simulated fallback instead of a live server.
//	}
//
// The bridge starts servers on demand: the first ExecuteTool against a
// stopped server spawns its process and runs the initialize handshake.
// Capability checks happen before any process activity, so calling an
// undeclared tool never spawns anything.
//
// # Degraded Results
//
// Tool servers are independent processes that can legitimately be
// unavailable. When a spawn, handshake, or call fails, the bridge serves a
// simulated response and marks the result Degraded rather than failing the
// caller. Disable this with WithFallbackDisabled to surface protocol errors
// directly.
//
// # Error Handling
//
// Caller errors (unknown server, unsupported tool) are reported as failed
// results immediately and never consult the fallback. Sentinel errors such
// as ErrRequestTimeout and ErrChannelClosed are available for callers that
// disable the fallback and want to distinguish failure modes.
package toolbridge
