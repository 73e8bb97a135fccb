// Command toolbridge is the CLI front end for the tool-server bridge: it
// loads the server catalog, then lists servers, lists tools, and executes
// tools against them.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lodeworks/toolbridge"
	"github.com/lodeworks/toolbridge/internal/config"
)

var (
	catalogPath string
	verbose     bool

	settings *config.Settings
	catalog  *config.Catalog
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd wires the cobra tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "toolbridge",
		Short:         "Run analysis tools on external tool servers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			settings, err = config.ParseSettings()
			if err != nil {
				return err
			}
			catalog, err = config.Load(catalogPath)
			return err
		},
	}
	root.PersistentFlags().StringVar(&catalogPath, "catalog", "toolbridge.yaml", "Path to the server catalog file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	root.AddCommand(
		newServersCmd(),
		newToolsCmd(),
		newCallCmd(),
		newStartCmd(),
		newStopCmd(),
	)
	return root
}

// newBridge builds a Bridge from the loaded catalog and settings.
func newBridge() *toolbridge.Bridge {
	level := settings.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []toolbridge.Option{
		toolbridge.WithLogger(log),
		toolbridge.WithRequestTimeout(settings.RequestTimeout),
	}
	if !settings.FallbackEnabled {
		opts = append(opts, toolbridge.WithFallbackDisabled())
	}

	bridge := toolbridge.New(opts...)
	for _, entry := range catalog.Servers {
		bridge.RegisterServer(entry.Spec())
	}
	return bridge
}

// newServersCmd lists the catalog with current statuses.
func newServersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List registered tool servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			bridge := newBridge()
			defer bridge.Close()

			for _, spec := range bridge.ListServers() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) · %s\n", spec.Name, spec.Status, spec.Command)
				for _, capability := range spec.Capabilities {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", capability)
				}
			}
			return nil
		},
	}
}

// newToolsCmd lists the tools a server offers. A running server is queried
// live; a stopped one is described from its declared capabilities.
func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools [server]",
		Short: "List the tools a server offers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bridge := newBridge()
			defer bridge.Close()

			tools, err := bridge.ListTools(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, tool := range tools {
				if tool.Description != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "%s · %s\n", tool.Name, tool.Description)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), tool.Name)
			}
			return nil
		},
	}
}

// newCallCmd executes one tool and prints the result envelope as JSON.
func newCallCmd() *cobra.Command {
	var argsJSON string

	cmd := &cobra.Command{
		Use:   "call [server] [tool]",
		Short: "Execute a tool on a server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params map[string]any
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &params); err != nil {
					return fmt.Errorf("parse --args: %w", err)
				}
			}

			bridge := newBridge()
			defer bridge.Close()

			result := bridge.ExecuteTool(cmd.Context(), args[0], args[1], params)

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if !result.Success {
				return fmt.Errorf("execution failed: %s", result.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&argsJSON, "args", "", "Tool arguments as a JSON object")
	return cmd
}

// newStartCmd spawns a server and reports whether the handshake succeeded.
func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start [server]",
		Short: "Start a tool server and verify its handshake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bridge := newBridge()
			defer bridge.Close()

			if err := bridge.StartServer(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s running\n", args[0])
			return nil
		},
	}
}

// newStopCmd stops a server.
func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop [server]",
		Short: "Stop a tool server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bridge := newBridge()
			defer bridge.Close()

			if err := bridge.StopServer(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s stopped\n", args[0])
			return nil
		},
	}
}
