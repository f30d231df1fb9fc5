package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/r9s-dev/r9s/pkg/logger"
	"github.com/r9s-dev/r9s/pkg/mcp"
	"github.com/r9s-dev/r9s/pkg/presenter"
)

// MCPServeConfig holds configuration for the mcp serve command
type MCPServeConfig struct {
	Modules []string
}

// NewMCPServeConfig creates a new MCPServeConfig with default values
func NewMCPServeConfig() *MCPServeConfig {
	return &MCPServeConfig{
		Modules: mcp.AllModules(),
	}
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve r9s tools over MCP on stdio",
	Long: `Starts a Model Context Protocol server on stdin/stdout.

The protocol owns stdout, so all diagnostics go to stderr via the
logger. The server runs until the client disconnects or the process is
interrupted.`,
	Run: func(cmd *cobra.Command, _ []string) {
		runMCPServe(cmd.Context(), getMCPServeConfigFromFlags(cmd))
	},
}

func init() {
	defaults := NewMCPServeConfig()
	mcpServeCmd.Flags().StringSlice("module", defaults.Modules, "Tool modules to expose (agents, models, usage)")
}

// getMCPServeConfigFromFlags extracts serve configuration from command flags
func getMCPServeConfigFromFlags(cmd *cobra.Command) *MCPServeConfig {
	config := NewMCPServeConfig()

	if modules, err := cmd.Flags().GetStringSlice("module"); err == nil {
		config.Modules = modules
	}

	return config
}

func runMCPServe(ctx context.Context, config *MCPServeConfig) {
	srv, err := buildMCPServer(ctx, config.Modules)
	if err != nil {
		presenter.Error(err, "Failed to build MCP server")
		os.Exit(1)
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.G(ctx).WithField("modules", config.Modules).Info("starting MCP server on stdio")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ServeStdio()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.G(ctx).WithError(err).Error("MCP server error")
			presenter.Error(err, "MCP server failed")
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.G(ctx).Info("shutdown signal received, stopping server")
	}
}
