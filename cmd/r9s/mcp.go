package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/r9s-dev/r9s/pkg/gateway"
	"github.com/r9s-dev/r9s/pkg/logger"
	"github.com/r9s-dev/r9s/pkg/mcp"
	"github.com/r9s-dev/r9s/pkg/version"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose r9s as a Model Context Protocol server",
	Long: `Commands for serving and exercising the r9s MCP tool set.

MCP provides a standard way to connect AI agents to external systems.
These commands expose the agent store, the gateway's model catalog, and
usage summaries as MCP tools.`,
}

var mcpListToolsCmd = &cobra.Command{
	Use:   "list-tools",
	Short: "List the tools the MCP server exposes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		modules, _ := cmd.Flags().GetStringSlice("module")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		return runMCPListTools(cmd.Context(), modules, jsonOutput)
	},
}

var mcpTestCmd = &cobra.Command{
	Use:   "test TOOL [KEY=VALUE...]",
	Short: "Call one MCP tool in-process and print its result",
	Long: `Runs a single tool call through the server without an MCP client.

Argument values are parsed as JSON when possible, otherwise taken as
strings:

  r9s mcp test get_agent name=support
  r9s mcp test list_models limit=5 provider=anthropic`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modules, _ := cmd.Flags().GetStringSlice("module")
		return runMCPTest(cmd.Context(), modules, args[0], args[1:])
	},
}

func init() {
	mcpListToolsCmd.Flags().StringSlice("module", mcp.AllModules(), "Tool modules to include (agents, models, usage)")
	mcpListToolsCmd.Flags().Bool("json", false, "Print tool definitions as JSON")

	mcpTestCmd.Flags().StringSlice("module", mcp.AllModules(), "Tool modules to include (agents, models, usage)")

	mcpCmd.AddCommand(mcpListToolsCmd)
	mcpCmd.AddCommand(mcpTestCmd)
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

// buildMCPServer assembles the stores and gateway client behind the
// tool modules. A missing API key downgrades to the credential-less
// tool set instead of failing, so listing tools never needs a key.
func buildMCPServer(ctx context.Context, modules []string) (*mcp.Server, error) {
	store, err := newAgentStore()
	if err != nil {
		return nil, errors.Wrap(err, "opening agent store")
	}
	skillStore, err := newSkillStore()
	if err != nil {
		return nil, errors.Wrap(err, "opening skill store")
	}

	client, err := newGatewayClient()
	if err != nil {
		if !errors.Is(err, gateway.ErrMissingAPIKey) {
			return nil, errors.Wrap(err, "creating gateway client")
		}
		logger.G(ctx).Warn("R9S_API_KEY not set: tools that reach the gateway will report errors")
		client = nil
	}

	return mcp.New(mcp.Config{
		Agents:  store,
		Skills:  skillStore,
		Audit:   newAuditStore(store),
		Gateway: client,
		Modules: modules,
		Version: version.Get().Version,
	})
}

func runMCPListTools(ctx context.Context, modules []string, jsonOutput bool) error {
	srv, err := buildMCPServer(ctx, modules)
	if err != nil {
		return err
	}
	tools := srv.Tools()

	if jsonOutput {
		type toolInfo struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"input_schema"`
		}
		infos := make([]toolInfo, 0, len(tools))
		for _, tool := range tools {
			infos = append(infos, toolInfo{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: json.RawMessage(tool.RawInputSchema),
			})
		}
		data, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encoding tool definitions")
		}
		fmt.Println(string(data))
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION")
	fmt.Fprintln(tw, "----\t-----------")
	for _, tool := range tools {
		description := tool.Description
		if idx := strings.IndexByte(description, '\n'); idx >= 0 {
			description = description[:idx]
		}
		if len(description) > 80 {
			description = strings.TrimSpace(description[:77]) + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\n", tool.Name, description)
	}
	return tw.Flush()
}

func runMCPTest(ctx context.Context, modules []string, toolName string, argv []string) error {
	toolArgs := make(map[string]any, len(argv))
	for _, pair := range argv {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return errors.Errorf("invalid argument %q: expected key=value", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		toolArgs[key] = value
	}

	srv, err := buildMCPServer(ctx, modules)
	if err != nil {
		return err
	}

	result, err := srv.CallTool(ctx, toolName, toolArgs)
	if err != nil {
		return err
	}

	for _, content := range result.Content {
		if text, ok := content.(mcptypes.TextContent); ok {
			fmt.Println(text.Text)
		}
	}
	if result.IsError {
		return errors.Errorf("tool %q reported an error", toolName)
	}
	return nil
}
