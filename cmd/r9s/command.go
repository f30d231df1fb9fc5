package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/r9s-dev/r9s/pkg/commands"
	"github.com/r9s-dev/r9s/pkg/gateway"
	"github.com/r9s-dev/r9s/pkg/presenter"
)

// CommandRunConfig holds configuration for the command run command
type CommandRunConfig struct {
	AssumeYes    bool
	DryRun       bool
	MaxTokens    int
	ShellTimeout int
}

// NewCommandRunConfig creates a new CommandRunConfig with default values
func NewCommandRunConfig() *CommandRunConfig {
	return &CommandRunConfig{
		ShellTimeout: int(commands.DefaultShellTimeout.Seconds()),
	}
}

var commandCmd = &cobra.Command{
	Use:   "command",
	Short: "Manage reusable command templates",
	Long: `Commands for saving and running prompt templates.

A command template may contain {{args}} placeholders, !{shell} spans
executed at render time, and @{file} spans that inject file content.`,
}

var commandSaveCmd = &cobra.Command{
	Use:   "save NAME",
	Short: "Save a command template",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		prompt, _ := cmd.Flags().GetString("prompt")
		file, _ := cmd.Flags().GetString("file")
		description, _ := cmd.Flags().GetString("description")
		runCommandSave(cmd.Context(), args[0], prompt, file, description)
	},
}

var commandListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved command templates",
	Run: func(cmd *cobra.Command, args []string) {
		runCommandList(cmd.Context())
	},
}

var commandShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show a command template",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runCommandShow(cmd.Context(), args[0])
	},
}

var commandDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a command template",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		noConfirm, _ := cmd.Flags().GetBool("no-confirm")
		runCommandDelete(cmd.Context(), args[0], noConfirm)
	},
}

var commandRunCmd = &cobra.Command{
	Use:   "run NAME [ARGS...]",
	Short: "Render a command template and send it through the gateway",
	Long: `Renders the named template and sends the result as a chat message.

Arguments after NAME replace the {{args}} placeholder. Shell spans
prompt for confirmation unless -y is passed. --dry-run prints the
template with only {{args}} substituted and sends nothing.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runCommandRun(cmd.Context(), args[0], args[1:], getCommandRunConfigFromFlags(cmd))
	},
}

func init() {
	commandSaveCmd.Flags().StringP("prompt", "p", "", "Inline template text")
	commandSaveCmd.Flags().StringP("file", "f", "", "Read the template from a file")
	commandSaveCmd.Flags().String("description", "", "Template description")

	commandDeleteCmd.Flags().Bool("no-confirm", false, "Skip the confirmation prompt")

	defaults := NewCommandRunConfig()
	commandRunCmd.Flags().BoolP("yes", "y", defaults.AssumeYes, "Run shell spans without confirmation")
	commandRunCmd.Flags().Bool("dry-run", defaults.DryRun, "Print the rendered template without sending it")
	commandRunCmd.Flags().Int("max-tokens", defaults.MaxTokens, "Response token cap (0 uses the gateway default)")
	commandRunCmd.Flags().Int("shell-timeout", defaults.ShellTimeout, "Per-span shell timeout in seconds")

	commandCmd.AddCommand(commandSaveCmd)
	commandCmd.AddCommand(commandListCmd)
	commandCmd.AddCommand(commandShowCmd)
	commandCmd.AddCommand(commandDeleteCmd)
	commandCmd.AddCommand(commandRunCmd)
	rootCmd.AddCommand(commandCmd)
}

// getCommandRunConfigFromFlags extracts run configuration from command flags
func getCommandRunConfigFromFlags(cmd *cobra.Command) *CommandRunConfig {
	config := NewCommandRunConfig()

	if assumeYes, err := cmd.Flags().GetBool("yes"); err == nil {
		config.AssumeYes = assumeYes
	}
	if dryRun, err := cmd.Flags().GetBool("dry-run"); err == nil {
		config.DryRun = dryRun
	}
	if maxTokens, err := cmd.Flags().GetInt("max-tokens"); err == nil {
		config.MaxTokens = maxTokens
	}
	if shellTimeout, err := cmd.Flags().GetInt("shell-timeout"); err == nil {
		config.ShellTimeout = shellTimeout
	}

	return config
}

func runCommandSave(ctx context.Context, name, prompt, file, description string) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			presenter.Error(err, "Failed to read template file")
			os.Exit(1)
		}
		prompt = string(data)
	}
	if strings.TrimSpace(prompt) == "" {
		presenter.Error(errors.New("template text is required"), "Pass --prompt or --file")
		os.Exit(1)
	}

	store, err := newCommandStore()
	if err != nil {
		presenter.Error(err, "Failed to open command store")
		os.Exit(1)
	}

	path, err := store.Save(ctx, commands.CommandConfig{
		Name:        name,
		Description: description,
		Prompt:      prompt,
	})
	if err != nil {
		presenter.Error(err, "Failed to save command")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("Saved command %s", name))
	presenter.Info(path)
}

func runCommandList(ctx context.Context) {
	store, err := newCommandStore()
	if err != nil {
		presenter.Error(err, "Failed to open command store")
		os.Exit(1)
	}

	names, err := store.List(ctx)
	if err != nil {
		presenter.Error(err, "Failed to list commands")
		os.Exit(1)
	}
	if len(names) == 0 {
		presenter.Info("No commands found.")
		return
	}

	presenter.Section("Commands")
	for _, name := range names {
		cfg, err := store.Load(ctx, name)
		if err != nil {
			fmt.Printf("- %s (invalid)\n", name)
			continue
		}
		if cfg.Description != "" {
			fmt.Printf("- %s: %s\n", name, cfg.Description)
		} else {
			fmt.Printf("- %s\n", name)
		}
	}
}

func runCommandShow(ctx context.Context, name string) {
	store, err := newCommandStore()
	if err != nil {
		presenter.Error(err, "Failed to open command store")
		os.Exit(1)
	}

	cfg, err := store.Load(ctx, name)
	if err != nil {
		presenter.Error(err, "Failed to load command")
		os.Exit(1)
	}

	presenter.Section(fmt.Sprintf("Command: %s", cfg.Name))
	if cfg.Description != "" {
		fmt.Printf("- description: %s\n", cfg.Description)
	}
	fmt.Println()
	fmt.Println(cfg.Prompt)
}

func runCommandDelete(ctx context.Context, name string, noConfirm bool) {
	store, err := newCommandStore()
	if err != nil {
		presenter.Error(err, "Failed to open command store")
		os.Exit(1)
	}

	if !noConfirm {
		response := presenter.Prompt(fmt.Sprintf("Delete command %q?", name), "y", "N")
		if response != "y" && response != "Y" {
			presenter.Info("Deletion cancelled.")
			return
		}
	}

	if err := store.Delete(ctx, name); err != nil {
		presenter.Error(err, "Failed to delete command")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("Deleted command %s", name))
}

func runCommandRun(ctx context.Context, name string, argv []string, config *CommandRunConfig) {
	store, err := newCommandStore()
	if err != nil {
		presenter.Error(err, "Failed to open command store")
		os.Exit(1)
	}

	cfg, err := store.Load(ctx, name)
	if err != nil {
		presenter.Error(err, "Failed to load command")
		os.Exit(1)
	}

	argsText := strings.Join(argv, " ")

	if config.DryRun {
		fmt.Println(commands.RenderArgs(cfg.Prompt, argsText))
		return
	}

	rendered, err := commands.Render(ctx, cfg.Prompt, commands.RenderContext{
		ArgsText:     argsText,
		AssumeYes:    config.AssumeYes,
		Interactive:  true,
		ShellTimeout: time.Duration(config.ShellTimeout) * time.Second,
	})
	if err != nil {
		presenter.Error(err, "Failed to render command")
		os.Exit(1)
	}

	client, err := newGatewayClient()
	if err != nil {
		presenter.Error(err, "Failed to create gateway client")
		os.Exit(1)
	}

	resp, err := client.Chat(ctx, gateway.ChatRequest{
		Model:     resolveModel(nil),
		Messages:  []gateway.Message{{Role: gateway.RoleUser, Content: rendered}},
		MaxTokens: config.MaxTokens,
	})
	if err != nil {
		presenter.Error(err, "Gateway request failed")
		os.Exit(1)
	}

	fmt.Println(resp.Content)
	presenter.Stats(&presenter.UsageStats{
		Requests:     1,
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	})
}
