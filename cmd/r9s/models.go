package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/r9s-dev/r9s/pkg/gateway"
	"github.com/r9s-dev/r9s/pkg/parallel"
	"github.com/r9s-dev/r9s/pkg/presenter"
)

// CompareConfig holds configuration for the compare command
type CompareConfig struct {
	Models    []string
	System    string
	MaxTokens int
}

// NewCompareConfig creates a new CompareConfig with default values
func NewCompareConfig() *CompareConfig {
	return &CompareConfig{
		MaxTokens: 500,
	}
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models advertised by the gateway",
	Run: func(cmd *cobra.Command, args []string) {
		runModels(cmd.Context())
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare PROMPT...",
	Short: "Send one prompt to several models in parallel",
	Long: `Fans the same prompt out to every --model concurrently and prints
each reply with its latency, so model behavior can be compared side by
side.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runCompare(cmd.Context(), strings.Join(args, " "), getCompareConfigFromFlags(cmd))
	},
}

func init() {
	defaults := NewCompareConfig()
	compareCmd.Flags().StringArrayP("model", "m", defaults.Models, "Model to include (repeat at least twice)")
	compareCmd.Flags().String("system", defaults.System, "Optional system prompt")
	compareCmd.Flags().Int("max-tokens", defaults.MaxTokens, "Response token cap per model")

	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(compareCmd)
}

// getCompareConfigFromFlags extracts compare configuration from command flags
func getCompareConfigFromFlags(cmd *cobra.Command) *CompareConfig {
	config := NewCompareConfig()

	if models, err := cmd.Flags().GetStringArray("model"); err == nil {
		config.Models = models
	}
	if system, err := cmd.Flags().GetString("system"); err == nil {
		config.System = system
	}
	if maxTokens, err := cmd.Flags().GetInt("max-tokens"); err == nil {
		config.MaxTokens = maxTokens
	}

	return config
}

func runModels(ctx context.Context) {
	client, err := newGatewayClient()
	if err != nil {
		presenter.Error(err, "Failed to create gateway client")
		os.Exit(1)
	}

	models, err := client.ListModels(ctx)
	if err != nil {
		presenter.Error(err, "Failed to list models")
		os.Exit(1)
	}
	if len(models) == 0 {
		presenter.Info("No models available.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOWNED BY\tCREATED")
	fmt.Fprintln(tw, "--\t--------\t-------")
	for _, m := range models {
		created := "-"
		if m.Created > 0 {
			created = time.Unix(m.Created, 0).UTC().Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, m.OwnedBy, created)
	}
	tw.Flush()
}

func runCompare(ctx context.Context, prompt string, config *CompareConfig) {
	if len(config.Models) < 2 {
		presenter.Error(errors.New("at least two models are required"), "Repeat --model for each model to compare")
		os.Exit(1)
	}

	client, err := newGatewayClient()
	if err != nil {
		presenter.Error(err, "Failed to create gateway client")
		os.Exit(1)
	}

	var messages []gateway.Message
	if config.System != "" {
		messages = append(messages, gateway.Message{Role: gateway.RoleSystem, Content: config.System})
	}
	messages = append(messages, gateway.Message{Role: gateway.RoleUser, Content: prompt})

	results := parallel.Map(ctx, config.Models, func(ctx context.Context, model string) (*gateway.ChatResponse, error) {
		return client.Chat(ctx, gateway.ChatRequest{
			Model:     model,
			Messages:  messages,
			MaxTokens: config.MaxTokens,
		})
	}, parallel.Options{Concurrency: len(config.Models)})

	failed := 0
	for _, result := range results {
		model := config.Models[result.Index]
		presenter.Section(fmt.Sprintf("%s (%dms)", model, result.LatencyMS))
		if result.Err != nil {
			presenter.Error(result.Err, "Request failed")
			failed++
			continue
		}
		fmt.Println(result.Value.Content)
		presenter.Info(fmt.Sprintf("input=%d output=%d",
			result.Value.Usage.PromptTokens, result.Value.Usage.CompletionTokens))
	}

	if failed == len(results) {
		os.Exit(1)
	}
}
