package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/r9s-dev/r9s/pkg/agents"
	"github.com/r9s-dev/r9s/pkg/commands"
	"github.com/r9s-dev/r9s/pkg/gateway"
	"github.com/r9s-dev/r9s/pkg/logger"
	"github.com/r9s-dev/r9s/pkg/presenter"
	"github.com/r9s-dev/r9s/pkg/skills"
)

func init() {
	// Environment variables
	viper.SetEnvPrefix("R9S")
	viper.AutomaticEnv()

	// Config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.r9s")
	viper.AddConfigPath(".")

	// Load config file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "r9s",
	Short: "r9s CLI for versioned agents, skills, and the r9s Gateway",
	Long: `r9s manages versioned agent configurations, reusable skills, and
command templates stored on the local filesystem, and executes them
through the r9s Gateway.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if level := viper.GetString("log_level"); level != "" {
			if err := logger.SetLevel(level); err != nil {
				presenter.Warning(fmt.Sprintf("Invalid log level %q, keeping default", level))
			}
		}
		logger.SetFormat(viper.GetString("log_format"))
		if viper.GetBool("quiet") {
			presenter.SetQuiet(true)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

// newAgentStore opens the agent store at its default location, with the
// author taken from config when set.
func newAgentStore() (*agents.LocalStore, error) {
	var opts []agents.Option
	if author := viper.GetString("author"); author != "" {
		opts = append(opts, agents.WithCreatedBy(author))
	}
	return agents.NewLocalStore(opts...)
}

func newAuditStore(store *agents.LocalStore) *agents.AuditStore {
	return agents.NewAuditStore(store.BaseDir())
}

func newSkillStore() (*skills.LocalStore, error) {
	return skills.NewLocalStore()
}

func newCommandStore() (*commands.LocalStore, error) {
	return commands.NewLocalStore()
}

// newGatewayClient builds a gateway client from R9S_API_KEY and
// R9S_BASE_URL, honoring the config file as a fallback.
func newGatewayClient() (*gateway.Client, error) {
	var opts []gateway.Option
	if key := viper.GetString("api_key"); key != "" {
		opts = append(opts, gateway.WithAPIKey(key))
	}
	if base := viper.GetString("base_url"); base != "" {
		opts = append(opts, gateway.WithBaseURL(base))
	}
	return gateway.FromEnv(opts...)
}

func resolveModel(version *agents.AgentVersion) string {
	if model := viper.GetString("model"); model != "" {
		return model
	}
	if version != nil && version.Model != "" {
		return version.Model
	}
	return gateway.ModelFromEnv()
}

func main() {
	// Add global flags
	rootCmd.PersistentFlags().String("model", "", "Gateway model to use (overrides agent config)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json, fmt)")
	rootCmd.PersistentFlags().Bool("quiet", false, "Suppress non-essential output")

	// Bind flags to viper
	viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))

	// Add subcommands
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(versionCmd)

	ctx := context.Background()
	shutdown, err := initTracing(ctx)
	if err != nil {
		logger.G(ctx).WithError(err).Warn("failed to initialize tracing")
		shutdown = func(context.Context) error { return nil }
	}

	execErr := rootCmd.ExecuteContext(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := shutdown(shutdownCtx); err != nil {
		logger.G(ctx).WithError(err).Debug("tracing shutdown failed")
	}
	cancel()

	if execErr != nil {
		fmt.Println(execErr)
		os.Exit(1)
	}
}
