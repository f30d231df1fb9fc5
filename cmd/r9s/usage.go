package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/r9s-dev/r9s/pkg/presenter"
	"github.com/r9s-dev/r9s/pkg/usage"
)

// UsageConfig holds configuration for the usage command
type UsageConfig struct {
	Agent   string
	Period  string
	GroupBy string
	Format  string
	Export  bool
}

// NewUsageConfig creates a new UsageConfig with default values
func NewUsageConfig() *UsageConfig {
	return &UsageConfig{
		Period:  usage.PeriodMonth,
		GroupBy: usage.GroupByDay,
		Format:  "table",
	}
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show gateway token usage",
	Long: `Aggregates the execution audit logs into token usage statistics.

By default shows the past month, broken down by day.

Examples:
  r9s usage                        # Past month by day
  r9s usage --period today         # Today only
  r9s usage --group-by model       # Totals per model
  r9s usage --agent support        # One agent only
  r9s usage --export > audit.json  # Raw audit records as JSON
`,
	Run: func(cmd *cobra.Command, args []string) {
		runUsageCmd(cmd.Context(), getUsageConfigFromFlags(cmd))
	},
}

func init() {
	defaults := NewUsageConfig()
	usageCmd.Flags().String("agent", defaults.Agent, "Restrict to one agent")
	usageCmd.Flags().String("period", defaults.Period, "Reporting period (today, week, month, all_time)")
	usageCmd.Flags().String("group-by", defaults.GroupBy, "Breakdown dimension (day, model, agent)")
	usageCmd.Flags().String("format", defaults.Format, "Output format: table or json")
	usageCmd.Flags().Bool("export", defaults.Export, "Dump the raw audit records as JSON and exit")

	rootCmd.AddCommand(usageCmd)
}

// getUsageConfigFromFlags extracts usage configuration from command flags
func getUsageConfigFromFlags(cmd *cobra.Command) *UsageConfig {
	config := NewUsageConfig()

	if agent, err := cmd.Flags().GetString("agent"); err == nil {
		config.Agent = agent
	}
	if period, err := cmd.Flags().GetString("period"); err == nil {
		config.Period = period
	}
	if groupBy, err := cmd.Flags().GetString("group-by"); err == nil {
		config.GroupBy = groupBy
	}
	if format, err := cmd.Flags().GetString("format"); err == nil {
		config.Format = format
	}
	if export, err := cmd.Flags().GetBool("export"); err == nil {
		config.Export = export
	}

	return config
}

func runUsageCmd(ctx context.Context, config *UsageConfig) {
	store, err := newAgentStore()
	if err != nil {
		presenter.Error(err, "Failed to open agent store")
		os.Exit(1)
	}
	audit := newAuditStore(store)

	if config.Export {
		data, err := audit.Export(ctx, "json")
		if err != nil {
			presenter.Error(err, "Failed to export audit records")
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	start, err := usage.PeriodStart(config.Period, time.Now())
	if err != nil {
		presenter.Error(err, "Invalid period")
		os.Exit(1)
	}

	var names []string
	if config.Agent != "" {
		names = []string{config.Agent}
	} else {
		list, err := store.ListAgents(ctx)
		if err != nil {
			presenter.Error(err, "Failed to list agents")
			os.Exit(1)
		}
		for _, agent := range list {
			names = append(names, agent.Name)
		}
	}

	records, err := usage.Collect(ctx, audit, names)
	if err != nil {
		presenter.Error(err, "Failed to read audit logs")
		os.Exit(1)
	}

	switch config.GroupBy {
	case "", usage.GroupByDay:
		stats := usage.Summarize(records, start, time.Time{})
		if config.Format == "json" {
			displayJSON(os.Stdout, stats)
			return
		}
		displayUsageTable(os.Stdout, stats)
	case usage.GroupByModel:
		breakdown := usage.SummarizeByModel(records, start, time.Time{})
		if config.Format == "json" {
			displayJSON(os.Stdout, breakdown)
			return
		}
		displayBreakdownTable(os.Stdout, "Model", breakdown)
	case usage.GroupByAgent:
		breakdown := usage.SummarizeByAgent(records, start, time.Time{})
		if config.Format == "json" {
			displayJSON(os.Stdout, breakdown)
			return
		}
		displayBreakdownTable(os.Stdout, "Agent", breakdown)
	default:
		presenter.Error(errors.Errorf("unknown group-by %q: use day, model, or agent", config.GroupBy), "Invalid flag")
		os.Exit(1)
	}
}

// displayUsageTable displays the daily breakdown in table format
func displayUsageTable(w io.Writer, stats *usage.Stats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "Date\tExecutions\tInput Tokens\tOutput Tokens\tTotal")
	fmt.Fprintln(tw, "----\t----------\t------------\t-------------\t-----")

	for _, daily := range stats.Daily {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			daily.Date.Format("2006-01-02"),
			daily.Executions,
			usage.FormatNumber(daily.Usage.InputTokens),
			usage.FormatNumber(daily.Usage.OutputTokens),
			usage.FormatNumber(daily.Usage.TotalTokens()),
		)
	}

	fmt.Fprintln(tw, "----\t----------\t------------\t-------------\t-----")
	fmt.Fprintf(tw, "TOTAL\t%d\t%s\t%s\t%s\n",
		stats.TotalExecutions,
		usage.FormatNumber(stats.Total.InputTokens),
		usage.FormatNumber(stats.Total.OutputTokens),
		usage.FormatNumber(stats.Total.TotalTokens()),
	)

	tw.Flush()
}

// displayBreakdownTable displays per-model or per-agent totals
func displayBreakdownTable(w io.Writer, label string, breakdown *usage.BreakdownStats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "%s\tExecutions\tInput Tokens\tOutput Tokens\tTotal\n", label)
	fmt.Fprintln(tw, "-----\t----------\t------------\t-------------\t-----")

	for _, key := range breakdown.SortedGroups() {
		group := breakdown.Groups[key]
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			key,
			group.Executions,
			usage.FormatNumber(group.Usage.InputTokens),
			usage.FormatNumber(group.Usage.OutputTokens),
			usage.FormatNumber(group.Usage.TotalTokens()),
		)
	}

	fmt.Fprintln(tw, "-----\t----------\t------------\t-------------\t-----")
	fmt.Fprintf(tw, "TOTAL\t%d\t%s\t%s\t%s\n",
		breakdown.TotalExecutions,
		usage.FormatNumber(breakdown.Total.InputTokens),
		usage.FormatNumber(breakdown.Total.OutputTokens),
		usage.FormatNumber(breakdown.Total.TotalTokens()),
	)

	tw.Flush()
}

func displayJSON(w io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		presenter.Error(err, "Failed to encode statistics")
		os.Exit(1)
	}
	fmt.Fprintln(w, string(data))
}
