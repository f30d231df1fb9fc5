// Package usage aggregates agent execution records into token usage
// statistics: account totals, per-day breakdowns, and per-model or
// per-agent breakdowns for the usage command and the MCP summary tool.
package usage

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/r9s-dev/r9s/pkg/agents"
	"github.com/r9s-dev/r9s/pkg/logger"
)

// Reporting periods accepted by PeriodStart.
const (
	PeriodToday   = "today"
	PeriodWeek    = "week"
	PeriodMonth   = "month"
	PeriodAllTime = "all_time"
)

// Grouping modes shared by the usage command and the MCP summary tool.
const (
	GroupByDay   = "day"
	GroupByModel = "model"
	GroupByAgent = "agent"
)

// TokenUsage totals gateway tokens across some set of executions.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates one exchange.
func (u *TokenUsage) Add(input, output int) {
	u.InputTokens += input
	u.OutputTokens += output
}

// TotalTokens returns input plus output tokens.
func (u TokenUsage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// DailyUsage is one day's totals. Date is the UTC-aligned start of the
// day.
type DailyUsage struct {
	Date       time.Time  `json:"date"`
	Usage      TokenUsage `json:"usage"`
	Executions int        `json:"executions"`
}

// Stats aggregates executions with a daily breakdown sorted newest
// first.
type Stats struct {
	Daily           []DailyUsage `json:"daily"`
	Total           TokenUsage   `json:"total"`
	TotalExecutions int          `json:"total_executions"`
}

// GroupStats holds the totals for one breakdown key.
type GroupStats struct {
	Usage      TokenUsage `json:"usage"`
	Executions int        `json:"executions"`
}

// BreakdownStats maps a breakdown key (model or agent name) to its
// totals.
type BreakdownStats struct {
	Groups          map[string]*GroupStats `json:"groups"`
	Total           TokenUsage             `json:"total"`
	TotalExecutions int                    `json:"total_executions"`
}

// SortedGroups returns the breakdown keys ordered by total tokens,
// heaviest first, ties broken by name.
func (b *BreakdownStats) SortedGroups() []string {
	keys := make([]string, 0, len(b.Groups))
	for key := range b.Groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		ti := b.Groups[keys[i]].Usage.TotalTokens()
		tj := b.Groups[keys[j]].Usage.TotalTokens()
		if ti != tj {
			return ti > tj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// PeriodStart maps a reporting period to its inclusive start time
// relative to ref. Days are UTC aligned; week and month are rolling
// 7 and 30 day windows. The zero time means unbounded.
func PeriodStart(period string, ref time.Time) (time.Time, error) {
	day := ref.Truncate(24 * time.Hour)
	switch period {
	case "", PeriodAllTime:
		return time.Time{}, nil
	case PeriodToday:
		return day, nil
	case PeriodWeek:
		return day.AddDate(0, 0, -6), nil
	case PeriodMonth:
		return day.AddDate(0, 0, -29), nil
	default:
		return time.Time{}, errors.Errorf("unknown period %q: use today, week, month, or all_time", period)
	}
}

// Collect loads the full audit history of the named agents,
// concatenated in the given order.
func Collect(ctx context.Context, store *agents.AuditStore, names []string) ([]agents.Execution, error) {
	var records []agents.Execution
	for _, name := range names {
		agentRecords, err := store.Query(ctx, agents.QueryFilter{Agent: name})
		if err != nil {
			return nil, err
		}
		records = append(records, agentRecords...)
	}
	return records, nil
}

func inRange(ts time.Time, start, end time.Time) bool {
	if !start.IsZero() && ts.Before(start) {
		return false
	}
	if !end.IsZero() && ts.After(end) {
		return false
	}
	return true
}

// Summarize aggregates executions within the time range into totals
// with a per-day breakdown sorted newest first. Zero bounds are
// unbounded.
func Summarize(records []agents.Execution, start, end time.Time) *Stats {
	dailyMap := make(map[string]*DailyUsage)
	stats := &Stats{}

	for _, record := range records {
		if !inRange(record.Timestamp, start, end) {
			continue
		}

		day := record.Timestamp.Truncate(24 * time.Hour)
		key := day.Format("2006-01-02")
		daily, ok := dailyMap[key]
		if !ok {
			daily = &DailyUsage{Date: day}
			dailyMap[key] = daily
		}
		daily.Usage.Add(record.InputTokens, record.OutputTokens)
		daily.Executions++

		stats.Total.Add(record.InputTokens, record.OutputTokens)
		stats.TotalExecutions++
	}

	stats.Daily = make([]DailyUsage, 0, len(dailyMap))
	for _, daily := range dailyMap {
		stats.Daily = append(stats.Daily, *daily)
	}
	sort.Slice(stats.Daily, func(i, j int) bool {
		return stats.Daily[i].Date.After(stats.Daily[j].Date)
	})
	return stats
}

func summarizeBy(records []agents.Execution, start, end time.Time, key func(agents.Execution) string) *BreakdownStats {
	stats := &BreakdownStats{Groups: make(map[string]*GroupStats)}
	for _, record := range records {
		if !inRange(record.Timestamp, start, end) {
			continue
		}

		k := key(record)
		if k == "" {
			k = "unknown"
		}
		group, ok := stats.Groups[k]
		if !ok {
			group = &GroupStats{}
			stats.Groups[k] = group
		}
		group.Usage.Add(record.InputTokens, record.OutputTokens)
		group.Executions++

		stats.Total.Add(record.InputTokens, record.OutputTokens)
		stats.TotalExecutions++
	}
	return stats
}

// SummarizeByModel breaks totals down by the model each execution ran
// on. Records without a model land under "unknown".
func SummarizeByModel(records []agents.Execution, start, end time.Time) *BreakdownStats {
	return summarizeBy(records, start, end, func(e agents.Execution) string { return e.Model })
}

// SummarizeByAgent breaks totals down by agent name.
func SummarizeByAgent(records []agents.Execution, start, end time.Time) *BreakdownStats {
	return summarizeBy(records, start, end, func(e agents.Execution) string { return e.AgentName })
}

// FormatNumber formats large numbers with commas for readability.
func FormatNumber(n int) string {
	str := strconv.Itoa(n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}
	return result.String()
}

// LogUsage emits a structured usage line for one gateway exchange.
func LogUsage(ctx context.Context, model string, usage TokenUsage, elapsed time.Duration) {
	fields := logrus.Fields{
		"model":         model,
		"input_tokens":  usage.InputTokens,
		"output_tokens": usage.OutputTokens,
		"total_tokens":  usage.TotalTokens(),
	}
	if elapsed > 0 && usage.OutputTokens > 0 {
		perSecond := float64(usage.OutputTokens) / elapsed.Seconds()
		fields["output_tokens/s"] = math.Round(perSecond*100) / 100
	}
	logger.G(ctx).WithFields(fields).Info("gateway usage completed")
}
