package agents

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/r9s-dev/r9s/pkg/logger"
)

const auditFileName = "audit.jsonl"

// Execution is one audit record: a single agent invocation. Records are
// append-only; nothing ever rewrites or deletes an individual line.
type Execution struct {
	ExecutionID  string    `json:"execution_id"`
	AgentName    string    `json:"agent_name"`
	AgentVersion string    `json:"agent_version"`
	ContentHash  string    `json:"content_hash"`
	RequestID    string    `json:"request_id"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider"`
	Timestamp    time.Time `json:"timestamp"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	SessionID    string    `json:"session_id"`
}

// AuditStore appends and queries per-agent execution logs stored next to
// the agent's manifest. Writes are advisory appends with no locking;
// interleaved writers are a documented non-goal.
type AuditStore struct {
	baseDir string
}

// NewAuditStore creates an audit store over the same root as the agent
// store. An empty baseDir falls back to DefaultBaseDir.
func NewAuditStore(baseDir string) *AuditStore {
	if baseDir == "" {
		baseDir = DefaultBaseDir()
	}
	return &AuditStore{baseDir: baseDir}
}

func (a *AuditStore) auditPath(agentName string) string {
	return filepath.Join(a.baseDir, agentName, auditFileName)
}

// Record appends one JSON line to the agent's audit log, creating parent
// directories as needed. A missing execution ID or timestamp is filled
// in.
func (a *AuditStore) Record(ctx context.Context, execution *Execution) error {
	if execution.AgentName == "" {
		return errors.New("execution requires an agent name")
	}
	if execution.ExecutionID == "" {
		execution.ExecutionID = uuid.NewString()
	}
	if execution.Timestamp.IsZero() {
		execution.Timestamp = now()
	}

	path := a.auditPath(execution.AgentName)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating audit directory")
	}

	data, err := json.Marshal(execution)
	if err != nil {
		return errors.Wrap(err, "encoding execution record")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrap(err, "opening audit log")
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "appending execution record")
	}
	return nil
}

// QueryFilter narrows an audit query. Agent is required; a query without
// a target agent returns nothing. Filters apply in order: RequestID,
// StartTime, EndTime, Last (suffix), Limit (prefix).
type QueryFilter struct {
	Agent     string
	RequestID string
	StartTime *time.Time
	EndTime   *time.Time
	Last      int
	Limit     int
}

// Query loads and filters an agent's audit log. Malformed lines are
// skipped.
func (a *AuditStore) Query(ctx context.Context, filter QueryFilter) ([]Execution, error) {
	if filter.Agent == "" {
		return nil, nil
	}

	records, err := a.loadAll(ctx, filter.Agent)
	if err != nil {
		return nil, err
	}

	if filter.RequestID != "" {
		records = filterRecords(records, func(e Execution) bool {
			return e.RequestID == filter.RequestID
		})
	}
	if filter.StartTime != nil {
		records = filterRecords(records, func(e Execution) bool {
			return !e.Timestamp.Before(*filter.StartTime)
		})
	}
	if filter.EndTime != nil {
		records = filterRecords(records, func(e Execution) bool {
			return !e.Timestamp.After(*filter.EndTime)
		})
	}
	if filter.Last > 0 && len(records) > filter.Last {
		records = records[len(records)-filter.Last:]
	}
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

// Export serializes the full audit history of every agent, sorted by
// agent name, as an indented JSON array. Only the "json" format is
// supported.
func (a *AuditStore) Export(ctx context.Context, format string) ([]byte, error) {
	if strings.ToLower(format) != "json" {
		return nil, errors.Errorf("unsupported export format %q: only json is supported", format)
	}

	records := []Execution{}
	entries, err := os.ReadDir(a.baseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "reading audit root")
		}
		entries = nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		agentRecords, err := a.loadAll(ctx, name)
		if err != nil {
			return nil, err
		}
		records = append(records, agentRecords...)
	}

	return json.MarshalIndent(records, "", "  ")
}

func (a *AuditStore) loadAll(ctx context.Context, agentName string) ([]Execution, error) {
	f, err := os.Open(a.auditPath(agentName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "opening audit log for agent %q", agentName)
	}
	defer f.Close()

	var records []Execution
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record Execution
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			logger.G(ctx).WithField("agent", agentName).WithError(err).Debug("skipping malformed audit line")
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading audit log for agent %q", agentName)
	}
	return records, nil
}

func filterRecords(records []Execution, keep func(Execution) bool) []Execution {
	out := records[:0:0]
	for _, record := range records {
		if keep(record) {
			out = append(out, record)
		}
	}
	return out
}
