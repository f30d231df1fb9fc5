package agents

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordExecutions(t *testing.T, store *AuditStore, agent string, count int) []Execution {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)

	var records []Execution
	for i := 0; i < count; i++ {
		execution := &Execution{
			AgentName:    agent,
			AgentVersion: "1.0.0",
			ContentHash:  "sha256:0123456789abcdef",
			RequestID:    "req-" + string(rune('a'+i)),
			Model:        "gpt-test",
			Provider:     "r9s",
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			InputTokens:  100 + i,
			OutputTokens: 10 * i,
			SessionID:    "session-1",
		}
		require.NoError(t, store.Record(ctx, execution))
		records = append(records, *execution)
	}
	return records
}

func TestRecordAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	store := NewAuditStore(dir)

	recordExecutions(t, store, "support", 3)

	data, err := os.ReadFile(filepath.Join(dir, "support", auditFileName))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		assert.Equal(t, "support", record["agent_name"])
		assert.NotEmpty(t, record["execution_id"])
	}
}

func TestRecordFillsDefaults(t *testing.T) {
	store := NewAuditStore(t.TempDir())
	execution := &Execution{AgentName: "support"}

	require.NoError(t, store.Record(context.Background(), execution))
	assert.NotEmpty(t, execution.ExecutionID)
	assert.False(t, execution.Timestamp.IsZero())
}

func TestRecordRequiresAgentName(t *testing.T) {
	store := NewAuditStore(t.TempDir())
	assert.Error(t, store.Record(context.Background(), &Execution{}))
}

func TestQueryWithoutAgentReturnsNothing(t *testing.T) {
	store := NewAuditStore(t.TempDir())
	recordExecutions(t, store, "support", 2)

	records, err := store.Query(context.Background(), QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestQueryFilters(t *testing.T) {
	store := NewAuditStore(t.TempDir())
	all := recordExecutions(t, store, "support", 5)
	ctx := context.Background()

	t.Run("by request id", func(t *testing.T) {
		records, err := store.Query(ctx, QueryFilter{Agent: "support", RequestID: all[2].RequestID})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, all[2].ExecutionID, records[0].ExecutionID)
	})

	t.Run("by time range", func(t *testing.T) {
		start := all[1].Timestamp
		end := all[3].Timestamp
		records, err := store.Query(ctx, QueryFilter{Agent: "support", StartTime: &start, EndTime: &end})
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, all[1].ExecutionID, records[0].ExecutionID)
		assert.Equal(t, all[3].ExecutionID, records[2].ExecutionID)
	})

	t.Run("last takes the suffix", func(t *testing.T) {
		records, err := store.Query(ctx, QueryFilter{Agent: "support", Last: 2})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, all[3].ExecutionID, records[0].ExecutionID)
		assert.Equal(t, all[4].ExecutionID, records[1].ExecutionID)
	})

	t.Run("limit takes the prefix", func(t *testing.T) {
		records, err := store.Query(ctx, QueryFilter{Agent: "support", Limit: 2})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, all[0].ExecutionID, records[0].ExecutionID)
	})

	t.Run("last then limit", func(t *testing.T) {
		records, err := store.Query(ctx, QueryFilter{Agent: "support", Last: 3, Limit: 1})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, all[2].ExecutionID, records[0].ExecutionID)
	})

	t.Run("unknown agent", func(t *testing.T) {
		records, err := store.Query(ctx, QueryFilter{Agent: "ghost"})
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestQuerySkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	store := NewAuditStore(dir)
	recordExecutions(t, store, "support", 2)

	path := filepath.Join(dir, "support", auditFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{broken json\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	records, err := store.Query(context.Background(), QueryFilter{Agent: "support"})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	store := NewAuditStore(dir)
	recordExecutions(t, store, "zeta", 1)
	recordExecutions(t, store, "alpha", 2)

	data, err := store.Export(context.Background(), "json")
	require.NoError(t, err)

	var records []Execution
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 3)
	// sorted by agent name, then file order
	assert.Equal(t, "alpha", records[0].AgentName)
	assert.Equal(t, "alpha", records[1].AgentName)
	assert.Equal(t, "zeta", records[2].AgentName)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	store := NewAuditStore(t.TempDir())

	_, err := store.Export(context.Background(), "csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only json")
}

func TestExportEmptyStore(t *testing.T) {
	store := NewAuditStore(filepath.Join(t.TempDir(), "missing"))

	data, err := store.Export(context.Background(), "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}
