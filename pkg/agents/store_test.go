package agents

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) *LocalStore {
	t.Helper()
	opts = append([]Option{WithBaseDir(t.TempDir()), WithCreatedBy("tester")}, opts...)
	store, err := NewLocalStore(opts...)
	require.NoError(t, err)
	return store
}

func TestCreateInitialVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	agent, err := store.Create(ctx, "support", CreateRequest{
		Description:  "customer support persona",
		Instructions: "Hello {{company}}",
		Model:        "gpt-test",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(agent.ID, "agt_"))
	assert.Len(t, agent.ID, len("agt_")+16)
	assert.Equal(t, "support", agent.Name)
	assert.Equal(t, "1.0.0", agent.CurrentVersion)
	assert.False(t, agent.CreatedAt.IsZero())

	loaded, err := store.GetAgent(ctx, "support")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", loaded.CurrentVersion)

	version, err := store.GetVersion(ctx, "support", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, []string{"company"}, version.Variables)
	assert.Equal(t, StatusDraft, version.Status)
	assert.Equal(t, "r9s", version.Provider)
	assert.Equal(t, "tester", version.CreatedBy)
	assert.Empty(t, version.ParentVersion)
}

func TestCreateRejectsExistingAgent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "support", CreateRequest{})
	require.NoError(t, err)

	_, err = store.Create(ctx, "support", CreateRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAgentExists))
}

func TestCreateValidatesName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := store.Create(ctx, name, CreateRequest{})
		assert.Error(t, err, "name %q must be rejected", name)
	}
}

func TestRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	req := CreateRequest{
		Description:  "round trip",
		Instructions: "Summarize {{topic}} for {{audience}}.\n\nBe brief.",
		Model:        "claude-test",
		Provider:     "anthropic",
		Tools:        []map[string]any{{"name": "search", "max_results": int64(5), "safe": true}},
		Files:        []map[string]any{{"path": "docs/guide.md", "format": "markdown"}},
		Skills:       []string{"research", "summaries"},
		ModelParams:  map[string]any{"temperature": 0.3, "max_tokens": int64(1024)},
		CreatedBy:    "alice",
		ChangeReason: "bootstrap",
	}
	_, err := store.Create(ctx, "writer", req)
	require.NoError(t, err)

	v, err := store.GetVersion(ctx, "writer", "1.0.0")
	require.NoError(t, err)

	assert.Equal(t, req.Instructions, v.Instructions)
	assert.Equal(t, req.Model, v.Model)
	assert.Equal(t, req.Provider, v.Provider)
	assert.Equal(t, req.Tools, v.Tools)
	assert.Equal(t, req.Files, v.Files)
	assert.Equal(t, req.Skills, v.Skills)
	assert.Equal(t, req.ModelParams, v.ModelParams)
	assert.Equal(t, "alice", v.CreatedBy)
	assert.Equal(t, "bootstrap", v.ChangeReason)
	assert.Equal(t, []string{"topic", "audience"}, v.Variables)

	recomputed, err := ComputeContentHash(v)
	require.NoError(t, err)
	assert.Equal(t, v.ContentHash, recomputed)
}

func TestGetVersionLatestPicksNumericMax(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "support", CreateRequest{Instructions: "v1"})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err = store.Update(ctx, "support")
		require.NoError(t, err)
	}

	// 1.0.10 sorts before 1.0.9 lexicographically but is numerically newer
	latest, err := store.GetVersion(ctx, "support", "latest")
	require.NoError(t, err)
	assert.Equal(t, "1.0.10", latest.Version)
}

func TestGetVersionErrors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetVersion(ctx, "ghost", "latest")
	assert.True(t, errors.Is(err, ErrVersionNotFound))

	_, err = store.Create(ctx, "support", CreateRequest{})
	require.NoError(t, err)

	_, err = store.GetVersion(ctx, "support", "4.5.6")
	assert.True(t, errors.Is(err, ErrVersionNotFound))
}

func TestUpdateCarriesForwardUnsetFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "support", CreateRequest{
		Instructions: "Hello {{company}}",
		Model:        "gpt-test",
		Provider:     "openai",
		Skills:       []string{"billing"},
		ModelParams:  map[string]any{"temperature": 0.1},
	})
	require.NoError(t, err)

	updated, err := store.Update(ctx, "support", WithModel("gpt-next"))
	require.NoError(t, err)

	assert.Equal(t, "1.0.1", updated.Version)
	assert.Equal(t, "gpt-next", updated.Model)
	assert.Equal(t, "Hello {{company}}", updated.Instructions)
	assert.Equal(t, "openai", updated.Provider)
	assert.Equal(t, []string{"billing"}, updated.Skills)
	assert.Equal(t, map[string]any{"temperature": 0.1}, updated.ModelParams)
	assert.Equal(t, "1.0.0", updated.ParentVersion)
	assert.Equal(t, StatusDraft, updated.Status)
}

func TestUpdateMinorBumpMovesCurrentVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "support", CreateRequest{Instructions: "Hello {{company}}"})
	require.NoError(t, err)

	updated, err := store.Update(ctx, "support",
		WithInstructions("Updated"),
		WithBump(BumpMinor),
		WithChangeReason("copy refresh"),
	)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", updated.Version)
	assert.Equal(t, "copy refresh", updated.ChangeReason)

	agent, err := store.GetAgent(ctx, "support")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", agent.CurrentVersion)

	// the old version is still on disk, untouched
	original, err := store.GetVersion(ctx, "support", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "Hello {{company}}", original.Instructions)
}

func TestUpdateUnknownAgent(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Update(context.Background(), "ghost")
	assert.True(t, errors.Is(err, ErrAgentNotFound))
}

func TestUpdateRejectsUnknownBump(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "support", CreateRequest{})
	require.NoError(t, err)

	_, err = store.Update(ctx, "support", WithBump("hotfix"))
	assert.True(t, errors.Is(err, ErrInvalidVersion))
}

func TestSkillsChangeContentHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "agent-a", CreateRequest{
		Instructions: "identical",
		Model:        "gpt-test",
		Skills:       []string{"skill-a"},
	})
	require.NoError(t, err)
	_, err = store.Create(ctx, "agent-b", CreateRequest{
		Instructions: "identical",
		Model:        "gpt-test",
		Skills:       []string{"skill-b"},
	})
	require.NoError(t, err)

	a, err := store.GetVersion(ctx, "agent-a", "1.0.0")
	require.NoError(t, err)
	b, err := store.GetVersion(ctx, "agent-b", "1.0.0")
	require.NoError(t, err)
	assert.NotEqual(t, a.ContentHash, b.ContentHash)
}

func TestListAgentsSkipsUnreadableEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "alpha", CreateRequest{})
	require.NoError(t, err)
	_, err = store.Create(ctx, "beta", CreateRequest{})
	require.NoError(t, err)

	// a directory without a manifest must not abort the listing
	require.NoError(t, os.MkdirAll(filepath.Join(store.BaseDir(), "broken"), 0755))

	agents, err := store.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	names := []string{agents[0].Name, agents[1].Name}
	assert.ElementsMatch(t, []string{"alpha", "beta"}, names)
}

func TestListVersionsSortedAndSkipsCorrupt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "support", CreateRequest{Instructions: "v1"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = store.Update(ctx, "support")
		require.NoError(t, err)
	}

	// corrupt one version file; the listing keeps going without it
	corruptPath := filepath.Join(store.BaseDir(), "support", "versions", "1.0.2.toml")
	require.NoError(t, os.WriteFile(corruptPath, []byte("not toml ["), 0644))

	versions, err := store.ListVersions(ctx, "support")
	require.NoError(t, err)

	var got []string
	for _, v := range versions {
		got = append(got, v.Version)
	}
	assert.Equal(t, []string{"1.0.0", "1.0.1", "1.0.3"}, got)
}

func TestListVersionsUnknownAgentIsEmpty(t *testing.T) {
	store := newTestStore(t)

	versions, err := store.ListVersions(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestHashMismatchIsAHardError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "support", CreateRequest{Instructions: "original"})
	require.NoError(t, err)

	path := filepath.Join(store.BaseDir(), "support", "versions", "1.0.0.toml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), "original", "tampered!", 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0644))

	_, err = store.GetVersion(ctx, "support", "1.0.0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHashMismatch))
}

func TestApproveAndDeprecateRewriteOnlyVersionFile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "support", CreateRequest{Instructions: "Hello"})
	require.NoError(t, err)

	manifestBefore, err := os.ReadFile(filepath.Join(store.BaseDir(), "support", "agent.toml"))
	require.NoError(t, err)

	approved, err := store.ApproveVersion(ctx, "support", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)

	reloaded, err := store.GetVersion(ctx, "support", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, reloaded.Status)

	deprecated, err := store.DeprecateVersion(ctx, "support", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, StatusDeprecated, deprecated.Status)

	manifestAfter, err := os.ReadFile(filepath.Join(store.BaseDir(), "support", "agent.toml"))
	require.NoError(t, err)
	assert.Equal(t, string(manifestBefore), string(manifestAfter))
}

func TestRollback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "support", CreateRequest{Instructions: "v1"})
	require.NoError(t, err)
	_, err = store.Update(ctx, "support", WithInstructions("v2"), WithBump(BumpMinor))
	require.NoError(t, err)

	agent, err := store.Rollback(ctx, "support", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", agent.CurrentVersion)

	// rollback never creates a version
	versions, err := store.ListVersions(ctx, "support")
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	_, err = store.Rollback(ctx, "support", "9.9.9")
	assert.True(t, errors.Is(err, ErrVersionNotFound))
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "support", CreateRequest{})
	require.NoError(t, err)
	_, err = store.Update(ctx, "support")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "support"))
	_, err = os.Stat(filepath.Join(store.BaseDir(), "support"))
	assert.True(t, os.IsNotExist(err))

	err = store.Delete(ctx, "support")
	assert.True(t, errors.Is(err, ErrAgentNotFound))
}

func TestDeriveVariablesPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("default derive overrides explicit list", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.Create(ctx, "support", CreateRequest{
			Instructions: "Hello {{company}}",
			Variables:    []string{"ignored"},
		})
		require.NoError(t, err)

		v, err := store.GetVersion(ctx, "support", "1.0.0")
		require.NoError(t, err)
		assert.Equal(t, []string{"company"}, v.Variables)
	})

	t.Run("disabled derive preserves explicit list", func(t *testing.T) {
		store := newTestStore(t, WithDeriveVariables(false))
		_, err := store.Create(ctx, "support", CreateRequest{
			Instructions: "Hello {{company}}",
			Variables:    []string{"company", "region"},
		})
		require.NoError(t, err)

		v, err := store.GetVersion(ctx, "support", "1.0.0")
		require.NoError(t, err)
		assert.Equal(t, []string{"company", "region"}, v.Variables)
	})

	t.Run("disabled derive leaves variables empty when unset", func(t *testing.T) {
		store := newTestStore(t, WithDeriveVariables(false))
		_, err := store.Create(ctx, "support", CreateRequest{Instructions: "Hello {{company}}"})
		require.NoError(t, err)

		v, err := store.GetVersion(ctx, "support", "1.0.0")
		require.NoError(t, err)
		assert.Empty(t, v.Variables)
	})
}

func TestDefaultBaseDirEnvOverride(t *testing.T) {
	t.Setenv("R9S_AGENTS_DIR", "/tmp/custom-agents")
	assert.Equal(t, "/tmp/custom-agents", DefaultBaseDir())
}

func TestTimestampsAreUTCSecondPrecision(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	agent, err := store.Create(ctx, "support", CreateRequest{})
	require.NoError(t, err)
	assert.Zero(t, agent.CreatedAt.Nanosecond())

	loaded, err := store.GetAgent(ctx, "support")
	require.NoError(t, err)
	assert.True(t, agent.CreatedAt.Equal(loaded.CreatedAt))
	assert.True(t, agent.UpdatedAt.Equal(loaded.UpdatedAt))
}
