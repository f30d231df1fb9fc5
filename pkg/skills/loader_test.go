package skills

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saveTestSkill(t *testing.T, store *LocalStore, name, description, body string) {
	t.Helper()
	doc := "---\nname: " + name + "\ndescription: " + description + "\n---\n" + body
	_, err := store.Save(context.Background(), name, doc)
	require.NoError(t, err)
}

func TestLoadSkills(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	saveTestSkill(t, store, "skill-a", "First skill", "Do A.\n")
	saveTestSkill(t, store, "skill-b", "Second skill", "Do B.\n")

	loaded, err := store.LoadSkills(ctx, []string{"skill-a", "skill-b"})
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "skill-a", loaded[0].Name)
	assert.Equal(t, "skill-b", loaded[1].Name)
}

func TestLoadSkillsSkipsRemoteAndMissing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	saveTestSkill(t, store, "skill-a", "First skill", "Do A.\n")

	loaded, err := store.LoadSkills(ctx, []string{
		"github:owner/repo/skills/foo",
		"https://example.com/skill",
		"missing-skill",
		"skill-a",
	})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "skill-a", loaded[0].Name)
}

func TestLoadSkillsPropagatesInvalid(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	saveTestSkill(t, store, "skill-a", "First skill", "Do A.\n")

	// Corrupt the manifest after saving.
	manifest, err := store.ManifestPath("skill-a")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(manifest, []byte("no frontmatter at all\n"), 0644))

	_, err = store.LoadSkills(ctx, []string{"skill-a"})
	assert.ErrorIs(t, err, ErrInvalidSkill)
}

func TestFormatSkillsContext(t *testing.T) {
	loaded := []*Skill{
		{Name: "skill-a", Description: "First skill", Instructions: "Do A.\n"},
		{Name: "skill-b", Instructions: "Do B."},
	}

	out := FormatSkillsContext(loaded)
	assert.Contains(t, out, "## Skills")
	assert.Contains(t, out, "### skill-a")
	assert.Contains(t, out, "*First skill*")
	assert.Contains(t, out, "Do A.")
	assert.Contains(t, out, "### skill-b")

	assert.Empty(t, FormatSkillsContext(nil))
}

func TestBuildSystemPrompt(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	saveTestSkill(t, store, "skill-a", "First skill", "Do A.\n")

	prompt, err := store.BuildSystemPrompt(ctx, "You are a helper.", []string{"skill-a"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(prompt, "You are a helper.\n"))
	assert.Contains(t, prompt, "## Skills")
	assert.Contains(t, prompt, "### skill-a")
}

func TestBuildSystemPromptNoRefs(t *testing.T) {
	store := newTestStore(t)

	prompt, err := store.BuildSystemPrompt(context.Background(), "Base.", nil)
	require.NoError(t, err)
	assert.Equal(t, "Base.", prompt)
}

func TestBuildSystemPromptAllRefsUnresolvable(t *testing.T) {
	store := newTestStore(t)

	prompt, err := store.BuildSystemPrompt(context.Background(), "Base.", []string{"missing", "github:a/b/c"})
	require.NoError(t, err)
	assert.Equal(t, "Base.", prompt)
}

func TestEffectiveTools(t *testing.T) {
	available := []string{"bash", "bash_background", "grep", "file_read"}

	t.Run("no patterns returns everything", func(t *testing.T) {
		tools, err := EffectiveTools([]*Skill{{Name: "s"}}, available)
		require.NoError(t, err)
		assert.Equal(t, available, tools)
	})

	t.Run("exact names", func(t *testing.T) {
		loaded := []*Skill{{Name: "s", AllowedTools: []string{"grep", "file_read"}}}
		tools, err := EffectiveTools(loaded, available)
		require.NoError(t, err)
		assert.Equal(t, []string{"grep", "file_read"}, tools)
	})

	t.Run("glob patterns", func(t *testing.T) {
		loaded := []*Skill{{Name: "s", AllowedTools: []string{"bash*"}}}
		tools, err := EffectiveTools(loaded, available)
		require.NoError(t, err)
		assert.Equal(t, []string{"bash", "bash_background"}, tools)
	})

	t.Run("patterns union across skills", func(t *testing.T) {
		loaded := []*Skill{
			{Name: "a", AllowedTools: []string{"bash"}},
			{Name: "b", AllowedTools: []string{"grep"}},
		}
		tools, err := EffectiveTools(loaded, available)
		require.NoError(t, err)
		assert.Equal(t, []string{"bash", "grep"}, tools)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		loaded := []*Skill{{Name: "s", AllowedTools: []string{"[unclosed"}}}
		_, err := EffectiveTools(loaded, available)
		assert.ErrorIs(t, err, ErrInvalidSkill)
	})
}

func TestResolveScript(t *testing.T) {
	store := newTestStore(t)
	loaded := []*Skill{{Name: "deploy", Scripts: []string{"scripts/run.sh"}}}

	path := store.ResolveScript("scripts/run.sh", loaded)
	assert.Contains(t, path, "deploy")
	assert.Contains(t, path, "run.sh")

	assert.Empty(t, store.ResolveScript("scripts/other.sh", loaded))
}
