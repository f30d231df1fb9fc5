package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSkillDoc = `---
name: code-review
description: Reviews code for common issues
license: MIT
compatibility: ">=1.0"
metadata:
  author: platform-team
allowed-tools:
  - bash
  - grep
---

# Code Review

Look for unchecked errors first.
`

func TestParseDocument(t *testing.T) {
	meta, body, err := ParseDocument(validSkillDoc)
	require.NoError(t, err)

	assert.Equal(t, "code-review", meta.Name)
	assert.Equal(t, "Reviews code for common issues", meta.Description)
	assert.Equal(t, "MIT", meta.License)
	assert.Equal(t, ">=1.0", meta.Compatibility)
	assert.Equal(t, map[string]any{"author": "platform-team"}, meta.Metadata)
	assert.Equal(t, []string{"bash", "grep"}, meta.AllowedTools)
	assert.Equal(t, "# Code Review\n\nLook for unchecked errors first.\n", body)
}

func TestParseDocumentMissingFrontmatter(t *testing.T) {
	_, _, err := ParseDocument("# Just markdown\n\nNo frontmatter here.\n")
	require.ErrorIs(t, err, ErrInvalidSkill)
	assert.Contains(t, err.Error(), "missing YAML frontmatter")
}

func TestParseDocumentUnterminatedFrontmatter(t *testing.T) {
	_, _, err := ParseDocument("---\nname: x\ndescription: y\n")
	require.ErrorIs(t, err, ErrInvalidSkill)
	assert.Contains(t, err.Error(), "unterminated YAML frontmatter")
}

func TestParseDocumentEmpty(t *testing.T) {
	_, _, err := ParseDocument("   \n\t\n")
	assert.ErrorIs(t, err, ErrInvalidSkill)
}

func TestParseDocumentBadYAML(t *testing.T) {
	_, _, err := ParseDocument("---\nname: [unclosed\n---\nbody\n")
	require.ErrorIs(t, err, ErrInvalidSkill)
	assert.Contains(t, err.Error(), "invalid YAML frontmatter")
}

func TestParseDocumentNonMappingFrontmatter(t *testing.T) {
	_, _, err := ParseDocument("---\n- a\n- b\n---\nbody\n")
	require.ErrorIs(t, err, ErrInvalidSkill)
	assert.Contains(t, err.Error(), "must be a mapping")
}

func TestParseDocumentRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "missing name",
			doc:     "---\ndescription: something\n---\nbody",
			wantErr: "skill name is required",
		},
		{
			name:    "missing description",
			doc:     "---\nname: something\n---\nbody",
			wantErr: "skill description is required",
		},
		{
			name:    "whitespace name",
			doc:     "---\nname: \"   \"\ndescription: something\n---\nbody",
			wantErr: "skill name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseDocument(tt.doc)
			require.ErrorIs(t, err, ErrInvalidSkill)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseDocumentAllowedToolsForms(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "whitespace separated string",
			doc:  "---\nname: s\ndescription: d\nallowed-tools: \"bash grep  sed\"\n---\n",
			want: []string{"bash", "grep", "sed"},
		},
		{
			name: "list of strings",
			doc:  "---\nname: s\ndescription: d\nallowed-tools:\n  - bash\n  - ' grep '\n  - ''\n---\n",
			want: []string{"bash", "grep"},
		},
		{
			name: "underscore alias",
			doc:  "---\nname: s\ndescription: d\nallowed_tools: bash\n---\n",
			want: []string{"bash"},
		},
		{
			name: "absent",
			doc:  "---\nname: s\ndescription: d\n---\n",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, _, err := ParseDocument(tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, meta.AllowedTools)
		})
	}
}

func TestParseDocumentAllowedToolsRejectsBadTypes(t *testing.T) {
	_, _, err := ParseDocument("---\nname: s\ndescription: d\nallowed-tools: 42\n---\n")
	require.ErrorIs(t, err, ErrInvalidSkill)
	assert.Contains(t, err.Error(), "string or list")

	_, _, err = ParseDocument("---\nname: s\ndescription: d\nallowed-tools:\n  - bash\n  - 42\n---\n")
	require.ErrorIs(t, err, ErrInvalidSkill)
	assert.Contains(t, err.Error(), "must contain strings")
}

func TestParseDocumentMetadataMustBeMapping(t *testing.T) {
	_, _, err := ParseDocument("---\nname: s\ndescription: d\nmetadata: not-a-map\n---\n")
	require.ErrorIs(t, err, ErrInvalidSkill)
	assert.Contains(t, err.Error(), "metadata must be a mapping")
}

func TestParseDocumentBodyLeadingNewlinesStripped(t *testing.T) {
	_, body, err := ParseDocument("---\nname: s\ndescription: d\n---\n\n\n\nBody starts here.\n")
	require.NoError(t, err)
	assert.Equal(t, "Body starts here.\n", body)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SKILL.md")
	require.NoError(t, os.WriteFile(path, []byte(validSkillDoc), 0644))

	meta, body, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "code-review", meta.Name)
	assert.NotEmpty(t, body)

	_, _, err = ParseFile(filepath.Join(dir, "missing.md"))
	assert.ErrorIs(t, err, ErrInvalidSkill)
}
