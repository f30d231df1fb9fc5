package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreview(t *testing.T) {
	meta, headings, err := Preview(validSkillDoc)
	require.NoError(t, err)

	assert.Equal(t, "code-review", meta["name"])
	require.Len(t, headings, 1)
	assert.Equal(t, 1, headings[0].Level)
	assert.Equal(t, "Code Review", headings[0].Text)
}

func TestPreviewWithoutFrontmatter(t *testing.T) {
	meta, headings, err := Preview("# Title\n\nIntro.\n\n## Usage\n\nDetails.\n")
	require.NoError(t, err)

	assert.Nil(t, meta)
	require.Len(t, headings, 2)
	assert.Equal(t, Heading{Level: 1, Text: "Title"}, headings[0])
	assert.Equal(t, Heading{Level: 2, Text: "Usage"}, headings[1])
}
