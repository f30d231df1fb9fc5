package agents

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		major   int
		minor   int
		patch   int
		wantErr bool
	}{
		{name: "simple", input: "1.2.3", major: 1, minor: 2, patch: 3},
		{name: "zeros", input: "0.0.0"},
		{name: "large components", input: "10.200.3000", major: 10, minor: 200, patch: 3000},
		{name: "surrounding whitespace", input: "  2.0.1\n", major: 2, minor: 0, patch: 1},
		{name: "empty", input: "", wantErr: true},
		{name: "two components", input: "1.2", wantErr: true},
		{name: "four components", input: "1.2.3.4", wantErr: true},
		{name: "prerelease", input: "1.2.3-rc1", wantErr: true},
		{name: "build metadata", input: "1.2.3+build5", wantErr: true},
		{name: "v prefix", input: "v1.2.3", wantErr: true},
		{name: "negative", input: "-1.2.3", wantErr: true},
		{name: "inner spaces", input: "1. 2.3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			major, minor, patch, err := ParseVersion(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidVersion))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.major, major)
			assert.Equal(t, tt.minor, minor)
			assert.Equal(t, tt.patch, patch)
		})
	}
}

func TestIncrementVersion(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		bump     string
		expected string
	}{
		{name: "patch", version: "1.2.3", bump: BumpPatch, expected: "1.2.4"},
		{name: "minor resets patch", version: "1.2.3", bump: BumpMinor, expected: "1.3.0"},
		{name: "major resets minor and patch", version: "1.2.3", bump: BumpMajor, expected: "2.0.0"},
		{name: "patch from zero", version: "0.0.0", bump: BumpPatch, expected: "0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IncrementVersion(tt.version, tt.bump)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestIncrementVersionRejectsUnknownBump(t *testing.T) {
	_, err := IncrementVersion("1.0.0", "hotfix")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidVersion))
}

func TestIncrementVersionRejectsMalformedVersion(t *testing.T) {
	_, err := IncrementVersion("1.0", BumpPatch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidVersion))
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.0.1", "1.0.0", 1},
		{"1.9.0", "1.10.0", -1},
		{"2.0.0", "1.99.99", 1},
		{"0.1.0", "0.0.99", 1},
	}

	for _, tt := range tests {
		got, err := CompareVersions(tt.a, tt.b)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got, "compare(%s, %s)", tt.a, tt.b)
	}
}

func TestVersionMonotonicity(t *testing.T) {
	for _, bump := range []string{BumpPatch, BumpMinor, BumpMajor} {
		next, err := IncrementVersion("3.7.11", bump)
		require.NoError(t, err)

		cmp, err := CompareVersions("3.7.11", next)
		require.NoError(t, err)
		assert.Equal(t, -1, cmp, "bump %s must strictly increase", bump)
	}
}

func TestRepeatedPatchBumps(t *testing.T) {
	version := "2.5.0"
	for i := 1; i <= 5; i++ {
		next, err := IncrementVersion(version, BumpPatch)
		require.NoError(t, err)

		major, minor, patch, err := ParseVersion(next)
		require.NoError(t, err)
		assert.Equal(t, 2, major)
		assert.Equal(t, 5, minor)
		assert.Equal(t, i, patch)
		version = next
	}
}
