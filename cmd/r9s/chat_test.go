package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"user=Ana", "region=eu-west-1", "greeting=a=b"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"user":     "Ana",
		"region":   "eu-west-1",
		"greeting": "a=b",
	}, vars)
}

func TestParseVarsInvalid(t *testing.T) {
	_, err := parseVars([]string{"user"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected key=value")

	_, err = parseVars([]string{"=Ana"})
	require.Error(t, err)
}

func TestParseVarsEmpty(t *testing.T) {
	vars, err := parseVars(nil)
	require.NoError(t, err)
	assert.Nil(t, vars)
}
