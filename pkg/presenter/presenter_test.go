package presenter

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithOptions(t *testing.T) {
	var output, errorOutput bytes.Buffer
	p := NewWithOptions(&output, &errorOutput, ColorNever)

	assert.Equal(t, &output, p.output)
	assert.Equal(t, &errorOutput, p.errorOutput)
	assert.Equal(t, ColorNever, p.colorMode)
	assert.False(t, p.quiet)
}

func TestDetectColorMode(t *testing.T) {
	tests := []struct {
		name     string
		noColor  string
		r9sColor string
		expected ColorMode
	}{
		{"NO_COLOR set", "1", "", ColorNever},
		{"R9S_COLOR always", "", "always", ColorAlways},
		{"R9S_COLOR force", "", "force", ColorAlways},
		{"R9S_COLOR never", "", "never", ColorNever},
		{"R9S_COLOR off", "", "off", ColorNever},
		{"R9S_COLOR auto", "", "auto", ColorAuto},
		{"default", "", "", ColorAuto},
		{"unknown value", "", "sometimes", ColorAuto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("NO_COLOR")
			os.Unsetenv("R9S_COLOR")
			if tt.noColor != "" {
				t.Setenv("NO_COLOR", tt.noColor)
			}
			if tt.r9sColor != "" {
				t.Setenv("R9S_COLOR", tt.r9sColor)
			}

			assert.Equal(t, tt.expected, detectColorMode())
		})
	}
}

func TestErrorOutput(t *testing.T) {
	var errorOutput bytes.Buffer
	p := NewWithOptions(nil, &errorOutput, ColorNever)

	p.Error(errors.New("boom"), "loading agent")
	assert.Contains(t, errorOutput.String(), "[ERROR] loading agent: boom")

	errorOutput.Reset()
	p.Error(errors.New("boom"), "")
	assert.Contains(t, errorOutput.String(), "[ERROR] boom")

	errorOutput.Reset()
	p.Error(nil, "ignored")
	assert.Empty(t, errorOutput.String())
}

func TestErrorShownInQuietMode(t *testing.T) {
	var errorOutput bytes.Buffer
	p := NewWithOptions(nil, &errorOutput, ColorNever)
	p.SetQuiet(true)

	p.Error(errors.New("boom"), "")
	assert.Contains(t, errorOutput.String(), "boom")
}

func TestQuietModeSuppressesOutput(t *testing.T) {
	var output bytes.Buffer
	p := NewWithOptions(&output, nil, ColorNever)
	p.SetQuiet(true)

	p.Success("done")
	p.Warning("careful")
	p.Info("hello")
	p.Section("Agents")
	p.Separator()
	p.Stats(&UsageStats{Requests: 1, InputTokens: 10, OutputTokens: 20})

	assert.Empty(t, output.String())
	assert.True(t, p.IsQuiet())
}

func TestMessages(t *testing.T) {
	var output bytes.Buffer
	p := NewWithOptions(&output, nil, ColorNever)

	p.Success("saved")
	p.Warning("skipping")
	p.Info("plain")

	got := output.String()
	assert.Contains(t, got, "✓ saved")
	assert.Contains(t, got, "⚠ skipping")
	assert.Contains(t, got, "plain\n")
}

func TestSection(t *testing.T) {
	var output bytes.Buffer
	p := NewWithOptions(&output, nil, ColorNever)

	p.Section("Skills")

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	assert.Equal(t, []string{"Skills", "------"}, lines)
}

func TestStats(t *testing.T) {
	var output bytes.Buffer
	p := NewWithOptions(&output, nil, ColorNever)

	p.Stats(&UsageStats{Requests: 3, InputTokens: 100, OutputTokens: 50})
	assert.Contains(t, output.String(), "Requests: 3")
	assert.Contains(t, output.String(), "Total: 150")

	output.Reset()
	p.Stats(nil)
	assert.Empty(t, output.String())
}

func TestPromptReadsResponse(t *testing.T) {
	var output bytes.Buffer
	p := NewWithOptions(&output, nil, ColorNever)
	p.input = strings.NewReader("yes\n")

	got := p.Prompt("Continue", "y", "N")
	assert.Equal(t, "yes", got)
	assert.Contains(t, output.String(), "Continue [y/N]: ")
}
