package skills

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"

	"github.com/r9s-dev/r9s/pkg/logger"
)

// LoadSkills resolves skill references against the store. Remote
// references (anything containing a colon) cannot be loaded locally and
// are skipped with a warning, as are names with no skill behind them.
// A skill that exists but fails validation aborts the whole load.
func (s *LocalStore) LoadSkills(ctx context.Context, refs []string) ([]*Skill, error) {
	log := logger.G(ctx)

	var loaded []*Skill
	for _, ref := range refs {
		if strings.Contains(ref, ":") {
			log.WithField("ref", ref).Warn("skipping remote skill reference")
			continue
		}
		skill, err := s.Load(ctx, ref, nil)
		if err != nil {
			if errors.Is(err, ErrSkillNotFound) {
				log.WithField("skill", ref).Warn("skill not found")
				continue
			}
			return nil, err
		}
		loaded = append(loaded, skill)
	}
	return loaded, nil
}

// FormatSkillsContext renders loaded skills as a markdown block for
// appending to a system prompt. No skills renders to an empty string.
func FormatSkillsContext(loaded []*Skill) string {
	if len(loaded) == 0 {
		return ""
	}

	lines := []string{
		"\n## Skills\n",
		"The following skills are available to guide your responses:\n",
	}
	for _, skill := range loaded {
		lines = append(lines, fmt.Sprintf("### %s\n", skill.Name))
		if skill.Description != "" {
			lines = append(lines, fmt.Sprintf("*%s*\n", skill.Description))
		}
		lines = append(lines, strings.TrimSpace(skill.Instructions), "\n")
	}
	return strings.Join(lines, "\n")
}

// BuildSystemPrompt appends the rendered context of the referenced
// skills to an agent's base instructions.
func (s *LocalStore) BuildSystemPrompt(ctx context.Context, instructions string, refs []string) (string, error) {
	if len(refs) == 0 {
		return instructions, nil
	}

	loaded, err := s.LoadSkills(ctx, refs)
	if err != nil {
		return "", err
	}
	skillsContext := FormatSkillsContext(loaded)
	if skillsContext == "" {
		return instructions, nil
	}
	return instructions + "\n" + skillsContext, nil
}

// ResolveScript returns the absolute path of a script owned by one of
// the loaded skills, or "" when no skill carries it.
func (s *LocalStore) ResolveScript(scriptPath string, loaded []*Skill) string {
	for _, skill := range loaded {
		for _, script := range skill.Scripts {
			if script == scriptPath {
				return filepath.Join(s.baseDir, skill.Name, filepath.FromSlash(script))
			}
		}
	}
	return ""
}

// EffectiveTools filters available tool names through the allowed-tools
// patterns of every loaded skill. Patterns use glob syntax ("bash_*").
// Skills without an allowlist impose no restriction; with no patterns
// at all the full tool list comes back unchanged.
func EffectiveTools(loaded []*Skill, available []string) ([]string, error) {
	var patterns []string
	for _, skill := range loaded {
		patterns = append(patterns, skill.AllowedTools...)
	}
	if len(patterns) == 0 {
		return available, nil
	}

	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidSkill, "invalid allowed-tools pattern %q: %v", pattern, err)
		}
		globs = append(globs, g)
	}

	var tools []string
	for _, tool := range available {
		for _, g := range globs {
			if g.Match(tool) {
				tools = append(tools, tool)
				break
			}
		}
	}
	return tools, nil
}
