// Package skills manages reusable instruction fragments stored as
// directories under a common root. Each skill is a SKILL.md manifest
// (YAML frontmatter plus a markdown body) optionally accompanied by
// scripts/, references/, and assets/ subdirectories:
//
//	<baseDir>/<name>/SKILL.md
//	<baseDir>/<name>/scripts/**      (gated by ScriptPolicy)
//	<baseDir>/<name>/references/**
//	<baseDir>/<name>/assets/**
//
// Anything under a skill directory must resolve inside it; symlinks
// pointing elsewhere are rejected when assets are enumerated.
package skills

const manifestFileName = "SKILL.md"

// SourceLocal marks skills loaded from the local store.
const SourceLocal = "local"

// Metadata is the parsed YAML frontmatter of a SKILL.md manifest.
type Metadata struct {
	Name          string
	Description   string
	License       string
	Compatibility string
	Metadata      map[string]any
	AllowedTools  []string
}

// Skill is a fully loaded skill. Scripts, References, and Assets are
// enumerated fresh from disk on every load; they are derived state,
// never persisted.
type Skill struct {
	Name          string
	Description   string
	Instructions  string
	Source        string
	SourceRef     string
	License       string
	Compatibility string
	Metadata      map[string]any
	AllowedTools  []string
	Scripts       []string
	References    []string
	Assets        []string
}

// ScriptPolicy gates whether a skill's scripts/ directory may be loaded.
// The zero value fails closed: skills carrying scripts are inert until
// the caller opts in.
type ScriptPolicy struct {
	AllowScripts bool
}
