package skills

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ParseDocument splits a SKILL.md document into frontmatter metadata
// and the markdown body. The document must open with a "---" line and
// close the frontmatter with a second one.
func ParseDocument(content string) (*Metadata, string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, "", errors.Wrap(ErrInvalidSkill, "SKILL.md is empty")
	}

	yamlText, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, "", err
	}

	var raw any
	if yamlText != "" {
		if err := yaml.Unmarshal([]byte(yamlText), &raw); err != nil {
			return nil, "", errors.Wrapf(ErrInvalidSkill, "invalid YAML frontmatter: %v", err)
		}
	}

	data := map[string]any{}
	if raw != nil {
		mapping, ok := raw.(map[string]any)
		if !ok {
			return nil, "", errors.Wrap(ErrInvalidSkill, "YAML frontmatter must be a mapping")
		}
		data = mapping
	}

	meta, err := metadataFromMap(data)
	if err != nil {
		return nil, "", err
	}
	return meta, body, nil
}

// ParseFile reads and parses a SKILL.md manifest from disk.
func ParseFile(path string) (*Metadata, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, "", errors.Wrapf(ErrInvalidSkill, "failed to read %s: %v", path, err)
	}
	return ParseDocument(string(content))
}

func splitFrontmatter(content string) (string, string, error) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", "", errors.Wrap(ErrInvalidSkill, "missing YAML frontmatter")
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return "", "", errors.Wrap(ErrInvalidSkill, "unterminated YAML frontmatter")
	}

	yamlText := strings.TrimSpace(strings.Join(lines[1:end], "\n"))
	body := strings.TrimLeft(strings.Join(lines[end+1:], "\n"), "\n")
	return yamlText, body, nil
}

func metadataFromMap(data map[string]any) (*Metadata, error) {
	name := strings.TrimSpace(stringValue(data["name"]))
	description := strings.TrimSpace(stringValue(data["description"]))
	if name == "" {
		return nil, errors.Wrap(ErrInvalidSkill, "skill name is required")
	}
	if description == "" {
		return nil, errors.Wrap(ErrInvalidSkill, "skill description is required")
	}

	meta := &Metadata{
		Name:          name,
		Description:   description,
		License:       stringValue(data["license"]),
		Compatibility: stringValue(data["compatibility"]),
	}

	if raw := data["metadata"]; raw != nil {
		mapping, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.Wrap(ErrInvalidSkill, "metadata must be a mapping")
		}
		meta.Metadata = mapping
	}

	// allowed_tools is an accepted alias for allowed-tools.
	allowedRaw := data["allowed-tools"]
	if allowedRaw == nil {
		allowedRaw = data["allowed_tools"]
	}
	allowed, err := parseAllowedTools(allowedRaw)
	if err != nil {
		return nil, err
	}
	meta.AllowedTools = allowed

	return meta, nil
}

// parseAllowedTools accepts either a whitespace-separated string or a
// list of strings.
func parseAllowedTools(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.Fields(v), nil
	case []any:
		var tools []string
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errors.Wrap(ErrInvalidSkill, "allowed-tools must contain strings")
			}
			if cleaned := strings.TrimSpace(s); cleaned != "" {
				tools = append(tools, cleaned)
			}
		}
		return tools, nil
	default:
		return nil, errors.Wrap(ErrInvalidSkill, "allowed-tools must be a string or list")
	}
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", s)
	}
}
