package agents

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// agentManifest is the on-disk shape of agent.toml.
type agentManifest struct {
	ID             string    `toml:"id"`
	Name           string    `toml:"name"`
	Description    string    `toml:"description"`
	CurrentVersion string    `toml:"current_version"`
	CreatedAt      time.Time `toml:"created_at"`
	UpdatedAt      time.Time `toml:"updated_at"`
}

// versionDoc is the on-disk shape of versions/<semver>.toml. Scalar
// fields precede the params/instructions tables and the tools/files
// array tables so the document stays a valid flat TOML layout.
type versionDoc struct {
	Version       string           `toml:"version"`
	ContentHash   string           `toml:"content_hash"`
	ParentVersion string           `toml:"parent_version,omitempty"`
	CreatedAt     time.Time        `toml:"created_at"`
	CreatedBy     string           `toml:"created_by"`
	ChangeReason  string           `toml:"change_reason"`
	Status        string           `toml:"status"`
	Model         string           `toml:"model"`
	Provider      string           `toml:"provider"`
	Skills        []string         `toml:"skills,omitempty"`
	Params        map[string]any   `toml:"params,omitempty"`
	Instructions  instructionsDoc  `toml:"instructions"`
	Tools         []map[string]any `toml:"tools,omitempty"`
	Files         []map[string]any `toml:"files,omitempty"`
}

type instructionsDoc struct {
	Value     string   `toml:"value,multiline"`
	Variables []string `toml:"variables,omitempty"`
}

func manifestFromAgent(agent *Agent) agentManifest {
	return agentManifest{
		ID:             agent.ID,
		Name:           agent.Name,
		Description:    agent.Description,
		CurrentVersion: agent.CurrentVersion,
		CreatedAt:      agent.CreatedAt.UTC().Truncate(time.Second),
		UpdatedAt:      agent.UpdatedAt.UTC().Truncate(time.Second),
	}
}

func (m agentManifest) toAgent() *Agent {
	return &Agent{
		ID:             m.ID,
		Name:           m.Name,
		Description:    m.Description,
		CurrentVersion: m.CurrentVersion,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

func docFromVersion(v *AgentVersion) versionDoc {
	return versionDoc{
		Version:       v.Version,
		ContentHash:   v.ContentHash,
		ParentVersion: v.ParentVersion,
		CreatedAt:     v.CreatedAt.UTC().Truncate(time.Second),
		CreatedBy:     v.CreatedBy,
		ChangeReason:  v.ChangeReason,
		Status:        v.Status,
		Model:         v.Model,
		Provider:      v.Provider,
		Skills:        v.Skills,
		Params:        v.ModelParams,
		Instructions: instructionsDoc{
			Value:     v.Instructions,
			Variables: v.Variables,
		},
		Tools: v.Tools,
		Files: v.Files,
	}
}

func (d versionDoc) toVersion() *AgentVersion {
	return &AgentVersion{
		Version:       d.Version,
		Instructions:  d.Instructions.Value,
		Model:         d.Model,
		Provider:      d.Provider,
		Tools:         d.Tools,
		Files:         d.Files,
		Skills:        d.Skills,
		Variables:     d.Instructions.Variables,
		ModelParams:   d.Params,
		CreatedAt:     d.CreatedAt.UTC(),
		CreatedBy:     d.CreatedBy,
		ChangeReason:  d.ChangeReason,
		Status:        d.Status,
		ParentVersion: d.ParentVersion,
		ContentHash:   d.ContentHash,
	}
}

// writeTOML marshals doc and writes it through a temp file in the target
// directory followed by a rename, keeping single-file writes atomic.
func writeTOML(path string, doc any) error {
	data, err := toml.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "marshaling %s", filepath.Base(path))
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", tempPath)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return errors.Wrapf(err, "renaming %s into place", tempPath)
	}
	return nil
}

func readTOML(path string, doc any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := toml.Unmarshal(data, doc); err != nil {
		return errors.Wrapf(err, "parsing %s", filepath.Base(path))
	}
	return nil
}
