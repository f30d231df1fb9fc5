// Package agents implements the local versioned agent store: named agent
// configurations with an append-only, content-addressed version history,
// semantic version bookkeeping, instruction template rendering, and an
// append-only execution audit log.
//
// On disk each agent occupies one directory under the store root:
//
//	<root>/<name>/agent.toml           manifest
//	<root>/<name>/versions/1.0.0.toml  one file per version
//	<root>/<name>/audit.jsonl          execution records
package agents

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Version lifecycle states.
const (
	StatusDraft      = "draft"
	StatusApproved   = "approved"
	StatusDeprecated = "deprecated"
)

// Agent is a named, versioned configuration for an assistant persona.
// CurrentVersion is a movable pointer into the agent's version history.
type Agent struct {
	ID             string
	Name           string
	Description    string
	CurrentVersion string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AgentVersion is an immutable snapshot of an agent's behavior. Only
// Status may change after creation, through explicit approve/deprecate
// transitions. ContentHash fingerprints the semantic fields and is
// verified on every load.
type AgentVersion struct {
	Version       string
	Instructions  string
	Model         string
	Provider      string
	Tools         []map[string]any
	Files         []map[string]any
	Skills        []string
	Variables     []string
	ModelParams   map[string]any
	CreatedAt     time.Time
	CreatedBy     string
	ChangeReason  string
	Status        string
	ParentVersion string
	ContentHash   string
}

func newAgentID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return "agt_" + hex.EncodeToString(buf)
}

// now returns the store's canonical timestamp: UTC at second precision.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
