package agents

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
)

// ContentHashPrefix marks the algorithm used for version fingerprints.
const ContentHashPrefix = "sha256:"

// ComputeContentHash fingerprints the semantic fields of a version:
// instructions, model, provider, tools, files, skills, variables, and
// model_params. The payload is serialized as canonical JSON (keys sorted
// at every level, UTF-8 preserved, no HTML escaping), hashed with
// SHA-256, and truncated to 16 hex characters. Timestamps, authorship,
// and status are deliberately excluded so that metadata edits never
// change the fingerprint.
func ComputeContentHash(v *AgentVersion) (string, error) {
	payload := map[string]any{
		"instructions": v.Instructions,
		"model":        v.Model,
		"provider":     v.Provider,
		"tools":        emptyIfNilMaps(v.Tools),
		"files":        emptyIfNilMaps(v.Files),
		"skills":       emptyIfNilStrings(v.Skills),
		"variables":    emptyIfNilStrings(v.Variables),
		"model_params": emptyIfNilParams(v.ModelParams),
	}

	data, err := canonicalJSON(payload)
	if err != nil {
		return "", errors.Wrap(err, "serializing version payload")
	}

	sum := sha256.Sum256(data)
	return ContentHashPrefix + hex.EncodeToString(sum[:])[:16], nil
}

// canonicalJSON marshals v with sorted map keys and without HTML
// escaping, so multi-byte text hashes over its literal UTF-8 bytes.
func canonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// A nil slice and an empty slice are the same absent value; both must
// hash identically regardless of how the struct was built or loaded.
func emptyIfNilMaps(in []map[string]any) []map[string]any {
	if in == nil {
		return []map[string]any{}
	}
	return in
}

func emptyIfNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func emptyIfNilParams(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return in
}
