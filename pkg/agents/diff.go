package agents

import (
	"context"
	"fmt"

	"github.com/aymanbagabas/go-udiff"
)

// DiffVersions produces a unified diff of the instruction templates of
// two versions of the same agent. An empty diff means the instructions
// are identical, even if other fields differ.
func (s *LocalStore) DiffVersions(ctx context.Context, name, fromVersion, toVersion string) (string, error) {
	from, err := s.GetVersion(ctx, name, fromVersion)
	if err != nil {
		return "", err
	}
	to, err := s.GetVersion(ctx, name, toVersion)
	if err != nil {
		return "", err
	}

	fromLabel := fmt.Sprintf("%s@%s", name, from.Version)
	toLabel := fmt.Sprintf("%s@%s", name, to.Version)
	return udiff.Unified(fromLabel, toLabel, ensureTrailingNewline(from.Instructions), ensureTrailingNewline(to.Instructions)), nil
}

// Unified diffs over text missing a final newline render a "\ No newline"
// marker that distracts from instruction edits.
func ensureTrailingNewline(s string) string {
	if s == "" || s[len(s)-1] == '\n' {
		return s
	}
	return s + "\n"
}
