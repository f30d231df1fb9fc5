package agents

import "github.com/pkg/errors"

// Sentinel errors for store operations. Callers match them with
// errors.Is; store methods wrap them with entity context.
var (
	ErrAgentNotFound   = errors.New("agent not found")
	ErrAgentExists     = errors.New("agent already exists")
	ErrVersionNotFound = errors.New("version not found")
	ErrInvalidVersion  = errors.New("invalid version")
	ErrHashMismatch    = errors.New("content hash mismatch")
)
