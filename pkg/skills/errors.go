package skills

import "github.com/pkg/errors"

// Sentinel errors for skill operations. Callers match them with
// errors.Is.
var (
	ErrSkillNotFound = errors.New("skill not found")
	ErrInvalidSkill  = errors.New("invalid skill")
	ErrSecurity      = errors.New("security violation")
)
