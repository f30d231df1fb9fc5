package skills

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const maxDescriptionChars = 1024

var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// ValidateName checks that a skill name is safe to use as a directory
// name and returns the trimmed form.
func ValidateName(name string) (string, error) {
	cleaned := strings.TrimSpace(name)
	if cleaned == "" {
		return "", errors.Wrap(ErrInvalidSkill, "skill name cannot be empty")
	}
	if strings.ContainsAny(cleaned, `/\`) {
		return "", errors.Wrap(ErrInvalidSkill, "skill name cannot contain path separators")
	}
	if !nameRe.MatchString(cleaned) {
		return "", errors.Wrap(ErrInvalidSkill, "skill name must be 1-64 chars: lowercase letters, numbers, hyphens")
	}
	return cleaned, nil
}

// ValidateMetadata checks parsed frontmatter. A non-empty expectedName
// additionally pins the declared name to the directory holding it.
func ValidateMetadata(meta *Metadata, expectedName string) error {
	if _, err := ValidateName(meta.Name); err != nil {
		return err
	}
	if expectedName != "" && meta.Name != expectedName {
		return errors.Wrapf(ErrInvalidSkill, "skill name mismatch: expected %q, got %q", expectedName, meta.Name)
	}
	if meta.Description == "" {
		return errors.Wrap(ErrInvalidSkill, "skill description cannot be empty")
	}
	if utf8.RuneCountInString(meta.Description) > maxDescriptionChars {
		return errors.Wrapf(ErrInvalidSkill, "skill description exceeds %d characters", maxDescriptionChars)
	}
	return nil
}

// EnsureWithinRoot rejects targets that resolve outside root once
// symlinks are followed.
func EnsureWithinRoot(root, target string) error {
	rootResolved, err := resolvePath(root)
	if err != nil {
		return errors.Wrapf(err, "resolving root %s", root)
	}
	targetResolved, err := resolvePath(target)
	if err != nil {
		return errors.Wrapf(err, "resolving path %s", target)
	}
	if targetResolved == rootResolved {
		return nil
	}
	if !strings.HasPrefix(targetResolved, rootResolved+string(filepath.Separator)) {
		return errors.Wrapf(ErrSecurity, "path traversal detected: %s", target)
	}
	return nil
}

// resolvePath makes a path absolute and resolves symlinks. Paths that
// do not exist resolve through their nearest existing ancestor, so a
// dangling symlink still reports where its target would live.
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	if fi, lerr := os.Lstat(abs); lerr == nil && fi.Mode()&os.ModeSymlink != 0 {
		target, lerr := os.Readlink(abs)
		if lerr != nil {
			return "", lerr
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(abs), target)
		}
		return resolvePath(target)
	}

	dir := filepath.Dir(abs)
	if dir == abs {
		return abs, nil
	}
	resolvedDir, err := resolvePath(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, filepath.Base(abs)), nil
}

// ValidateDirectory checks a skill directory on disk: SKILL.md must
// parse, the declared name must match the directory basename, and a
// populated scripts/ subdirectory fails closed unless the policy
// allows scripts. Returns the parsed metadata on success.
func ValidateDirectory(skillDir string, policy *ScriptPolicy) (*Metadata, error) {
	if _, err := os.Stat(skillDir); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrSkillNotFound, "skill %q", filepath.Base(skillDir))
		}
		return nil, errors.Wrapf(err, "checking skill directory %s", skillDir)
	}

	manifest := filepath.Join(skillDir, manifestFileName)
	if _, err := os.Stat(manifest); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrSkillNotFound, "SKILL.md missing for skill %q", filepath.Base(skillDir))
		}
		return nil, errors.Wrapf(err, "checking manifest %s", manifest)
	}

	meta, _, err := ParseFile(manifest)
	if err != nil {
		return nil, err
	}
	if err := ValidateMetadata(meta, filepath.Base(skillDir)); err != nil {
		return nil, err
	}

	if policy == nil {
		policy = &ScriptPolicy{}
	}
	if !policy.AllowScripts && hasScripts(skillDir) {
		return nil, errors.Wrap(ErrSecurity, "skill includes scripts but --allow-scripts was not provided")
	}
	return meta, nil
}

func hasScripts(skillDir string) bool {
	entries, err := os.ReadDir(filepath.Join(skillDir, "scripts"))
	return err == nil && len(entries) > 0
}
