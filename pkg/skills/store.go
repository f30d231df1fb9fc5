package skills

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/r9s-dev/r9s/pkg/logger"
)

// LocalStore persists skills as directories under a single root. It
// assumes a single writer; no file locking is held.
type LocalStore struct {
	baseDir string
}

// Option configures a LocalStore.
type Option func(*LocalStore) error

// WithBaseDir sets the store root directory.
func WithBaseDir(dir string) Option {
	return func(s *LocalStore) error {
		if dir == "" {
			return errors.New("base directory cannot be empty")
		}
		s.baseDir = dir
		return nil
	}
}

// NewLocalStore creates a store rooted at WithBaseDir, falling back to
// DefaultBaseDir. The root directory is created if missing.
func NewLocalStore(opts ...Option) (*LocalStore, error) {
	store := &LocalStore{}
	for _, opt := range opts {
		if err := opt(store); err != nil {
			return nil, err
		}
	}
	if store.baseDir == "" {
		store.baseDir = DefaultBaseDir()
	}
	if err := os.MkdirAll(store.baseDir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating skill store root")
	}
	return store, nil
}

// DefaultBaseDir resolves the skill store root: $R9S_SKILLS_DIR when
// set, otherwise ~/.r9s/skills.
func DefaultBaseDir() string {
	if dir := os.Getenv("R9S_SKILLS_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".r9s", "skills")
}

// BaseDir returns the store root.
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

// SkillDir returns the directory a named skill lives in.
func (s *LocalStore) SkillDir(name string) (string, error) {
	safe, err := ValidateName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, safe), nil
}

// ManifestPath returns the SKILL.md path for a named skill.
func (s *LocalStore) ManifestPath(name string) (string, error) {
	dir, err := s.SkillDir(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, manifestFileName), nil
}

// List returns the names of skills that carry a SKILL.md, sorted.
// Entries without a manifest are not skills and are ignored.
func (s *LocalStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading skill store root")
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.baseDir, entry.Name(), manifestFileName)); err != nil {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Save validates the raw document and writes it verbatim as the
// skill's SKILL.md. The declared frontmatter name must match the
// directory name; nothing touches disk until validation passes.
func (s *LocalStore) Save(ctx context.Context, name, content string) (string, error) {
	safe, err := ValidateName(name)
	if err != nil {
		return "", err
	}
	meta, _, err := ParseDocument(content)
	if err != nil {
		return "", err
	}
	if err := ValidateMetadata(meta, safe); err != nil {
		return "", err
	}

	dir := filepath.Join(s.baseDir, safe)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "creating directory for skill %q", safe)
	}
	manifest := filepath.Join(dir, manifestFileName)
	if err := os.WriteFile(manifest, []byte(content), 0644); err != nil {
		return "", errors.Wrapf(err, "writing manifest for skill %q", safe)
	}

	logger.G(ctx).WithFields(logrus.Fields{
		"skill": safe,
		"path":  manifest,
	}).Debug("saved skill")
	return manifest, nil
}

// Load reads a skill from disk, re-validating the manifest and
// re-enumerating scripts, references, and assets. A non-nil policy
// additionally runs the directory-level script gate.
func (s *LocalStore) Load(ctx context.Context, name string, policy *ScriptPolicy) (*Skill, error) {
	safe, err := ValidateName(name)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(s.baseDir, safe)
	manifest := filepath.Join(dir, manifestFileName)
	if _, err := os.Stat(manifest); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrSkillNotFound, "skill %q", safe)
		}
		return nil, errors.Wrapf(err, "checking manifest for skill %q", safe)
	}

	meta, instructions, err := ParseFile(manifest)
	if err != nil {
		return nil, err
	}
	if err := ValidateMetadata(meta, safe); err != nil {
		return nil, err
	}
	if policy != nil {
		if _, err := ValidateDirectory(dir, policy); err != nil {
			return nil, err
		}
	}

	scripts, err := listAssets(dir, "scripts")
	if err != nil {
		return nil, err
	}
	references, err := listAssets(dir, "references")
	if err != nil {
		return nil, err
	}
	assets, err := listAssets(dir, "assets")
	if err != nil {
		return nil, err
	}

	return &Skill{
		Name:          meta.Name,
		Description:   meta.Description,
		Instructions:  instructions,
		Source:        SourceLocal,
		License:       meta.License,
		Compatibility: meta.Compatibility,
		Metadata:      meta.Metadata,
		AllowedTools:  meta.AllowedTools,
		Scripts:       scripts,
		References:    references,
		Assets:        assets,
	}, nil
}

// Delete removes a skill directory recursively.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	safe, err := ValidateName(name)
	if err != nil {
		return err
	}

	dir := filepath.Join(s.baseDir, safe)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrSkillNotFound, "skill %q", safe)
		}
		return errors.Wrapf(err, "checking skill %q", safe)
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "deleting skill %q", safe)
	}

	logger.G(ctx).WithField("skill", safe).Debug("deleted skill")
	return nil
}

// listAssets enumerates the files under one asset subdirectory as
// slash-separated paths relative to the skill root, sorted. Every entry
// is checked against the root; an escape aborts the whole enumeration.
func listAssets(root, subdir string) ([]string, error) {
	target := filepath.Join(root, subdir)
	if _, err := os.Lstat(target); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "checking %s directory", subdir)
	}
	if err := EnsureWithinRoot(root, target); err != nil {
		return nil, err
	}

	var assets []string
	err := filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := EnsureWithinRoot(root, path); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		assets = append(assets, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSecurity) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "enumerating %s for skill root %s", subdir, root)
	}
	sort.Strings(assets)
	return assets, nil
}
