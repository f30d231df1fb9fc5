// Package commands manages named prompt templates ("commands") stored
// as TOML files, and renders them through a staged expansion pipeline:
// {{args}} substitution, then !{shell} execution, then @{file}
// injection. Shell execution is confirmation-gated and file injection
// rejects binary or oversized content.
package commands

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/r9s-dev/r9s/pkg/logger"
)

// ErrCommandNotFound is returned when a named command has no file
// behind it.
var ErrCommandNotFound = errors.New("command not found")

// CommandConfig is a named, reusable prompt template.
type CommandConfig struct {
	Name        string
	Description string
	Prompt      string
}

type commandDoc struct {
	Description string `toml:"description,omitempty"`
	Prompt      string `toml:"prompt,multiline"`
}

// LocalStore persists commands as <baseDir>/<name>.toml.
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
		return nil, errors.Wrap(err, "creating command store root")
	}
	return store, nil
}

// DefaultBaseDir resolves the command store root, ~/.r9s/commands.
func DefaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".r9s", "commands")
}

// BaseDir returns the store root.
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

func (s *LocalStore) commandPath(name string) string {
	return filepath.Join(s.baseDir, name+".toml")
}

func validateCommandName(name string) (string, error) {
	cleaned := strings.TrimSpace(name)
	if cleaned == "" {
		return "", errors.New("command name cannot be empty")
	}
	if strings.ContainsAny(cleaned, `/\`) {
		return "", errors.Errorf("invalid command name %q: path separators are not allowed", cleaned)
	}
	return cleaned, nil
}

// Save writes a command config. An existing command of the same name
// is overwritten.
func (s *LocalStore) Save(ctx context.Context, cmd CommandConfig) (string, error) {
	name, err := validateCommandName(cmd.Name)
	if err != nil {
		return "", err
	}

	doc := commandDoc{
		Description: cmd.Description,
		Prompt:      cmd.Prompt,
	}
	data, err := toml.Marshal(doc)
	if err != nil {
		return "", errors.Wrapf(err, "encoding command %q", name)
	}

	path := s.commandPath(name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrapf(err, "writing command %q", name)
	}

	logger.G(ctx).WithFields(logrus.Fields{
		"command": name,
		"path":    path,
	}).Debug("saved command")
	return path, nil
}

// Load reads a command config. A config without a non-blank prompt is
// unusable and rejected.
func (s *LocalStore) Load(ctx context.Context, name string) (*CommandConfig, error) {
	safe, err := validateCommandName(name)
	if err != nil {
		return nil, err
	}

	path := s.commandPath(safe)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrCommandNotFound, "command %q", safe)
		}
		return nil, errors.Wrapf(err, "reading command %q", safe)
	}

	var doc commandDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "parsing command %q", safe)
	}
	if strings.TrimSpace(doc.Prompt) == "" {
		return nil, errors.Errorf("command config missing 'prompt': %s", path)
	}

	return &CommandConfig{
		Name:        safe,
		Description: strings.TrimSpace(doc.Description),
		Prompt:      doc.Prompt,
	}, nil
}

// List returns the stored command names, sorted.
func (s *LocalStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading command store root")
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".toml"))
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a command file.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	safe, err := validateCommandName(name)
	if err != nil {
		return err
	}
	if err := os.Remove(s.commandPath(safe)); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrCommandNotFound, "command %q", safe)
		}
		return errors.Wrapf(err, "deleting command %q", safe)
	}

	logger.G(ctx).WithField("command", safe).Debug("deleted command")
	return nil
}
