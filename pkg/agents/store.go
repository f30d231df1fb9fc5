package agents

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/r9s-dev/r9s/pkg/logger"
)

// LocalStore persists agents as a directory tree under a single root.
// It assumes a single writer; no cross-file transaction or lock is held.
type LocalStore struct {
	baseDir         string
	createdBy       string
	deriveVariables bool
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

// WithCreatedBy sets the default author recorded on new versions.
func WithCreatedBy(name string) Option {
	return func(s *LocalStore) error {
		s.createdBy = name
		return nil
	}
}

// WithDeriveVariables controls whether the store derives the variables
// list from instruction placeholders when writing a version. When
// enabled (the default), a non-empty extraction overrides any
// caller-supplied list.
func WithDeriveVariables(derive bool) Option {
	return func(s *LocalStore) error {
		s.deriveVariables = derive
		return nil
	}
}

// NewLocalStore creates a store rooted at WithBaseDir, falling back to
// DefaultBaseDir. The root directory is created if missing.
func NewLocalStore(opts ...Option) (*LocalStore, error) {
	store := &LocalStore{
		createdBy:       defaultCreatedBy(),
		deriveVariables: true,
	}
	for _, opt := range opts {
		if err := opt(store); err != nil {
			return nil, err
		}
	}
	if store.baseDir == "" {
		store.baseDir = DefaultBaseDir()
	}
	if err := os.MkdirAll(store.baseDir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating agent store root")
	}
	return store, nil
}

// DefaultBaseDir resolves the agent store root: $R9S_AGENTS_DIR when set,
// otherwise ~/.r9s/agents.
func DefaultBaseDir() string {
	if dir := os.Getenv("R9S_AGENTS_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".r9s", "agents")
}

func defaultCreatedBy() string {
	return os.Getenv("R9S_AGENT_USER")
}

// BaseDir returns the store root.
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

func (s *LocalStore) agentDir(name string) string {
	return filepath.Join(s.baseDir, name)
}

func (s *LocalStore) manifestPath(name string) string {
	return filepath.Join(s.agentDir(name), "agent.toml")
}

func (s *LocalStore) versionsDir(name string) string {
	return filepath.Join(s.agentDir(name), "versions")
}

func (s *LocalStore) versionPath(name, version string) string {
	return filepath.Join(s.versionsDir(name), version+".toml")
}

func validateAgentName(name string) error {
	if name == "" || name == "." || name == ".." {
		return errors.Errorf("invalid agent name %q", name)
	}
	if strings.ContainsAny(name, `/\`) {
		return errors.Errorf("invalid agent name %q: path separators are not allowed", name)
	}
	return nil
}

// CreateRequest carries the initial configuration for a new agent. Zero
// values fall back to store defaults: provider "r9s", author from
// WithCreatedBy.
type CreateRequest struct {
	Description  string
	Instructions string
	Model        string
	Provider     string
	Tools        []map[string]any
	Files        []map[string]any
	Skills       []string
	Variables    []string
	ModelParams  map[string]any
	CreatedBy    string
	ChangeReason string
}

// Create initializes an agent with version 1.0.0 in draft status. The
// manifest is written before the version file; a crash in between leaves
// a manifest pointing at a missing version, which subsequent loads
// surface as ErrVersionNotFound.
func (s *LocalStore) Create(ctx context.Context, name string, req CreateRequest) (*Agent, error) {
	name = strings.TrimSpace(name)
	if err := validateAgentName(name); err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.agentDir(name)); err == nil {
		return nil, errors.Wrapf(ErrAgentExists, "agent %q", name)
	}

	provider := req.Provider
	if provider == "" {
		provider = "r9s"
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = s.createdBy
	}

	ts := now()
	agent := &Agent{
		ID:             newAgentID(),
		Name:           name,
		Description:    req.Description,
		CurrentVersion: "1.0.0",
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	version := &AgentVersion{
		Version:      "1.0.0",
		Instructions: req.Instructions,
		Model:        req.Model,
		Provider:     provider,
		Tools:        req.Tools,
		Files:        req.Files,
		Skills:       req.Skills,
		Variables:    req.Variables,
		ModelParams:  req.ModelParams,
		CreatedAt:    ts,
		CreatedBy:    createdBy,
		ChangeReason: req.ChangeReason,
		Status:       StatusDraft,
	}
	if err := s.finalizeVersion(version); err != nil {
		return nil, err
	}

	if err := s.saveAgent(agent); err != nil {
		return nil, err
	}
	if err := s.saveVersion(name, version); err != nil {
		return nil, err
	}

	logger.G(ctx).WithFields(logrus.Fields{
		"agent":        name,
		"version":      version.Version,
		"content_hash": version.ContentHash,
	}).Debug("created agent")
	return agent, nil
}

// GetAgent loads an agent manifest.
func (s *LocalStore) GetAgent(ctx context.Context, name string) (*Agent, error) {
	var doc agentManifest
	if err := readTOML(s.manifestPath(name), &doc); err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrapf(ErrAgentNotFound, "agent %q", name)
		}
		return nil, errors.Wrapf(err, "loading agent %q", name)
	}
	return doc.toAgent(), nil
}

// GetVersion loads one version of an agent. The special version "latest"
// (or an empty string) resolves to the numerically highest version on
// disk. The stored content hash is verified against a recomputation;
// a mismatch reports ErrHashMismatch.
func (s *LocalStore) GetVersion(ctx context.Context, name, version string) (*AgentVersion, error) {
	if version == "" || version == "latest" {
		latest, err := s.resolveLatest(name)
		if err != nil {
			return nil, err
		}
		version = latest
	}

	var doc versionDoc
	if err := readTOML(s.versionPath(name, version), &doc); err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrapf(ErrVersionNotFound, "agent %q version %s", name, version)
		}
		return nil, errors.Wrapf(err, "loading agent %q version %s", name, version)
	}

	v := doc.toVersion()
	// The fallback mirrors the write policy so the recomputed hash sees
	// the same variables the save path hashed.
	if len(v.Variables) == 0 && s.deriveVariables {
		v.Variables = ExtractVariables(v.Instructions)
	}
	if v.ContentHash != "" {
		computed, err := ComputeContentHash(v)
		if err != nil {
			return nil, err
		}
		if computed != v.ContentHash {
			return nil, errors.Wrapf(ErrHashMismatch, "agent %q version %s: stored %s, computed %s",
				name, version, v.ContentHash, computed)
		}
	}
	return v, nil
}

// ListAgents enumerates every agent under the store root. Directories
// whose manifest cannot be read are skipped with a warning rather than
// aborting the listing.
func (s *LocalStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading agent store root")
	}

	var agents []*Agent
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		agent, err := s.GetAgent(ctx, entry.Name())
		if err != nil {
			logger.G(ctx).WithField("agent", entry.Name()).WithError(err).Warn("skipping unreadable agent")
			continue
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

// ListVersions returns every loadable version of an agent in ascending
// numeric order. Entries that fail to parse or verify are skipped with
// a warning.
func (s *LocalStore) ListVersions(ctx context.Context, name string) ([]*AgentVersion, error) {
	names, err := s.versionNames(name)
	if err != nil {
		return nil, err
	}

	var versions []*AgentVersion
	for _, versionName := range names {
		v, err := s.GetVersion(ctx, name, versionName)
		if err != nil {
			logger.G(ctx).WithFields(logrus.Fields{
				"agent":   name,
				"version": versionName,
			}).WithError(err).Warn("skipping unloadable version")
			continue
		}
		versions = append(versions, v)
	}

	sort.Slice(versions, func(i, j int) bool {
		cmp, err := CompareVersions(versions[i].Version, versions[j].Version)
		if err != nil {
			return versions[i].Version < versions[j].Version
		}
		return cmp < 0
	})
	return versions, nil
}

// Update writes the next version of an agent. Fields not overridden by
// options carry forward from the current version. The new version is
// written first; the manifest pointer moves after.
func (s *LocalStore) Update(ctx context.Context, name string, opts ...UpdateOption) (*AgentVersion, error) {
	agent, err := s.GetAgent(ctx, name)
	if err != nil {
		return nil, err
	}
	current, err := s.GetVersion(ctx, name, agent.CurrentVersion)
	if err != nil {
		return nil, err
	}

	spec := &updateSpec{bump: BumpPatch, createdBy: s.createdBy}
	for _, opt := range opts {
		opt(spec)
	}

	nextVersion, err := IncrementVersion(current.Version, spec.bump)
	if err != nil {
		return nil, err
	}

	version := &AgentVersion{
		Version:       nextVersion,
		Instructions:  stringOr(spec.instructions, current.Instructions),
		Model:         stringOr(spec.model, current.Model),
		Provider:      stringOr(spec.provider, current.Provider),
		Tools:         current.Tools,
		Files:         current.Files,
		Skills:        current.Skills,
		Variables:     current.Variables,
		ModelParams:   current.ModelParams,
		CreatedAt:     now(),
		CreatedBy:     spec.createdBy,
		ChangeReason:  spec.changeReason,
		Status:        StatusDraft,
		ParentVersion: current.Version,
	}
	if spec.hasTools {
		version.Tools = spec.tools
	}
	if spec.hasFiles {
		version.Files = spec.files
	}
	if spec.hasSkills {
		version.Skills = spec.skills
	}
	if spec.hasVariables {
		version.Variables = spec.variables
	}
	if spec.hasModelParams {
		version.ModelParams = spec.modelParams
	}
	if err := s.finalizeVersion(version); err != nil {
		return nil, err
	}

	if err := s.saveVersion(name, version); err != nil {
		return nil, err
	}
	agent.CurrentVersion = nextVersion
	agent.UpdatedAt = now()
	if err := s.saveAgent(agent); err != nil {
		return nil, err
	}

	logger.G(ctx).WithFields(logrus.Fields{
		"agent":   name,
		"version": nextVersion,
		"parent":  current.Version,
	}).Debug("updated agent")
	return version, nil
}

// Delete removes an agent and its entire version history.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	if err := validateAgentName(name); err != nil {
		return err
	}
	dir := s.agentDir(name)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrAgentNotFound, "agent %q", name)
		}
		return errors.Wrapf(err, "checking agent %q", name)
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "deleting agent %q", name)
	}
	logger.G(ctx).WithField("agent", name).Debug("deleted agent")
	return nil
}

// ApproveVersion transitions a version to approved and rewrites only
// that version file; the manifest is untouched.
func (s *LocalStore) ApproveVersion(ctx context.Context, name, version string) (*AgentVersion, error) {
	return s.setVersionStatus(ctx, name, version, StatusApproved)
}

// DeprecateVersion transitions a version to deprecated.
func (s *LocalStore) DeprecateVersion(ctx context.Context, name, version string) (*AgentVersion, error) {
	return s.setVersionStatus(ctx, name, version, StatusDeprecated)
}

func (s *LocalStore) setVersionStatus(ctx context.Context, name, version, status string) (*AgentVersion, error) {
	v, err := s.GetVersion(ctx, name, version)
	if err != nil {
		return nil, err
	}
	v.Status = status
	if err := s.saveVersion(name, v); err != nil {
		return nil, err
	}
	logger.G(ctx).WithFields(logrus.Fields{
		"agent":   name,
		"version": v.Version,
		"status":  status,
	}).Debug("updated version status")
	return v, nil
}

// Rollback points the agent's current version at an existing version.
// The target must load cleanly; no new version is created.
func (s *LocalStore) Rollback(ctx context.Context, name, version string) (*Agent, error) {
	agent, err := s.GetAgent(ctx, name)
	if err != nil {
		return nil, err
	}
	target, err := s.GetVersion(ctx, name, version)
	if err != nil {
		return nil, err
	}

	agent.CurrentVersion = target.Version
	agent.UpdatedAt = now()
	if err := s.saveAgent(agent); err != nil {
		return nil, err
	}

	logger.G(ctx).WithFields(logrus.Fields{
		"agent":   name,
		"version": target.Version,
	}).Debug("rolled back agent")
	return agent, nil
}

// finalizeVersion derives template variables per the store policy and
// stamps the content hash when absent.
func (s *LocalStore) finalizeVersion(v *AgentVersion) error {
	if s.deriveVariables {
		if extracted := ExtractVariables(v.Instructions); len(extracted) > 0 {
			v.Variables = extracted
		}
	}
	if v.ContentHash == "" {
		hash, err := ComputeContentHash(v)
		if err != nil {
			return err
		}
		v.ContentHash = hash
	}
	return nil
}

func (s *LocalStore) saveAgent(agent *Agent) error {
	if err := os.MkdirAll(s.versionsDir(agent.Name), 0755); err != nil {
		return errors.Wrapf(err, "creating directories for agent %q", agent.Name)
	}
	return writeTOML(s.manifestPath(agent.Name), manifestFromAgent(agent))
}

func (s *LocalStore) saveVersion(name string, v *AgentVersion) error {
	if err := os.MkdirAll(s.versionsDir(name), 0755); err != nil {
		return errors.Wrapf(err, "creating versions directory for agent %q", name)
	}
	return writeTOML(s.versionPath(name, v.Version), docFromVersion(v))
}

// versionNames lists the parseable semver stems in an agent's versions
// directory, unsorted.
func (s *LocalStore) versionNames(name string) ([]string, error) {
	entries, err := os.ReadDir(s.versionsDir(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading versions for agent %q", name)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), ".toml")
		if _, _, _, err := ParseVersion(stem); err != nil {
			continue
		}
		names = append(names, stem)
	}
	return names, nil
}

func (s *LocalStore) resolveLatest(name string) (string, error) {
	names, err := s.versionNames(name)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", errors.Wrapf(ErrVersionNotFound, "no versions found for agent %q", name)
	}

	latest := names[0]
	for _, candidate := range names[1:] {
		cmp, err := CompareVersions(candidate, latest)
		if err != nil {
			continue
		}
		if cmp > 0 {
			latest = candidate
		}
	}
	return latest, nil
}

type updateSpec struct {
	instructions   *string
	model          *string
	provider       *string
	tools          []map[string]any
	files          []map[string]any
	skills         []string
	variables      []string
	modelParams    map[string]any
	hasTools       bool
	hasFiles       bool
	hasSkills      bool
	hasVariables   bool
	hasModelParams bool
	bump           string
	createdBy      string
	changeReason   string
}

// UpdateOption overrides one carried-forward field on Update.
type UpdateOption func(*updateSpec)

// WithInstructions replaces the instruction template.
func WithInstructions(instructions string) UpdateOption {
	return func(u *updateSpec) { u.instructions = &instructions }
}

// WithModel replaces the model binding.
func WithModel(model string) UpdateOption {
	return func(u *updateSpec) { u.model = &model }
}

// WithProvider replaces the provider binding.
func WithProvider(provider string) UpdateOption {
	return func(u *updateSpec) { u.provider = &provider }
}

// WithTools replaces the tool schema list.
func WithTools(tools []map[string]any) UpdateOption {
	return func(u *updateSpec) { u.tools = tools; u.hasTools = true }
}

// WithFiles replaces the file attachment list.
func WithFiles(files []map[string]any) UpdateOption {
	return func(u *updateSpec) { u.files = files; u.hasFiles = true }
}

// WithSkills replaces the skill reference list.
func WithSkills(skills []string) UpdateOption {
	return func(u *updateSpec) { u.skills = skills; u.hasSkills = true }
}

// WithVariables replaces the declared variables list. With the default
// derive policy a non-empty extraction from the instructions still wins.
func WithVariables(variables []string) UpdateOption {
	return func(u *updateSpec) { u.variables = variables; u.hasVariables = true }
}

// WithModelParams replaces the sampling parameter map.
func WithModelParams(params map[string]any) UpdateOption {
	return func(u *updateSpec) { u.modelParams = params; u.hasModelParams = true }
}

// WithBump selects the version increment class (default patch).
func WithBump(bump string) UpdateOption {
	return func(u *updateSpec) { u.bump = bump }
}

// WithAuthor records who made the change.
func WithAuthor(author string) UpdateOption {
	return func(u *updateSpec) { u.createdBy = author }
}

// WithChangeReason records why the version was created.
func WithChangeReason(reason string) UpdateOption {
	return func(u *updateSpec) { u.changeReason = reason }
}

func stringOr(override *string, fallback string) string {
	if override != nil {
		return *override
	}
	return fallback
}
