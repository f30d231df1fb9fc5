package skills

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/r9s-dev/r9s/pkg/logger"
)

const (
	installUserAgent = "r9s-cli/1.0"
	downloadTimeout  = 60 * time.Second
)

var (
	githubTreeRe = regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+)/(?:tree|blob)/([^/]+)/(.+)$`)
	githubRepoRe = regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+)/?$`)
)

// GitHubRef locates a skill directory inside a GitHub repository.
type GitHubRef struct {
	Owner  string
	Repo   string
	Path   string
	Branch string
}

// SkillName returns the last component of the referenced path.
func (r GitHubRef) SkillName() string {
	return path.Base(r.Path)
}

// ArchiveURL returns the branch archive download URL.
func (r GitHubRef) ArchiveURL() string {
	return fmt.Sprintf("https://github.com/%s/%s/archive/refs/heads/%s.zip", r.Owner, r.Repo, r.Branch)
}

// ParseGitHubRef parses a skill installation reference. Accepted forms:
//
//	github:owner/repo/path/to/skill
//	github:owner/repo/path/to/skill@branch
//	https://github.com/owner/repo/tree/branch/path/to/skill
//	https://github.com/owner/repo/blob/branch/path/to/skill
//
// The branch defaults to main for the shorthand form.
func ParseGitHubRef(raw string) (*GitHubRef, error) {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "github:") {
		rest := strings.TrimPrefix(raw, "github:")
		branch := "main"
		if at := strings.LastIndex(rest, "@"); at >= 0 {
			rest, branch = rest[:at], rest[at+1:]
		}
		parts := strings.SplitN(rest, "/", 3)
		if len(parts) < 3 {
			return nil, errors.Errorf("invalid github: reference, expected github:owner/repo/path, got %q", raw)
		}
		return &GitHubRef{Owner: parts[0], Repo: parts[1], Path: parts[2], Branch: branch}, nil
	}

	if m := githubTreeRe.FindStringSubmatch(raw); m != nil {
		return &GitHubRef{
			Owner:  m[1],
			Repo:   m[2],
			Branch: m[3],
			Path:   strings.TrimRight(m[4], "/"),
		}, nil
	}
	if githubRepoRe.MatchString(raw) {
		return nil, errors.Errorf("reference must include a path to a skill directory: %s", raw)
	}
	return nil, errors.Errorf("unrecognized GitHub reference %q: expected github:owner/repo/path[@branch] or https://github.com/owner/repo/tree/branch/path", raw)
}

// Installer downloads skills from GitHub repository archives into a
// local store.
type Installer struct {
	store  *LocalStore
	client *http.Client
	force  bool
	name   string
}

// InstallerOption configures an Installer.
type InstallerOption func(*Installer)

// WithForce overwrites an existing skill of the same name.
func WithForce(force bool) InstallerOption {
	return func(i *Installer) {
		i.force = force
	}
}

// WithSkillName overrides the name derived from the reference path.
func WithSkillName(name string) InstallerOption {
	return func(i *Installer) {
		i.name = name
	}
}

// WithHTTPClient replaces the default download client.
func WithHTTPClient(client *http.Client) InstallerOption {
	return func(i *Installer) {
		i.client = client
	}
}

// NewInstaller creates an installer that writes into the given store.
func NewInstaller(store *LocalStore, opts ...InstallerOption) *Installer {
	installer := &Installer{
		store:  store,
		client: &http.Client{Timeout: downloadTimeout},
	}
	for _, opt := range opts {
		opt(installer)
	}
	return installer
}

// Install downloads the referenced repository archive, locates the
// skill directory inside it, and copies it into the store. Scripts are
// marked executable. Returns the installed skill directory.
func (i *Installer) Install(ctx context.Context, rawURL string) (string, error) {
	ref, err := ParseGitHubRef(rawURL)
	if err != nil {
		return "", err
	}

	name := i.name
	if name == "" {
		name = ref.SkillName()
	}
	safe, err := ValidateName(name)
	if err != nil {
		return "", errors.Wrapf(err, "invalid skill name %q", name)
	}

	targetDir := filepath.Join(i.store.baseDir, safe)
	if _, err := os.Stat(targetDir); err == nil && !i.force {
		return "", errors.Errorf("skill %q already exists at %s (use --force to overwrite)", safe, targetDir)
	}

	logger.G(ctx).WithFields(logrus.Fields{
		"skill":  safe,
		"repo":   ref.Owner + "/" + ref.Repo,
		"branch": ref.Branch,
		"path":   ref.Path,
	}).Info("installing skill from GitHub")

	data, err := i.download(ctx, ref)
	if err != nil {
		return "", err
	}

	tmpDir, err := os.MkdirTemp("", "r9s-skill-*")
	if err != nil {
		return "", errors.Wrap(err, "creating temp directory")
	}
	defer os.RemoveAll(tmpDir)

	if err := extractArchive(data, tmpDir); err != nil {
		return "", err
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return "", errors.Wrap(err, "reading extracted archive")
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return "", errors.New("unexpected archive structure from GitHub")
	}

	repoRoot := filepath.Join(tmpDir, entries[0].Name())
	skillSource := filepath.Join(repoRoot, filepath.FromSlash(ref.Path))
	if !strings.HasPrefix(skillSource, repoRoot+string(os.PathSeparator)) {
		return "", errors.Wrapf(ErrSecurity, "skill path escapes repository root: %s", ref.Path)
	}

	info, err := os.Stat(skillSource)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Errorf("path %q not found in repository on branch %q", ref.Path, ref.Branch)
		}
		return "", errors.Wrap(err, "checking skill path")
	}
	if !info.IsDir() {
		return "", errors.Errorf("path %q is not a directory: skills are directories containing SKILL.md", ref.Path)
	}
	if _, err := os.Stat(filepath.Join(skillSource, manifestFileName)); err != nil {
		return "", errors.Errorf("no SKILL.md found in %q", ref.Path)
	}

	if err := os.RemoveAll(targetDir); err != nil {
		return "", errors.Wrap(err, "removing existing skill")
	}
	if err := copyTree(skillSource, targetDir); err != nil {
		return "", errors.Wrap(err, "installing skill files")
	}
	if err := markScriptsExecutable(targetDir); err != nil {
		return "", err
	}

	logger.G(ctx).WithFields(logrus.Fields{
		"skill": safe,
		"path":  targetDir,
	}).Info("installed skill")
	return targetDir, nil
}

func (i *Installer) download(ctx context.Context, ref *GitHubRef) ([]byte, error) {
	var data []byte
	url := ref.ArchiveURL()

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("User-Agent", installUserAgent)

			resp, err := i.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				return retry.Unrecoverable(errors.Errorf("repository not found: %s/%s (branch %q)", ref.Owner, ref.Repo, ref.Branch))
			}
			if resp.StatusCode != http.StatusOK {
				return errors.Errorf("failed to download archive: HTTP %d", resp.StatusCode)
			}

			data, err = io.ReadAll(resp.Body)
			return err
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("retrying skill archive download")
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "downloading skill archive")
	}
	return data, nil
}

func extractArchive(data []byte, dest string) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return errors.Wrap(err, "invalid ZIP archive from GitHub")
	}

	for _, f := range reader.File {
		target := filepath.Join(dest, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return errors.Wrapf(ErrSecurity, "archive entry escapes extraction root: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return errors.Wrapf(err, "creating directory %s", target)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return errors.Wrapf(err, "creating directory for %s", target)
		}
		if err := extractFile(f, target); err != nil {
			return errors.Wrapf(err, "extracting %s", f.Name)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode()
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

func markScriptsExecutable(skillDir string) error {
	scriptsDir := filepath.Join(skillDir, "scripts")
	if _, err := os.Stat(scriptsDir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "checking scripts directory")
	}

	err := filepath.WalkDir(scriptsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return os.Chmod(path, info.Mode()|0111)
	})
	if err != nil {
		return errors.Wrap(err, "marking scripts executable")
	}
	return nil
}
