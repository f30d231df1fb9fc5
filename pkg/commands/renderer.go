package commands

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/r9s-dev/r9s/pkg/logger"
)

const (
	// DefaultShellTimeout bounds each !{...} span execution.
	DefaultShellTimeout = 10 * time.Second
	// DefaultShellMaxOutputBytes caps the stdout substituted for a
	// !{...} span.
	DefaultShellMaxOutputBytes = 1024 * 1024
	// DefaultFileMaxBytes caps the size of a file injected by an
	// @{...} span.
	DefaultFileMaxBytes = 1024 * 1024

	// FileMaxBytesEnv overrides DefaultFileMaxBytes when set to a
	// positive integer. Any other value is ignored.
	FileMaxBytesEnv = "R9S_FILE_INJECT_MAX_BYTES"

	stderrCapBytes = 8 * 1024
)

var (
	// ErrConfirmationRequired is returned when a !{...} span is
	// rendered without a confirmation channel.
	ErrConfirmationRequired = errors.New("Shell execution requires confirmation. Pass -y to skip.")
	// ErrCancelled is returned when the user declines a shell span.
	ErrCancelled = errors.New("Cancelled by user.")

	shellRe = regexp.MustCompile(`(?s)!\{(.*?)\}`)
	fileRe  = regexp.MustCompile(`(?s)@\{(.*?)\}`)
)

// RenderContext carries the inputs and limits for one template render.
// Zero-valued limits fall back to the package defaults.
type RenderContext struct {
	ArgsText            string
	AssumeYes           bool
	Interactive         bool
	ShellTimeout        time.Duration
	ShellMaxOutputBytes int
	FileMaxBytes        int

	// Stdin and Stderr default to the process streams. Stdin is read
	// for confirmation answers, Stderr receives diagnostics.
	Stdin  io.Reader
	Stderr io.Writer
}

func (c RenderContext) withDefaults() RenderContext {
	if c.ShellTimeout <= 0 {
		c.ShellTimeout = DefaultShellTimeout
	}
	if c.ShellMaxOutputBytes <= 0 {
		c.ShellMaxOutputBytes = DefaultShellMaxOutputBytes
	}
	if c.FileMaxBytes <= 0 {
		c.FileMaxBytes = DefaultFileMaxBytes
	}
	if raw := os.Getenv(FileMaxBytesEnv); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			c.FileMaxBytes = n
		}
	}
	if c.Stdin == nil {
		c.Stdin = os.Stdin
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	return c
}

// Render expands a command template in three ordered passes: every
// literal {{args}} token, then every !{shell} span, then every @{file}
// span. Shell output and injected file content are substituted
// verbatim and never re-scanned, so neither can introduce a
// second-order expansion.
func Render(ctx context.Context, template string, rctx RenderContext) (string, error) {
	rctx = rctx.withDefaults()
	r := &renderer{
		rctx:  rctx,
		stdin: bufio.NewReader(rctx.Stdin),
	}

	rendered := RenderArgs(template, rctx.ArgsText)

	rendered, err := r.expandShell(ctx, rendered)
	if err != nil {
		return "", err
	}
	return r.expandFiles(ctx, rendered)
}

// RenderArgs performs only the {{args}} pass, leaving shell and file
// spans untouched. Used for dry runs.
func RenderArgs(template, argsText string) string {
	return strings.ReplaceAll(template, "{{args}}", argsText)
}

type renderer struct {
	rctx  RenderContext
	stdin *bufio.Reader
}

func (r *renderer) expandShell(ctx context.Context, input string) (string, error) {
	if !shellRe.MatchString(input) {
		return input, nil
	}

	var firstErr error
	out := shellRe.ReplaceAllStringFunc(input, func(match string) string {
		if firstErr != nil {
			return match
		}
		cmd := strings.TrimSpace(shellRe.FindStringSubmatch(match)[1])
		if cmd == "" {
			return ""
		}
		result, err := r.runShell(ctx, cmd)
		if err != nil {
			firstErr = err
			return match
		}
		return result
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func (r *renderer) runShell(ctx context.Context, command string) (string, error) {
	if !r.rctx.AssumeYes {
		if !r.rctx.Interactive {
			return "", ErrConfirmationRequired
		}
		if err := r.confirm(command); err != nil {
			return "", err
		}
	}

	logger.G(ctx).WithFields(logrus.Fields{
		"command": command,
		"timeout": r.rctx.ShellTimeout,
	}).Debug("expanding shell span")

	execCtx, cancel := context.WithTimeout(ctx, r.rctx.ShellTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(execCtx, "bash", "-lc", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if execCtx.Err() == context.DeadlineExceeded {
		return "", errors.Errorf("Command timed out after %ds: %s",
			int(r.rctx.ShellTimeout.Seconds()), command)
	}
	if ctx.Err() != nil {
		return "", errors.Wrap(ctx.Err(), "shell expansion interrupted")
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			detail, _ := truncateBytes(stderr.String(), stderrCapBytes)
			return "", errors.Errorf("Command failed (exit %d): %s\n%s",
				exitErr.ExitCode(), command, detail)
		}
		return "", errors.Wrapf(err, "running command %q", command)
	}

	out, truncated := truncateBytes(stdout.String(), r.rctx.ShellMaxOutputBytes)
	if truncated {
		fmt.Fprintf(r.rctx.Stderr, "[r9s] Warning: command output exceeded %d bytes; truncated.\n",
			r.rctx.ShellMaxOutputBytes)
	}
	return out, nil
}

func (r *renderer) confirm(command string) error {
	fmt.Fprintf(r.rctx.Stderr, "[r9s] About to run: %s\n", command)
	fmt.Fprint(r.rctx.Stderr, "Run this command? [y/N]: ")

	answer, err := r.stdin.ReadString('\n')
	if err != nil && answer == "" {
		return ErrCancelled
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer != "y" && answer != "yes" {
		return ErrCancelled
	}
	return nil
}

func (r *renderer) expandFiles(ctx context.Context, input string) (string, error) {
	if !fileRe.MatchString(input) {
		return input, nil
	}

	var firstErr error
	out := fileRe.ReplaceAllStringFunc(input, func(match string) string {
		if firstErr != nil {
			return match
		}
		raw := strings.TrimSpace(fileRe.FindStringSubmatch(match)[1])
		content, err := r.injectFile(ctx, raw)
		if err != nil {
			firstErr = err
			return match
		}
		return content
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func (r *renderer) injectFile(ctx context.Context, rawPath string) (string, error) {
	if rawPath == "" {
		return "", errors.New("file injection path is empty")
	}

	path := expandHome(rawPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Errorf("File not found for injection: %s", rawPath)
		}
		return "", errors.Wrapf(err, "reading file for injection %q", rawPath)
	}

	if len(data) > r.rctx.FileMaxBytes {
		return "", errors.Errorf("File too large to inject: %s (%d bytes, max %d)",
			rawPath, len(data), r.rctx.FileMaxBytes)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return "", errors.Errorf("Refusing to inject binary file (NUL byte): %s", rawPath)
	}
	if !utf8.Valid(data) {
		return "", errors.Errorf("File is not valid UTF-8: %s", rawPath)
	}

	logger.G(ctx).WithFields(logrus.Fields{
		"path":  path,
		"bytes": len(data),
	}).Debug("injecting file into template")
	fmt.Fprintf(r.rctx.Stderr, "[r9s] Injecting file %s (%d bytes)\n", path, len(data))

	return string(data), nil
}

func expandHome(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// truncateBytes cuts text to at most maxBytes, repairing any UTF-8
// sequence broken by the cut.
func truncateBytes(text string, maxBytes int) (string, bool) {
	if len(text) <= maxBytes {
		return text, false
	}
	return strings.ToValidUTF8(text[:maxBytes], "�"), true
}
