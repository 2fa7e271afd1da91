package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Git reads files from a local clone. When a remote is set the branch is
// fetched before each read and the file is read from the remote-tracking
// branch; otherwise the local branch is read as is.
type Git struct {
	repoRoot string
	remote   string
	timeout  time.Duration
}

// NewGit opens the clone containing path.
func NewGit(path, remote string) (*Git, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	g := &Git{repoRoot: absPath, remote: remote, timeout: 60 * time.Second}
	out, err := g.exec(context.Background(), "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %s: %w", absPath, err)
	}
	g.repoRoot = strings.TrimSpace(string(out))
	return g, nil
}

// RepoRoot returns the top-level directory of the clone.
func (g *Git) RepoRoot() string {
	return g.repoRoot
}

// Fetch implements FileSource.
func (g *Git) Fetch(ctx context.Context, branch, path string) (string, error) {
	ref := branch
	if g.remote != "" {
		if _, err := g.exec(ctx, "fetch", "--quiet", g.remote, branch); err != nil {
			if isMissingRef(err) {
				return "", fmt.Errorf("branch %s on %s: %w", branch, g.remote, ErrNotFound)
			}
			return "", fmt.Errorf("git fetch failed: %w", err)
		}
		ref = g.remote + "/" + branch
	}

	out, err := g.exec(ctx, "show", ref+":"+strings.TrimLeft(path, "/"))
	if err != nil {
		if isMissingRef(err) {
			return "", fmt.Errorf("%s@%s: %w", path, ref, ErrNotFound)
		}
		return "", fmt.Errorf("git show failed: %w", err)
	}
	return string(out), nil
}

type gitError struct {
	args   []string
	stderr string
	err    error
}

func (e *gitError) Error() string {
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.args, " "), e.err, e.stderr)
}

func (e *gitError) Unwrap() error {
	return e.err
}

// exec runs git in the repository root and returns stdout.
func (g *Git) exec(ctx context.Context, args ...string) ([]byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &gitError{args: args, stderr: strings.TrimSpace(stderr.String()), err: err}
	}
	return stdout.Bytes(), nil
}

// isMissingRef reports whether git failed because a branch or path does not exist.
func isMissingRef(err error) bool {
	var gerr *gitError
	if !errors.As(err, &gerr) {
		return false
	}
	msg := gerr.stderr
	return strings.Contains(msg, "couldn't find remote ref") ||
		strings.Contains(msg, "does not exist in") ||
		strings.Contains(msg, "exists on disk, but not in") ||
		strings.Contains(msg, "invalid object name") ||
		strings.Contains(msg, "Invalid object name") ||
		strings.Contains(msg, "unknown revision")
}
