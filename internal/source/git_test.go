package source

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	args = append([]string{"-c", "user.name=Test User", "-c", "user.email=test@example.com"}, args...)
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

// setupLogRepo creates a repository with a branch "alice" holding logs/alice.md.
func setupLogRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	runGit(t, dir, "init", "--quiet")
	runGit(t, dir, "commit", "--quiet", "--allow-empty", "-m", "root")
	runGit(t, dir, "checkout", "--quiet", "-b", "alice")

	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "logs", "alice.md"), []byte("## Milestones\n### Setup\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "--quiet", "-m", "log")
	return dir
}

func TestGitFetch_LocalBranch(t *testing.T) {
	dir := setupLogRepo(t)

	g, err := NewGit(dir, "")
	if err != nil {
		t.Fatalf("NewGit failed: %v", err)
	}
	got, err := g.Fetch(context.Background(), "alice", "logs/alice.md")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got != "## Milestones\n### Setup\n" {
		t.Errorf("content = %q", got)
	}
}

func TestGitFetch_NotFound(t *testing.T) {
	dir := setupLogRepo(t)
	g, err := NewGit(dir, "")
	if err != nil {
		t.Fatalf("NewGit failed: %v", err)
	}

	tests := []struct {
		name, branch, path string
	}{
		{"missing file", "alice", "logs/bob.md"},
		{"missing branch", "bob", "logs/alice.md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Fetch(context.Background(), tt.branch, tt.path)
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestGitFetch_FromRemote(t *testing.T) {
	upstream := setupLogRepo(t)

	clone := t.TempDir()
	runGit(t, clone, "clone", "--quiet", upstream, ".")

	// New commit upstream after the clone; Fetch must see it.
	if err := os.WriteFile(filepath.Join(upstream, "logs", "alice.md"), []byte("updated\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, upstream, "commit", "--quiet", "-am", "update")

	g, err := NewGit(clone, "origin")
	if err != nil {
		t.Fatalf("NewGit failed: %v", err)
	}
	got, err := g.Fetch(context.Background(), "alice", "logs/alice.md")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got != "updated\n" {
		t.Errorf("content = %q, want updated", got)
	}

	if _, err := g.Fetch(context.Background(), "nobody", "logs/alice.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing remote branch: expected ErrNotFound, got %v", err)
	}
}

func TestNewGit_NotARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	if _, err := NewGit(t.TempDir(), ""); err == nil {
		t.Error("expected error outside a repository")
	}
}
