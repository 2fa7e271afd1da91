package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// clearEnv unsets every credential variable for the test and restores the
// previous values afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvGitHubOwner, EnvGitHubRepo, EnvGitHubToken, EnvTrelloKey, EnvTrelloToken} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return p
}

const sampleYAML = `users:
  - name: alice
    branch: alice-log
    trello_card_id: card1
    log_file_path: logs/alice.md
  - name: bob
    branch: bob-log
    trello_card_id: card2
    log_file_path: logs/bob.md
state:
  driver: json
  path: state
retry:
  max_attempts: 5
  backoff: 2s
`

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Source.Kind != SourceGitHub {
		t.Errorf("Source.Kind = %q, want %q", cfg.Source.Kind, SourceGitHub)
	}
	if cfg.State.Driver != DriverSQLite {
		t.Errorf("State.Driver = %q, want %q", cfg.State.Driver, DriverSQLite)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.Backoff != 500*time.Millisecond {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.HTTP.Timeout != 30*time.Second {
		t.Errorf("HTTP.Timeout = %v", cfg.HTTP.Timeout)
	}
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "logsync.yaml", sampleYAML)

	cfg, err := Load(LoadOptions{Dir: dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	wantUsers := []User{
		{Name: "alice", Branch: "alice-log", CardID: "card1", LogFilePath: "logs/alice.md"},
		{Name: "bob", Branch: "bob-log", CardID: "card2", LogFilePath: "logs/bob.md"},
	}
	if diff := cmp.Diff(wantUsers, cfg.Users); diff != "" {
		t.Errorf("Users mismatch (-want +got):\n%s", diff)
	}
	if cfg.State.Driver != DriverJSON || cfg.State.Path != filepath.Join(dir, "state") {
		t.Errorf("State = %+v", cfg.State)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.Backoff != 2*time.Second {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	// Unset keys keep their defaults.
	if cfg.Daemon.Interval != 15*time.Minute {
		t.Errorf("Daemon.Interval = %v", cfg.Daemon.Interval)
	}
	if cfg.Path() != filepath.Join(dir, "logsync.yaml") {
		t.Errorf("Path() = %q", cfg.Path())
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOGSYNC_STATE_DRIVER", "sqlite")
	t.Setenv("LOGSYNC_HTTP_TIMEOUT", "5s")
	dir := t.TempDir()
	writeFile(t, dir, "logsync.yaml", sampleYAML)

	cfg, err := Load(LoadOptions{Dir: dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.State.Driver != DriverSQLite {
		t.Errorf("State.Driver = %q, want env override", cfg.State.Driver)
	}
	if cfg.HTTP.Timeout != 5*time.Second {
		t.Errorf("HTTP.Timeout = %v, want 5s", cfg.HTTP.Timeout)
	}
}

func TestLoad_LegacyInternsJSON(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "config.json", `{
  "interns": [
    {"name": "carol", "branch": "carol", "trello_card_id": "c3", "log_file_path": "LOG.md"}
  ]
}`)

	cfg, err := Load(LoadOptions{Dir: dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []User{{Name: "carol", Branch: "carol", CardID: "c3", LogFilePath: "LOG.md"}}
	if diff := cmp.Diff(want, cfg.Users); diff != "" {
		t.Errorf("Users mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_TOML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "custom.toml", `
[source]
kind = "git"
repo_path = "/srv/logs"
remote = ""

[daemon]
interval = "1m"

[[users]]
name = "dave"
branch = "dave"
trello_card_id = "c4"
log_file_path = "LOG.md"
`)

	cfg, err := Load(LoadOptions{ConfigFile: path, Dir: dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.Kind != SourceGit || cfg.Source.RepoPath != "/srv/logs" || cfg.Source.Remote != "" {
		t.Errorf("Source = %+v", cfg.Source)
	}
	if cfg.Daemon.Interval != time.Minute {
		t.Errorf("Daemon.Interval = %v", cfg.Daemon.Interval)
	}
	if len(cfg.Users) != 1 || cfg.Users[0].Name != "dave" {
		t.Errorf("Users = %+v", cfg.Users)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "logsync.yaml", sampleYAML)
	writeFile(t, dir, ".env", "TRELLO_API_KEY=key-from-file\nTRELLO_API_TOKEN=token-from-file\n")
	// Variables already in the environment win over .env.
	t.Setenv(EnvTrelloToken, "token-from-env")

	cfg, err := Load(LoadOptions{Dir: dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Secrets.TrelloKey != "key-from-file" {
		t.Errorf("TrelloKey = %q", cfg.Secrets.TrelloKey)
	}
	if cfg.Secrets.TrelloToken != "token-from-env" {
		t.Errorf("TrelloToken = %q", cfg.Secrets.TrelloToken)
	}
}

func TestLoad_NoConfig(t *testing.T) {
	clearEnv(t)
	_, err := Load(LoadOptions{Dir: t.TempDir()})
	if !errors.Is(err, ErrNoConfig) {
		t.Fatalf("err = %v, want ErrNoConfig", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "logsync.yaml", "state:\n  driver: postgres\n")

	_, err := Load(LoadOptions{Dir: dir})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	if !strings.Contains(err.Error(), "state.driver") {
		t.Errorf("error should name the key: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad source", func(c *Config) { c.Source.Kind = "svn" }, "source.kind"},
		{"git without path", func(c *Config) { c.Source.Kind = SourceGit; c.Source.RepoPath = "" }, "source.repo_path"},
		{"no state path", func(c *Config) { c.State.Path = "" }, "state.path"},
		{"zero timeout", func(c *Config) { c.HTTP.Timeout = 0 }, "http.timeout"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"negative backoff", func(c *Config) { c.Retry.Backoff = -time.Second }, "retry.backoff"},
		{"zero interval", func(c *Config) { c.Daemon.Interval = 0 }, "daemon.interval"},
		{"bad port", func(c *Config) { c.Dashboard.Port = 70000 }, "dashboard.port"},
		{"duplicate user", func(c *Config) {
			c.Users = []User{{Name: "a"}, {Name: "a"}}
		}, "duplicate user"},
		{"incomplete user allowed", func(c *Config) {
			c.Users = []User{{Name: "a"}}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalid) || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want ErrInvalid mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestRequireSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Secrets = Secrets{GitHubOwner: "o", GitHubRepo: "r", TrelloKey: "k"}

	err := cfg.RequireSecrets(true)
	if !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("err = %v, want ErrMissingSecret", err)
	}
	for _, name := range []string{EnvGitHubToken, EnvTrelloToken} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should name %s: %v", name, err)
		}
	}

	err = cfg.RequireTrelloSecrets()
	if !errors.Is(err, ErrMissingSecret) || strings.Contains(err.Error(), EnvGitHubToken) {
		t.Errorf("RequireTrelloSecrets should only report Trello variables, got %v", err)
	}

	cfg.Source.Kind = SourceGit
	if err := cfg.RequireSecrets(false); err != nil {
		t.Errorf("git source without trello needs nothing, got %v", err)
	}
}

func TestShow_RedactsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Secrets = Secrets{GitHubToken: "ghp_supersecret", TrelloKey: "trello-key-value"}

	for _, format := range []Format{FormatYAML, FormatTOML} {
		var buf bytes.Buffer
		if err := cfg.Show(&buf, format); err != nil {
			t.Fatalf("Show(%s): %v", format, err)
		}
		out := buf.String()
		if strings.Contains(out, "ghp_supersecret") || strings.Contains(out, "trello-key-value") {
			t.Errorf("%s output leaks a secret:\n%s", format, out)
		}
		if !strings.Contains(out, redacted) {
			t.Errorf("%s output should mark set secrets:\n%s", format, out)
		}
	}
}

func TestWriteFile_RoundTrip(t *testing.T) {
	clearEnv(t)
	cfg := DefaultConfig()
	cfg.Users = []User{{Name: "erin", Branch: "erin", CardID: "c5", LogFilePath: "LOG.md"}}
	cfg.Retry.Backoff = 3 * time.Second
	cfg.Dashboard.Port = 8080

	for _, name := range []string{"logsync.yaml", "logsync.toml"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, name)
			if err := cfg.WriteFile(path, false); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if err := cfg.WriteFile(path, false); err == nil {
				t.Error("second WriteFile without overwrite should fail")
			}

			got, err := Load(LoadOptions{ConfigFile: path, Dir: dir})
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			want := *cfg
			want.resolvePaths(dir)
			if diff := cmp.Diff(&want, got, cmpopts.IgnoreUnexported(Config{})); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoad_RelativePathsFollowConfigDir(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "logsync.yaml", `
state:
  path: data/state.db
daemon:
  lock_path: /var/lock/logsync.lock
log:
  file: logs/sync.log
`)
	// Run from somewhere else, as cron would.
	t.Chdir(t.TempDir())

	cfg, err := Load(LoadOptions{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"state.path", cfg.State.Path, filepath.Join(dir, "data", "state.db")},
		{"daemon.lock_path", cfg.Daemon.LockPath, "/var/lock/logsync.lock"},
		{"log.file", cfg.Log.File, filepath.Join(dir, "logs", "sync.log")},
		{"source.repo_path", cfg.Source.RepoPath, dir},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"yaml": FormatYAML, "YML": FormatYAML, "toml": FormatTOML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("ini"); err == nil {
		t.Error("ParseFormat(ini) should fail")
	}
}

func TestCardUsers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Users = []User{
		{Name: "alice", CardID: "c1"},
		{Name: "bob"},
	}
	want := map[string]string{"c1": "alice"}
	if diff := cmp.Diff(want, cfg.CardUsers()); diff != "" {
		t.Errorf("CardUsers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"alice", "bob"}, cfg.UserNames()); diff != "" {
		t.Errorf("UserNames mismatch (-want +got):\n%s", diff)
	}
}
