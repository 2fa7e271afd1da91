// Package config loads logsync settings from a config file, the environment
// and an optional .env file.
//
// Structural settings (users, source, state store, retry policy) come from
// the config file through viper. Any of them can be overridden with a
// LOGSYNC_ prefixed environment variable (LOGSYNC_STATE_DRIVER=json).
// Credentials only ever come from the environment and are never written
// back out unredacted.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment variables holding credentials.
const (
	EnvGitHubOwner = "GITHUB_REPO_OWNER"
	EnvGitHubRepo  = "GITHUB_REPO_NAME"
	EnvGitHubToken = "GITHUB_TOKEN"
	EnvTrelloKey   = "TRELLO_API_KEY"
	EnvTrelloToken = "TRELLO_API_TOKEN"
)

// EnvPrefix prefixes environment overrides of config keys.
const EnvPrefix = "LOGSYNC"

// Source kinds.
const (
	SourceGitHub = "github"
	SourceGit    = "git"
)

// State drivers.
const (
	DriverSQLite = "sqlite"
	DriverJSON   = "json"
)

var (
	// ErrNoConfig is returned when no config file was given or found.
	ErrNoConfig = errors.New("no config file found")

	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid config")

	// ErrMissingSecret is returned when a required credential is unset.
	ErrMissingSecret = errors.New("required environment variable not set")
)

// SearchNames are the file names tried, in order, when no config file is
// given. config.json is what the old sync script read.
var SearchNames = []string{
	"logsync.yaml",
	"logsync.yml",
	"logsync.toml",
	"logsync.json",
	"config.json",
}

// User is one configured user entry.
type User struct {
	Name        string `mapstructure:"name"`
	Branch      string `mapstructure:"branch"`
	CardID      string `mapstructure:"trello_card_id"`
	LogFilePath string `mapstructure:"log_file_path"`
}

// SourceConfig selects where log files are read from.
type SourceConfig struct {
	// Kind is "github" (contents API) or "git" (local clone).
	Kind     string `mapstructure:"kind"`
	RepoPath string `mapstructure:"repo_path"`
	// Remote is fetched before reading when non-empty (git kind only).
	Remote string `mapstructure:"remote"`
}

// StateConfig selects the sync state store.
type StateConfig struct {
	Driver string `mapstructure:"driver"`
	// Path is the database file (sqlite) or directory (json).
	Path string `mapstructure:"path"`
}

// HTTPConfig applies to both the GitHub and Trello clients.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// RetryConfig is the retry policy for transient remote failures.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DaemonConfig controls the self-scheduling loop.
type DaemonConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// LockPath is the run lock shared by `sync` and `daemon`.
	LockPath string `mapstructure:"lock_path"`
}

// DashboardConfig controls the WebSocket dashboard. Port 0 disables it.
type DashboardConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Secrets are credentials read from the environment.
type Secrets struct {
	GitHubOwner string
	GitHubRepo  string
	GitHubToken string
	TrelloKey   string
	TrelloToken string
}

// Config is the effective configuration.
type Config struct {
	Users     []User          `mapstructure:"users"`
	Source    SourceConfig    `mapstructure:"source"`
	State     StateConfig     `mapstructure:"state"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Log       LogConfig       `mapstructure:"log"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`

	Secrets Secrets `mapstructure:"-"`

	path string
}

// DefaultConfig returns the built-in defaults with no users.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Kind:     SourceGitHub,
			RepoPath: ".",
			Remote:   "origin",
		},
		State: StateConfig{
			Driver: DriverSQLite,
			Path:   filepath.Join(".logsync", "state.db"),
		},
		HTTP:  HTTPConfig{Timeout: 30 * time.Second},
		Retry: RetryConfig{MaxAttempts: 3, Backoff: 500 * time.Millisecond},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Daemon: DaemonConfig{
			Interval: 15 * time.Minute,
			LockPath: filepath.Join(".logsync", "sync.lock"),
		},
		Dashboard: DashboardConfig{Host: "localhost"},
	}
}

// setDefaults registers every key with viper. AutomaticEnv only applies to
// keys viper knows about, so this also enables the LOGSYNC_ overrides.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("source.kind", d.Source.Kind)
	v.SetDefault("source.repo_path", d.Source.RepoPath)
	v.SetDefault("source.remote", d.Source.Remote)
	v.SetDefault("state.driver", d.State.Driver)
	v.SetDefault("state.path", d.State.Path)
	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.backoff", d.Retry.Backoff)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("daemon.interval", d.Daemon.Interval)
	v.SetDefault("daemon.lock_path", d.Daemon.LockPath)
	v.SetDefault("dashboard.host", d.Dashboard.Host)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
}

// LoadOptions controls where Load looks.
type LoadOptions struct {
	// ConfigFile is an explicit config path. Empty searches Dir for
	// SearchNames.
	ConfigFile string
	// Dir is the search directory. Empty means the working directory.
	Dir string
	// EnvFile is loaded into the environment before anything is read.
	// Existing variables win. Empty means ".env" in Dir; a missing file is
	// not an error.
	EnvFile string
}

// Load reads, merges and validates the configuration. Secrets are read but
// not required here; see RequireSecrets.
func Load(opts LoadOptions) (*Config, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = filepath.Join(dir, ".env")
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	path := opts.ConfigFile
	if path == "" {
		found, err := Find(dir)
		if err != nil {
			return nil, err
		}
		path = found
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "yml" {
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if len(cfg.Users) == 0 && v.IsSet("interns") {
		if err := v.UnmarshalKey("interns", &cfg.Users); err != nil {
			return nil, fmt.Errorf("failed to decode interns in %s: %w", path, err)
		}
	}
	cfg.normalize()
	cfg.resolvePaths(filepath.Dir(path))
	cfg.Secrets = SecretsFromEnv()
	cfg.path = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Find returns the first of SearchNames present in dir.
func Find(dir string) (string, error) {
	for _, name := range SearchNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w in %s (tried %s)", ErrNoConfig, dir, strings.Join(SearchNames, ", "))
}

// SecretsFromEnv reads credentials from the process environment.
func SecretsFromEnv() Secrets {
	return Secrets{
		GitHubOwner: strings.TrimSpace(os.Getenv(EnvGitHubOwner)),
		GitHubRepo:  strings.TrimSpace(os.Getenv(EnvGitHubRepo)),
		GitHubToken: strings.TrimSpace(os.Getenv(EnvGitHubToken)),
		TrelloKey:   strings.TrimSpace(os.Getenv(EnvTrelloKey)),
		TrelloToken: strings.TrimSpace(os.Getenv(EnvTrelloToken)),
	}
}

// Path returns the config file Load read, or "" for a config built in code.
func (c *Config) Path() string {
	return c.path
}

func (c *Config) normalize() {
	c.Source.Kind = strings.ToLower(strings.TrimSpace(c.Source.Kind))
	c.State.Driver = strings.ToLower(strings.TrimSpace(c.State.Driver))
	for i := range c.Users {
		u := &c.Users[i]
		u.Name = strings.TrimSpace(u.Name)
		u.Branch = strings.TrimSpace(u.Branch)
		u.CardID = strings.TrimSpace(u.CardID)
		u.LogFilePath = strings.TrimSpace(u.LogFilePath)
	}
}

// resolvePaths makes relative file settings relative to base, the directory
// of the config file, so runs from cron or another directory share one state.
func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{&c.State.Path, &c.Daemon.LockPath, &c.Log.File, &c.Source.RepoPath} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// Validate checks the structural settings. Incomplete user entries are not
// rejected here; the sync run skips them with a warning. Two entries with
// the same name are rejected because state is keyed by name.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.Source.Kind {
	case SourceGitHub:
	case SourceGit:
		if c.Source.RepoPath == "" {
			add("source.repo_path is required for the git source")
		}
	default:
		add("source.kind must be %q or %q, got %q", SourceGitHub, SourceGit, c.Source.Kind)
	}

	switch c.State.Driver {
	case DriverSQLite, DriverJSON:
	default:
		add("state.driver must be %q or %q, got %q", DriverSQLite, DriverJSON, c.State.Driver)
	}
	if c.State.Path == "" {
		add("state.path is required")
	}

	if c.HTTP.Timeout <= 0 {
		add("http.timeout must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		add("retry.max_attempts must be at least 1")
	}
	if c.Retry.Backoff < 0 {
		add("retry.backoff must not be negative")
	}
	if c.Daemon.Interval <= 0 {
		add("daemon.interval must be positive")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		add("dashboard.port out of range: %d", c.Dashboard.Port)
	}

	seen := make(map[string]bool, len(c.Users))
	for _, u := range c.Users {
		if u.Name == "" {
			continue
		}
		if seen[u.Name] {
			add("duplicate user %q", u.Name)
		}
		seen[u.Name] = true
	}

	return errors.Join(errs...)
}

// RequireSecrets reports every credential the configured source needs that
// is unset, plus the Trello credentials when trello is true. Only variable
// names appear in the error.
func (c *Config) RequireSecrets(trello bool) error {
	return c.requireSecrets(true, trello)
}

// RequireTrelloSecrets reports unset Trello credentials only, for commands
// that never read the log files.
func (c *Config) RequireTrelloSecrets() error {
	return c.requireSecrets(false, true)
}

func (c *Config) requireSecrets(src, trello bool) error {
	var missing []string
	if src && c.Source.Kind == SourceGitHub {
		if c.Secrets.GitHubOwner == "" {
			missing = append(missing, EnvGitHubOwner)
		}
		if c.Secrets.GitHubRepo == "" {
			missing = append(missing, EnvGitHubRepo)
		}
		if c.Secrets.GitHubToken == "" {
			missing = append(missing, EnvGitHubToken)
		}
	}
	if trello {
		if c.Secrets.TrelloKey == "" {
			missing = append(missing, EnvTrelloKey)
		}
		if c.Secrets.TrelloToken == "" {
			missing = append(missing, EnvTrelloToken)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSecret, strings.Join(missing, ", "))
	}
	return nil
}

// UserNames returns the configured user names in order.
func (c *Config) UserNames() []string {
	names := make([]string, 0, len(c.Users))
	for _, u := range c.Users {
		names = append(names, u.Name)
	}
	return names
}

// CardUsers maps each card ID to the user that owns it. Used to attribute
// legacy state, which was keyed by card.
func (c *Config) CardUsers() map[string]string {
	m := make(map[string]string, len(c.Users))
	for _, u := range c.Users {
		if u.CardID != "" && u.Name != "" {
			m[u.CardID] = u.Name
		}
	}
	return m
}
