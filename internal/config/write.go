package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// Format is a config file encoding that Write can produce.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

const redacted = "********"

// ParseFormat accepts "yaml", "yml" or "toml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("unsupported config format %q (want yaml or toml)", s)
}

// FormatForPath picks the format from a file extension, defaulting to YAML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// fileConfig is the serialized layout. Durations are strings so both
// encoders write "30s" rather than nanoseconds.
type fileConfig struct {
	Users     []fileUser        `yaml:"users" toml:"users"`
	Source    fileSource        `yaml:"source" toml:"source"`
	State     fileState         `yaml:"state" toml:"state"`
	HTTP      fileHTTP          `yaml:"http" toml:"http"`
	Retry     fileRetry         `yaml:"retry" toml:"retry"`
	Log       fileLog           `yaml:"log" toml:"log"`
	Daemon    fileDaemon        `yaml:"daemon" toml:"daemon"`
	Dashboard fileDashboard     `yaml:"dashboard" toml:"dashboard"`
	Secrets   map[string]string `yaml:"secrets,omitempty" toml:"secrets,omitempty"`
}

type fileUser struct {
	Name        string `yaml:"name" toml:"name"`
	Branch      string `yaml:"branch" toml:"branch"`
	CardID      string `yaml:"trello_card_id" toml:"trello_card_id"`
	LogFilePath string `yaml:"log_file_path" toml:"log_file_path"`
}

type fileSource struct {
	Kind     string `yaml:"kind" toml:"kind"`
	RepoPath string `yaml:"repo_path" toml:"repo_path"`
	Remote   string `yaml:"remote" toml:"remote"`
}

type fileState struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
}

type fileHTTP struct {
	Timeout string `yaml:"timeout" toml:"timeout"`
}

type fileRetry struct {
	MaxAttempts int    `yaml:"max_attempts" toml:"max_attempts"`
	Backoff     string `yaml:"backoff" toml:"backoff"`
}

type fileLog struct {
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

type fileDaemon struct {
	Interval string `yaml:"interval" toml:"interval"`
	LockPath string `yaml:"lock_path" toml:"lock_path"`
}

type fileDashboard struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

func (c *Config) toFile() fileConfig {
	f := fileConfig{
		Users:     make([]fileUser, 0, len(c.Users)),
		Source:    fileSource(c.Source),
		State:     fileState(c.State),
		HTTP:      fileHTTP{Timeout: c.HTTP.Timeout.String()},
		Retry:     fileRetry{MaxAttempts: c.Retry.MaxAttempts, Backoff: c.Retry.Backoff.String()},
		Log:       fileLog(c.Log),
		Daemon:    fileDaemon{Interval: c.Daemon.Interval.String(), LockPath: c.Daemon.LockPath},
		Dashboard: fileDashboard(c.Dashboard),
	}
	for _, u := range c.Users {
		f.Users = append(f.Users, fileUser(u))
	}
	return f
}

// RedactedSecrets reports each credential variable as "********" when set
// and "" when not.
func (c *Config) RedactedSecrets() map[string]string {
	mask := func(v string) string {
		if v == "" {
			return ""
		}
		return redacted
	}
	return map[string]string{
		EnvGitHubOwner: mask(c.Secrets.GitHubOwner),
		EnvGitHubRepo:  mask(c.Secrets.GitHubRepo),
		EnvGitHubToken: mask(c.Secrets.GitHubToken),
		EnvTrelloKey:   mask(c.Secrets.TrelloKey),
		EnvTrelloToken: mask(c.Secrets.TrelloToken),
	}
}

// Show writes the effective config in format, with a redacted secrets
// section.
func (c *Config) Show(w io.Writer, format Format) error {
	f := c.toFile()
	f.Secrets = c.RedactedSecrets()
	return encode(w, f, format)
}

// Write writes the config without secrets, suitable for a config file.
func (c *Config) Write(w io.Writer, format Format) error {
	return encode(w, c.toFile(), format)
}

// WriteFile atomically writes the config to path in the format its
// extension implies. An existing file is only replaced when overwrite is set.
func (c *Config) WriteFile(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	var buf bytes.Buffer
	if err := c.Write(&buf, FormatForPath(path)); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

func encode(w io.Writer, f fileConfig, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(f); err != nil {
			return fmt.Errorf("failed to encode toml: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unsupported config format %q", format)
}
