package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
)

// PromptOptions controls the interactive init form.
type PromptOptions struct {
	// Accessible renders plain prompts, for screen readers and non-TTY
	// input.
	Accessible bool
}

// userForm holds one user's answers while the form runs.
type userForm struct {
	name, branch, cardID, logPath string
	another                       bool
}

// Prompt asks for the source, state store and users, starting from base
// (DefaultConfig if nil), and returns the resulting config.
func Prompt(base *Config, opts PromptOptions) (*Config, error) {
	cfg := DefaultConfig()
	if base != nil {
		c := *base
		c.Users = append([]User(nil), base.Users...)
		cfg = &c
	}

	settings := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where are the log files read from?").
				Options(
					huh.NewOption("GitHub contents API", SourceGitHub),
					huh.NewOption("Local git clone", SourceGit),
				).
				Value(&cfg.Source.Kind),
			huh.NewSelect[string]().
				Title("Sync state store").
				Options(
					huh.NewOption("SQLite database", DriverSQLite),
					huh.NewOption("JSON files", DriverJSON),
				).
				Value(&cfg.State.Driver),
			huh.NewInput().
				Title("State path").
				Description("Database file for sqlite, directory for json").
				Value(&cfg.State.Path).
				Validate(required("state path")),
		),
	).WithAccessible(opts.Accessible)
	if err := settings.Run(); err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	if cfg.Source.Kind == SourceGit {
		repo := huh.NewInput().
			Title("Path to the local clone").
			Value(&cfg.Source.RepoPath).
			Validate(required("repository path"))
		if err := huh.NewForm(huh.NewGroup(repo)).WithAccessible(opts.Accessible).Run(); err != nil {
			return nil, fmt.Errorf("failed to read repository path: %w", err)
		}
	}

	for {
		u := userForm{branch: "main", logPath: "LOG.md"}
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().Title("User name").Value(&u.name).
					Validate(uniqueName(cfg)),
				huh.NewInput().Title("Branch").Value(&u.branch).
					Validate(required("branch")),
				huh.NewInput().Title("Trello card ID").Value(&u.cardID).
					Validate(required("card ID")),
				huh.NewInput().Title("Log file path in the repository").Value(&u.logPath).
					Validate(required("log file path")),
				huh.NewConfirm().Title("Add another user?").Value(&u.another),
			),
		).WithAccessible(opts.Accessible)
		if err := form.Run(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) && len(cfg.Users) > 0 {
				break
			}
			return nil, fmt.Errorf("failed to read user: %w", err)
		}
		cfg.Users = append(cfg.Users, User{
			Name:        strings.TrimSpace(u.name),
			Branch:      strings.TrimSpace(u.branch),
			CardID:      strings.TrimSpace(u.cardID),
			LogFilePath: strings.TrimSpace(u.logPath),
		})
		if !u.another {
			break
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func uniqueName(cfg *Config) func(string) error {
	return func(s string) error {
		name := strings.TrimSpace(s)
		if name == "" {
			return errors.New("name is required")
		}
		for _, u := range cfg.Users {
			if u.Name == name {
				return fmt.Errorf("user %q already exists", name)
			}
		}
		return nil
	}
}
