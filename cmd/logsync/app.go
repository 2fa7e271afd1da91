package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/mschirtzinger/logsync/internal/config"
	"github.com/mschirtzinger/logsync/internal/logging"
	"github.com/mschirtzinger/logsync/internal/orchestrator"
	"github.com/mschirtzinger/logsync/internal/reconcile"
	"github.com/mschirtzinger/logsync/internal/source"
	"github.com/mschirtzinger/logsync/internal/state"
	"github.com/mschirtzinger/logsync/internal/state/jsonfile"
	"github.com/mschirtzinger/logsync/internal/state/sqlite"
	"github.com/mschirtzinger/logsync/internal/trello"
)

// globalOptions are the persistent root flags.
type globalOptions struct {
	configFile string
	envFile    string
	dir        string
	quiet      bool
	noColor    bool
	stderr     io.Writer
}

// app is the loaded configuration plus the shared log sink.
type app struct {
	cfg  *config.Config
	logs *logging.Sink
}

func (g *globalOptions) loadConfig() (*config.Config, error) {
	return config.Load(config.LoadOptions{
		ConfigFile: g.configFile,
		Dir:        g.dir,
		EnvFile:    g.envFile,
	})
}

// loadApp loads the config and opens the log sink. The caller must call
// close.
func (g *globalOptions) loadApp() (*app, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	logs := logging.Open(logging.Config{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
		Stderr:     g.stderr,
		Quiet:      g.quiet,
	})
	return &app{cfg: cfg, logs: logs}, nil
}

func (a *app) close() {
	_ = a.logs.Close()
}

func (a *app) logger(component string) *log.Logger {
	return a.logs.New(component)
}

// openStore opens the configured state store.
func (a *app) openStore() (state.Store, error) {
	switch a.cfg.State.Driver {
	case config.DriverJSON:
		return jsonfile.Open(a.cfg.State.Path)
	default:
		return sqlite.Open(a.cfg.State.Path)
	}
}

// newSource builds the configured file source.
func (a *app) newSource() (source.FileSource, error) {
	if a.cfg.Source.Kind == config.SourceGit {
		return source.NewGit(a.cfg.Source.RepoPath, a.cfg.Source.Remote)
	}
	s := a.cfg.Secrets
	return source.NewGitHub(s.GitHubOwner, s.GitHubRepo, s.GitHubToken,
		source.WithGitHubTimeout(a.cfg.HTTP.Timeout),
		source.WithGitHubLogger(a.logger("source")),
	)
}

func (a *app) newTrello() *trello.Client {
	return trello.NewClient(a.cfg.Secrets.TrelloKey, a.cfg.Secrets.TrelloToken,
		trello.WithTimeout(a.cfg.HTTP.Timeout))
}

// users converts the configured entries. Incomplete entries are passed
// through; the orchestrator skips them with a warning.
func (a *app) users() []orchestrator.User {
	out := make([]orchestrator.User, 0, len(a.cfg.Users))
	for _, u := range a.cfg.Users {
		out = append(out, orchestrator.User{
			Name:        u.Name,
			Branch:      u.Branch,
			CardID:      u.CardID,
			LogFilePath: u.LogFilePath,
		})
	}
	return out
}

// selectUsers returns the named users, or all users when names is empty.
func (a *app) selectUsers(names []string) ([]orchestrator.User, error) {
	all := a.users()
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]orchestrator.User, len(all))
	for _, u := range all {
		byName[u.Name] = u
	}
	out := make([]orchestrator.User, 0, len(names))
	for _, n := range names {
		u, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown user %q", n)
		}
		out = append(out, u)
	}
	return out, nil
}

// runOptions configures one sync pass.
type runOptions struct {
	only     []string
	dryRun   bool
	observer orchestrator.Observer
}

// runOnce performs one sync pass over the configured users.
func (a *app) runOnce(ctx context.Context, opts runOptions) (*orchestrator.Summary, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	defer store.Close()

	src, err := a.newSource()
	if err != nil {
		return nil, fmt.Errorf("failed to create file source: %w", err)
	}

	rc := reconcile.DefaultConfig()
	rc.MaxAttempts = a.cfg.Retry.MaxAttempts
	rc.Backoff = a.cfg.Retry.Backoff
	rc.Logger = a.logger("reconcile")

	oc := orchestrator.Config{
		Users:     a.users(),
		Source:    src,
		Store:     store,
		Reconcile: rc,
		Observer:  opts.observer,
		DryRun:    opts.dryRun,
		Only:      opts.only,
		Logger:    a.logger("sync"),
	}
	if !opts.dryRun {
		oc.Gateway = a.newTrello()
	}

	orch, err := orchestrator.New(oc)
	if err != nil {
		return nil, err
	}
	return orch.Run(ctx), nil
}
