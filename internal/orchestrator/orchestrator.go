package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/mschirtzinger/logsync/internal/logdoc"
	"github.com/mschirtzinger/logsync/internal/reconcile"
	"github.com/mschirtzinger/logsync/internal/source"
	"github.com/mschirtzinger/logsync/internal/state"
)

// ErrInvalidUser is reported for user entries missing a required field.
var ErrInvalidUser = errors.New("invalid user entry")

// User is one configured branch/file/card triple.
type User struct {
	Name        string
	Branch      string
	CardID      string
	LogFilePath string
}

// Validate checks that every field is set.
func (u User) Validate() error {
	switch {
	case u.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidUser)
	case u.Branch == "":
		return fmt.Errorf("%w: %s: branch is required", ErrInvalidUser, u.Name)
	case u.CardID == "":
		return fmt.Errorf("%w: %s: trello_card_id is required", ErrInvalidUser, u.Name)
	case u.LogFilePath == "":
		return fmt.Errorf("%w: %s: log_file_path is required", ErrInvalidUser, u.Name)
	}
	return nil
}

// Config wires an Orchestrator.
type Config struct {
	Users   []User
	Source  source.FileSource
	Gateway reconcile.Gateway
	Store   state.Store

	Reconcile reconcile.Config

	// Observer, if set, is notified of run progress.
	Observer Observer

	// DryRun plans operations without calling the gateway or saving state.
	DryRun bool

	// Only restricts the run to the named users. Empty means all users.
	Only []string

	Logger *log.Logger
}

// Orchestrator runs one sync pass over all configured users.
type Orchestrator struct {
	cfg        Config
	reconciler *reconcile.Reconciler
	recorder   state.RunRecorder
	logger     *log.Logger
	now        func() time.Time
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("file source is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if cfg.Gateway == nil && !cfg.DryRun {
		return nil, fmt.Errorf("gateway is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if cfg.Reconcile.Logger == nil {
		cfg.Reconcile.Logger = cfg.Logger
	}

	o := &Orchestrator{
		cfg:    cfg,
		logger: cfg.Logger,
		now:    time.Now,
	}
	if cfg.Gateway != nil {
		o.reconciler = reconcile.New(cfg.Gateway, cfg.Reconcile)
	}
	if rec, ok := state.AsRunRecorder(cfg.Store); ok && !cfg.DryRun {
		o.recorder = rec
	}
	return o, nil
}

// Run syncs every selected user in order and returns the summary. A failure
// for one user is recorded in its report and does not stop the others.
// Cancelling ctx stops the run before the next user.
func (o *Orchestrator) Run(ctx context.Context) *Summary {
	users := o.selectedUsers()
	sum := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: o.now(),
		DryRun:    o.cfg.DryRun,
	}

	o.logger.Printf("Starting run %s for %d users", sum.RunID, len(users))
	if o.cfg.Observer != nil {
		o.cfg.Observer.RunStarted(sum.RunID, len(users))
	}

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			o.logger.Printf("WARNING: Run interrupted before user %s: %v", u.Name, err)
			sum.Users = append(sum.Users, UserReport{User: u.Name, Err: err})
			continue
		}

		rep := o.SyncUser(ctx, u)
		sum.Users = append(sum.Users, rep)
		o.record(ctx, sum.RunID, rep)
		if o.cfg.Observer != nil {
			o.cfg.Observer.UserSynced(sum.RunID, rep)
		}
	}

	sum.FinishedAt = o.now()
	o.logger.Printf("Run complete: %d users, %d failed, %d ops failed (%v)",
		len(sum.Users), sum.FailedUsers(), sum.FailedOps(), sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond))
	if o.cfg.Observer != nil {
		o.cfg.Observer.RunComplete(*sum)
	}
	return sum
}

// SyncUser runs fetch, parse, load, reconcile and save for one user. Panics
// are recovered and reported as the user's error.
func (o *Orchestrator) SyncUser(ctx context.Context, u User) (rep UserReport) {
	rep = UserReport{User: u.Name, StartedAt: o.now()}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Printf("ERROR: panic while syncing %s: %v\n%s", u.Name, r, debug.Stack())
			rep.Err = fmt.Errorf("panic: %v", r)
		}
		rep.FinishedAt = o.now()
	}()

	if err := u.Validate(); err != nil {
		o.logger.Printf("WARNING: Skipping user: %v", err)
		rep.Err = err
		return rep
	}

	raw, err := o.cfg.Source.Fetch(ctx, u.Branch, u.LogFilePath)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			o.logger.Printf("WARNING: Skipping %s: %s not found on branch %s", u.Name, u.LogFilePath, u.Branch)
		} else {
			o.logger.Printf("WARNING: Skipping %s: failed to fetch log: %v", u.Name, err)
		}
		rep.Err = fmt.Errorf("failed to fetch log: %w", err)
		return rep
	}

	doc := logdoc.Parse(raw)
	for _, a := range doc.Anomalies {
		o.logger.Printf("%s: ignored %s", u.Name, a)
	}
	rep.Anomalies = len(doc.Anomalies)

	prev := state.LoadOrEmpty(ctx, o.cfg.Store, u.Name, o.logger)

	if o.cfg.DryRun {
		rep.Planned = reconcile.Plan(doc, prev)
		for _, op := range rep.Planned {
			o.logger.Printf("%s: would %s", u.Name, op)
		}
		return rep
	}

	next, res := o.reconciler.Reconcile(ctx, u.CardID, doc, prev)
	next.User = u.Name
	rep.Created = res.Created
	rep.Updated = res.Updated
	rep.Deleted = res.Deleted
	rep.Deferred = res.Deferred
	rep.Failed = res.Failed()

	// Ops applied before an interrupt are already remote; their IDs must be kept.
	if err := o.cfg.Store.Save(context.WithoutCancel(ctx), u.Name, next); err != nil {
		o.logger.Printf("WARNING: Failed to save state for %s, changes from this run will be replayed: %v", u.Name, err)
		rep.Err = fmt.Errorf("failed to save state: %w", err)
		return rep
	}

	o.logger.Printf("Synced %s: created=%d updated=%d deleted=%d failed=%d",
		u.Name, rep.Created, rep.Updated, rep.Deleted, rep.Failed)
	return rep
}

func (o *Orchestrator) selectedUsers() []User {
	if len(o.cfg.Only) == 0 {
		return o.cfg.Users
	}
	want := make(map[string]bool, len(o.cfg.Only))
	for _, name := range o.cfg.Only {
		want[name] = true
	}
	var users []User
	for _, u := range o.cfg.Users {
		if want[u.Name] {
			users = append(users, u)
			delete(want, u.Name)
		}
	}
	for name := range want {
		o.logger.Printf("WARNING: Unknown user %q requested", name)
	}
	return users
}

func (o *Orchestrator) record(ctx context.Context, runID string, rep UserReport) {
	if o.recorder == nil || rep.User == "" {
		return
	}
	rec := state.RunRecord{
		RunID:      runID,
		User:       rep.User,
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		Created:    rep.Created,
		Updated:    rep.Updated,
		Deleted:    rep.Deleted,
		Failed:     rep.Failed,
	}
	if rep.Err != nil {
		rec.Error = rep.Err.Error()
	}
	if err := o.recorder.RecordRun(ctx, rec); err != nil {
		o.logger.Printf("WARNING: Failed to record run for %s: %v", rep.User, err)
	}
}
