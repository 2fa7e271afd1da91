package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mschirtzinger/logsync/internal/logdoc"
	"github.com/mschirtzinger/logsync/internal/state"
	"github.com/mschirtzinger/logsync/internal/trello"
)

var (
	// ErrEmptyID is returned when a create call succeeds without an ID.
	ErrEmptyID = errors.New("remote returned an empty id")

	// ErrNoChecklist is recorded for item creations whose checklist could
	// not be created in the same run.
	ErrNoChecklist = errors.New("parent checklist is not mapped")
)

// Config controls retries and logging.
type Config struct {
	// MaxAttempts is the number of tries per operation, including the first.
	MaxAttempts int
	// Backoff is the delay before the first retry; it doubles per retry.
	Backoff time.Duration
	// IsRetryable classifies errors worth retrying within the run.
	IsRetryable func(error) bool
	Logger      *log.Logger
}

// DefaultConfig returns the default retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoff:     500 * time.Millisecond,
		IsRetryable: trello.IsRetryable,
	}
}

// Failure is an operation that did not complete.
type Failure struct {
	Op  Op
	Err error
}

// Result summarizes one reconciliation.
type Result struct {
	Created int
	Updated int
	Deleted int
	// Deferred counts checklist deletions postponed because some of their
	// items are still mapped.
	Deferred int
	Applied  []Op
	Failures []Failure
}

// Failed returns the number of failed operations.
func (r *Result) Failed() int {
	return len(r.Failures)
}

// Err joins the failure errors, or returns nil if every operation succeeded.
func (r *Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.Op, f.Err))
	}
	return errors.Join(errs...)
}

// Reconciler applies plans through a Gateway.
type Reconciler struct {
	gw     Gateway
	cfg    Config
	logger *log.Logger
	sleep  func(context.Context, time.Duration) error
}

// New creates a Reconciler. Zero config fields take their defaults, except
// Backoff, where zero means retry immediately.
func New(gw Gateway, cfg Config) *Reconciler {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = def.IsRetryable
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[reconcile] ", log.LstdFlags)
	}
	return &Reconciler{
		gw:     gw,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Reconcile executes Plan(doc, prev) against cardID and returns the updated
// state. prev is not modified. Operations run in plan order; a failed
// operation is recorded in the result and leaves its state entry untouched.
//
// If ctx is cancelled the remaining operations are not attempted and the
// state reflects what was applied so far.
func (r *Reconciler) Reconcile(ctx context.Context, cardID string, doc *logdoc.Document, prev *state.State) (*state.State, Result) {
	var st *state.State
	if prev == nil {
		st = state.New("")
	} else {
		st = prev.Clone()
	}

	var res Result
	ops := Plan(doc, st)
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			r.logger.Printf("WARNING: Reconciliation interrupted with %d operations left: %v", len(ops)-i, err)
			for _, rest := range ops[i:] {
				res.Failures = append(res.Failures, Failure{Op: rest, Err: err})
			}
			break
		}
		r.apply(ctx, cardID, st, op, &res)
	}
	return st, res
}

func (r *Reconciler) apply(ctx context.Context, cardID string, st *state.State, op Op, res *Result) {
	var err error
	switch op.Kind {
	case CreateChecklist:
		var id string
		id, err = r.create(ctx, op, func(ctx context.Context) (string, error) {
			return r.gw.CreateChecklist(ctx, cardID, op.Milestone)
		})
		if err == nil {
			st.SetChecklist(op.Milestone, id)
			res.Created++
		}

	case CreateItem:
		checklistID, ok := st.Checklists[op.Milestone]
		if !ok {
			err = ErrNoChecklist
			break
		}
		var id string
		id, err = r.create(ctx, op, func(ctx context.Context) (string, error) {
			return r.gw.CreateItem(ctx, checklistID, op.Text, op.Checked)
		})
		if err == nil {
			st.SetItem(state.ItemKey{Milestone: op.Milestone, Text: op.Text}, state.ItemRecord{ID: id, Checked: op.Checked})
			res.Created++
		}

	case UpdateItem:
		err = r.retry(ctx, op, func(ctx context.Context) error {
			return r.gw.UpdateItemChecked(ctx, cardID, op.RemoteID, op.Checked)
		})
		if err == nil {
			st.SetItem(state.ItemKey{Milestone: op.Milestone, Text: op.Text}, state.ItemRecord{ID: op.RemoteID, Checked: op.Checked})
			res.Updated++
		}

	case DeleteItem:
		err = r.retry(ctx, op, func(ctx context.Context) error {
			return r.gw.DeleteItem(ctx, cardID, op.RemoteID)
		})
		if errors.Is(err, trello.ErrNotFound) {
			r.logger.Printf("Item %q/%q already gone remotely, unmapping", op.Milestone, op.Text)
			err = nil
		}
		if err == nil {
			st.RemoveItem(state.ItemKey{Milestone: op.Milestone, Text: op.Text})
			res.Deleted++
		}

	case DeleteChecklist:
		if remaining := len(st.ItemsFor(op.Milestone)); remaining > 0 {
			r.logger.Printf("Deferring deletion of checklist %q: %d items still mapped", op.Milestone, remaining)
			res.Deferred++
			return
		}
		err = r.retry(ctx, op, func(ctx context.Context) error {
			return r.gw.DeleteChecklist(ctx, op.RemoteID)
		})
		if errors.Is(err, trello.ErrNotFound) {
			r.logger.Printf("Checklist %q already gone remotely, unmapping", op.Milestone)
			err = nil
		}
		if err == nil {
			st.RemoveChecklist(op.Milestone)
			res.Deleted++
		}

	case CreateComment:
		var id string
		id, err = r.create(ctx, op, func(ctx context.Context) (string, error) {
			return r.gw.CreateComment(ctx, cardID, op.Body)
		})
		if err == nil {
			st.SetComment(op.Date, state.CommentRecord{ID: id, Hash: op.Hash})
			res.Created++
		}

	case UpdateComment:
		err = r.retry(ctx, op, func(ctx context.Context) error {
			return r.gw.UpdateComment(ctx, cardID, op.RemoteID, op.Body)
		})
		if err == nil {
			st.SetComment(op.Date, state.CommentRecord{ID: op.RemoteID, Hash: op.Hash})
			res.Updated++
		}

	default:
		err = fmt.Errorf("unknown operation kind %q", op.Kind)
	}

	if err != nil {
		r.logger.Printf("WARNING: Failed to %s: %v", op, err)
		res.Failures = append(res.Failures, Failure{Op: op, Err: err})
		return
	}
	res.Applied = append(res.Applied, op)
}

// create runs a create call with retries and rejects empty IDs.
func (r *Reconciler) create(ctx context.Context, op Op, fn func(context.Context) (string, error)) (string, error) {
	var id string
	err := r.retry(ctx, op, func(ctx context.Context) error {
		var err error
		id, err = fn(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", ErrEmptyID
	}
	return id, nil
}

// retry calls fn until it succeeds, fails with a non-retryable error, or
// MaxAttempts is reached.
func (r *Reconciler) retry(ctx context.Context, op Op, fn func(context.Context) error) error {
	delay := r.cfg.Backoff
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || attempt >= r.cfg.MaxAttempts || !r.cfg.IsRetryable(err) {
			return err
		}
		r.logger.Printf("Retrying %s (attempt %d/%d) after %v: %v", op, attempt+1, r.cfg.MaxAttempts, delay, err)
		if serr := r.sleep(ctx, delay); serr != nil {
			return err
		}
		delay *= 2
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
