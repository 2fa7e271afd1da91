package orchestrator

import (
	"time"

	"github.com/mschirtzinger/logsync/internal/reconcile"
)

// UserReport is the outcome of one user's sync.
type UserReport struct {
	User       string
	StartedAt  time.Time
	FinishedAt time.Time

	Created  int
	Updated  int
	Deleted  int
	Deferred int
	// Failed counts operations that failed and will be retried next run.
	Failed    int
	Anomalies int

	// Planned holds the operations of a dry run.
	Planned []reconcile.Op

	// Err is set when the user was skipped or its state was not saved.
	Err error
}

// OK reports whether the user synced without a user-level error.
func (r UserReport) OK() bool {
	return r.Err == nil
}

// Summary is the outcome of a run.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Users      []UserReport
}

// FailedUsers returns the number of users with a user-level error.
func (s *Summary) FailedUsers() int {
	n := 0
	for _, u := range s.Users {
		if !u.OK() {
			n++
		}
	}
	return n
}

// FailedOps returns the number of failed operations across users.
func (s *Summary) FailedOps() int {
	n := 0
	for _, u := range s.Users {
		n += u.Failed
	}
	return n
}

// Observer receives run progress, e.g. to broadcast it to a dashboard.
// Calls are made from the run's goroutine and should not block.
type Observer interface {
	RunStarted(runID string, users int)
	UserSynced(runID string, rep UserReport)
	RunComplete(sum Summary)
}
