package state

import (
	"context"
	"time"
)

// RunRecord is the outcome of one user's sync in one run.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	User       string    `json:"user"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Deleted    int       `json:"deleted"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// OK reports whether the user's run completed without a user-level error.
// Individual failed operations do not count; they are retried next run.
func (r *RunRecord) OK() bool {
	return r.Error == ""
}

// RunRecorder is implemented by stores that keep run history.
type RunRecorder interface {
	RecordRun(ctx context.Context, rec RunRecord) error
	LastRun(ctx context.Context, user string) (*RunRecord, error)
}

// AsRunRecorder returns the store's RunRecorder, if it has one.
func AsRunRecorder(s Store) (RunRecorder, bool) {
	r, ok := s.(RunRecorder)
	return r, ok
}
