package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/mschirtzinger/logsync/internal/orchestrator"
)

// RunStartedData is the payload of run_started.
type RunStartedData struct {
	RunID string `json:"run_id"`
	Users int    `json:"users"`
}

// UserSyncedData is the payload of user_synced.
type UserSyncedData struct {
	RunID     string        `json:"run_id"`
	User      string        `json:"user"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Deleted   int           `json:"deleted"`
	Failed    int           `json:"failed"`
	Anomalies int           `json:"anomalies"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// RunCompleteData is the payload of run_complete and of the hello message.
type RunCompleteData struct {
	RunID       string           `json:"run_id"`
	DryRun      bool             `json:"dry_run,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	FailedUsers int              `json:"failed_users"`
	FailedOps   int              `json:"failed_ops"`
	Users       []UserSyncedData `json:"users"`
}

// Handler turns orchestrator events into dashboard messages. It implements
// orchestrator.Observer.
type Handler struct {
	server *Server
	logger *log.Logger
}

var _ orchestrator.Observer = (*Handler)(nil)

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{server: server, logger: logger}
}

// RunStarted implements orchestrator.Observer.
func (h *Handler) RunStarted(runID string, users int) {
	h.send(MessageTypeRunStarted, RunStartedData{RunID: runID, Users: users})
}

// UserSynced implements orchestrator.Observer.
func (h *Handler) UserSynced(runID string, rep orchestrator.UserReport) {
	h.send(MessageTypeUserSynced, userData(runID, rep))
}

// RunComplete implements orchestrator.Observer. The summary also becomes the
// hello payload for clients that connect later.
func (h *Handler) RunComplete(sum orchestrator.Summary) {
	data := RunCompleteData{
		RunID:       sum.RunID,
		DryRun:      sum.DryRun,
		StartedAt:   sum.StartedAt,
		FinishedAt:  sum.FinishedAt,
		FailedUsers: sum.FailedUsers(),
		FailedOps:   sum.FailedOps(),
		Users:       make([]UserSyncedData, 0, len(sum.Users)),
	}
	for _, rep := range sum.Users {
		data.Users = append(data.Users, userData(sum.RunID, rep))
	}

	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal run summary: %v", err)
		return
	}
	h.server.setHello(raw)
	h.server.Broadcast(Message{Type: MessageTypeRunComplete, Timestamp: time.Now(), Data: raw})
}

func (h *Handler) send(typ MessageType, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: raw})
}

func userData(runID string, rep orchestrator.UserReport) UserSyncedData {
	d := UserSyncedData{
		RunID:     runID,
		User:      rep.User,
		Created:   rep.Created,
		Updated:   rep.Updated,
		Deleted:   rep.Deleted,
		Failed:    rep.Failed,
		Anomalies: rep.Anomalies,
	}
	if !rep.FinishedAt.IsZero() {
		d.Duration = rep.FinishedAt.Sub(rep.StartedAt)
	}
	if rep.Err != nil {
		d.Error = rep.Err.Error()
	}
	return d
}
