package logdoc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical date format used for log entry keys and headings.
const DateLayout = "2006-01-02"

// Document is the parsed snapshot of one Markdown log file.
type Document struct {
	Milestones []Milestone
	LogEntries []LogEntry // oldest first, one per date
	Anomalies  []Anomaly
}

// Milestone is a titled group of tasks. It maps to one remote checklist.
type Milestone struct {
	Title string
	Tasks []Task
}

// Task is a single checkbox line. Text is the identity within its milestone.
type Task struct {
	Text    string
	Checked bool
}

// LogEntry is one dated block of the daily logs section.
type LogEntry struct {
	Date time.Time // UTC midnight
	Body string
}

// Key returns the identity key of the entry: its date in DateLayout.
func (e LogEntry) Key() string {
	return e.Date.Format(DateLayout)
}

// Comment returns the text posted to the remote card for this entry.
func (e LogEntry) Comment() string {
	return FormatComment(e)
}

// Hash returns the content fingerprint of the entry body.
func (e LogEntry) Hash() string {
	return HashBody(e.Body)
}

// AnomalyKind classifies content the parser skipped.
type AnomalyKind string

const (
	AnomalyDuplicateMilestone AnomalyKind = "duplicate_milestone"
	AnomalyDuplicateTask      AnomalyKind = "duplicate_task"
	AnomalyOrphanTask         AnomalyKind = "task_outside_milestone"
	AnomalyBadLogDate         AnomalyKind = "unparseable_log_date"
	AnomalyDuplicateLogDate   AnomalyKind = "duplicate_log_date"
)

// Anomaly records a line that was ignored or overridden during parsing.
type Anomaly struct {
	Line int // 1-based
	Kind AnomalyKind
	Text string
}

func (a Anomaly) String() string {
	return fmt.Sprintf("line %d: %s: %q", a.Line, a.Kind, a.Text)
}

// Milestone returns the milestone with the given title, or nil.
func (d *Document) Milestone(title string) *Milestone {
	for i := range d.Milestones {
		if d.Milestones[i].Title == title {
			return &d.Milestones[i]
		}
	}
	return nil
}

// HasTask reports whether the document contains the task under the milestone.
func (d *Document) HasTask(milestone, text string) bool {
	m := d.Milestone(milestone)
	if m == nil {
		return false
	}
	for _, t := range m.Tasks {
		if t.Text == text {
			return true
		}
	}
	return false
}

// TaskCount returns the number of tasks across all milestones.
func (d *Document) TaskCount() int {
	n := 0
	for _, m := range d.Milestones {
		n += len(m.Tasks)
	}
	return n
}

// NormalizeText trims s and collapses internal whitespace runs to one space.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FormatComment renders a log entry as a comment: a date heading followed by the body.
func FormatComment(e LogEntry) string {
	header := "### " + e.Key()
	if e.Body == "" {
		return header
	}
	return header + "\n" + e.Body
}

// HashBody returns the hex SHA-256 of a log entry body.
func HashBody(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
