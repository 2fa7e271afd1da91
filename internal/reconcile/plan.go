package reconcile

import (
	"fmt"

	"github.com/mschirtzinger/logsync/internal/logdoc"
	"github.com/mschirtzinger/logsync/internal/state"
)

// OpKind names a remote operation.
type OpKind string

const (
	CreateChecklist OpKind = "create_checklist"
	DeleteChecklist OpKind = "delete_checklist"
	CreateItem      OpKind = "create_item"
	UpdateItem      OpKind = "update_item"
	DeleteItem      OpKind = "delete_item"
	CreateComment   OpKind = "create_comment"
	UpdateComment   OpKind = "update_comment"
)

// Op is one planned remote operation.
type Op struct {
	Kind OpKind

	// Milestone is the checklist title for checklist and item operations.
	Milestone string
	// Text is the task text for item operations.
	Text    string
	Checked bool

	// Date is the log entry key for comment operations; Body is the
	// comment text and Hash the hash of the entry body.
	Date string
	Body string
	Hash string

	// RemoteID is the mapped ID of the object being updated or deleted.
	RemoteID string
}

func (op Op) String() string {
	switch op.Kind {
	case CreateChecklist, DeleteChecklist:
		return fmt.Sprintf("%s %q", op.Kind, op.Milestone)
	case CreateItem, UpdateItem:
		return fmt.Sprintf("%s %q/%q checked=%t", op.Kind, op.Milestone, op.Text, op.Checked)
	case DeleteItem:
		return fmt.Sprintf("%s %q/%q", op.Kind, op.Milestone, op.Text)
	default:
		return fmt.Sprintf("%s %s", op.Kind, op.Date)
	}
}

// Plan returns the operations needed to converge the remote card to doc,
// given the state of the previous sync. It does not modify st.
//
// Order: checklist creations each followed by their item creations and
// updates in document order, then item deletions, then checklist deletions,
// then comment creations and updates oldest first.
func Plan(doc *logdoc.Document, st *state.State) []Op {
	if st == nil {
		st = state.New("")
	}
	var ops []Op

	for _, m := range doc.Milestones {
		if _, ok := st.Checklists[m.Title]; !ok {
			ops = append(ops, Op{Kind: CreateChecklist, Milestone: m.Title})
		}
		for _, task := range m.Tasks {
			key := state.ItemKey{Milestone: m.Title, Text: task.Text}
			rec, ok := st.Items[key]
			switch {
			case !ok:
				ops = append(ops, Op{Kind: CreateItem, Milestone: m.Title, Text: task.Text, Checked: task.Checked})
			case rec.Checked != task.Checked:
				ops = append(ops, Op{Kind: UpdateItem, Milestone: m.Title, Text: task.Text, Checked: task.Checked, RemoteID: rec.ID})
			}
		}
	}

	for _, key := range st.SortedItemKeys() {
		if doc.HasTask(key.Milestone, key.Text) {
			continue
		}
		ops = append(ops, Op{Kind: DeleteItem, Milestone: key.Milestone, Text: key.Text, RemoteID: st.Items[key].ID})
	}
	for _, title := range st.SortedChecklistTitles() {
		if doc.Milestone(title) != nil {
			continue
		}
		ops = append(ops, Op{Kind: DeleteChecklist, Milestone: title, RemoteID: st.Checklists[title]})
	}

	for _, entry := range doc.LogEntries {
		date := entry.Key()
		hash := entry.Hash()
		rec, ok := st.Comments[date]
		switch {
		case !ok:
			ops = append(ops, Op{Kind: CreateComment, Date: date, Body: entry.Comment(), Hash: hash})
		case rec.Hash != hash:
			ops = append(ops, Op{Kind: UpdateComment, Date: date, Body: entry.Comment(), Hash: hash, RemoteID: rec.ID})
		}
	}

	return ops
}
