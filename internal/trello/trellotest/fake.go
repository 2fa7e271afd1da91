// Package trellotest provides an in-memory Trello card store for tests.
package trellotest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mschirtzinger/logsync/internal/trello"
)

// Operation names recorded in Call.Op.
const (
	OpCreateChecklist   = "CreateChecklist"
	OpDeleteChecklist   = "DeleteChecklist"
	OpCreateItem        = "CreateItem"
	OpUpdateItemChecked = "UpdateItemChecked"
	OpDeleteItem        = "DeleteItem"
	OpCreateComment     = "CreateComment"
	OpUpdateComment     = "UpdateComment"
)

// Call records one mutating request made against the fake.
type Call struct {
	Op      string
	CardID  string
	ID      string // checklist, item or comment the call targets (or created)
	Name    string // checklist title, item text or comment text
	Checked bool
}

// Fake is an in-memory implementation of the card operations used by the
// reconciler. It is safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	checklists map[string]*trello.Checklist
	comments   map[string]*cardComment
	nextID     int
	calls      []Call

	// FailOn, if set, is consulted before each mutating call. A non-nil
	// error fails the call without changing the fake's contents.
	FailOn func(Call) error
}

type cardComment struct {
	cardID string
	seq    int
	trello.Comment
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		checklists: make(map[string]*trello.Checklist),
		comments:   make(map[string]*cardComment),
	}
}

func (f *Fake) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

// check applies FailOn. Callers hold f.mu.
func (f *Fake) check(c Call) error {
	if f.FailOn != nil {
		if err := f.FailOn(c); err != nil {
			return err
		}
	}
	return nil
}

// CreateChecklist implements the gateway operation.
func (f *Fake) CreateChecklist(ctx context.Context, cardID, title string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := Call{Op: OpCreateChecklist, CardID: cardID, Name: title}
	if err := f.check(c); err != nil {
		return "", err
	}
	id := f.newID("cl")
	f.checklists[id] = &trello.Checklist{ID: id, Name: title, IDCard: cardID}
	c.ID = id
	f.calls = append(f.calls, c)
	return id, nil
}

// DeleteChecklist implements the gateway operation.
func (f *Fake) DeleteChecklist(ctx context.Context, checklistID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := Call{Op: OpDeleteChecklist, ID: checklistID}
	if err := f.check(c); err != nil {
		return err
	}
	if _, ok := f.checklists[checklistID]; !ok {
		return &trello.APIError{Method: "DELETE", Path: "/checklists/" + checklistID, StatusCode: 404, Err: trello.ErrNotFound}
	}
	delete(f.checklists, checklistID)
	f.calls = append(f.calls, c)
	return nil
}

// CreateItem implements the gateway operation.
func (f *Fake) CreateItem(ctx context.Context, checklistID, text string, checked bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := Call{Op: OpCreateItem, ID: checklistID, Name: text, Checked: checked}
	if err := f.check(c); err != nil {
		return "", err
	}
	cl, ok := f.checklists[checklistID]
	if !ok {
		return "", &trello.APIError{Method: "POST", Path: "/checklists/" + checklistID + "/checkItems", StatusCode: 404, Err: trello.ErrNotFound}
	}
	id := f.newID("it")
	cl.CheckItems = append(cl.CheckItems, trello.CheckItem{
		ID:          id,
		Name:        text,
		State:       stateFor(checked),
		IDChecklist: checklistID,
	})
	c.ID = id
	f.calls = append(f.calls, c)
	return id, nil
}

// UpdateItemChecked implements the gateway operation.
func (f *Fake) UpdateItemChecked(ctx context.Context, cardID, itemID string, checked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := Call{Op: OpUpdateItemChecked, CardID: cardID, ID: itemID, Checked: checked}
	if err := f.check(c); err != nil {
		return err
	}
	item := f.findItem(itemID)
	if item == nil {
		return &trello.APIError{Method: "PUT", Path: "/cards/" + cardID + "/checkItem/" + itemID, StatusCode: 404, Err: trello.ErrNotFound}
	}
	item.State = stateFor(checked)
	c.Name = item.Name
	f.calls = append(f.calls, c)
	return nil
}

// DeleteItem implements the gateway operation.
func (f *Fake) DeleteItem(ctx context.Context, cardID, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := Call{Op: OpDeleteItem, CardID: cardID, ID: itemID}
	if err := f.check(c); err != nil {
		return err
	}
	for _, cl := range f.checklists {
		for i, it := range cl.CheckItems {
			if it.ID == itemID {
				c.Name = it.Name
				cl.CheckItems = append(cl.CheckItems[:i], cl.CheckItems[i+1:]...)
				f.calls = append(f.calls, c)
				return nil
			}
		}
	}
	return &trello.APIError{Method: "DELETE", Path: "/cards/" + cardID + "/checkItem/" + itemID, StatusCode: 404, Err: trello.ErrNotFound}
}

// CreateComment implements the gateway operation.
func (f *Fake) CreateComment(ctx context.Context, cardID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := Call{Op: OpCreateComment, CardID: cardID, Name: text}
	if err := f.check(c); err != nil {
		return "", err
	}
	id := f.newID("cm")
	cc := &cardComment{cardID: cardID, seq: f.nextID}
	cc.ID = id
	cc.Data.Text = text
	f.comments[id] = cc
	c.ID = id
	f.calls = append(f.calls, c)
	return id, nil
}

// UpdateComment implements the gateway operation.
func (f *Fake) UpdateComment(ctx context.Context, cardID, commentID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := Call{Op: OpUpdateComment, CardID: cardID, ID: commentID, Name: text}
	if err := f.check(c); err != nil {
		return err
	}
	cc, ok := f.comments[commentID]
	if !ok {
		return &trello.APIError{Method: "PUT", Path: "/actions/" + commentID, StatusCode: 404, Err: trello.ErrNotFound}
	}
	cc.Data.Text = text
	f.calls = append(f.calls, c)
	return nil
}

// ListChecklists returns the card's checklists in creation order.
func (f *Fake) ListChecklists(ctx context.Context, cardID string) ([]trello.Checklist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []trello.Checklist
	for _, cl := range f.checklists {
		if cl.IDCard != cardID {
			continue
		}
		cp := *cl
		cp.CheckItems = append([]trello.CheckItem(nil), cl.CheckItems...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return idSeq(out[i].ID) < idSeq(out[j].ID) })
	return out, nil
}

// ListComments returns the card's comments, newest first like Trello.
func (f *Fake) ListComments(ctx context.Context, cardID string) ([]trello.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var all []*cardComment
	for _, cc := range f.comments {
		if cc.cardID == cardID {
			all = append(all, cc)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq > all[j].seq })

	out := make([]trello.Comment, 0, len(all))
	for _, cc := range all {
		out = append(out, cc.Comment)
	}
	return out, nil
}

// Calls returns the successful mutating calls in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns the successful calls of one operation.
func (f *Fake) CallsOf(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log but keeps the card contents.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Item returns the item with the given ID, if present.
func (f *Fake) Item(itemID string) (trello.CheckItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if it := f.findItem(itemID); it != nil {
		return *it, true
	}
	return trello.CheckItem{}, false
}

// Comment returns the text of the comment with the given ID, if present.
func (f *Fake) Comment(commentID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cc, ok := f.comments[commentID]
	if !ok {
		return "", false
	}
	return cc.Data.Text, true
}

// Drop removes an object behind the engine's back, as a manual edit on the
// card would. It returns false if nothing matched.
func (f *Fake) Drop(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.checklists[id]; ok {
		delete(f.checklists, id)
		return true
	}
	if _, ok := f.comments[id]; ok {
		delete(f.comments, id)
		return true
	}
	for _, cl := range f.checklists {
		for i, it := range cl.CheckItems {
			if it.ID == id {
				cl.CheckItems = append(cl.CheckItems[:i], cl.CheckItems[i+1:]...)
				return true
			}
		}
	}
	return false
}

func (f *Fake) findItem(itemID string) *trello.CheckItem {
	for _, cl := range f.checklists {
		for i := range cl.CheckItems {
			if cl.CheckItems[i].ID == itemID {
				return &cl.CheckItems[i]
			}
		}
	}
	return nil
}

func stateFor(checked bool) string {
	if checked {
		return trello.StateComplete
	}
	return trello.StateIncomplete
}

func idSeq(id string) int {
	var prefix string
	var n int
	fmt.Sscanf(id, "%2s-%d", &prefix, &n)
	return n
}
