package trello

import "time"

// Check item states as Trello reports them.
const (
	StateComplete   = "complete"
	StateIncomplete = "incomplete"
)

// Checklist is a card checklist with its items.
type Checklist struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	IDCard     string      `json:"idCard"`
	CheckItems []CheckItem `json:"checkItems"`
}

// CheckItem is one checklist entry.
type CheckItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	State       string `json:"state"`
	IDChecklist string `json:"idChecklist"`
}

// Checked reports whether the item is complete.
func (i CheckItem) Checked() bool {
	return i.State == StateComplete
}

// Comment is a commentCard action.
type Comment struct {
	ID   string    `json:"id"`
	Date time.Time `json:"date"`
	Data struct {
		Text string `json:"text"`
	} `json:"data"`
}

// Text returns the comment body.
func (c Comment) Text() string {
	return c.Data.Text
}

func stateFor(checked bool) string {
	if checked {
		return StateComplete
	}
	return StateIncomplete
}
