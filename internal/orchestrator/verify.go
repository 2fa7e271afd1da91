package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/mschirtzinger/logsync/internal/state"
	"github.com/mschirtzinger/logsync/internal/trello"
)

// CardReader lists the remote objects on a card.
type CardReader interface {
	ListChecklists(ctx context.Context, cardID string) ([]trello.Checklist, error)
	ListComments(ctx context.Context, cardID string) ([]trello.Comment, error)
}

// Drift describes how a user's sync state differs from the card.
type Drift struct {
	User string

	// Mapped objects that no longer exist on the card.
	MissingChecklists []string
	MissingItems      []state.ItemKey
	MissingComments   []string

	// Items whose remote checked flag differs from the recorded one.
	CheckedMismatch []state.ItemKey

	// Checklists on the card that the state does not map.
	Unmanaged []string
}

// Clean reports whether no drift was found.
func (d *Drift) Clean() bool {
	return len(d.MissingChecklists) == 0 && len(d.MissingItems) == 0 &&
		len(d.MissingComments) == 0 && len(d.CheckedMismatch) == 0 &&
		len(d.Unmanaged) == 0
}

// Verify compares the stored state of u with its card. It only reads: the
// state is never modified, so missing objects stay mapped until a sync
// deletes or recreates them.
func Verify(ctx context.Context, reader CardReader, store state.Store, u User) (*Drift, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	st, err := store.Load(ctx, u.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	checklists, err := reader.ListChecklists(ctx, u.CardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checklists: %w", err)
	}
	comments, err := reader.ListComments(ctx, u.CardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	remoteLists := make(map[string]bool, len(checklists))
	remoteItems := make(map[string]trello.CheckItem)
	for _, cl := range checklists {
		remoteLists[cl.ID] = true
		for _, it := range cl.CheckItems {
			remoteItems[it.ID] = it
		}
	}
	remoteComments := make(map[string]bool, len(comments))
	for _, c := range comments {
		remoteComments[c.ID] = true
	}

	d := &Drift{User: u.Name}
	mappedLists := make(map[string]bool, len(st.Checklists))
	for _, title := range st.SortedChecklistTitles() {
		id := st.Checklists[title]
		mappedLists[id] = true
		if !remoteLists[id] {
			d.MissingChecklists = append(d.MissingChecklists, title)
		}
	}
	for _, key := range st.SortedItemKeys() {
		rec := st.Items[key]
		it, ok := remoteItems[rec.ID]
		switch {
		case !ok:
			d.MissingItems = append(d.MissingItems, key)
		case it.Checked() != rec.Checked:
			d.CheckedMismatch = append(d.CheckedMismatch, key)
		}
	}
	for _, date := range st.SortedCommentDates() {
		if !remoteComments[st.Comments[date].ID] {
			d.MissingComments = append(d.MissingComments, date)
		}
	}
	for _, cl := range checklists {
		if !mappedLists[cl.ID] {
			d.Unmanaged = append(d.Unmanaged, cl.Name)
		}
	}
	sort.Strings(d.Unmanaged)
	return d, nil
}
