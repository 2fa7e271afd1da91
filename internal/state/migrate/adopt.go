package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/mschirtzinger/logsync/internal/logdoc"
	"github.com/mschirtzinger/logsync/internal/state"
	"github.com/mschirtzinger/logsync/internal/trello"
)

// CardReader lists the remote objects on a card.
type CardReader interface {
	ListChecklists(ctx context.Context, cardID string) ([]trello.Checklist, error)
	ListComments(ctx context.Context, cardID string) ([]trello.Comment, error)
}

// AdoptReport counts what Adopt matched.
type AdoptReport struct {
	Checklists int
	Items      int
	Comments   int
	// Stale counts adopted comments whose text differs from the document;
	// the next sync updates them.
	Stale int
	// Duplicates lists names that matched more than one remote object.
	// Only the first match is adopted.
	Duplicates []string
}

// Adopt builds a state for doc from objects already on the card, matching
// checklists by name, items by text within their checklist and comments by
// their "### <date>" header line. It is meant for a one-time switch from a
// sync that kept no ID mapping; regular syncs never match by name.
//
// Adopted items keep their remote checked flag and stale comments get an
// empty hash, so the next sync corrects both.
func Adopt(ctx context.Context, reader CardReader, user, cardID string, doc *logdoc.Document) (*state.State, *AdoptReport, error) {
	checklists, err := reader.ListChecklists(ctx, cardID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list checklists: %w", err)
	}
	comments, err := reader.ListComments(ctx, cardID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list comments: %w", err)
	}

	st := state.New(user)
	rep := &AdoptReport{}

	byName := make(map[string]trello.Checklist)
	for _, cl := range checklists {
		name := logdoc.NormalizeText(cl.Name)
		if _, dup := byName[name]; dup {
			rep.Duplicates = append(rep.Duplicates, "checklist "+name)
			continue
		}
		byName[name] = cl
	}

	for _, m := range doc.Milestones {
		cl, ok := byName[m.Title]
		if !ok {
			continue
		}
		st.SetChecklist(m.Title, cl.ID)
		rep.Checklists++

		items := make(map[string]trello.CheckItem)
		for _, it := range cl.CheckItems {
			text := logdoc.NormalizeText(it.Name)
			if _, dup := items[text]; dup {
				rep.Duplicates = append(rep.Duplicates, "item "+m.Title+"/"+text)
				continue
			}
			items[text] = it
		}
		for _, task := range m.Tasks {
			it, ok := items[task.Text]
			if !ok {
				continue
			}
			st.SetItem(state.ItemKey{Milestone: m.Title, Text: task.Text}, state.ItemRecord{ID: it.ID, Checked: it.Checked()})
			rep.Items++
		}
	}

	// Trello lists comments newest first; keep the oldest per header.
	byHeader := make(map[string]trello.Comment)
	for i := len(comments) - 1; i >= 0; i-- {
		c := comments[i]
		text := strings.TrimSpace(c.Text())
		if !strings.HasPrefix(text, "###") {
			continue
		}
		header, _, _ := strings.Cut(text, "\n")
		header = strings.TrimSpace(header)
		if _, dup := byHeader[header]; dup {
			rep.Duplicates = append(rep.Duplicates, "comment "+header)
			continue
		}
		byHeader[header] = c
	}

	for _, entry := range doc.LogEntries {
		c, ok := byHeader["### "+entry.Key()]
		if !ok {
			continue
		}
		rec := state.CommentRecord{ID: c.ID, Hash: entry.Hash()}
		if strings.TrimSpace(c.Text()) != entry.Comment() {
			rec.Hash = ""
			rep.Stale++
		}
		st.SetComment(entry.Key(), rec)
		rep.Comments++
	}

	return st, rep, nil
}
