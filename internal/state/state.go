// Package state holds the durable mapping from document identities to remote
// object IDs, one record set per user.
package state

import (
	"context"
	"errors"
	"log"
	"sort"
)

// ErrInvalidUser is returned by stores for an empty user name.
var ErrInvalidUser = errors.New("user name is required")

// ItemKey identifies a task: the milestone title and the task text.
type ItemKey struct {
	Milestone string `json:"milestone"`
	Text      string `json:"text"`
}

// ItemRecord is the remote checklist item for a task and its last synced flag.
type ItemRecord struct {
	ID      string `json:"id"`
	Checked bool   `json:"checked"`
}

// CommentRecord is the remote comment for a log entry and the hash of the
// body it was last written with.
type CommentRecord struct {
	ID   string `json:"id"`
	Hash string `json:"hash"`
}

// State is the sync state of one user.
//
// The maps are the only record of which remote objects the engine owns. An
// entry is added only after the remote create succeeded and removed only
// after the remote delete succeeded.
type State struct {
	User       string
	Checklists map[string]string // milestone title -> checklist ID
	Items      map[ItemKey]ItemRecord
	Comments   map[string]CommentRecord // log date (2006-01-02) -> comment
}

// New returns an empty state for user.
func New(user string) *State {
	return &State{
		User:       user,
		Checklists: make(map[string]string),
		Items:      make(map[ItemKey]ItemRecord),
		Comments:   make(map[string]CommentRecord),
	}
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := New(s.User)
	for k, v := range s.Checklists {
		c.Checklists[k] = v
	}
	for k, v := range s.Items {
		c.Items[k] = v
	}
	for k, v := range s.Comments {
		c.Comments[k] = v
	}
	return c
}

// ensure initializes nil maps, e.g. on a zero State or after decoding.
func (s *State) ensure() {
	if s.Checklists == nil {
		s.Checklists = make(map[string]string)
	}
	if s.Items == nil {
		s.Items = make(map[ItemKey]ItemRecord)
	}
	if s.Comments == nil {
		s.Comments = make(map[string]CommentRecord)
	}
}

// IsEmpty reports whether nothing has been synced for the user.
func (s *State) IsEmpty() bool {
	return len(s.Checklists) == 0 && len(s.Items) == 0 && len(s.Comments) == 0
}

// SetChecklist records the remote checklist for a milestone.
func (s *State) SetChecklist(title, id string) {
	s.ensure()
	s.Checklists[title] = id
}

// RemoveChecklist forgets a milestone's checklist.
func (s *State) RemoveChecklist(title string) {
	delete(s.Checklists, title)
}

// SetItem records the remote item for a task.
func (s *State) SetItem(key ItemKey, rec ItemRecord) {
	s.ensure()
	s.Items[key] = rec
}

// RemoveItem forgets a task's item.
func (s *State) RemoveItem(key ItemKey) {
	delete(s.Items, key)
}

// SetComment records the remote comment for a log date.
func (s *State) SetComment(date string, rec CommentRecord) {
	s.ensure()
	s.Comments[date] = rec
}

// ItemsFor returns the item keys belonging to a milestone, sorted by text.
func (s *State) ItemsFor(milestone string) []ItemKey {
	var keys []ItemKey
	for k := range s.Items {
		if k.Milestone == milestone {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Text < keys[j].Text })
	return keys
}

// SortedItemKeys returns all item keys ordered by milestone, then text.
func (s *State) SortedItemKeys() []ItemKey {
	keys := make([]ItemKey, 0, len(s.Items))
	for k := range s.Items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Milestone != keys[j].Milestone {
			return keys[i].Milestone < keys[j].Milestone
		}
		return keys[i].Text < keys[j].Text
	})
	return keys
}

// SortedChecklistTitles returns all mapped milestone titles in order.
func (s *State) SortedChecklistTitles() []string {
	titles := make([]string, 0, len(s.Checklists))
	for t := range s.Checklists {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles
}

// SortedCommentDates returns all mapped log dates, oldest first.
func (s *State) SortedCommentDates() []string {
	dates := make([]string, 0, len(s.Comments))
	for d := range s.Comments {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// Store persists State per user.
//
// Save must be atomic per user: an interrupted Save leaves the previously
// saved state of that user readable and never touches other users.
type Store interface {
	// Load returns the saved state for user, or an empty state if none exists.
	Load(ctx context.Context, user string) (*State, error)

	// Save replaces the saved state for user.
	Save(ctx context.Context, user string, st *State) error

	// Users lists the users that have saved state, sorted.
	Users(ctx context.Context) ([]string, error)

	Close() error
}

// LoadOrEmpty loads a user's state, falling back to an empty state when the
// stored state cannot be read. A corrupt store then causes duplicate remote
// objects on the next run instead of stopping the sync.
func LoadOrEmpty(ctx context.Context, store Store, user string, logger *log.Logger) *State {
	st, err := store.Load(ctx, user)
	if err != nil {
		if logger != nil {
			logger.Printf("WARNING: failed to load state for %s, starting empty: %v", user, err)
		}
		return New(user)
	}
	if st == nil {
		return New(user)
	}
	st.User = user
	st.ensure()
	return st
}
