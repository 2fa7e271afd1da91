// Package jsonfile stores sync state as one JSON file per user.
//
// Files are written with natefinch/atomic (temp file + rename in the same
// directory), so a crash mid-write leaves the previous file intact and other
// users' files are never opened for writing.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/mschirtzinger/logsync/internal/state"
)

// formatVersion is bumped on incompatible changes to the file layout.
const formatVersion = 1

const fileExt = ".json"

// File is the on-disk layout of one user's state.
type File struct {
	Version    int                            `json:"version" yaml:"version"`
	User       string                         `json:"user" yaml:"user"`
	SavedAt    time.Time                      `json:"saved_at" yaml:"saved_at"`
	Checklists map[string]string              `json:"checklists" yaml:"checklists"`
	Items      []Item                         `json:"items" yaml:"items"`
	Comments   map[string]state.CommentRecord `json:"comments" yaml:"comments"`
}

// Item is one task mapping; JSON objects cannot use struct keys.
type Item struct {
	Milestone string `json:"milestone" yaml:"milestone"`
	Text      string `json:"text" yaml:"text"`
	ID        string `json:"id" yaml:"id"`
	Checked   bool   `json:"checked" yaml:"checked"`
}

// Store implements state.Store on a directory of JSON files.
type Store struct {
	dir string
}

var _ state.Store = (*Store)(nil)

// Open returns a store rooted at dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(user string) string {
	return filepath.Join(s.dir, url.PathEscape(user)+fileExt)
}

// Load implements state.Store.Load.
func (s *Store) Load(ctx context.Context, user string) (*state.State, error) {
	if user == "" {
		return nil, state.ErrInvalidUser
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(user))
	if errors.Is(err, os.ErrNotExist) {
		return state.New(user), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file for %s: %w", user, err)
	}

	return Decode(data, user)
}

// Save implements state.Store.Save.
func (s *Store) Save(ctx context.Context, user string, st *state.State) error {
	if user == "" {
		return state.ErrInvalidUser
	}
	if st == nil {
		return errors.New("state is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(user, st)
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(s.path(user), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write state file for %s: %w", user, err)
	}
	return nil
}

// Users implements state.Store.Users.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var users []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		user, err := url.PathUnescape(strings.TrimSuffix(entry.Name(), fileExt))
		if err != nil {
			continue
		}
		users = append(users, user)
	}
	sort.Strings(users)
	return users, nil
}

// Close implements state.Store.Close.
func (s *Store) Close() error {
	return nil
}

// ToFile converts st to the file layout.
func ToFile(user string, st *state.State) File {
	f := File{
		Version:    formatVersion,
		User:       user,
		SavedAt:    time.Now().UTC(),
		Checklists: st.Checklists,
		Items:      make([]Item, 0, len(st.Items)),
		Comments:   st.Comments,
	}
	if f.Checklists == nil {
		f.Checklists = map[string]string{}
	}
	if f.Comments == nil {
		f.Comments = map[string]state.CommentRecord{}
	}
	for _, key := range st.SortedItemKeys() {
		rec := st.Items[key]
		f.Items = append(f.Items, Item{
			Milestone: key.Milestone,
			Text:      key.Text,
			ID:        rec.ID,
			Checked:   rec.Checked,
		})
	}
	return f
}

// FromFile validates f and converts it to a state for user.
func FromFile(f File, user string) (*state.State, error) {
	if f.Version != formatVersion {
		return nil, fmt.Errorf("unsupported state file version %d for %s (want %d)", f.Version, user, formatVersion)
	}
	if f.User != user {
		return nil, fmt.Errorf("state file belongs to %q, not %q", f.User, user)
	}

	st := state.New(user)
	for title, id := range f.Checklists {
		if id == "" {
			return nil, fmt.Errorf("checklist %q has no id", title)
		}
		st.SetChecklist(title, id)
	}
	for _, it := range f.Items {
		if it.ID == "" {
			return nil, fmt.Errorf("item %q/%q has no id", it.Milestone, it.Text)
		}
		st.SetItem(state.ItemKey{Milestone: it.Milestone, Text: it.Text}, state.ItemRecord{ID: it.ID, Checked: it.Checked})
	}
	for date, rec := range f.Comments {
		if rec.ID == "" {
			return nil, fmt.Errorf("comment %s has no id", date)
		}
		st.SetComment(date, rec)
	}
	return st, nil
}

// Encode renders st in the file layout.
func Encode(user string, st *state.State) ([]byte, error) {
	data, err := json.MarshalIndent(ToFile(user, st), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state for %s: %w", user, err)
	}
	return append(data, '\n'), nil
}

// Decode parses a state file. The user recorded in the file must match.
func Decode(data []byte, user string) (*state.State, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse state file for %s: %w", user, err)
	}
	return FromFile(f, user)
}
