// Package migrate moves sync state between stores and formats.
//
// Export writes every user's state into a single bundle (JSON or YAML) and
// Import loads a bundle into any store. Import also understands the
// sync_state.json file written by the earlier Python sync script, and Adopt
// seeds state from objects that already exist on a card.
package migrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/logsync/internal/state"
	"github.com/mschirtzinger/logsync/internal/state/jsonfile"
)

// bundleVersion is bumped on incompatible changes to the bundle layout.
const bundleVersion = 1

// Format is a bundle encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Bundle holds the state of several users.
type Bundle struct {
	Version    int             `json:"version" yaml:"version"`
	ExportedAt time.Time       `json:"exported_at" yaml:"exported_at"`
	Users      []jsonfile.File `json:"users" yaml:"users"`
}

// Export reads the state of users from store. An empty users list exports
// every user the store knows.
func Export(ctx context.Context, store state.Store, users []string) (*Bundle, error) {
	if len(users) == 0 {
		var err error
		users, err = store.Users(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}
	}

	b := &Bundle{Version: bundleVersion, ExportedAt: time.Now().UTC()}
	for _, user := range users {
		st, err := store.Load(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("failed to load state for %s: %w", user, err)
		}
		b.Users = append(b.Users, jsonfile.ToFile(user, st))
	}
	sort.Slice(b.Users, func(i, j int) bool { return b.Users[i].User < b.Users[j].User })
	return b, nil
}

// Write encodes b to w.
func Write(w io.Writer, b *Bundle, format Format) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("failed to encode bundle: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("failed to encode bundle: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q (want json or yaml)", format)
	}
	return nil
}

// ImportOptions controls Import.
type ImportOptions struct {
	// Overwrite replaces state that already exists in the store. Without
	// it, users with saved state are skipped.
	Overwrite bool

	// DryRun decodes and validates without saving.
	DryRun bool

	// Cards maps card IDs to user names. It is required for legacy files,
	// which are keyed by card.
	Cards map[string]string
}

// ImportResult reports what Import did.
type ImportResult struct {
	Legacy   bool
	Imported []string
	Skipped  []string
}

// Import decodes data (a JSON or YAML bundle, or a legacy sync_state.json)
// and saves each user's state into store.
func Import(ctx context.Context, store state.Store, data []byte, opts ImportOptions) (*ImportResult, error) {
	states, legacy, err := Decode(data, opts.Cards)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Legacy: legacy}
	for _, st := range states {
		if !opts.Overwrite {
			existing, err := store.Load(ctx, st.User)
			if err != nil {
				return res, fmt.Errorf("failed to check existing state for %s: %w", st.User, err)
			}
			if !existing.IsEmpty() {
				res.Skipped = append(res.Skipped, st.User)
				continue
			}
		}
		if !opts.DryRun {
			if err := store.Save(ctx, st.User, st); err != nil {
				return res, fmt.Errorf("failed to save state for %s: %w", st.User, err)
			}
		}
		res.Imported = append(res.Imported, st.User)
	}
	return res, nil
}

// Decode parses a bundle or legacy file into per-user states, sorted by user.
func Decode(data []byte, cards map[string]string) (states []*state.State, legacy bool, err error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("empty input")
	}

	var b Bundle
	if trimmed[0] == '{' {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return nil, false, fmt.Errorf("failed to parse JSON: %w", err)
		}
		if _, ok := probe["version"]; !ok {
			states, err := decodeLegacy(trimmed, cards)
			return states, true, err
		}
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return nil, false, fmt.Errorf("failed to parse bundle: %w", err)
		}
	} else if err := yaml.Unmarshal(trimmed, &b); err != nil {
		return nil, false, fmt.Errorf("failed to parse bundle: %w", err)
	}

	if b.Version != bundleVersion {
		return nil, false, fmt.Errorf("unsupported bundle version %d (want %d)", b.Version, bundleVersion)
	}
	seen := make(map[string]bool)
	for _, f := range b.Users {
		if f.User == "" {
			return nil, false, fmt.Errorf("bundle entry without user")
		}
		if seen[f.User] {
			return nil, false, fmt.Errorf("user %s appears twice in bundle", f.User)
		}
		seen[f.User] = true
		st, err := jsonfile.FromFile(f, f.User)
		if err != nil {
			return nil, false, err
		}
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].User < states[j].User })
	return states, false, nil
}

// legacyCard is one card entry of sync_state.json.
type legacyCard struct {
	Checklists map[string]json.RawMessage `json:"checklists"`
}

// decodeLegacy converts {card_id: {"checklists": {title: id}}}. Entries for
// cards not in cards and checklist values that are not IDs are ignored.
func decodeLegacy(data []byte, cards map[string]string) ([]*state.State, error) {
	var file map[string]legacyCard
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse legacy state: %w", err)
	}

	var states []*state.State
	for cardID, card := range file {
		user, ok := cards[cardID]
		if !ok {
			continue
		}
		st := state.New(user)
		for title, raw := range card.Checklists {
			var id string
			if err := json.Unmarshal(raw, &id); err != nil || id == "" {
				continue
			}
			st.SetChecklist(title, id)
		}
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].User < states[j].User })
	return states, nil
}
