package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/logsync/internal/state"
	"github.com/mschirtzinger/logsync/internal/ui"
)

// counter is implemented by stores that can count mappings without loading
// them.
type counter interface {
	Counts(ctx context.Context, user string) (checklists, items, comments int, err error)
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: "inspect",
		Short:   "Show mapped objects and the last run per user",
		Long: `Show, for each configured user and each user with saved state, how many
checklists, items and comments the sync state maps and how the last run
ended. Run history is only kept by the sqlite store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			store, err := a.openStore()
			if err != nil {
				return fmt.Errorf("failed to open state store: %w", err)
			}
			defer store.Close()

			return printStatus(cmd.Context(), cmd.OutOrStdout(), store, a.cfg.UserNames())
		},
	}
}

func printStatus(ctx context.Context, w io.Writer, store state.Store, configured []string) error {
	stored, err := store.Users(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	known := make(map[string]bool)
	var names []string
	for _, n := range append(append([]string(nil), configured...), stored...) {
		if n != "" && !known[n] {
			known[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)

	inConfig := make(map[string]bool, len(configured))
	for _, n := range configured {
		inConfig[n] = true
	}

	recorder, hasRuns := state.AsRunRecorder(store)
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		checklists, items, comments, err := countFor(ctx, store, name)
		if err != nil {
			return err
		}

		lastRun := "-"
		if hasRuns {
			rec, err := recorder.LastRun(ctx, name)
			if err != nil {
				return err
			}
			lastRun = describeRun(rec)
		}

		user := name
		if !inConfig[name] {
			user += ui.RenderMuted(" (not configured)")
		}
		rows = append(rows, []string{
			user,
			strconv.Itoa(checklists),
			strconv.Itoa(items),
			strconv.Itoa(comments),
			lastRun,
		})
	}

	if len(rows) == 0 {
		fmt.Fprintf(w, "%s No users configured and no saved state\n", ui.RenderWarn("⚠"))
		return nil
	}
	return ui.Table(w, []string{"USER", "CHECKLISTS", "ITEMS", "COMMENTS", "LAST RUN"}, rows)
}

func countFor(ctx context.Context, store state.Store, user string) (checklists, items, comments int, err error) {
	if c, ok := store.(counter); ok {
		return c.Counts(ctx, user)
	}
	st, err := store.Load(ctx, user)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to load state for %s: %w", user, err)
	}
	return len(st.Checklists), len(st.Items), len(st.Comments), nil
}

func describeRun(rec *state.RunRecord) string {
	if rec == nil {
		return ui.RenderMuted("never")
	}
	when := rec.FinishedAt.Local().Format(time.DateTime)
	if !rec.OK() {
		return fmt.Sprintf("%s %s %s", ui.Status(false), when, rec.Error)
	}
	summary := fmt.Sprintf("+%d ~%d -%d", rec.Created, rec.Updated, rec.Deleted)
	if rec.Failed > 0 {
		return fmt.Sprintf("%s %s %s, %d failed", ui.RenderWarn("⚠"), when, summary, rec.Failed)
	}
	return fmt.Sprintf("%s %s %s", ui.Status(true), when, summary)
}
