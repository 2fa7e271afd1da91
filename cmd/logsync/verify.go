package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/logsync/internal/orchestrator"
	"github.com/mschirtzinger/logsync/internal/ui"
)

func newVerifyCmd(opts *globalOptions) *cobra.Command {
	var users []string

	cmd := &cobra.Command{
		Use:     "verify",
		GroupID: "inspect",
		Short:   "Compare the sync state with the Trello cards",
		Long: `Read each user's card and report where it differs from the sync state:
mapped checklists, items or comments that were removed on Trello, items
whose checked state was changed on Trello, and checklists the sync does not
manage. Nothing is changed; the next sync corrects what it owns.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.cfg.RequireTrelloSecrets(); err != nil {
				return err
			}
			selected, err := a.selectUsers(users)
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return fmt.Errorf("failed to open state store: %w", err)
			}
			defer store.Close()

			ctx, cancel := notifyContext(cmd.Context())
			defer cancel()

			client := a.newTrello()
			out := cmd.OutOrStdout()
			var failed int
			for _, u := range selected {
				drift, err := orchestrator.Verify(ctx, client, store, u)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s %s: %v\n", ui.RenderFail("✗"), u.Name, err)
					continue
				}
				printDrift(out, drift)
			}
			if failed > 0 {
				return fmt.Errorf("verification failed for %d user(s)", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&users, "user", "u", nil, "Only verify this user (repeatable)")
	return cmd
}

func printDrift(w io.Writer, d *orchestrator.Drift) {
	if d.Clean() {
		fmt.Fprintf(w, "%s %s: card matches sync state\n", ui.RenderPass("✓"), d.User)
		return
	}
	fmt.Fprintf(w, "%s %s: drift found\n", ui.RenderWarn("⚠"), d.User)
	for _, title := range d.MissingChecklists {
		fmt.Fprintf(w, "   missing checklist   %s\n", title)
	}
	for _, key := range d.MissingItems {
		fmt.Fprintf(w, "   missing item        %s / %s\n", key.Milestone, key.Text)
	}
	for _, key := range d.CheckedMismatch {
		fmt.Fprintf(w, "   checked changed     %s / %s\n", key.Milestone, key.Text)
	}
	for _, date := range d.MissingComments {
		fmt.Fprintf(w, "   missing comment     %s\n", date)
	}
	for _, name := range d.Unmanaged {
		fmt.Fprintf(w, "   %s\n", ui.RenderMuted("unmanaged checklist "+name))
	}
}
