package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/logsync/internal/logdoc"
	"github.com/mschirtzinger/logsync/internal/state/migrate"
	"github.com/mschirtzinger/logsync/internal/ui"
)

func newStateCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "state",
		GroupID: "maint",
		Short:   "Export, import and seed the sync state",
	}
	cmd.AddCommand(
		newStateExportCmd(opts),
		newStateImportCmd(opts),
		newStateAdoptCmd(opts),
	)
	return cmd
}

func newStateExportCmd(opts *globalOptions) *cobra.Command {
	var (
		format string
		output string
		users  []string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the sync state of all users as one JSON or YAML bundle",
		Long: `Write the sync state of every user (or the given users) as a single bundle.
The bundle can be imported into another store with "logsync state import",
for example to move from the json driver to sqlite.`,
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

			b, err := migrate.Export(cmd.Context(), store, users)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				bw := bufio.NewWriter(f)
				if err := migrate.Write(bw, b, migrate.Format(format)); err != nil {
					f.Close()
					return err
				}
				if err := bw.Flush(); err != nil {
					f.Close()
					return fmt.Errorf("failed to write %s: %w", output, err)
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("failed to close %s: %w", output, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s Exported %d user(s) to %s\n", ui.RenderPass("✓"), len(b.Users), output)
				return nil
			}
			return migrate.Write(w, b, migrate.Format(format))
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Bundle format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	cmd.Flags().StringArrayVarP(&users, "user", "u", nil, "Only export this user (repeatable)")
	return cmd
}

func newStateImportCmd(opts *globalOptions) *cobra.Command {
	var overwrite, dryRun bool

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Load a state bundle or a legacy sync_state.json into the store",
		Long: `Load a bundle written by "logsync state export" (JSON or YAML) into the
configured store. A sync_state.json written by the earlier sync script is
also accepted; its cards are matched to users through trello_card_id in
the config.

Users that already have saved state are skipped unless --overwrite is set.
Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			var data []byte
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			store, err := a.openStore()
			if err != nil {
				return fmt.Errorf("failed to open state store: %w", err)
			}
			defer store.Close()

			res, err := migrate.Import(cmd.Context(), store, data, migrate.ImportOptions{
				Overwrite: overwrite,
				DryRun:    dryRun,
				Cards:     a.cfg.CardUsers(),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			kind := "bundle"
			if res.Legacy {
				kind = "legacy state file"
			}
			verb := "Imported"
			if dryRun {
				verb = "Would import"
			}
			fmt.Fprintf(out, "%s %s %d user(s) from %s: %s\n", ui.RenderPass("✓"), verb, len(res.Imported), kind, strings.Join(res.Imported, ", "))
			if len(res.Skipped) > 0 {
				fmt.Fprintf(out, "%s Skipped %d user(s) with existing state (use --overwrite): %s\n",
					ui.RenderWarn("⚠"), len(res.Skipped), strings.Join(res.Skipped, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace state that already exists")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate without saving")
	return cmd
}

func newStateAdoptCmd(opts *globalOptions) *cobra.Command {
	var (
		users []string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "adopt",
		Short: "Seed empty sync state from what is already on the cards",
		Long: `Build each user's sync state by matching the current log file against the
objects already on the card: checklists and items by name, comments by
their "### YYYY-MM-DD" header.

Use this once when switching from a sync that kept no ID mapping, so the
first run does not recreate everything. Users with saved state are skipped
unless --force is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.cfg.RequireSecrets(true); err != nil {
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

			src, err := a.newSource()
			if err != nil {
				return fmt.Errorf("failed to create file source: %w", err)
			}
			client := a.newTrello()

			ctx, cancel := notifyContext(cmd.Context())
			defer cancel()

			out := cmd.OutOrStdout()
			var failed int
			for _, u := range selected {
				if err := u.Validate(); err != nil {
					failed++
					fmt.Fprintf(out, "%s %v\n", ui.RenderFail("✗"), err)
					continue
				}
				if !force {
					existing, err := store.Load(ctx, u.Name)
					if err != nil {
						failed++
						fmt.Fprintf(out, "%s %s: failed to load state: %v\n", ui.RenderFail("✗"), u.Name, err)
						continue
					}
					if !existing.IsEmpty() {
						fmt.Fprintf(out, "%s %s: already has state, skipped (use --force)\n", ui.RenderWarn("⚠"), u.Name)
						continue
					}
				}

				raw, err := src.Fetch(ctx, u.Branch, u.LogFilePath)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s %s: failed to fetch %s: %v\n", ui.RenderFail("✗"), u.Name, u.LogFilePath, err)
					continue
				}
				st, rep, err := migrate.Adopt(ctx, client, u.Name, u.CardID, logdoc.Parse(raw))
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s %s: %v\n", ui.RenderFail("✗"), u.Name, err)
					continue
				}
				if err := store.Save(ctx, u.Name, st); err != nil {
					failed++
					fmt.Fprintf(out, "%s %s: failed to save state: %v\n", ui.RenderFail("✗"), u.Name, err)
					continue
				}

				fmt.Fprintf(out, "%s %s: adopted %d checklist(s), %d item(s), %d comment(s)",
					ui.RenderPass("✓"), u.Name, rep.Checklists, rep.Items, rep.Comments)
				if rep.Stale > 0 {
					fmt.Fprintf(out, ", %d comment(s) will be updated", rep.Stale)
				}
				fmt.Fprintln(out)
				for _, d := range rep.Duplicates {
					fmt.Fprintf(out, "   %s\n", ui.RenderMuted("duplicate on card, first kept: "+d))
				}
			}
			if failed > 0 {
				return fmt.Errorf("adopt failed for %d user(s)", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&users, "user", "u", nil, "Only adopt this user (repeatable)")
	cmd.Flags().BoolVar(&force, "force", false, "Replace existing state")
	return cmd
}
