package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/logsync/internal/daemon"
	"github.com/mschirtzinger/logsync/internal/orchestrator"
	"github.com/mschirtzinger/logsync/internal/ui"
)

func newSyncCmd(opts *globalOptions) *cobra.Command {
	var (
		users  []string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:     "sync",
		GroupID: "sync",
		Short:   "Run one sync pass for all configured users",
		Long: `Run one sync pass: for each configured user, fetch the log file, parse it,
and bring the Trello card's checklists and comments in line with it.

A failure for one user (missing file, Trello errors) is reported and the
remaining users are still synced. Failed operations are retried on the
next run.

With --dry-run, the planned operations are printed and nothing is changed
on Trello or in the sync state.

Examples:
  logsync sync                      # sync everyone
  logsync sync --user alice         # sync one user
  logsync sync --dry-run            # show what would change`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.cfg.RequireSecrets(!dryRun); err != nil {
				return err
			}
			if _, err := a.selectUsers(users); err != nil {
				return err
			}

			ctx, cancel := notifyContext(cmd.Context())
			defer cancel()

			out := cmd.OutOrStdout()
			if dryRun {
				sum, err := a.runOnce(ctx, runOptions{only: users, dryRun: true})
				if err != nil {
					return err
				}
				printPlan(out, sum)
				return nil
			}

			var sum *orchestrator.Summary
			ran, err := daemon.RunLocked(a.cfg.Daemon.LockPath, a.logger("sync"), func() error {
				var runErr error
				sum, runErr = a.runOnce(ctx, runOptions{only: users})
				return runErr
			})
			if err != nil {
				return err
			}
			if !ran {
				fmt.Fprintf(out, "%s Another sync is running, skipped\n", ui.RenderWarn("⚠"))
				return nil
			}
			printSummary(out, sum)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&users, "user", "u", nil, "Only sync this user (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print planned operations without changing anything")
	return cmd
}

// printSummary writes a per-user table and a totals line.
func printSummary(w io.Writer, sum *orchestrator.Summary) {
	rows := make([][]string, 0, len(sum.Users))
	for _, rep := range sum.Users {
		note := ""
		if rep.Err != nil {
			note = rep.Err.Error()
		} else if rep.Deferred > 0 {
			note = fmt.Sprintf("%d deletion(s) deferred", rep.Deferred)
		}
		rows = append(rows, []string{
			ui.Status(rep.OK() && rep.Failed == 0),
			rep.User,
			strconv.Itoa(rep.Created),
			strconv.Itoa(rep.Updated),
			strconv.Itoa(rep.Deleted),
			strconv.Itoa(rep.Failed),
			strconv.Itoa(rep.Anomalies),
			note,
		})
	}
	_ = ui.Table(w, []string{"", "USER", "CREATED", "UPDATED", "DELETED", "FAILED", "IGNORED", "NOTE"}, rows)

	elapsed := sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond)
	switch {
	case sum.FailedUsers() > 0 || sum.FailedOps() > 0:
		fmt.Fprintf(w, "%s Sync finished in %v with %d failed user(s) and %d failed operation(s); failures are retried next run\n",
			ui.RenderWarn("⚠"), elapsed, sum.FailedUsers(), sum.FailedOps())
	default:
		fmt.Fprintf(w, "%s Sync complete in %v\n", ui.RenderPass("✓"), elapsed)
	}
	fmt.Fprintf(w, "   Run: %s\n", ui.RenderMuted(sum.RunID))
}

// printPlan writes the operations of a dry run.
func printPlan(w io.Writer, sum *orchestrator.Summary) {
	for _, rep := range sum.Users {
		fmt.Fprintf(w, "%s %s\n", ui.RenderTitle(rep.User), ui.RenderMuted(fmt.Sprintf("(%d operation(s))", len(rep.Planned))))
		if rep.Err != nil {
			fmt.Fprintf(w, "   %s %v\n", ui.RenderFail("✗"), rep.Err)
			continue
		}
		if len(rep.Planned) == 0 {
			fmt.Fprintf(w, "   %s up to date\n", ui.RenderPass("✓"))
			continue
		}
		for _, op := range rep.Planned {
			fmt.Fprintf(w, "   %s %s\n", ui.RenderAccent("•"), op)
		}
	}
}

// notifyContext returns a context cancelled on SIGINT or SIGTERM.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
