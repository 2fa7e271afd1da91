// Command logsync mirrors each user's Markdown work log from GitHub onto
// their Trello card: milestones become checklists, tasks become checklist
// items and daily log entries become comments.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/logsync/internal/ui"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "logsync",
		Short: "Sync Markdown work logs to Trello cards",
		Long: `logsync reads each configured user's Markdown log file from a branch of a
GitHub repository and mirrors it onto the user's Trello card:

  ## Milestones      each "### title" becomes a checklist, each "- [ ]" task an item
  ## Daily Logs      each "### YYYY-MM-DD" entry becomes one card comment

The sync is one-way. Run it from cron or CI with "logsync sync", or keep it
running with "logsync daemon".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				ui.DisableColor()
			} else {
				ui.Configure(os.Stdout)
			}
			opts.stderr = cmd.ErrOrStderr()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Config file (default: logsync.yaml, logsync.toml, logsync.json or config.json)")
	flags.StringVar(&opts.envFile, "env-file", "", "File with credentials to load into the environment (default: .env)")
	flags.StringVar(&opts.dir, "dir", "", "Directory to search for the config and .env files (default: working directory)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Only write logs to the log file")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "inspect", Title: "Inspection Commands:"},
		&cobra.Group{ID: "maint", Title: "Maintenance Commands:"},
	)

	rootCmd.AddCommand(
		newSyncCmd(opts),
		newDaemonCmd(opts),
		newStatusCmd(opts),
		newVerifyCmd(opts),
		newParseCmd(),
		newStateCmd(opts),
		newConfigCmd(opts),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
