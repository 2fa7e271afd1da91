package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/logsync/internal/logdoc"
	"github.com/mschirtzinger/logsync/internal/ui"
)

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "parse FILE",
		GroupID: "inspect",
		Short:   "Print how a log file is understood",
		Long: `Parse a Markdown log file the way a sync would and print the milestones,
tasks and daily log entries found, followed by any ignored lines.

Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			printDocument(cmd.OutOrStdout(), logdoc.Parse(string(data)))
			return nil
		},
	}
}

func printDocument(w io.Writer, doc *logdoc.Document) {
	fmt.Fprintf(w, "%s\n", ui.RenderTitle(fmt.Sprintf("Milestones (%d, %d tasks)", len(doc.Milestones), doc.TaskCount())))
	for _, m := range doc.Milestones {
		fmt.Fprintf(w, "  %s\n", m.Title)
		for _, t := range m.Tasks {
			mark := "[ ]"
			if t.Checked {
				mark = ui.RenderPass("[x]")
			}
			fmt.Fprintf(w, "    %s %s\n", mark, t.Text)
		}
	}

	fmt.Fprintf(w, "%s\n", ui.RenderTitle(fmt.Sprintf("Daily logs (%d)", len(doc.LogEntries))))
	for _, e := range doc.LogEntries {
		fmt.Fprintf(w, "  %s %s\n", ui.RenderAccent(e.Key()), ui.RenderMuted(fmt.Sprintf("(%d bytes)", len(e.Body))))
	}

	if len(doc.Anomalies) > 0 {
		fmt.Fprintf(w, "%s\n", ui.RenderWarn(fmt.Sprintf("Ignored (%d)", len(doc.Anomalies))))
		for _, a := range doc.Anomalies {
			fmt.Fprintf(w, "  %s\n", a)
		}
	}
}
