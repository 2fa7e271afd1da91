package reconcile

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/mschirtzinger/logsync/internal/logdoc"
	"github.com/mschirtzinger/logsync/internal/trello/trellotest"
)

// largeLog builds a log with the given number of milestones, tasks per
// milestone and daily entries.
func largeLog(milestones, tasks, days int) string {
	var b strings.Builder
	b.WriteString("## Milestones\n")
	for m := 0; m < milestones; m++ {
		fmt.Fprintf(&b, "### Milestone %d\n", m)
		for t := 0; t < tasks; t++ {
			mark := " "
			if t%3 == 0 {
				mark = "x"
			}
			fmt.Fprintf(&b, "- [%s] task %d of milestone %d\n", mark, t, m)
		}
	}
	b.WriteString("\n## Daily Logs\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for d := 0; d < days; d++ {
		fmt.Fprintf(&b, "### %s\nWorked on item %d.\nReviewed PRs.\n\n", start.AddDate(0, 0, d).Format(logdoc.DateLayout), d)
	}
	return b.String()
}

func BenchmarkParse(b *testing.B) {
	raw := largeLog(20, 25, 365)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logdoc.Parse(raw)
	}
}

func BenchmarkPlan_Steady(b *testing.B) {
	doc := logdoc.Parse(largeLog(20, 25, 365))
	r := New(trellotest.New(), Config{MaxAttempts: 1, Logger: log.New(io.Discard, "", 0)})
	st, res := r.Reconcile(context.Background(), card, doc, nil)
	if res.Failed() > 0 {
		b.Fatalf("setup reconcile failed: %v", res.Err())
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if ops := Plan(doc, st); len(ops) != 0 {
			b.Fatalf("steady state planned %d ops", len(ops))
		}
	}
}

func BenchmarkReconcile_Initial(b *testing.B) {
	doc := logdoc.Parse(largeLog(10, 10, 60))
	logger := log.New(io.Discard, "", 0)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r := New(trellotest.New(), Config{MaxAttempts: 1, Logger: logger})
		if _, res := r.Reconcile(context.Background(), card, doc, nil); res.Failed() > 0 {
			b.Fatalf("reconcile failed: %v", res.Err())
		}
	}
}
