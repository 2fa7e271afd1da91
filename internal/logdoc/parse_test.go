package logdoc

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		t.Fatalf("bad test date %q: %v", s, err)
	}
	return d
}

const sampleLog = `# Intern log

Some intro text that is ignored.
- [ ] not a task, no section yet

## 🏁 Milestones

### Setup
- [ ] init repo
- [x] write README

### Backend API
- [X] design schema
* [ ] add  endpoints
- plain bullet ignored

## 📆 Daily Logs

### 2024-01-10
Worked on the API.

Reviewed PRs.
---
trailing text after the rule is dropped

### 2024-01-05

Set up the repository.

### Someday
lost body

## Notes
- [ ] outside any section
`

func TestParse_Sample(t *testing.T) {
	doc := Parse(sampleLog)

	wantMilestones := []Milestone{
		{Title: "Setup", Tasks: []Task{
			{Text: "init repo", Checked: false},
			{Text: "write README", Checked: true},
		}},
		{Title: "Backend API", Tasks: []Task{
			{Text: "design schema", Checked: true},
			{Text: "add endpoints", Checked: false},
		}},
	}
	if diff := cmp.Diff(wantMilestones, doc.Milestones); diff != "" {
		t.Errorf("milestones mismatch (-want +got):\n%s", diff)
	}

	wantEntries := []LogEntry{
		{Date: date(t, "2024-01-05"), Body: "Set up the repository."},
		{Date: date(t, "2024-01-10"), Body: "Worked on the API.\n\nReviewed PRs."},
	}
	if diff := cmp.Diff(wantEntries, doc.LogEntries); diff != "" {
		t.Errorf("log entries mismatch (-want +got):\n%s", diff)
	}

	if len(doc.Anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d: %v", len(doc.Anomalies), doc.Anomalies)
	}
	if doc.Anomalies[0].Kind != AnomalyBadLogDate {
		t.Errorf("anomaly kind = %s, want %s", doc.Anomalies[0].Kind, AnomalyBadLogDate)
	}
}

func TestParse_Empty(t *testing.T) {
	for _, raw := range []string{"", "\n\n", "just text", "## Milestones\n", "## Daily Logs\n### \n"} {
		doc := Parse(raw)
		if len(doc.Milestones) != 0 || len(doc.LogEntries) != 0 {
			t.Errorf("Parse(%q) = %+v, want empty document", raw, doc)
		}
	}
}

func TestParse_Anomalies(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantKinds []AnomalyKind
		wantTasks map[string][]string
	}{
		{
			name:      "checkbox before milestone",
			raw:       "## Milestones\n- [ ] orphan\n### A\n- [ ] a1\n",
			wantKinds: []AnomalyKind{AnomalyOrphanTask},
			wantTasks: map[string][]string{"A": {"a1"}},
		},
		{
			name:      "duplicate milestone keeps first",
			raw:       "## Milestones\n### A\n- [ ] a1\n### B\n- [ ] b1\n### A\n- [ ] a2\n",
			wantKinds: []AnomalyKind{AnomalyDuplicateMilestone},
			wantTasks: map[string][]string{"A": {"a1"}, "B": {"b1"}},
		},
		{
			name:      "duplicate task keeps first",
			raw:       "## Milestones\n### A\n- [ ] a1\n- [x] a1\n",
			wantKinds: []AnomalyKind{AnomalyDuplicateTask},
			wantTasks: map[string][]string{"A": {"a1"}},
		},
		{
			name:      "unparseable log date",
			raw:       "## Daily Logs\n### yesterday-ish\nbody\n",
			wantKinds: []AnomalyKind{AnomalyBadLogDate},
			wantTasks: map[string][]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Parse(tt.raw)

			var kinds []AnomalyKind
			for _, a := range doc.Anomalies {
				kinds = append(kinds, a.Kind)
			}
			if diff := cmp.Diff(tt.wantKinds, kinds); diff != "" {
				t.Errorf("anomalies mismatch (-want +got):\n%s", diff)
			}

			got := make(map[string][]string)
			for _, m := range doc.Milestones {
				texts := []string{}
				for _, task := range m.Tasks {
					texts = append(texts, task.Text)
				}
				got[m.Title] = texts
			}
			if diff := cmp.Diff(tt.wantTasks, got); diff != "" {
				t.Errorf("tasks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_DuplicateLogDateIsEdit(t *testing.T) {
	raw := "## Daily Logs\n### 2024-02-01\nfirst\n### 2024-02-01 (again)\nsecond\n"
	doc := Parse(raw)

	if len(doc.LogEntries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(doc.LogEntries))
	}
	if doc.LogEntries[0].Body != "second" {
		t.Errorf("body = %q, want later entry to win", doc.LogEntries[0].Body)
	}
	if len(doc.Anomalies) != 1 || doc.Anomalies[0].Kind != AnomalyDuplicateLogDate {
		t.Errorf("expected one duplicate_log_date anomaly, got %v", doc.Anomalies)
	}
}

func TestParse_LogsSortedOldestFirst(t *testing.T) {
	raw := "## Daily Logs\n### 2024-01-10\nb\n### 2024-01-05\na\n### 2023-12-31\nz\n"
	doc := Parse(raw)

	var keys []string
	for _, e := range doc.LogEntries {
		keys = append(keys, e.Key())
	}
	want := []string{"2023-12-31", "2024-01-05", "2024-01-10"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_CRLFAndDeepHeadings(t *testing.T) {
	raw := "## Daily Logs\r\n### 2024-03-01\r\n#### Morning\r\ncoffee\r\n"
	doc := Parse(raw)

	if len(doc.LogEntries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(doc.LogEntries))
	}
	if got, want := doc.LogEntries[0].Body, "#### Morning\ncoffee"; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestParse_SectionBoundaryEndsEntry(t *testing.T) {
	raw := "## Daily Logs\n### 2024-03-01\nline one\n\n## Milestones\n### M\n- [ ] t\n"
	doc := Parse(raw)

	if len(doc.LogEntries) != 1 || doc.LogEntries[0].Body != "line one" {
		t.Errorf("entries = %+v", doc.LogEntries)
	}
	if len(doc.Milestones) != 1 || len(doc.Milestones[0].Tasks) != 1 {
		t.Errorf("milestones = %+v", doc.Milestones)
	}
}

func TestParse_SubHeadingWithoutSpace(t *testing.T) {
	raw := "## Milestones\n###Setup\n- [ ] init repo\n" +
		"## Daily Logs\n### 2024-01-05\nday one\n###2024-01-06\nday two\n#tag stays in body\n"
	doc := Parse(raw)

	wantMilestones := []Milestone{{Title: "Setup", Tasks: []Task{{Text: "init repo"}}}}
	if diff := cmp.Diff(wantMilestones, doc.Milestones); diff != "" {
		t.Errorf("milestones mismatch (-want +got):\n%s", diff)
	}
	wantLogs := []LogEntry{
		{Date: date(t, "2024-01-05"), Body: "day one"},
		{Date: date(t, "2024-01-06"), Body: "day two\n#tag stays in body"},
	}
	if diff := cmp.Diff(wantLogs, doc.LogEntries); diff != "" {
		t.Errorf("log entries mismatch (-want +got):\n%s", diff)
	}
	if len(doc.Anomalies) != 0 {
		t.Errorf("expected no anomalies, got %v", doc.Anomalies)
	}
}

func TestDocument_Helpers(t *testing.T) {
	doc := Parse(sampleLog)

	if !doc.HasTask("Setup", "init repo") {
		t.Error("HasTask(Setup, init repo) = false, want true")
	}
	if doc.HasTask("Setup", "design schema") {
		t.Error("HasTask(Setup, design schema) = true, want false")
	}
	if doc.Milestone("Missing") != nil {
		t.Error("Milestone(Missing) should be nil")
	}
	if got := doc.TaskCount(); got != 4 {
		t.Errorf("TaskCount() = %d, want 4", got)
	}
}

func TestFormatCommentAndHash(t *testing.T) {
	e := LogEntry{Date: date(t, "2024-01-05"), Body: "did things"}

	if got, want := e.Comment(), "### 2024-01-05\ndid things"; got != want {
		t.Errorf("Comment() = %q, want %q", got, want)
	}
	if e.Hash() != HashBody("did things") {
		t.Error("Hash() should match HashBody(body)")
	}
	if HashBody("a") == HashBody("b") {
		t.Error("different bodies should hash differently")
	}
	if len(e.Hash()) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(e.Hash()))
	}
}

func TestNormalizeText(t *testing.T) {
	tests := map[string]string{
		"  init   repo ": "init repo",
		"a\tb":           "a b",
		"":               "",
	}
	for in, want := range tests {
		if got := NormalizeText(in); got != want {
			t.Errorf("NormalizeText(%q) = %q, want %q", in, got, want)
		}
	}
}
