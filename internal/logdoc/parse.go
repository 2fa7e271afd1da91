package logdoc

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	headingPattern  = regexp.MustCompile(`^(#{1,6})\s+(.*?)(?:\s+#+)?\s*$`)
	compactPattern  = regexp.MustCompile(`^###([^#\s].*?)(?:\s+#+)?\s*$`)
	checkboxPattern = regexp.MustCompile(`^[-*+]\s*\[([ xX])\]\s*(.*)$`)
	rulePattern     = regexp.MustCompile(`^-{3,}\s*$`)
)

type section int

const (
	sectionNone section = iota
	sectionMilestones
	sectionLogs
)

// parser holds the line-by-line state of one Parse call.
type parser struct {
	doc       *Document
	section   section
	milestone *Milestone
	skipping  bool // the current milestone heading was a duplicate

	entry   *pendingEntry
	entries map[string]LogEntry
}

type pendingEntry struct {
	entry  LogEntry
	line   int
	lines  []string
	closed bool // a thematic break ended the body
}

// Parse turns raw Markdown into a Document. It never fails: unrecognised or
// conflicting lines are skipped and recorded in Document.Anomalies.
func Parse(raw string) *Document {
	p := &parser{
		doc:     &Document{},
		entries: make(map[string]LogEntry),
	}

	for i, line := range strings.Split(raw, "\n") {
		p.line(i+1, strings.TrimRight(line, "\r"))
	}
	p.flushEntry()

	p.doc.LogEntries = make([]LogEntry, 0, len(p.entries))
	for _, e := range p.entries {
		p.doc.LogEntries = append(p.doc.LogEntries, e)
	}
	sort.Slice(p.doc.LogEntries, func(i, j int) bool {
		return p.doc.LogEntries[i].Date.Before(p.doc.LogEntries[j].Date)
	})

	return p.doc
}

func (p *parser) line(n int, line string) {
	trimmed := strings.TrimSpace(line)

	if m := headingPattern.FindStringSubmatch(trimmed); m != nil {
		level := len(m[1])
		switch {
		case level <= 2:
			p.enterSection(m[2])
			return
		case level == 3:
			p.subHeading(n, m[2])
			return
		}
		// Deeper headings are ordinary content.
	}

	// Inside a section "###Title" still opens a sub-heading. Levels 1 and 2
	// need the space so "#tag" text cannot end a section.
	if p.section != sectionNone {
		if m := compactPattern.FindStringSubmatch(trimmed); m != nil {
			p.subHeading(n, m[1])
			return
		}
	}

	switch p.section {
	case sectionMilestones:
		p.milestoneLine(n, trimmed)
	case sectionLogs:
		p.logLine(trimmed, line)
	}
}

func (p *parser) enterSection(title string) {
	p.flushEntry()
	p.milestone = nil
	p.skipping = false

	name := strings.ToLower(strings.TrimLeftFunc(title, func(r rune) bool {
		return !unicode.IsLetter(r)
	}))
	name = NormalizeText(name)

	switch name {
	case "milestones":
		p.section = sectionMilestones
	case "daily logs", "daily log", "logs":
		p.section = sectionLogs
	default:
		p.section = sectionNone
	}
}

func (p *parser) subHeading(n int, text string) {
	switch p.section {
	case sectionMilestones:
		title := NormalizeText(text)
		p.milestone = nil
		p.skipping = false
		if title == "" {
			p.skipping = true
			return
		}
		if p.doc.Milestone(title) != nil {
			p.anomaly(n, AnomalyDuplicateMilestone, title)
			p.skipping = true
			return
		}
		p.doc.Milestones = append(p.doc.Milestones, Milestone{Title: title})
		p.milestone = &p.doc.Milestones[len(p.doc.Milestones)-1]

	case sectionLogs:
		p.flushEntry()
		date, ok := ParseDate(text)
		if !ok {
			p.anomaly(n, AnomalyBadLogDate, text)
			return
		}
		p.entry = &pendingEntry{entry: LogEntry{Date: date}, line: n}
	}
}

func (p *parser) milestoneLine(n int, trimmed string) {
	m := checkboxPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return
	}
	text := NormalizeText(m[2])
	if text == "" {
		return
	}
	if p.milestone == nil {
		if !p.skipping {
			p.anomaly(n, AnomalyOrphanTask, text)
		}
		return
	}
	for _, t := range p.milestone.Tasks {
		if t.Text == text {
			p.anomaly(n, AnomalyDuplicateTask, p.milestone.Title+" / "+text)
			return
		}
	}
	p.milestone.Tasks = append(p.milestone.Tasks, Task{
		Text:    text,
		Checked: m[1] != " ",
	})
}

func (p *parser) logLine(trimmed, raw string) {
	if p.entry == nil || p.entry.closed {
		return
	}
	if rulePattern.MatchString(trimmed) {
		p.entry.closed = true
		return
	}
	p.entry.lines = append(p.entry.lines, strings.TrimRight(raw, " \t"))
}

func (p *parser) flushEntry() {
	if p.entry == nil {
		return
	}
	e := p.entry.entry
	e.Body = joinTrimmed(p.entry.lines)
	key := e.Key()
	if _, exists := p.entries[key]; exists {
		p.anomaly(p.entry.line, AnomalyDuplicateLogDate, key)
	}
	p.entries[key] = e
	p.entry = nil
}

func (p *parser) anomaly(n int, kind AnomalyKind, text string) {
	p.doc.Anomalies = append(p.doc.Anomalies, Anomaly{Line: n, Kind: kind, Text: text})
}

// joinTrimmed joins lines, dropping leading and trailing blank lines.
func joinTrimmed(lines []string) string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}
