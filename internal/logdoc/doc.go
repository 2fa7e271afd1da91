// Package logdoc parses a user's Markdown work log into a canonical document.
//
// # Overview
//
// A log file has two sections, recognised by their level-2 heading text:
//
//	## 🏁 Milestones
//
//	### Setup
//	- [ ] init repo
//	- [x] write README
//
//	## 📆 Daily Logs
//
//	### 2024-01-05
//	Set up the repository.
//	---
//
// Milestones become checklists and their checkbox lines become checklist items.
// Each dated sub-heading in the daily logs section becomes one log entry, which
// is posted as a card comment.
//
// # Identity
//
// Milestones are identified by their title and tasks by (milestone, text). Both
// are normalized with NormalizeText, so whitespace edits do not change identity,
// but renaming a task is indistinguishable from deleting it and adding a new
// one. Log entries are identified by their date; a second entry with the same
// date replaces the first.
//
// # Lenient Parsing
//
// Parse never fails. Content it cannot place (a checkbox before any milestone,
// a duplicate milestone, a log heading without a date) is skipped and recorded
// as an Anomaly so the caller can log it.
package logdoc
