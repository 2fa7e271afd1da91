package logdoc

import (
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
)

var isoDatePattern = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)

// writtenLayouts are tried against the whole heading text after the ISO form.
var writtenLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"Monday, January 2, 2006",
	"Mon, Jan 2, 2006",
}

// slashDates recognises DD/MM/YYYY headings.
var slashDates = func() *when.Parser {
	w := when.New(nil)
	w.Add(common.All...)
	return w
}()

// slashBase anchors partial slash dates; results without a year are rejected anyway.
var slashBase = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// ParseDate extracts a calendar date from a log sub-heading.
// It returns false when the heading contains no recognisable date.
func ParseDate(heading string) (time.Time, bool) {
	heading = strings.TrimSpace(heading)
	if heading == "" {
		return time.Time{}, false
	}

	if m := isoDatePattern.FindString(heading); m != "" {
		if t, err := time.Parse(DateLayout, m); err == nil {
			return t, true
		}
	}

	for _, layout := range writtenLayouts {
		if t, err := time.Parse(layout, heading); err == nil {
			return civil(t), true
		}
	}

	r, err := slashDates.Parse(heading, slashBase)
	if err != nil || r == nil {
		return time.Time{}, false
	}
	// "05/01" alone would silently take the base year.
	if strings.Count(r.Text, "/") != 2 {
		return time.Time{}, false
	}
	return civil(r.Time), true
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
