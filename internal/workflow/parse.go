package workflow

import (
	"regexp"
	"strings"
)

var (
	// lineItem matches a line that begins with an integer followed by a period.
	lineItem = regexp.MustCompile(`^\s*\d+\.\s*(.*)$`)
	// inlineMarker matches the same numbering anywhere in the text, including
	// glued to a preceding word ("Plan:1."). The leading character is part of
	// the match because RE2 has no lookbehind; inlineItems trims it.
	inlineMarker = regexp.MustCompile(`(?:^|[^\d.])\d+\.\s*`)
)

// ParsePlan extracts ordered plan items from planner output.
//
// Line-initial numbered items are preferred. When none exist, the whole text
// is split on the numbering pattern and the segments after the first marker
// are kept. Duplicates are preserved; order is generation order. An empty
// result means the output had no recognizable plan.
func ParsePlan(raw string) []string {
	var items []string
	for _, line := range strings.Split(raw, "\n") {
		m := lineItem.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if item := cleanItem(m[1]); item != "" {
			items = append(items, item)
		}
	}
	if len(items) > 0 {
		return items
	}

	return inlineItems(raw)
}

// inlineItems splits raw on inline markers and keeps the segments after the
// first one. A marker directly followed by a digit is a decimal ("3.5") or a
// version ("1.2.3") and is skipped.
func inlineItems(raw string) []string {
	var starts, ends []int
	for _, loc := range inlineMarker.FindAllStringIndex(raw, -1) {
		start, end := loc[0], loc[1]
		if raw[end-1] == '.' && end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
			continue
		}
		for start < end && (raw[start] < '0' || raw[start] > '9') {
			start++
		}
		starts = append(starts, start)
		ends = append(ends, end)
	}

	var items []string
	for i := range starts {
		stop := len(raw)
		if i+1 < len(starts) {
			stop = starts[i+1]
		}
		if item := cleanItem(raw[ends[i]:stop]); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// cleanItem collapses internal whitespace so every plan item is a single line.
func cleanItem(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
