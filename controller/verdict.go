/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package controller

import (
	"sort"
	"strings"
	"time"
)

// Verdict is the reviewer's decision signal.
type Verdict string

const (
	// VerdictNone means no qualifying reviewer comment exists yet. It is
	// an ordinary outcome, not an error.
	VerdictNone             Verdict = ""
	VerdictApproved         Verdict = "approved"
	VerdictChangesRequested Verdict = "changes_requested"
)

// verdictMarker prefixes reviewer decision comments, matched
// case-insensitively against the first line of a comment.
const verdictMarker = "STATUS:"

// Comment is one pull request conversation comment.
type Comment struct {
	Author    string
	CreatedAt time.Time
	Body      string
}

// ResolveVerdict scans comments in reverse chronological order and returns
// the first qualifying verdict along with the body of the comment that
// carried it. A comment qualifies when its first line starts with the
// marker token followed by APPROVED or CHANGES_REQUESTED; when reviewer is
// non-empty only that author's comments qualify, and comments by self never
// qualify. The function is total: with no qualifying comment it returns
// VerdictNone and an empty string.
func ResolveVerdict(comments []Comment, reviewer, self string) (Verdict, string) {
	ordered := make([]Comment, len(comments))
	copy(ordered, comments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	for _, c := range ordered {
		if self != "" && c.Author == self {
			continue
		}
		if reviewer != "" && c.Author != reviewer {
			continue
		}
		if v := parseVerdictLine(c.Body); v != VerdictNone {
			return v, c.Body
		}
	}
	return VerdictNone, ""
}

// parseVerdictLine extracts a verdict from a comment body, looking only at
// the first line.
func parseVerdictLine(body string) Verdict {
	line, _, _ := strings.Cut(strings.TrimSpace(body), "\n")
	line = strings.TrimSpace(line)

	if len(line) < len(verdictMarker) || !strings.EqualFold(line[:len(verdictMarker)], verdictMarker) {
		return VerdictNone
	}

	rest := strings.TrimSpace(line[len(verdictMarker):])
	switch strings.ToUpper(rest) {
	case "APPROVED":
		return VerdictApproved
	case "CHANGES_REQUESTED":
		return VerdictChangesRequested
	}
	return VerdictNone
}
