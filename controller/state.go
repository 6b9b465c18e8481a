/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package controller

import "slices"

// Status is the lifecycle state of one issue's iteration.
type Status string

const (
	// StatusPending means the issue was observed with the trigger label
	// but no work has started.
	StatusPending Status = "pending"
	// StatusInProgress means a change producer run for the current
	// iteration has been recorded but its pull request write has not.
	StatusInProgress Status = "in_progress"
	// StatusAwaitingReview means a pull request exists and the controller
	// is waiting for a reviewer verdict.
	StatusAwaitingReview Status = "awaiting_review"
	// StatusChangesRequested means the reviewer asked for changes and the
	// next iteration has not started yet.
	StatusChangesRequested Status = "changes_requested"
	// StatusApproved is terminal: the reviewer approved the pull request.
	StatusApproved Status = "approved"
	// StatusFailed is terminal: the iteration budget was exhausted or an
	// unrecoverable error occurred.
	StatusFailed Status = "failed"
	// StatusAbandoned is terminal: the trigger label was removed before a
	// terminal state was reached.
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether no further producer or gateway writes may occur
// for an issue in this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusFailed, StatusAbandoned:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return slices.Contains([]Status{
		StatusPending, StatusInProgress, StatusAwaitingReview,
		StatusChangesRequested, StatusApproved, StatusFailed, StatusAbandoned,
	}, s)
}

// IterationState is the per-issue record the controller reads and writes.
// It is persisted externally (embedded in an issue comment) so the process
// carries no state across restarts; it is loaded fresh each sweep.
type IterationState struct {
	IssueNumber int `json:"issue_number"`
	// PRNumber is set at most once: a pull request is created, never
	// recreated, for a given issue within its lifetime.
	PRNumber int `json:"pr_number,omitempty"`
	// IterationCount increments each time the change producer runs. It is
	// monotonically non-decreasing and never exceeds the configured
	// maximum.
	IterationCount int     `json:"iteration_count"`
	Status         Status  `json:"status"`
	LastVerdict    Verdict `json:"last_verdict,omitempty"`
}

// NewState returns the initial state for a freshly observed issue.
func NewState(issueNumber int) *IterationState {
	return &IterationState{
		IssueNumber: issueNumber,
		Status:      StatusPending,
	}
}

// Issue is a snapshot of a GitHub issue, immutable once fetched and
// refreshed each poll.
type Issue struct {
	Number int
	Title  string
	Body   string
	Labels []string
	Open   bool
}

// HasLabel reports whether the issue carries the named label.
func (i Issue) HasLabel(name string) bool {
	return slices.Contains(i.Labels, name)
}
