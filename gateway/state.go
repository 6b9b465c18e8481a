/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/go-github/v84/github"

	"github.com/megashkola/code-agent/controller"
	"github.com/megashkola/code-agent/retry"
)

// Iteration state lives inside an agent-authored issue comment, between
// HTML comment markers so it renders invisibly on GitHub. The comment is
// edited in place on every save; the newest marker comment wins on load.
const (
	stateOpenMarker  = "<!-- code-agent:state"
	stateCloseMarker = "-->"
	stateHeading     = "Code Agent is tracking this issue. Do not edit this comment."
)

// embedState renders the comment body carrying the state record.
func embedState(st *controller.IterationState) (string, error) {
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding state: %w", err)
	}
	return fmt.Sprintf("%s\n\n%s\n%s\n%s\n", stateHeading, stateOpenMarker, raw, stateCloseMarker), nil
}

// extractState parses a state record out of a comment body. The second
// return is false when the body carries no marker or the payload does not
// parse; a broken payload is treated as absent rather than fatal.
func extractState(body string) (*controller.IterationState, bool) {
	_, after, found := strings.Cut(body, stateOpenMarker)
	if !found {
		return nil, false
	}
	payload, _, found := strings.Cut(after, stateCloseMarker)
	if !found {
		return nil, false
	}

	var st controller.IterationState
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &st); err != nil {
		return nil, false
	}
	if !st.Status.Valid() {
		return nil, false
	}
	return &st, true
}

// LoadState implements controller.PRGateway, scanning the issue's comments
// for the newest state record.
func (c *Client) LoadState(ctx context.Context, issueNumber int) (*controller.IterationState, error) {
	_, st, err := c.findStateComment(ctx, issueNumber)
	return st, err
}

// SaveState implements controller.PRGateway, editing the existing state
// comment or creating it on first save.
func (c *Client) SaveState(ctx context.Context, st *controller.IterationState) error {
	body, err := embedState(st)
	if err != nil {
		return err
	}

	commentID, _, err := c.findStateComment(ctx, st.IssueNumber)
	if err != nil {
		return err
	}

	if commentID == 0 {
		return c.PostComment(ctx, st.IssueNumber, body)
	}
	_, _, err = retry.Do2(ctx, c.retryCfg, "edit_state_comment", IsTransient, func() (*github.IssueComment, *github.Response, error) {
		return c.gh.Issues.EditComment(ctx, c.owner, c.repo, commentID, &github.IssueComment{
			Body: github.Ptr(body),
		})
	})
	if err != nil {
		return fmt.Errorf("updating state comment on #%d: %w", st.IssueNumber, err)
	}
	return nil
}

// findStateComment returns the newest comment carrying a state marker,
// along with the parsed state. A zero comment ID means none exists.
func (c *Client) findStateComment(ctx context.Context, issueNumber int) (int64, *controller.IterationState, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var commentID int64
	var state *controller.IterationState
	for {
		comments, resp, err := retry.Do2(ctx, c.retryCfg, "list_state_comments", IsTransient, func() ([]*github.IssueComment, *github.Response, error) {
			return c.gh.Issues.ListComments(ctx, c.owner, c.repo, issueNumber, opts)
		})
		if err != nil {
			return 0, nil, fmt.Errorf("listing comments on #%d: %w", issueNumber, err)
		}
		// Comments arrive oldest first; later matches overwrite earlier
		// ones so the newest record wins.
		for _, comment := range comments {
			if st, ok := extractState(comment.GetBody()); ok {
				commentID = comment.GetID()
				state = st
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return commentID, state, nil
}
