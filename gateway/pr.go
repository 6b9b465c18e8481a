/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"

	"github.com/megashkola/code-agent/controller"
	"github.com/megashkola/code-agent/producer"
	"github.com/megashkola/code-agent/retry"
)

// branchName returns the agent branch for an issue. One branch per issue,
// reused across iterations.
func branchName(issueNumber int) string {
	return fmt.Sprintf("agent/issue-%d", issueNumber)
}

func prTitle(issue controller.Issue) string {
	return fmt.Sprintf("Agent: %s (#%d)", issue.Title, issue.Number)
}

func prBody(issue controller.Issue, cs *producer.ChangeSet, iteration int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automated change for #%d.\n\n", issue.Number)
	if cs.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", cs.Summary)
	}
	fmt.Fprintf(&b, "Iteration: %d\n\nCloses #%d\n", iteration, issue.Number)
	return b.String()
}

// FindPR implements controller.PRGateway, returning the open agent pull
// request for the issue, or 0 when none exists.
func (c *Client) FindPR(ctx context.Context, issueNumber int) (int, error) {
	prs, _, err := retry.Do2(ctx, c.retryCfg, "list_prs", IsTransient, func() ([]*github.PullRequest, *github.Response, error) {
		return c.gh.PullRequests.List(ctx, c.owner, c.repo, &github.PullRequestListOptions{
			State: "open",
			Head:  c.owner + ":" + branchName(issueNumber),
		})
	})
	if err != nil {
		return 0, fmt.Errorf("listing PRs for issue #%d: %w", issueNumber, err)
	}
	if len(prs) == 0 {
		return 0, nil
	}
	return prs[0].GetNumber(), nil
}

// CreatePR materializes the change set as a commit on a fresh agent branch
// and opens a pull request against the base branch. The whole write path
// goes through the Git data API, so nothing is cloned locally.
func (c *Client) CreatePR(ctx context.Context, issue controller.Issue, cs *producer.ChangeSet, iteration int) (int, error) {
	branch := branchName(issue.Number)
	log := clog.FromContext(ctx).With("issue", issue.Number, "branch", branch)

	if err := c.ensureBranch(ctx, branch); err != nil {
		return 0, err
	}
	if err := c.pushCommit(ctx, branch, cs); err != nil {
		return 0, err
	}

	pr, _, err := retry.Do2(ctx, c.retryCfg, "create_pr", IsTransient, func() (*github.PullRequest, *github.Response, error) {
		return c.gh.PullRequests.Create(ctx, c.owner, c.repo, &github.NewPullRequest{
			Title: github.Ptr(prTitle(issue)),
			Body:  github.Ptr(prBody(issue, cs, iteration)),
			Head:  github.Ptr(branch),
			Base:  github.Ptr(c.baseBranch),
		})
	})
	if err != nil {
		return 0, fmt.Errorf("creating PR for issue #%d: %w", issue.Number, err)
	}
	log.With("pr", pr.GetNumber()).Info("Opened pull request")
	return pr.GetNumber(), nil
}

// UpdatePR adds the change set as a new commit on the existing agent branch
// and refreshes the pull request body with the current iteration.
func (c *Client) UpdatePR(ctx context.Context, prNumber int, issue controller.Issue, cs *producer.ChangeSet, iteration int) error {
	branch := branchName(issue.Number)

	if err := c.pushCommit(ctx, branch, cs); err != nil {
		return err
	}

	_, _, err := retry.Do2(ctx, c.retryCfg, "edit_pr", IsTransient, func() (*github.PullRequest, *github.Response, error) {
		return c.gh.PullRequests.Edit(ctx, c.owner, c.repo, prNumber, &github.PullRequest{
			Body: github.Ptr(prBody(issue, cs, iteration)),
		})
	})
	if err != nil {
		return fmt.Errorf("editing PR #%d: %w", prNumber, err)
	}
	return nil
}

// ensureBranch creates the agent branch at the base branch head. If the
// branch already exists it is reset there, discarding leftovers from any
// previous abandoned run.
func (c *Client) ensureBranch(ctx context.Context, branch string) error {
	baseRef, _, err := retry.Do2(ctx, c.retryCfg, "get_base_ref", IsTransient, func() (*github.Reference, *github.Response, error) {
		return c.gh.Git.GetRef(ctx, c.owner, c.repo, "refs/heads/"+c.baseBranch)
	})
	if err != nil {
		return fmt.Errorf("resolving base branch %q: %w", c.baseBranch, err)
	}

	_, _, err = c.gh.Git.CreateRef(ctx, c.owner, c.repo, github.CreateRef{
		Ref: "refs/heads/" + branch,
		SHA: baseRef.Object.GetSHA(),
	})
	if err == nil {
		return nil
	}
	if !IsReferenceExists(err) {
		return fmt.Errorf("creating branch %q: %w", branch, err)
	}
	if _, _, err := c.gh.Git.UpdateRef(ctx, c.owner, c.repo, "refs/heads/"+branch, github.UpdateRef{
		SHA:   baseRef.Object.GetSHA(),
		Force: github.Ptr(true),
	}); err != nil {
		return fmt.Errorf("resetting branch %q: %w", branch, err)
	}
	return nil
}

// pushCommit writes the change set as one commit on top of the branch head.
func (c *Client) pushCommit(ctx context.Context, branch string, cs *producer.ChangeSet) error {
	ref, _, err := retry.Do2(ctx, c.retryCfg, "get_branch_ref", IsTransient, func() (*github.Reference, *github.Response, error) {
		return c.gh.Git.GetRef(ctx, c.owner, c.repo, "refs/heads/"+branch)
	})
	if err != nil {
		return fmt.Errorf("resolving branch %q: %w", branch, err)
	}
	parentSHA := ref.Object.GetSHA()

	entries := make([]*github.TreeEntry, 0, len(cs.Files))
	for _, f := range cs.Files {
		entries = append(entries, &github.TreeEntry{
			Path:    github.Ptr(f.Path),
			Mode:    github.Ptr("100644"),
			Type:    github.Ptr("blob"),
			Content: github.Ptr(f.Content),
		})
	}
	tree, _, err := retry.Do2(ctx, c.retryCfg, "create_tree", IsTransient, func() (*github.Tree, *github.Response, error) {
		return c.gh.Git.CreateTree(ctx, c.owner, c.repo, parentSHA, entries)
	})
	if err != nil {
		return fmt.Errorf("creating tree: %w", err)
	}

	message := cs.CommitMessage
	if message == "" {
		message = "Agent update"
	}
	commit, _, err := retry.Do2(ctx, c.retryCfg, "create_commit", IsTransient, func() (*github.Commit, *github.Response, error) {
		return c.gh.Git.CreateCommit(ctx, c.owner, c.repo, github.Commit{
			Message: github.Ptr(message),
			Tree:    tree,
			Parents: []*github.Commit{{SHA: github.Ptr(parentSHA)}},
		}, nil)
	})
	if err != nil {
		return fmt.Errorf("creating commit: %w", err)
	}

	_, _, err = retry.Do2(ctx, c.retryCfg, "update_branch_ref", IsTransient, func() (*github.Reference, *github.Response, error) {
		return c.gh.Git.UpdateRef(ctx, c.owner, c.repo, ref.GetRef(), github.UpdateRef{SHA: commit.GetSHA()})
	})
	if err != nil {
		return fmt.Errorf("advancing branch %q: %w", branch, err)
	}
	return nil
}
