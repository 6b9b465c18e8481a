/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gateway is the GitHub access layer: it reads issues, writes pull
// requests through the Git data API, and persists iteration state inside
// issue comments so the agent process itself stays stateless.
package gateway

import (
	"context"
	"fmt"

	"github.com/google/go-github/v84/github"
	"golang.org/x/oauth2"

	"github.com/megashkola/code-agent/controller"
	"github.com/megashkola/code-agent/retry"
)

// Client talks to one GitHub repository.
type Client struct {
	gh         *github.Client
	owner      string
	repo       string
	baseBranch string
	retryCfg   retry.Config
}

// New creates a Client for owner/repo authenticated with the given token.
func New(ctx context.Context, token, owner, repo, baseBranch string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{
		gh:         github.NewClient(oauth2.NewClient(ctx, ts)),
		owner:      owner,
		repo:       repo,
		baseBranch: baseBranch,
		retryCfg:   retry.DefaultConfig(),
	}
}

// ListIssues implements controller.IssueSource. Pull requests share the
// issue numbering on GitHub and are filtered out.
func (c *Client) ListIssues(ctx context.Context, label string) ([]controller.Issue, error) {
	opts := &github.IssueListByRepoOptions{
		Labels:      []string{label},
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var out []controller.Issue
	for {
		issues, resp, err := retry.Do2(ctx, c.retryCfg, "list_issues", IsTransient, func() ([]*github.Issue, *github.Response, error) {
			return c.gh.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
		})
		if err != nil {
			return nil, fmt.Errorf("listing issues labeled %q: %w", label, err)
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			out = append(out, toIssue(issue))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return out, nil
}

// GetIssue implements controller.IssueSource.
func (c *Client) GetIssue(ctx context.Context, number int) (controller.Issue, error) {
	issue, _, err := retry.Do2(ctx, c.retryCfg, "get_issue", IsTransient, func() (*github.Issue, *github.Response, error) {
		return c.gh.Issues.Get(ctx, c.owner, c.repo, number)
	})
	if err != nil {
		return controller.Issue{}, fmt.Errorf("fetching issue #%d: %w", number, err)
	}
	if issue.IsPullRequest() {
		return controller.Issue{}, fmt.Errorf("#%d is a pull request, not an issue", number)
	}
	return toIssue(issue), nil
}

// PostComment implements controller.PRGateway. Issue and pull request
// comments share one API on GitHub.
func (c *Client) PostComment(ctx context.Context, number int, body string) error {
	_, _, err := retry.Do2(ctx, c.retryCfg, "post_comment", IsTransient, func() (*github.IssueComment, *github.Response, error) {
		return c.gh.Issues.CreateComment(ctx, c.owner, c.repo, number, &github.IssueComment{
			Body: github.Ptr(body),
		})
	})
	if err != nil {
		return fmt.Errorf("commenting on #%d: %w", number, err)
	}
	return nil
}

// AddLabel implements controller.PRGateway. Adding an already present
// label is a no-op on the GitHub side.
func (c *Client) AddLabel(ctx context.Context, number int, label string) error {
	_, _, err := retry.Do2(ctx, c.retryCfg, "add_label", IsTransient, func() ([]*github.Label, *github.Response, error) {
		return c.gh.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, number, []string{label})
	})
	if err != nil {
		return fmt.Errorf("labeling #%d with %q: %w", number, label, err)
	}
	return nil
}

// Comments implements controller.PRGateway, returning the conversation
// comments of a pull request in API order.
func (c *Client) Comments(ctx context.Context, prNumber int) ([]controller.Comment, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var out []controller.Comment
	for {
		comments, resp, err := retry.Do2(ctx, c.retryCfg, "list_comments", IsTransient, func() ([]*github.IssueComment, *github.Response, error) {
			return c.gh.Issues.ListComments(ctx, c.owner, c.repo, prNumber, opts)
		})
		if err != nil {
			return nil, fmt.Errorf("listing comments on #%d: %w", prNumber, err)
		}
		for _, comment := range comments {
			out = append(out, controller.Comment{
				Author:    comment.GetUser().GetLogin(),
				CreatedAt: comment.GetCreatedAt().Time,
				Body:      comment.GetBody(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func toIssue(issue *github.Issue) controller.Issue {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}
	return controller.Issue{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
		Labels: labels,
		Open:   issue.GetState() == "open",
	}
}
