/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package controller implements the iteration control loop: the state
// machine that decides, each poll cycle, whether an issue needs a new code
// change, a wait, another iteration, or nothing at all.
package controller

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"github.com/megashkola/code-agent/metrics"
	"github.com/megashkola/code-agent/producer"
)

// IssueSource yields issues needing attention.
type IssueSource interface {
	// ListIssues returns open issues carrying the given label.
	ListIssues(ctx context.Context, label string) ([]Issue, error)
	// GetIssue fetches a single issue by number.
	GetIssue(ctx context.Context, number int) (Issue, error)
}

// ChangeProducer proposes a file-level change set for an issue.
type ChangeProducer interface {
	ProposeChange(ctx context.Context, req producer.Request) (*producer.ChangeSet, error)
}

// PRGateway reads and writes pull requests, comments, labels, and the
// externally persisted iteration state.
type PRGateway interface {
	// FindPR returns the number of the open agent pull request for the
	// issue, or 0 if none exists.
	FindPR(ctx context.Context, issueNumber int) (int, error)
	// CreatePR materializes the change set on the agent branch and opens
	// a pull request against the base branch.
	CreatePR(ctx context.Context, issue Issue, cs *producer.ChangeSet, iteration int) (int, error)
	// UpdatePR materializes the change set as a new commit on the
	// existing pull request's branch and refreshes its body.
	UpdatePR(ctx context.Context, prNumber int, issue Issue, cs *producer.ChangeSet, iteration int) error
	// Comments returns the pull request's conversation comments.
	Comments(ctx context.Context, prNumber int) ([]Comment, error)
	// PostComment posts a comment on an issue or pull request.
	PostComment(ctx context.Context, issueNumber int, body string) error
	// AddLabel idempotently adds a label to an issue.
	AddLabel(ctx context.Context, issueNumber int, label string) error
	// LoadState returns the persisted iteration state for the issue, or
	// nil if the issue has never been tracked.
	LoadState(ctx context.Context, issueNumber int) (*IterationState, error)
	// SaveState durably records the iteration state.
	SaveState(ctx context.Context, st *IterationState) error
}

// Controller applies the iteration state machine to tracked issues.
type Controller struct {
	source   IssueSource
	producer ChangeProducer
	gateway  PRGateway

	triggerLabel    string
	managedLabel    string
	reviewerLogin   string
	agentLogin      string
	maxIterations   int
	producerRetries int
	concurrency     int
}

// Option configures a Controller.
type Option func(*Controller)

// WithTriggerLabel overrides the label that marks issues for processing.
func WithTriggerLabel(label string) Option {
	return func(c *Controller) { c.triggerLabel = label }
}

// WithReviewerLogin restricts verdict parsing to comments from the given
// identity.
func WithReviewerLogin(login string) Option {
	return func(c *Controller) { c.reviewerLogin = login }
}

// WithAgentLogin sets the agent's own identity, excluded from verdict
// parsing so the agent's status comments are never read as verdicts.
func WithAgentLogin(login string) Option {
	return func(c *Controller) { c.agentLogin = login }
}

// WithMaxIterations overrides the iteration budget.
func WithMaxIterations(n int) Option {
	return func(c *Controller) { c.maxIterations = n }
}

// WithProducerRetries overrides the change producer retry budget within one
// cycle.
func WithProducerRetries(n int) Option {
	return func(c *Controller) { c.producerRetries = n }
}

// WithConcurrency bounds how many issues a sweep processes in parallel.
// Each issue's transitions remain strictly sequential regardless.
func WithConcurrency(n int) Option {
	return func(c *Controller) { c.concurrency = n }
}

// New creates a Controller with the given collaborators.
func New(source IssueSource, prod ChangeProducer, gateway PRGateway, opts ...Option) *Controller {
	c := &Controller{
		source:          source,
		producer:        prod,
		gateway:         gateway,
		triggerLabel:    "agent",
		managedLabel:    "code-agent/managed",
		maxIterations:   3,
		producerRetries: 1,
		concurrency:     1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sweep performs one full pass over all tracked issues: issues carrying the
// trigger label plus previously tracked issues (managed label) whose
// trigger label may have been removed. Per-issue errors are recorded and
// never abort the sweep.
func (c *Controller) Sweep(ctx context.Context) error {
	log := clog.FromContext(ctx)

	labeled, err := c.source.ListIssues(ctx, c.triggerLabel)
	if err != nil {
		return fmt.Errorf("listing labeled issues: %w", err)
	}
	managed, err := c.source.ListIssues(ctx, c.managedLabel)
	if err != nil {
		return fmt.Errorf("listing managed issues: %w", err)
	}

	seen := make(map[int]bool, len(labeled)+len(managed))
	var issues []Issue
	for _, issue := range append(labeled, managed...) {
		if seen[issue.Number] {
			continue
		}
		seen[issue.Number] = true
		issues = append(issues, issue)
	}

	log.With("count", len(issues)).Info("Sweeping tracked issues")

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for _, issue := range issues {
		// Graceful shutdown: finish in-flight issues, start no new ones.
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := c.ProcessIssue(ctx, issue); err != nil {
				clog.FromContext(ctx).With("issue", issue.Number).
					With("error", err).Error("Issue processing failed")
				metrics.IssuesProcessed.WithLabelValues("error").Inc()
			} else {
				metrics.IssuesProcessed.WithLabelValues("ok").Inc()
			}
			return nil
		})
	}
	return g.Wait()
}

// ProcessIssue runs one poll cycle for one issue: load its state, decide
// the next action, apply it, and durably record each transition before the
// next one starts.
func (c *Controller) ProcessIssue(ctx context.Context, issue Issue) error {
	log := clog.FromContext(ctx).With("issue", issue.Number)

	st, err := c.gateway.LoadState(ctx, issue.Number)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}

	if st != nil && st.Status.Terminal() {
		log.With("status", st.Status).Debug("Issue is terminal, nothing to do")
		return nil
	}

	if !issue.HasLabel(c.triggerLabel) || !issue.Open {
		if st == nil {
			// Never tracked: nothing to abandon, nothing to write.
			return nil
		}
		c.setStatus(st, StatusAbandoned)
		if err := c.gateway.SaveState(ctx, st); err != nil {
			return fmt.Errorf("recording abandonment: %w", err)
		}
		log.Info("Trigger label removed, abandoned")
		return nil
	}

	if st == nil {
		st = NewState(issue.Number)
		// The managed label keeps the issue visible to future sweeps
		// even if the trigger label is later removed.
		if err := c.gateway.AddLabel(ctx, issue.Number, c.managedLabel); err != nil {
			return fmt.Errorf("marking issue as managed: %w", err)
		}
	}

	switch st.Status {
	case StatusPending:
		return c.beginWork(ctx, issue, st)

	case StatusInProgress:
		// A previous cycle recorded the iteration start but not its
		// completion. Re-run the same iteration without incrementing.
		log.With("iteration", st.IterationCount).Info("Resuming interrupted iteration")
		return c.runIteration(ctx, issue, st, "", false)

	case StatusChangesRequested:
		// The verdict was recorded but the follow-up iteration has not
		// started (e.g. the process stopped in between). Recover the
		// reviewer's feedback so the producer still sees it.
		feedback, err := c.latestFeedback(ctx, st.PRNumber)
		if err != nil {
			return err
		}
		return c.iterate(ctx, issue, st, feedback)

	case StatusAwaitingReview:
		return c.checkReview(ctx, issue, st)

	default:
		return fmt.Errorf("unknown status %q for issue #%d", st.Status, issue.Number)
	}
}

// beginWork handles an issue with no known pull request. A PR may already
// exist if the state record was lost; adopt it rather than ever creating a
// second PR for the issue. Otherwise run the next iteration.
func (c *Controller) beginWork(ctx context.Context, issue Issue, st *IterationState) error {
	prNumber, err := c.gateway.FindPR(ctx, issue.Number)
	if err != nil {
		return fmt.Errorf("finding existing PR: %w", err)
	}
	if prNumber != 0 {
		st.PRNumber = prNumber
		c.setStatus(st, StatusAwaitingReview)
		if err := c.gateway.SaveState(ctx, st); err != nil {
			return fmt.Errorf("adopting existing PR: %w", err)
		}
		clog.FromContext(ctx).With("issue", issue.Number, "pr", prNumber).Info("Adopted existing PR")
		return nil
	}
	return c.runIteration(ctx, issue, st, "", true)
}

// latestFeedback re-resolves the reviewer's changes-requested comment from
// the pull request. Empty when the PR is unknown or no qualifying comment
// exists.
func (c *Controller) latestFeedback(ctx context.Context, prNumber int) (string, error) {
	if prNumber == 0 {
		return "", nil
	}
	comments, err := c.gateway.Comments(ctx, prNumber)
	if err != nil {
		return "", fmt.Errorf("fetching PR comments: %w", err)
	}
	if verdict, feedback := ResolveVerdict(comments, c.reviewerLogin, c.agentLogin); verdict == VerdictChangesRequested {
		return feedback, nil
	}
	return "", nil
}

// ProcessByNumber fetches one issue and runs a single cycle for it. This
// backs the one-shot CLI command.
func (c *Controller) ProcessByNumber(ctx context.Context, number int) error {
	issue, err := c.source.GetIssue(ctx, number)
	if err != nil {
		return fmt.Errorf("fetching issue #%d: %w", number, err)
	}
	return c.ProcessIssue(ctx, issue)
}

// checkReview inspects the pull request for a reviewer verdict and applies
// the resulting transition.
func (c *Controller) checkReview(ctx context.Context, issue Issue, st *IterationState) error {
	log := clog.FromContext(ctx).With("issue", issue.Number, "pr", st.PRNumber)

	if st.PRNumber == 0 {
		// Inconsistent record: awaiting review with no PR. Restart from
		// the no-PR path, which adopts an existing PR or runs a fresh,
		// counted iteration.
		return c.beginWork(ctx, issue, st)
	}

	comments, err := c.gateway.Comments(ctx, st.PRNumber)
	if err != nil {
		return fmt.Errorf("fetching PR comments: %w", err)
	}

	verdict, feedback := ResolveVerdict(comments, c.reviewerLogin, c.agentLogin)
	switch verdict {
	case VerdictNone:
		log.Debug("No reviewer verdict yet")
		return nil

	case VerdictApproved:
		st.LastVerdict = verdict
		c.setStatus(st, StatusApproved)
		if err := c.gateway.SaveState(ctx, st); err != nil {
			return fmt.Errorf("recording approval: %w", err)
		}
		log.Info("PR approved")
		return nil

	case VerdictChangesRequested:
		st.LastVerdict = verdict
		if st.IterationCount >= c.maxIterations {
			log.With("iterations", st.IterationCount).Info("Iteration budget exhausted")
			return c.fail(ctx, st, fmt.Sprintf(
				"the reviewer requested changes but the iteration budget (%d) is exhausted; a human needs to take over", c.maxIterations))
		}
		c.setStatus(st, StatusChangesRequested)
		if err := c.gateway.SaveState(ctx, st); err != nil {
			return fmt.Errorf("recording requested changes: %w", err)
		}
		return c.iterate(ctx, issue, st, feedback)
	}
	return nil
}

// iterate starts the next iteration in response to requested changes.
func (c *Controller) iterate(ctx context.Context, issue Issue, st *IterationState, feedback string) error {
	if st.IterationCount >= c.maxIterations {
		return c.fail(ctx, st, fmt.Sprintf(
			"the reviewer requested changes but the iteration budget (%d) is exhausted; a human needs to take over", c.maxIterations))
	}
	return c.runIteration(ctx, issue, st, feedback, true)
}

// runIteration executes one producer-and-PR cycle: record the iteration
// start, produce a change set, create or update the pull request, record
// completion. The state is saved before the producer runs so a crash never
// leaves an unrecorded action.
func (c *Controller) runIteration(ctx context.Context, issue Issue, st *IterationState, feedback string, increment bool) error {
	log := clog.FromContext(ctx).With("issue", issue.Number)

	if increment {
		st.IterationCount++
	}
	if st.IterationCount > c.maxIterations {
		return c.fail(ctx, st, fmt.Sprintf("iteration budget (%d) exhausted", c.maxIterations))
	}

	c.setStatus(st, StatusInProgress)
	if err := c.gateway.SaveState(ctx, st); err != nil {
		return fmt.Errorf("recording iteration start: %w", err)
	}

	log.With("iteration", st.IterationCount).Info("Producing change set")
	cs, err := c.propose(ctx, issue, feedback)
	if err != nil {
		return c.fail(ctx, st, fmt.Sprintf("the change producer failed: %v", err))
	}

	if st.PRNumber == 0 {
		prNumber, err := c.gateway.CreatePR(ctx, issue, cs, st.IterationCount)
		if err != nil {
			return c.fail(ctx, st, fmt.Sprintf("creating the pull request failed: %v", err))
		}
		st.PRNumber = prNumber
		log.With("pr", prNumber).Info("Created PR")
	} else {
		if err := c.gateway.UpdatePR(ctx, st.PRNumber, issue, cs, st.IterationCount); err != nil {
			return c.fail(ctx, st, fmt.Sprintf("updating pull request #%d failed: %v", st.PRNumber, err))
		}
		log.With("pr", st.PRNumber).Info("Updated PR")
	}

	c.setStatus(st, StatusAwaitingReview)
	if err := c.gateway.SaveState(ctx, st); err != nil {
		return fmt.Errorf("recording iteration completion: %w", err)
	}

	note := fmt.Sprintf("Code Agent updated pull request #%d.\n\nIteration: %d", st.PRNumber, st.IterationCount)
	if err := c.gateway.PostComment(ctx, issue.Number, note); err != nil {
		log.With("error", err).Warn("Failed to post iteration note")
	}
	return nil
}

// propose invokes the change producer with a bounded retry budget and
// rejects empty change sets.
func (c *Controller) propose(ctx context.Context, issue Issue, feedback string) (*producer.ChangeSet, error) {
	req := producer.Request{
		IssueNumber: issue.Number,
		Title:       issue.Title,
		Body:        issue.Body,
		Feedback:    feedback,
	}

	var lastErr error
	for attempt := 0; attempt <= c.producerRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cs, err := c.producer.ProposeChange(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		if cs.Empty() {
			lastErr = producer.ErrEmptyChange
			continue
		}
		return cs, nil
	}
	return nil, fmt.Errorf("after %d attempts: %w", c.producerRetries+1, lastErr)
}

// fail transitions the issue to the terminal failed state and leaves a
// human-readable trace. Silent failure is disallowed: the state record and
// the explanatory comment are both written.
func (c *Controller) fail(ctx context.Context, st *IterationState, reason string) error {
	c.setStatus(st, StatusFailed)
	if err := c.gateway.SaveState(ctx, st); err != nil {
		return fmt.Errorf("recording failure: %w", err)
	}
	body := fmt.Sprintf("Code Agent stopped working on this issue: %s.", reason)
	if err := c.gateway.PostComment(ctx, st.IssueNumber, body); err != nil {
		return fmt.Errorf("posting failure comment: %w", err)
	}
	clog.FromContext(ctx).With("issue", st.IssueNumber).With("reason", reason).Warn("Issue failed")
	return nil
}

// setStatus applies a status change and records the transition metric.
func (c *Controller) setStatus(st *IterationState, to Status) {
	if st.Status != to {
		metrics.Transitions.WithLabelValues(string(st.Status), string(to)).Inc()
	}
	st.Status = to
}
