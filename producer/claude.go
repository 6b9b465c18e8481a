/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package producer

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/chainguard-dev/clog"

	"github.com/megashkola/code-agent/metrics"
	"github.com/megashkola/code-agent/retry"
)

const defaultClaudeModel = "claude-sonnet-4-20250514"

// Claude is the Anthropic-backed change producer. It makes a single-turn
// request and parses the response into a change set.
type Claude struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	retryCfg  retry.Config
	fallback  *Rules
}

// NewClaude creates the Claude producer. An empty model selects the
// default.
func NewClaude(apiKey, model string) *Claude {
	if model == "" {
		model = defaultClaudeModel
	}
	return &Claude{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: 8192,
		retryCfg:  retry.DefaultConfig(),
		fallback:  NewRules(),
	}
}

// Name implements Interface.
func (*Claude) Name() string { return "claude" }

// ProposeChange implements Interface. Transport errors are returned after
// bounded retries; a successful call whose output cannot be parsed into a
// non-empty change set falls back to the rule-based producer so an
// unusable model answer never stalls the iteration.
func (c *Claude) ProposeChange(ctx context.Context, req Request) (*ChangeSet, error) {
	log := clog.FromContext(ctx).With("producer", c.Name(), "issue", req.IssueNumber)

	msg, err := retry.Do(ctx, c.retryCfg, "claude_message", isRetryableClaudeError, func() (*anthropic.Message, error) {
		return c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: c.maxTokens,
			System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
			Messages: []anthropic.MessageParam{{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(userPrompt(req)),
				},
			}},
		})
	})
	if err != nil {
		metrics.ProducerRuns.WithLabelValues(c.Name(), "error").Inc()
		return nil, fmt.Errorf("calling Claude: %w", err)
	}

	var text string
	for _, content := range msg.Content {
		if content.Type == "text" {
			text += content.Text
		}
	}

	cs, err := parseChangeSet(text)
	if err != nil {
		log.With("error", err).Warn("Claude response unusable, applying rule-based fallback")
		metrics.ProducerRuns.WithLabelValues(c.Name(), "fallback").Inc()
		return c.fallback.ProposeChange(ctx, req)
	}

	metrics.ProducerRuns.WithLabelValues(c.Name(), "ok").Inc()
	return cs, nil
}

// isRetryableClaudeError reports whether an error is a transient Claude API
// error: rate limit, overloaded, or 5xx.
func isRetryableClaudeError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 503, 504, 529:
			return true
		}
	}
	return false
}
