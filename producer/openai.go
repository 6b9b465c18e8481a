/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package producer

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/megashkola/code-agent/metrics"
	"github.com/megashkola/code-agent/retry"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI is the OpenAI-backed change producer.
type OpenAI struct {
	client   openai.Client
	model    string
	retryCfg retry.Config
	fallback *Rules
}

// NewOpenAI creates the OpenAI producer. An empty model selects the
// default.
func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{
		client:   openai.NewClient(option.WithAPIKey(apiKey)),
		model:    model,
		retryCfg: retry.DefaultConfig(),
		fallback: NewRules(),
	}
}

// Name implements Interface.
func (*OpenAI) Name() string { return "openai" }

// ProposeChange implements Interface. The failure handling mirrors the
// Claude producer: transport errors surface after bounded retries,
// unusable output falls back to the rule-based producer.
func (o *OpenAI) ProposeChange(ctx context.Context, req Request) (*ChangeSet, error) {
	log := clog.FromContext(ctx).With("producer", o.Name(), "issue", req.IssueNumber)

	completion, err := retry.Do(ctx, o.retryCfg, "openai_chat_completion", isRetryableOpenAIError, func() (*openai.ChatCompletion, error) {
		return o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(o.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemPrompt),
				openai.UserMessage(userPrompt(req)),
			},
		})
	})
	if err != nil {
		metrics.ProducerRuns.WithLabelValues(o.Name(), "error").Inc()
		return nil, fmt.Errorf("calling OpenAI: %w", err)
	}

	var text string
	if len(completion.Choices) > 0 {
		text = completion.Choices[0].Message.Content
	}

	cs, err := parseChangeSet(text)
	if err != nil {
		log.With("error", err).Warn("OpenAI response unusable, applying rule-based fallback")
		metrics.ProducerRuns.WithLabelValues(o.Name(), "fallback").Inc()
		return o.fallback.ProposeChange(ctx, req)
	}

	metrics.ProducerRuns.WithLabelValues(o.Name(), "ok").Inc()
	return cs, nil
}

// isRetryableOpenAIError reports whether an error is a transient OpenAI API
// error: rate limit or 5xx.
func isRetryableOpenAIError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}
