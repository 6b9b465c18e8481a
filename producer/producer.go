/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package producer implements the change producer capability: given an
// issue (and optional reviewer feedback), propose a file-level change set.
//
// Three variants implement the same contract: Claude-backed, OpenAI-backed,
// and a deterministic rule-based fallback. The variant is selected once at
// startup from configuration; absent an LLM provider or key the fallback is
// used so the pipeline never stalls for lack of an LLM.
package producer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
)

// ErrEmptyChange indicates the producer could not generate a usable,
// non-empty change set.
var ErrEmptyChange = errors.New("producer returned an empty change set")

// Request is the input to a change producer run.
type Request struct {
	IssueNumber int
	Title       string
	Body        string
	// Feedback carries the latest reviewer comment when iterating on an
	// existing pull request. Empty on the first iteration.
	Feedback string
}

// File is a single proposed file write.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ChangeSet is the collection of file modifications proposed for one
// iteration.
type ChangeSet struct {
	Files         []File `json:"files"`
	Summary       string `json:"summary"`
	CommitMessage string `json:"commit_message"`
}

// Empty reports whether the change set contains no file writes.
func (cs *ChangeSet) Empty() bool {
	return cs == nil || len(cs.Files) == 0
}

// Interface is the change producer contract shared by all variants.
type Interface interface {
	// ProposeChange returns a non-empty change set for the request, or an
	// error if one could not be produced.
	ProposeChange(ctx context.Context, req Request) (*ChangeSet, error)
	// Name identifies the variant for logging and metrics.
	Name() string
}

// Config selects and configures a producer variant.
type Config struct {
	// Provider is one of "anthropic", "openai", or empty for the
	// rule-based fallback.
	Provider string
	APIKey   string
	Model    string
}

// New selects a producer variant from configuration. An unknown provider is
// a configuration error; a missing key silently selects the fallback.
func New(ctx context.Context, cfg Config) (Interface, error) {
	log := clog.FromContext(ctx)

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" || cfg.APIKey == "" {
		log.Info("No LLM configured, using rule-based change producer")
		return NewRules(), nil
	}

	switch provider {
	case "anthropic", "claude":
		log.With("model", cfg.Model).Info("Using Claude change producer")
		return NewClaude(cfg.APIKey, cfg.Model), nil
	case "openai":
		log.With("model", cfg.Model).Info("Using OpenAI change producer")
		return NewOpenAI(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// systemPrompt instructs the model to answer with a machine-readable change
// set. Shared by the LLM-backed variants.
const systemPrompt = `You are a senior software engineer implementing a GitHub issue.
Respond ONLY with a JSON object of the form:
{"summary": "...", "commit_message": "...", "files": [{"path": "relative/path", "content": "full file content"}]}
Propose the minimal complete set of file writes that addresses the issue.
If reviewer feedback is present, address it. Do not include any prose outside the JSON.`

// userPrompt renders the request into the single user message.
func userPrompt(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Issue #%d: %s\n\n", req.IssueNumber, req.Title)
	fmt.Fprintf(&sb, "Issue body:\n%s\n", req.Body)
	if req.Feedback != "" {
		fmt.Fprintf(&sb, "\nReviewer feedback:\n%s\n", req.Feedback)
	}
	return sb.String()
}
