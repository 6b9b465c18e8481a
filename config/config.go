/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package config loads agent settings from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// ErrConfig marks configuration errors. They are fatal at process start and
// never handled per-issue.
var ErrConfig = errors.New("invalid configuration")

// Settings holds the full configuration surface of the agent.
type Settings struct {
	// Repo is the target repository in "owner/name" form.
	Repo string `env:"REPO"`
	// GitHubToken authenticates all GitHub API calls.
	GitHubToken string `env:"GITHUB_TOKEN"`

	BaseBranch   string `env:"BASE_BRANCH,default=main"`
	TriggerLabel string `env:"AGENT_LABEL,default=agent"`

	// ReviewerLogin, when set, restricts verdict parsing to comments from
	// this identity.
	ReviewerLogin string `env:"REVIEWER_BOT_LOGIN"`
	// AgentLogin is the agent's own identity; its comments never count as
	// reviewer verdicts.
	AgentLogin string `env:"AGENT_LOGIN"`

	// LLM configuration. All optional: when no provider or key is set the
	// agent uses the deterministic rule-based change producer.
	LLMProvider string `env:"LLM_PROVIDER"`
	LLMAPIKey   string `env:"LLM_API_KEY"`
	LLMModel    string `env:"LLM_MODEL"`

	MaxIterations int           `env:"MAX_ITERATIONS,default=3"`
	PollInterval  time.Duration `env:"POLL_INTERVAL,default=300s"`

	// Concurrency bounds how many issues a sweep processes in parallel.
	// 1 keeps the sweep strictly sequential.
	Concurrency int `env:"CONCURRENCY,default=1"`

	// MetricsPort serves prometheus metrics when non-zero.
	MetricsPort int `env:"METRICS_PORT,default=0"`
}

// Load reads settings from the process environment and validates them.
func Load(ctx context.Context) (*Settings, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Settings, error) {
	var s Settings
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &s,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate enforces the required configuration surface.
func (s *Settings) Validate() error {
	if s.Repo == "" {
		return fmt.Errorf("%w: REPO is required", ErrConfig)
	}
	if owner, name, ok := strings.Cut(s.Repo, "/"); !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%w: REPO must be in owner/name form, got %q", ErrConfig, s.Repo)
	}
	if s.GitHubToken == "" {
		return fmt.Errorf("%w: GITHUB_TOKEN is required", ErrConfig)
	}
	if s.MaxIterations < 1 {
		return fmt.Errorf("%w: MAX_ITERATIONS must be at least 1, got %d", ErrConfig, s.MaxIterations)
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("%w: POLL_INTERVAL must be positive, got %s", ErrConfig, s.PollInterval)
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("%w: CONCURRENCY must be at least 1, got %d", ErrConfig, s.Concurrency)
	}
	return nil
}

// OwnerRepo splits the repository coordinate.
func (s *Settings) OwnerRepo() (owner, repo string) {
	owner, repo, _ = strings.Cut(s.Repo, "/")
	return owner, repo
}
