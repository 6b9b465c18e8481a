/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main implements the code-agent CLI: a GitHub automation agent
// that turns labeled issues into reviewed pull requests.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/megashkola/code-agent/config"
	"github.com/megashkola/code-agent/controller"
	"github.com/megashkola/code-agent/gateway"
	"github.com/megashkola/code-agent/metrics"
	"github.com/megashkola/code-agent/poller"
	"github.com/megashkola/code-agent/producer"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		clog.FatalContextf(ctx, "%v", err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "code-agent",
		Short:         "GitHub issue-to-PR automation agent",
		Long:          "code-agent watches labeled GitHub issues, proposes code changes, opens pull requests, and iterates on reviewer feedback until approval or budget exhaustion.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newPollCmd())
	return root
}

// newRunCmd is the one-shot mode: process a single issue once and exit.
func newRunCmd() *cobra.Command {
	var issueNumber int

	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Process one issue once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if issueNumber <= 0 {
				if env := os.Getenv("ISSUE_NUMBER"); env != "" {
					n, err := strconv.Atoi(env)
					if err != nil {
						return fmt.Errorf("parsing ISSUE_NUMBER %q: %w", env, err)
					}
					issueNumber = n
				}
			}
			if issueNumber <= 0 {
				return errors.New("a positive --issue number (or ISSUE_NUMBER) is required")
			}
			ctrl, _, err := setup(ctx)
			if err != nil {
				return err
			}
			return ctrl.ProcessByNumber(ctx, issueNumber)
		},
	}
	cmd.Flags().IntVarP(&issueNumber, "issue", "i", 0, "issue number to process")
	return cmd
}

// newPollCmd is the daemon mode: sweep all tracked issues on an interval.
func newPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Continuously sweep labeled issues until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ctrl, cfg, err := setup(ctx)
			if err != nil {
				return err
			}

			if cfg.MetricsPort > 0 {
				go serveMetrics(ctx, cfg.MetricsPort)
			}

			p, err := poller.New(ctrl, cfg.PollInterval)
			if err != nil {
				return err
			}
			return p.Run(ctx)
		},
	}
}

// setup loads configuration and wires the controller with its
// collaborators.
func setup(ctx context.Context) (*controller.Controller, *config.Settings, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	prod, err := producer.New(ctx, producer.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating change producer: %w", err)
	}

	owner, repo := cfg.OwnerRepo()
	gw := gateway.New(ctx, cfg.GitHubToken, owner, repo, cfg.BaseBranch)

	clog.InfoContextf(ctx, "Agent targeting %s/%s (base %q, label %q, producer %s, max %d iterations)",
		owner, repo, cfg.BaseBranch, cfg.TriggerLabel, prod.Name(), cfg.MaxIterations)

	ctrl := controller.New(gw, prod, gw,
		controller.WithTriggerLabel(cfg.TriggerLabel),
		controller.WithReviewerLogin(cfg.ReviewerLogin),
		controller.WithAgentLogin(cfg.AgentLogin),
		controller.WithMaxIterations(cfg.MaxIterations),
		controller.WithConcurrency(cfg.Concurrency),
	)
	return ctrl, cfg, nil
}

// serveMetrics exposes Prometheus metrics until the context is canceled.
func serveMetrics(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	clog.InfoContextf(ctx, "Serving metrics on :%d", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		clog.ErrorContextf(ctx, "metrics server failed: %v", err)
	}
}
