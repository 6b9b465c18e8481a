/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package poller drives the controller on a fixed interval until the
// context is canceled.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/megashkola/code-agent/metrics"
)

// Sweeper performs one pass over all tracked issues.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// Poller repeatedly invokes a Sweeper.
type Poller struct {
	sweeper  Sweeper
	interval time.Duration
}

// New creates a Poller. The interval must be positive.
func New(sweeper Sweeper, interval time.Duration) (*Poller, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", interval)
	}
	return &Poller{sweeper: sweeper, interval: interval}, nil
}

// Run sweeps immediately and then forever until ctx is canceled, which is
// a graceful stop and returns nil. A failed sweep is logged and the loop
// keeps going; the next sweep gets a fresh chance.
//
// The interval is a sleep after each sweep completes, not a fixed-rate
// schedule: a sweep that outlasts the interval never causes back-to-back
// sweeps.
func (p *Poller) Run(ctx context.Context) error {
	log := clog.FromContext(ctx)
	log.With("interval", p.interval).Info("Starting poll loop")

	for {
		p.sweep(ctx)

		select {
		case <-ctx.Done():
			log.Info("Poll loop stopping")
			return nil
		case <-time.After(p.interval):
		}
	}
}

func (p *Poller) sweep(ctx context.Context) {
	start := time.Now()
	metrics.Sweeps.Inc()

	if err := p.sweeper.Sweep(ctx); err != nil {
		clog.FromContext(ctx).With("error", err).Error("Sweep failed")
	}
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
}
