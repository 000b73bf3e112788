package services

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Sweeper removes sessions that have been idle for longer than ttl.
type Sweeper interface {
	Sweep(ctx context.Context, ttl time.Duration) (int, error)
}

// Janitor periodically expires abandoned sessions.
type Janitor struct {
	log      *zap.Logger
	sweeper  Sweeper
	clock    clock.Clock
	ttl      time.Duration
	interval time.Duration
}

func NewJanitor(log *zap.Logger, sweeper Sweeper, clk clock.Clock, ttl, interval time.Duration) *Janitor {
	if clk == nil {
		clk = clock.New()
	}
	return &Janitor{
		log:      log.Named("janitor"),
		sweeper:  sweeper,
		clock:    clk,
		ttl:      ttl,
		interval: interval,
	}
}

// Run sweeps on every tick until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	j.log.Info("Starting session janitor",
		zap.Duration("ttl", j.ttl),
		zap.Duration("interval", j.interval),
	)
	ticker := j.clock.Ticker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("Session janitor stopped")
			return nil
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep.
func (j *Janitor) RunOnce(ctx context.Context) int {
	n, err := j.sweeper.Sweep(ctx, j.ttl)
	if err != nil {
		j.log.Error("Failed to sweep sessions", zap.Error(err))
	}
	if n > 0 {
		j.log.Info("Expired idle sessions", zap.Int("count", n))
	}
	return n
}
