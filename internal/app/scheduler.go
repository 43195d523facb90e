package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

type Runner interface {
	Run(ctx context.Context) error
	Interval() time.Duration
	WalletID() int
}

// Scheduler runs every wallet once per pass, one after another, then waits
// for the largest configured interval.
type Scheduler struct {
	runners []Runner
	log     *zap.Logger
	wait    func(ctx context.Context, d time.Duration) bool
}

func NewScheduler(runners []Runner, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{runners: runners, log: log, wait: sleepCtx}
}

func (s *Scheduler) Interval() time.Duration {
	var max time.Duration
	for _, r := range s.runners {
		if d := r.Interval(); d > max {
			max = d
		}
	}
	if max <= 0 {
		max = time.Minute
	}
	return max
}

// RunOnce runs one pass. A failing wallet is logged and the pass continues;
// only cancellation ends it early.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	for _, r := range s.runners {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("wallet cycle failed", zap.Int("wallet", r.WalletID()), zap.Error(err))
		}
	}
	return nil
}

func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.runners) == 0 {
		return errors.New("no wallets to run")
	}
	interval := s.Interval()
	for {
		if err := s.RunOnce(ctx); err != nil {
			return err
		}
		s.log.Info("waiting for next pass", zap.Duration("interval", interval))
		if !s.wait(ctx, interval) {
			return ctx.Err()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
