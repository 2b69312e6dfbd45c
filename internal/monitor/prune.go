package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Pruner interface {
	PruneStaleIssues(maxAge time.Duration) (int, error)
}

// ParseSchedule parses a standard 5-field cron expression
// (minute hour day-of-month month day-of-week).
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(strings.TrimSpace(spec))
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return sched, nil
}

// RunPruneScheduler prunes processed-issue state older than maxAge on the
// given cron schedule until ctx is cancelled. An empty schedule disables it.
func RunPruneScheduler(ctx context.Context, spec string, loc *time.Location, maxAge time.Duration, store Pruner, log *zap.Logger) error {
	if strings.TrimSpace(spec) == "" {
		log.Info("state pruning disabled (state_prune_schedule not set)")
		return nil
	}
	sched, err := ParseSchedule(spec)
	if err != nil {
		return err
	}
	if loc == nil {
		loc = time.UTC
	}
	log.Info("state pruning scheduled", zap.String("cron", spec), zap.Duration("max_age", maxAge))

	for {
		now := time.Now().In(loc)
		next := sched.Next(now)
		wait := next.Sub(now)
		log.Debug("next state prune", zap.Time("at", next), zap.Duration("in", wait.Round(time.Second)))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		removed, err := store.PruneStaleIssues(maxAge)
		if err != nil {
			log.Error("state prune failed", zap.Error(err))
			continue
		}
		log.Info("state prune complete", zap.Int("removed", removed))
	}
}
