package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

func (s *Scheduler) runContinuous(ctx context.Context) Result {
	runCtx, cancel := context.WithTimeout(ctx, s.opt.Duration)
	defer cancel()

	ticker := time.NewTicker(s.opt.PollInterval)
	defer ticker.Stop()

	target := int64(s.opt.Concurrency)
	first := true
	var res Result

loop:
	for runCtx.Err() == nil {
		games := s.opt.Games.Eligible(runCtx, false)
		if len(games) == 0 {
			s.log.Info("no eligible games left, ending run")
			res.StopReason = StopNoEligibleGames
			break
		}
		for s.tasks.inFlight.Load() < target {
			if !s.pace(runCtx, first) {
				break loop
			}
			first = false
			s.launch(ctx, s.randomUser(), games)
		}

		select {
		case <-runCtx.Done():
		case <-ticker.C:
		case <-s.tasks.finished:
		}
	}

	if res.StopReason == "" {
		res.StopReason = stopReason(ctx, StopDurationElapsed)
	}
	s.log.Debug("continuous loop stopped", zap.String("stop_reason", string(res.StopReason)))
	s.drain()
	return res
}
