package scheduler

import (
	"context"

	"go.uber.org/zap"
)

// stressLogEvery controls how often launch progress is logged.
const stressLogEvery = 100

func (s *Scheduler) runStress(ctx context.Context) Result {
	var res Result
	for i := 0; i < s.opt.Total; i++ {
		if ctx.Err() != nil {
			res.StopReason = StopInterrupted
			break
		}
		games := s.opt.Games.Eligible(ctx, false)
		if len(games) == 0 {
			s.log.Info("no eligible games left, ending run", zap.Int("launched", i))
			res.StopReason = StopNoEligibleGames
			break
		}
		s.launch(ctx, s.randomUser(), games)
		if (i+1)%stressLogEvery == 0 {
			s.log.Debug("stress launches", zap.Int("launched", i+1), zap.Int("total", s.opt.Total))
		}
	}

	if res.StopReason != StopInterrupted {
		select {
		case <-s.tasks.idle():
			if res.StopReason == "" {
				res.StopReason = StopCompleted
			}
			return res
		case <-ctx.Done():
			res.StopReason = StopInterrupted
		}
	}
	s.drain()
	return res
}
