package scheduler

import (
	"context"

	"go.uber.org/zap"
)

func (s *Scheduler) runWaves(ctx context.Context) Result {
	var res Result
	for w := 1; w <= s.opt.Waves; w++ {
		if ctx.Err() != nil {
			res.StopReason = StopInterrupted
			return res
		}
		games := s.opt.Games.Eligible(ctx, true)
		if len(games) == 0 {
			s.log.Info("no eligible games left, ending run", zap.Int("wave", w))
			res.StopReason = StopNoEligibleGames
			return res
		}

		s.wave.Store(int64(w))
		users := s.waveUsers()
		s.log.Info("wave started",
			zap.Int("wave", w),
			zap.Int("waves", s.opt.Waves),
			zap.Int("size", len(users)),
			zap.Int("eligible_games", len(games)),
		)
		for i, user := range users {
			if !s.pace(ctx, i == 0) {
				break
			}
			s.launch(ctx, user, games)
		}

		if ctx.Err() == nil {
			select {
			case <-s.tasks.idle():
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			res.StopReason = StopInterrupted
			s.drain()
			return res
		}
		res.Waves = w
		s.log.Info("wave completed", zap.Int("wave", w))

		if w < s.opt.Waves {
			if err := s.sleep(ctx, s.opt.WavePause); err != nil {
				res.StopReason = StopInterrupted
				return res
			}
		}
	}
	res.StopReason = StopCompleted
	return res
}

// waveUsers samples WaveSize users without replacement. When the roster is
// smaller than the wave, the remainder is drawn with replacement so the wave
// still launches WaveSize attempts.
func (s *Scheduler) waveUsers() []string {
	pool := append([]string(nil), s.opt.Users...)
	n := s.opt.WaveSize
	out := make([]string, 0, n)
	for i := 0; i < n && i < len(pool); i++ {
		j := i + s.opt.Jitter.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
		out = append(out, pool[i])
	}
	for len(out) < n {
		out = append(out, s.randomUser())
	}
	return out
}
