package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/frolic/frolicsim/internal/jitter"
	"github.com/frolic/frolicsim/internal/platform"
)

// StopReason says why a run ended.
type StopReason string

const (
	StopCompleted       StopReason = "completed"
	StopDurationElapsed StopReason = "duration_elapsed"
	StopInterrupted     StopReason = "interrupted"
	StopNoEligibleGames StopReason = "no_eligible_games"
)

// Result captures a run summary.
type Result struct {
	Policy     Policy        `json:"policy"`
	StopReason StopReason    `json:"stop_reason"`
	Launched   int64         `json:"launched"`
	Completed  int64         `json:"completed"`
	Abandoned  int64         `json:"abandoned"`
	Waves      int           `json:"waves_completed,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMs float64       `json:"duration_ms"`
}

// Scheduler runs exactly one policy once.
type Scheduler struct {
	opt     Options
	tasks   *taskSet
	limiter *rate.Limiter
	log     *zap.Logger
	wave    atomic.Int64
	started atomic.Bool
}

func New(opt Options) (*Scheduler, error) {
	opt.normalize()
	if err := opt.validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		opt:     opt,
		tasks:   newTaskSet(),
		limiter: opt.LimiterFactory(opt.LaunchRate),
		log:     opt.Logger.With(zap.String("component", "scheduler"), zap.String("policy", string(opt.Policy))),
	}, nil
}

// InFlight returns the number of attempts currently running.
func (s *Scheduler) InFlight() int64 { return s.tasks.inFlight.Load() }

// Launched returns the number of attempts started so far.
func (s *Scheduler) Launched() int64 { return s.tasks.launched.Load() }

// Wave returns the 1-based wave in progress, or 0 outside the wave policy.
func (s *Scheduler) Wave() int64 { return s.wave.Load() }

// Run drives traffic until the policy's stopping condition or ctx is
// cancelled. It must be called at most once.
func (s *Scheduler) Run(ctx context.Context) Result {
	if !s.started.CompareAndSwap(false, true) {
		return Result{Policy: s.opt.Policy, StopReason: StopCompleted}
	}
	start := time.Now()

	var res Result
	switch s.opt.Policy {
	case PolicyWave:
		res = s.runWaves(ctx)
	case PolicyContinuous:
		res = s.runContinuous(ctx)
	case PolicyStress:
		res = s.runStress(ctx)
	}

	res.Policy = s.opt.Policy
	res.Launched = s.tasks.launched.Load()
	res.Completed = s.tasks.completed.Load()
	res.Abandoned = res.Launched - res.Completed
	res.Duration = time.Since(start)
	res.DurationMs = float64(res.Duration) / float64(time.Millisecond)

	s.log.Info("run finished",
		zap.String("stop_reason", string(res.StopReason)),
		zap.Int64("launched", res.Launched),
		zap.Int64("abandoned", res.Abandoned),
		zap.Duration("elapsed", res.Duration),
	)
	return res
}

// launch starts one attempt for user against a random game from games.
// The attempt's context survives run cancellation so it can finish.
func (s *Scheduler) launch(ctx context.Context, user string, games []platform.Game) {
	game := games[s.opt.Jitter.Intn(len(games))]
	detached := context.WithoutCancel(ctx)
	s.tasks.Go(func() {
		attemptCtx := detached
		if s.opt.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(detached, s.opt.AttemptTimeout)
			defer cancel()
		}
		s.opt.Executor.Execute(attemptCtx, user, game)
	})
}

func (s *Scheduler) randomUser() string {
	return s.opt.Users[s.opt.Jitter.Intn(len(s.opt.Users))]
}

// pace applies the launch rate limit and the stagger delay. It returns false
// if ctx ended first.
func (s *Scheduler) pace(ctx context.Context, first bool) bool {
	if err := s.limiter.Wait(ctx); err != nil {
		return false
	}
	if first {
		return ctx.Err() == nil
	}
	return s.sleep(ctx, s.opt.Stagger) == nil
}

func (s *Scheduler) sleep(ctx context.Context, w jitter.Window) error {
	return jitter.Sleep(ctx, s.opt.Jitter.Between(w))
}

// drain waits up to DrainTimeout for in-flight attempts.
func (s *Scheduler) drain() {
	inFlight := s.tasks.inFlight.Load()
	if inFlight == 0 {
		return
	}
	s.log.Info("draining in-flight attempts",
		zap.Int64("in_flight", inFlight),
		zap.Duration("timeout", s.opt.DrainTimeout),
	)
	if !s.tasks.WaitTimeout(s.opt.DrainTimeout) {
		s.log.Warn("drain timeout elapsed, abandoning attempts",
			zap.Int64("abandoned", s.tasks.inFlight.Load()))
	}
}

func stopReason(ctx context.Context, fallback StopReason) StopReason {
	if ctx.Err() != nil {
		return StopInterrupted
	}
	return fallback
}
