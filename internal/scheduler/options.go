package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/frolic/frolicsim/internal/attempt"
	"github.com/frolic/frolicsim/internal/jitter"
	"github.com/frolic/frolicsim/internal/platform"
)

type Policy string

const (
	PolicyWave       Policy = "wave"
	PolicyContinuous Policy = "continuous"
	PolicyStress     Policy = "stress"
)

// Executor runs one attempt to completion.
type Executor interface {
	Execute(ctx context.Context, userID string, game platform.Game) attempt.Outcome
}

// Eligibility returns the games currently accepting traffic. force bypasses
// any cache.
type Eligibility interface {
	Eligible(ctx context.Context, force bool) []platform.Game
}

// StaticGames is an Eligibility that never changes.
type StaticGames []platform.Game

func (s StaticGames) Eligible(context.Context, bool) []platform.Game { return s }

// Options configure the Scheduler.
type Options struct {
	Policy      Policy
	Waves       int           // wave: number of sequential waves
	WaveSize    int           // wave: attempts per wave
	Concurrency int           // continuous: in-flight target
	Duration    time.Duration // continuous: how long to hold traffic
	Total       int           // stress: attempts to launch

	DrainTimeout   time.Duration // max wait for in-flight attempts after a stop
	AttemptTimeout time.Duration // per-attempt bound, independent of run cancellation (0 means none)
	PollInterval   time.Duration // continuous: coordinating loop interval

	Stagger   jitter.Window // spacing between launches (wave and continuous)
	WavePause jitter.Window // pause between waves

	LaunchRate     float64                         // launches per second for wave/continuous (0 means unlimited)
	LimiterFactory func(rps float64) *rate.Limiter // optional injection for tests

	Jitter   *jitter.Source
	Users    []string
	Games    Eligibility
	Executor Executor
	Logger   *zap.Logger
}

func (o *Options) normalize() {
	if o.DrainTimeout < 0 {
		o.DrainTimeout = 0
	}
	if o.AttemptTimeout < 0 {
		o.AttemptTimeout = 0
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.LaunchRate < 0 {
		o.LaunchRate = 0
	}
	if o.Jitter == nil {
		o.Jitter = jitter.New(0)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps float64) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			burst := int(math.Ceil(rps))
			if burst < 1 {
				burst = 1
			}
			return rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

func (o Options) validate() error {
	if o.Executor == nil {
		return errors.New("scheduler: executor is required")
	}
	if o.Games == nil {
		return errors.New("scheduler: eligibility source is required")
	}
	if len(o.Users) == 0 {
		return errors.New("scheduler: at least one user is required")
	}
	switch o.Policy {
	case PolicyWave:
		if o.Waves < 1 || o.WaveSize < 1 {
			return fmt.Errorf("scheduler: wave policy needs waves >= 1 and wave size >= 1, got %d and %d", o.Waves, o.WaveSize)
		}
	case PolicyContinuous:
		if o.Concurrency < 1 || o.Duration <= 0 {
			return fmt.Errorf("scheduler: continuous policy needs concurrency >= 1 and duration > 0, got %d and %s", o.Concurrency, o.Duration)
		}
	case PolicyStress:
		if o.Total < 1 {
			return fmt.Errorf("scheduler: stress policy needs total >= 1, got %d", o.Total)
		}
	default:
		return fmt.Errorf("scheduler: unknown policy %q", o.Policy)
	}
	return nil
}
