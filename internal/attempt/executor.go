// Package attempt runs a single play attempt end to end: submit, wait, poll once, classify.
package attempt

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/frolic/frolicsim/internal/jitter"
	"github.com/frolic/frolicsim/internal/platform"
	"github.com/frolic/frolicsim/internal/stats"
	"github.com/frolic/frolicsim/internal/tracing"
)

// Platform is the subset of the platform client an attempt needs.
type Platform interface {
	SubmitPlay(ctx context.Context, userID, gameID string) (string, error)
	Result(ctx context.Context, playID string) (platform.PlayResult, bool, error)
}

// Sink receives every classified outcome. Publish must not block for long.
type Sink interface {
	Publish(ctx context.Context, userID string, game platform.Game, out Outcome)
}

type Options struct {
	Platform     Platform
	Stats        *stats.Aggregator
	ResolveDelay jitter.Window
	Jitter       *jitter.Source
	Logger       *zap.Logger
	Tracer       trace.Tracer
	Sink         Sink
}

// Executor is safe for concurrent use by many goroutines.
type Executor struct {
	platform Platform
	stats    *stats.Aggregator
	delay    jitter.Window
	jitter   *jitter.Source
	logger   *zap.Logger
	tracer   trace.Tracer
	sink     Sink
	logged   sync.Map
}

func New(opts Options) (*Executor, error) {
	if opts.Platform == nil {
		return nil, errors.New("attempt: platform is required")
	}
	if opts.Stats == nil {
		return nil, errors.New("attempt: stats aggregator is required")
	}
	e := &Executor{
		platform: opts.Platform,
		stats:    opts.Stats,
		delay:    opts.ResolveDelay,
		jitter:   opts.Jitter,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		sink:     opts.Sink,
	}
	if e.jitter == nil {
		e.jitter = jitter.New(0)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.tracer == nil {
		e.tracer = noop.NewTracerProvider().Tracer("frolicsim")
	}
	return e, nil
}

// Execute runs one attempt for userID against game. It records into the
// aggregator exactly once for the submission and, if accepted, exactly once
// more for the result or its absence.
func (e *Executor) Execute(ctx context.Context, userID string, game platform.Game) Outcome {
	ctx, span := tracing.StartAttemptSpan(ctx, e.tracer, userID, game.ID)
	out := e.execute(ctx, userID, game)
	tracing.EndSpan(span, nil,
		tracing.AttrOutcome.String(out.Kind.String()),
		tracing.AttrPlayID.String(out.PlayID),
	)
	if e.sink != nil {
		e.sink.Publish(ctx, userID, game, out)
	}
	return out
}

func (e *Executor) execute(ctx context.Context, userID string, game platform.Game) Outcome {
	start := time.Now()
	playID, err := e.platform.SubmitPlay(ctx, userID, game.ID)
	latency := time.Since(start)
	if err != nil {
		return e.reject(err, userID, game, latency)
	}
	e.stats.RecordAccepted(game.ID, latency)

	if playID == "" {
		e.warnOnce("missing_play_id", "play accepted without a play id",
			zap.String("game_id", game.ID))
		e.stats.RecordUnresolved()
		return unresolved("")
	}

	if err := jitter.Sleep(ctx, e.jitter.Between(e.delay)); err != nil {
		e.stats.RecordUnresolved()
		return unresolved(playID)
	}

	res, ready, err := e.platform.Result(ctx, playID)
	if err != nil {
		e.warnOnce("poll_failed", "result poll failed", zap.Error(err))
		e.stats.RecordUnresolved()
		return unresolved(playID)
	}
	if !ready {
		e.stats.RecordUnresolved()
		return unresolved(playID)
	}

	e.stats.RecordResult(res.Winner, len(res.Coupons))
	if res.Winner {
		e.logger.Debug("play won",
			zap.String("user_id", userID),
			zap.String("game_id", game.ID),
			zap.String("game_name", game.Name),
			zap.Int("coupons", len(res.Coupons)),
		)
	}
	return settled(playID, res)
}

func (e *Executor) reject(err error, userID string, game platform.Game, latency time.Duration) Outcome {
	kind, reason, benign := "submit_error", err.Error(), false

	var rej *platform.RejectedError
	switch {
	case errors.As(err, &rej):
		kind, reason, benign = rej.Kind(), rej.Reason, rej.Benign()
	case platform.IsConnectivity(err):
		kind = "connectivity"
	}
	e.stats.RecordRejected(kind, latency)

	if !benign {
		e.warnOnce(kind, "play submission failed",
			zap.String("kind", kind),
			zap.String("reason", reason),
			zap.String("user_id", userID),
			zap.String("game_id", game.ID),
		)
	}
	return rejected(reason, benign)
}

// warnOnce logs the first occurrence of each failure kind only.
func (e *Executor) warnOnce(kind, msg string, fields ...zap.Field) {
	if _, seen := e.logged.LoadOrStore(kind, struct{}{}); seen {
		return
	}
	e.logger.Warn(msg, append(fields, zap.String("note", "further occurrences of this kind are counted, not logged"))...)
}
