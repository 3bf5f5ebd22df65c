// Package events publishes attempt outcomes to Kafka for downstream analysis.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/frolic/frolicsim/internal/attempt"
	"github.com/frolic/frolicsim/internal/platform"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultBuffer       = 4096
	maxBatch            = 100
)

// Event is the JSON payload of one outcome message.
type Event struct {
	EventID    string            `json:"event_id"`
	RunID      string            `json:"run_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	UserID     string            `json:"user_id"`
	GameID     string            `json:"game_id"`
	GameName   string            `json:"game_name,omitempty"`
	PlayID     string            `json:"play_id,omitempty"`
	Outcome    string            `json:"outcome"`
	Reason     string            `json:"reason,omitempty"`
	Benign     bool              `json:"benign,omitempty"`
	Coupons    []platform.Coupon `json:"coupons,omitempty"`
}

// NewEvent builds the message payload for one classified attempt.
func NewEvent(runID, userID string, game platform.Game, out attempt.Outcome) Event {
	return Event{
		EventID:    uuid.NewString(),
		RunID:      runID,
		OccurredAt: time.Now().UTC(),
		UserID:     userID,
		GameID:     game.ID,
		GameName:   game.Name,
		PlayID:     out.PlayID,
		Outcome:    out.Kind.String(),
		Reason:     out.Reason,
		Benign:     out.Benign,
		Coupons:    out.Coupons,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	RunID        string
	WriteTimeout time.Duration
	Buffer       int // events queued for the writer before new ones are dropped
}

// KafkaSink implements attempt.Sink. Publish only enqueues; a single
// goroutine batches events to the broker. Failures and a full buffer are
// logged once and otherwise swallowed so they never influence run statistics
// or hold an attempt in flight.
type KafkaSink struct {
	writer  messageWriter
	runID   string
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	writeWarn sync.Once
	fullWarn  sync.Once
	published atomic.Int64
	dropped   atomic.Int64
}

func NewKafkaSink(cfg KafkaConfig, logger *zap.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaSink(w, cfg.RunID, cfg.WriteTimeout, cfg.Buffer, logger), nil
}

func newKafkaSink(w messageWriter, runID string, timeout time.Duration, buffer int, logger *zap.Logger) *KafkaSink {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &KafkaSink{
		writer:  w,
		runID:   runID,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "events")),
		queue:   make(chan Event, buffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.loop()
	return s
}

// Publish enqueues one event keyed by game id, so a game's outcomes stay on
// one partition. It never waits on the broker.
func (s *KafkaSink) Publish(_ context.Context, userID string, game platform.Game, out attempt.Outcome) {
	ev := NewEvent(s.runID, userID, game, out)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.dropped.Add(1)
		s.fullWarn.Do(func() {
			s.logger.Warn("outcome event buffer full, further drops are counted only", zap.Int("buffer", cap(s.queue)))
		})
	}
}

func (s *KafkaSink) loop() {
	defer close(s.done)
	batch := make([]Event, 0, maxBatch)
	for ev := range s.queue {
		batch = append(batch[:0], ev)
	fill:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-s.queue:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		s.write(batch)
	}
}

func (s *KafkaSink) write(batch []Event) {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, ev := range batch {
		value, err := json.Marshal(ev)
		if err != nil {
			s.fail(1, fmt.Errorf("marshal event: %w", err))
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.GameID),
			Value: value,
			Time:  ev.OccurredAt,
		})
	}
	if len(msgs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		s.fail(len(msgs), err)
		return
	}
	s.published.Add(int64(len(msgs)))
}

func (s *KafkaSink) fail(n int, err error) {
	s.dropped.Add(int64(n))
	s.writeWarn.Do(func() {
		s.logger.Warn("outcome event publish failed, further failures are counted only", zap.Error(err))
	})
}

// Published and Dropped count successful and failed publishes.
func (s *KafkaSink) Published() int64 { return s.published.Load() }
func (s *KafkaSink) Dropped() int64   { return s.dropped.Load() }

// Close flushes queued events, waiting at most one write timeout before
// abandoning whatever the broker has not taken, then releases connections.
func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case <-s.done:
	case <-timer.C:
		s.cancel()
		<-s.done
	}
	s.cancel()

	if n := s.dropped.Load(); n > 0 {
		s.logger.Warn("outcome events dropped during run", zap.Int64("dropped", n))
	}
	return s.writer.Close()
}
