package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/frolic/frolicsim/internal/stats"
)

type StatsSource interface {
	Snapshot() stats.Snapshot
}

// InFlightSource reports attempts currently running.
type InFlightSource interface {
	InFlight() int64
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	stats    StatsSource
	inFlight InFlightSource
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	start    time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
// run may be nil.
func NewProgressReporter(src StatsSource, run InFlightSource, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		stats:    src,
		inFlight: run,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
		start:    time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and ends the line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.line())
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	snap := p.stats.Snapshot()
	elapsed := time.Since(p.start).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(snap.TotalPlays) / elapsed
	}
	line := fmt.Sprintf("\rPlays: %d | Accepted: %d | Failed: %d | Won: %d | Unresolved: %d | Rate: %.1f/s",
		snap.TotalPlays, snap.SuccessfulSubmissions, snap.FailedSubmissions, snap.Winners, snap.Unresolved, rate)
	if p.inFlight != nil {
		line += fmt.Sprintf(" | In-flight: %d", p.inFlight.InFlight())
	}
	return line
}
