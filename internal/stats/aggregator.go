package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Aggregator owns the run's counters. It is safe for concurrent use.
type Aggregator struct {
	mu         sync.Mutex
	hist       *hdrhistogram.Histogram
	total      int64
	successful int64
	failed     int64
	winners    int64
	losers     int64
	checked    int64
	unresolved int64
	coupons    int64
	sumLatency time.Duration
	minLatency time.Duration
	maxLatency time.Duration
	rejections map[string]int64
	gamePlays  map[string]int64
}

// Snapshot is a consistent point-in-time copy of the counters.
type Snapshot struct {
	TotalPlays            int64   `json:"total_plays"`
	SuccessfulSubmissions int64   `json:"successful_submissions"`
	FailedSubmissions     int64   `json:"failed_submissions"`
	Winners               int64   `json:"winners"`
	Losers                int64   `json:"losers"`
	ResultsChecked        int64   `json:"results_checked"`
	Unresolved            int64   `json:"unresolved"`
	Pending               int64   `json:"pending"`
	CouponsAwarded        int64   `json:"coupons_awarded"`
	WinRatePct            float64 `json:"win_rate_pct"`

	MinLatency  time.Duration `json:"-"`
	MaxLatency  time.Duration `json:"-"`
	MeanLatency time.Duration `json:"-"`
	P50Latency  time.Duration `json:"-"`
	P90Latency  time.Duration `json:"-"`
	P99Latency  time.Duration `json:"-"`

	MinLatencyMs  float64 `json:"submit_min_latency_ms"`
	MaxLatencyMs  float64 `json:"submit_max_latency_ms"`
	MeanLatencyMs float64 `json:"submit_mean_latency_ms"`
	P50LatencyMs  float64 `json:"submit_p50_latency_ms"`
	P90LatencyMs  float64 `json:"submit_p90_latency_ms"`
	P99LatencyMs  float64 `json:"submit_p99_latency_ms"`

	Rejections  map[string]int64 `json:"rejections,omitempty"`
	GamesPlayed map[string]int64 `json:"games_played,omitempty"`
}

// GameCount is one row of the per-game play ranking.
type GameCount struct {
	GameID string `json:"game_id"`
	Plays  int64  `json:"plays"`
}

func NewAggregator() *Aggregator {
	// Submission latency from 1µs up to 60s with 3 significant figures.
	return &Aggregator{
		hist:       hdrhistogram.New(1, 60_000_000, 3),
		rejections: make(map[string]int64),
		gamePlays:  make(map[string]int64),
	}
}

// RecordAccepted counts a play the platform accepted for gameID.
func (a *Aggregator) RecordAccepted(gameID string, latency time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.successful++
	a.gamePlays[gameID]++
	a.observeLatency(latency)
}

// RecordRejected counts a failed submission, grouped by kind.
func (a *Aggregator) RecordRejected(kind string, latency time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.failed++
	if kind == "" {
		kind = "unknown"
	}
	a.rejections[kind]++
	a.observeLatency(latency)
}

// RecordResult counts a settled play.
func (a *Aggregator) RecordResult(won bool, coupons int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.checked++
	if won {
		a.winners++
		a.coupons += int64(coupons)
	} else {
		a.losers++
	}
}

// RecordUnresolved counts an accepted play whose single poll found no result.
func (a *Aggregator) RecordUnresolved() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unresolved++
}

func (a *Aggregator) observeLatency(latency time.Duration) {
	if latency <= 0 {
		return
	}
	us := latency.Microseconds()
	if us < a.hist.LowestTrackableValue() {
		us = a.hist.LowestTrackableValue()
	}
	if us > a.hist.HighestTrackableValue() {
		us = a.hist.HighestTrackableValue()
	}
	_ = a.hist.RecordValue(us)

	a.sumLatency += latency
	if a.minLatency == 0 || latency < a.minLatency {
		a.minLatency = latency
	}
	if latency > a.maxLatency {
		a.maxLatency = latency
	}
}

// Snapshot reads every counter inside one critical section.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		TotalPlays:            a.total,
		SuccessfulSubmissions: a.successful,
		FailedSubmissions:     a.failed,
		Winners:               a.winners,
		Losers:                a.losers,
		ResultsChecked:        a.checked,
		Unresolved:            a.unresolved,
		Pending:               a.successful - a.checked - a.unresolved,
		CouponsAwarded:        a.coupons,
		MinLatency:            a.minLatency,
		MaxLatency:            a.maxLatency,
	}
	if a.checked > 0 {
		s.WinRatePct = float64(a.winners) / float64(a.checked) * 100
	}
	if n := a.hist.TotalCount(); n > 0 {
		s.MeanLatency = time.Duration(int64(a.sumLatency) / n)
		s.P50Latency = time.Duration(a.hist.ValueAtQuantile(50)) * time.Microsecond
		s.P90Latency = time.Duration(a.hist.ValueAtQuantile(90)) * time.Microsecond
		s.P99Latency = time.Duration(a.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	s.MinLatencyMs = toMillis(s.MinLatency)
	s.MaxLatencyMs = toMillis(s.MaxLatency)
	s.MeanLatencyMs = toMillis(s.MeanLatency)
	s.P50LatencyMs = toMillis(s.P50Latency)
	s.P90LatencyMs = toMillis(s.P90Latency)
	s.P99LatencyMs = toMillis(s.P99Latency)

	if len(a.rejections) > 0 {
		s.Rejections = make(map[string]int64, len(a.rejections))
		for k, v := range a.rejections {
			s.Rejections[k] = v
		}
	}
	if len(a.gamePlays) > 0 {
		s.GamesPlayed = make(map[string]int64, len(a.gamePlays))
		for k, v := range a.gamePlays {
			s.GamesPlayed[k] = v
		}
	}
	return s
}

// TopGames ranks games by accepted plays, ties broken by id. n <= 0 returns all.
func (s Snapshot) TopGames(n int) []GameCount {
	out := make([]GameCount, 0, len(s.GamesPlayed))
	for id, plays := range s.GamesPlayed {
		out = append(out, GameCount{GameID: id, Plays: plays})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Plays != out[j].Plays {
			return out[i].Plays > out[j].Plays
		}
		return out[i].GameID < out[j].GameID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Consistent reports whether the snapshot satisfies the counter invariants.
func (s Snapshot) Consistent() bool {
	return s.TotalPlays == s.SuccessfulSubmissions+s.FailedSubmissions &&
		s.Winners+s.Losers == s.ResultsChecked &&
		s.ResultsChecked+s.Unresolved <= s.SuccessfulSubmissions
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
