package stats_test

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/frolic/frolicsim/internal/stats"
)

func TestAggregatorCounts(t *testing.T) {
	a := stats.NewAggregator()

	a.RecordAccepted("g1", 10*time.Millisecond)
	a.RecordAccepted("g1", 20*time.Millisecond)
	a.RecordAccepted("g2", 30*time.Millisecond)
	a.RecordRejected("game_not_active", 5*time.Millisecond)
	a.RecordRejected("", 0)
	a.RecordResult(true, 2)
	a.RecordResult(false, 0)
	a.RecordUnresolved()

	s := a.Snapshot()
	if s.TotalPlays != 5 {
		t.Errorf("TotalPlays = %d, want 5", s.TotalPlays)
	}
	if s.SuccessfulSubmissions != 3 || s.FailedSubmissions != 2 {
		t.Errorf("successful/failed = %d/%d, want 3/2", s.SuccessfulSubmissions, s.FailedSubmissions)
	}
	if s.Winners != 1 || s.Losers != 1 || s.ResultsChecked != 2 {
		t.Errorf("winners/losers/checked = %d/%d/%d, want 1/1/2", s.Winners, s.Losers, s.ResultsChecked)
	}
	if s.Unresolved != 1 || s.Pending != 0 {
		t.Errorf("unresolved/pending = %d/%d, want 1/0", s.Unresolved, s.Pending)
	}
	if s.CouponsAwarded != 2 {
		t.Errorf("CouponsAwarded = %d, want 2", s.CouponsAwarded)
	}
	if s.WinRatePct != 50 {
		t.Errorf("WinRatePct = %v, want 50", s.WinRatePct)
	}
	if s.Rejections["game_not_active"] != 1 || s.Rejections["unknown"] != 1 {
		t.Errorf("Rejections = %v", s.Rejections)
	}
	if s.GamesPlayed["g1"] != 2 || s.GamesPlayed["g2"] != 1 {
		t.Errorf("GamesPlayed = %v", s.GamesPlayed)
	}
	if s.MinLatency != 5*time.Millisecond || s.MaxLatency != 30*time.Millisecond {
		t.Errorf("min/max latency = %v/%v, want 5ms/30ms", s.MinLatency, s.MaxLatency)
	}
	if s.MeanLatency != 16250*time.Microsecond {
		t.Errorf("MeanLatency = %v, want 16.25ms", s.MeanLatency)
	}
	if !s.Consistent() {
		t.Errorf("snapshot not consistent: %+v", s)
	}
}

func TestSnapshotIdempotent(t *testing.T) {
	a := stats.NewAggregator()
	a.RecordAccepted("g1", time.Millisecond)
	a.RecordRejected("http_500", 2*time.Millisecond)
	a.RecordResult(true, 1)

	first := a.Snapshot()
	second := a.Snapshot()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("snapshots differ without writes:\n%+v\n%+v", first, second)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	a := stats.NewAggregator()
	a.RecordAccepted("g1", time.Millisecond)

	s := a.Snapshot()
	s.GamesPlayed["g1"] = 99

	if got := a.Snapshot().GamesPlayed["g1"]; got != 1 {
		t.Fatalf("mutating a snapshot leaked into the aggregator: got %d", got)
	}
}

func TestAggregatorConcurrentNoLostUpdates(t *testing.T) {
	a := stats.NewAggregator()
	const workers = 50
	const perWorker = 200

	var wg sync.WaitGroup
	stop := make(chan struct{})
	var readerErr error
	var readerWG sync.WaitGroup
	readerWG.Add(1)
	go func() {
		defer readerWG.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if s := a.Snapshot(); !s.Consistent() {
				readerErr = fmt.Errorf("torn snapshot observed: %+v", s)
				return
			}
		}
	}()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if i%4 == 0 {
					a.RecordRejected("http_400", time.Millisecond)
					continue
				}
				a.RecordAccepted("g", time.Millisecond)
				a.RecordResult(i%2 == 0, 1)
			}
		}(w)
	}
	wg.Wait()
	close(stop)
	readerWG.Wait()

	if readerErr != nil {
		t.Fatal(readerErr)
	}
	s := a.Snapshot()
	if s.TotalPlays != workers*perWorker {
		t.Errorf("TotalPlays = %d, want %d", s.TotalPlays, workers*perWorker)
	}
	if s.FailedSubmissions != workers*perWorker/4 {
		t.Errorf("FailedSubmissions = %d, want %d", s.FailedSubmissions, workers*perWorker/4)
	}
	if s.ResultsChecked != s.SuccessfulSubmissions {
		t.Errorf("ResultsChecked = %d, want %d", s.ResultsChecked, s.SuccessfulSubmissions)
	}
	if !s.Consistent() {
		t.Errorf("final snapshot inconsistent: %+v", s)
	}
}

func TestTopGames(t *testing.T) {
	s := stats.Snapshot{GamesPlayed: map[string]int64{"c": 2, "a": 5, "b": 2, "d": 1}}

	got := s.TopGames(3)
	want := []stats.GameCount{{GameID: "a", Plays: 5}, {GameID: "b", Plays: 2}, {GameID: "c", Plays: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TopGames(3) = %v, want %v", got, want)
	}
	if all := s.TopGames(0); len(all) != 4 {
		t.Fatalf("TopGames(0) returned %d rows, want 4", len(all))
	}
}
