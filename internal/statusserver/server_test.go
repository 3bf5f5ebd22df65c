package statusserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frolic/frolicsim/internal/stats"
)

type fakeRun struct{ inFlight, launched, wave int64 }

func (f fakeRun) InFlight() int64 { return f.inFlight }
func (f fakeRun) Launched() int64 { return f.launched }
func (f fakeRun) Wave() int64     { return f.wave }

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(opts).Router())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, Options{})
	var body map[string]interface{}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", &body))
	assert.Equal(t, true, body["ok"])
}

func TestStatsServesSnapshot(t *testing.T) {
	agg := stats.NewAggregator()
	agg.RecordAccepted("g1", 10*time.Millisecond)
	agg.RecordAccepted("g1", 20*time.Millisecond)
	agg.RecordRejected("http_500", 5*time.Millisecond)
	agg.RecordResult(true, 2)

	ts := newTestServer(t, Options{Stats: agg})
	var snap stats.Snapshot
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/stats", &snap))

	assert.EqualValues(t, 3, snap.TotalPlays)
	assert.EqualValues(t, 2, snap.SuccessfulSubmissions)
	assert.EqualValues(t, 1, snap.Winners)
	assert.EqualValues(t, 2, snap.GamesPlayed["g1"])
	assert.EqualValues(t, 1, snap.Rejections["http_500"])
}

func TestStatsUnavailableWithoutAggregator(t *testing.T) {
	ts := newTestServer(t, Options{})
	var body map[string]string
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/stats", &body))
	assert.Equal(t, "stats not available", body["error"])
}

func TestRunReportsSchedulerProgress(t *testing.T) {
	ts := newTestServer(t, Options{
		RunID:  "01HZX",
		Policy: "wave",
		Run:    fakeRun{inFlight: 4, launched: 17, wave: 2},
	})
	var status runStatus
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/run", &status))
	assert.Equal(t, "01HZX", status.RunID)
	assert.Equal(t, "wave", status.Policy)
	assert.EqualValues(t, 4, status.InFlight)
	assert.EqualValues(t, 17, status.Launched)
	assert.EqualValues(t, 2, status.Wave)
}

func TestUnknownRouteIs404(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartAndShutdown(t *testing.T) {
	s := New(Options{RunID: "r"})
	addr, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}
