package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frolic/frolicsim/internal/output"
	"github.com/frolic/frolicsim/internal/scheduler"
)

type fakePlatform struct {
	plays  atomic.Int64
	health string
}

func (f *fakePlatform) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /actuator/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"status":%q}`, f.health)
	})
	mux.HandleFunc("GET /api/v1/admin/games", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"g1","name":"Spin","status":"ACTIVE"},{"id":"g2","name":"Old","status":"INACTIVE"}]`)
	})
	mux.HandleFunc("POST /api/v1/play", func(w http.ResponseWriter, r *http.Request) {
		n := f.plays.Add(1)
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(w, `{"playId":"p-%d"}`, n)
	})
	mux.HandleFunc("GET /api/v1/play/{id}/result", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"winner":true,"coupons":[{"brandId":"b1","couponCode":"C1"}]}`)
	})
	return mux
}

func startPlatform(t *testing.T, health string) (*fakePlatform, string) {
	t.Helper()
	fp := &fakePlatform{health: health}
	srv := httptest.NewServer(fp.handler())
	t.Cleanup(srv.Close)
	return fp, srv.URL + "/api/v1"
}

func writeUsersFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo_data_ids.json")
	content := `{
  "user_ids": ["u1", "u2", "u3", "u4"],
  "budgets": [
    {"game_id": "g1", "brand_id": "b1", "brand_name": "Acme", "initial_budget": 100},
    {"game_id": "g1", "brand_id": "b2", "initial_budget": 50}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestExecuteHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.NoError(t, execute(context.Background(), []string{"--help"}, &stdout, &stderr))
}

func TestExecuteRejectsInvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := execute(context.Background(), []string{"--user=u1", "--policy=burst"}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `policy "burst"`)
}

func TestExecuteStressRunReconciles(t *testing.T) {
	fp, baseURL := startPlatform(t, "UP")
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("budget:game:g1:brand:b1", "37"))

	var stdout, stderr bytes.Buffer
	err := execute(context.Background(), []string{
		"--base-url", baseURL,
		"--users-file", writeUsersFile(t),
		"--policy=stress",
		"--total=20",
		"--resolve-delay-min=0",
		"--resolve-delay-max=0",
		"--redis-addr", mr.Addr(),
		"--lock-file", filepath.Join(t.TempDir(), "run.lock"),
		"--json-output",
		"--log-level=warn",
	}, &stdout, &stderr)
	require.NoError(t, err, "stderr: %s", stderr.String())

	var sum output.Summary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &sum), stdout.String())

	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, scheduler.StopCompleted, sum.Run.StopReason)
	assert.EqualValues(t, 20, sum.Run.Launched)
	assert.EqualValues(t, 20, fp.plays.Load())
	assert.EqualValues(t, 20, sum.Stats.TotalPlays)
	assert.EqualValues(t, 20, sum.Stats.Winners)
	assert.EqualValues(t, 20, sum.Stats.CouponsAwarded)
	assert.EqualValues(t, 20, sum.Stats.GamesPlayed["g1"])
	assert.Zero(t, sum.Stats.GamesPlayed["g2"], "inactive games receive no traffic")

	require.NotNil(t, sum.Budget)
	require.Len(t, sum.Budget.Rows, 2)
	b1, b2 := sum.Budget.Rows[0], sum.Budget.Rows[1]
	assert.EqualValues(t, 63, b1.Consumed)
	assert.Equal(t, "Spin", b1.GameName, "game names come from the admin games list")
	assert.Equal(t, "Acme", b1.BrandName)
	assert.Empty(t, b2.BrandName)
	assert.InDelta(t, 63.0, b1.ConsumedPct, 1e-9)
	require.NotNil(t, b2.Final)
	assert.EqualValues(t, 0, *b2.Final, "missing key counts as fully consumed")
	assert.EqualValues(t, 50, b2.Consumed)
	assert.True(t, sum.Budget.Complete())
	assert.Empty(t, sum.ReconcileError)
}

func TestExecuteReconcileFailureIsRunError(t *testing.T) {
	_, baseURL := startPlatform(t, "UP")
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	var stdout, stderr bytes.Buffer
	err := execute(context.Background(), []string{
		"--base-url", baseURL,
		"--users-file", writeUsersFile(t),
		"--policy=stress",
		"--total=3",
		"--resolve-delay-max=0",
		"--resolve-delay-min=0",
		"--redis-addr", addr,
		"--progress=false",
		"--log-level=error",
	}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget reconciliation")

	report := stdout.String()
	assert.Contains(t, report, "Total:           3", "stats still print")
	assert.Contains(t, report, "INCOMPLETE: 2 of 2 pairs not reconciled")
}

func TestExecuteQuickPresetWithoutReconcile(t *testing.T) {
	fp, baseURL := startPlatform(t, "UP")

	var stdout, stderr bytes.Buffer
	err := execute(context.Background(), []string{
		"--base-url", baseURL,
		"--user=u1", "--user=u2",
		"--policy=quick",
		"--stagger-min=0", "--stagger-max=0",
		"--resolve-delay-min=0", "--resolve-delay-max=0",
		"--skip-reconcile",
		"--progress=false",
		"--log-level=error",
	}, &stdout, &stderr)
	require.NoError(t, err)

	report := stdout.String()
	assert.Contains(t, report, "Policy:            wave")
	assert.Contains(t, report, "Waves Completed:   1")
	assert.Contains(t, report, "Budget Reconciliation:\n  Skipped")
	assert.EqualValues(t, 10, fp.plays.Load())
}

func TestExecuteAbortsWhenPlatformUnhealthy(t *testing.T) {
	fp, baseURL := startPlatform(t, "DOWN")

	var stdout, stderr bytes.Buffer
	err := execute(context.Background(), []string{"--base-url", baseURL, "--user=u1", "--progress=false"}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health")
	assert.Zero(t, fp.plays.Load())
}

func TestExecuteCancelledBeforeStart(t *testing.T) {
	fp, baseURL := startPlatform(t, "UP")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	err := execute(ctx, []string{
		"--base-url", baseURL,
		"--user=u1",
		"--skip-health-check",
		"--policy=continuous",
		"--concurrency=2",
		"--duration=1m",
		"--skip-reconcile",
	}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list active games")
	assert.Zero(t, fp.plays.Load())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("info", "json", &buf)
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, logger.Sync())
	assert.True(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"), buf.String())

	buf.Reset()
	logger, err = newLogger("warn", "console", &buf)
	require.NoError(t, err)
	logger.Info("dropped")
	assert.Empty(t, buf.String())

	_, err = newLogger("loud", "console", &buf)
	assert.Error(t, err)
}
