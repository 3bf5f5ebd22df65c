package budget_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frolic/frolicsim/internal/budget"
)

func TestRedisStoreRemaining(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set(budget.Key("g1", "b1"), "37"))
	require.NoError(t, mr.Set(budget.Key("g1", "b2"), " 5 "))

	store := budget.NewRedisStore(budget.RedisOptions{Addr: mr.Addr()})
	t.Cleanup(func() { _ = store.Close() })

	got, err := store.Remaining(context.Background(), []string{
		budget.Key("g1", "b1"),
		budget.Key("g1", "b2"),
		budget.Key("g1", "missing"),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		budget.Key("g1", "b1"): 37,
		budget.Key("g1", "b2"): 5,
	}, got)
}

func TestRedisStoreEndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set(budget.Key("g1", "b1"), "37"))

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := budget.NewRedisStoreFromClient(client)
	t.Cleanup(func() { _ = store.Close() })

	l := budget.NewLedger()
	l.Record("g1", "b1", 100)
	l.Record("g1", "b2", 100)
	require.NoError(t, l.Reconcile(context.Background(), store))

	rep := l.Report()
	assert.EqualValues(t, 63, rep.Rows[0].Consumed)
	assert.EqualValues(t, 100, rep.Rows[1].Consumed)
}

func TestRedisStoreMalformedValueFailsBatch(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set(budget.Key("g1", "b1"), "37"))
	require.NoError(t, mr.Set(budget.Key("g1", "b2"), "lots"))

	store := budget.NewRedisStore(budget.RedisOptions{Addr: mr.Addr()})
	t.Cleanup(func() { _ = store.Close() })

	l := budget.NewLedger()
	l.Record("g1", "b1", 100)
	l.Record("g1", "b2", 100)

	err := l.Reconcile(context.Background(), store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
	assert.Equal(t, 2, l.Report().Unreconciled)
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	store := budget.NewRedisStore(budget.RedisOptions{Addr: addr})
	t.Cleanup(func() { _ = store.Close() })

	_, err := store.Remaining(context.Background(), []string{budget.Key("g1", "b1")})
	assert.ErrorIs(t, err, budget.ErrStoreUnavailable)
}
