package budget_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frolic/frolicsim/internal/budget"
)

type mapStore struct {
	values map[string]int64
	err    error
	calls  int
	keys   []string
}

func (m *mapStore) Remaining(_ context.Context, keys []string) (map[string]int64, error) {
	m.calls++
	m.keys = append([]string(nil), keys...)
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]int64)
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func TestKeyFormat(t *testing.T) {
	assert.Equal(t, "budget:game:g-1:brand:b-9", budget.Key("g-1", "b-9"))
}

func TestReconcileConsumption(t *testing.T) {
	l := budget.NewLedger()
	l.Record("g1", "b1", 100)
	l.Record("g1", "b2", 50)

	store := &mapStore{values: map[string]int64{budget.Key("g1", "b1"): 37}}
	require.NoError(t, l.Reconcile(context.Background(), store))

	rep := l.Report()
	require.Len(t, rep.Rows, 2)
	require.True(t, rep.Complete())

	b1 := rep.Rows[0]
	assert.Equal(t, "b1", b1.BrandID)
	assert.EqualValues(t, 63, b1.Consumed)
	assert.InDelta(t, 63.0, b1.ConsumedPct, 1e-9)
	assert.False(t, b1.Violation)

	// Missing key means fully consumed under the default policy.
	b2 := rep.Rows[1]
	require.NotNil(t, b2.Final)
	assert.EqualValues(t, 0, *b2.Final)
	assert.EqualValues(t, 50, b2.Consumed)
	assert.InDelta(t, 100.0, b2.ConsumedPct, 1e-9)

	assert.EqualValues(t, 150, rep.TotalInitial)
	assert.EqualValues(t, 113, rep.TotalConsumed)
}

func TestReportZeroInitialAndViolation(t *testing.T) {
	l := budget.NewLedger()
	l.Record("g1", "zero", 0)
	l.Record("g1", "grew", 10)

	store := &mapStore{values: map[string]int64{
		budget.Key("g1", "zero"): 0,
		budget.Key("g1", "grew"): 15,
	}}
	require.NoError(t, l.Reconcile(context.Background(), store))

	rep := l.Report()
	grew, zero := rep.Rows[0], rep.Rows[1]
	assert.Equal(t, "grew", grew.BrandID)
	assert.EqualValues(t, -5, grew.Consumed, "negative consumption is surfaced, not clamped")
	assert.True(t, grew.Violation)
	assert.Equal(t, 1, rep.Violations)

	assert.Zero(t, zero.ConsumedPct)
	assert.False(t, zero.Violation)
}

func TestReconcileStoreFailureLeavesFinalsUnset(t *testing.T) {
	l := budget.NewLedger()
	l.Record("g1", "b1", 100)
	l.Record("g2", "b1", 100)

	store := &mapStore{err: errors.Join(budget.ErrStoreUnavailable, errors.New("dial tcp: refused"))}
	err := l.Reconcile(context.Background(), store)
	require.Error(t, err)
	assert.ErrorIs(t, err, budget.ErrStoreUnavailable)

	rep := l.Report()
	assert.Equal(t, 2, rep.Unreconciled)
	assert.False(t, rep.Complete())
	for _, row := range rep.Rows {
		assert.Nil(t, row.Final)
		assert.False(t, row.Reconciled)
	}
}

func TestReconcileFinalsAreImmutable(t *testing.T) {
	l := budget.NewLedger()
	l.Record("g1", "b1", 100)

	first := &mapStore{values: map[string]int64{budget.Key("g1", "b1"): 40}}
	require.NoError(t, l.Reconcile(context.Background(), first))

	second := &mapStore{values: map[string]int64{budget.Key("g1", "b1"): 10}}
	require.NoError(t, l.Reconcile(context.Background(), second))
	assert.Zero(t, second.calls, "nothing left to reconcile")

	assert.EqualValues(t, 40, *l.Report().Rows[0].Final)
}

func TestRecordTwiceIsLastWriteWins(t *testing.T) {
	l := budget.NewLedger()
	assert.False(t, l.Record("g1", "b1", 100))

	require.NoError(t, l.Reconcile(context.Background(), &mapStore{values: map[string]int64{budget.Key("g1", "b1"): 90}}))
	assert.True(t, l.Record("g1", "b1", 200))

	rows := l.Report().Rows
	require.Len(t, rows, 1)
	assert.EqualValues(t, 200, rows[0].Initial)
	assert.Nil(t, rows[0].Final, "re-recording clears the reconciled final")
}

func TestRequirePresentPolicy(t *testing.T) {
	l := budget.NewLedger(budget.WithMissingKeyPolicy(budget.RequirePresent))
	l.Record("g1", "b1", 100)
	l.Record("g1", "b2", 100)

	store := &mapStore{values: map[string]int64{budget.Key("g1", "b1"): 10}}
	err := l.Reconcile(context.Background(), store)
	assert.ErrorIs(t, err, budget.ErrMissingKey)
	assert.Equal(t, 2, l.Report().Unreconciled, "a policy failure aborts the whole batch")
}

func TestReconcileNilStore(t *testing.T) {
	l := budget.NewLedger()
	l.Record("g1", "b1", 1)
	assert.ErrorIs(t, l.Reconcile(context.Background(), nil), budget.ErrStoreUnavailable)
}

func TestGameIDs(t *testing.T) {
	l := budget.NewLedger()
	l.Record("g2", "b1", 1)
	l.Record("g1", "b1", 1)
	l.Record("g1", "b2", 1)

	assert.Equal(t, []string{"g1", "g2"}, l.GameIDs())
	assert.Equal(t, 3, l.Len())
}

func TestNamesSurviveRerecord(t *testing.T) {
	l := budget.NewLedger()
	l.NameGame("g1", "Lucky Spin")
	l.NameBrand("b1", "Acme")
	l.NameBrand("b1", "")
	l.Record("g1", "b1", 10)
	l.Record("g1", "b1", 20)
	l.Record("g2", "b1", 5)

	require.NoError(t, l.Reconcile(context.Background(), &mapStore{values: map[string]int64{}}))
	rep := l.Report()
	require.Len(t, rep.Rows, 2)
	assert.Equal(t, "Lucky Spin", rep.Rows[0].GameName)
	assert.Equal(t, "Acme", rep.Rows[0].BrandName)
	assert.EqualValues(t, 20, rep.Rows[0].Initial)
	assert.Empty(t, rep.Rows[1].GameName)
	assert.Equal(t, "Acme", rep.Rows[1].BrandName)
}
