package census

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ozanturksever/go-census/advertise"
	"github.com/ozanturksever/go-census/testutil"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var historicalStates = []TrackedState{
	{Name: "twopercent", Key: "key-twopercent"},
	{Name: "canonical", Key: "key-canonical"},
	{Name: "acceptdonation", Key: "key-acceptdonation"},
	{Name: "movingto_twopercent", Key: "key-movingto"},
}

func populatedAdvertiser(t *testing.T) *testutil.FakeAdvertiser {
	t.Helper()
	adv := testutil.NewFakeAdvertiser()
	adv.Populate("key-twopercent", 320)
	adv.Populate("key-canonical", 10)
	adv.Populate("key-acceptdonation", 60)
	adv.Populate("key-movingto", 5)
	return adv
}

func TestEngine_Census(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		name := "sequential"
		if parallel {
			name = "parallel"
		}
		t.Run(name, func(t *testing.T) {
			adv := populatedAdvertiser(t)
			engine := NewEngine(adv, WithParallel(parallel))

			report, err := engine.Census(context.Background(), historicalStates)
			require.NoError(t, err)

			assert.Equal(t, map[string]int{
				"twopercent":          320,
				"canonical":           10,
				"acceptdonation":      60,
				"movingto_twopercent": 5,
			}, report.PerState())
			assert.Equal(t, 395, report.Total())
			assert.Equal(t, []string{"twopercent", "canonical", "acceptdonation", "movingto_twopercent"}, report.States())
			assert.Empty(t, report.TruncatedStates())
			assert.Len(t, adv.Calls(), 4)
		})
	}
}

func TestEngine_CensusSequentialOrder(t *testing.T) {
	adv := populatedAdvertiser(t)
	engine := NewEngine(adv)

	_, err := engine.Census(context.Background(), historicalStates)
	require.NoError(t, err)

	calls := adv.Calls()
	require.Len(t, calls, 4)
	for i, s := range historicalStates {
		assert.Equal(t, s.Key, calls[i].Key)
		assert.Equal(t, DefaultMaxResults, calls[i].MaxResults)
	}
}

func TestEngine_CensusFailsFast(t *testing.T) {
	adv := populatedAdvertiser(t)
	boom := errors.New("dht unreachable")
	adv.FailLookup("key-canonical", boom)

	engine := NewEngine(adv)
	report, err := engine.Census(context.Background(), historicalStates)
	require.Error(t, err)

	var cf *CensusFailure
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, "canonical", cf.State)
	assert.ErrorIs(t, err, boom)

	var lf *advertise.LookupFailure
	require.ErrorAs(t, err, &lf)
	assert.Equal(t, "key-canonical", lf.Key)

	assert.Equal(t, 0, report.Len())
	// Lookups stop at the first failure.
	assert.Len(t, adv.Calls(), 2)
}

func TestEngine_CensusParallelFailure(t *testing.T) {
	adv := populatedAdvertiser(t)
	boom := errors.New("dht unreachable")
	adv.FailLookup("key-movingto", boom)

	engine := NewEngine(adv, WithParallel(true))
	report, err := engine.Census(context.Background(), historicalStates)

	var cf *CensusFailure
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, "movingto_twopercent", cf.State)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, report.Len())
}

func TestEngine_CensusEmpty(t *testing.T) {
	adv := testutil.NewFakeAdvertiser()
	engine := NewEngine(adv)

	report, err := engine.Census(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Len())
	assert.Equal(t, 0, report.Total())
	assert.Empty(t, adv.Calls())
}

func TestEngine_CensusEmptyState(t *testing.T) {
	adv := testutil.NewFakeAdvertiser()
	engine := NewEngine(adv)

	report, err := engine.Census(context.Background(), []TrackedState{{Name: "canonical", Key: "key-canonical"}})
	require.NoError(t, err)

	n, ok := report.Count("canonical")
	assert.True(t, ok)
	assert.Equal(t, 0, n)
}

func TestEngine_CensusIsRepeatable(t *testing.T) {
	adv := populatedAdvertiser(t)
	engine := NewEngine(adv)

	first, err := engine.Census(context.Background(), historicalStates)
	require.NoError(t, err)
	second, err := engine.Census(context.Background(), historicalStates)
	require.NoError(t, err)

	assert.Equal(t, first.Counts(), second.Counts())
	assert.Equal(t, first.Total(), second.Total())
}

func TestEngine_CensusInvalidStates(t *testing.T) {
	tests := []struct {
		name      string
		states    []TrackedState
		wantErr   error
		wantState string
	}{
		{
			name:      "duplicate name",
			states:    []TrackedState{{Name: "a", Key: "k1"}, {Name: "a", Key: "k2"}},
			wantErr:   ErrDuplicateState,
			wantState: "a",
		},
		{
			name:      "empty key",
			states:    []TrackedState{{Name: "a", Key: "k1"}, {Name: "b"}},
			wantErr:   ErrEmptyStateKey,
			wantState: "b",
		},
		{
			name:    "empty name",
			states:  []TrackedState{{Key: "k1"}},
			wantErr: ErrEmptyStateName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv := testutil.NewFakeAdvertiser()
			engine := NewEngine(adv)

			_, err := engine.Census(context.Background(), tt.states)

			var cf *CensusFailure
			require.ErrorAs(t, err, &cf)
			assert.Equal(t, tt.wantState, cf.State)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, adv.Calls())
		})
	}
}

func TestEngine_LookupTimeout(t *testing.T) {
	adv := populatedAdvertiser(t)
	adv.DelayLookup("key-acceptdonation", 5*time.Second)

	engine := NewEngine(adv, WithLookupTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := engine.Census(context.Background(), historicalStates)
	assert.Less(t, time.Since(start), 2*time.Second)

	var cf *CensusFailure
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, "acceptdonation", cf.State)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngine_CancelledContext(t *testing.T) {
	adv := populatedAdvertiser(t)
	engine := NewEngine(adv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Census(ctx, historicalStates)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_LookupTruncated(t *testing.T) {
	adv := testutil.NewFakeAdvertiser()
	adv.Populate("key-twopercent", 5)
	adv.Populate("key-canonical", 2)

	engine := NewEngine(adv, WithMaxResults(3))

	res, err := engine.Lookup(context.Background(), TrackedState{Name: "twopercent", Key: "key-twopercent"})
	require.NoError(t, err)
	assert.Len(t, res.Members, 3)
	assert.True(t, res.Truncated)

	res, err = engine.Lookup(context.Background(), TrackedState{Name: "canonical", Key: "key-canonical"})
	require.NoError(t, err)
	assert.Len(t, res.Members, 2)
	assert.False(t, res.Truncated)

	report, err := engine.Census(context.Background(), []TrackedState{
		{Name: "twopercent", Key: "key-twopercent"},
		{Name: "canonical", Key: "key-canonical"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"twopercent"}, report.TruncatedStates())
	assert.Equal(t, 5, report.Total())
}

func TestEngine_Metrics(t *testing.T) {
	adv := populatedAdvertiser(t)
	adv.FailLookup("key-canonical", errors.New("boom"))
	m := NewMetrics()

	engine := NewEngine(adv, WithMetrics(m))
	_, err := engine.Census(context.Background(), historicalStates)
	require.Error(t, err)

	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.LookupFailures.WithLabelValues("canonical")))
	assert.Equal(t, 0.0, promtestutil.ToFloat64(m.LookupFailures.WithLabelValues("twopercent")))
	assert.Equal(t, 2, promtestutil.CollectAndCount(m.LookupDuration))
}
