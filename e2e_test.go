package census

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ozanturksever/go-census/advertise"
	"github.com/ozanturksever/go-census/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/nats"
)

// setupNATSContainer starts a NATS container with JetStream enabled and returns the connection URL
func setupNATSContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	natsContainer, err := nats.Run(ctx,
		"nats:2.10",
		testcontainers.WithCmd("--jetstream"),
	)
	require.NoError(t, err, "failed to start NATS container")

	url, err := natsContainer.ConnectionString(ctx)
	require.NoError(t, err, "failed to get NATS connection string")

	cleanup := func() {
		if err := natsContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate NATS container: %v", err)
		}
	}

	return url, cleanup
}

func connectAdvertiser(t *testing.T, ctx context.Context, url string) *advertise.NATS {
	t.Helper()

	client := advertise.NewNATS(advertise.NATSConfig{
		NATSURLs: []string{url},
		MaxTTL:   10 * time.Minute,
	})
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(client.Close)
	return client
}

// announceNodes advertises n distinct nodes under state's key.
func announceNodes(t *testing.T, ctx context.Context, client advertise.Client, state TrackedState, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		value := fmt.Sprintf("%s-node-%d:1224", state.Name, i)
		require.NoError(t, client.Announce(ctx, state.Key, value, 5*time.Minute))
	}
}

func e2eStates(t *testing.T) []TrackedState {
	t.Helper()
	var states []TrackedState
	for _, name := range []string{"twopercent", "canonical", "acceptdonation", "movingto_twopercent"} {
		pub, _ := newStateKey(t)
		states = append(states, TrackedState{Name: name, Key: pub})
	}
	return states
}

func TestE2E_CensusOverNATSContainer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	url, cleanup := setupNATSContainer(t, ctx)
	defer cleanup()

	client := connectAdvertiser(t, ctx, url)
	states := e2eStates(t)

	announceNodes(t, ctx, client, states[0], 320)
	announceNodes(t, ctx, client, states[1], 10)
	announceNodes(t, ctx, client, states[2], 60)
	announceNodes(t, ctx, client, states[3], 5)

	cycle, err := NewCycle(Config{States: states, Policy: HistoricalPolicy(), Parallel: true}, client)
	require.NoError(t, err)

	out := cycle.Run(ctx)
	require.Equal(t, OutcomeAlert, out.Kind, out.Body())
	assert.Equal(t, 395, out.Report.Total())
	assert.Equal(t, Violation{State: "acceptdonation", Observed: 60, Bound: 50, Kind: TooMany}, out.Alert.Violation)
}

func TestE2E_CensusFailsWhenServerGoesAway(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ns := testutil.StartNATS(t)
	client := connectAdvertiser(t, ctx, ns.URL())
	states := e2eStates(t)

	announceNodes(t, ctx, client, states[0], 300)

	cycle, err := NewCycle(Config{
		States:        states,
		Policy:        HistoricalPolicy(),
		LookupTimeout: time.Second,
	}, client)
	require.NoError(t, err)

	out := cycle.Run(ctx)
	require.Equal(t, OutcomeHealthy, out.Kind, out.Body())
	assert.Equal(t, 300, out.Report.Total())

	ns.Stop()

	out = cycle.Run(ctx)
	require.Equal(t, OutcomeFailure, out.Kind)

	var cf *CensusFailure
	require.ErrorAs(t, out.Err, &cf)
	assert.Equal(t, "twopercent", cf.State)

	var lf *advertise.LookupFailure
	assert.ErrorAs(t, out.Err, &lf)
}
